package rotation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIdentifier(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "longer key", key: "OLD1234567890123SECRET", want: "OLD1234567890123"},
		{name: "pterodactyl client key", key: "ptlc_AbCdEfGhIjKsecretsecretsecretsecretsecret12", want: "ptlc_AbCdEfGhIjK"},
		{name: "exactly sixteen", key: "0123456789abcdef", want: "0123456789abcdef"},
		{name: "short key", key: "short", want: "short"},
		{name: "empty", key: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyIdentifier(tt.key))
		})
	}
}

func TestMaskKey(t *testing.T) {
	stars := strings.Repeat("*", 24)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "typical key", key: "AAAAAAAAAAAAAAAABBBBBBBBBBBBBBBB", want: "AAAAA" + stars},
		{name: "long key", key: "ptlc_" + strings.Repeat("x", 200), want: "ptlc_" + stars},
		{name: "six characters", key: "abcdef", want: "abcde" + stars},
		{name: "short key", key: "abc", want: "abc" + stars},
		{name: "empty", key: "", want: stars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskKey(tt.key)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasSuffix(got, stars))
		})
	}
}
