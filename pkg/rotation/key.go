package rotation

import "strings"

const (
	// IdentifierLength is the length of the public part of a client API key.
	IdentifierLength = 16

	maskVisible = 5
	maskLength  = 24
)

// KeyIdentifier returns the public identifier of a client API key: its first
// 16 characters. Keys shorter than that are returned unchanged.
func KeyIdentifier(key string) string {
	if len(key) <= IdentifierLength {
		return key
	}
	return key[:IdentifierLength]
}

// MaskKey returns the first 5 characters of key followed by 24 asterisks,
// whatever the length of the remainder.
func MaskKey(key string) string {
	visible := key
	if len(visible) > maskVisible {
		visible = visible[:maskVisible]
	}
	return visible + strings.Repeat("*", maskLength)
}
