package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrEmptyToken is returned when a token is created from an empty value.
var ErrEmptyToken = errors.New("secure: empty token")

// ErrDestroyed is returned when a destroyed token is used.
var ErrDestroyed = errors.New("secure: token destroyed")

// Token holds a credential sealed in a memguard enclave.
type Token struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewToken seals value. The intermediate byte slice is wiped by memguard.
func NewToken(value string) (*Token, error) {
	if value == "" {
		return nil, ErrEmptyToken
	}
	return &Token{enclave: memguard.NewEnclave([]byte(value))}, nil
}

// Use decrypts the token into a locked buffer, passes its bytes to fn and
// wipes the buffer afterwards. fn must not retain the slice.
func (t *Token) Use(fn func([]byte) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.destroyed {
		return ErrDestroyed
	}

	locked, err := t.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy drops the enclave. It is idempotent; later Use calls fail with
// ErrDestroyed.
func (t *Token) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enclave = nil
	t.destroyed = true
}

// Purge wipes all memguard state. Call it once on process exit.
func Purge() {
	memguard.Purge()
}
