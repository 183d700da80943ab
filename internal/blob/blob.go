// Package blob stores uploaded document bytes under opaque keys.
package blob

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrNotFound = errors.New("blob not found")

const (
	keySize     = 32
	keyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Store persists document bytes.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key, contentType string, data []byte) error

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh opaque key for a document of the given type.
func NewKey(prefix string) string {
	return fmt.Sprintf("documents/%s/%s", prefix, gonanoid.MustGenerate(keyAlphabet, keySize))
}
