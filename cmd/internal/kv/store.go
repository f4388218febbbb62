// Package kv is the key-value persistence boundary for invite state.
//
// Values are opaque bytes (the invite package stores JSON). Every backend
// writes a key wholesale; there is no versioning, so the last writer wins.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("kv: key not found")
	ErrInvalidInput = errors.New("kv: invalid input")
	ErrClosed       = errors.New("kv: store closed")
)

// Store persists values by key.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
	// Keys lists keys starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
