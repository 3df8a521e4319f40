// Package persist stores per-token values and exposes them as pipeline
// operations, so a run can read state saved by an earlier run with the same
// correlation token.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Load and Delete when no value is stored.
	ErrNotFound = errors.New("value not found")
	// ErrInvalidKey is returned for an empty token or kind, or one that
	// contains a path separator.
	ErrInvalidKey = errors.New("invalid key")
)

// Store keeps raw values addressed by token and kind.
type Store interface {
	Load(ctx context.Context, token, kind string) ([]byte, error)
	Save(ctx context.Context, token, kind string, data []byte) error
	Delete(ctx context.Context, token, kind string) error
}

func validateKey(token, kind string) error {
	for _, part := range []string{token, kind} {
		if part == "" || strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return fmt.Errorf("%w: %q/%q", ErrInvalidKey, token, kind)
		}
	}
	return nil
}
