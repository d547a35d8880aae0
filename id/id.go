// Package id generates collision-checked identifiers for workflows and
// jobs. Identifiers are plain UUID strings; uniqueness against the store
// is established with a generate-and-probe loop so that even a
// test-controlled random source cannot hand out a taken id.
package id

import (
	"context"

	"github.com/google/uuid"
)

// New returns a fresh random UUID string.
func New() string {
	return uuid.NewString()
}

// TakenFunc reports whether a candidate identifier is already in use.
type TakenFunc func(ctx context.Context, candidate string) (bool, error)

// Unique generates identifiers until taken reports one as free.
// Collisions are astronomically rare with a real random source; the loop
// exists so deterministic sources used in tests still terminate with a
// free id once their sequence advances.
func Unique(ctx context.Context, taken TakenFunc) (string, error) {
	for {
		candidate := New()
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
}
