package id_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cascadehq/cascade/id"
)

func TestNew_Distinct(t *testing.T) {
	t.Parallel()
	seen := make(map[string]struct{})
	for range 100 {
		v := id.New()
		if v == "" {
			t.Fatal("empty id")
		}
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id %s", v)
		}
		seen[v] = struct{}{}
	}
}

func TestUnique_SkipsTakenIDs(t *testing.T) {
	t.Parallel()
	// Report the first two candidates as taken, accept the third.
	calls := 0
	got, err := id.Unique(context.Background(), func(_ context.Context, _ string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("Unique: %v", err)
	}
	if got == "" {
		t.Fatal("empty id")
	}
	if calls != 3 {
		t.Errorf("probe calls = %d, want 3", calls)
	}
}

func TestUnique_PropagatesProbeError(t *testing.T) {
	t.Parallel()
	want := errors.New("store down")
	_, err := id.Unique(context.Background(), func(_ context.Context, _ string) (bool, error) {
		return false, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected probe error, got %v", err)
	}
}
