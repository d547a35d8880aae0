package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/job"
	"github.com/cascadehq/cascade/store"
	"github.com/cascadehq/cascade/store/memory"
	"github.com/cascadehq/cascade/workflow"
)

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()
	cfg := cascade.DefaultConfig()
	cfg.StoreURL = ""

	_, err := New(WithConfig(cfg))
	if !errors.Is(err, cascade.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNew_WiresClientAndWorker(t *testing.T) {
	t.Parallel()
	eng, err := New(
		WithStore(memory.New()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.Client() == nil || eng.Worker() == nil {
		t.Fatal("client/worker not wired")
	}
	if eng.Workflows() == nil || eng.Jobs() == nil {
		t.Fatal("registries not defaulted")
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	t.Parallel()
	cfg := cascade.DefaultConfig()
	cfg.LockPollInterval = 5 * time.Millisecond

	eng, err := New(
		WithStore(memory.New()),
		WithConfig(cfg),
		WithConcurrency(2),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	eng.Workflows().Register(workflow.NewDefinition("TwoStep", func(b *workflow.Builder, _ []json.RawMessage) error {
		b.Run("First")
		b.Run("Second", workflow.After("First"))
		return nil
	}))
	eng.Jobs().Register(job.NewDefinition("First", func(context.Context, *job.RunContext) (json.RawMessage, error) {
		return json.RawMessage(`"done"`), nil
	}))
	eng.Jobs().Register(job.NewDefinition("Second", func(context.Context, *job.RunContext) (json.RawMessage, error) {
		return nil, nil
	}))

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = eng.Stop(stopCtx)
	}()

	wf, err := eng.Client().CreateWorkflow(ctx, "TwoStep")
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := eng.Client().StartWorkflow(ctx, wf); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		final, err := eng.Client().FindWorkflow(ctx, wf.ID)
		if err != nil {
			t.Fatalf("FindWorkflow: %v", err)
		}
		if final.Finished() {
			second, _ := final.FindJob("Second")
			if !second.Succeeded() {
				t.Errorf("Second state = %q, want succeeded", second.State())
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("workflow did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStoreCache_ReusesConnectionsPerURL(t *testing.T) {
	t.Parallel()
	opened := 0
	c := newStoreCache()
	c.open = func(string) (store.Store, error) {
		opened++
		return memory.New(), nil
	}

	a1, err := c.get("redis://a")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := c.get("redis://a")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("same URL must reuse the cached connection")
	}

	// A changed URL opens a fresh connection.
	if _, err := c.get("redis://b"); err != nil {
		t.Fatal(err)
	}
	if opened != 2 {
		t.Errorf("opened %d connections, want 2", opened)
	}

	if err := c.closeAll(); err != nil {
		t.Fatalf("closeAll: %v", err)
	}
	if _, err := c.get("redis://a"); err != nil {
		t.Fatal(err)
	}
	if opened != 3 {
		t.Errorf("opened %d connections after closeAll, want 3", opened)
	}
}
