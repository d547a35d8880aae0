package job_test

import (
	"errors"
	"testing"
	"time"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/job"
)

func TestState_Derivation(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name string
		j    job.Job
		want job.State
	}{
		{"pending", job.Job{}, job.StatePending},
		{"enqueued", job.Job{EnqueuedAt: &now}, job.StateEnqueued},
		{"running", job.Job{EnqueuedAt: &now, StartedAt: &now}, job.StateRunning},
		{"succeeded", job.Job{EnqueuedAt: &now, StartedAt: &now, FinishedAt: &now}, job.StateSucceeded},
		{"failed", job.Job{EnqueuedAt: &now, StartedAt: &now, FailedAt: &now}, job.StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.j.State(); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransitions_HappyPath(t *testing.T) {
	t.Parallel()
	j := &job.Job{Klass: "Fetch", ID: "a1"}

	steps := []struct {
		name string
		fn   func() error
		want job.State
	}{
		{"Enqueue", j.Enqueue, job.StateEnqueued},
		{"Start", j.Start, job.StateRunning},
		{"Finish", j.Finish, job.StateSucceeded},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := j.State(); got != step.want {
			t.Fatalf("after %s: state = %q, want %q", step.name, got, step.want)
		}
	}
}

func TestTransitions_FailFromRunning(t *testing.T) {
	t.Parallel()
	j := &job.Job{Klass: "Fetch", ID: "a1"}
	if err := j.Enqueue(); err != nil {
		t.Fatal(err)
	}
	if err := j.Start(); err != nil {
		t.Fatal(err)
	}
	if err := j.Fail(); err != nil {
		t.Fatal(err)
	}
	if !j.Failed() {
		t.Error("expected Failed() after Fail")
	}
	if j.Succeeded() {
		t.Error("failed job must not report Succeeded()")
	}
}

func TestTransitions_Illegal(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name string
		j    job.Job
		fn   func(*job.Job) error
	}{
		{"enqueue twice", job.Job{EnqueuedAt: &now}, (*job.Job).Enqueue},
		{"start pending", job.Job{}, (*job.Job).Start},
		{"finish enqueued", job.Job{EnqueuedAt: &now}, (*job.Job).Finish},
		{"fail pending", job.Job{}, (*job.Job).Fail},
		{"finish after fail", job.Job{EnqueuedAt: &now, StartedAt: &now, FailedAt: &now}, (*job.Job).Finish},
		{"fail after finish", job.Job{EnqueuedAt: &now, StartedAt: &now, FinishedAt: &now}, (*job.Job).Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := tt.j
			if err := tt.fn(&j); !errors.Is(err, cascade.ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestReady(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	succeeded := &job.Job{EnqueuedAt: &now, StartedAt: &now, FinishedAt: &now}
	pending := &job.Job{}
	failed := &job.Job{EnqueuedAt: &now, StartedAt: &now, FailedAt: &now}

	tests := []struct {
		name     string
		j        job.Job
		upstream []*job.Job
		want     bool
	}{
		{"no upstream", job.Job{}, nil, true},
		{"all succeeded", job.Job{}, []*job.Job{succeeded, succeeded}, true},
		{"one pending", job.Job{}, []*job.Job{succeeded, pending}, false},
		{"one failed", job.Job{}, []*job.Job{succeeded, failed}, false},
		{"not pending itself", job.Job{EnqueuedAt: &now}, []*job.Job{succeeded}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.j.Ready(tt.upstream); got != tt.want {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestName_And_SplitName(t *testing.T) {
	t.Parallel()
	j := &job.Job{Klass: "Fetch", ID: "a1b2"}
	if got := j.Name(); got != "Fetch|a1b2" {
		t.Fatalf("Name() = %q, want %q", got, "Fetch|a1b2")
	}

	klass, jobID := job.SplitName("Fetch|a1b2")
	if klass != "Fetch" || jobID != "a1b2" {
		t.Errorf("SplitName = (%q, %q), want (Fetch, a1b2)", klass, jobID)
	}

	klass, jobID = job.SplitName("Fetch")
	if klass != "Fetch" || jobID != "" {
		t.Errorf("SplitName bare = (%q, %q), want (Fetch, \"\")", klass, jobID)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := job.NewRegistry()
	r.Register(job.NewDefinition("Fetch", nil, job.WithQueue("io")))

	def, err := r.Get("Fetch")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if def.Opts.Queue != "io" {
		t.Errorf("queue = %q, want %q", def.Opts.Queue, "io")
	}

	if _, err := r.Get("Missing"); !errors.Is(err, cascade.ErrJobNotRegistered) {
		t.Errorf("expected ErrJobNotRegistered, got %v", err)
	}
}
