package client

import (
	"context"

	"github.com/cascadehq/cascade/workflow"
)

// Monitor is an external observer object attached to a workflow at load
// time. Monitorable identifies the record the monitor watches; the
// workflow is linked to it on reconstruction.
type Monitor interface {
	Monitorable() (recordType, recordID string)
}

// Observer loads the monitor, if any, for a workflow. The default
// observer returns none.
type Observer interface {
	LoadFor(ctx context.Context, wf *workflow.Workflow) (Monitor, error)
}

// LinkedRecordProbe answers whether an external record exists. It is
// consulted only as a lookup predicate; workflows without linking never
// reach it.
type LinkedRecordProbe interface {
	Exists(ctx context.Context, recordType, recordID string) (bool, error)
}

// noopObserver is the default Observer: no monitor for any workflow.
type noopObserver struct{}

func (noopObserver) LoadFor(context.Context, *workflow.Workflow) (Monitor, error) {
	return nil, nil
}

// noopProbe is the default LinkedRecordProbe: no record exists, so
// workflows without linking behave identically to an unconfigured probe.
type noopProbe struct{}

func (noopProbe) Exists(context.Context, string, string) (bool, error) {
	return false, nil
}
