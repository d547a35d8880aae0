package cascade

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("cascade: no store configured")
	ErrStoreClosed = errors.New("cascade: store closed")

	// Not found errors.
	ErrWorkflowNotFound = errors.New("cascade: workflow not found")
	ErrJobNotFound      = errors.New("cascade: job not found")

	// Registry errors.
	ErrWorkflowNotRegistered = errors.New("cascade: workflow class not registered")
	ErrJobNotRegistered      = errors.New("cascade: job class not registered")

	// Graph errors.
	ErrCyclicGraph = errors.New("cascade: workflow graph contains a cycle")
	ErrUnknownNode = errors.New("cascade: edge references unknown node")

	// State errors.
	ErrInvalidTransition = errors.New("cascade: invalid state transition")
	ErrStopped           = errors.New("cascade: workflow is stopped")

	// Lock errors.
	ErrLockNotAcquired = errors.New("cascade: lock not acquired")
)
