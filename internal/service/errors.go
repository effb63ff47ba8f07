package service

import "errors"

var (
	// ErrQueueing wraps a persistence failure while enqueuing an event.
	ErrQueueing = errors.New("failed to queue outbound event")
	// ErrDispatchRunning is returned by a manual dispatch while another run is active.
	ErrDispatchRunning = errors.New("outbox dispatch is already running")
	// ErrIntegrationDisabled is returned by admin operations that need prospect enabled.
	ErrIntegrationDisabled = errors.New("prospect integration is disabled for this company")
	ErrUnknownFlag         = errors.New("unknown feature flag")
)
