// Package wakeerr holds the sentinel errors shared across wakegate's
// components, wrapped with context at each raising site via
// emperror.dev/errors so errors.Is still sees through the chain.
package wakeerr

import "emperror.dev/errors"

var (
	// ErrProtocol marks a malformed or oversized client packet. The
	// offending connection is closed; backends are never affected.
	ErrProtocol = errors.New("protocol error")

	// ErrStartup marks a failed container start or a prober timeout.
	ErrStartup = errors.New("startup error")

	// ErrBackendDisconnect marks an unexpected backend close mid-session.
	ErrBackendDisconnect = errors.New("backend disconnected")

	// ErrTransientIO marks a retryable I/O error inside a read/write loop.
	ErrTransientIO = errors.New("transient io error")

	// ErrConfig marks a configuration document that failed validation.
	ErrConfig = errors.New("config error")
)
