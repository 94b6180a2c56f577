/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a single startable and stoppable component of a service.
// An HTTP server and a background sweeper are typical units.
type Unit interface {
	// Start begins the unit's operation.
	//
	// An implementation may return right after initialization or block the
	// calling goroutine for the unit's whole lifetime. A successfully started
	// unit must not write to the provided channel, and the channel must not be
	// used after Start has returned.
	//
	// Stop may be called whether the unit started successfully, failed to
	// start, or is still running.
	Start(fatalErr chan<- error)

	// Stop halts the unit. When gracefully is true, the unit should finish the
	// work already in progress before returning.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that register their own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
