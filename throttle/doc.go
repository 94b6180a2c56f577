/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle provides fixed-window request throttling with deterministic,
// externally supplied time.
//
// Every check against a key increments that key's counter for the current
// window, whether or not the check is admitted, and rejected checks never
// extend or renew the window. The counter is forgotten once the window ends or
// the key is reset, so a client that keeps retrying learns exactly when the
// window reopens from the returned decision.
//
// Key features:
//   - Fixed-window counters with an always-incremented attempt count
//   - Pluggable storage: bounded in-memory store and Redis-backed store
//   - Preconfigured policies for login, general API, and write traffic
//   - Request key derivation from client address with sentinel fallback
//   - Background sweeping of expired windows driven by the host's lifecycle
//   - Prometheus metrics for admissions, rejections, resets, and sweeps
package throttle
