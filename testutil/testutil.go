/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides helpers for testing HTTP handlers, metrics, and network services.
package testutil

type tHelper interface {
	Helper()
}
