/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "time"

// Preconfigured policy parameters.
const (
	AuthenticationWindowDuration = 15 * time.Minute
	AuthenticationMaxAttempts    = 5

	GeneralAPIWindowDuration = time.Minute
	GeneralAPIMaxAttempts    = 100

	WriteWindowDuration = time.Minute
	WriteMaxAttempts    = 30
)

// Rejection messages of the preconfigured policies.
const (
	AuthenticationRejectionMessage = "Too many login attempts, please try again later."
	WriteRejectionMessage          = "Too many write requests, please try again later."
)

// AuthenticationPolicy returns the configuration for throttling login attempts:
// 5 attempts per 15 minutes, keyed by "login:<clientAddress>:<loginIdentifier>".
// identify extracts the login identifier (typically the submitted username or
// email) from the request; attempts without an identifier are keyed by the
// client address part alone. Build a separate Throttle from the returned
// config so that login attempts are counted independently of other traffic.
func AuthenticationPolicy(identify IdentityFunc) Config {
	return Config{
		WindowDuration:   AuthenticationWindowDuration,
		MaxAttempts:      AuthenticationMaxAttempts,
		KeyFunc:          ByClientAddressAndIdentity("login", identify, ""),
		RejectionMessage: AuthenticationRejectionMessage,
	}
}

// GeneralAPIPolicy returns the configuration for throttling read traffic:
// 100 attempts per minute, keyed by the client address.
func GeneralAPIPolicy() Config {
	return Config{
		WindowDuration: GeneralAPIWindowDuration,
		MaxAttempts:    GeneralAPIMaxAttempts,
		KeyFunc:        ByClientAddress(),
	}
}

// WritePolicy returns the configuration for throttling mutating traffic:
// 30 attempts per minute, keyed by "write:<clientAddress>:<userID>".
// identify extracts the authenticated user ID from the request; unauthenticated
// requests are keyed with the "anon" identity.
func WritePolicy(identify IdentityFunc) Config {
	return Config{
		WindowDuration:   WriteWindowDuration,
		MaxAttempts:      WriteMaxAttempts,
		KeyFunc:          ByClientAddressAndIdentity("write", identify, "anon"),
		RejectionMessage: WriteRejectionMessage,
	}
}
