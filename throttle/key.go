/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"net/http"

	"github.com/MohamedNasirS/go-throttlekit/netutil"
)

// UnknownKey is the sentinel key used when no throttling key can be derived
// from a request. Requests falling back to it share one window per throttle.
const UnknownKey = "unknown"

// KeyFunc is a function that is used for getting the throttling key for the incoming request.
// The returned bypass value indicates that the request should be excluded from throttling entirely.
type KeyFunc func(r *http.Request) (key string, bypass bool, err error)

// IdentityFunc extracts the identity part of a composite throttling key from the
// incoming request, for example the login identifier from a parsed credentials
// payload or the authenticated user ID from the request context.
type IdentityFunc func(r *http.Request) string

// ByClientAddress returns a KeyFunc that keys requests by the client address alone.
// It never returns an error: requests without a determinable address are keyed
// by UnknownKey.
func ByClientAddress() KeyFunc {
	return func(r *http.Request) (string, bool, error) {
		return clientAddress(r), false, nil
	}
}

// ByClientAddressAndIdentity returns a KeyFunc that keys requests by
// "<purpose>:<clientAddress>:<identity>". When identify is nil or returns an
// empty string, fallbackIdentity is used instead. It never returns an error.
func ByClientAddressAndIdentity(purpose string, identify IdentityFunc, fallbackIdentity string) KeyFunc {
	return func(r *http.Request) (string, bool, error) {
		identity := ""
		if identify != nil {
			identity = identify(r)
		}
		if identity == "" {
			identity = fallbackIdentity
		}
		return purpose + ":" + clientAddress(r) + ":" + identity, false, nil
	}
}

func clientAddress(r *http.Request) string {
	if addr := netutil.GetClientAddress(r); addr != "" {
		return addr
	}
	return UnknownKey
}
