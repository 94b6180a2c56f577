/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package netutil

import (
	"net"
	"net/http"
	"strings"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// GetClientAddress returns the address of the client that originated the request.
// Proxy headers are consulted first (the first element of X-Forwarded-For, then X-Real-IP),
// falling back to the host part of the connection's remote address.
// An empty string is returned when no address can be determined.
func GetClientAddress(r *http.Request) string {
	if forwardedFor := r.Header.Get(headerForwardedFor); forwardedFor != "" {
		clientAddr := forwardedFor
		if first := strings.IndexByte(forwardedFor, ','); first != -1 {
			clientAddr = forwardedFor[:first]
		}
		return strings.TrimSpace(clientAddr)
	}

	if realIP := r.Header.Get(headerRealIP); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
