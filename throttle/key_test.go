/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newKeyTestRequest(remoteAddr string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = remoteAddr
	return r
}

func TestByClientAddress(t *testing.T) {
	keyFunc := ByClientAddress()

	key, bypass, err := keyFunc(newKeyTestRequest("192.0.2.10:54321"))
	require.NoError(t, err)
	require.False(t, bypass)
	require.Equal(t, "192.0.2.10", key)

	r := newKeyTestRequest("10.0.0.1:443")
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	key, _, err = keyFunc(r)
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", key)

	key, _, err = keyFunc(newKeyTestRequest(""))
	require.NoError(t, err)
	require.Equal(t, UnknownKey, key)
}

func TestByClientAddressAndIdentity(t *testing.T) {
	identify := func(r *http.Request) string { return r.Header.Get("X-User-ID") }

	t.Run("composite key", func(t *testing.T) {
		keyFunc := ByClientAddressAndIdentity("write", identify, "anon")
		r := newKeyTestRequest("192.0.2.10:54321")
		r.Header.Set("X-User-ID", "u-42")

		key, bypass, err := keyFunc(r)
		require.NoError(t, err)
		require.False(t, bypass)
		require.Equal(t, "write:192.0.2.10:u-42", key)
	})

	t.Run("missing identity uses the fallback", func(t *testing.T) {
		keyFunc := ByClientAddressAndIdentity("write", identify, "anon")

		key, _, err := keyFunc(newKeyTestRequest("192.0.2.10:54321"))
		require.NoError(t, err)
		require.Equal(t, "write:192.0.2.10:anon", key)
	})

	t.Run("nil identity function uses the fallback", func(t *testing.T) {
		keyFunc := ByClientAddressAndIdentity("write", nil, "anon")

		key, _, err := keyFunc(newKeyTestRequest("192.0.2.10:54321"))
		require.NoError(t, err)
		require.Equal(t, "write:192.0.2.10:anon", key)
	})

	t.Run("empty fallback leaves the identity part empty", func(t *testing.T) {
		keyFunc := ByClientAddressAndIdentity("login", identify, "")

		key, _, err := keyFunc(newKeyTestRequest("192.0.2.10:54321"))
		require.NoError(t, err)
		require.Equal(t, "login:192.0.2.10:", key)
	})

	t.Run("unknown address uses the sentinel", func(t *testing.T) {
		keyFunc := ByClientAddressAndIdentity("write", identify, "anon")

		key, _, err := keyFunc(newKeyTestRequest(""))
		require.NoError(t, err)
		require.Equal(t, "write:unknown:anon", key)
	})
}
