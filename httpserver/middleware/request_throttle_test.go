/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/MohamedNasirS/go-throttlekit/log"
	"github.com/MohamedNasirS/go-throttlekit/log/logtest"
	"github.com/MohamedNasirS/go-throttlekit/restapi"
	"github.com/MohamedNasirS/go-throttlekit/testutil"
	"github.com/MohamedNasirS/go-throttlekit/throttle"
)

type failingThrottleStore struct{}

func (s failingThrottleStore) Increment(
	ctx context.Context, key string, now time.Time, window time.Duration,
) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store is down")
}

func (s failingThrottleStore) Reset(ctx context.Context, key string) error {
	return errors.New("store is down")
}

func (s failingThrottleStore) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, errors.New("store is down")
}

func (s failingThrottleStore) Close() error {
	return nil
}

func TestRequestThrottleHandler_ServeHTTP(t *testing.T) {
	makeReqAndRespRec := func() (*http.Request, *httptest.ResponseRecorder) {
		return httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()
	}

	makeNext := func() (next http.HandlerFunc, servedCount *atomic.Int32) {
		servedCount = atomic.NewInt32(0)
		next = func(rw http.ResponseWriter, r *http.Request) {
			servedCount.Inc()
			rw.WriteHeader(http.StatusOK)
		}
		return
	}

	mustNewThrottle := func(t *testing.T, cfg throttle.Config) *throttle.Throttle {
		t.Helper()
		tr, err := throttle.New(cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, tr.Close()) })
		return tr
	}

	sendReq := func(t *testing.T, handler http.Handler, headers http.Header) *httptest.ResponseRecorder {
		t.Helper()
		req, respRec := makeReqAndRespRec()
		if headers != nil {
			req.Header = headers
		}
		handler.ServeHTTP(respRec, req)
		return respRec
	}

	t.Run("attempts over the limit are rejected until the window ends", func(t *testing.T) {
		next, nextServedCount := makeNext()
		tr := mustNewThrottle(t, throttle.Config{WindowDuration: time.Minute, MaxAttempts: 2})
		handler := RequestThrottle(tr)(next)

		respRec := sendReq(t, handler, nil)
		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, "2", respRec.Header().Get("RateLimit-Limit"))
		require.Equal(t, "1", respRec.Header().Get("RateLimit-Remaining"))
		resetHeader := respRec.Header().Get("RateLimit-Reset")
		resetEpoch, err := strconv.ParseInt(resetHeader, 10, 64)
		require.NoError(t, err)
		require.InDelta(t, time.Now().Add(time.Minute).Unix(), resetEpoch, 2)

		respRec = sendReq(t, handler, nil)
		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, "0", respRec.Header().Get("RateLimit-Remaining"))
		require.Equal(t, resetHeader, respRec.Header().Get("RateLimit-Reset"))

		// Rejected attempts are counted too, and the window end they report never moves.
		for i := 0; i < 2; i++ {
			respRec = sendReq(t, handler, nil)
			testutil.RequireThrottledInRecorder(t, respRec, throttle.DefaultRejectionMessage, 60)
			require.Equal(t, "2", respRec.Header().Get("RateLimit-Limit"))
			require.Equal(t, "0", respRec.Header().Get("RateLimit-Remaining"))
			require.Equal(t, resetHeader, respRec.Header().Get("RateLimit-Reset"))
		}

		require.Equal(t, 2, int(nextServedCount.Load()))
	})

	t.Run("keys are throttled independently", func(t *testing.T) {
		next, nextServedCount := makeNext()
		tr := mustNewThrottle(t, throttle.Config{WindowDuration: time.Minute, MaxAttempts: 1})
		handler := RequestThrottle(tr)(next)

		client1Headers := http.Header{}
		client1Headers.Set("X-Forwarded-For", "10.0.0.1")
		respRec := sendReq(t, handler, client1Headers)
		require.Equal(t, http.StatusOK, respRec.Code)
		respRec = sendReq(t, handler, client1Headers)
		testutil.RequireThrottledInRecorder(t, respRec, throttle.DefaultRejectionMessage, 60)

		client2Headers := http.Header{}
		client2Headers.Set("X-Forwarded-For", "10.0.0.2")
		respRec = sendReq(t, handler, client2Headers)
		require.Equal(t, http.StatusOK, respRec.Code)

		require.Equal(t, 2, int(nextServedCount.Load()))
	})

	t.Run("requests bypassed by the key function are served without throttling", func(t *testing.T) {
		const headerClientID = "X-Client-ID"
		next, nextServedCount := makeNext()
		tr := mustNewThrottle(t, throttle.Config{WindowDuration: time.Minute, MaxAttempts: 1})
		handler := RequestThrottleWithOpts(tr, RequestThrottleOpts{
			GetKey: makeRequestThrottleGetKeyByHeader(headerClientID),
		})(next)

		clientHeaders := http.Header{}
		clientHeaders.Set(headerClientID, "client-1")
		respRec := sendReq(t, handler, clientHeaders)
		require.Equal(t, http.StatusOK, respRec.Code)
		respRec = sendReq(t, handler, clientHeaders)
		testutil.RequireThrottledInRecorder(t, respRec, throttle.DefaultRejectionMessage, 60)

		// No client ID means bypass, so no attempts are counted and no headers are set.
		for i := 0; i < 3; i++ {
			respRec = sendReq(t, handler, nil)
			require.Equal(t, http.StatusOK, respRec.Code)
			require.Empty(t, respRec.Header().Get("RateLimit-Limit"))
		}

		require.Equal(t, 4, int(nextServedCount.Load()))
	})

	t.Run("failing key derivation falls back to the sentinel key", func(t *testing.T) {
		next, _ := makeNext()
		tr := mustNewThrottle(t, throttle.Config{WindowDuration: time.Minute, MaxAttempts: 1})

		var rejectedKey string
		handler := RequestThrottleWithOpts(tr, RequestThrottleOpts{
			GetKey: func(r *http.Request) (string, bool, error) {
				return "", false, errors.New("no client info")
			},
			OnReject: func(
				rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, next http.Handler, logger log.FieldLogger,
			) {
				rejectedKey = params.Key
				DefaultRequestThrottleOnReject(rw, r, params, next, logger)
			},
		})(next)

		respRec := sendReq(t, handler, nil)
		require.Equal(t, http.StatusOK, respRec.Code)

		respRec = sendReq(t, handler, nil)
		testutil.RequireThrottledInRecorder(t, respRec, throttle.DefaultRejectionMessage, 60)
		require.Equal(t, throttle.UnknownKey, rejectedKey)
	})

	t.Run("reset forgives counted attempts", func(t *testing.T) {
		next, nextServedCount := makeNext()
		tr := mustNewThrottle(t, throttle.Config{WindowDuration: time.Minute, MaxAttempts: 1})
		handler := RequestThrottle(tr)(next)

		respRec := sendReq(t, handler, nil)
		require.Equal(t, http.StatusOK, respRec.Code)
		respRec = sendReq(t, handler, nil)
		testutil.RequireThrottledInRecorder(t, respRec, throttle.DefaultRejectionMessage, 60)

		req, _ := makeReqAndRespRec()
		require.NoError(t, tr.ResetForRequest(req))

		respRec = sendReq(t, handler, nil)
		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, "0", respRec.Header().Get("RateLimit-Remaining"))

		require.Equal(t, 2, int(nextServedCount.Load()))
	})

	t.Run("dry run serves rejected requests and logs them", func(t *testing.T) {
		next, nextServedCount := makeNext()
		tr := mustNewThrottle(t, throttle.Config{WindowDuration: time.Minute, MaxAttempts: 1})
		handler := RequestThrottleWithOpts(tr, RequestThrottleOpts{DryRun: true})(next)

		logger := logtest.NewRecorder()
		sendReqWithLogger := func() *httptest.ResponseRecorder {
			req, respRec := makeReqAndRespRec()
			req = req.WithContext(NewContextWithLogger(req.Context(), logger))
			handler.ServeHTTP(respRec, req)
			return respRec
		}

		respRec := sendReqWithLogger()
		require.Equal(t, http.StatusOK, respRec.Code)

		respRec = sendReqWithLogger()
		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, "0", respRec.Header().Get("RateLimit-Remaining"))
		require.Equal(t, 2, int(nextServedCount.Load()))

		entry, found := logger.FindEntry("too many requests, serving will be continued because of dry run mode")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, entry.Level)
		logField, found := entry.FindField(RequestThrottleLogFieldKey)
		require.True(t, found)
		require.Equal(t, "192.0.2.1", string(logField.Bytes))
	})

	t.Run("store failure is responded as service unavailable", func(t *testing.T) {
		next, nextServedCount := makeNext()
		tr, err := throttle.NewWithStore(throttle.Config{}, failingThrottleStore{}, nil)
		require.NoError(t, err)
		handler := RequestThrottle(tr)(next)

		logger := logtest.NewRecorder()
		req, respRec := makeReqAndRespRec()
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		handler.ServeHTTP(respRec, req)

		testutil.RequireErrorInRecorder(t, respRec, http.StatusServiceUnavailable, restapi.ErrMessageUnavailable)
		require.Empty(t, respRec.Header().Get("RateLimit-Limit"))
		require.Equal(t, 0, int(nextServedCount.Load()))

		_, found := logger.FindEntryByFilter(func(entry logtest.RecordedEntry) bool {
			return entry.Level == log.LevelError && strings.Contains(entry.Text, "store is down")
		})
		require.True(t, found)
	})

	t.Run("custom on error can fail open", func(t *testing.T) {
		next, nextServedCount := makeNext()
		tr, err := throttle.NewWithStore(throttle.Config{}, failingThrottleStore{}, nil)
		require.NoError(t, err)
		handler := RequestThrottleWithOpts(tr, RequestThrottleOpts{
			OnError: func(
				rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, err error, next http.Handler,
				logger log.FieldLogger,
			) {
				next.ServeHTTP(rw, r)
			},
		})(next)

		respRec := sendReq(t, handler, nil)
		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, 1, int(nextServedCount.Load()))
	})

	t.Run("nil throttle is not allowed", func(t *testing.T) {
		require.Panics(t, func() { RequestThrottleWithOpts(nil, RequestThrottleOpts{}) })
	})
}

//nolint:unparam
func makeRequestThrottleGetKeyByHeader(headerName string) RequestThrottleGetKeyFunc {
	return func(r *http.Request) (key string, bypass bool, err error) {
		key = r.Header.Get(headerName)
		return key, key == "", nil
	}
}
