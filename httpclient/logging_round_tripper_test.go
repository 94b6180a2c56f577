/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MohamedNasirS/go-throttlekit/httpserver/middleware"
	"github.com/MohamedNasirS/go-throttlekit/log/logtest"
)

func TestNewLoggingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	logger := logtest.NewRecorder()
	loggingRoundTripper := NewLoggingRoundTripper(http.DefaultTransport, "test-client-type")
	client := &http.Client{Transport: loggingRoundTripper}
	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	defer func() { _ = r.Body.Close() }()
	require.NoError(t, err)
	require.NotEmpty(t, logger.Entries())

	loggerEntry := logger.Entries()[0]
	require.Contains(t, loggerEntry.Text, "client http request POST "+server.URL+" status code 418")
	require.Contains(t, loggerEntry.Text, "client type test-client-type")
}

func TestLoggingRoundTripperTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serverURL := "http://" + ln.Addr().String()
	_ = ln.Close()

	logger := logtest.NewRecorder()
	cfg := NewConfig()
	cfg.Log.Enabled = true
	client := MustNewWithOpts(cfg, Opts{UserAgent: "test-agent", ClientType: "test-client-type"})
	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	require.Error(t, err)
	require.Nil(t, r)
	require.NotEmpty(t, logger.Entries())

	loggerEntry := logger.Entries()[0]
	require.Contains(t, loggerEntry.Text, "client http request POST "+serverURL+" failed")
	require.Contains(t, loggerEntry.Text, "err dial tcp "+ln.Addr().String()+": connect: connection refused")
	require.NotContains(t, loggerEntry.Text, "status code")
}

func TestLoggingRoundTripperModes(t *testing.T) {
	makeClientAndServer := func(t *testing.T, mode LoggingMode, status int) (*http.Client, *httptest.Server) {
		t.Helper()
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(status)
		}))
		t.Cleanup(server.Close)
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-client-type", LoggingRoundTripperOpts{Mode: mode})
		return &http.Client{Transport: rt}, server
	}

	doRequest := func(t *testing.T, client *http.Client, url string) *logtest.Recorder {
		t.Helper()
		logger := logtest.NewRecorder()
		ctx := middleware.NewContextWithLogger(context.Background(), logger)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		require.NoError(t, err)
		r, err := client.Do(req)
		require.NoError(t, err)
		require.NoError(t, r.Body.Close())
		return logger
	}

	t.Run("mode none disables logging", func(t *testing.T) {
		client, server := makeClientAndServer(t, LoggingModeNone, http.StatusInternalServerError)
		logger := doRequest(t, client, server.URL)
		require.Empty(t, logger.Entries())
	})

	t.Run("mode failed skips successful requests", func(t *testing.T) {
		client, server := makeClientAndServer(t, LoggingModeFailed, http.StatusOK)
		logger := doRequest(t, client, server.URL)
		require.Empty(t, logger.Entries())
	})

	t.Run("mode failed logs failed requests", func(t *testing.T) {
		client, server := makeClientAndServer(t, LoggingModeFailed, http.StatusInternalServerError)
		logger := doRequest(t, client, server.URL)
		require.NotEmpty(t, logger.Entries())
		require.Contains(t, logger.Entries()[0].Text, "status code 500")
	})
}

func TestLoggingRoundTripperSlowRequestThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := logtest.NewRecorder()
	rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-client-type", LoggingRoundTripperOpts{
		SlowRequestThreshold: time.Hour,
	})
	client := &http.Client{Transport: rt}
	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, r.Body.Close())
	require.Empty(t, logger.Entries())
}
