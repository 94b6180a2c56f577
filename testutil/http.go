/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type responseEnvelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	RetryAfter int         `json:"retryAfter"`
	Data       interface{} `json:"data"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains the failure envelope
// ({"success": false, "message": "..."}).
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrMessage string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrMessage)
}

// RequireErrorInResponse asserts that passing http.Response contains the failure envelope.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrMessage string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrMessage)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrMessage string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var respData responseEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&respData))
	require.False(t, respData.Success)
	require.Equal(t, wantErrMessage, respData.Message)
}

// RequireThrottledInRecorder asserts that passing httptest.ResponseRecorder contains the throttled (429) response:
// the Retry-After header and the failure envelope with the retryAfter field.
func RequireThrottledInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantErrMessage string, wantRetryAfter int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireThrottledInResponse(t, resp.Code, resp.Header(), resp.Body, wantErrMessage, wantRetryAfter)
}

// RequireThrottledInResponse asserts that passing http.Response contains the throttled (429) response.
func RequireThrottledInResponse(t require.TestingT, resp *http.Response, wantErrMessage string, wantRetryAfter int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireThrottledInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantErrMessage, wantRetryAfter)
}

func requireThrottledInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantErrMessage string, wantRetryAfter int,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, strconv.Itoa(wantRetryAfter), header.Get("Retry-After"))
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var respData responseEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&respData))
	require.False(t, respData.Success)
	require.Equal(t, wantErrMessage, respData.Message)
	require.Equal(t, wantRetryAfter, respData.RetryAfter)
}

// RequireSuccessDataInRecorder asserts that passing httptest.ResponseRecorder contains the successful envelope
// ({"success": true, "data": ...}) and its data field unmarshaled into dest is equal to the wanted value.
func RequireSuccessDataInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireSuccessDataInResponse(t, resp.Header(), resp.Body, want, dest)
}

// RequireSuccessDataInResponse asserts that passing http.Response contains the successful envelope.
func RequireSuccessDataInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireSuccessDataInResponse(t, resp.Header, resp.Body, want, dest)
}

func requireSuccessDataInResponse(t require.TestingT, header http.Header, body io.Reader, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	respData := responseEnvelope{Data: dest}
	require.NoError(t, json.Unmarshal(bodyBytes, &respData))
	require.True(t, respData.Success)
	require.Equal(t, want, dest)
}

// RequireEmptyBodyInRecorder asserts that passing httptest.ResponseRecorder contains empty body.
func RequireEmptyBodyInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireEmptyBodyInResponse(t, resp.Body)
}

// RequireEmptyBodyInResponse asserts that passing http.Response contains empty body.
func RequireEmptyBodyInResponse(t require.TestingT, resp *http.Response) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireEmptyBodyInResponse(t, resp.Body)
}

func requireEmptyBodyInResponse(t require.TestingT, body io.Reader) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, 0, len(bodyBytes))
}

// RequireJSONInRecorder asserts that passing httptest.ResponseRecorder contains the data in json format.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSONInResponse(t, resp.Header(), resp.Body, want, dest)
}

// RequireJSONInResponse asserts that passing http.Response contains the data in json format.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSONInResponse(t, resp.Header, resp.Body, want, dest)
}

func requireJSONInResponse(t require.TestingT, header http.Header, body io.Reader, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bodyBytes, dest))
	require.Equal(t, want, dest)
}

// RequireStringJSONInRecorder asserts that passing httptest.ResponseRecorder contains the json string.
func RequireStringJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireStringJSONInResponse(t, resp.Header(), resp.Body, want)
}

// RequireStringJSONInResponse asserts that passing http.Response contains the json string.
func RequireStringJSONInResponse(t require.TestingT, resp *http.Response, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireStringJSONInResponse(t, resp.Header, resp.Body, want)
}

func requireStringJSONInResponse(t require.TestingT, header http.Header, body io.Reader, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, want, string(bodyBytes))
}
