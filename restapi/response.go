/*
Copyright © 2019-2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MohamedNasirS/go-throttlekit/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// Response messages.
// We are using "var" here because some services may want to use different messages.
var (
	ErrMessageInternal         = "Internal error."
	ErrMessageNotFound         = "Not found."
	ErrMessageMethodNotAllowed = "Method not allowed."
	ErrMessageTooManyRequests  = "Too many requests."
	ErrMessageUnavailable      = "Service temporarily unavailable."
)

// Response is the JSON envelope of all API responses.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// RetryAfter is the number of seconds after which a throttled request may be retried.
	// It is populated only in throttled (429) responses.
	RetryAfter int `json:"retryAfter,omitempty"`

	Data interface{} `json:"data,omitempty"`
}

// Does JSON marshaling with disabled HTML escaping
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(v)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

// RespondJSON sends response with 200 HTTP status code, does JSON marshaling of data and writes result in response's body.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON sends a response with the passed status code and sets the "Content-Type"
// to "application/json" if it's not already set. It performs JSON marshaling of the data and
// writes the result to the response's body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}

	respJSON, err := jsonMarshal(respData)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil {
		if logger != nil {
			logger.Error("error while writing response body", log.Error(err))
		}
	}
}

// RespondData sends a response with 200 HTTP status code and the passed data in the successful envelope.
func RespondData(rw http.ResponseWriter, data interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, Response{Success: true, Data: data}, logger)
}

// RespondNoContent sends a response with 204 HTTP status code and empty body.
func RespondNoContent(rw http.ResponseWriter) {
	rw.WriteHeader(http.StatusNoContent)
}

// RespondError sets HTTP status code in response and writes the failure envelope
// ({"success": false, "message": "..."}) in body in JSON format.
// Also, it logs info (status code and message) about error.
func RespondError(rw http.ResponseWriter, httpStatusCode int, message string, logger log.FieldLogger) {
	logAndCollectMetricsForError(httpStatusCode, message, logger)
	RespondCodeAndJSON(rw, httpStatusCode, Response{Success: false, Message: message}, logger)
}

// RespondInternalError sends response with 500 HTTP status code and internal error in body in JSON format.
func RespondInternalError(rw http.ResponseWriter, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, ErrMessageInternal, logger)
}

// RespondThrottled sends response with 429 HTTP status code, the Retry-After header,
// and the failure envelope extended with the retryAfter field in body in JSON format.
func RespondThrottled(rw http.ResponseWriter, message string, retryAfterSeconds int, logger log.FieldLogger) {
	if message == "" {
		message = ErrMessageTooManyRequests
	}
	rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	logAndCollectMetricsForError(http.StatusTooManyRequests, message, logger)
	RespondCodeAndJSON(rw, http.StatusTooManyRequests, Response{
		Success:    false,
		Message:    message,
		RetryAfter: retryAfterSeconds,
	}, logger)
}

// RespondMalformedRequestError responds with the status code and message carried by the passed MalformedRequestError.
func RespondMalformedRequestError(rw http.ResponseWriter, reqErr *MalformedRequestError, logger log.FieldLogger) {
	RespondError(rw, reqErr.HTTPStatusCode, reqErr.Message, logger)
}

// RespondMalformedRequestOrInternalError calls RespondMalformedRequestError (if passed error is *MalformedRequestError)
// or RespondInternalError (in other cases).
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if errors.As(err, &reqErr) {
		RespondMalformedRequestError(rw, reqErr, logger)
		return
	}
	RespondInternalError(rw, logger)
}

func logAndCollectMetricsForError(httpStatusCode int, message string, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("error in response",
			log.Int("status_code", httpStatusCode), log.String("error_message", message))
	}
	if metricsResponseErrors != nil {
		metricsResponseErrors.With(prometheus.Labels{
			metricsLabelResponseErrorStatusCode: strconv.Itoa(httpStatusCode),
		}).Inc()
	}
}
