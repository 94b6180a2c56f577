/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	golog "log"
	"net/http"
	"net/http/httptest"
	"path"

	"github.com/MohamedNasirS/go-throttlekit/log"
)

func ExampleRespondJSON() {
	http.HandleFunc("/endpoint", func(w http.ResponseWriter, r *http.Request) {
		type User struct {
			Name string `json:"name"`
			Age  int    `json:"age"`
		}
		RespondJSON(w, &User{Name: "Bob", Age: 12}, log.NewDisabledLogger())
	})
}

func ExampleRespondError() {
	http.HandleFunc("/endpoint", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			RespondError(w, http.StatusMethodNotAllowed, ErrMessageMethodNotAllowed, log.NewDisabledLogger())
			return
		}
	})
}

func ExampleRespondThrottled() {
	http.HandleFunc("/endpoint", func(w http.ResponseWriter, r *http.Request) {
		// Send 429 with the Retry-After header and {"success": false, ..., "retryAfter": 30} in the body.
		RespondThrottled(w, "Too many requests, please try again later.", 30, log.NewDisabledLogger())
	})
}

func ExampleDecodeRequestJSON() {
	type User struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	http.HandleFunc("/endpoint", func(w http.ResponseWriter, r *http.Request) {
		var user User
		if err := DecodeRequestJSON(r, &user); err != nil {
			logger := log.NewDisabledLogger()

			var reqErr *MalformedRequestError
			if errors.As(err, &reqErr) {
				RespondMalformedRequestError(w, reqErr, logger)
				return
			}

			RespondInternalError(w, logger)
			return
		}
	})
}

// ExampleServiceClient is example for DoRequestAndUnmarshalJSON
type ExampleServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     log.FieldLogger
}

func NewExampleClient(baseURL string, httpClient *http.Client, logger log.FieldLogger) *ExampleServiceClient {
	return &ExampleServiceClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *ExampleServiceClient) url(requestPath string) string {
	return path.Join(c.baseURL, requestPath)
}

type ExampleClientResponse struct {
	ID string
}

func (c *ExampleServiceClient) Create(event interface{}) (*ExampleClientResponse, error) {
	req, err := NewJSONRequest(http.MethodPost, c.url("/events"), event)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var res *ExampleClientResponse
	err = DoRequestAndUnmarshalJSON(c.httpClient, req, &res, c.logger)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return res, err
}

func (c *ExampleServiceClient) Delete(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.url(fmt.Sprintf("/events/%s", id)), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	err = DoRequestAndUnmarshalJSON(c.httpClient, req, nil, c.logger)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	return err
}

func ExampleClient() {
	logger := log.NewDisabledLogger()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			RespondData(rw, ExampleClientResponse{"123"}, logger)
		case r.Method == http.MethodDelete:
			RespondNoContent(rw)
		default:
			RespondError(rw, http.StatusMethodNotAllowed, ErrMessageMethodNotAllowed, logger)
		}
	}))
	defer server.Close()

	client := NewExampleClient(path.Join(server.URL, "/api/v1"), &http.Client{}, logger)

	event := struct {
		Name string
	}{
		Name: "Alarm",
	}
	resp, err := client.Create(&event)
	if err != nil {
		golog.Fatal(err)
		return
	}
	err = client.Delete(resp.ID)
	if err != nil {
		golog.Fatal(err)
		return
	}
}
