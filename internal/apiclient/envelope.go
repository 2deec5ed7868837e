package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

// Envelope is the response body shape of the analytics endpoints.
// Count is set by paginated list endpoints only.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// DecodeEnvelope decodes the raw body of resp. An envelope reporting
// success=false yields an error matching serviceerr.ErrUnsuccessful.
// Bodies without a success field are taken as bare data.
func DecodeEnvelope[T any](resp *Response) (Envelope[T], error) {
	var head struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Raw, &head); err != nil || head.Success == nil {
		var data T
		if err := json.Unmarshal(resp.Raw, &data); err != nil {
			return Envelope[T]{}, errors.Join(serviceerr.ErrDecode, fmt.Errorf("decoding response data: %w", err))
		}

		return Envelope[T]{Success: true, Data: data}, nil
	}

	var env Envelope[T]
	if err := json.Unmarshal(resp.Raw, &env); err != nil {
		return Envelope[T]{}, errors.Join(serviceerr.ErrDecode, fmt.Errorf("decoding response envelope: %w", err))
	}

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = serviceerr.ErrUnsuccessful.Description
		}

		return env, serviceerr.New(serviceerr.CodeUnsuccessful, msg)
	}

	return env, nil
}

// Get issues a GET for path and decodes the envelope.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) (Envelope[T], error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return Envelope[T]{}, err
	}

	return DecodeEnvelope[T](resp)
}
