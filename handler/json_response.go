package handler

import (
	"encoding/json"
	"errors"
	"net/http"
)

// JSONResponse is the envelope for every JSON body.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j *jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

// WithJSONStatus overrides the status code.
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

// WithJSONMeta attaches metadata, such as counts, to the envelope.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) { r.body.Meta = meta }
}

// JSON responds 200 with v as data.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONResponse{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError responds with an error envelope. An HTTPError in err's chain sets the
// status and code; anything else is a 500 with a generic message so internal
// details never reach the client.
func JSONError(err error, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusInternalServerError}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		r.status = httpErr.Code
		r.body.Error = &ErrorDetail{Code: httpErr.Key, Message: publicMessage(err, httpErr)}
	} else {
		r.body.Error = &ErrorDetail{Code: ErrInternalServerError.Key, Message: http.StatusText(http.StatusInternalServerError)}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// publicMessage exposes the full chain for client errors only.
func publicMessage(err error, httpErr HTTPError) string {
	if httpErr.Code >= http.StatusInternalServerError {
		return http.StatusText(httpErr.Code)
	}
	return err.Error()
}
