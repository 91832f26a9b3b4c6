package binder

import "net/http"

// Query returns a binder that fills struct fields from URL query parameters
// using `query` tags. Fields without a tag bind to their lowercased name.
//
//	type HistoryRequest struct {
//	    Email string `query:"email"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
