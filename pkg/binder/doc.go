// Package binder decodes HTTP requests into typed structs for handler.Wrap.
//
//	type CheckoutRequest struct {
//	    UserEmail string `json:"user_email"`
//	    PlanID    int64  `json:"plan_id"`
//	}
//
//	h := handler.Wrap(completeCheckout, handler.WithBinders[handler.Context, CheckoutRequest](binder.JSON()))
//
// JSON decodes strictly: unknown fields, trailing data, and bodies over
// DefaultMaxJSONSize are rejected. Query binds URL parameters using `query` tags
// and supports strings, numbers, bools, pointers and comma-separated slices.
package binder
