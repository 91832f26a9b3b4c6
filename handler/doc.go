// Package handler turns typed request handlers into http.HandlerFunc values.
//
// A HandlerFunc receives a request already decoded by binders and returns a
// Response. Wrap runs the binders, the decorators and the handler, then renders
// the response:
//
//	type historyRequest struct {
//		Email string `query:"email"`
//	}
//
//	func history(ctx handler.Context, req historyRequest) handler.Response {
//		subs, err := engine.History(ctx, req.Email)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(subs)
//	}
//
//	r.Get("/subscriptions/history", handler.Wrap(history,
//		handler.WithBinders[handler.Context, historyRequest](binder.Query()),
//		handler.WithErrorHandler[handler.Context, historyRequest](handler.NewErrorHandler(log)),
//	))
//
// Every JSON body uses the JSONResponse envelope. Errors carry an HTTPError
// somewhere in their chain to pick the status code; any other error becomes a
// 500 whose message is not exposed to the client.
package handler
