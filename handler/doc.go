// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request struct filled by the
// configured binders, and returns a Response. Wrap turns it into an
// http.HandlerFunc:
//
//	mux.Post("/billing/subscribe", handler.Wrap(subscribe,
//		handler.WithBinders[handler.Context, SubscribeRequest](binder.BindJSON()),
//		handler.WithErrorHandler[handler.Context, SubscribeRequest](handler.NewErrorHandler(log)),
//	))
//
// Responses are JSON envelopes ({"data": ...} or {"error": {...}}),
// redirects or bare statuses. HTTPError sets the status and error code of a
// failure; server errors never leak their message to the client.
package handler
