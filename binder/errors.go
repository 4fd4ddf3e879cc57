package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInvalidHeader        = errors.New("invalid header value")
	ErrInvalidTarget        = errors.New("bind target must be a non-nil pointer to a struct")

	// ErrBinderNotApplicable lets a binder step aside, e.g. a JSON binder on
	// a request without a body. The handler moves on to the next binder.
	ErrBinderNotApplicable = errors.New("binder not applicable")
)
