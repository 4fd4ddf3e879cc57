package handler

import (
	"log/slog"
	"net/http"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/requestid"
)

// NewErrorHandler returns an ErrorHandler that logs the failure and renders
// it as a JSON error envelope. Client errors log at warn, the rest at error.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx Context, err error) {
		status, detail := errorToDetail(err)
		r := ctx.Request()

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		if werr := (jsonResponse{status: status, body: Envelope{Error: &detail}}).Render(ctx.ResponseWriter(), r); werr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(werr))
		}
	}
}
