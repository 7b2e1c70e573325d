package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/coachgate/binder"
	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/requestid"
	"github.com/dmitrymomot/coachgate/pkg/validator"
)

// Classify maps err to its HTTP status and envelope detail.
func Classify(err error) (int, *ErrorDetail, map[string]any) {
	var verrs validator.Errors
	if errors.As(err, &verrs) {
		return ErrValidation.Code, &ErrorDetail{
			Code:    ErrValidation.Key,
			Message: "request validation failed",
			Details: verrs,
		}, nil
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, &ErrorDetail{Code: httpErr.Key, Message: msg}, httpErr.Meta
	}

	switch {
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return ErrUnsupportedMediaType.Code, &ErrorDetail{Code: ErrUnsupportedMediaType.Key, Message: err.Error()}, nil
	case errors.Is(err, binder.ErrBodyTooLarge):
		return ErrRequestTooLarge.Code, &ErrorDetail{Code: ErrRequestTooLarge.Key, Message: err.Error()}, nil
	case errors.Is(err, binder.ErrInvalidJSON), errors.Is(err, binder.ErrInvalidPath):
		return ErrBadRequest.Code, &ErrorDetail{Code: ErrBadRequest.Key, Message: "malformed request body"}, nil
	}

	return ErrInternal.Code, &ErrorDetail{Code: ErrInternal.Key, Message: "internal server error"}, nil
}

// RenderError writes the JSON error envelope for err.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail, meta := Classify(err)
	if id := requestid.FromContext(r.Context()); id != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["requestId"] = id
	}
	_ = jsonResponse{status: status, body: Envelope{Error: detail, Meta: meta}}.Render(w, r)
}

// NewErrorHandler logs client errors at WARN and server errors at ERROR, then renders them.
func NewErrorHandler[C Context](log *slog.Logger) ErrorHandler[C] {
	if log == nil {
		log = logger.Noop()
	}
	return func(ctx C, err error) {
		r := ctx.Request()
		status, _, _ := Classify(err)

		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("handler"),
		)

		RenderError(ctx.ResponseWriter(), r, err)
	}
}
