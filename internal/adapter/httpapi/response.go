package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"redditstudy/internal/shared"
)

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	RequestID string   `json:"request_id"`
	Error     apiError `json:"error"`
}

// statusOf maps an error kind to an HTTP status.
func statusOf(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindRateLimited:
		return http.StatusTooManyRequests
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindDependencyFailure:
		return http.StatusBadGateway
	case shared.KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func logLevelOf(kind shared.Kind) slog.Level {
	switch kind {
	case shared.KindNotFound, shared.KindCanceled:
		return slog.LevelDebug
	case shared.KindConflict:
		return slog.LevelInfo
	case shared.KindValidation, shared.KindUnauthorized, shared.KindRateLimited:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// respondError writes the error envelope. Internal details of unclassified
// errors are logged, not returned.
func (s *Server) respondError(c *gin.Context, err error) {
	kind := shared.KindOf(err)
	msg := err.Error()
	if kind == shared.KindUnknown || kind == shared.KindInternal {
		msg = "internal error"
	}
	s.logger.Log(c.Request.Context(), logLevelOf(kind), "request failed",
		"path", c.Request.URL.Path,
		"kind", kind,
		"error", err,
		"request_id", c.GetString(ctxKeyRequestID),
	)
	c.AbortWithStatusJSON(statusOf(kind), errorResponse{
		RequestID: c.GetString(ctxKeyRequestID),
		Error:     apiError{Kind: kind.String(), Message: msg},
	})
}

// bindError marks gin binding errors as validation failures.
func bindError(err error) error {
	if errors.Is(err, shared.ErrValidation) {
		return err
	}
	return shared.MarkKind(err, shared.KindValidation)
}
