package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/ingest"
	"github.com/docmentor/docmentor/internal/retriever"
)

// kindStatus maps error kinds to HTTP statuses
var kindStatus = map[string]int{
	"DocumentNotFound":     http.StatusNotFound,
	"AlreadyExists":        http.StatusConflict,
	"DimensionMismatch":    http.StatusBadRequest,
	"PositionOutOfRange":   http.StatusBadRequest,
	"UnknownBackend":       http.StatusInternalServerError,
	"ConsistencyViolation": http.StatusInternalServerError,
}

// statusFor returns the HTTP status and kind name for err
func statusFor(err error) (int, string) {
	kind := domain.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}

	switch {
	case errors.Is(err, retriever.ErrInvalidTopK), errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusBadRequest, "InvalidArgument"
	case errors.Is(err, errPathNotAllowed):
		return http.StatusForbidden, "PermissionDenied"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "DocumentNotFound"
	}
	return http.StatusInternalServerError, kind
}

// abortWithError writes the error response. Server-side failures get a
// generic message; the detail only goes to the log.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status, kind := statusFor(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", c.GetString("request_id"),
			"kind", kind,
			"error", err,
		)
		message = "internal error"
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":      kind,
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":      "InvalidArgument",
		"message":    err.Error(),
		"request_id": c.GetString("request_id"),
	})
}
