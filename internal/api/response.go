package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/examprep/internal/importer"
	"github.com/conorfennell/examprep/internal/marathon"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondFailure maps service errors to a status and code. Server-side
// failures are logged and answered with a generic message.
func (s *Server) respondFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, marathon.ErrNoTopicsSelected):
		respondError(c, http.StatusBadRequest, "no_topics_selected", err)
	case errors.Is(err, marathon.ErrNoQuestionsAvailable):
		respondError(c, http.StatusBadRequest, "no_questions_available", err)
	case errors.Is(err, marathon.ErrSessionNotActive):
		respondError(c, http.StatusBadRequest, "session_not_active", err)
	case errors.Is(err, marathon.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, marathon.ErrInvalidInput), errors.Is(err, importer.ErrInvalidSource):
		respondError(c, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, marathon.ErrNotFound), errors.Is(err, importer.ErrSourceNotFound):
		respondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, marathon.ErrConflict):
		respondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, importer.ErrSourceExists):
		respondError(c, http.StatusConflict, "source_exists", err)
	case errors.Is(err, marathon.ErrStorage):
		s.log.Error("Storage failure", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusServiceUnavailable, "storage_unavailable", errors.New("storage is unavailable"))
	default:
		s.log.Error("Unhandled error", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
	}
}
