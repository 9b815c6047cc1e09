package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/examprep/internal/domain"
)

type addSourceRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleListSources() gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := s.deps.Sources.ListSources(c.Request.Context())
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		if sources == nil {
			sources = []domain.Source{}
		}
		respondOK(c, gin.H{"sources": sources})
	}
}

// handleAddSource registers a local directory or git URL.
func (s *Server) handleAddSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		src, err := s.deps.Sources.AddSource(c.Request.Context(), req.Path)
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		c.JSON(http.StatusCreated, src)
	}
}

func (s *Server) handleDeleteSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		if err := s.deps.Sources.RemoveSource(c.Request.Context(), id); err != nil {
			s.respondFailure(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleSync runs a sync in the foreground and returns its report.
func (s *Server) handleSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := s.deps.Sources.RunSync(c.Request.Context())
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		respondOK(c, report)
	}
}
