// Package api exposes marathon practice and question-bank management over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/examprep/internal/config"
	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/importer"
	"github.com/conorfennell/examprep/internal/logger"
	"github.com/conorfennell/examprep/internal/marathon"
)

// Marathon is the practice scheduler.
type Marathon interface {
	StartSession(ctx context.Context, userID string, topicIDs []string, subjectID string) (*domain.Session, error)
	NextQuestion(ctx context.Context, sessionID string) (*marathon.NextResult, error)
	SubmitAnswer(ctx context.Context, in marathon.AnswerInput) (*marathon.AnswerResult, error)
	ExitSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error)
}

// QuestionBank serves question content and topics.
type QuestionBank interface {
	Get(ctx context.Context, id string) (*domain.Question, error)
	ListTopics(ctx context.Context) ([]domain.Topic, error)
}

// SessionLister lists a user's sessions.
type SessionLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error)
}

// Sources manages question-bank sources.
type Sources interface {
	AddSource(ctx context.Context, path string) (*domain.Source, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
	RemoveSource(ctx context.Context, id int64) error
	RunSync(ctx context.Context) (*importer.Report, error)
}

// Deps holds the dependencies for the HTTP server.
type Deps struct {
	Marathon  Marathon
	Questions QuestionBank
	Sessions  SessionLister
	Sources   Sources
}

// Server routes API requests to the services.
type Server struct {
	deps   Deps
	log    *logger.Logger
	router *gin.Engine
}

// NewServer creates and configures a new server.
func NewServer(deps Deps, cfg config.ServerConfig, log *logger.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	s := &Server{
		deps:   deps,
		log:    log.With("service", "API"),
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), requestLogger(s.log))
	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(corsMiddleware(cfg.CORSOrigins))
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := s.router.Group("/api")
	api.GET("/topics", s.handleListTopics())

	sessions := api.Group("/marathon/sessions", requireUser())
	sessions.POST("", s.handleStartSession())
	sessions.GET("", s.handleListSessions())
	sessions.GET("/:id", s.handleGetSession())
	sessions.GET("/:id/next", s.handleNextQuestion())
	sessions.POST("/:id/answers", s.handleSubmitAnswer())
	sessions.POST("/:id/exit", s.handleExitSession())
	sessions.GET("/:id/summary", s.handleGetSummary())

	// Source management routes
	api.GET("/sources", s.handleListSources())
	api.POST("/sources", s.handleAddSource())
	api.DELETE("/sources/:id", s.handleDeleteSource())
	api.POST("/sync", s.handleSync())
}
