// Package httpapi serves the read-only status API and the Telegram webhook.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"redditstudy/internal/study"
)

// Store is the read side of study.Store.
type Store interface {
	GetStudy(ctx context.Context, id string) (study.Study, error)
	ListStudies(ctx context.Context, limit int) ([]study.Study, error)
	ListSamples(ctx context.Context, studyID string) ([]study.Sample, error)
	CountSnapshots(ctx context.Context, studyID string) (int, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProgressFunc returns the live study progress.
type ProgressFunc func() study.Progress

// Option configures optional Server dependencies.
type Option func(*Server)

// WithPinger makes /healthz check storage.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithWebhook mounts h at POST /telegram/webhook.
func WithWebhook(h http.Handler) Option {
	return func(s *Server) { s.webhook = h }
}

// Server is the HTTP API.
type Server struct {
	engine    *gin.Engine
	store     Store
	progress  ProgressFunc
	pinger    Pinger
	webhook   http.Handler
	logger    *slog.Logger
	startTime time.Time
}

// New creates a Server with all routes registered.
func New(st Store, progress ProgressFunc, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    gin.New(),
		store:     st,
		progress:  progress,
		logger:    logger.With("component", "httpapi"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.Use(requestID(), accessLog(s.logger), gin.CustomRecovery(s.recovered))

	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/studies", s.handleListStudies)
	api.GET("/studies/:id", s.handleGetStudy)
	api.GET("/progress", s.handleProgress)

	if s.webhook != nil {
		s.engine.POST("/telegram/webhook", gin.WrapH(s.webhook))
	}
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.logger.Error("handler panicked", "path", c.Request.URL.Path, "panic", err, "request_id", c.GetString(ctxKeyRequestID))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
		RequestID: c.GetString(ctxKeyRequestID),
		Error:     apiError{Kind: "Internal", Message: "internal error"},
	})
}
