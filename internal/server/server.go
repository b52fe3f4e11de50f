// Package server exposes the provisioning API over HTTP: preview CRUD,
// setup-session steps, log retrieval, page generation, and a websocket
// status stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roseram/previewd/internal/ai"
	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/setup"
	"github.com/roseram/previewd/internal/storage"
	"github.com/roseram/previewd/internal/types"
)

// Config wires the server's collaborators.
type Config struct {
	Previews *preview.Manager
	Setup    *setup.Manager

	// Store backs the status fallback path and session listings. May be
	// nil, in which case those degrade gracefully.
	Store storage.Storage

	// Generator serves POST /api/generate. May be nil; the route then
	// reports the feature as unconfigured.
	Generator *ai.Generator

	// StatusPollInterval paces the websocket status stream. Zero means
	// 2s.
	StatusPollInterval time.Duration

	Logger zerolog.Logger
}

// Server is the HTTP front end.
type Server struct {
	previews  *preview.Manager
	setup     *setup.Manager
	store     storage.Storage
	generator *ai.Generator

	pollInterval time.Duration
	upgrader     websocket.Upgrader
	router       *gin.Engine
	log          zerolog.Logger
}

// New builds the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Previews == nil {
		return nil, errors.New("server: Previews manager is required")
	}
	if cfg.Setup == nil {
		return nil, errors.New("server: Setup manager is required")
	}
	interval := cfg.StatusPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	s := &Server{
		previews:  cfg.Previews,
		setup:     cfg.Setup,
		store:     cfg.Store,
		generator: cfg.Generator,

		pollInterval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Status streams carry no secrets beyond what the REST API
			// already exposes.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: cfg.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/previews", s.handleCreatePreview)
		api.GET("/previews", s.handleListPreviews)
		api.GET("/previews/:projectID/status", s.handlePreviewStatus)
		api.GET("/previews/:projectID/logs", s.handlePreviewLogs)
		api.DELETE("/previews/:projectID", s.handleDestroyPreview)

		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.POST("/sessions/:id/steps/:n", s.handleExecuteStep)
		api.DELETE("/sessions/:id", s.handleCancelSession)

		api.POST("/generate", s.handleGenerate)
	}

	router.GET("/ws/previews/:projectID", s.handleStatusStream)

	s.router = router
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then drains for up to 10s.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// credential extracts the bearer token, if any. An absent header means
// an anonymous credential, which only works for public repositories.
func credential(c *gin.Context) types.Credential {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth {
		// Not a bearer scheme.
		return types.Credential{}
	}
	return types.Credential{Token: strings.TrimSpace(token)}
}

// respondError maps the error taxonomy to status codes and the
// {success:false, error, details} shape.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	details := ""

	switch {
	case types.IsValidation(err):
		status = http.StatusBadRequest
	case types.IsPrecondition(err):
		status = http.StatusConflict
		var pe *types.PreconditionError
		if errors.As(err, &pe) {
			details = pe.Error()
		}
	case errors.Is(err, types.ErrCreateInProgress):
		status = http.StatusConflict
	case errors.Is(err, types.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrSessionTerminal):
		status = http.StatusConflict
	case types.IsTimeout(err):
		status = http.StatusGatewayTimeout
	}

	body := gin.H{"success": false, "error": err.Error()}
	if details != "" {
		body["details"] = details
	}
	c.JSON(status, body)
}
