package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"olie/internal/board"
	"olie/internal/events"
	"olie/internal/snapshot"
	"olie/internal/storage/sqlite"
)

const requestIDHeader = "X-Request-ID"

// Server provides HTTP handlers for the board service.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	boards    *board.Registry
	hub       *events.Hub
	exporter  *snapshot.Exporter
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured. hub and exporter
// may be nil, which disables the event stream and snapshots respectively.
func New(store *sqlite.Store, boards *board.Registry, hub *events.Hub, exporter *snapshot.Exporter, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	srv := &Server{
		engine:    router,
		store:     store,
		boards:    boards,
		hub:       hub,
		exporter:  exporter,
		logger:    logger,
		staticDir: staticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/events", s.handleEvents)

		boards := api.Group("/boards")
		{
			boards.GET("", s.handleListBoards)
			boards.POST("", s.handleCreateBoard)
			boards.PUT(":id", s.handleUpdateBoard)
			boards.DELETE(":id", s.handleDeleteBoard)
			boards.GET(":id/board", s.handleGetPartition)
			boards.POST(":id/reload", s.handleReload)
			boards.POST(":id/drops", s.handleDrop)
			boards.GET(":id/cards", s.handleListCards)
			boards.POST(":id/cards", s.handleCreateCard)
			boards.POST(":id/snapshot", s.handleSnapshot)
		}

		api.PUT("/cards/:id", s.handleUpdateCard)
		api.DELETE("/cards/:id", s.handleDeleteCard)
	}

	s.mountStatic()
}

// handleHealth reports readiness once the database answers.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger tags each request with an id and logs API calls once they complete.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		if c.FullPath() == "/api/healthz" {
			return
		}
		logger.Info("request",
			slog.String("request_id", id),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrMoveReverted),
		errors.Is(err, board.ErrStaleDrop),
		errors.Is(err, sqlite.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, sqlite.ErrNotFound), errors.Is(err, board.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, sqlite.ErrInvalid),
		errors.Is(err, board.ErrUnknownColumn),
		errors.Is(err, board.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondDomainError picks the status for err with statusFor.
func (s *Server) respondDomainError(c *gin.Context, err error) {
	s.respondError(c, statusFor(err), err)
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
