// Package server exposes the event bus over HTTP: a Server-Sent Events
// stream for live lifecycle events plus a JSON history endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"thoth/internal/config"
	"thoth/internal/eventbus"
	"thoth/internal/logging"
)

const (
	defaultHistoryLimit = 100
	heartbeatInterval   = 15 * time.Second
	streamBufferSize    = 64
)

// Server streams orchestrator lifecycle events to HTTP clients.
type Server struct {
	cfg    config.ServerConfig
	bus    *eventbus.Bus
	engine *gin.Engine
	http   *http.Server
	logger logging.Logger
}

// New builds the server and its routes. The bus is borrowed, never owned.
func New(cfg config.ServerConfig, bus *eventbus.Bus, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
	}))

	s := &Server{
		cfg:    cfg,
		bus:    bus,
		engine: engine,
		logger: logging.OrNop(logger),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	api := s.engine.Group("/api/v1")
	api.GET("/events/history", s.handleHistory)
	api.GET("/events/stream", s.handleStream)
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Shutdown is called. ErrServerClosed is swallowed so a
// graceful stop reads as a clean return.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	s.logger.Info("event stream server listening on %s", addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": s.bus.History(limit)})
}

// handleStream pushes one JSON object per event over SSE. A client that
// cannot keep up loses events rather than slowing the bus.
func (s *Server) handleStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	events := make(chan eventbus.Event, streamBufferSize)
	unsubscribe := s.bus.Subscribe("*", func(ev eventbus.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	fmt.Fprint(c.Writer, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("serialize event %s: %v", ev.Type, err)
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
