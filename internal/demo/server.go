// internal/demo/server.go

// Package demo serves the bundled chat widget that chatprobe tests by default.
package demo

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

const (
	minDelay          = 500 * time.Millisecond
	maxDelay          = 1000 * time.Millisecond
	readHeaderTimeout = 5 * time.Second
	maxMessageLength  = 2000
)

//go:embed static
var assets embed.FS

// DelayFunc picks how long the bot "types" before answering.
type DelayFunc func() time.Duration

// RandomDelay waits between 500ms and 1s, like a person would.
func RandomDelay() time.Duration {
	return minDelay + rand.N(maxDelay-minDelay+1)
}

type replyRequest struct {
	Message string `json:"message" binding:"required"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// Server hosts the demo widget page and its reply endpoint.
type Server struct {
	addr   string
	logger *zap.Logger
	delay  DelayFunc

	mu   sync.Mutex
	srv  *http.Server
	done chan error
}

// Option configures a Server.
type Option func(*Server)

// WithDelay replaces the random reply delay.
func WithDelay(d DelayFunc) Option {
	return func(s *Server) { s.delay = d }
}

// New builds a server for cfg.Addr.
func New(cfg config.DemoConfig, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		addr:   cfg.Addr,
		logger: logger.Named("demo"),
		delay:  RandomDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the gin router. It is safe to mount in httptest.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	static, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	router.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(static))
	})
	router.StaticFS("/static", http.FS(static))
	router.POST("/api/reply", s.reply)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func (s *Server) reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len(msg) > maxMessageLength {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too long"})
		return
	}

	if d := s.delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.Request.Context().Done():
			return
		}
	}
	c.JSON(http.StatusOK, replyResponse{Reply: Reply(msg)})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}

// Start listens on the configured address and serves in the background. It
// returns the base URL of the widget page. Use port 0 to pick a free port.
func (s *Server) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return "", errors.New("demo server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.done = make(chan error, 1)

	url := fmt.Sprintf("http://%s/", ln.Addr().String())
	s.logger.Info("Demo widget listening.", zap.String("url", url))
	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}(s.srv, s.done)
	return url, nil
}

// Done delivers the serve error, or nil after a clean shutdown.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops the server and waits for in-flight replies.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down demo server: %w", err)
	}
	return <-done
}
