// Package server is the HTTP front-end: trigger a cycle, health, metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koran-teknologi/koran/internal/ingest"
	"github.com/koran-teknologi/koran/internal/metrics"
	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/pkg/logx"
)

const (
	defaultDays     = 1
	shutdownTimeout = 30 * time.Second
)

// Runner runs one ingestion cycle. *ingest.Runner implements it.
type Runner interface {
	Run(ctx context.Context, req ingest.RunRequest) (ingest.RunResult, error)
}

// AfterRunFunc is called after every triggered cycle, including failed ones.
type AfterRunFunc func(ctx context.Context, started time.Time, since time.Time, res ingest.RunResult, err error)

type Config struct {
	Version string
	Logger  logx.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
	// AfterRun is optional.
	AfterRun AfterRunFunc
}

type Server struct {
	runner   Runner
	version  string
	log      logx.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	afterRun AfterRunFunc
	engine   *gin.Engine

	// runMu serializes cycles so concurrent requests never double-send.
	runMu sync.Mutex
}

func New(runner Runner, cfg Config) (*Server, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	s := &Server{
		runner:   runner,
		version:  cfg.Version,
		log:      cfg.Logger.With(logx.String("comp", "http")),
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		afterRun: cfg.AfterRun,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/health", s.health)
	r.POST("/send-posts", s.sendPosts)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Version: s.version})
}

type sendPostsRequest struct {
	Days   *int `json:"days"`
	DryRun bool `json:"dry_run"`
}

type sendPostsResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Posts   []source.Post `json:"posts"`
}

func (s *Server) sendPosts(c *gin.Context) {
	var req sendPostsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, sendPostsResponse{Status: "error", Message: fmt.Sprintf("invalid request: %v", err), Posts: []source.Post{}})
			return
		}
	}
	days := defaultDays
	if req.Days != nil {
		days = *req.Days
	}
	if days < 0 {
		c.JSON(http.StatusBadRequest, sendPostsResponse{Status: "error", Message: "days must not be negative", Posts: []source.Post{}})
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx := c.Request.Context()
	started := s.now()
	since := ingest.Lookback(started, days)
	res, err := s.runner.Run(ctx, ingest.RunRequest{Since: since, DryRun: req.DryRun})
	if s.afterRun != nil {
		s.afterRun(context.WithoutCancel(ctx), started, since, res, err)
	}
	if s.metrics != nil && !res.Since.IsZero() {
		s.metrics.ObserveCycle("serve", s.now())
	}

	posts := res.Posts
	if posts == nil {
		posts = []source.Post{}
	}

	if err != nil {
		s.log.Error("send-posts failed", logx.Int("days", days), logx.Bool("dry_run", req.DryRun), logx.Err(err))
		c.JSON(http.StatusInternalServerError, sendPostsResponse{Status: "error", Message: err.Error(), Posts: posts})
		return
	}

	var msg string
	switch {
	case len(posts) == 0:
		msg = "No new posts found"
	case req.DryRun:
		msg = fmt.Sprintf("Found %d posts (dry run)", len(posts))
	default:
		msg = fmt.Sprintf("Successfully sent %d posts", len(posts))
	}
	c.JSON(http.StatusOK, sendPostsResponse{Status: "success", Message: msg, Posts: posts})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready is called once the listener is bound.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func()) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, ready)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, ready func()) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	if ready != nil {
		ready()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
