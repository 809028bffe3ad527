// Package api exposes the matching pass and the follow-up scheduler over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/followup"
	"github.com/spigell/talent-outreach/internal/logger"
	"github.com/spigell/talent-outreach/internal/matching"
	"github.com/spigell/talent-outreach/internal/metrics"
)

const (
	defaultAddr         = ":8080"
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 2 * time.Minute
)

type Config struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
}

type Matcher interface {
	Run(ctx context.Context, req matching.Request) (*matching.Response, error)
}

type Scheduler interface {
	Run(ctx context.Context, req followup.Request) (*followup.Response, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Matcher   Matcher
	Scheduler Scheduler
	DB        Pinger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	log := logger.WithFields(deps.Logger)
	engine := NewRouter(deps)

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: log,
	}
}

// NewRouter builds the gin engine with every route.
func NewRouter(deps Deps) *gin.Engine {
	log := logger.WithFields(deps.Logger)
	h := &handler{matcher: deps.Matcher, scheduler: deps.Scheduler, db: deps.DB, logger: log}

	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware(), loggingMiddleware(log), metricsMiddleware(deps.Metrics))

	for _, path := range []string{"/functions/v1/analyzeCampaignProject", "/api/match"} {
		engine.POST(path, h.match)
	}
	for _, path := range []string{"/functions/v1/processOutreachScheduler", "/api/outreach/scheduler"} {
		engine.POST(path, h.schedule)
	}
	engine.GET("/healthz", h.health)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return engine
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
