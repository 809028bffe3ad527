// Package outreach fires the execute-outreach endpoint for campaigns with follow-ups ready to send.
package outreach

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/talent-outreach/internal/logger"
	"github.com/spigell/talent-outreach/internal/metrics"
)

const (
	userAgent      = "spigell/talent-outreach"
	defaultTimeout = 10 * time.Second
	defaultLimit   = 50

	ResultSent     = "sent"
	ResultFailed   = "failed"
	ResultDisabled = "disabled"
)

type Config struct {
	URL            string        `mapstructure:"url"`
	ServiceKey     string        `mapstructure:"service-key"`
	ServiceKeyFile string        `mapstructure:"service-key-file"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RatePerSecond  float64       `mapstructure:"rate-per-second"`
	Limit          int           `mapstructure:"limit"`
}

// Request is the body of the execute-outreach call.
type Request struct {
	CampaignID     string `json:"campaign_id"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Limit          int    `json:"limit"`
}

type Client struct {
	HTTPClient *http.Client
	URL        string
	UserAgent  string

	serviceKey string
	limit      int
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

// New returns a client. An empty URL gives a client that only logs.
func New(cfg Config, serviceKey string, m *metrics.Metrics, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		URL:        cfg.URL,
		UserAgent:  userAgent,
		serviceKey: serviceKey,
		limit:      cfg.Limit,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.WithFields(log),
		metrics:    m,
	}
}

// Dispatch triggers outreach in the background. Failures are logged and never retried.
func (c *Client) Dispatch(_ context.Context, req Request) {
	if req.Limit <= 0 {
		req.Limit = c.limit
	}

	log := logger.WithFields(c.logger, logger.DomainFields(req.OrganizationID, req.CampaignID)...)
	if c.URL == "" {
		log.Debug("outreach trigger is not configured, skipping")
		c.metrics.Dispatch(ResultDisabled)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		// The caller's request is finished by the time this runs.
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("outreach trigger rate limited", zap.Error(err))
			c.metrics.Dispatch(ResultFailed)
			return
		}

		if err := c.post(ctx, req); err != nil {
			log.Warn("outreach trigger failed", zap.Error(err))
			c.metrics.Dispatch(ResultFailed)
			return
		}

		log.Info("outreach trigger sent", zap.String("user_id", req.UserID))
		c.metrics.Dispatch(ResultSent)
	}()
}

// Wait blocks until every in-flight dispatch has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}
