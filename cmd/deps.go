package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/ai"
	"github.com/spigell/talent-outreach/internal/ai/gemini"
	"github.com/spigell/talent-outreach/internal/coordination"
	"github.com/spigell/talent-outreach/internal/followup"
	"github.com/spigell/talent-outreach/internal/logger"
	"github.com/spigell/talent-outreach/internal/matching"
	"github.com/spigell/talent-outreach/internal/metrics"
	"github.com/spigell/talent-outreach/internal/outreach"
	"github.com/spigell/talent-outreach/internal/secrets"
	"github.com/spigell/talent-outreach/internal/store"
)

// runtime holds everything a command needs. close releases it in reverse order.
type runtime struct {
	config     *Config
	logger     *zap.Logger
	store      *store.Store
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	redis      *redis.Client
	dispatcher *outreach.Client
	matcher    *matching.Service
	scheduler  *followup.Service
}

// setup builds the logger and config the way every command starts.
func setup() (*Config, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		logger.Fatal("config is required")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return config, logger
}

func newRuntime(ctx context.Context, config *Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{config: config, logger: logger}

	s, err := store.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("opening the database: %w", err)
	}
	rt.store = s

	if config.Database.Migrate {
		if err := s.Migrate(store.MigrateUp, 0, logger); err != nil {
			rt.close()
			return nil, fmt.Errorf("applying migrations: %w", err)
		}
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(rt.registry)

	client, err := coordination.Connect(ctx, config.Redis)
	if err != nil {
		logger.Warn("redis is unavailable, scheduler runs are not coordinated", zap.Error(err))
	}
	rt.redis = client

	serviceKey, err := resolveServiceKey(config.Outreach)
	if err != nil && config.Outreach.URL != "" {
		logger.Warn("outreach service key is not configured, sending the trigger without it", zap.Error(err))
	}
	rt.dispatcher = outreach.New(config.Outreach, serviceKey, rt.metrics, logger)

	drafter := newDrafter(ctx, config.AI, logger)

	rt.matcher = matching.NewService(s, config.Matching, rt.metrics, logger)
	rt.scheduler = followup.NewService(followup.Deps{
		Store:      s,
		Drafter:    drafter,
		Dispatcher: rt.dispatcher,
		Leaser:     coordination.NewLeaser(client, config.Redis.LeaseTTL),
		Publisher:  coordination.NewPublisher(client, config.Redis.Channel),
		Metrics:    rt.metrics,
		Logger:     logger,
	}, followup.Config{Throttle: config.Scheduler.Throttle})

	return rt, nil
}

// close waits for in-flight outreach triggers before dropping connections.
func (rt *runtime) close() {
	if rt.dispatcher != nil {
		rt.dispatcher.Wait()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("closing redis", zap.Error(err))
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("closing the database", zap.Error(err))
		}
	}
}

func resolveServiceKey(cfg outreach.Config) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "outreach service key",
		Value: cfg.ServiceKey,
		File:  cfg.ServiceKeyFile,
		Env:   "SERVICE_ROLE_KEY",
	})
}

// newDrafter returns the template drafter unless AI drafting is enabled and usable.
func newDrafter(ctx context.Context, cfg *AIConfig, logger *zap.Logger) ai.Drafter {
	fallback := ai.TemplateDrafter{}

	if cfg == nil || !cfg.Enabled {
		logger.Debug("ai drafting is disabled, using templates")
		return fallback
	}

	primary, err := newAIDrafter(ctx, cfg, logger)
	if err != nil {
		logger.Warn("skipping ai drafting", zap.Error(err))
		return fallback
	}

	return ai.WithFallback(primary, fallback, logger)
}

func newAIDrafter(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Drafter, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	if cfg.Gemini == nil {
		return nil, errors.New("ai.gemini section is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithCommonFields(log, "gemini", cfg.Gemini.Model).With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	overrides := gemini.PromptOverrides{
		Tone:         cfg.Gemini.Tone,
		Instructions: cfg.Gemini.Instructions,
	}

	return gemini.NewDrafter(generator, overrides, logger.WithCommonFields(log, "gemini", generator.Model()), cfg.Gemini.MaxLogLength), nil
}

// redacted returns a copy of the config that is safe to log.
func redacted(config *Config) Config {
	c := *config
	if c.Database.URL != "" {
		c.Database.URL = "<redacted>"
	}
	if c.Redis.URL != "" {
		c.Redis.URL = "<redacted>"
	}
	if c.Outreach.ServiceKey != "" {
		c.Outreach.ServiceKey = "<redacted>"
	}
	if c.AI != nil && c.AI.Gemini != nil && c.AI.Gemini.APIKey != "" {
		aiCfg := *c.AI
		gem := *aiCfg.Gemini
		gem.APIKey = "<redacted>"
		aiCfg.Gemini = &gem
		c.AI = &aiCfg
	}
	return c
}
