package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/talent-outreach/internal/api"
	"github.com/spigell/talent-outreach/internal/coordination"
	"github.com/spigell/talent-outreach/internal/filtering"
	"github.com/spigell/talent-outreach/internal/followup"
	"github.com/spigell/talent-outreach/internal/matching"
	"github.com/spigell/talent-outreach/internal/outreach"
	"github.com/spigell/talent-outreach/internal/store"
)

const (
	app       = "talent-outreach"
	envPrefix = "TALENT"
)

type Config struct {
	Database  store.Config        `mapstructure:"database"`
	HTTP      api.Config          `mapstructure:"http"`
	Matching  matching.Config     `mapstructure:"matching"`
	Scheduler SchedulerConfig     `mapstructure:"scheduler"`
	Outreach  outreach.Config     `mapstructure:"outreach"`
	Redis     coordination.Config `mapstructure:"redis"`
	AI        *AIConfig           `mapstructure:"ai"`
}

type SchedulerConfig struct {
	Throttle time.Duration `mapstructure:"throttle"`
	Periodic bool          `mapstructure:"periodic"`
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
	Tone         string `mapstructure:"tone"`
	Instructions string `mapstructure:"instructions"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "talent-outreach matches candidates to open roles and schedules follow-up outreach",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for key, env := range map[string]string{
		"database.url":              "DATABASE_URL",
		"redis.url":                 "REDIS_URL",
		"ai.gemini.api-key-file":    "GEMINI_API_KEY_FILE",
		"outreach.service-key-file": "SERVICE_ROLE_KEY_FILE",
	} {
		if err := viper.BindEnv(key, envPrefix+"_"+envKey(key), env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talent-outreach.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", store.DriverPostgres)
	v.SetDefault("database.max-open-conns", 25)
	v.SetDefault("database.migrate", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read-timeout", "30s")
	v.SetDefault("http.write-timeout", "2m")

	defaults := filtering.DefaultConfig()
	v.SetDefault("matching.workers", 0)
	v.SetDefault("matching.filtering.statuses", defaults.Statuses)
	v.SetDefault("matching.filtering.allow-empty-status", defaults.AllowEmptyStatus)
	v.SetDefault("matching.filtering.excluded-stages", defaults.ExcludedStages)

	v.SetDefault("scheduler.throttle", followup.DefaultThrottle.String())
	v.SetDefault("scheduler.periodic", false)
	v.SetDefault("scheduler.schedule", followup.DefaultSchedule)
	v.SetDefault("scheduler.timeout", "5m")

	v.SetDefault("outreach.url", "")
	v.SetDefault("outreach.timeout", "10s")
	v.SetDefault("outreach.rate-per-second", 5)
	v.SetDefault("outreach.limit", 50)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lease-ttl", coordination.DefaultLeaseTTL.String())
	v.SetDefault("redis.channel", coordination.DefaultChannel)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every key has a default, so only an explicit or broken config file is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
