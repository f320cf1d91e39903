// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Brave     BraveConfig     `yaml:"brave" mapstructure:"brave"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Govern    GovernConfig    `yaml:"govern" mapstructure:"govern"`
	Proxy     ProxyConfig     `yaml:"proxy" mapstructure:"proxy"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// BraveConfig holds Brave Search API settings.
type BraveConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Country string `yaml:"country" mapstructure:"country"`
}

// AnthropicConfig holds Anthropic API settings for phrasing expansion.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FetchConfig configures the acquisition pipeline.
type FetchConfig struct {
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RenderTimeoutSecs  int    `yaml:"render_timeout_secs" mapstructure:"render_timeout_secs"`
	RespectRobots      bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
	MaxAttempts        int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// GovernConfig tunes per-domain pacing.
type GovernConfig struct {
	BaselineMs            int     `yaml:"baseline_ms" mapstructure:"baseline_ms"`
	CeilingSecs           int     `yaml:"ceiling_secs" mapstructure:"ceiling_secs"`
	BackoffFactor         float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	DecayFactor           float64 `yaml:"decay_factor" mapstructure:"decay_factor"`
	SuccessWindow         int     `yaml:"success_window" mapstructure:"success_window"`
	HardBlockCooldownSecs int     `yaml:"hard_block_cooldown_secs" mapstructure:"hard_block_cooldown_secs"`
}

// ProxyConfig configures the rotating identity pool.
type ProxyConfig struct {
	Endpoints []string `yaml:"endpoints" mapstructure:"endpoints"`
	ProbeURL  string   `yaml:"probe_url" mapstructure:"probe_url"`
}

// RunConfig holds default run constraints.
type RunConfig struct {
	MaxCandidates    int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	MaxWallClockSecs int     `yaml:"max_wall_clock_secs" mapstructure:"max_wall_clock_secs"`
	MaxConcurrent    int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MinConfidence    float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MaxWallClock returns the run budget as a duration.
func (r RunConfig) MaxWallClock() time.Duration {
	return time.Duration(r.MaxWallClockSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospector.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("brave.country", "us")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("fetch.user_agent", "prospector/1.0 (+https://github.com/sells-group/prospector)")
	v.SetDefault("fetch.request_timeout_secs", 20)
	v.SetDefault("fetch.render_timeout_secs", 60)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("govern.baseline_ms", 500)
	v.SetDefault("govern.ceiling_secs", 60)
	v.SetDefault("govern.backoff_factor", 2.0)
	v.SetDefault("govern.decay_factor", 1.5)
	v.SetDefault("govern.success_window", 5)
	v.SetDefault("govern.hard_block_cooldown_secs", 300)
	v.SetDefault("proxy.probe_url", "https://www.gstatic.com/generate_204")
	v.SetDefault("run.max_candidates", 20)
	v.SetDefault("run.max_wall_clock_secs", 120)
	v.SetDefault("run.max_concurrent", 4)
	v.SetDefault("run.min_confidence", 0.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
