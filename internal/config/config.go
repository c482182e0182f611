package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Macro    MacroConfig    `yaml:"macro" mapstructure:"macro"`
	Prices   PricesConfig   `yaml:"prices" mapstructure:"prices"`
	News     NewsConfig     `yaml:"news" mapstructure:"news"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Cleaning CleaningConfig `yaml:"cleaning" mapstructure:"cleaning"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the embedded database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// HTTPConfig configures the shared fetch client.
type HTTPConfig struct {
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int    `yaml:"max_retries" mapstructure:"max_retries"`
	HostConcurrency int    `yaml:"host_concurrency" mapstructure:"host_concurrency"`
}

// MacroConfig holds the macro-series upstream settings.
type MacroConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PricesConfig holds the price-bars upstream settings.
type PricesConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	RangeDays int    `yaml:"range_days" mapstructure:"range_days"`
}

// NewsConfig holds the news-feed upstream settings.
type NewsConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	SourcesFile string `yaml:"sources_file" mapstructure:"sources_file"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
	MaxArticles int    `yaml:"max_articles" mapstructure:"max_articles"`
}

// IngestConfig configures the ingestion engine.
type IngestConfig struct {
	MaxConcurrentCatalogs int `yaml:"max_concurrent_catalogs" mapstructure:"max_concurrent_catalogs"`
}

// CleaningConfig configures the cleaning pipeline.
type CleaningConfig struct {
	BatchLimit         int `yaml:"batch_limit" mapstructure:"batch_limit"`
	ExtractWorkers     int `yaml:"extract_workers" mapstructure:"extract_workers"`
	ExtractTimeoutSecs int `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. API keys come in
// through the environment (HEIMDALL_MACRO_API_KEY, HEIMDALL_NEWS_API_KEY).
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HEIMDALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "data/heimdall.db")
	v.SetDefault("http.user_agent", "asis-cli/1.0")
	v.SetDefault("http.timeout_secs", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.host_concurrency", 4)
	v.SetDefault("macro.api_key", "")
	v.SetDefault("macro.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("news.api_key", "")
	v.SetDefault("prices.base_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("prices.range_days", 30)
	v.SetDefault("news.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.sources_file", "config/news_sources.yaml")
	v.SetDefault("news.page_size", 100)
	v.SetDefault("news.max_articles", 20)
	v.SetDefault("ingest.max_concurrent_catalogs", 4)
	v.SetDefault("cleaning.batch_limit", 100)
	v.SetDefault("cleaning.extract_workers", 4)
	v.SetDefault("cleaning.extract_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
