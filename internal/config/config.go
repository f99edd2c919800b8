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
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ProviderConfig configures the remote classification service client.
type ProviderConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Token             string  `yaml:"token" mapstructure:"token"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst         int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	GeometryCacheSize int     `yaml:"geometry_cache_size" mapstructure:"geometry_cache_size"`
	MaskCacheSize     int     `yaml:"mask_cache_size" mapstructure:"mask_cache_size"`
}

// StorageConfig configures the object storage backend for boundary
// descriptors and output artifacts.
type StorageConfig struct {
	Endpoint           string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey          string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey          string `yaml:"secret_key" mapstructure:"secret_key"`
	Secure             bool   `yaml:"secure" mapstructure:"secure"`
	Bucket             string `yaml:"bucket" mapstructure:"bucket"`
	OutputPrefix       string `yaml:"output_prefix" mapstructure:"output_prefix"`
	UploadExpirySecs   int    `yaml:"upload_expiry_secs" mapstructure:"upload_expiry_secs"`
	DownloadExpirySecs int    `yaml:"download_expiry_secs" mapstructure:"download_expiry_secs"`
}

// StoreConfig configures the local run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnalysisConfig configures the classification pipeline.
type AnalysisConfig struct {
	StartDate          string  `yaml:"start_date" mapstructure:"start_date"`
	EndDate            string  `yaml:"end_date" mapstructure:"end_date"`
	CloudThreshold     float64 `yaml:"cloud_threshold" mapstructure:"cloud_threshold"`
	MaxTileExtentKm    float64 `yaml:"max_tile_extent_km" mapstructure:"max_tile_extent_km"`
	TileScale          int     `yaml:"tile_scale" mapstructure:"tile_scale"`
	StatsScale         int     `yaml:"stats_scale" mapstructure:"stats_scale"`
	MaxConcurrentTiles int     `yaml:"max_concurrent_tiles" mapstructure:"max_concurrent_tiles"`
	FetchAttempts      int     `yaml:"fetch_attempts" mapstructure:"fetch_attempts"`
	FetchTimeoutSecs   int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FetchBackoffSecs   int     `yaml:"fetch_backoff_secs" mapstructure:"fetch_backoff_secs"`
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

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORESTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("provider.timeout_secs", 60)
	v.SetDefault("provider.rate_per_sec", 10.0)
	v.SetDefault("provider.rate_burst", 20)
	v.SetDefault("provider.geometry_cache_size", 128)
	v.SetDefault("provider.mask_cache_size", 32)
	v.SetDefault("storage.output_prefix", "results")
	v.SetDefault("storage.upload_expiry_secs", 900)
	v.SetDefault("storage.download_expiry_secs", 3600)
	v.SetDefault("store.path", "forestmap.db")
	v.SetDefault("analysis.cloud_threshold", 35.0)
	v.SetDefault("analysis.max_tile_extent_km", 30.0)
	v.SetDefault("analysis.tile_scale", 20)
	v.SetDefault("analysis.stats_scale", 10)
	v.SetDefault("analysis.max_concurrent_tiles", 10)
	v.SetDefault("analysis.fetch_attempts", 3)
	v.SetDefault("analysis.fetch_timeout_secs", 120)
	v.SetDefault("analysis.fetch_backoff_secs", 2)

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
