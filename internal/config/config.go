// Package config loads application configuration from config.yaml and the
// environment, and initializes the global zap logger.
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
	Store   StoreConfig             `yaml:"store" mapstructure:"store"`
	Import  ImportConfig            `yaml:"import" mapstructure:"import"`
	Sources map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Geocode GeocodeConfig           `yaml:"geocode" mapstructure:"geocode"`
	Fetch   FetchConfig             `yaml:"fetch" mapstructure:"fetch"`
	Server  ServerConfig            `yaml:"server" mapstructure:"server"`
	Log     LogConfig               `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite | memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures the import orchestrator.
type ImportConfig struct {
	Keywords       []string      `yaml:"keywords" mapstructure:"keywords"`
	Location       string        `yaml:"location" mapstructure:"location"`
	Enabled        []string      `yaml:"enabled" mapstructure:"enabled"`
	SourcePauseMin time.Duration `yaml:"source_pause_min" mapstructure:"source_pause_min"`
	SourcePauseMax time.Duration `yaml:"source_pause_max" mapstructure:"source_pause_max"`
}

// SourceConfig holds the per-source scraping settings. Each scraper receives
// its own copy at construction time; there is no shared mutable scraper state.
type SourceConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string        `yaml:"api_key" mapstructure:"api_key"`
	MaxPages     int           `yaml:"max_pages" mapstructure:"max_pages"`
	MaxFailures  int           `yaml:"max_failures" mapstructure:"max_failures"`
	DelayMin     time.Duration `yaml:"delay_min" mapstructure:"delay_min"`
	DelayMax     time.Duration `yaml:"delay_max" mapstructure:"delay_max"`
	PageDelayMin time.Duration `yaml:"page_delay_min" mapstructure:"page_delay_min"`
	PageDelayMax time.Duration `yaml:"page_delay_max" mapstructure:"page_delay_max"`
	Geocode      bool          `yaml:"geocode" mapstructure:"geocode"`
	// SelectorFile optionally points at a YAML file overriding the
	// source's default CSS selectors (see scrape.Selectors).
	SelectorFile string `yaml:"selector_file" mapstructure:"selector_file"`
}

// GeocodeConfig configures the Nominatim client.
type GeocodeConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	Referer   string  `yaml:"referer" mapstructure:"referer"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// FetchConfig configures the shared HTTP fetch client.
type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ProxyURL   string        `yaml:"proxy_url" mapstructure:"proxy_url"`
	UserAgents []string      `yaml:"user_agents" mapstructure:"user_agents"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port        int     `yaml:"port" mapstructure:"port"`
	MaxRadiusKM float64 `yaml:"max_radius_km" mapstructure:"max_radius_km"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// defaultUserAgents is the fixed pool rotated between source invocations.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
}

// Load reads config.yaml (if present) and the environment into a Config.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANNUAIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

	if len(cfg.Fetch.UserAgents) == 0 {
		cfg.Fetch.UserAgents = defaultUserAgents
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_radius_km", 2000)

	v.SetDefault("import.keywords", []string{"restaurant", "coiffeur", "boulangerie"})
	v.SetDefault("import.location", "Paris")
	v.SetDefault("import.enabled", []string{"datagouv"})
	v.SetDefault("import.source_pause_min", "5s")
	v.SetDefault("import.source_pause_max", "10s")

	v.SetDefault("fetch.timeout", "30s")

	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "annuaire-cli/1.0")
	v.SetDefault("geocode.referer", "https://annuaire-entreprises.data.gouv.fr")
	v.SetDefault("geocode.rps", 1)

	v.SetDefault("sources.pagesjaunes.base_url", "https://www.pagesjaunes.fr/annuaire/chercherlespros")
	v.SetDefault("sources.pagesjaunes.max_pages", 5)
	v.SetDefault("sources.pagesjaunes.max_failures", 3)
	v.SetDefault("sources.pagesjaunes.delay_min", "3s")
	v.SetDefault("sources.pagesjaunes.delay_max", "7s")
	v.SetDefault("sources.pagesjaunes.page_delay_min", "5s")
	v.SetDefault("sources.pagesjaunes.page_delay_max", "15s")

	v.SetDefault("sources.pple.base_url", "https://www.pple.fr/recherche")
	v.SetDefault("sources.pple.max_pages", 5)
	v.SetDefault("sources.pple.max_failures", 3)
	v.SetDefault("sources.pple.delay_min", "2s")
	v.SetDefault("sources.pple.delay_max", "5s")
	v.SetDefault("sources.pple.page_delay_min", "5s")
	v.SetDefault("sources.pple.page_delay_max", "15s")

	v.SetDefault("sources.datagouv.base_url", "https://annuaire-entreprises.data.gouv.fr")
	v.SetDefault("sources.datagouv.max_pages", 10)
	v.SetDefault("sources.datagouv.max_failures", 3)
	v.SetDefault("sources.datagouv.delay_min", "2s")
	v.SetDefault("sources.datagouv.delay_max", "5s")
	v.SetDefault("sources.datagouv.geocode", true)

	v.SetDefault("sources.infogreffe.base_url", "https://api.infogreffe.fr/api/recherche/entreprises")
	v.SetDefault("sources.infogreffe.max_failures", 3)
}

// Source returns the configuration for a named source, falling back to a
// zero value so callers can rely on their own defaults.
func (c *Config) Source(name string) SourceConfig {
	if c.Sources == nil {
		return SourceConfig{}
	}
	return c.Sources[name]
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
