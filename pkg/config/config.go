package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the settings for the viewer and the headless commands.
type Config struct {
	Env         string        `mapstructure:"env"`          // Env is the current environment: local, dev, prod.
	Datasets    []string      `mapstructure:"datasets"`     // Datasets are the locations (URLs or paths) to load.
	Width       int           `mapstructure:"width"`        // Width is the initial drawing surface width.
	Height      int           `mapstructure:"height"`       // Height is the initial drawing surface height.
	Window      WindowConfig  `mapstructure:"window"`       // Window is the initial OS window size.
	TPS         int           `mapstructure:"tps"`          // TPS is the viewer tick rate.
	Country     string        `mapstructure:"country"`      // Country is the ISO 3166 code shown in the title.
	CaptureDir  string        `mapstructure:"capture_dir"`  // CaptureDir receives PNG frame captures.
	Cache       CacheConfig   `mapstructure:"cache"`        // Cache configures the dataset cache.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"` // HTTPTimeout bounds each dataset download.
	Control     ControlConfig `mapstructure:"control"`      // Control configures the remote input server.
	Log         LogConfig     `mapstructure:"log"`          // Log configures the process logger.
}

type WindowConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// CacheConfig controls the on-disk dataset cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ControlConfig controls the remote input server. An empty Addr disables it.
type ControlConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("datasets", []string{})
	v.SetDefault("width", 1280)
	v.SetDefault("height", 720)
	v.SetDefault("window.width", 1280)
	v.SetDefault("window.height", 720)
	v.SetDefault("tps", 30)
	v.SetDefault("country", "JP")
	v.SetDefault("capture_dir", "captures")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("control.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads defaults, an optional config file at path, a .env file if one
// exists, and LATLNG_* environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("latlng")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Datasets = splitList(v.GetStringSlice("datasets"))
	return &cfg, nil
}

// splitList also accepts a comma separated environment value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("surface size must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.TPS <= 0 {
		errs = append(errs, fmt.Errorf("tps must be positive, got %d", c.TPS))
	}
	if len(c.Datasets) == 0 {
		errs = append(errs, errors.New("no datasets configured"))
	}
	if c.Country != "" && countries.ByName(c.Country) == countries.Unknown {
		errs = append(errs, fmt.Errorf("unknown country code %q", c.Country))
	}
	return errors.Join(errs...)
}

// CountryName is the display name of the configured country, or "" when
// none is set.
func (c *Config) CountryName() string {
	if c.Country == "" {
		return ""
	}
	name := countries.ByName(c.Country).String()
	if idx := strings.Index(name, " ("); idx != -1 {
		name = name[:idx]
	}
	return name
}
