package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type FlatSqlConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir          string `mapstructure:"workdir"`
		FallbackEncoding string `mapstructure:"fallback_encoding"`
	} `mapstructure:"storage"`

	Engine struct {
		SortMergeThreshold int  `mapstructure:"sort_merge_threshold"`
		UseIndexes         bool `mapstructure:"use_indexes"`
	} `mapstructure:"engine"`

	Log LogConfig `mapstructure:"log"`

	Shell struct {
		Prompt      string `mapstructure:"prompt"`
		HistoryFile string `mapstructure:"history_file"`
		HistoryMax  int    `mapstructure:"history_max"`
	} `mapstructure:"shell"`

	Metrics struct {
		// Addr serves /metrics when set, e.g. "127.0.0.1:9464".
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

// NewViper returns a viper instance with defaults and FLATSQL_* environment
// overrides (FLATSQL_STORAGE_WORKDIR, FLATSQL_LOG_LEVEL, ...).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("app_name", "flatsql")
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.fallback_encoding", "iso-8859-1")
	v.SetDefault("engine.sort_merge_threshold", 1000)
	v.SetDefault("engine.use_indexes", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("shell.prompt", "flatsql> ")
	v.SetDefault("shell.history_file", "~/.flatsql_history")
	v.SetDefault("shell.history_max", 2000)
	v.SetDefault("metrics.addr", "")

	v.SetEnvPrefix("flatsql")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func LoadConfig(path string) (*FlatSqlConfig, error) {
	return Load(NewViper(), path)
}

// Load reads path (if not empty) into v and unmarshals the result. Flags
// bound to v beforehand take precedence over the file.
func Load(v *viper.Viper, path string) (*FlatSqlConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg FlatSqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() *FlatSqlConfig {
	cfg, err := Load(NewViper(), "")
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

func (c *FlatSqlConfig) Validate() error {
	if c.Storage.Workdir == "" {
		return fmt.Errorf("config: storage.workdir is required")
	}
	switch strings.ToLower(c.Storage.FallbackEncoding) {
	case "", "iso-8859-1", "latin1", "latin-1", "windows-1252", "cp1252":
	default:
		return fmt.Errorf("config: unsupported storage.fallback_encoding %q", c.Storage.FallbackEncoding)
	}
	if c.Engine.SortMergeThreshold <= 0 {
		return fmt.Errorf("config: engine.sort_merge_threshold must be positive, got %d", c.Engine.SortMergeThreshold)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}
	return nil
}
