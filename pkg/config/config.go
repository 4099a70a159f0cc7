// Package config loads the server settings from flags, environment and config
// file through viper.
package config

import (
	"net/url"
	"os"
	"strings"

	"github.com/go-go-golems/vizthinker/pkg/cache"
	"github.com/go-go-golems/vizthinker/pkg/logging"
	"github.com/go-go-golems/vizthinker/pkg/responder"
	"github.com/go-go-golems/vizthinker/pkg/store"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	AppName   = "vizthinker"
	EnvPrefix = "VIZTHINKER"
)

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	StaticDir      string   `mapstructure:"static_dir"`
}

type TreeConfig struct {
	MaxPathDepth int `mapstructure:"max_path_depth"`
}

type Settings struct {
	Server    ServerConfig      `mapstructure:"server"`
	Database  store.Config      `mapstructure:"database"`
	Redis     cache.RedisConfig `mapstructure:"redis"`
	Responder responder.Config  `mapstructure:"responder"`
	Tree      TreeConfig        `mapstructure:"tree"`
	EnvFile   string            `mapstructure:"env_file"`

	LogLevel   string `mapstructure:"log-level"`
	LogFormat  string `mapstructure:"log-format"`
	LogFile    string `mapstructure:"log-file"`
	WithCaller bool   `mapstructure:"with-caller"`
}

func (s *Settings) LogConfig() *logging.Config {
	return &logging.Config{
		WithCaller: s.WithCaller,
		Level:      s.LogLevel,
		LogFormat:  s.LogFormat,
		LogFile:    s.LogFile,
	}
}

// SetDefaults registers every key with its default, so that environment
// variables are picked up by Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	db := store.DefaultConfig()
	rsp := responder.DefaultConfig()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.static_dir", "")

	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", db.Path)
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)
	v.SetDefault("database.slow_threshold", db.SlowThreshold)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", cache.DefaultTTL)
	v.SetDefault("redis.prefix", AppName)

	v.SetDefault("responder.provider", rsp.Provider)
	v.SetDefault("responder.model", "")
	v.SetDefault("responder.base_url", "")
	v.SetDefault("responder.timeout", rsp.Timeout)
	v.SetDefault("responder.max_context_tokens", rsp.MaxContextTokens)
	v.SetDefault("responder.system_prompt", rsp.SystemPrompt)
	v.SetDefault("responder.allow_local_base_url", false)

	v.SetDefault("tree.max_path_depth", tree.DefaultMaxPathDepth)
	v.SetDefault("env_file", ".env")

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("log-file", "")
	v.SetDefault("with-caller", false)
}

// InitViper sets up the environment binding and reads the config file, either
// configPath or the first config.yaml found in the usual locations. A missing
// config file is not an error.
func InitViper(v *viper.Viper, configPath string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/." + AppName)
		v.AddConfigPath("/etc/" + AppName)

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			v.AddConfigPath(xdgConfigPath + "/" + AppName)
		}
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading config file")
	}
	return nil
}

func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decoding settings")
	}
	if s.Tree.MaxPathDepth > 0 {
		s.Database.MaxPathDepth = s.Tree.MaxPathDepth
	}
	if s.Server.Address == "" {
		return nil, errors.New("server.address must not be empty")
	}
	if s.Responder.Timeout < 0 {
		return nil, errors.New("responder.timeout must not be negative")
	}
	if err := validateOrigins(s.Server.AllowedOrigins); err != nil {
		return nil, err
	}
	return &s, nil
}

// validateOrigins accepts "*" or absolute http(s) origins, the forms the CORS
// middleware takes without panicking.
func validateOrigins(origins []string) error {
	for _, o := range origins {
		if o == "*" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Errorf("server.allowed_origins: %q must be \"*\" or start with http:// or https://", o)
		}
	}
	return nil
}
