// Package config loads the server configuration from onerpc.yaml, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mnehpets/onerpc/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// ONERPC_SERVER_LISTEN=:9090.
const EnvPrefix = "ONERPC"

// Config is the full configuration schema.
type Config struct {
	Server    Server         `mapstructure:"server"`
	Database  Database       `mapstructure:"database"`
	Log       logging.Config `mapstructure:"log"`
	Auth      Auth           `mapstructure:"auth"`
	RateLimit RateLimit      `mapstructure:"rate_limit"`
}

// Server configures the HTTP listener.
type Server struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"` // 0 disables
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	HSTS         bool          `mapstructure:"hsts"`
}

// Database configures the SQLite store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Auth configures session cookies and bearer tokens. Each source is enabled
// only when its settings are present.
type Auth struct {
	CookieName string            `mapstructure:"cookie_name"`
	KeyID      string            `mapstructure:"key_id"`
	Keys       map[string]string `mapstructure:"keys"` // key id -> base64 key
	Insecure   bool              `mapstructure:"insecure_cookie"`
	SessionTTL time.Duration     `mapstructure:"session_ttl"`

	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	OIDCIssuer   string `mapstructure:"oidc_issuer"`
	OIDCClientID string `mapstructure:"oidc_client_id"`
}

// RateLimit configures per-client request limiting. RPS 0 disables it.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.call_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.hsts", false)

	v.SetDefault("database.dsn", "file:onerpc.db?_foreign_keys=on")

	d := logging.Defaults()
	v.SetDefault("log.level", d.Level)
	v.SetDefault("log.format", d.Format)
	v.SetDefault("log.to_stdout", d.ToStdout)
	v.SetDefault("log.to_stderr", d.ToStderr)
	v.SetDefault("log.to_file", d.ToFile)
	v.SetDefault("log.file", d.File)
	v.SetDefault("log.max_size", d.MaxSizeMB)
	v.SetDefault("log.max_age", d.MaxAge)
	v.SetDefault("log.max_backups", d.MaxBackups)
	v.SetDefault("log.compress", d.Compress)

	v.SetDefault("auth.cookie_name", "onerpc_session")
	v.SetDefault("auth.key_id", "")
	v.SetDefault("auth.insecure_cookie", false)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "onerpc")
	v.SetDefault("auth.oidc_issuer", "")
	v.SetDefault("auth.oidc_client_id", "")

	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 20)
}

// Load reads the configuration. A .env file in the working directory is
// loaded into the environment first, if present. If path is empty,
// onerpc.yaml is searched for in ., ./config, $HOME/.onerpc and /etc/onerpc,
// and a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else {
		v.SetConfigName("onerpc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".onerpc"))
		}
		v.AddConfigPath("/etc/onerpc")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be caught by decoding.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must be set"))
	}
	if c.Server.CallTimeout < 0 {
		errs = append(errs, errors.New("server.call_timeout must not be negative"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn must be set"))
	}
	if len(c.Auth.Keys) > 0 {
		if _, ok := c.Auth.Keys[c.Auth.KeyID]; !ok {
			errs = append(errs, fmt.Errorf("auth.key_id %q is not in auth.keys", c.Auth.KeyID))
		}
		if c.Auth.SessionTTL < time.Second {
			errs = append(errs, errors.New("auth.session_ttl must be at least 1s"))
		}
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if (c.Auth.OIDCIssuer == "") != (c.Auth.OIDCClientID == "") {
		errs = append(errs, errors.New("auth.oidc_issuer and auth.oidc_client_id must be set together"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("rate_limit.rps must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
