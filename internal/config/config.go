// Package config loads server settings from flags, CB_* environment variables,
// an optional .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/ranking"
)

// EnvPrefix prefixes every environment override, e.g. CB_DSN.
const EnvPrefix = "CB"

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the resolved server configuration.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	DSN          string        `mapstructure:"dsn"`
	JWTKey       string        `mapstructure:"jwt_key"`
	ModTTL       time.Duration `mapstructure:"mod_ttl"`
	TLSCert      string        `mapstructure:"tls_cert"`
	TLSKey       string        `mapstructure:"tls_key"`
	Dev          bool          `mapstructure:"dev"`
	CORSOrigin   string        `mapstructure:"cors_origin"`
	PostRate     float64       `mapstructure:"post_rate"`
	PostBurst    int           `mapstructure:"post_burst"`
	Gravity      float64       `mapstructure:"gravity"`
	FeedLimit    int           `mapstructure:"feed_limit"`
	ModBootstrap string        `mapstructure:"mod_bootstrap"` // "user:password"
	SweepSpec    string        `mapstructure:"sweep_spec"`
}

func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cb-server", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (default ./config.yaml when present)")
	fs.String("addr", ":8443", "gRPC listen address")
	fs.String("http-addr", ":8080", "admin HTTP listen address")
	fs.String("dsn", "sqlite://campus-board.db", "postgres://... or sqlite://path")
	fs.String("jwt-key", "", "HS256 signing key for moderator tokens (required)")
	fs.Duration("mod-ttl", 30*time.Minute, "moderator token TTL")
	fs.String("tls-cert", "", "TLS certificate (PEM); plaintext when empty")
	fs.String("tls-key", "", "TLS private key (PEM)")
	fs.Bool("dev", false, "development logging and gRPC reflection")
	fs.String("cors-origin", "", "allowed CORS origin for the admin API")
	fs.Float64("post-rate", 1.0/3.0, "sustained writes per second per posting token")
	fs.Int("post-burst", 3, "write burst per posting token")
	fs.Float64("gravity", ranking.DefaultGravity, "hot ranking gravity")
	fs.Int("feed-limit", 50, "default feed size")
	fs.String("mod-bootstrap", "", "create moderator user:password at startup if missing")
	fs.String("sweep-spec", "@every 10m", "cron spec for limiter sweeps")
	return fs
}

// Load resolves configuration. Precedence: flags, environment, config file, defaults.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	flags := flagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config.yaml: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// Backend reports which storage backend the DSN selects, or "" when unsupported.
func (c *Config) Backend() string {
	switch {
	case strings.HasPrefix(c.DSN, "sqlite://"):
		return BackendSQLite
	case strings.HasPrefix(c.DSN, "postgres://"), strings.HasPrefix(c.DSN, "postgresql://"):
		return BackendPostgres
	default:
		return ""
	}
}

// Bootstrap splits ModBootstrap into credentials.
func (c *Config) Bootstrap() (username, password string, ok bool) {
	username, password, ok = strings.Cut(c.ModBootstrap, ":")
	if !ok || username == "" || password == "" {
		return "", "", false
	}
	return username, password, true
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var problems []error
	if c.JWTKey == "" {
		problems = append(problems, errors.New("jwt_key is required"))
	}
	if c.Backend() == "" {
		problems = append(problems, fmt.Errorf("unsupported dsn scheme in %q", redactDSN(c.DSN)))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		problems = append(problems, errors.New("tls_cert and tls_key must be set together"))
	}
	if c.ModTTL <= 0 {
		problems = append(problems, errors.New("mod_ttl must be positive"))
	}
	if c.PostRate <= 0 || c.PostBurst <= 0 {
		problems = append(problems, errors.New("post_rate and post_burst must be positive"))
	}
	if c.ModBootstrap != "" {
		if _, _, ok := c.Bootstrap(); !ok {
			problems = append(problems, errors.New("mod_bootstrap must be user:password"))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %w: %w", errs.ErrInvalidInput, errors.Join(problems...))
	}
	return nil
}

// redactDSN drops credentials before a DSN reaches an error message.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "<invalid>"
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
