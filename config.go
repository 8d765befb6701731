package mysequel

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "MYSEQUEL"

// PoolConfig holds database/sql pool sizing.
type PoolConfig struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// TelemetryConfig controls driver-level instrumentation.
type TelemetryConfig struct {
	Enabled bool
}

// Config describes how Open builds the underlying pool.
type Config struct {
	// Driver is the database/sql driver name ("mysql" by default; "sqlite"
	// and "sqlmock" work too).
	Driver string
	DSN    string
	// Field-based DSN building, used when DSN is empty.
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Params   map[string]string

	Pool               PoolConfig
	Options            Overrides
	SlowQueryThreshold time.Duration
	Telemetry          TelemetryConfig
}

// dsnFromConfig returns c.DSN unchanged when set, otherwise a MySQL DSN
// built from the individual fields.
func dsnFromConfig(c Config) (string, error) {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN, nil
	}
	if c.Host == "" {
		return "", fmt.Errorf("mysequel: either DSN or Host is required")
	}
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Host
	if c.Port > 0 {
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	mc.DBName = c.Database
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN(), nil
}

type envConfig struct {
	Driver             string        `envconfig:"DRIVER" default:"mysql"`
	DSN                string        `envconfig:"DSN"`
	Host               string        `envconfig:"HOST"`
	Port               int           `envconfig:"PORT"`
	Username           string        `envconfig:"USERNAME"`
	Password           string        `envconfig:"PASSWORD"`
	Database           string        `envconfig:"DATABASE"`
	Params             string        `envconfig:"PARAMS"`
	MaxOpen            int           `envconfig:"MAX_OPEN"`
	MaxIdle            int           `envconfig:"MAX_IDLE"`
	ConnMaxLifetime    time.Duration `envconfig:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime    time.Duration `envconfig:"CONN_MAX_IDLE_TIME"`
	SlowQueryThreshold time.Duration `envconfig:"SLOW_QUERY_THRESHOLD"`
	TelemetryEnabled   bool          `envconfig:"TELEMETRY_ENABLED"`

	Prepared                *bool `envconfig:"PREPARED"`
	NamedPlaceholders       *bool `envconfig:"NAMED_PLACEHOLDERS"`
	TransactionAutoRollback *bool `envconfig:"TRANSACTION_AUTO_ROLLBACK"`
	Retry                   *bool `envconfig:"RETRY"`
	RetryCount              *int  `envconfig:"RETRY_COUNT"`
	TidyStacks              *bool `envconfig:"TIDY_STACKS"`

	PingDisabled  bool          `envconfig:"PING_DISABLED"`
	PingFrequency time.Duration `envconfig:"PING_FREQUENCY"`
	PingQuery     string        `envconfig:"PING_QUERY"`
}

// LoadConfigFromEnv reads MYSEQUEL_* environment variables into a Config.
// PARAMS uses query-string syntax, e.g. "parseTime=true&loc=Local".
// Ping overrides are only set when one of the PING_* variables is present.
func LoadConfigFromEnv() (Config, error) {
	var e envConfig
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return Config{}, fmt.Errorf("mysequel: load env: %w", err)
	}
	cfg := Config{
		Driver:   e.Driver,
		DSN:      e.DSN,
		Host:     e.Host,
		Port:     e.Port,
		Username: e.Username,
		Password: e.Password,
		Database: e.Database,
		Pool: PoolConfig{
			MaxOpen:         e.MaxOpen,
			MaxIdle:         e.MaxIdle,
			ConnMaxLifetime: e.ConnMaxLifetime,
			ConnMaxIdleTime: e.ConnMaxIdleTime,
		},
		Options: Overrides{
			Prepared:                e.Prepared,
			NamedPlaceholders:       e.NamedPlaceholders,
			TransactionAutoRollback: e.TransactionAutoRollback,
			Retry:                   e.Retry,
			RetryCount:              e.RetryCount,
			TidyStacks:              e.TidyStacks,
		},
		SlowQueryThreshold: e.SlowQueryThreshold,
		Telemetry:          TelemetryConfig{Enabled: e.TelemetryEnabled},
	}
	if e.Params != "" {
		vals, err := url.ParseQuery(e.Params)
		if err != nil {
			return Config{}, fmt.Errorf("mysequel: parse %s_PARAMS: %w", EnvPrefix, err)
		}
		cfg.Params = make(map[string]string, len(vals))
		for k := range vals {
			cfg.Params[k] = vals.Get(k)
		}
	}
	if e.PingDisabled || e.PingFrequency > 0 || e.PingQuery != "" {
		cfg.Options.Ping = &PingOverrides{
			Disabled: e.PingDisabled,
			Query:    e.PingQuery,
		}
		if e.PingFrequency > 0 {
			cfg.Options.Ping.Frequency = Duration(e.PingFrequency)
		}
	}
	return cfg, nil
}
