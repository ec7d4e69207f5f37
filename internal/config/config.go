// Package config loads contentflow settings from a YAML file and the
// environment. Environment variables use the CONTENTFLOW_ prefix with dots
// replaced by underscores, e.g. CONTENTFLOW_DATABASE_DRIVER.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CONTENTFLOW"

// Config holds the configuration for the application.
type Config struct {
	Database struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Schema struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"schema"`
	Workflows struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"workflows"`
	Permissions struct {
		PrivilegedRole string        `mapstructure:"privileged_role"`
		CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"permissions"`
	Sensitivity struct {
		HiddenContentType string   `mapstructure:"hidden_content_type"`
		MaskPlaceholder   string   `mapstructure:"mask_placeholder"`
		PrivilegedRoles   []string `mapstructure:"privileged_roles"`
	} `mapstructure:"sensitivity"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Email struct {
		SMTPAddr string `mapstructure:"smtp_addr"`
		From     string `mapstructure:"from"`
	} `mapstructure:"email"`
	SMS struct {
		GatewayURL string `mapstructure:"gateway_url"`
		APIKey     string `mapstructure:"api_key"`
	} `mapstructure:"sms"`
	Webhook struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"webhook"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "contentflow.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("schema.dir", "")
	v.SetDefault("workflows.dir", "")
	v.SetDefault("permissions.privileged_role", "Admin")
	v.SetDefault("permissions.cache_ttl", 30*time.Second)
	v.SetDefault("sensitivity.hidden_content_type", "[hidden]")
	v.SetDefault("sensitivity.mask_placeholder", "***")
	v.SetDefault("sensitivity.privileged_roles", []string{"Admin"})
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("email.smtp_addr", "")
	v.SetDefault("email.from", "contentflow@localhost")
	v.SetDefault("sms.gateway_url", "")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
}

// Load reads the configuration. When path is empty, contentflow.yaml is
// searched in . and ./config and a missing file is not an error. An
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("contentflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Permissions.CacheTTL < 0 {
		return errors.New("config: permissions.cache_ttl must not be negative")
	}
	return nil
}
