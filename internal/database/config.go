package database

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the connection parameters for one MySQL endpoint, either the
// ephemeral export service or an import target. The value is immutable for
// the duration of a run; entry points receive it by value.
type Config struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Validate checks that the configuration has all required parameters
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("port must be between 1 and 65535"))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection configuration validation failed: %v", errs)
	}

	return nil
}

// WithDefaults returns a copy with the standard port and timeout filled in
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// DSN returns the Data Source Name for a MySQL connection without selecting
// a default schema; catalog queries qualify schemas explicitly.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=%s&parseTime=true",
		c.Username, c.Password, c.Host, c.Port, c.Timeout)
}

// Address returns the host:port pair for logging; credentials are never
// included.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
