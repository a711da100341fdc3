package sqlite

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	DatabasePath string
	BusyTimeout  time.Duration
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if strings.Contains(c.DatabasePath, "?") {
		return fmt.Errorf("database path must not carry query parameters")
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString enables WAL, foreign keys and immediate write transactions
// so that read-modify-write counter updates serialize on the database lock.
func (c *Config) GetConnectionString() string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	return c.DatabasePath + "?" + params.Encode()
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./trigger_engine.db",
		BusyTimeout:  5 * time.Second,
	}
}
