package postgres

import (
	"fmt"
	"time"
)

type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("PostgreSQL connection string is required")
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		c.MinConns = 0
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = time.Hour
	}
	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}
