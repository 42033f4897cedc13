package database

import "time"

// Driver identifies the database engine.
type Driver string

// DriverMySQL is the only engine whose SHOW statements the schema parser understands.
const DriverMySQL Driver = "mysql"

// Config holds all settings needed to connect to and pool a database.
type Config struct {
	// Driver is the database engine.
	Driver Driver

	// DSN is the full data source name.
	// Example: "user:pass@tcp(localhost:3306)/shop?parseTime=true"
	DSN string

	// Pool tuning
	MaxConns        int32         // maximum number of open connections
	MinConns        int32         // idle connections kept alive
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	// Timeouts
	ConnectTimeout time.Duration // time limit for the initial ping
	QueryTimeout   time.Duration // per-query deadline applied by the driver
}

// DefaultConfig returns pool settings for a read-mostly introspection workload.
// Schema queries are rare once the cache is warm, so the pool stays small.
func DefaultConfig(dsn string) *Config {
	return &Config{
		Driver:          DriverMySQL,
		DSN:             dsn,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    30 * time.Second,
	}
}
