package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Ledger   LedgerConfig
	Rates    RatesConfig
	Worker   WorkerConfig
	Policy   PolicyConfig
}

type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type LedgerConfig struct {
	GatewayURL string
	NetworkId  string
	HomeDomain string
	Timeout    time.Duration
}

type RatesConfig struct {
	BaseURL string
	Timeout time.Duration
}

type WorkerConfig struct {
	SweepInterval time.Duration
	QueueSize     int
}

type PolicyConfig struct {
	File string
}
