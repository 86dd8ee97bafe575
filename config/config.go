// Package config loads electrs' runtime configuration from flags,
// environment variables and an optional config file via spf13/viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every knob the electrum frontend and its collaborators need.
type Config struct {
	// ElectrumRPCAddr is the TCP listen address for the line-delimited
	// Electrum protocol (host:port).
	ElectrumRPCAddr string `mapstructure:"electrum-rpc-addr"`

	// MetricsAddr, if non-empty, serves Prometheus metrics over HTTP.
	MetricsAddr string `mapstructure:"metrics-addr"`

	// DaemonRPCAddr/User/Pass/Network address the bitcoind backing node.
	DaemonRPCAddr string `mapstructure:"daemon-rpc-addr"`
	DaemonRPCUser string `mapstructure:"daemon-rpc-user"`
	DaemonRPCPass string `mapstructure:"daemon-rpc-pass"`
	Network       string `mapstructure:"network"`

	// DBPath is where the local chain-header index (pebble) lives.
	DBPath string `mapstructure:"db-path"`

	// ServerBanner is returned verbatim by server.banner.
	ServerBanner string `mapstructure:"server-banner"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `mapstructure:"log-level"`

	// NotifierInterval is how often the subscription engine re-evaluates
	// every client's subscribed statuses.
	NotifierInterval time.Duration `mapstructure:"notifier-interval"`

	// Version is baked in at build time via -ldflags and surfaced by
	// server.version / server.features as "electrs/<version>".
	Version string `mapstructure:"-"`
}

// Default returns a Config with the same defaults electrs ships with.
func Default() *Config {
	return &Config{
		ElectrumRPCAddr:  "127.0.0.1:50001",
		MetricsAddr:      "",
		DaemonRPCAddr:    "127.0.0.1:8332",
		DaemonRPCUser:    "",
		DaemonRPCPass:    "",
		Network:          "mainnet",
		DBPath:           "./db",
		ServerBanner:     "Welcome to electrs",
		LogLevel:         "info",
		NotifierInterval: 5 * time.Second,
		Version:          "dev",
	}
}

// BindFlags registers this config's fields onto a pflag.FlagSet so a cobra
// command can bind them as persistent flags.
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.ElectrumRPCAddr, "electrum-rpc-addr", c.ElectrumRPCAddr, "TCP listen address for the Electrum protocol")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "HTTP listen address for Prometheus metrics (empty disables)")
	flags.StringVar(&c.DaemonRPCAddr, "daemon-rpc-addr", c.DaemonRPCAddr, "bitcoind RPC address")
	flags.StringVar(&c.DaemonRPCUser, "daemon-rpc-user", c.DaemonRPCUser, "bitcoind RPC username")
	flags.StringVar(&c.DaemonRPCPass, "daemon-rpc-pass", c.DaemonRPCPass, "bitcoind RPC password")
	flags.StringVar(&c.Network, "network", c.Network, "bitcoin network (mainnet/testnet/regtest/signet)")
	flags.StringVar(&c.DBPath, "db-path", c.DBPath, "path to the local chain-header index")
	flags.StringVar(&c.ServerBanner, "server-banner", c.ServerBanner, "banner text returned by server.banner")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	flags.DurationVar(&c.NotifierInterval, "notifier-interval", c.NotifierInterval, "subscription re-evaluation interval")
}

// Load reads configuration from flags (already parsed into v via
// BindFlags), environment variables prefixed ELECTRS_, and an optional
// config file, in that ascending precedence order (file < env < flags).
func Load(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*Config, error) {
	v.SetEnvPrefix("electrs")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}
