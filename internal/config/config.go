// Package config loads the crawler's process-wide configuration: cluster
// topology, HTTP listen address and template directory, result folder
// root, and the worker HTTP client's tunables.
//
// Grounded on amankumarsingh77-searchyfy's config package (viper-backed
// YAML config with env override and a GetDefaultConfig fallback).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the crawler's full process configuration.
type Config struct {
	Farmers          int           `mapstructure:"farmers"`
	WorkersPerFarmer int           `mapstructure:"workers_per_farmer"`
	ListenAddr       string        `mapstructure:"listen_addr"`
	DataDir          string        `mapstructure:"data_dir"`
	ResultsDir       string        `mapstructure:"results_dir"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchRateLimit   time.Duration `mapstructure:"fetch_rate_limit"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		Farmers:          2,
		WorkersPerFarmer: 4,
		ListenAddr:       "localhost:8001",
		DataDir:          "./data",
		ResultsDir:       "./results",
		FetchTimeout:     10 * time.Second,
		FetchRateLimit:   0,
		MaxBodySize:      2 * 1024 * 1024,
		UserAgent:        "SiteCrawler/1.0",
	}
}

// Load reads configuration from an optional file named configName
// (searched as YAML in the given paths) layered over Default(), with
// SITECRAWLER_-prefixed environment variables taking precedence over
// both. A missing config file is not an error; Default() alone is used.
func Load(configName string, searchPaths ...string) (Config, error) {
	v := viper.New()
	def := Default()

	v.SetDefault("farmers", def.Farmers)
	v.SetDefault("workers_per_farmer", def.WorkersPerFarmer)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("results_dir", def.ResultsDir)
	v.SetDefault("fetch_timeout", def.FetchTimeout)
	v.SetDefault("fetch_rate_limit", def.FetchRateLimit)
	v.SetDefault("max_body_size", def.MaxBodySize)
	v.SetDefault("user_agent", def.UserAgent)

	v.SetEnvPrefix("SITECRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configName != "" {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if len(searchPaths) == 0 {
			v.AddConfigPath(".")
		}
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: read %s: %w", configName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}
