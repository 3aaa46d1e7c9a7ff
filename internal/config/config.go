package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	InitialAdminKey string `yaml:"initialAdminKey"`
}

// TierConfig describes the limits for a single subscription tier.
// Zero values mean unlimited for that dimension.
type TierConfig struct {
	RateLimit      int      `yaml:"rateLimit"`
	RateWindowSecs int      `yaml:"rateWindowSecs"`
	ScansPerDay    int      `yaml:"scansPerDay"`
	AllowedModes   []string `yaml:"allowedModes"`
	RetentionDays  int      `yaml:"retentionDays"`
}

// TiersConfig maps tier names to their limits and lists subjects that
// bypass quota enforcement entirely.
type TiersConfig struct {
	Free         TierConfig `yaml:"free"`
	Premium      TierConfig `yaml:"premium"`
	Enterprise   TierConfig `yaml:"enterprise"`
	BypassEmails []string   `yaml:"bypassEmails"`
}

type WorkerConfig struct {
	MaxConcurrentScans int `yaml:"maxConcurrentScans"`
	DequeueTimeoutMs   int `yaml:"dequeueTimeoutMs"`
	MaxAttempts        int `yaml:"maxAttempts"`
	BackoffBaseMs      int `yaml:"backoffBaseMs"`
	BackoffMaxMs       int `yaml:"backoffMaxMs"`
	SoftLimitMs        int `yaml:"softLimitMs"`
	HardLimitMs        int `yaml:"hardLimitMs"`
}

// RetentionConfig controls the periodic sweep of scans that have aged
// past their owner's tier horizon.
type RetentionConfig struct {
	Enabled              bool `yaml:"enabled"`
	SweepIntervalMinutes int  `yaml:"sweepIntervalMinutes"`
}

// EngineConfig points at the external scan engine CLI. The engine is
// treated as a black box that accepts a target and a scan mode and
// prints a JSON result on stdout.
type EngineConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Worker    WorkerConfig    `yaml:"worker"`
	Retention RetentionConfig `yaml:"retention"`
	Engine    EngineConfig    `yaml:"engine"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}
