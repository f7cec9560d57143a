// Package config loads the daemon configuration: YAML file first, then
// IDGOV_-prefixed environment overrides.
package config

import (
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Etcd    EtcdConfig    `yaml:"etcd" json:"etcd"`
	Sync    SyncConfig    `yaml:"sync" json:"sync"`
	Scripts ScriptsConfig `yaml:"scripts" json:"scripts"`
}

type ServerConfig struct {
	Address     string `yaml:"address" json:"address" envconfig:"ADDRESS"`
	HealthCheck bool   `yaml:"healthCheck" json:"healthCheck" envconfig:"HEALTH_CHECK"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" json:"format" envconfig:"FORMAT"`
	Output string `yaml:"output" json:"output" envconfig:"OUTPUT"`
}

type EtcdConfig struct {
	// Endpoints empty means run the embedded server.
	Endpoints []string `yaml:"endpoints" json:"endpoints" envconfig:"ENDPOINTS"`

	DataDir    string `yaml:"dataDir" json:"dataDir" envconfig:"DATA_DIR"`
	Name       string `yaml:"name" json:"name" envconfig:"NAME"`
	PeerAddr   string `yaml:"peerAddr" json:"peerAddr" envconfig:"PEER_ADDR"`
	ClientAddr string `yaml:"clientAddr" json:"clientAddr" envconfig:"CLIENT_ADDR"`
}

type SyncConfig struct {
	// DefaultPeriod drives scheduled runs for configs without their own
	// schedule.
	DefaultPeriod time.Duration `yaml:"defaultPeriod" json:"defaultPeriod" envconfig:"DEFAULT_PERIOD"`
	Workers       int           `yaml:"workers" json:"workers" envconfig:"WORKERS"`
}

type ScriptsConfig struct {
	CacheDir string `yaml:"cacheDir" json:"cacheDir" envconfig:"CACHE_DIR"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     ":8080",
			HealthCheck: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Etcd: EtcdConfig{
			DataDir:    "/var/lib/idgov/etcd",
			Name:       "node-1",
			PeerAddr:   "http://localhost:2380",
			ClientAddr: "http://localhost:2379",
		},
		Sync: SyncConfig{
			DefaultPeriod: 5 * time.Minute,
			Workers:       4,
		},
		Scripts: ScriptsConfig{
			CacheDir: "/var/lib/idgov/scripts",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("idgov", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
