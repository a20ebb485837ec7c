package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type (
	Config struct {
		Server   Server   `toml:"server"`
		Mongo    Mongo    `toml:"mongo"`
		Redis    Redis    `toml:"redis"`
		Auth     Auth     `toml:"auth"`
		Store    Store    `toml:"store"`
		Keystore Keystore `toml:"keystore"`
	}

	Server struct {
		Listen string `toml:"listen"`
	}

	Mongo struct {
		URI      string `toml:"uri"`
		Database string `toml:"database"`
	}

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	}

	Auth struct {
		JWTSecret string `toml:"jwt_secret"`
	}

	Store struct {
		TimeoutMillis int `toml:"timeout_ms"`
	}

	Keystore struct {
		Path       string `toml:"path"`
		Passphrase string `toml:"passphrase"`
	}
)

func Default() *Config {
	return &Config{
		Server: Server{Listen: "localhost:9090"},
		Mongo:  Mongo{URI: "mongodb://localhost:27017", Database: "lrnchat"},
		Redis:  Redis{Addr: "localhost:6379"},
		Store:  Store{TimeoutMillis: 5000},
	}
}

// Load reads the TOML file at path on top of the defaults. An empty path
// returns the defaults untouched. Secrets may always be supplied through the
// environment instead of the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if v := os.Getenv("LRNCHAT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LRNCHAT_KEYSTORE_PASSPHRASE"); v != "" {
		cfg.Keystore.Passphrase = v
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: jwt secret is not set")
	}

	return cfg, nil
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutMillis) * time.Millisecond
}
