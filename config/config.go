package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenLifetime = 3600
	DefaultPruneInterval = 300
	DefaultDatabaseName  = "bloodconnect"
	DefaultAuthPerMinute = 30
	DefaultAuthBurst     = 10
)

var ErrMissingSecret = errors.New("SECRET is not set in environment variables")

type Config struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	BcryptCost   int    `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	Env          string `json:"-" yaml:"-"`
	DatabaseUrl  string `json:"-" yaml:"-"`
	DatabaseName string `json:"-" yaml:"-"`
	Secret       []byte `json:"-" yaml:"-"`
	Lifetime     struct {
		/* Оба значения в секундах */
		Token         int64 `json:"token" yaml:"token"`
		PruneInterval int64 `json:"prune_interval" yaml:"prune_interval"`
	} `json:"lifetime" yaml:"lifetime"`
	/* Ограничение на вход и регистрацию с одного ip */
	AuthLimit struct {
		PerMinute int `json:"per_minute" yaml:"per_minute"`
		Burst     int `json:"burst" yaml:"burst"`
	} `json:"auth_limit" yaml:"auth_limit"`
}

func (cfg *Config) TokenLifetime() time.Duration {
	return time.Duration(cfg.Lifetime.Token) * time.Second
}

func (cfg *Config) PruneInterval() time.Duration {
	return time.Duration(cfg.Lifetime.PruneInterval) * time.Second
}

func (cfg *Config) IsDev() bool {
	return cfg.Env == "DEV"
}

// ApplyDefaults fills every zero value that has a sensible default.
func (cfg *Config) ApplyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Lifetime.Token <= 0 {
		cfg.Lifetime.Token = DefaultTokenLifetime
	}
	if cfg.Lifetime.PruneInterval <= 0 {
		cfg.Lifetime.PruneInterval = DefaultPruneInterval
	}
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = DefaultDatabaseName
	}
	if cfg.AuthLimit.PerMinute <= 0 {
		cfg.AuthLimit.PerMinute = DefaultAuthPerMinute
	}
	if cfg.AuthLimit.Burst <= 0 {
		cfg.AuthLimit.Burst = DefaultAuthBurst
	}
}

// Validate is run once at startup so a misconfigured process never serves requests.
func (cfg *Config) Validate() error {
	if len(cfg.Secret) == 0 {
		return ErrMissingSecret
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return errors.New("bcrypt_cost is out of range")
	}
	return nil
}

// Load reads the config file at filePath and overlays the environment.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, err
	}
	cfg.Env = os.Getenv("GO_ENV")
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	cfg.DatabaseName = os.Getenv("DATABASE_NAME")
	cfg.Secret = []byte(os.Getenv("SECRET"))
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func MustLoad(filePath string) *Config {
	cfg, err := Load(filePath)
	if os.IsNotExist(err) {
		log.Fatal("Config at \"" + filePath + "\" not found.")
	}
	if err != nil {
		log.Fatal("Config loading failed with error - " + err.Error())
	}
	return cfg
}

func WriteTemplate(filePath string) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		log.Fatal("Config parsing failed with error - " + err.Error())
	}
	err = os.WriteFile(filePath, data, 0666)
	if err != nil {
		log.Fatal("Failed to save config tempate with error - " + err.Error())
	}
}
