package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "strike-ab.yaml"
	DefaultDBPath     = "./strike-ab.db"
	tokenFileName     = ".strike-ab-token"
	envPrefix         = "STRIKE_AB_"
)

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection URL for postgres
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TokenFile string `yaml:"token_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// Load reads the YAML file at configPath (DefaultConfigPath when empty; a
// missing file is fine), loads .env into the environment, then applies
// STRIKE_AB_* overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = DefaultDBPath
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver %q not supported (memory, sqlite, postgres)", c.Store.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q not supported", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q not supported", c.Log.Format)
	}
	return nil
}

// Addr is the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TokenFilePath is where the server writes its admin token. By default it
// sits next to the SQLite database.
func (c *Config) TokenFilePath() string {
	if c.Server.TokenFile != "" {
		return c.Server.TokenFile
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN != "" {
		return filepath.Join(filepath.Dir(c.Store.DSN), tokenFileName)
	}
	return tokenFileName
}

func applyEnvOverrides(c *Config) {
	setString(&c.Store.Driver, envPrefix+"STORE_DRIVER")
	setString(&c.Store.DSN, envPrefix+"STORE_DSN")
	setString(&c.Server.Host, envPrefix+"SERVER_HOST")
	setInt(&c.Server.Port, envPrefix+"SERVER_PORT")
	setString(&c.Server.TokenFile, envPrefix+"SERVER_TOKEN_FILE")
	setString(&c.Log.Level, envPrefix+"LOG_LEVEL")
	setString(&c.Log.Format, envPrefix+"LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
