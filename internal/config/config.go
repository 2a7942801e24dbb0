// Package config loads settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key, e.g. REKLAMA_API_URL.
const EnvPrefix = "REKLAMA"

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	APIURL          string        `mapstructure:"API_URL"`
	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	CredentialStore string        `mapstructure:"CREDENTIAL_STORE"`
	CredentialPath  string        `mapstructure:"CREDENTIAL_PATH"`
	CredentialSlot  string        `mapstructure:"CREDENTIAL_SLOT"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	UploadMaxBytes  int64         `mapstructure:"UPLOAD_MAX_BYTES"`
	ApplicationCost float64       `mapstructure:"APPLICATION_COST"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`

	SandboxAddr           string   `mapstructure:"SANDBOX_ADDR"`
	SandboxJWTSecret      string   `mapstructure:"SANDBOX_JWT_SECRET"`
	SandboxAdmins         []string `mapstructure:"SANDBOX_ADMINS"`
	SandboxAllowedOrigins []string `mapstructure:"SANDBOX_ALLOWED_ORIGINS"`
	SandboxLegacyStatus   bool     `mapstructure:"SANDBOX_LEGACY_STATUS"`
}

var keys = []string{
	"API_URL", "HTTP_TIMEOUT",
	"CREDENTIAL_STORE", "CREDENTIAL_PATH", "CREDENTIAL_SLOT",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"UPLOAD_MAX_BYTES", "APPLICATION_COST",
	"LOG_LEVEL", "LOG_FORMAT",
	"SANDBOX_ADDR", "SANDBOX_JWT_SECRET", "SANDBOX_ADMINS", "SANDBOX_ALLOWED_ORIGINS", "SANDBOX_LEGACY_STATUS",
}

func defaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".reklama", "credential.json")
	}
	return filepath.Join(home, ".reklama", "credential.json")
}

// Load reads envFiles (".env" when none are given; missing files are skipped)
// and then the environment. Variables already set in the environment win over
// the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetDefault("API_URL", "http://localhost:8000")
	viper.SetDefault("HTTP_TIMEOUT", "15s")
	viper.SetDefault("CREDENTIAL_STORE", StoreFile)
	viper.SetDefault("CREDENTIAL_PATH", defaultCredentialPath())
	viper.SetDefault("CREDENTIAL_SLOT", "token")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("UPLOAD_MAX_BYTES", 50<<20)
	viper.SetDefault("APPLICATION_COST", 50.0)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("SANDBOX_ADDR", ":8000")
	viper.SetDefault("SANDBOX_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s_API_URL must be an absolute http(s) url, got %q", EnvPrefix, c.APIURL)
	}
	switch c.CredentialStore {
	case StoreFile:
		if c.CredentialPath == "" {
			return fmt.Errorf("%s_CREDENTIAL_PATH is required for the file store", EnvPrefix)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%s_REDIS_ADDR is required for the redis store", EnvPrefix)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%s_CREDENTIAL_STORE must be file, redis or memory, got %q", EnvPrefix, c.CredentialStore)
	}
	if c.CredentialSlot == "" {
		return fmt.Errorf("%s_CREDENTIAL_SLOT must not be empty", EnvPrefix)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%s_HTTP_TIMEOUT must be positive", EnvPrefix)
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("%s_UPLOAD_MAX_BYTES must be positive", EnvPrefix)
	}
	if c.ApplicationCost <= 0 {
		return fmt.Errorf("%s_APPLICATION_COST must be positive", EnvPrefix)
	}
	return nil
}
