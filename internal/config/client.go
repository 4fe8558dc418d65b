package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClientConfig configures the command line client.
type ClientConfig struct {
	ServerURL      string
	APIToken       string
	DataDir        string
	PINHash        string
	PIN            string
	CatalogFile    string
	Timezone       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
}

func LoadClient() *ClientConfig {
	return &ClientConfig{
		ServerURL:      getEnv("DESPESAS_SERVER_URL", "http://localhost:8081"),
		APIToken:       getEnv("API_TOKEN", ""),
		DataDir:        getEnv("DESPESAS_DATA_DIR", defaultDataDir()),
		PINHash:        getEnv("APP_PIN_HASH", ""),
		PIN:            getEnv("APP_PIN", ""),
		CatalogFile:    getEnv("CATALOG_FILE", ""),
		Timezone:       getEnv("APP_TIMEZONE", "Local"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "warn"),
		LogFormat:      getEnv("LOG_FORMAT", "pretty"),
	}
}

// Location resolves APP_TIMEZONE.
func (c *ClientConfig) Location() (*time.Location, error) {
	return loadLocation(c.Timezone)
}

// SessionFile is where the persisted client state lives.
func (c *ClientConfig) SessionFile() string {
	return filepath.Join(c.DataDir, "session.json")
}

// SnapshotFile is where the last feed snapshot is cached for offline use.
func (c *ClientConfig) SnapshotFile() string {
	return filepath.Join(c.DataDir, "snapshot.json")
}

func (c *ClientConfig) Validate() error {
	var errors []string

	if u, err := url.Parse(c.ServerURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid server URL '%s': %v", c.ServerURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid server URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	} else if u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid server URL '%s': missing host", c.ServerURL))
	}

	if c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty")
	}
	if c.PINHash == "" && c.PIN == "" {
		errors = append(errors, "either APP_PIN_HASH or APP_PIN must be provided")
	}
	if c.PINHash != "" && !strings.HasPrefix(c.PINHash, "$2") {
		errors = append(errors, "APP_PIN_HASH must be a bcrypt hash")
	}
	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "despesas")
	}
	return ".despesas"
}
