// Package config reads process configuration from the environment.
// Only entry points call it; packages receive plain values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultSessionDir    = "."
	defaultUploadTimeout = 2 * time.Minute
)

type Config struct {
	SessionTable  string
	SessionBucket string
	ParamPrefix   string
	SessionDir    string
	UploadTimeout time.Duration
}

// Load reads the session storage configuration. Required variables that are
// unset are reported together so a misconfigured deployment fails once.
func Load() (Config, error) {
	return load(os.Getenv, false)
}

// LoadAdmin is Load plus the SSM parameter prefix the admin API reads its token from.
func LoadAdmin() (Config, error) {
	return load(os.Getenv, true)
}

func load(getenv func(string) string, admin bool) (Config, error) {
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		SessionTable:  required("SESSION_TABLE"),
		SessionBucket: required("SESSION_BUCKET"),
		SessionDir:    envString(getenv, "SESSION_DIR", defaultSessionDir),
		UploadTimeout: envDuration(getenv, "UPLOAD_TIMEOUT", defaultUploadTimeout),
	}
	if admin {
		cfg.ParamPrefix = required("PARAM_PREFIX")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
