// Package config loads relay configuration from a YAML file and overlays
// secrets from the environment. Secrets never live in the YAML file in
// normal operation; a .env file in the working directory is loaded when
// present.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

const (
	// EnvBridgeToken carries the shared bridge session token.
	EnvBridgeToken = "JERRY_BRIDGE_TOKEN"
	// EnvAPIKeys carries the comma-delimited upstream API key pool.
	EnvAPIKeys = "JERRY_API_KEYS"
	// EnvBridgeURL overrides the bridge websocket URL.
	EnvBridgeURL = "JERRY_BRIDGE_URL"
)

// Load reads the YAML file at path (missing file is not an error: defaults
// apply), overlays environment variables, and fills defaults.
func Load(path string) (model.Config, error) {
	var cfg model.Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Config file is optional.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	loadDotEnv()
	applyEnv(&cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// loadDotEnv loads a .env file from the working directory when present.
// godotenv never overrides variables already set in the real environment.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		godotenv.Load(".env")
	}
}

// applyEnv overlays environment values. Environment wins over the file for
// secrets so a token checked into a config file cannot shadow the real one.
func applyEnv(cfg *model.Config) {
	if v := os.Getenv(EnvBridgeToken); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv(EnvAPIKeys); v != "" {
		cfg.Keys.Raw = v
	}
	if v := os.Getenv(EnvBridgeURL); v != "" {
		cfg.Bridge.URL = v
	}
}
