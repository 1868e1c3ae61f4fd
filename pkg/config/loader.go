package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, AUTHGATE_CONFIG env, ./authgate.yaml, /etc/authgate/authgate.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. AUTHGATE_CONFIG environment variable
// 3. ./authgate.yaml in the current directory
// 4. /etc/authgate/authgate.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("AUTHGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"authgate.yaml",
		"/etc/authgate/authgate.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// A links list in the file replaces the default chain.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps AUTHGATE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTHGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AUTHGATE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AUTHGATE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("AUTHGATE_DEBUG"); v != "" {
		cfg.Log.Debug = v
	}

	// AUTHGATE_API_KEYS: JSON array of API key configs for the first apikey
	// link. An apikey link is put at the front if the chain has none.
	if v := os.Getenv("AUTHGATE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			slog.Warn("ignoring AUTHGATE_API_KEYS", "error", err)
			return
		}
		if len(keys) > 0 {
			apiKeyLink(cfg).Keys = keys
		}
	}
}

// apiKeyLink returns the first apikey link, adding one ahead of the other
// links if needed.
func apiKeyLink(cfg *Config) *LinkConfig {
	for i := range cfg.Auth.Links {
		if cfg.Auth.Links[i].Type == LinkTypeAPIKey {
			return &cfg.Auth.Links[i]
		}
	}
	cfg.Auth.Links = append([]LinkConfig{{Type: LinkTypeAPIKey}}, cfg.Auth.Links...)
	return &cfg.Auth.Links[0]
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Auth.Links {
		link := &cfg.Auth.Links[i]

		// auth.links[*].postgres.dsn_file -> auth.links[*].postgres.dsn
		if link.Postgres.DSNFile != "" && link.Postgres.DSN == "" {
			val, err := readSecretFile(link.Postgres.DSNFile)
			if err != nil {
				return fmt.Errorf("auth.links[%d].postgres.dsn_file: %w", i, err)
			}
			link.Postgres.DSN = val
		}

		// auth.links[*].keys[*].key_file -> auth.links[*].keys[*].key
		for j := range link.Keys {
			if link.Keys[j].KeyFile != "" && link.Keys[j].Key == "" {
				val, err := readSecretFile(link.Keys[j].KeyFile)
				if err != nil {
					return fmt.Errorf("auth.links[%d].keys[%d].key_file: %w", i, j, err)
				}
				link.Keys[j].Key = val
			}
		}

		// auth.links[*].users[*].password_hash_file -> auth.links[*].users[*].password_hash
		for j := range link.Users {
			if link.Users[j].PasswordHashFile != "" && link.Users[j].PasswordHash == "" {
				val, err := readSecretFile(link.Users[j].PasswordHashFile)
				if err != nil {
					return fmt.Errorf("auth.links[%d].users[%d].password_hash_file: %w", i, j, err)
				}
				link.Users[j].PasswordHash = val
			}
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
