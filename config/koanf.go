// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"praefectus.yaml",
	"praefectus.yml",
	"/etc/praefectus/config.yaml",
	"/etc/praefectus/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config
// file path. It is also how a spawned server or worker child finds the same
// file its parent loaded.
const ConfigPathEnvVar = "PRAEFECTUS_CONFIG"

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PRAEFECTUS_WORKERS=4 sets the "workers" option.
const EnvPrefix = "PRAEFECTUS_"

// envReserved holds PRAEFECTUS_* variables that are process plumbing, not
// configuration, and must not reach the option merge.
var envReserved = map[string]bool{
	"role":         true,
	"worker_id":    true,
	"generation":   true,
	"heartbeat_fd": true,
	"command_fd":   true,
	"config":       true,
	"daemonized":   true,
}

// Load loads configuration with layered sources:
//
//  1. Defaults: Built-in defaults from Default()
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// path may be empty, in which case the file is discovered via
// ConfigPathEnvVar and DefaultConfigPaths. The returned snapshot has been
// validated; the unknown-key check enforces the closed option set.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct.
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	known := make(map[string]bool, len(k.Keys()))
	for _, key := range k.Keys() {
		known[key] = true
	}

	// Layer 2: config file (optional).
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority).
	// PRAEFECTUS_WORKER_HEARTBEAT_TIMEOUT -> worker_heartbeat_timeout
	envProvider := env.Provider(EnvPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// The option set is closed: any key the defaults did not establish is
	// unknown and rejects the whole snapshot.
	for _, key := range k.Keys() {
		if !known[key] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOption, key)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps a prefixed environment variable name to its option
// key: PRAEFECTUS_START_WORKER_DELAY -> start_worker_delay. Reserved
// plumbing variables map to "" which koanf drops.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if envReserved[key] {
		return ""
	}
	return key
}

// Watch registers cb to run whenever the config file at path changes.
// The callback receives no arguments; it is expected to enqueue a reload
// event, not to load configuration itself.
func Watch(path string, cb func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		cb()
	})
}
