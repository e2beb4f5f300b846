// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides engine configuration loading.
//
// Configuration is a single YAML file naming the cache directory, the
// host architecture, the ordered image sources, and the blueprint
// archive:
//
//	cache_dir: /var/cache/multipass
//	architecture: amd64
//	images:
//	  ttl: 4h
//	  sources:
//	    - name: release
//	      url: https://images.example.net/releases/
//	blueprints:
//	  ttl: 1h
//	  url: https://blueprints.example.net/blueprints.tar.zst
//
// There are no fallbacks or automatic discovery: the file the caller
// names is the whole configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rim99/multipass/lib/blueprint"
	"github.com/rim99/multipass/lib/catalog"
)

// Config is the engine configuration.
type Config struct {
	// CacheDir is where manifest snapshots and extracted blueprint
	// documents are kept.
	CacheDir string `yaml:"cache_dir"`

	// Architecture is the host architecture blueprints are filtered
	// against (e.g. "amd64", "arm64").
	Architecture string `yaml:"architecture"`

	// Images configures the image catalog.
	Images ImagesConfig `yaml:"images"`

	// Blueprints configures the blueprint catalog.
	Blueprints BlueprintsConfig `yaml:"blueprints"`
}

// ImagesConfig configures the image catalog: its manifest TTL and the
// ordered list of sources searched by default.
type ImagesConfig struct {
	// TTL is how long a fetched manifest stays fresh, in
	// time.ParseDuration syntax ("4h", "30m"). Empty means the
	// catalog default; "0" forces a refresh on every access.
	TTL string `yaml:"ttl"`

	// Sources is the ordered list of image sources. Order is search
	// priority. At least one is required.
	Sources []catalog.Source `yaml:"sources"`
}

// BlueprintsConfig configures the blueprint catalog.
type BlueprintsConfig struct {
	// TTL is how long a fetched archive stays fresh. Empty means the
	// catalog default; "0" forces a refresh on every access.
	TTL string `yaml:"ttl"`

	// URL locates the blueprint archive. Empty disables the
	// blueprint catalog entirely.
	URL string `yaml:"url"`
}

// architecturePattern matches GOARCH-style architecture names.
var architecturePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Default returns the configuration used when the file leaves a value
// unset. It carries no image sources; Validate rejects it until the
// caller's file provides at least one.
func Default() *Config {
	return &Config{
		CacheDir:     "/var/cache/multipass",
		Architecture: "amd64",
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if !architecturePattern.MatchString(c.Architecture) {
		return fmt.Errorf("invalid architecture %q", c.Architecture)
	}

	if len(c.Images.Sources) == 0 {
		return fmt.Errorf("at least one image source is required")
	}
	seen := make(map[string]bool, len(c.Images.Sources))
	for _, source := range c.Images.Sources {
		if source.Name == "" {
			return fmt.Errorf("image sources must be named")
		}
		if source.BaseAddress == "" {
			return fmt.Errorf("image source %q has no url", source.Name)
		}
		if seen[source.Name] {
			return fmt.Errorf("duplicate image source %q", source.Name)
		}
		seen[source.Name] = true
	}

	if _, err := parseTTL(c.Images.TTL, 0); err != nil {
		return fmt.Errorf("images.ttl: %w", err)
	}
	if _, err := parseTTL(c.Blueprints.TTL, 0); err != nil {
		return fmt.Errorf("blueprints.ttl: %w", err)
	}
	return nil
}

// ImageTTL returns the manifest TTL, falling back to the catalog
// default when the file leaves it unset.
func (c *Config) ImageTTL() (time.Duration, error) {
	return parseTTL(c.Images.TTL, catalog.DefaultTTL)
}

// BlueprintTTL returns the blueprint archive TTL, falling back to the
// catalog default when the file leaves it unset.
func (c *Config) BlueprintTTL() (time.Duration, error) {
	return parseTTL(c.Blueprints.TTL, blueprint.DefaultTTL)
}

func parseTTL(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	if value == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", value)
	}
	return ttl, nil
}
