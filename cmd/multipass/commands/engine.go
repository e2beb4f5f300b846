// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rim99/multipass/lib/blueprint"
	"github.com/rim99/multipass/lib/catalog"
	"github.com/rim99/multipass/lib/config"
	"github.com/rim99/multipass/lib/fetch"
)

// engine bundles the catalogs a command operates on.
type engine struct {
	config *config.Config
	host   *catalog.Host

	// blueprints is nil when the configuration names no archive.
	blueprints *blueprint.Provider
}

// newEngine loads the configuration and constructs the image and
// blueprint catalogs from it.
func newEngine(ctx context.Context, configPath string, logger *slog.Logger) (*engine, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	imageTTL, err := cfg.ImageTTL()
	if err != nil {
		return nil, err
	}
	blueprintTTL, err := cfg.BlueprintTTL()
	if err != nil {
		return nil, err
	}

	fetcher := &fetch.Client{}
	host, err := catalog.NewHost(ctx, catalog.HostConfig{
		Sources:      cfg.Images.Sources,
		Fetcher:      fetcher,
		TTL:          imageTTL,
		SnapshotPath: filepath.Join(cfg.CacheDir, "manifests.cbor"),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	result := &engine{config: cfg, host: host}
	if cfg.Blueprints.URL != "" {
		provider, err := blueprint.NewProvider(ctx, blueprint.ProviderConfig{
			ArchiveURL: cfg.Blueprints.URL,
			Fetcher:    fetcher,
			CacheDir:   cfg.CacheDir,
			TTL:        blueprintTTL,
			Arch:       cfg.Architecture,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		result.blueprints = provider
	}
	return result, nil
}
