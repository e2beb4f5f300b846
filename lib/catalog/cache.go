// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rim99/multipass/lib/clock"
	"github.com/rim99/multipass/lib/fetch"
)

// cacheEntry holds one source's last successfully parsed manifest and
// when it was fetched. Entries are replaced wholesale on refresh.
type cacheEntry struct {
	manifest  *Manifest
	fetchedAt time.Time
}

// manifestCache is the per-source TTL cache. Freshness is evaluated
// lazily on access; there is no background refresh. The cache itself
// never decides soft versus hard: get returns both the best available
// manifest and the refresh error (if any), and the caller applies the
// propagation policy for its call site.
type manifestCache struct {
	fetcher fetch.Fetcher
	clock   clock.Clock
	ttl     time.Duration
	logger  *slog.Logger

	entries map[string]cacheEntry
}

func newManifestCache(fetcher fetch.Fetcher, clk clock.Clock, ttl time.Duration, logger *slog.Logger) *manifestCache {
	return &manifestCache{
		fetcher: fetcher,
		clock:   clk,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the manifest for source, refreshing it first if the
// entry is missing or stale. ttl = 0 forces a refresh on every call.
// The second result reports whether a refresh replaced the entry.
//
// On refresh failure the previous entry is left untouched and
// returned (stale answers beat no answers); if no entry exists yet an
// empty manifest is returned. The refresh error is returned alongside
// in both cases so explicit-source call sites can propagate it.
func (c *manifestCache) get(ctx context.Context, source Source) (*Manifest, bool, error) {
	entry, ok := c.entries[source.Name]
	if ok && c.ttl > 0 && c.clock.Now().Sub(entry.fetchedAt) < c.ttl {
		return entry.manifest, false, nil
	}

	err := c.refresh(ctx, source)
	if entry, ok := c.entries[source.Name]; ok {
		return entry.manifest, err == nil, err
	}
	return &Manifest{}, false, err
}

// refresh downloads and parses the source's index and manifest, then
// atomically replaces the cache entry. On any failure the previous
// entry (if any) is kept and the failure is logged and returned.
func (c *manifestCache) refresh(ctx context.Context, source Source) error {
	manifest, err := c.download(ctx, source)
	if err != nil {
		c.logger.Error("manifest refresh failed, keeping previous manifest",
			"source", source.Name,
			"error", err,
		)
		return err
	}

	c.entries[source.Name] = cacheEntry{manifest: manifest, fetchedAt: c.clock.Now()}
	return nil
}

func (c *manifestCache) download(ctx context.Context, source Source) (*Manifest, error) {
	indexData, err := c.fetcher.Download(ctx, source.BaseAddress+indexPath)
	if err != nil {
		return nil, err
	}
	parsedIndex, err := parseIndex(indexData)
	if err != nil {
		return nil, &MalformedCatalogError{Source: source.Name, Err: err}
	}

	manifestData, err := c.fetcher.Download(ctx, source.BaseAddress+parsedIndex.ManifestPath)
	if err != nil {
		return nil, err
	}
	manifest, err := parseManifest(manifestData)
	if errors.Is(err, errNoProducts) {
		return nil, &EmptyCatalogError{Source: source.Name}
	}
	if err != nil {
		return nil, &MalformedCatalogError{Source: source.Name, Err: err}
	}
	return manifest, nil
}

// clear drops all entries unconditionally. The next access per source
// refreshes from scratch.
func (c *manifestCache) clear() {
	c.entries = make(map[string]cacheEntry)
}
