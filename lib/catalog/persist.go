// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// The manifest cache is persisted to the cache directory as a CBOR
// snapshot so a restarted engine answers from the previous manifests
// until their TTL expires, instead of hitting every source at startup.
// CBOR keeps the snapshot compact and encodes time.Time natively.

// snapshotVersion guards against decoding snapshots written by an
// incompatible build. Bump when the entry layout changes.
const snapshotVersion = 1

type snapshot struct {
	Version int                      `cbor:"version"`
	Entries map[string]snapshotEntry `cbor:"entries"`
}

type snapshotEntry struct {
	FetchedAt time.Time `cbor:"fetched_at"`
	Manifest  Manifest  `cbor:"manifest"`
}

// saveSnapshot writes the current entries to path atomically.
func (c *manifestCache) saveSnapshot(path string) error {
	state := snapshot{
		Version: snapshotVersion,
		Entries: make(map[string]snapshotEntry, len(c.entries)),
	}
	for name, entry := range c.entries {
		state.Entries[name] = snapshotEntry{
			FetchedAt: entry.fetchedAt,
			Manifest:  *entry.manifest,
		}
	}

	data, err := cbor.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding manifest snapshot: %w", err)
	}

	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest snapshot: %w", err)
	}
	if err := os.Rename(temp, path); err != nil {
		os.Remove(temp)
		return fmt.Errorf("writing manifest snapshot: %w", err)
	}
	return nil
}

// loadSnapshot replaces the cache entries with those from path. A
// missing file is not an error (first run). Entries keep their
// original fetch time, so the TTL keeps counting across restarts.
func (c *manifestCache) loadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading manifest snapshot: %w", err)
	}

	var state snapshot
	if err := cbor.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decoding manifest snapshot: %w", err)
	}
	if state.Version != snapshotVersion {
		return fmt.Errorf("manifest snapshot version %d, want %d", state.Version, snapshotVersion)
	}

	entries := make(map[string]cacheEntry, len(state.Entries))
	for name, entry := range state.Entries {
		manifest := entry.Manifest
		entries[name] = cacheEntry{manifest: &manifest, fetchedAt: entry.FetchedAt}
	}
	c.entries = entries
	return nil
}
