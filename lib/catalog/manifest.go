// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// indexPath is where every source publishes its index document,
// relative to the source's base address.
const indexPath = "streams/v1/index.json"

// Manifest is the parsed catalog of one source: an ordered sequence of
// image records, immutable once parsed. A refresh replaces the whole
// manifest; it is never patched in place.
type Manifest struct {
	Products []ImageRecord `json:"products"`
}

// index is the wire format of the per-source index document: a
// relative pointer to the manifest.
type index struct {
	ManifestPath string `json:"manifest_path"`
}

// parseIndex decodes an index document. Index and manifest documents
// are JSONC: JSON extended with comments and trailing commas, which
// mirror operators sometimes leave in hand-edited feeds. Comments are
// stripped before decoding.
func parseIndex(data []byte) (index, error) {
	var parsed index
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return index{}, fmt.Errorf("parsing index: %w", err)
	}
	if parsed.ManifestPath == "" {
		return index{}, fmt.Errorf("index has no manifest_path")
	}
	return parsed, nil
}

// parseManifest decodes a manifest document. A manifest with zero
// products is an error: it would make every lookup silently miss, so
// the caller keeps the previous manifest instead.
func parseManifest(data []byte) (*Manifest, error) {
	var parsed Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(parsed.Products) == 0 {
		return nil, errNoProducts
	}
	return &parsed, nil
}

// errNoProducts distinguishes the empty-manifest case from a decode
// failure so the cache can raise EmptyCatalogError for it.
var errNoProducts = fmt.Errorf("manifest has no products")
