// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog provides the image catalog: a per-source TTL cache
// of published manifests and the resolver that turns a partial query
// (alias, release name, or content-hash prefix) into concrete image
// records across an ordered list of sources.
package catalog

// DefaultSelector is what an empty query selector normalizes to:
// every catalog aliases its recommended image as "default".
const DefaultSelector = "default"

// Query selects an image. The selector may be an alias ("jammy"), a
// release name, a content-hash prefix ("a1b2"), or empty (normalized
// to DefaultSelector).
type Query struct {
	// Selector is the alias, release name, or hash prefix to match.
	Selector string

	// Source restricts the search to one named source. Empty means
	// search all configured sources in priority order. Failures on an
	// explicitly named source are propagated instead of skipped.
	Source string

	// AllowUnsupported admits records whose publisher no longer
	// supports them.
	AllowUnsupported bool
}

// key returns the normalized selector.
func (q Query) key() string {
	if q.Selector == "" {
		return DefaultSelector
	}
	return q.Selector
}

// ImageRecord is one image published by a source. Identity is ID (a
// content hash, unique within a source); aliases and release names
// are mutable labels on top of it. Location fields are source-relative
// in a cached manifest and absolute (prefixed with the source's base
// address) in every record the Host hands out.
type ImageRecord struct {
	Aliases        []string `json:"aliases"`
	OS             string   `json:"os"`
	Release        string   `json:"release"`
	ReleaseTitle   string   `json:"release_title"`
	Supported      bool     `json:"supported"`
	ImageLocation  string   `json:"image_location"`
	KernelLocation string   `json:"kernel_location"`
	InitrdLocation string   `json:"initrd_location"`
	ID             string   `json:"id"`
	StreamLocation string   `json:"stream_location"`
	Version        string   `json:"version"`
	Size           int64    `json:"size"`
	Verify         string   `json:"verify"`
}

// hasAlias reports whether key is one of the record's aliases.
func (r ImageRecord) hasAlias(key string) bool {
	for _, alias := range r.Aliases {
		if alias == key {
			return true
		}
	}
	return false
}

// resolvedAgainst returns a copy of the record with its relative
// locations prefixed by the source's base address. Empty locations
// (no separate kernel or initrd) stay empty.
func (r ImageRecord) resolvedAgainst(baseAddress string) ImageRecord {
	resolved := r
	resolved.ImageLocation = joinLocation(baseAddress, r.ImageLocation)
	resolved.KernelLocation = joinLocation(baseAddress, r.KernelLocation)
	resolved.InitrdLocation = joinLocation(baseAddress, r.InitrdLocation)
	return resolved
}

func joinLocation(baseAddress, location string) string {
	if location == "" {
		return ""
	}
	return baseAddress + location
}

// Source is a named origin publishing one catalog. The ordered source
// list is fixed when a Host is constructed.
type Source struct {
	// Name identifies the source in queries and diagnostics.
	Name string `yaml:"name"`

	// BaseAddress is the address prefix under which the source
	// publishes its index, manifest, and images. It should end with
	// a separator; relative locations are appended to it verbatim.
	BaseAddress string `yaml:"url"`
}

// Match pairs a resolved record with the name of the source that
// published it.
type Match struct {
	Source string
	Record ImageRecord
}
