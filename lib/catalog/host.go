// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rim99/multipass/lib/clock"
	"github.com/rim99/multipass/lib/fetch"
)

// DefaultTTL is how long a fetched manifest stays fresh unless the
// configuration says otherwise.
const DefaultTTL = 4 * time.Hour

// HostConfig configures a Host.
type HostConfig struct {
	// Sources is the ordered list of catalog sources. Queries without
	// an explicit source search them in this order. Required,
	// immutable after construction.
	Sources []Source

	// Fetcher downloads index and manifest documents. Required.
	Fetcher fetch.Fetcher

	// TTL is the manifest time-to-live. Zero forces a refresh on
	// every access; negative is rejected. If unset by the caller it
	// should be DefaultTTL.
	TTL time.Duration

	// SnapshotPath, when non-empty, is the file the manifest cache is
	// persisted to after each successful refresh and warm-started
	// from at construction.
	SnapshotPath string

	// SourceSupported reports whether a source is usable on this
	// host. Nil means all sources are supported. Unsupported sources
	// are skipped during default iteration and an error when
	// explicitly requested.
	SourceSupported func(source string) bool

	// AliasesSupported reports whether a record with the given
	// aliases is usable from the given source on this host. Nil means
	// all are. Records failing this check are filtered from listings.
	AliasesSupported func(source string, aliases []string) bool

	// Clock supplies the current time for TTL decisions. If nil,
	// clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Host resolves image queries across an ordered list of sources,
// caching one manifest per source under the configured TTL.
type Host struct {
	sources          []Source
	cache            *manifestCache
	sourceSupported  func(string) bool
	aliasesSupported func(string, []string) bool
	snapshotPath     string
	logger           *slog.Logger
}

// NewHost creates a Host and primes its cache: the snapshot (if
// configured) is loaded, then every supported source is refreshed
// once. Transport, empty-catalog, and malformed-catalog failures
// during priming are soft — logged, leaving that source to be retried
// on first access. Any other failure aborts construction.
func NewHost(ctx context.Context, config HostConfig) (*Host, error) {
	if len(config.Sources) == 0 {
		return nil, fmt.Errorf("catalog: at least one source is required")
	}
	if config.Fetcher == nil {
		return nil, fmt.Errorf("catalog: a Fetcher is required")
	}
	if config.TTL < 0 {
		return nil, fmt.Errorf("catalog: TTL must not be negative, got %v", config.TTL)
	}
	seen := make(map[string]bool, len(config.Sources))
	for _, source := range config.Sources {
		if source.Name == "" || source.BaseAddress == "" {
			return nil, fmt.Errorf("catalog: source name and base address are required")
		}
		if seen[source.Name] {
			return nil, fmt.Errorf("catalog: duplicate source %q", source.Name)
		}
		seen[source.Name] = true
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host := &Host{
		sources:          config.Sources,
		cache:            newManifestCache(config.Fetcher, clk, config.TTL, logger),
		sourceSupported:  config.SourceSupported,
		aliasesSupported: config.AliasesSupported,
		snapshotPath:     config.SnapshotPath,
		logger:           logger,
	}

	if host.snapshotPath != "" {
		if err := host.cache.loadSnapshot(host.snapshotPath); err != nil {
			logger.Error("manifest snapshot load failed, starting cold",
				"path", host.snapshotPath,
				"error", err,
			)
		}
	}

	for _, source := range host.sources {
		if !host.supported(source.Name) {
			continue
		}
		if _, _, err := host.cache.get(ctx, source); err != nil {
			if !isSoftCatalogError(err) {
				return nil, fmt.Errorf("catalog: priming source %q: %w", source.Name, err)
			}
			// Already logged by the cache.
			continue
		}
	}
	host.saveSnapshot()

	return host, nil
}

// isSoftCatalogError reports whether a refresh failure is one of the
// classified kinds that degrade to a stale or empty cache. Anything
// else is an unexpected runtime fault and aborts construction.
func isSoftCatalogError(err error) bool {
	var transport *fetch.TransportError
	var empty *EmptyCatalogError
	var malformed *MalformedCatalogError
	return errors.As(err, &transport) || errors.As(err, &empty) || errors.As(err, &malformed)
}

// Sources returns the names of the configured sources in priority
// order.
func (h *Host) Sources() []string {
	names := make([]string, len(h.sources))
	for i, source := range h.sources {
		names[i] = source.Name
	}
	return names
}

// Clear drops every cached manifest. Used for forced invalidation,
// e.g. after detecting corruption; the next access refreshes.
func (h *Host) Clear() {
	h.cache.clear()
}

// Resolve returns the single best match for the query, or ok=false
// when nothing matches (the caller decides whether that is an error).
//
// A hash-prefix selector matching more than one distinct id is
// ambiguous unless the selector equals a full id exactly.
func (h *Host) Resolve(ctx context.Context, query Query) (ImageRecord, bool, error) {
	matches, err := h.ResolveAll(ctx, query)
	if err != nil {
		return ImageRecord{}, false, err
	}
	if len(matches) == 0 {
		return ImageRecord{}, false, nil
	}

	key := query.key()

	// A selector that is a complete id is never ambiguous, even when
	// other ids share it as a prefix.
	for _, match := range matches {
		if match.Record.ID == key {
			return match.Record, true, nil
		}
	}

	first := matches[0].Record
	if len(matches) > 1 && strings.HasPrefix(first.ID, key) {
		return ImageRecord{}, false, &AmbiguousMatchError{Selector: query.Selector}
	}

	// Not a hash-prefix collision, so the highest-priority match wins.
	return first, true, nil
}

// ResolveAll returns every match for the query in source priority
// order, with locations fully resolved. Per source, an exact alias
// match wins; otherwise every record whose id starts with the selector
// matches, deduplicated by id. Sources that are unsupported or
// unreachable are skipped unless the query names one explicitly.
func (h *Host) ResolveAll(ctx context.Context, query Query) ([]Match, error) {
	key := query.key()

	candidates, err := h.candidateSources(query.Source)
	if err != nil {
		return nil, err
	}

	explicit := query.Source != ""
	var matches []Match

	for _, source := range candidates {
		manifest, outcome, err := h.sourceManifest(ctx, source, explicit)
		switch outcome {
		case sourceSkip:
			continue
		case sourceAbort:
			return nil, err
		}

		if record, ok := matchAlias(manifest, key); ok {
			if !record.Supported && !query.AllowUnsupported {
				return nil, &UnsupportedImageError{Selector: query.Selector}
			}
			matches = append(matches, Match{
				Source: source.Name,
				Record: record.resolvedAgainst(source.BaseAddress),
			})
			continue
		}

		foundHashes := make(map[string]bool)
		for _, record := range manifest.Products {
			if strings.HasPrefix(record.ID, key) &&
				(record.Supported || query.AllowUnsupported) &&
				!foundHashes[record.ID] {
				matches = append(matches, Match{
					Source: source.Name,
					Record: record.resolvedAgainst(source.BaseAddress),
				})
				foundHashes[record.ID] = true
			}
		}
	}

	return matches, nil
}

// ResolveFullHash returns the record whose id equals hash exactly,
// searching every supported source. A miss is an UnknownHashError.
func (h *Host) ResolveFullHash(ctx context.Context, hash string) (ImageRecord, error) {
	for _, source := range h.sources {
		manifest, outcome, _ := h.sourceManifest(ctx, source, false)
		if outcome != sourceUse {
			continue
		}
		for _, record := range manifest.Products {
			if record.ID == hash {
				return record.resolvedAgainst(source.BaseAddress), nil
			}
		}
	}
	return ImageRecord{}, &UnknownHashError{Hash: hash}
}

// AllImages returns every usable record of one source with locations
// resolved. The source is explicit by definition, so unsupported and
// unreachable conditions propagate; a source with zero usable records
// is an EmptyCatalogError.
func (h *Host) AllImages(ctx context.Context, sourceName string, allowUnsupported bool) ([]ImageRecord, error) {
	source, ok := h.sourceByName(sourceName)
	if !ok {
		return nil, &UnknownSourceError{Source: sourceName}
	}

	manifest, _, err := h.sourceManifest(ctx, source, true)
	if err != nil {
		return nil, err
	}

	var records []ImageRecord
	for _, record := range manifest.Products {
		if (record.Supported || allowUnsupported) && h.aliasesUsable(source.Name, record.Aliases) {
			records = append(records, record.resolvedAgainst(source.BaseAddress))
		}
	}
	if len(records) == 0 {
		return nil, &EmptyCatalogError{Source: sourceName}
	}
	return records, nil
}

// ForEach calls fn for every usable record of every supported source,
// refreshing stale manifests first. Unreachable sources are skipped.
func (h *Host) ForEach(ctx context.Context, fn func(source string, record ImageRecord) error) error {
	for _, source := range h.sources {
		manifest, outcome, _ := h.sourceManifest(ctx, source, false)
		if outcome != sourceUse {
			continue
		}
		for _, record := range manifest.Products {
			if !h.aliasesUsable(source.Name, record.Aliases) {
				continue
			}
			if err := fn(source.Name, record.resolvedAgainst(source.BaseAddress)); err != nil {
				return err
			}
		}
	}
	return nil
}

// sourceOutcome classifies one source during iteration: use its
// manifest, skip it, or abort the whole operation.
type sourceOutcome int

const (
	sourceUse sourceOutcome = iota
	sourceSkip
	sourceAbort
)

// sourceManifest fetches (or re-uses) one source's manifest and
// classifies the result. The decision table:
//
//	condition                 optional source    explicit source
//	unsupported on this host  skip               abort
//	refresh failed, stale ok  use stale          use stale
//	refresh failed, no cache  skip               abort (unreachable)
//	fresh or refreshed        use                use
//
// A successful refresh also updates the on-disk snapshot.
func (h *Host) sourceManifest(ctx context.Context, source Source, explicit bool) (*Manifest, sourceOutcome, error) {
	if !h.supported(source.Name) {
		if explicit {
			return nil, sourceAbort, &UnsupportedSourceError{Source: source.Name}
		}
		return nil, sourceSkip, nil
	}

	manifest, refreshed, err := h.cache.get(ctx, source)
	if refreshed {
		h.saveSnapshot()
	}
	if err != nil && len(manifest.Products) == 0 {
		if explicit {
			return nil, sourceAbort, &UnreachableSourceError{Source: source.Name, Err: err}
		}
		return nil, sourceSkip, nil
	}
	return manifest, sourceUse, nil
}

// candidateSources returns the sources to search for a query: the one
// named source (which must exist), or all of them in priority order.
func (h *Host) candidateSources(sourceName string) ([]Source, error) {
	if sourceName == "" {
		return h.sources, nil
	}
	source, ok := h.sourceByName(sourceName)
	if !ok {
		return nil, &UnknownSourceError{Source: sourceName}
	}
	return []Source{source}, nil
}

func (h *Host) sourceByName(name string) (Source, bool) {
	for _, source := range h.sources {
		if source.Name == name {
			return source, true
		}
	}
	return Source{}, false
}

func (h *Host) supported(sourceName string) bool {
	return h.sourceSupported == nil || h.sourceSupported(sourceName)
}

func (h *Host) aliasesUsable(sourceName string, aliases []string) bool {
	return h.aliasesSupported == nil || h.aliasesSupported(sourceName, aliases)
}

// saveSnapshot persists the cache if a snapshot path is configured.
// Best effort: a failed save costs a cold start later, nothing more.
func (h *Host) saveSnapshot() {
	if h.snapshotPath == "" {
		return
	}
	if err := h.cache.saveSnapshot(h.snapshotPath); err != nil {
		h.logger.Error("manifest snapshot save failed",
			"path", h.snapshotPath,
			"error", err,
		)
	}
}

// matchAlias returns the record whose alias set contains key.
func matchAlias(manifest *Manifest, key string) (ImageRecord, bool) {
	for _, record := range manifest.Products {
		if record.hasAlias(key) {
			return record, true
		}
	}
	return ImageRecord{}, false
}
