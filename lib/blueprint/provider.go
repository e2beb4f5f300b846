// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package blueprint provides the blueprint catalog: a TTL-cached,
// remotely published archive of declarative instance templates, and
// the merge of their minimum-resource constraints into an instance
// specification.
//
// The whole catalog is one compressed archive. Refresh follows the
// same lazy TTL policy as the image catalog: the archive is
// re-downloaded on the first access after the TTL elapses, extracted
// into a working directory, and individual documents are parsed per
// lookup so that one corrupt document cannot take down the rest.
package blueprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rim99/multipass/lib/clock"
	"github.com/rim99/multipass/lib/fetch"
)

// DefaultTTL is how long a fetched blueprint archive stays fresh
// unless the configuration says otherwise.
const DefaultTTL = time.Hour

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// ArchiveURL locates the blueprint archive (a ".tar.zst" or
	// ".tar.lz4" file). Required.
	ArchiveURL string

	// Fetcher downloads the archive. Required.
	Fetcher fetch.Fetcher

	// CacheDir is where the archive and its extracted documents are
	// kept. Created if missing. Required.
	CacheDir string

	// TTL is the archive time-to-live. Zero forces a refresh on
	// every access; negative is rejected. If unset by the caller it
	// should be DefaultTTL.
	TTL time.Duration

	// Arch is the host architecture blueprints are filtered against
	// (e.g. "amd64"). Required.
	Arch string

	// Clock supplies the current time for TTL decisions. If nil,
	// clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Metadata is the listing information of one blueprint.
type Metadata struct {
	// Name is the blueprint's (host-name-legal) identifier, which
	// doubles as the alias an instance is launched from.
	Name string `json:"name"`

	// Description is the blueprint's human-readable summary.
	Description string `json:"description"`

	// Version is the blueprint's published version string.
	Version string `json:"version"`
}

// Provider is the blueprint catalog.
type Provider struct {
	archiveURL  string
	fetcher     fetch.Fetcher
	archivePath string
	workDir     string
	ttl         time.Duration
	arch        string
	clock       clock.Clock
	logger      *slog.Logger

	// documents maps blueprint name to its extracted document file.
	// Replaced wholesale on refresh, never patched.
	documents map[string]string

	fetchedAt   time.Time
	primed      bool
	needsUpdate bool
	lastDigest  [32]byte
	extracted   bool
}

// NewProvider creates a Provider and performs the initial archive
// fetch. Transport failures and malformed archives during that fetch
// are soft — logged, leaving an empty catalog that retries on first
// access. Anything else (an unusable cache directory, a failing
// extraction write) aborts construction.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ArchiveURL == "" {
		return nil, fmt.Errorf("blueprint: an archive URL is required")
	}
	if config.Fetcher == nil {
		return nil, fmt.Errorf("blueprint: a Fetcher is required")
	}
	if config.CacheDir == "" {
		return nil, fmt.Errorf("blueprint: a cache directory is required")
	}
	if config.Arch == "" {
		return nil, fmt.Errorf("blueprint: a host architecture is required")
	}
	if config.TTL < 0 {
		return nil, fmt.Errorf("blueprint: TTL must not be negative, got %v", config.TTL)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workDir := filepath.Join(config.CacheDir, "blueprints")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("blueprint: creating working directory: %w", err)
	}

	provider := &Provider{
		archiveURL:  config.ArchiveURL,
		fetcher:     config.Fetcher,
		archivePath: filepath.Join(config.CacheDir, archiveFileName(config.ArchiveURL)),
		workDir:     workDir,
		ttl:         config.TTL,
		arch:        config.Arch,
		clock:       clk,
		logger:      logger,
		documents:   make(map[string]string),
	}

	if err := provider.refresh(ctx); err != nil && !isSoftArchiveError(err) {
		return nil, fmt.Errorf("blueprint: initial fetch: %w", err)
	}
	return provider, nil
}

// archiveFileName derives the local archive file name from the URL so
// the extension (and with it the compression codec) is preserved.
func archiveFileName(archiveURL string) string {
	if parsed, err := url.Parse(archiveURL); err == nil && parsed.Path != "" {
		if base := filepath.Base(parsed.Path); base != "." && base != "/" {
			return base
		}
	}
	return "blueprints.tar.zst"
}

// isSoftArchiveError reports whether a refresh failure degrades to
// serving the previous extraction instead of aborting.
func isSoftArchiveError(err error) bool {
	var transport *fetch.TransportError
	var malformed *MalformedArchiveError
	return errors.As(err, &transport) || errors.As(err, &malformed)
}

// refresh re-downloads and re-extracts the archive if the cached copy
// is missing, stale, or marked for update. Failures keep the previous
// documents and are logged; the error is also returned so the caller
// can decide whether an empty catalog is fatal for its operation.
func (p *Provider) refresh(ctx context.Context) error {
	fresh := p.primed && !p.needsUpdate &&
		p.ttl > 0 && p.clock.Now().Sub(p.fetchedAt) < p.ttl
	if fresh {
		return nil
	}

	if err := p.fetchArchive(ctx); err != nil {
		p.logger.Error("blueprint refresh failed, keeping previous catalog",
			"url", p.archiveURL,
			"error", err,
		)
		return err
	}

	p.fetchedAt = p.clock.Now()
	p.primed = true
	p.needsUpdate = false
	return nil
}

// fetchArchive downloads the archive and extracts it, skipping the
// extraction when the archive bytes are unchanged since last time.
func (p *Provider) fetchArchive(ctx context.Context) error {
	if err := p.fetcher.DownloadTo(ctx, p.archiveURL, p.archivePath); err != nil {
		return err
	}

	digest, err := archiveDigest(p.archivePath)
	if err != nil {
		return err
	}
	if p.extracted && digest == p.lastDigest {
		return nil
	}

	result, err := extractArchive(p.archivePath, p.workDir, p.logger)
	if err != nil {
		return err
	}

	p.documents = result.documents
	p.lastDigest = digest
	p.extracted = true
	if result.rejected {
		// A rejected entry may be fixed upstream at any moment;
		// check again on the next access instead of waiting out the
		// TTL.
		p.needsUpdate = true
	}
	return nil
}

// ensure refreshes and then reports whether the catalog is usable: a
// failed refresh over an empty catalog is a hard error for direct
// lookups, while stale documents keep serving.
func (p *Provider) ensure(ctx context.Context) error {
	err := p.refresh(ctx)
	if err != nil && len(p.documents) == 0 {
		return err
	}
	return nil
}

// markInvalid flags the cache for refresh when a document failed
// validation: the published archive may already carry a fix.
func (p *Provider) markInvalid(err error) {
	var invalid *InvalidBlueprintError
	if errors.As(err, &invalid) {
		p.needsUpdate = true
	}
}

// Clear drops the extracted catalog unconditionally. The next access
// re-downloads and re-extracts the archive.
func (p *Provider) Clear() {
	p.documents = make(map[string]string)
	p.primed = false
	p.extracted = false
	p.needsUpdate = false
}

// Names returns the names of all documents in the catalog, sorted,
// without validating them.
func (p *Provider) Names(ctx context.Context) ([]string, error) {
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(p.documents))
	for name := range p.documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Info returns the listing metadata of one blueprint. An unknown name
// is an UnknownBlueprintError; a document incompatible with the host
// architecture is an IncompatibleBlueprintError.
func (p *Provider) Info(ctx context.Context, name string) (Metadata, error) {
	if err := p.ensure(ctx); err != nil {
		return Metadata{}, err
	}
	return p.info(name)
}

// info validates and summarizes one document without refreshing.
func (p *Provider) info(name string) (Metadata, error) {
	path, ok := p.documents[name]
	if !ok {
		return Metadata{}, &UnknownBlueprintError{Name: name}
	}

	doc, err := loadDocument(name, path)
	if err != nil {
		p.markInvalid(err)
		return Metadata{}, err
	}

	if err := doc.checkArch(p.arch); err != nil {
		p.markInvalid(err)
		return Metadata{}, err
	}

	description, err := doc.requiredString(descriptionKey)
	if err != nil {
		p.markInvalid(err)
		return Metadata{}, err
	}
	version, err := doc.requiredString(versionKey)
	if err != nil {
		p.markInvalid(err)
		return Metadata{}, err
	}

	return Metadata{Name: name, Description: description, Version: version}, nil
}

// List returns the metadata of every valid blueprint compatible with
// the host architecture, sorted by name. Invalid documents are logged
// and skipped; incompatible ones are skipped quietly. Neither aborts
// the listing.
func (p *Provider) List(ctx context.Context) ([]Metadata, error) {
	// A refresh failure over a previous extraction degrades to a
	// stale listing; over nothing it degrades to an empty one.
	if err := p.refresh(ctx); err != nil && len(p.documents) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(p.documents))
	for name := range p.documents {
		names = append(names, name)
	}
	sort.Strings(names)

	listing := make([]Metadata, 0, len(names))
	for _, name := range names {
		metadata, err := p.info(name)

		var invalid *InvalidBlueprintError
		var incompatible *IncompatibleBlueprintError
		switch {
		case err == nil:
			listing = append(listing, metadata)
		case errors.As(err, &invalid):
			// info already marked the cache for refresh; the mark
			// only takes effect on the next access, so the listing
			// itself completes from the current extraction.
			p.logger.Error("invalid blueprint", "error", err)
		case errors.As(err, &incompatible):
			p.logger.Debug("skipping incompatible blueprint", "error", err)
		default:
			return nil, err
		}
	}

	return listing, nil
}

// Timeout returns the blueprint's launch timeout. A blueprint that
// declares none (or does not exist) yields zero, matching "no
// timeout"; a declared value that is not a non-negative integer is an
// InvalidBlueprintError.
func (p *Provider) Timeout(ctx context.Context, name string) (time.Duration, error) {
	if err := p.ensure(ctx); err != nil {
		return 0, err
	}

	path, ok := p.documents[name]
	if !ok {
		return 0, nil
	}
	doc, err := loadDocument(name, path)
	if err != nil {
		p.markInvalid(err)
		return 0, err
	}

	seconds, err := doc.timeout()
	if err != nil {
		p.markInvalid(err)
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}
