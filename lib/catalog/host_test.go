// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rim99/multipass/lib/clock"
	"github.com/rim99/multipass/lib/testutil"
)

func sourceAddress(name string) string {
	return fmt.Sprintf("https://%s.test/", name)
}

// serveSource registers index and manifest responses for a source on
// the stub fetcher.
func serveSource(t *testing.T, fetcher *testutil.StubFetcher, name string, records []ImageRecord) {
	t.Helper()

	base := sourceAddress(name)
	fetcher.Respond(base+"streams/v1/index.json", []byte(`{"manifest_path": "streams/v1/manifest.json"}`))

	manifest, err := json.Marshal(Manifest{Products: records})
	if err != nil {
		t.Fatal(err)
	}
	fetcher.Respond(base+"streams/v1/manifest.json", manifest)
}

func releaseRecords() []ImageRecord {
	return []ImageRecord{
		{
			ID:            "1111aaaa",
			Aliases:       []string{"default", "noble", "lts"},
			OS:            "ubuntu",
			Release:       "noble",
			ReleaseTitle:  "24.04 LTS",
			Supported:     true,
			ImageLocation: "noble/disk.img",
			Version:       "20260815",
		},
		{
			ID:            "2222bbbb",
			Aliases:       []string{"jammy"},
			OS:            "ubuntu",
			Release:       "jammy",
			ReleaseTitle:  "22.04 LTS",
			Supported:     true,
			ImageLocation: "jammy/disk.img",
			Version:       "20260801",
		},
		{
			ID:            "3333cccc",
			Aliases:       []string{"bionic"},
			OS:            "ubuntu",
			Release:       "bionic",
			ReleaseTitle:  "18.04 LTS",
			Supported:     false,
			ImageLocation: "bionic/disk.img",
			Version:       "20250101",
		},
	}
}

type hostFixture struct {
	fetcher *testutil.StubFetcher
	clock   *clock.FakeClock
	host    *Host
}

func newHostFixture(t *testing.T, config HostConfig) *hostFixture {
	t.Helper()

	fixture := &hostFixture{
		fetcher: testutil.NewStubFetcher(),
		clock:   clock.Fake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
	}

	serveSource(t, fixture.fetcher, "release", releaseRecords())
	serveSource(t, fixture.fetcher, "daily", []ImageRecord{
		{
			ID:            "4444dddd",
			Aliases:       []string{"default", "devel"},
			OS:            "ubuntu",
			Release:       "devel",
			ReleaseTitle:  "development",
			Supported:     true,
			ImageLocation: "devel/disk.img",
		},
	})

	if config.Sources == nil {
		config.Sources = []Source{
			{Name: "release", BaseAddress: sourceAddress("release")},
			{Name: "daily", BaseAddress: sourceAddress("daily")},
		}
	}
	if config.Fetcher == nil {
		config.Fetcher = fixture.fetcher
	}
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	config.Clock = fixture.clock

	host, err := NewHost(context.Background(), config)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	fixture.host = host
	return fixture
}

func TestResolveAlias(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "jammy"})
	if err != nil || !ok {
		t.Fatalf("Resolve(jammy) = ok=%v err=%v", ok, err)
	}
	if record.ID != "2222bbbb" {
		t.Errorf("ID = %q, want 2222bbbb", record.ID)
	}
	if want := sourceAddress("release") + "jammy/disk.img"; record.ImageLocation != want {
		t.Errorf("ImageLocation = %q, want %q", record.ImageLocation, want)
	}
}

func TestResolveEmptySelectorUsesDefault(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	record, ok, err := fixture.host.Resolve(context.Background(), Query{})
	if err != nil || !ok {
		t.Fatalf("Resolve(default) = ok=%v err=%v", ok, err)
	}
	// Both sources alias "default"; the first configured source wins.
	if record.ID != "1111aaaa" {
		t.Errorf("ID = %q, want release-source default", record.ID)
	}
}

func TestResolveAliasWinsOverHashPrefix(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{
		Sources: []Source{{Name: "release", BaseAddress: sourceAddress("release")}},
	})
	// "2222bbbb" is jammy's id; give noble an alias spelled like a
	// prefix of it.
	records := releaseRecords()
	records[0].Aliases = append(records[0].Aliases, "2222")
	serveSource(t, fixture.fetcher, "release", records)
	fixture.host.Clear()

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "2222"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "1111aaaa" {
		t.Errorf("alias match should win over hash prefix, got id %q", record.ID)
	}
}

func TestResolveHashPrefix(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "2222b"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "2222bbbb" {
		t.Errorf("ID = %q", record.ID)
	}
}

func TestResolveAmbiguousPrefix(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{
		Sources: []Source{{Name: "release", BaseAddress: sourceAddress("release")}},
	})
	serveSource(t, fixture.fetcher, "release", []ImageRecord{
		{ID: "aabb1111", Release: "one", Supported: true},
		{ID: "aabb2222", Release: "two", Supported: true},
	})
	fixture.host.Clear()

	_, _, err := fixture.host.Resolve(context.Background(), Query{Selector: "aabb"})
	var ambiguous *AmbiguousMatchError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousMatchError, got %v", err)
	}
	if ambiguous.Selector != "aabb" {
		t.Errorf("Selector = %q", ambiguous.Selector)
	}
}

func TestResolveExactHashBeatsAmbiguity(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{
		Sources: []Source{{Name: "release", BaseAddress: sourceAddress("release")}},
	})
	serveSource(t, fixture.fetcher, "release", []ImageRecord{
		{ID: "aabbcc11", Release: "longer", Supported: true},
		{ID: "aabb", Release: "exact", Supported: true},
	})
	fixture.host.Clear()

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "aabb"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "aabb" {
		t.Errorf("exact id should win, got %q", record.ID)
	}
}

func TestResolveHashPrefixDeduplicatesByID(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{
		Sources: []Source{{Name: "release", BaseAddress: sourceAddress("release")}},
	})
	// The same image published under two stream entries.
	serveSource(t, fixture.fetcher, "release", []ImageRecord{
		{ID: "aabb1111", Release: "one", Supported: true},
		{ID: "aabb1111", Release: "one", Supported: true},
	})
	fixture.host.Clear()

	matches, err := fixture.host.ResolveAll(context.Background(), Query{Selector: "aabb"})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("got %d matches, want 1 after dedup", len(matches))
	}
}

func TestResolveNoMatchIsAbsentNotError(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "no-such-image"})
	if err != nil {
		t.Fatalf("no-match should not be an error, got %v", err)
	}
	if ok {
		t.Errorf("ok = true for missing selector, record %+v", record)
	}
}

func TestResolveUnsupportedImage(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	_, _, err := fixture.host.Resolve(context.Background(), Query{Selector: "bionic"})
	var unsupported *UnsupportedImageError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedImageError, got %v", err)
	}

	record, ok, err := fixture.host.Resolve(context.Background(),
		Query{Selector: "bionic", AllowUnsupported: true})
	if err != nil || !ok {
		t.Fatalf("Resolve with AllowUnsupported = ok=%v err=%v", ok, err)
	}
	if record.ID != "3333cccc" {
		t.Errorf("ID = %q", record.ID)
	}
}

func TestResolveHashPrefixFiltersUnsupported(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	// bionic's hash, but the record is unsupported: silently no match.
	_, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "3333"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ok {
		t.Error("unsupported record should be filtered from prefix scan")
	}
}

func TestResolveExplicitSource(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	record, ok, err := fixture.host.Resolve(context.Background(),
		Query{Selector: "default", Source: "daily"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "4444dddd" {
		t.Errorf("ID = %q, want daily default", record.ID)
	}
}

func TestResolveUnknownSource(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	_, _, err := fixture.host.Resolve(context.Background(),
		Query{Selector: "default", Source: "nightly"})
	var unknown *UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSourceError, got %v", err)
	}
}

func TestUnsupportedSourceSkippedUnlessExplicit(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{
		SourceSupported: func(source string) bool { return source != "daily" },
	})

	// Default iteration: daily is skipped silently.
	matches, err := fixture.host.ResolveAll(context.Background(), Query{Selector: "default"})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	for _, match := range matches {
		if match.Source == "daily" {
			t.Error("unsupported source should be skipped")
		}
	}

	// Explicit request: hard error.
	_, err = fixture.host.ResolveAll(context.Background(),
		Query{Selector: "default", Source: "daily"})
	var unsupported *UnsupportedSourceError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedSourceError, got %v", err)
	}
}

func TestFailingSourceSkippedDuringDefaultSearch(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	// Break the release source and expire the cache entries.
	fixture.fetcher.FailWith(sourceAddress("release")+"streams/v1/index.json",
		errors.New("connection refused"))
	fixture.host.Clear()

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "default"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "4444dddd" {
		t.Errorf("ID = %q, want the surviving daily source", record.ID)
	}
}

func TestFailingSourceHardWhenExplicit(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	fixture.fetcher.FailWith(sourceAddress("release")+"streams/v1/index.json",
		errors.New("connection refused"))
	fixture.host.Clear()

	_, _, err := fixture.host.Resolve(context.Background(),
		Query{Selector: "default", Source: "release"})
	var unreachable *UnreachableSourceError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableSourceError, got %v", err)
	}
}

func TestTTLSingleFetchWithinWindow(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{TTL: time.Hour})
	index := sourceAddress("release") + "streams/v1/index.json"

	// Construction primed the cache: one fetch so far.
	if got := fixture.fetcher.RequestCount(index); got != 1 {
		t.Fatalf("after construction: %d index fetches, want 1", got)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := fixture.host.Resolve(context.Background(), Query{Selector: "jammy"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := fixture.fetcher.RequestCount(index); got != 1 {
		t.Errorf("within TTL: %d index fetches, want 1", got)
	}

	fixture.clock.Advance(time.Hour)
	if _, _, err := fixture.host.Resolve(context.Background(), Query{Selector: "jammy"}); err != nil {
		t.Fatal(err)
	}
	if got := fixture.fetcher.RequestCount(index); got != 2 {
		t.Errorf("after TTL: %d index fetches, want 2", got)
	}
}

func TestTTLZeroFetchesEveryAccess(t *testing.T) {
	// TTL 0 cannot go through the fixture (0 means "use DefaultTTL"
	// there), so build the host directly.
	fetcher := testutil.NewStubFetcher()
	serveSource(t, fetcher, "release", releaseRecords())
	host, err := NewHost(context.Background(), HostConfig{
		Sources: []Source{{Name: "release", BaseAddress: sourceAddress("release")}},
		Fetcher: fetcher,
		TTL:     0,
		Clock:   clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}

	index := sourceAddress("release") + "streams/v1/index.json"
	before := fetcher.RequestCount(index)
	for i := 0; i < 3; i++ {
		if _, _, err := host.Resolve(context.Background(), Query{Selector: "jammy"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := fetcher.RequestCount(index) - before; got != 3 {
		t.Errorf("ttl=0: %d fetches for 3 resolutions, want 3", got)
	}
}

func TestRefreshFailureKeepsStaleManifest(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{TTL: time.Hour})

	fixture.clock.Advance(2 * time.Hour)
	fixture.fetcher.FailWith(sourceAddress("release")+"streams/v1/index.json",
		errors.New("connection refused"))
	fixture.fetcher.FailWith(sourceAddress("daily")+"streams/v1/index.json",
		errors.New("connection refused"))

	record, ok, err := fixture.host.Resolve(context.Background(), Query{Selector: "jammy"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "2222bbbb" {
		t.Errorf("ID = %q, want stale answer", record.ID)
	}
}

func TestClearForcesRefetch(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{TTL: time.Hour})
	index := sourceAddress("release") + "streams/v1/index.json"

	fixture.host.Clear()
	if _, _, err := fixture.host.Resolve(context.Background(), Query{Selector: "jammy"}); err != nil {
		t.Fatal(err)
	}
	if got := fixture.fetcher.RequestCount(index); got != 2 {
		t.Errorf("after Clear: %d index fetches, want 2", got)
	}
}

func TestResolveFullHash(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	record, err := fixture.host.ResolveFullHash(context.Background(), "4444dddd")
	if err != nil {
		t.Fatalf("ResolveFullHash: %v", err)
	}
	if want := sourceAddress("daily") + "devel/disk.img"; record.ImageLocation != want {
		t.Errorf("ImageLocation = %q, want %q", record.ImageLocation, want)
	}

	_, err = fixture.host.ResolveFullHash(context.Background(), "ffffffff")
	var unknown *UnknownHashError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownHashError, got %v", err)
	}
}

func TestAllImages(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	records, err := fixture.host.AllImages(context.Background(), "release", false)
	if err != nil {
		t.Fatalf("AllImages: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2 supported", len(records))
	}

	records, err = fixture.host.AllImages(context.Background(), "release", true)
	if err != nil {
		t.Fatalf("AllImages(allowUnsupported): %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}

	_, err = fixture.host.AllImages(context.Background(), "nightly", false)
	var unknown *UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSourceError, got %v", err)
	}
}

func TestAllImagesAliasFilter(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{
		AliasesSupported: func(source string, aliases []string) bool {
			for _, alias := range aliases {
				if alias == "jammy" {
					return false
				}
			}
			return true
		},
	})

	records, err := fixture.host.AllImages(context.Background(), "release", false)
	if err != nil {
		t.Fatalf("AllImages: %v", err)
	}
	for _, record := range records {
		if record.ID == "2222bbbb" {
			t.Error("alias-filtered record should be excluded")
		}
	}
}

func TestForEach(t *testing.T) {
	fixture := newHostFixture(t, HostConfig{})

	seen := make(map[string]int)
	err := fixture.host.ForEach(context.Background(), func(source string, record ImageRecord) error {
		seen[source]++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if seen["release"] != 3 || seen["daily"] != 1 {
		t.Errorf("seen = %v", seen)
	}
}

func TestNewHostSoftFailureDegrades(t *testing.T) {
	fetcher := testutil.NewStubFetcher()
	serveSource(t, fetcher, "daily", releaseRecords())
	fetcher.FailWith(sourceAddress("release")+"streams/v1/index.json",
		errors.New("connection refused"))

	host, err := NewHost(context.Background(), HostConfig{
		Sources: []Source{
			{Name: "release", BaseAddress: sourceAddress("release")},
			{Name: "daily", BaseAddress: sourceAddress("daily")},
		},
		Fetcher: fetcher,
		TTL:     DefaultTTL,
		Clock:   clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatalf("construction should survive a download failure: %v", err)
	}

	record, ok, err := host.Resolve(context.Background(), Query{Selector: "jammy"})
	if err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
	if record.ID != "2222bbbb" {
		t.Errorf("ID = %q", record.ID)
	}
}

func TestNewHostValidation(t *testing.T) {
	fetcher := testutil.NewStubFetcher()

	cases := []HostConfig{
		{Fetcher: fetcher},
		{Sources: []Source{{Name: "a", BaseAddress: "https://a/"}}},
		{Sources: []Source{{Name: "", BaseAddress: "https://a/"}}, Fetcher: fetcher},
		{Sources: []Source{
			{Name: "a", BaseAddress: "https://a/"},
			{Name: "a", BaseAddress: "https://b/"},
		}, Fetcher: fetcher},
		{Sources: []Source{{Name: "a", BaseAddress: "https://a/"}}, Fetcher: fetcher, TTL: -time.Second},
	}

	for i, config := range cases {
		if _, err := NewHost(context.Background(), config); err == nil {
			t.Errorf("case %d: expected construction error", i)
		}
	}
}

func TestSnapshotWarmStart(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "manifests.cbor")
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	fetcher := testutil.NewStubFetcher()
	serveSource(t, fetcher, "release", releaseRecords())
	sources := []Source{{Name: "release", BaseAddress: sourceAddress("release")}}

	if _, err := NewHost(context.Background(), HostConfig{
		Sources:      sources,
		Fetcher:      fetcher,
		TTL:          DefaultTTL,
		SnapshotPath: snapshotPath,
		Clock:        clock.Fake(start),
	}); err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if _, err := os.Stat(snapshotPath); err != nil {
		t.Fatalf("snapshot was not written: %v", err)
	}

	// Second engine: the network is gone, but the snapshot is within
	// TTL, so resolution still works without any fetch.
	coldFetcher := testutil.NewStubFetcher()
	host, err := NewHost(context.Background(), HostConfig{
		Sources:      sources,
		Fetcher:      coldFetcher,
		TTL:          DefaultTTL,
		SnapshotPath: snapshotPath,
		Clock:        clock.Fake(start.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("NewHost from snapshot: %v", err)
	}

	record, ok, err := host.Resolve(context.Background(), Query{Selector: "jammy"})
	if err != nil || !ok {
		t.Fatalf("Resolve from snapshot = ok=%v err=%v", ok, err)
	}
	if record.ID != "2222bbbb" {
		t.Errorf("ID = %q", record.ID)
	}
	if len(coldFetcher.Requests) != 0 {
		t.Errorf("expected no fetches on warm start, got %v", coldFetcher.Requests)
	}
}

func TestSnapshotCorruptIsSoft(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "manifests.cbor")
	if err := os.WriteFile(snapshotPath, []byte("not cbor"), 0o644); err != nil {
		t.Fatal(err)
	}

	fetcher := testutil.NewStubFetcher()
	serveSource(t, fetcher, "release", releaseRecords())

	host, err := NewHost(context.Background(), HostConfig{
		Sources:      []Source{{Name: "release", BaseAddress: sourceAddress("release")}},
		Fetcher:      fetcher,
		TTL:          DefaultTTL,
		SnapshotPath: snapshotPath,
		Clock:        clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatalf("corrupt snapshot should not abort construction: %v", err)
	}

	if _, ok, err := host.Resolve(context.Background(), Query{Selector: "jammy"}); err != nil || !ok {
		t.Fatalf("Resolve = ok=%v err=%v", ok, err)
	}
}
