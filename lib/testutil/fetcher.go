// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: an in-memory Fetcher
// and a blueprint archive builder.
package testutil

import (
	"context"
	"fmt"
	"os"

	"github.com/rim99/multipass/lib/fetch"
)

// StubFetcher is an in-memory fetch.Fetcher. It serves canned
// responses by location, injects failures, and records every request
// so tests can assert on fetch counts (the TTL properties are all
// phrased as "at most one fetch within ttl").
type StubFetcher struct {
	// Responses maps a location to the bytes served for it.
	Responses map[string][]byte

	// Errors maps a location to an error returned instead of a
	// response. Takes precedence over Responses.
	Errors map[string]error

	// Requests records every requested location in order, across
	// both Download and DownloadTo.
	Requests []string
}

var _ fetch.Fetcher = (*StubFetcher)(nil)

// NewStubFetcher returns an empty StubFetcher. Add responses with
// Respond.
func NewStubFetcher() *StubFetcher {
	return &StubFetcher{
		Responses: make(map[string][]byte),
		Errors:    make(map[string]error),
	}
}

// Respond registers content for a location.
func (f *StubFetcher) Respond(location string, content []byte) {
	f.Responses[location] = content
}

// FailWith makes a location fail with err wrapped in a
// TransportError.
func (f *StubFetcher) FailWith(location string, err error) {
	f.Errors[location] = err
}

// Download returns the canned response for location.
func (f *StubFetcher) Download(_ context.Context, location string) ([]byte, error) {
	f.Requests = append(f.Requests, location)
	if err, ok := f.Errors[location]; ok {
		return nil, &fetch.TransportError{Location: location, Err: err}
	}
	data, ok := f.Responses[location]
	if !ok {
		return nil, &fetch.TransportError{Location: location, Err: fmt.Errorf("no stub response")}
	}
	return data, nil
}

// DownloadTo writes the canned response for location into path.
func (f *StubFetcher) DownloadTo(ctx context.Context, location, path string) error {
	data, err := f.Download(ctx, location)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &fetch.TransportError{Location: location, Err: err}
	}
	return nil
}

// RequestCount returns how many times location was requested.
func (f *StubFetcher) RequestCount(location string) int {
	count := 0
	for _, requested := range f.Requests {
		if requested == location {
			count++
		}
	}
	return count
}
