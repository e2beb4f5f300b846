// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch provides the download capability consumed by the
// catalog and blueprint caches. The engine never talks to the network
// directly; it asks a Fetcher for the bytes at a location and treats
// any failure as a TransportError to classify per call site.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// MaxDocumentSize bounds in-memory downloads (index, manifest): 64 MB.
// Catalog documents are orders of magnitude smaller; the bound only
// exists so a misbehaving server cannot exhaust memory. Archives are
// downloaded with DownloadTo, which streams to disk and is not bounded
// by this limit.
const MaxDocumentSize int64 = 64 << 20

// Fetcher downloads documents and archives. Implementations enforce
// their own deadlines; the engine has no timeout of its own, so a hung
// transfer surfaces here (typically via the context) as a
// TransportError.
type Fetcher interface {
	// Download returns the contents at location, bounded by
	// MaxDocumentSize.
	Download(ctx context.Context, location string) ([]byte, error)

	// DownloadTo streams the contents at location into the file at
	// path, replacing any previous file atomically.
	DownloadTo(ctx context.Context, location, path string) error
}

// TransportError reports a failed download. Callers classify it soft
// or hard depending on whether the location was explicitly requested.
type TransportError struct {
	Location string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("downloading %q: %v", e.Location, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the production Fetcher. It downloads http(s) URLs through
// an HTTP client and file URLs (or plain paths) from the local
// filesystem, which is what tests and air-gapped mirrors use.
type Client struct {
	// HTTPClient is used for http(s) locations. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
}

var _ Fetcher = (*Client)(nil)

// Download returns the contents at location, bounded by
// MaxDocumentSize.
func (c *Client) Download(ctx context.Context, location string) ([]byte, error) {
	reader, err := c.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, MaxDocumentSize))
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	return data, nil
}

// DownloadTo streams the contents at location into the file at path.
// The data lands in a temporary file first and is renamed into place,
// so a partial download never replaces a previous complete one.
func (c *Client) DownloadTo(ctx context.Context, location, path string) error {
	reader, err := c.open(ctx, location)
	if err != nil {
		return err
	}
	defer reader.Close()

	temp, err := os.CreateTemp(dirOf(path), ".download-*")
	if err != nil {
		return &TransportError{Location: location, Err: err}
	}
	defer os.Remove(temp.Name())

	if _, err := io.Copy(temp, reader); err != nil {
		temp.Close()
		return &TransportError{Location: location, Err: err}
	}
	if err := temp.Close(); err != nil {
		return &TransportError{Location: location, Err: err}
	}
	if err := os.Rename(temp.Name(), path); err != nil {
		return &TransportError{Location: location, Err: err}
	}
	return nil
}

func (c *Client) open(ctx context.Context, location string) (io.ReadCloser, error) {
	parsed, err := url.Parse(location)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		return c.openHTTP(ctx, location)
	}

	path := location
	if err == nil && parsed.Scheme == "file" {
		path = parsed.Path
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	return file, nil
}

func (c *Client) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		return nil, &TransportError{
			Location: location,
			Err:      fmt.Errorf("unexpected status %s", response.Status),
		}
	}
	return response.Body, nil
}

// dirOf returns the directory containing path, for placing the
// temporary download next to its destination (same filesystem, so the
// final rename is atomic).
func dirOf(path string) string {
	if i := strings.LastIndexByte(path, os.PathSeparator); i > 0 {
		return path[:i]
	}
	return "."
}
