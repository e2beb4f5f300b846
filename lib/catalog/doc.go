// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog resolves image queries against remote, versioned
// image catalogs ("sources") while caching each source's manifest
// under a time-to-live policy.
//
// A source publishes an index document pointing at a manifest of image
// records. The Host keeps at most one parsed manifest per source,
// tagged with its fetch time, and refreshes it lazily: the first
// access after the TTL elapses re-downloads the manifest on the
// calling goroutine. A failed refresh keeps the previous manifest, so
// a flaky mirror degrades to stale answers instead of no answers.
//
// Resolution tries an exact alias match first, then falls back to a
// content-hash prefix scan. A prefix matching more than one distinct
// id is ambiguous unless the selector is itself a complete id.
//
// The Host performs blocking I/O on the calling goroutine during a
// refresh and provides no internal locking; route all access through
// one owning goroutine.
package catalog
