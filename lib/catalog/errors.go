// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "fmt"

// EmptyCatalogError reports a source whose manifest contained no
// usable records after filtering.
type EmptyCatalogError struct {
	Source string
}

func (e *EmptyCatalogError) Error() string {
	return fmt.Sprintf("no products found in source %q", e.Source)
}

// MalformedCatalogError reports an index or manifest document that
// failed to parse.
type MalformedCatalogError struct {
	Source string
	Err    error
}

func (e *MalformedCatalogError) Error() string {
	return fmt.Sprintf("malformed catalog from source %q: %v", e.Source, e.Err)
}

func (e *MalformedCatalogError) Unwrap() error { return e.Err }

// UnknownSourceError reports a query naming a source the Host was not
// configured with.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("source %q is unknown", e.Source)
}

// UnsupportedSourceError reports a source the support policy rejects
// on this host. Skipped silently during default-source iteration,
// propagated when the source was explicitly requested.
type UnsupportedSourceError struct {
	Source string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("source %q is not supported on this host", e.Source)
}

// UnreachableSourceError reports a source with no cached manifest and
// a failing refresh: nothing can be answered for it.
type UnreachableSourceError struct {
	Source string
	Err    error
}

func (e *UnreachableSourceError) Error() string {
	return fmt.Sprintf("source %q is unreachable: %v", e.Source, e.Err)
}

func (e *UnreachableSourceError) Unwrap() error { return e.Err }

// UnsupportedImageError reports a matched record that its publisher no
// longer supports, when the query did not allow unsupported images.
type UnsupportedImageError struct {
	Selector string
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("image %q is no longer supported (pass allow-unsupported to use it anyway)", e.Selector)
}

// AmbiguousMatchError reports a hash-prefix selector matching more
// than one distinct image id.
type AmbiguousMatchError struct {
	Selector string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("too many images matching %q", e.Selector)
}

// UnknownHashError reports a full-hash lookup with no matching record
// in any cached manifest.
type UnknownHashError struct {
	Hash string
}

func (e *UnknownHashError) Error() string {
	return fmt.Sprintf("no image matching hash %q", e.Hash)
}
