// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package instance defines the mutable instance specification that the
// blueprint merger writes minimum resources and init configuration
// into. The engine never owns a Spec; callers build one (possibly
// partially filled from user flags) and pass it in for merging.
package instance

import "github.com/rim99/multipass/lib/memsize"

// Spec describes the resources and initialization payload an instance
// is launched with. Zero values mean "caller did not choose": the
// merger fills them from blueprint minimums or system defaults, and
// only a non-zero caller value can conflict with a blueprint minimum.
type Spec struct {
	// NumCores is the virtual CPU count. Zero means unspecified.
	NumCores int

	// MemSize is the memory allocation. Zero means unspecified.
	MemSize memsize.Size

	// DiskSpace is the disk allocation. Zero means unspecified.
	DiskSpace memsize.Size

	// CloudInit holds the cloud-init vendor data applied at first
	// boot, keyed by top-level document key. Nil until a blueprint
	// (or the caller) provides one.
	CloudInit map[string]any
}
