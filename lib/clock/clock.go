// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// The catalog caches decide freshness lazily, by comparing a stored
// fetch timestamp against the current time on access. There are no
// background timers. Production code injects Real(); tests inject
// Fake() and advance it explicitly to cross TTL boundaries.
package clock

import "time"

// Clock abstracts the current time. Every cache that evaluates a TTL
// holds a Clock instead of calling time.Now directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
