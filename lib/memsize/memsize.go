// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package memsize provides the byte-size value type used for instance
// memory and disk space. Sizes are written in configuration and
// blueprint documents as a decimal integer with an optional binary
// unit suffix: "512M", "2G", "25G", "1024" (plain bytes). Suffixes are
// powers of 1024.
package memsize

import (
	"fmt"
	"regexp"
	"strconv"
)

// Size is a byte count. The zero value means "not specified" in an
// instance specification, which is why valid parsed sizes must be
// positive.
type Size int64

// Binary unit multipliers.
const (
	B Size = 1
	K Size = 1024 * B
	M Size = 1024 * K
	G Size = 1024 * M
)

var sizePattern = regexp.MustCompile(`^(\d+)(?:([KMGkmg])(?:[iI]?[bB])?|[bB])?$`)

// InvalidSizeError reports a string that does not parse as a size.
type InvalidSizeError struct {
	Value string
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("invalid memory size %q", e.Value)
}

// Parse converts a size string into a Size. Accepted forms are a
// decimal integer followed by an optional unit: "B", "K"/"KB"/"KiB",
// "M"/"MB"/"MiB", "G"/"GB"/"GiB" (case-insensitive). A bare integer
// is a byte count. Zero is accepted ("0" disables a limit); anything
// unparseable returns an InvalidSizeError.
func Parse(value string) (Size, error) {
	match := sizePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, &InvalidSizeError{Value: value}
	}

	count, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		// Digits that overflow int64.
		return 0, &InvalidSizeError{Value: value}
	}

	unit := B
	switch match[2] {
	case "K", "k":
		unit = K
	case "M", "m":
		unit = M
	case "G", "g":
		unit = G
	}

	result := Size(count) * unit
	if count != 0 && result/unit != Size(count) {
		return 0, &InvalidSizeError{Value: value}
	}
	return result, nil
}

// Bytes returns the size as a plain int64 byte count.
func (s Size) Bytes() int64 { return int64(s) }

// String renders the size with the largest unit that divides it
// evenly, matching the compact form used in blueprints ("2G", "512M").
// Sizes that do not fall on a unit boundary render as plain bytes.
func (s Size) String() string {
	switch {
	case s >= G && s%G == 0:
		return fmt.Sprintf("%dG", s/G)
	case s >= M && s%M == 0:
		return fmt.Sprintf("%dM", s/M)
	case s >= K && s%K == 0:
		return fmt.Sprintf("%dK", s/K)
	default:
		return fmt.Sprintf("%dB", s)
	}
}
