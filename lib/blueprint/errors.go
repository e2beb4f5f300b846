// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import "fmt"

// InvalidBlueprintError reports a blueprint document that failed
// validation: a missing or mistyped required key, an unparseable
// minimum or timeout, or init configuration that is not valid YAML.
type InvalidBlueprintError struct {
	// Name is the blueprint the document belongs to.
	Name string
	// Reason describes what is wrong, naming the offending key.
	Reason string
}

func (e *InvalidBlueprintError) Error() string {
	return fmt.Sprintf("invalid blueprint %q: %s", e.Name, e.Reason)
}

// missingKey builds the InvalidBlueprintError for a required key that
// is absent.
func missingKey(name, key string) *InvalidBlueprintError {
	return &InvalidBlueprintError{
		Name:   name,
		Reason: fmt.Sprintf("the %q key is required", key),
	}
}

// badKey builds the InvalidBlueprintError for a key whose value has
// the wrong type or cannot be converted.
func badKey(name, key string) *InvalidBlueprintError {
	return &InvalidBlueprintError{
		Name:   name,
		Reason: fmt.Sprintf("cannot convert the %q key", key),
	}
}

// MalformedArchiveError reports a blueprint archive that could not be
// decompressed or read. Classified soft alongside transport failures:
// the previous extraction keeps serving.
type MalformedArchiveError struct {
	Err error
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("malformed blueprint archive: %v", e.Err)
}

func (e *MalformedArchiveError) Unwrap() error { return e.Err }

// IncompatibleBlueprintError reports a blueprint whose runs-on list
// excludes the host architecture. Such blueprints are filtered from
// listings and are an error when looked up directly.
type IncompatibleBlueprintError struct {
	Name string
	Arch string
}

func (e *IncompatibleBlueprintError) Error() string {
	return fmt.Sprintf("blueprint %q does not run on %s", e.Name, e.Arch)
}

// UnknownBlueprintError reports a lookup by a name no document in the
// archive carries.
type UnknownBlueprintError struct {
	Name string
}

func (e *UnknownBlueprintError) Error() string {
	return fmt.Sprintf("blueprint %q does not exist", e.Name)
}

// MinimumViolationError reports a caller-supplied instance value below
// the blueprint's declared minimum.
type MinimumViolationError struct {
	// Field is the human-readable name of the violated resource
	// ("number of CPUs", "memory size", "disk space").
	Field string
	// Required is the blueprint's minimum, rendered for display.
	Required string
}

func (e *MinimumViolationError) Error() string {
	return fmt.Sprintf("%s must be at least %s", e.Field, e.Required)
}
