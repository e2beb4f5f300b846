// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/rim99/multipass/lib/memsize"
)

// Blueprint document keys. Documents are YAML: required description
// and version strings, an optional runs-on architecture list, and a
// per-instance section with the image reference, resource minimums,
// launch timeout, and cloud-init payload:
//
//	description: A ready-to-code development VM
//	version: 1.2
//	runs-on: [amd64, arm64]
//	instances:
//	  devbox:
//	    image: release:noble
//	    limits:
//	      min-cpu: 2
//	      min-mem: 2G
//	      min-disk: 25G
//	    timeout: 600
//	    cloud-init:
//	      vendor-data: |
//	        packages: [build-essential]
const (
	descriptionKey = "description"
	versionKey     = "version"
	runsOnKey      = "runs-on"
	instancesKey   = "instances"
	imageKey       = "image"
	limitsKey      = "limits"
	minCPUKey      = "min-cpu"
	minMemKey      = "min-mem"
	minDiskKey     = "min-disk"
	timeoutKey     = "timeout"
	cloudInitKey   = "cloud-init"
	vendorDataKey  = "vendor-data"
)

// document is one parsed blueprint. Parsing is structural only; every
// typed check happens on access so that one bad key surfaces as an
// error naming exactly that key.
type document struct {
	name string
	root map[string]any
}

// loadDocument reads and parses the document file for a blueprint.
// Documents are re-parsed per lookup rather than memoized, so one
// corrupt document cannot poison the whole catalog.
func loadDocument(name, path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidBlueprintError{Name: name, Reason: fmt.Sprintf("cannot read document: %v", err)}
	}

	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &InvalidBlueprintError{Name: name, Reason: fmt.Sprintf("cannot parse document: %v", err)}
	}
	return &document{name: name, root: root}, nil
}

// checkArch validates the optional runs-on list and reports whether
// the document is compatible with arch. An absent list means
// compatible with everything.
func (d *document) checkArch(arch string) error {
	value, ok := d.root[runsOnKey]
	if !ok {
		return nil
	}

	list, ok := value.([]any)
	if !ok {
		return badKey(d.name, runsOnKey)
	}
	for _, entry := range list {
		architecture, ok := entry.(string)
		if !ok {
			return badKey(d.name, runsOnKey)
		}
		if architecture == arch {
			return nil
		}
	}
	return &IncompatibleBlueprintError{Name: d.name, Arch: arch}
}

// requiredString returns the value of a required top-level string key.
func (d *document) requiredString(key string) (string, error) {
	value, ok := d.root[key]
	if !ok {
		return "", missingKey(d.name, key)
	}
	text, ok := value.(string)
	if !ok {
		return "", badKey(d.name, key)
	}
	return text, nil
}

// instance returns the per-instance section for the blueprint's own
// name. Blueprints without one simply declare no image, limits, or
// cloud-init.
func (d *document) instance() map[string]any {
	instances, ok := d.root[instancesKey].(map[string]any)
	if !ok {
		return nil
	}
	section, _ := instances[d.name].(map[string]any)
	return section
}

// imageReference returns the instance section's image reference, or
// "" when the document does not declare one.
func (d *document) imageReference() (string, error) {
	section := d.instance()
	value, ok := section[imageKey]
	if !ok {
		return "", nil
	}
	reference, ok := value.(string)
	if !ok {
		return "", badKey(d.name, imageKey)
	}
	return reference, nil
}

// minCores returns the declared minimum CPU count, or 0 when absent.
func (d *document) minCores() (int, error) {
	limits, _ := d.instance()[limitsKey].(map[string]any)
	value, ok := limits[minCPUKey]
	if !ok {
		return 0, nil
	}
	cores, ok := value.(int)
	if !ok || cores <= 0 {
		return 0, &InvalidBlueprintError{Name: d.name, Reason: "minimum CPU value is invalid"}
	}
	return cores, nil
}

// minSize returns the declared minimum for a size-valued limits key
// (min-mem, min-disk), or 0 when absent.
func (d *document) minSize(key, description string) (memsize.Size, error) {
	limits, _ := d.instance()[limitsKey].(map[string]any)
	value, ok := limits[key]
	if !ok {
		return 0, nil
	}

	text, ok := value.(string)
	if !ok {
		// YAML reads an unquoted 2048 as an int; sizes without a
		// unit suffix are still valid minimums.
		if count, isInt := value.(int); isInt && count > 0 {
			return memsize.Size(count), nil
		}
		return 0, &InvalidBlueprintError{Name: d.name, Reason: description + " value is invalid"}
	}

	size, err := memsize.Parse(text)
	if err != nil || size == 0 {
		return 0, &InvalidBlueprintError{Name: d.name, Reason: description + " value is invalid"}
	}
	return size, nil
}

// timeout returns the instance launch timeout in seconds, or 0 when
// the document declares none.
func (d *document) timeout() (int, error) {
	section := d.instance()
	value, ok := section[timeoutKey]
	if !ok {
		return 0, nil
	}
	seconds, ok := value.(int)
	if !ok || seconds < 0 {
		return 0, &InvalidBlueprintError{Name: d.name, Reason: "invalid timeout"}
	}
	return seconds, nil
}

// vendorData returns the parsed cloud-init vendor data, or nil when
// the document declares none.
func (d *document) vendorData() (map[string]any, error) {
	cloudInit, _ := d.instance()[cloudInitKey].(map[string]any)
	value, ok := cloudInit[vendorDataKey]
	if !ok {
		return nil, nil
	}

	text, ok := value.(string)
	if !ok {
		return nil, &InvalidBlueprintError{Name: d.name, Reason: "cannot convert cloud-init data"}
	}
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &InvalidBlueprintError{Name: d.name, Reason: "cannot convert cloud-init data"}
	}
	return parsed, nil
}

// hostnamePattern matches a single RFC 1123 host name label:
// alphanumeric with interior hyphens, at most 63 characters.
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// validName reports whether name is usable as a blueprint name.
// Blueprint names become instance host names, so they are held to
// host name rules.
func validName(name string) bool {
	return hostnamePattern.MatchString(name)
}
