// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import (
	"context"
	"strconv"
	"strings"

	"github.com/rim99/multipass/lib/catalog"
	"github.com/rim99/multipass/lib/instance"
	"github.com/rim99/multipass/lib/memsize"
)

// Resource floors applied when neither the caller nor the blueprint
// chose a value.
const (
	defaultCores = 1
	defaultMem   = 1 * memsize.G
	defaultDisk  = 5 * memsize.G
)

// Apply merges the named blueprint's declarations into spec and
// returns the image query the blueprint launches from.
//
// The merge is monotonic per field: a zero caller value is filled
// with the blueprint minimum (or the system default when the
// blueprint declares none), and a non-zero caller value is kept —
// unless it is below the blueprint minimum, which is a
// MinimumViolationError naming the field and the required floor.
// The blueprint's cloud-init vendor data, if any, replaces
// spec.CloudInit; absence leaves it untouched.
func (p *Provider) Apply(ctx context.Context, name string, spec *instance.Spec) (catalog.Query, error) {
	if err := p.ensure(ctx); err != nil {
		return catalog.Query{}, err
	}

	path, ok := p.documents[name]
	if !ok {
		return catalog.Query{}, &UnknownBlueprintError{Name: name}
	}
	doc, err := loadDocument(name, path)
	if err != nil {
		p.markInvalid(err)
		return catalog.Query{}, err
	}
	if err := doc.checkArch(p.arch); err != nil {
		p.markInvalid(err)
		return catalog.Query{}, err
	}

	query, err := p.imageQuery(doc)
	if err != nil {
		p.markInvalid(err)
		return catalog.Query{}, err
	}

	if err := p.mergeLimits(doc, spec); err != nil {
		p.markInvalid(err)
		return catalog.Query{}, err
	}

	vendorData, err := doc.vendorData()
	if err != nil {
		p.markInvalid(err)
		return catalog.Query{}, err
	}
	if vendorData != nil {
		spec.CloudInit = vendorData
	}

	return query, nil
}

// imageQuery parses the document's image reference into a query. A
// bare "noble" selects across all sources; "release:noble" pins the
// source. No reference at all means the default image.
func (p *Provider) imageQuery(doc *document) (catalog.Query, error) {
	reference, err := doc.imageReference()
	if err != nil {
		return catalog.Query{}, err
	}

	query := catalog.Query{Selector: catalog.DefaultSelector}
	if reference == "" {
		return query, nil
	}

	tokens := strings.Split(reference, ":")
	switch {
	case len(tokens) == 1 && tokens[0] != "":
		query.Selector = tokens[0]
	case len(tokens) == 2 && tokens[0] != "" && tokens[1] != "":
		query.Source = tokens[0]
		query.Selector = tokens[1]
	default:
		return catalog.Query{}, &InvalidBlueprintError{
			Name:   doc.name,
			Reason: "unsupported image scheme",
		}
	}
	return query, nil
}

// mergeLimits applies the monotonic merge for cores, memory, and disk.
func (p *Provider) mergeLimits(doc *document, spec *instance.Spec) error {
	minCores, err := doc.minCores()
	if err != nil {
		return err
	}
	switch {
	case spec.NumCores == 0 && minCores == 0:
		spec.NumCores = defaultCores
	case spec.NumCores == 0:
		spec.NumCores = minCores
	case spec.NumCores < minCores:
		return &MinimumViolationError{
			Field:    "number of CPUs",
			Required: strconv.Itoa(minCores),
		}
	}

	minMem, err := doc.minSize(minMemKey, "minimum memory size")
	if err != nil {
		return err
	}
	if err := mergeSize(&spec.MemSize, minMem, defaultMem, "memory size"); err != nil {
		return err
	}

	minDisk, err := doc.minSize(minDiskKey, "minimum disk space")
	if err != nil {
		return err
	}
	return mergeSize(&spec.DiskSpace, minDisk, defaultDisk, "disk space")
}

func mergeSize(value *memsize.Size, minimum, fallback memsize.Size, field string) error {
	switch {
	case *value == 0 && minimum == 0:
		*value = fallback
	case *value == 0:
		*value = minimum
	case *value < minimum:
		return &MinimumViolationError{Field: field, Required: minimum.String()}
	}
	return nil
}
