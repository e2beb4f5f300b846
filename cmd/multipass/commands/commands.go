// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the multipass CLI command tree.
package commands

import (
	"github.com/rim99/multipass/cmd/multipass/cli"
)

// Root builds and returns the complete command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "multipass",
		Description: `Multipass image and blueprint catalog.

Resolve image queries against the configured sources and inspect the
blueprint catalog.`,
		Subcommands: []*cli.Command{
			findCommand(),
			blueprintsCommand(),
			resolveCommand(),
		},
	}
}
