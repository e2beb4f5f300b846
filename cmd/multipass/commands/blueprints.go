// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/rim99/multipass/cmd/multipass/cli"
)

func blueprintsCommand() *cli.Command {
	var (
		configPath string
		format     string
	)

	return &cli.Command{
		Name:    "blueprints",
		Summary: "List blueprints compatible with this host",
		Usage:   "multipass blueprints [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("blueprints", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "engine configuration file")
			flags.StringVar(&format, "format", "table", "output format: table or json")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("blueprints takes no arguments")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}

			logger := cli.NewCommandLogger()
			engine, err := newEngine(ctx, configPath, logger)
			if err != nil {
				return err
			}
			if engine.blueprints == nil {
				return fmt.Errorf("no blueprint archive configured")
			}

			listing, err := engine.blueprints.List(ctx)
			if err != nil {
				return err
			}

			if format == "json" {
				return cli.WriteJSON(listing)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "Blueprint\tVersion\tDescription")
			for _, metadata := range listing {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", metadata.Name, metadata.Version, metadata.Description)
			}
			return tw.Flush()
		},
	}
}
