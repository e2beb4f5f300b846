// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/rim99/multipass/cmd/multipass/cli"
	"github.com/rim99/multipass/lib/instance"
)

// resolvedSpec is what resolve prints: the instance specification a
// blueprint produces when the caller chooses nothing.
type resolvedSpec struct {
	Blueprint string `json:"blueprint"`
	Image     string `json:"image"`
	CPUs      int    `json:"cpus"`
	Memory    string `json:"memory"`
	Disk      string `json:"disk"`
	Timeout   string `json:"timeout,omitempty"`
}

func resolveCommand() *cli.Command {
	var (
		configPath string
		format     string
	)

	return &cli.Command{
		Name:    "resolve",
		Summary: "Show the instance specification a blueprint produces",
		Usage:   "multipass resolve <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "engine configuration file")
			flags.StringVar(&format, "format", "table", "output format: table or json")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one blueprint name is required")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}
			name := args[0]

			logger := cli.NewCommandLogger()
			engine, err := newEngine(ctx, configPath, logger)
			if err != nil {
				return err
			}
			if engine.blueprints == nil {
				return fmt.Errorf("no blueprint archive configured")
			}

			var spec instance.Spec
			query, err := engine.blueprints.Apply(ctx, name, &spec)
			if err != nil {
				return err
			}
			timeout, err := engine.blueprints.Timeout(ctx, name)
			if err != nil {
				return err
			}

			image := query.Selector
			if query.Source != "" {
				image = query.Source + ":" + query.Selector
			}
			resolved := resolvedSpec{
				Blueprint: name,
				Image:     image,
				CPUs:      spec.NumCores,
				Memory:    spec.MemSize.String(),
				Disk:      spec.DiskSpace.String(),
			}
			if timeout > 0 {
				resolved.Timeout = timeout.Round(time.Second).String()
			}

			if format == "json" {
				return cli.WriteJSON(resolved)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "Blueprint\t%s\n", resolved.Blueprint)
			fmt.Fprintf(tw, "Image\t%s\n", resolved.Image)
			fmt.Fprintf(tw, "CPUs\t%d\n", resolved.CPUs)
			fmt.Fprintf(tw, "Memory\t%s\n", resolved.Memory)
			fmt.Fprintf(tw, "Disk\t%s\n", resolved.Disk)
			if resolved.Timeout != "" {
				fmt.Fprintf(tw, "Timeout\t%s\n", resolved.Timeout)
			}
			return tw.Flush()
		},
	}
}
