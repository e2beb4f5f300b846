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
	"github.com/rim99/multipass/lib/catalog"
)

// imageRow is one line of find output.
type imageRow struct {
	Image       string   `json:"image"`
	Aliases     []string `json:"aliases,omitempty"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
}

func findCommand() *cli.Command {
	var (
		configPath       string
		source           string
		allowUnsupported bool
		format           string
	)

	return &cli.Command{
		Name:    "find",
		Summary: "Resolve or list images across the configured sources",
		Usage:   "multipass find [selector] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("find", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "engine configuration file")
			flags.StringVar(&source, "source", "", "search only this source")
			flags.BoolVar(&allowUnsupported, "allow-unsupported", false, "admit images the publisher no longer supports")
			flags.StringVar(&format, "format", "table", "output format: table or json")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("at most one selector, got %d", len(args))
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}

			logger := cli.NewCommandLogger()
			engine, err := newEngine(ctx, configPath, logger)
			if err != nil {
				return err
			}

			var rows []imageRow
			if len(args) == 1 {
				rows, err = findMatches(ctx, engine.host, catalog.Query{
					Selector:         args[0],
					Source:           source,
					AllowUnsupported: allowUnsupported,
				})
			} else {
				rows, err = listImages(ctx, engine.host, source, allowUnsupported)
			}
			if err != nil {
				return err
			}

			if format == "json" {
				return cli.WriteJSON(rows)
			}
			return printImageTable(rows)
		},
	}
}

// findMatches resolves one selector into its matching records.
func findMatches(ctx context.Context, host *catalog.Host, query catalog.Query) ([]imageRow, error) {
	matches, err := host.ResolveAll(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("unable to find an image matching %q", query.Selector)
	}

	rows := make([]imageRow, 0, len(matches))
	for _, match := range matches {
		rows = append(rows, recordRow(match.Source, match.Record))
	}
	return rows, nil
}

// listImages walks the full catalog: every source, or just the named
// one.
func listImages(ctx context.Context, host *catalog.Host, source string, allowUnsupported bool) ([]imageRow, error) {
	if source != "" {
		records, err := host.AllImages(ctx, source, allowUnsupported)
		if err != nil {
			return nil, err
		}
		rows := make([]imageRow, 0, len(records))
		for _, record := range records {
			rows = append(rows, recordRow(source, record))
		}
		return rows, nil
	}

	var rows []imageRow
	err := host.ForEach(ctx, func(source string, record catalog.ImageRecord) error {
		if !record.Supported && !allowUnsupported {
			return nil
		}
		rows = append(rows, recordRow(source, record))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func recordRow(source string, record catalog.ImageRecord) imageRow {
	label := record.Release
	if len(record.Aliases) > 0 {
		label = record.Aliases[0]
	}
	return imageRow{
		Image:       fmt.Sprintf("%s:%s", source, label),
		Aliases:     record.Aliases,
		Version:     record.Version,
		Description: record.ReleaseTitle,
	}
}

func printImageTable(rows []imageRow) error {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "Image\tAliases\tVersion\tDescription")
	for _, row := range rows {
		aliases := ""
		if len(row.Aliases) > 1 {
			aliases = fmt.Sprint(row.Aliases[1:])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Image, aliases, row.Version, row.Description)
	}
	return tw.Flush()
}
