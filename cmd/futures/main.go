package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "futures",
		Usage:   "Run futures strategies against live, simulated or replayed markets",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the engine with a configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the YAML or JSON configuration `FILE`",
						Required: true,
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Write the JSON schemas of the configuration and of every built-in strategy",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output `DIR`. Prints the configuration schema to stdout when empty.",
					},
				},
				Action: schemaAction,
			},
			{
				Name:  "download",
				Usage: "Download historical futures bars into a replay file",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "symbol",
						Aliases:  []string{"s"},
						Usage:    "Symbol to download, repeatable",
						Required: true,
					},
					&cli.DurationFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   "Bar duration",
						Value:   time.Minute,
					},
					&cli.TimestampFlag{
						Name:     "start",
						Usage:    "Start date in `YYYY-MM-DD` format",
						Required: true,
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.TimestampFlag{
						Name:  "end",
						Usage: "End date in `YYYY-MM-DD` format. Defaults to now.",
						Value: time.Now(),
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output parquet `FILE`",
						Value:   "data/bars.parquet",
					},
				},
				Action: downloadAction,
			},
			{
				Name:  "runs",
				Usage: "List journaled runs of a day",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Journal `DIR`",
						Value: "runs",
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Day in `YYYY-MM-DD` format. Defaults to today.",
					},
				},
				Action: runsAction,
			},
			{
				Name:  "version",
				Usage: "Print the engine version",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Println(version.GetVersion())

					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
