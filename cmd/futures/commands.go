package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/config"
	"github.com/rxtech-lab/argo-futures/internal/journal"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/marketdata"
	"github.com/rxtech-lab/argo-futures/internal/strategy"
	"github.com/urfave/cli/v3"
)

const configSchemaFile = "futures-config.json"

func schemaAction(_ context.Context, cmd *cli.Command) error {
	output := cmd.String("output")
	if output == "" {
		schema, err := config.Schema()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	paths, err := writeSchemas(output, strategy.DefaultRegistry())
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Println(path)
	}

	return nil
}

// writeSchemas writes the config schema and one schema per registered strategy into dir.
func writeSchemas(dir string, registry *strategy.Registry) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create schema directory: %w", err)
	}

	schemas := map[string]func() (string, error){configSchemaFile: config.Schema}
	names := []string{configSchemaFile}

	for _, name := range registry.Names() {
		file := "strategy-" + name + ".json"
		schemas[file] = func() (string, error) { return registry.Schema(name) }
		names = append(names, file)
	}

	paths := make([]string, 0, len(names))

	for _, file := range names {
		schema, err := schemas[file]()
		if err != nil {
			return nil, err
		}

		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte(schema), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	path, err := marketdata.NewBinanceDownloader(log).Download(ctx, marketdata.DownloadRequest{
		Symbols:  cmd.StringSlice("symbol"),
		Duration: cmd.Duration("interval"),
		Start:    cmd.Timestamp("start"),
		End:      cmd.Timestamp("end"),
		Output:   cmd.String("output"),
		Progress: os.Stderr,
	})
	if err != nil {
		return err
	}

	fmt.Println(path)

	return nil
}

func runsAction(_ context.Context, cmd *cli.Command) error {
	date := cmd.String("date")
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}

	runs, err := journal.ListRuns(cmd.String("path"), date)
	if err != nil {
		return err
	}

	for _, run := range runs {
		fmt.Println(filepath.Join(cmd.String("path"), date, run))
	}

	return nil
}
