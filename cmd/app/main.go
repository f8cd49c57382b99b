package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/quire/internal"
	pkgconfig "github.com/starford/quire/pkg/config"
)

// options loads the config named by --config. A missing file falls back to
// the defaults so the CLI works without any setup.
func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("data-dir"); dir != "" {
		cfg.Storage.Dir = dir
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func export(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	_, err = internal.Export(ctx, os.Stdout, cmd.String("out"), opts...)
	return err
}

func importFile(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("import: export file path is required")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Import(ctx, os.Stdout, path, opts...)
}

func status(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Status(ctx, os.Stdout, opts...)
}

func clearStorage(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return errors.New("clear: refusing to delete stored data without --yes")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Clear(ctx, os.Stdout, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "quire",
		Usage:  "Local-first research notebook with durable autosave, export and import",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Override storage.dir from the config file",
				Sources: cli.EnvVars("QUIRE_DATA_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and inbox watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the notebook to MCP clients over stdio",
				Action: runMCP,
			},
			{
				Name:  "export",
				Usage: "Write the stored notebook to an export file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file or directory, - for stdout (default: generated name in the current directory)",
					},
				},
				Action: export,
			},
			{
				Name:      "import",
				Usage:     "Replace the stored notebook with an export file",
				ArgsUsage: "<file>",
				Action:    importFile,
			},
			{
				Name:   "status",
				Usage:  "Print save state, capacity and size breakdown",
				Action: status,
			},
			{
				Name:  "clear",
				Usage: "Delete all stored data",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm deletion"},
				},
				Action: clearStorage,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
