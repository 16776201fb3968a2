package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/starford/sidecar/internal"
	pkgconfig "github.com/starford/sidecar/pkg/config"
	"github.com/urfave/cli/v3"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runCreate(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("create: path argument is required")
	}

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	res, err := internal.RunCreate(ctx, path, opts...)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if res.Created {
		fmt.Printf("created %s\n", res.Sidecar)
	} else {
		fmt.Printf("exists %s\n", res.Sidecar)
	}
	return nil
}

func runBulk(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	n, err := internal.RunBulk(ctx, opts...)
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}

	fmt.Printf("created %d sidecars\n", n)
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "sidecar",
		Usage:  "Keeps Markdown sidecar notes in sync with the assets of a vault",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create the sidecar of one asset",
				ArgsUsage: "PATH",
				Action:    runCreate,
			},
			{
				Name:   "bulk",
				Usage:  "Create every missing sidecar in scope",
				Action: runBulk,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
