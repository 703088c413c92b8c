package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var configPath string

	app := &cli.Command{
		Name:    "episodegraph",
		Usage:   "Episodic knowledge graph over Memgraph",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to the TOML config file",
				Value:       "config/config.toml",
				Sources:     cli.EnvVars("CONFIG_PATH"),
				Destination: &configPath,
			},
		},
		Commands: []*cli.Command{
			cmdServe(&configPath),
			cmdIngest(&configPath),
			cmdSearch(&configPath),
			cmdStats(&configPath),
		},
	}

	return app.Run(ctx, args)
}
