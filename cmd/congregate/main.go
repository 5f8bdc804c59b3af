package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/app"
	"github.com/tildaslashalef/congregate/internal/commands"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

var (
	globalFlags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "offline",
			Usage:   "Never contact the server; every change is queued for a later sync",
			EnvVars: []string{"CONGREGATE_OFFLINE"},
		},
		&cli.StringFlag{
			Name:    "config-dir",
			Usage:   "Directory holding .env, the database and the log (default: ~/.congregate)",
			EnvVars: []string{"CONGREGATE_CONFIG_DIR"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Path to the .env file (default: <config-dir>/.env)",
		},
	}
)

// commands that must run before an application can be built
var standalone = map[string]bool{
	"init": true,
	"help": true,
	"h":    true,
}

func main() {
	cliApp := &cli.App{
		Name:  "congregate",
		Usage: "Offline-first church records",
		Description: "Keeps the member roster, income and expenses of a congregation. " +
			"Changes made without a connection are stored on this device and sent " +
			"to the server the next time it is reachable.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Flags: globalFlags,
		Before: func(c *cli.Context) error {
			if standalone[c.Args().First()] || c.NArg() == 0 {
				return nil
			}

			os.Setenv("VERSION", Version)

			application, err := app.New(c.Context, app.Options{
				ConfigDir: c.String("config-dir"),
				EnvFile:   c.String("env-file"),
				Offline:   c.Bool("offline"),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if application.Config.Sync.AutoSync {
				application.StartWatcher(c.Context)
			}

			// Store the app instance in the context for later use
			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			// Gracefully shutdown the application
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: commands.Commands(),
	}

	if err := cliApp.Run(os.Args); err != nil {
		if errors.Is(err, commands.ErrReported) {
			os.Exit(1)
		}
		log.Fatal(err)
	}
}
