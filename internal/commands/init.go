package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/database"
	"github.com/tildaslashalef/congregate/internal/utils"
)

// InitCommand returns the CLI command for initializing congregate. It runs
// before any application exists, so it loads configuration on its own.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the congregate environment",
		Description: "Sets up the configuration directory with a sample .env file and " +
			"creates the local database. Run it once per device, and again after upgrading.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset-env",
				Usage: "Replace an existing .env with the sample, keeping a dated backup",
			},
		},
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing congregate")

			configDir := c.String("config-dir")
			if configDir == "" {
				dir, err := config.DefaultConfigDir()
				if err != nil {
					return failed("locate configuration directory", err)
				}
				configDir = dir
			}
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			utils.PrintInfo("Extracting default configuration file")
			envFile, err := config.SetupConfigDirectory(configDir, c.Bool("reset-env"))
			if err != nil {
				// the defaults still work without a .env file
				utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
			}

			cfg, err := config.LoadFromEnv(configDir, envFile)
			if err != nil {
				return failed("load configuration", err)
			}

			utils.PrintInfo("Initializing database...")
			db, err := database.Open(cfg.Database)
			if err != nil {
				return failed("initialize database", err)
			}
			defer db.Close()

			utils.PrintInfo("Applying database migrations...")
			if err := database.RunMigrations(db); err != nil {
				return failed("apply migrations", err)
			}
			if err := printSchemaVersion(db); err != nil {
				return err
			}

			utils.PrintSuccess("congregate initialized successfully!")
			utils.PrintInfo("Configuration file: " + color.YellowString("%s", envFile))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Println("")

			if !cfg.RemoteConfigured() {
				utils.PrintWarning("No server configured yet; everything is kept on this device until you set one:")
				utils.PrintList([]string{
					color.CyanString("congregate config set %s <project url>", config.KeyRemoteURL),
					color.CyanString("congregate config set %s <anon key>", config.KeyRemoteAPIKey),
				}, "")
			} else {
				utils.PrintInfo("You can now use " + color.CyanString("congregate members add") + " to start the roster.")
			}
			return nil
		},
	}
}
