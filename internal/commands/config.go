package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/utils"
)

// ConfigCommand returns the CLI command for persisted settings
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change settings stored on this device",
		Description: "Settings stored here take precedence over the .env file. " +
			"Known keys: " + strings.Join(config.Keys(), ", "),
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShowAction,
			},
			{
				Name:      "set",
				Usage:     "Store a setting",
				ArgsUsage: "<key> <value>",
				Action:    configSetAction,
			},
			{
				Name:      "unset",
				Usage:     "Remove a stored setting so the .env value applies again",
				ArgsUsage: "<key>",
				Action:    configUnsetAction,
			},
		},
		Action: configShowAction,
	}
}

func configShowAction(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}
	cfg := application.Config

	utils.PrintHeading("Configuration")
	utils.PrintDivider()
	utils.PrintKeyValueWithColor("Config directory", cfg.ConfigDir(), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Database", cfg.Database.Path, utils.Theme.Info)
	utils.PrintKeyValueWithColor("Log file", cfg.Logging.Output, utils.Theme.Info)
	fmt.Println()

	stored, err := application.Settings.Repository().GetSettings(c.Context, "")
	if err != nil {
		return failed("load settings", err)
	}

	values := map[string]string{
		config.KeyRemoteURL:        cfg.Remote.URL,
		config.KeyRemoteAPIKey:     mask(cfg.Remote.APIKey),
		config.KeyRemoteToken:      mask(cfg.Remote.Token),
		config.KeyRemoteDeviceName: cfg.Remote.DeviceName,
		config.KeySyncAuto:         fmt.Sprintf("%v", cfg.Sync.AutoSync),
	}

	rows := make([][]string, 0, len(values))
	for _, key := range config.Keys() {
		source := "env"
		if _, ok := stored[key]; ok {
			source = "stored"
		}
		rows = append(rows, []string{key, utils.OrDash(values[key]), source})
	}
	utils.PrintTable([]string{"Key", "Value", "Source"}, rows, utils.TableOptions{Title: "Settings"})

	fmt.Println()
	utils.PrintKeyValue("Attempt limit", fmt.Sprintf("%d", cfg.Sync.MaxRetries))
	utils.PrintKeyValue("Rejection policy", cfg.Sync.RejectionPolicy)
	utils.PrintKeyValue("Probe interval", cfg.Sync.ProbeInterval.String())
	utils.PrintKeyValue("Retry passes", utils.YesNo(cfg.Sync.RetryEnabled))
	return nil
}

func configSetAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return usageError("usage: congregate config set <key> <value>")
	}
	key, value := c.Args().Get(0), c.Args().Get(1)

	application, err := getApp(c)
	if err != nil {
		return err
	}

	if err := application.Settings.Set(c.Context, key, value); err != nil {
		return failed("store setting", err)
	}

	shown := value
	if key == config.KeyRemoteAPIKey || key == config.KeyRemoteToken {
		shown = mask(value)
	}
	utils.PrintKeyValueWithColor(key+" updated", shown, utils.Theme.Info)
	return nil
}

func configUnsetAction(c *cli.Context) error {
	key := c.Args().First()
	if !slices.Contains(config.Keys(), key) {
		return usageError(fmt.Sprintf("unknown setting %q, known keys: %s", key, strings.Join(config.Keys(), ", ")))
	}

	application, err := getApp(c)
	if err != nil {
		return err
	}

	if err := application.Settings.Repository().DeleteSetting(c.Context, key); err != nil {
		return failed("remove setting", err)
	}
	utils.PrintSuccess("Removed " + color.CyanString(key) + "; the .env value applies from the next run")
	return nil
}

// mask keeps the last four characters of a secret
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
