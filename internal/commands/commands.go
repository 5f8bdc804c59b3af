// Package commands holds the urfave/cli commands of the congregate binary
package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/tildaslashalef/congregate/internal/app"
	"github.com/tildaslashalef/congregate/internal/records"
	"github.com/tildaslashalef/congregate/internal/utils"
	"github.com/urfave/cli/v2"
)

// Commands returns every top-level command in display order
func Commands() []*cli.Command {
	return []*cli.Command{
		InitCommand(),
		MembersCommand(),
		IncomeCommand(),
		ExpensesCommand(),
		SectorsCommand(),
		SyncCommand(),
		QueueCommand(),
		WatchCommand(),
		ConfigCommand(),
		MigrateCommand(),
	}
}

// ErrReported is returned once a failure has been shown to the user, so
// main only needs to set the exit status
var ErrReported = errors.New("failure already reported")

func usageError(msg string) error {
	utils.PrintError(msg)
	return ErrReported
}

// failed prints a failure and returns it wrapped for the exit status
func failed(action string, err error) error {
	utils.PrintError(fmt.Sprintf("Failed to %s: %s", action, err))
	return fmt.Errorf("failed to %s: %w", action, err)
}

// getApp fetches the application, printing the failure the way every command does
func getApp(c *cli.Context) (*app.App, error) {
	application, err := app.FromContext(c)
	if err != nil {
		return nil, failed("get application", err)
	}
	return application, nil
}

// printMode tells the user where writes will go before a mutation
func printMode(application *app.App) {
	if application.Signal.IsOnline() {
		return
	}
	utils.PrintWarning("Offline: changes are saved on this device and " + color.YellowString("queued") + " for the next sync")
}

// printSaved reports where a written record ended up
func printSaved(what, id string, synced bool) {
	if synced {
		utils.PrintSuccess(fmt.Sprintf("%s %s saved", what, color.CyanString(id)))
		return
	}
	utils.PrintSuccess(fmt.Sprintf("%s %s saved locally, pending sync", what, color.CyanString(id)))
}

// report prints an error from the records service. Validation and lookup
// problems are the user's to fix, so they skip the "Failed to" framing.
func report(action string, err error) error {
	if errors.Is(err, records.ErrInvalidInput) || errors.Is(err, records.ErrNotFound) || errors.Is(err, records.ErrReadOnly) {
		utils.PrintError(err.Error())
		return ErrReported
	}
	return failed(action, err)
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q is not a number", records.ErrInvalidInput, s)
	}
	return amount, nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := c.Args().First()
	if arg == "" {
		return "", usageError(fmt.Sprintf("missing %s argument, usage: %s %s", name, c.Command.HelpName, c.Command.ArgsUsage))
	}
	return arg, nil
}

func sectorName(sectors map[int64]string, id *int64) string {
	if id == nil {
		return "-"
	}
	if name, ok := sectors[*id]; ok {
		return name
	}
	return strconv.FormatInt(*id, 10)
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "Page to show",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Rows per page (0 shows everything)",
			Value: 20,
		},
	}
}

func tableOptions(c *cli.Context, title string) utils.TableOptions {
	opts := utils.DefaultTableOptions()
	opts.Title = title
	opts.EnablePagination = c.Int("page-size") > 0
	opts.PageSize = c.Int("page-size")
	opts.CurrentPage = c.Int("page")
	return opts
}
