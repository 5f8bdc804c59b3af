package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/app"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/sync"
	"github.com/tildaslashalef/congregate/internal/utils"
)

// SyncCommand returns the CLI command for synchronizing with the server
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Send queued changes to the server",
		Description: "Replays every change made while offline, oldest first. Changes the server " +
			"refuses stay queued and are retried on the next sync until the attempt limit is reached.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be sent without contacting the server",
			},
			&cli.BoolFlag{
				Name:  "pull",
				Usage: "Refresh every collection from the server after sending",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show connectivity, queued changes and the last sync",
				Action: syncStatusAction,
			},
			{
				Name:  "history",
				Usage: "Show recent sync passes",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Passes to show", Value: 20},
					&cli.BoolFlag{Name: "errors", Aliases: []string{"e"}, Usage: "List the errors of failed passes"},
				},
				Action: syncHistoryAction,
			},
			{
				Name:      "pull",
				Usage:     "Download collections from the server into the local copy",
				ArgsUsage: "[collection]",
				Action:    syncPullAction,
			},
		},
		Action: syncAction,
	}
}

func syncAction(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		return printQueue(c, application, "Would send")
	}

	if !application.Signal.IsOnline() {
		utils.PrintWarning("Offline: nothing was sent, queued changes are kept")
	}

	result := application.Sync.TriggerSync(c.Context)
	printSyncResult(result)

	if c.Bool("pull") && application.Signal.IsOnline() {
		results, err := application.Sync.PullAll(c.Context)
		if err != nil {
			utils.PrintWarning(fmt.Sprintf("Pull stopped early: %s", err))
		}
		printPullResults(results)
	}

	// failures stay queued for the next pass, so they are not an exit error
	return nil
}

func printSyncResult(result *sync.SyncResult) {
	if result.Skipped {
		utils.PrintWarning("Another sync is already running; try again when it finishes")
		return
	}

	utils.PrintHeading("Sync pass " + result.PassID)
	utils.PrintDivider()
	utils.PrintKeyValue("Trigger", string(result.Trigger))
	utils.PrintKeyValueWithColor("Synced", strconv.Itoa(result.Synced), utils.Theme.Success)
	if result.Failed > 0 {
		utils.PrintKeyValueWithColor("Failed", strconv.Itoa(result.Failed), utils.Theme.Error)
	} else {
		utils.PrintKeyValue("Failed", "0")
	}
	if result.DeadLettered > 0 {
		utils.PrintKeyValueWithColor("Gave up", strconv.Itoa(result.DeadLettered), utils.Theme.Warning)
	}
	utils.PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String())
	fmt.Println()

	if len(result.Errors) > 0 {
		rows := make([][]string, 0, len(result.Errors))
		for i, msg := range result.Errors {
			rows = append(rows, []string{strconv.Itoa(i + 1), utils.WrapText(msg, 72, 0)})
		}
		utils.PrintTable([]string{"#", "Error"}, rows, utils.TableOptions{Title: "Sync errors"})
	}

	switch {
	case result.Interrupted:
		utils.PrintWarning("Sync interrupted; the remaining changes stay queued")
	case result.Success && result.Synced == 0:
		utils.PrintSuccess("Nothing to sync")
	case result.Success:
		utils.PrintSuccess(fmt.Sprintf("Sent %d change(s)", result.Synced))
	case result.Retryable():
		utils.PrintWarning("Some changes could not be sent; they stay queued and will be retried")
	default:
		utils.PrintWarning("Some changes could not be sent and will not be retried automatically")
	}
}

func syncStatusAction(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	cfg := application.Config

	utils.PrintHeading("Sync Status")
	utils.PrintDivider()

	switch {
	case cfg.Sync.ForceOffline:
		utils.PrintKeyValueWithColor("Connection", "offline (forced)", utils.Theme.Warning)
	case !cfg.RemoteConfigured():
		utils.PrintKeyValueWithColor("Connection", "not configured", utils.Theme.Warning)
	case application.Signal.IsOnline():
		utils.PrintKeyValueWithColor("Connection", "online", utils.Theme.Success)
	default:
		utils.PrintKeyValueWithColor("Connection", "offline", utils.Theme.Error)
	}
	utils.PrintKeyValueWithColor("Server URL", utils.OrDash(cfg.Remote.URL), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Device Name", cfg.Remote.DeviceName, utils.Theme.Info)
	utils.PrintKeyValue("Auto sync", utils.YesNo(cfg.Sync.AutoSync))
	utils.PrintKeyValue("Attempt limit", strconv.Itoa(application.Sync.MaxRetries()))

	queued, err := application.Queue.Count(ctx)
	if err != nil {
		return failed("count queued changes", err)
	}
	utils.PrintKeyValue("Queued changes", strconv.Itoa(queued))

	last, err := application.Sync.LastPass(ctx)
	if err != nil {
		return failed("load last sync", err)
	}
	if last == nil {
		utils.PrintKeyValue("Last sync", "never")
	} else {
		outcome := color.GreenString("ok")
		if !last.Success {
			outcome = color.RedString("%d failed", last.Failed)
		}
		utils.PrintKeyValue("Last sync", fmt.Sprintf("%s (%s, %d sent, %s)",
			utils.FormatAgo(last.CompletedAt, time.Now()), last.Trigger, last.Synced, outcome))
	}
	fmt.Println()

	rows := [][]string{}
	for _, collection := range entity.Collections() {
		unsynced, err := application.Store.CountUnsynced(ctx, collection)
		if err != nil {
			return failed("count unsynced records", err)
		}
		ops, err := application.Queue.ListByCollection(ctx, collection)
		if err != nil {
			return failed("list queued changes", err)
		}
		rows = append(rows, []string{collection.String(), strconv.Itoa(unsynced), strconv.Itoa(len(ops))})
	}
	utils.PrintTable([]string{"Collection", "Unsynced records", "Queued changes"}, rows, utils.TableOptions{Title: "Local data"})

	return nil
}

func syncHistoryAction(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	logs, err := application.Sync.History(c.Context, c.Int("limit"))
	if err != nil {
		return failed("load sync history", err)
	}

	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		outcome := "✓ Success"
		if !l.Success {
			outcome = "✗ Failed"
		}
		rows = append(rows, []string{
			utils.FormatTime(l.StartedAt),
			string(l.Trigger),
			outcome,
			strconv.Itoa(l.Synced),
			strconv.Itoa(l.Failed),
			strconv.Itoa(l.DeadLettered),
			l.CompletedAt.Sub(l.StartedAt).Round(time.Millisecond).String(),
		})
	}
	utils.PrintTable([]string{"Started", "Trigger", "Status", "Synced", "Failed", "Gave up", "Took"}, rows, utils.TableOptions{Title: "Sync History"})

	if c.Bool("errors") {
		for _, l := range logs {
			if errs := l.Errors(); len(errs) > 0 {
				utils.PrintTreeList(fmt.Sprintf("%s (%s)", utils.FormatTime(l.StartedAt), l.PassID), errs)
			}
		}
	}
	return nil
}

func syncPullAction(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	var results []*sync.PullResult
	if name := c.Args().First(); name != "" {
		collection, err := entity.ParseCollection(name)
		if err != nil {
			utils.PrintError(err.Error())
			return ErrReported
		}
		result, err := application.Sync.PullCollection(c.Context, collection)
		if err != nil {
			return pullFailed(err)
		}
		results = append(results, result)
	} else {
		results, err = application.Sync.PullAll(c.Context)
		if err != nil {
			printPullResults(results)
			return pullFailed(err)
		}
	}

	printPullResults(results)
	return nil
}

func pullFailed(err error) error {
	if errors.Is(err, sync.ErrOffline) {
		utils.PrintWarning("Offline: connect to the server to pull")
		return ErrReported
	}
	return failed("pull from server", err)
}

func printPullResults(results []*sync.PullResult) {
	if len(results) == 0 {
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Collection,
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Stored),
			strconv.Itoa(r.Kept),
			strconv.Itoa(r.Removed),
		})
	}
	utils.PrintTable([]string{"Collection", "Fetched", "Stored", "Kept local", "Removed"}, rows, utils.TableOptions{Title: "Pull"})
}

// printQueue lists pending operations in replay order
func printQueue(c *cli.Context, application *app.App, title string) error {
	ops, err := application.Queue.ListAll(c.Context)
	if err != nil {
		return failed("list queued changes", err)
	}

	ceiling := application.Sync.MaxRetries()
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		attempts := fmt.Sprintf("%d/%d", op.AttemptCount, ceiling)
		if op.Exhausted(ceiling) {
			attempts = color.RedString("%s gave up", attempts)
		}
		rows = append(rows, []string{
			strconv.FormatInt(op.ID, 10),
			op.Collection.String(),
			string(op.Kind),
			utils.Truncate(op.RecordID(), 13),
			utils.FormatTime(op.EnqueuedAt),
			attempts,
		})
	}

	utils.PrintTable([]string{"#", "Collection", "Change", "Record", "Queued at", "Attempts"}, rows, utils.TableOptions{Title: fmt.Sprintf("%s (%d)", title, len(ops))})
	return nil
}
