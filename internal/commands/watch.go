package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/utils"
)

// WatchCommand returns the CLI command that keeps syncing on every reconnect
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stay running and sync every time the server becomes reachable",
		Description: "Probes the server periodically. Each time it comes back after being " +
			"unreachable, queued changes are sent once. Stop with Ctrl+C.",
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}

			if application.Config.Sync.ForceOffline || !application.Config.RemoteConfigured() {
				utils.PrintError("Nothing to watch: the server is not configured or --offline is set")
				utils.PrintInfo("Set it with " + color.CyanString("congregate config set remote.url <url>"))
				return ErrReported
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// a pass for whatever is already queued, then one per reconnect
			if application.Signal.IsOnline() {
				printSyncResult(application.Sync.TriggerSync(ctx))
			}

			application.StartWatcher(ctx)
			utils.PrintInfo(fmt.Sprintf("Watching %s every %s (Ctrl+C to stop)",
				color.YellowString(application.Config.Remote.URL), application.Config.Sync.ProbeInterval))

			<-ctx.Done()
			fmt.Println()
			utils.PrintInfo("Stopped watching")
			return nil
		},
	}
}
