package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/utils"
)

// QueueCommand returns the CLI command for inspecting pending changes
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect changes waiting to be sent",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List queued changes in the order they will be sent",
				Action: func(c *cli.Context) error {
					application, err := getApp(c)
					if err != nil {
						return err
					}
					return printQueue(c, application, "Queued changes")
				},
			},
			{
				Name:  "clear",
				Usage: "Discard every queued change",
				Description: "Queued changes that were never sent are lost. Local copies keep " +
					"their pending flag until the next pull replaces them.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Do not ask for confirmation",
					},
				},
				Action: func(c *cli.Context) error {
					application, err := getApp(c)
					if err != nil {
						return err
					}

					count, err := application.Queue.Count(c.Context)
					if err != nil {
						return failed("count queued changes", err)
					}
					if count == 0 {
						utils.PrintInfo("The queue is empty")
						return nil
					}

					if !c.Bool("force") {
						utils.PrintWarning(fmt.Sprintf("This discards %d change(s) that were never sent.", count))
						fmt.Print(utils.Theme.Subtle.Sprint("Type 'yes' to continue: "))
						answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
						if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
							utils.PrintInfo("Nothing was discarded")
							return nil
						}
					}

					if err := application.Queue.Clear(c.Context); err != nil {
						return failed("clear queue", err)
					}
					utils.PrintSuccess(fmt.Sprintf("Discarded %d queued change(s)", count))
					return nil
				},
			},
		},
	}
}
