package commands

import (
	"fmt"
	"strconv"

	"github.com/tildaslashalef/congregate/internal/utils"
	"github.com/urfave/cli/v2"
)

// SectorsCommand returns the CLI command for the read-only sector list
func SectorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sectors",
		Usage: "Show the sectors defined on the server",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sectors with their member counts",
				Action: func(c *cli.Context) error {
					application, err := getApp(c)
					if err != nil {
						return err
					}

					sectors, err := application.Records.Sectors(c.Context)
					if err != nil {
						return report("list sectors", err)
					}

					members, err := application.Records.Members().List(c.Context)
					if err != nil {
						return report("list members", err)
					}
					counts := map[int64]int{}
					for _, m := range members {
						if m.SectorID != nil {
							counts[*m.SectorID]++
						}
					}

					rows := make([][]string, 0, len(sectors))
					for _, s := range sectors {
						rows = append(rows, []string{
							strconv.FormatInt(s.ID, 10),
							s.Name,
							strconv.Itoa(counts[s.ID]),
						})
					}

					utils.PrintTable([]string{"ID", "Name", "Members"}, rows, utils.TableOptions{Title: fmt.Sprintf("Sectors (%d)", len(sectors))})
					if len(sectors) == 0 && !application.Signal.IsOnline() {
						utils.PrintInfo("Sectors are downloaded from the server; connect once to fill this list")
					}
					return nil
				},
			},
		},
	}
}
