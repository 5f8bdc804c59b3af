package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/records"
	"github.com/tildaslashalef/congregate/internal/utils"
	"github.com/urfave/cli/v2"
)

func memberFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Full name"},
		&cli.StringFlag{Name: "dui", Usage: "Identity document number"},
		&cli.StringFlag{Name: "phone", Usage: "Phone number"},
		&cli.StringFlag{Name: "address", Usage: "Home address"},
		&cli.StringFlag{Name: "baptism-date", Usage: "Baptism date (YYYY-MM-DD)"},
		&cli.Int64Flag{Name: "sector", Usage: "Sector id (see 'congregate sectors list')"},
		&cli.StringFlag{Name: "position", Usage: "Church position: " + joinValues(records.ChurchPositions())},
		&cli.StringFlag{Name: "status", Usage: "Member status: " + joinValues(records.MemberStatuses())},
	}
}

// MembersCommand returns the CLI command for the member roster
func MembersCommand() *cli.Command {
	return &cli.Command{
		Name:    "members",
		Aliases: []string{"m"},
		Usage:   "Manage the member roster",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List members",
				Flags: append([]cli.Flag{
					&cli.Int64Flag{Name: "sector", Usage: "Only members of this sector"},
				}, pageFlags()...),
				Action: listMembers,
			},
			{
				Name:      "show",
				Usage:     "Show one member",
				ArgsUsage: "<id>",
				Action:    showMember,
			},
			{
				Name:   "add",
				Usage:  "Add a member",
				Flags:  memberFlags(),
				Action: addMember,
			},
			{
				Name:      "update",
				Usage:     "Change fields of a member; only the flags given are changed",
				ArgsUsage: "<id>",
				Flags:     memberFlags(),
				Action:    updateMember,
			},
			{
				Name:      "delete",
				Usage:     "Remove a member",
				ArgsUsage: "<id>",
				Action:    deleteMember,
			},
		},
	}
}

func listMembers(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	var members []*records.Member
	if c.IsSet("sector") {
		members, err = application.Records.Members().BySector(c.Context, c.Int64("sector"))
	} else {
		members, err = application.Records.Members().List(c.Context)
	}
	if err != nil {
		return report("list members", err)
	}

	sectors := sectorNames(c, application.Records)

	headers := []string{"ID", "Name", "Phone", "Sector", "Position", "Status", "Baptized", "Synced"}
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{
			utils.Truncate(m.ID, 13),
			utils.Truncate(m.FullName, 32),
			utils.OrDash(m.Phone),
			sectorName(sectors, m.SectorID),
			string(m.ChurchPosition),
			string(m.Status),
			utils.YesNo(m.IsBaptized),
			utils.YesNo(m.Synced),
		})
	}

	utils.PrintTable(headers, rows, tableOptions(c, fmt.Sprintf("Members (%d)", len(members))))
	return nil
}

func showMember(c *cli.Context) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	application, err := getApp(c)
	if err != nil {
		return err
	}

	m, err := application.Records.Members().Get(c.Context, id)
	if err != nil {
		return report("load member", err)
	}

	printMember(m, sectorNames(c, application.Records))
	return nil
}

func addMember(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}
	printMode(application)

	in := records.MemberInput{
		FullName:       c.String("name"),
		DUI:            c.String("dui"),
		Phone:          c.String("phone"),
		Address:        c.String("address"),
		BaptismDate:    c.String("baptism-date"),
		SectorID:       c.Int64("sector"),
		ChurchPosition: records.ChurchPosition(c.String("position")),
		Status:         records.MemberStatus(c.String("status")),
	}

	m, err := application.Records.Members().Add(c.Context, in)
	if err != nil {
		return report("add member", err)
	}

	printSaved("Member", m.ID, m.Synced)
	return nil
}

func updateMember(c *cli.Context) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	application, err := getApp(c)
	if err != nil {
		return err
	}
	printMode(application)

	m, err := application.Records.Members().Update(c.Context, id, memberPatch(c))
	if err != nil {
		return report("update member", err)
	}

	printSaved("Member", m.ID, m.Synced)
	return nil
}

// memberPatch picks up only the flags the user actually passed
func memberPatch(c *cli.Context) records.MemberPatch {
	var patch records.MemberPatch
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}

	patch.FullName = str("name")
	patch.DUI = str("dui")
	patch.Phone = str("phone")
	patch.Address = str("address")
	patch.BaptismDate = str("baptism-date")
	if c.IsSet("sector") {
		v := c.Int64("sector")
		patch.SectorID = &v
	}
	if v := str("position"); v != nil {
		p := records.ChurchPosition(*v)
		patch.ChurchPosition = &p
	}
	if v := str("status"); v != nil {
		s := records.MemberStatus(*v)
		patch.Status = &s
	}
	return patch
}

func deleteMember(c *cli.Context) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	application, err := getApp(c)
	if err != nil {
		return err
	}
	printMode(application)

	if err := application.Records.Members().Delete(c.Context, id); err != nil {
		return report("delete member", err)
	}

	utils.PrintSuccess("Member " + color.CyanString(id) + " deleted")
	return nil
}

func printMember(m *records.Member, sectors map[int64]string) {
	utils.PrintHeading(m.FullName)
	utils.PrintDivider()
	utils.PrintKeyValue("ID", m.ID)
	utils.PrintKeyValue("DUI", utils.OrDash(m.DUI))
	utils.PrintKeyValue("Phone", utils.OrDash(m.Phone))
	utils.PrintKeyValue("Address", utils.OrDash(m.Address))
	utils.PrintKeyValue("Sector", sectorName(sectors, m.SectorID))
	utils.PrintKeyValue("Position", string(m.ChurchPosition))
	utils.PrintKeyValue("Status", string(m.Status))
	if m.IsBaptized {
		utils.PrintKeyValue("Baptized", utils.OrDash(m.BaptismDate))
	} else {
		utils.PrintKeyValue("Baptized", "no")
	}
	if m.Synced {
		utils.PrintKeyValueWithColor("Synced", "yes", utils.Theme.Success)
	} else {
		utils.PrintKeyValueWithColor("Synced", "pending", utils.Theme.Warning)
	}
}

// sectorNames maps sector ids to names for display. Failing to load them
// only costs the names, so the error is logged and ignored.
func sectorNames(c *cli.Context, svc *records.Service) map[int64]string {
	names := map[int64]string{}
	sectors, err := svc.Sectors(c.Context)
	if err != nil {
		loggy.Warn("Failed to load sectors", "error", err)
		return names
	}
	for _, s := range sectors {
		names[s.ID] = s.Name
	}
	return names
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
