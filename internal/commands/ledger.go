package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/tildaslashalef/congregate/internal/records"
	"github.com/tildaslashalef/congregate/internal/utils"
	"github.com/urfave/cli/v2"
)

func today() string {
	return time.Now().Format(records.DateLayout)
}

// IncomeCommand returns the CLI command for income entries
func IncomeCommand() *cli.Command {
	return &cli.Command{
		Name:  "income",
		Usage: "Record tithes and offerings",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List income entries, newest first",
				Flags:  pageFlags(),
				Action: listIncome,
			},
			{
				Name:      "add",
				Usage:     "Record an income entry",
				ArgsUsage: "<amount>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category: " + joinValues(records.IncomeCategories()), Value: string(records.IncomeTithe)},
					&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Date (YYYY-MM-DD, default today)"},
					&cli.StringFlag{Name: "period", Usage: "Period the entry belongs to, e.g. 2024-03"},
					&cli.StringFlag{Name: "member", Usage: "Member id for tithes"},
					&cli.Int64Flag{Name: "sector", Usage: "Sector id"},
					&cli.StringFlag{Name: "notes", Usage: "Free-form notes"},
				},
				Action: addIncome,
			},
			{
				Name:      "delete",
				Usage:     "Delete an income entry",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return deleteEntry(c, "Income entry", func(l *records.Ledger, id string) error {
						return l.DeleteIncome(c.Context, id)
					})
				},
			},
		},
	}
}

// ExpensesCommand returns the CLI command for expense entries
func ExpensesCommand() *cli.Command {
	return &cli.Command{
		Name:  "expenses",
		Usage: "Record church expenses",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List expense entries, newest first",
				Flags:  pageFlags(),
				Action: listExpenses,
			},
			{
				Name:      "add",
				Usage:     "Record an expense entry",
				ArgsUsage: "<amount>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category: " + joinValues(records.ExpenseCategories()), Value: string(records.ExpenseOther)},
					&cli.StringFlag{Name: "description", Aliases: []string{"m"}, Usage: "What the money was spent on"},
					&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Date (YYYY-MM-DD, default today)"},
					&cli.StringFlag{Name: "receipt", Usage: "Receipt URL"},
					&cli.StringFlag{Name: "funding-source", Usage: "Income category paying for it: " + joinValues(records.IncomeCategories())},
				},
				Action: addExpense,
			},
			{
				Name:      "delete",
				Usage:     "Delete an expense entry",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return deleteEntry(c, "Expense entry", func(l *records.Ledger, id string) error {
						return l.DeleteExpense(c.Context, id)
					})
				},
			},
		},
	}
}

func listIncome(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	entries, err := application.Records.Ledger().Income(c.Context)
	if err != nil {
		return report("list income", err)
	}

	headers := []string{"ID", "Date", "Category", "Amount", "Period", "Notes", "Synced"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			utils.Truncate(e.ID, 13),
			e.Date,
			string(e.Category),
			e.Amount.StringFixed(2),
			utils.OrDash(e.Period),
			utils.Truncate(utils.OrDash(e.Notes), 30),
			utils.YesNo(e.Synced),
		})
	}

	utils.PrintTable(headers, rows, tableOptions(c, fmt.Sprintf("Income (%d)", len(entries))))
	return nil
}

func addIncome(c *cli.Context) error {
	raw, err := requireArg(c, "amount")
	if err != nil {
		return err
	}
	amount, err := parseAmount(raw)
	if err != nil {
		return report("add income", err)
	}
	application, err := getApp(c)
	if err != nil {
		return err
	}
	printMode(application)

	date := c.String("date")
	if date == "" {
		date = today()
	}

	entry, err := application.Records.Ledger().AddIncome(c.Context, records.IncomeInput{
		Amount:   amount,
		Date:     date,
		Category: records.IncomeCategory(c.String("category")),
		Period:   c.String("period"),
		MemberID: c.String("member"),
		SectorID: c.Int64("sector"),
		Notes:    c.String("notes"),
	})
	if err != nil {
		return report("add income", err)
	}

	printSaved(fmt.Sprintf("Income of %s", color.GreenString(entry.Amount.StringFixed(2))), entry.ID, entry.Synced)
	return nil
}

func listExpenses(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	entries, err := application.Records.Ledger().Expenses(c.Context)
	if err != nil {
		return report("list expenses", err)
	}

	headers := []string{"ID", "Date", "Category", "Amount", "Description", "Funded by", "Synced"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			utils.Truncate(e.ID, 13),
			e.Date,
			string(e.Category),
			e.Amount.StringFixed(2),
			utils.Truncate(e.Description, 30),
			utils.OrDash(string(e.FundingSource)),
			utils.YesNo(e.Synced),
		})
	}

	utils.PrintTable(headers, rows, tableOptions(c, fmt.Sprintf("Expenses (%d)", len(entries))))
	return nil
}

func addExpense(c *cli.Context) error {
	raw, err := requireArg(c, "amount")
	if err != nil {
		return err
	}
	amount, err := parseAmount(raw)
	if err != nil {
		return report("add expense", err)
	}
	application, err := getApp(c)
	if err != nil {
		return err
	}
	printMode(application)

	date := c.String("date")
	if date == "" {
		date = today()
	}

	entry, err := application.Records.Ledger().AddExpense(c.Context, records.ExpenseInput{
		Amount:        amount,
		Date:          date,
		Category:      records.ExpenseCategory(c.String("category")),
		Description:   c.String("description"),
		ReceiptURL:    c.String("receipt"),
		FundingSource: records.IncomeCategory(c.String("funding-source")),
	})
	if err != nil {
		return report("add expense", err)
	}

	printSaved(fmt.Sprintf("Expense of %s", color.RedString(entry.Amount.StringFixed(2))), entry.ID, entry.Synced)
	return nil
}

func deleteEntry(c *cli.Context, what string, del func(l *records.Ledger, id string) error) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	application, err := getApp(c)
	if err != nil {
		return err
	}
	printMode(application)

	if err := del(application.Records.Ledger(), id); err != nil {
		return report("delete entry", err)
	}

	utils.PrintSuccess(what + " " + color.CyanString(id) + " deleted")
	return nil
}
