package commands

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/database"
	"github.com/tildaslashalef/congregate/internal/utils"
)

// MigrateCommand returns the CLI command for database migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Manage database migrations",
		Hidden: true,
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					application, err := getApp(c)
					if err != nil {
						return err
					}

					utils.PrintInfo("Applying embedded migrations")
					if err := database.RunMigrations(application.DB); err != nil {
						return failed("apply migrations", err)
					}
					return printSchemaVersion(application.DB)
				},
			},
			{
				Name:  "down",
				Usage: "Revert the last migration",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to revert",
						Value: 1,
					},
				},
				Action: func(c *cli.Context) error {
					application, err := getApp(c)
					if err != nil {
						return err
					}

					steps := c.Int("steps")
					utils.PrintWarning(fmt.Sprintf("Reverting %d embedded migration(s); the next command re-applies them", steps))
					if err := database.RevertMigrations(application.DB, steps); err != nil {
						return failed("revert migrations", err)
					}
					utils.PrintSuccess("Migration(s) reverted successfully!")
					return printSchemaVersion(application.DB)
				},
			},
			{
				Name:  "version",
				Usage: "Show the schema version",
				Action: func(c *cli.Context) error {
					application, err := getApp(c)
					if err != nil {
						return err
					}
					return printSchemaVersion(application.DB)
				},
			},
			{
				Name:  "create",
				Usage: "Create a new migration (development only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Name of the migration (eg: add_members_email)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Path where migration files will be created",
						Value: filepath.Join("internal", "migrations", "sql"),
					},
				},
				Action: func(c *cli.Context) error {
					name := c.String("name")
					path := c.String("path")

					utils.PrintWarning("Note: This command is intended for development use only.")

					if err := os.MkdirAll(path, 0755); err != nil {
						return failed("create migrations directory", err)
					}

					nextNumber, err := getNextMigrationNumber(path)
					if err != nil {
						return failed("determine next migration number", err)
					}

					utils.PrintInfo(fmt.Sprintf("Creating new migration: %s (version %d)", name, nextNumber))

					upFile := filepath.Join(path, fmt.Sprintf("%06d_%s.up.sql", nextNumber, name))
					if err := os.WriteFile(upFile, []byte("-- Write your UP migration SQL here\n"), 0644); err != nil {
						return failed("create up migration file", err)
					}

					downFile := filepath.Join(path, fmt.Sprintf("%06d_%s.down.sql", nextNumber, name))
					if err := os.WriteFile(downFile, []byte("-- Write your DOWN migration SQL here\n"), 0644); err != nil {
						return failed("create down migration file", err)
					}

					utils.PrintSuccess("Migration created successfully!")
					utils.PrintInfo(fmt.Sprintf("Up migration: %s", upFile))
					utils.PrintInfo(fmt.Sprintf("Down migration: %s", downFile))
					utils.PrintWarning("Rebuild to embed them in the binary.")
					return nil
				},
			},
		},
	}
}

func printSchemaVersion(db *sql.DB) error {
	version, dirty, err := database.Version(db)
	if err != nil {
		return failed("read schema version", err)
	}
	if dirty {
		utils.PrintKeyValueWithColor("Schema version", fmt.Sprintf("%d (dirty)", version), utils.Theme.Error)
		return nil
	}
	utils.PrintKeyValueWithColor("Schema version", strconv.FormatUint(uint64(version), 10), utils.Theme.Info)
	return nil
}

// getNextMigrationNumber scans existing up migrations and returns the highest number plus one
func getNextMigrationNumber(migrationsPath string) (int, error) {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	numbers := []int{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		if num, err := strconv.Atoi(prefix); err == nil {
			numbers = append(numbers, num)
		}
	}

	if len(numbers) == 0 {
		return 1, nil
	}

	sort.Ints(numbers)
	return numbers[len(numbers)-1] + 1, nil
}
