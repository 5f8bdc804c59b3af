package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/congregate/internal/app"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/records"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	t.Setenv("ENV_FILE_PATH", "")
	t.Setenv("CONGREGATE_REMOTE_URL", "")
	t.Setenv("CONGREGATE_REMOTE_API_KEY", "")
	t.Setenv("CONGREGATE_LOG_OUTPUT", "stderr")
	t.Setenv("CONGREGATE_LOG_LEVEL", "error")

	application, err := app.New(context.Background(), app.Options{ConfigDir: t.TempDir(), Offline: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown() })
	return application
}

// run executes args against the real command tree with application injected
func run(t *testing.T, application *app.App, args ...string) error {
	t.Helper()
	cliApp := &cli.App{
		Name:     "congregate",
		Commands: Commands(),
		Metadata: map[string]interface{}{"app": application},
	}
	return cliApp.Run(append([]string{"congregate"}, args...))
}

func TestOfflineCommandsQueueChanges(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, run(t, application, "members", "add", "--name", "Ana Ruiz", "--phone", "7777-0000", "--position", "Diácono"))
	require.NoError(t, run(t, application, "income", "add", "--category", "Diezmo", "--date", "2024-03-10", "25.50"))
	require.NoError(t, run(t, application, "expenses", "add", "-m", "Agua", "-c", "Servicios Basicos", "-d", "2024-03-11", "12"))

	ops, err := application.Queue.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, entity.Members, ops[0].Collection)
	assert.Equal(t, entity.Income, ops[1].Collection)
	assert.Equal(t, entity.Expenses, ops[2].Collection)

	members, err := application.Records.Members().List(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, records.PositionDeacon, members[0].ChurchPosition)
	assert.False(t, members[0].Synced)

	income, err := application.Records.Ledger().Income(ctx)
	require.NoError(t, err)
	require.Len(t, income, 1)
	assert.True(t, decimal.RequireFromString("25.50").Equal(income[0].Amount))

	// listing, status and a pass all succeed while offline
	require.NoError(t, run(t, application, "members", "list"))
	require.NoError(t, run(t, application, "queue", "list"))
	require.NoError(t, run(t, application, "sync", "status"))
	require.NoError(t, run(t, application, "sync"))

	n, err := application.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "an offline pass keeps everything queued")
}

func TestUpdateChangesOnlyGivenFlags(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	member, err := application.Records.Members().Add(ctx, records.MemberInput{FullName: "Ana Ruiz", Phone: "1111-1111", Address: "Colonia Centro"})
	require.NoError(t, err)

	require.NoError(t, run(t, application, "members", "update", "--phone", "7777-0000", "--sector", "3", member.ID))

	got, err := application.Records.Members().Get(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "7777-0000", got.Phone)
	assert.Equal(t, "Colonia Centro", got.Address)
	require.NotNil(t, got.SectorID)
	assert.Equal(t, int64(3), *got.SectorID)
}

func TestDeleteHidesMember(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	member, err := application.Records.Members().Add(ctx, records.MemberInput{FullName: "Ana Ruiz"})
	require.NoError(t, err)

	require.NoError(t, run(t, application, "members", "delete", member.ID))

	_, err = application.Records.Members().Get(ctx, member.ID)
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestUserErrorsAreReported(t *testing.T) {
	application := newTestApp(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing name", []string{"members", "add", "--phone", "7777-0000"}},
		{"unknown position", []string{"members", "add", "--name", "Ana", "--position", "Obispo"}},
		{"amount not a number", []string{"income", "add", "diez"}},
		{"negative amount", []string{"income", "add", "-d", "2024-03-10", "--", "-5"}},
		{"missing id", []string{"members", "show"}},
		{"unknown member", []string{"members", "show", "nobody"}},
		{"unknown collection", []string{"sync", "pull", "tithes"}},
		{"pull while offline", []string{"sync", "pull", "members"}},
		{"config set without value", []string{"config", "set", "remote.url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(t, application, tt.args...)
			assert.ErrorIs(t, err, ErrReported)
		})
	}
}

func TestQueueClearForce(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	_, err := application.Records.Members().Add(ctx, records.MemberInput{FullName: "Ana Ruiz"})
	require.NoError(t, err)

	require.NoError(t, run(t, application, "queue", "clear", "--force"))

	n, err := application.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfigSetPersists(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, run(t, application, "config", "set", "remote.device_name", "front-desk"))
	assert.Equal(t, "front-desk", application.Config.Remote.DeviceName)

	stored, err := application.Settings.Repository().GetSetting(ctx, "remote.device_name")
	require.NoError(t, err)
	assert.Equal(t, "front-desk", stored)

	err = run(t, application, "config", "set", "sync.auto", "sometimes")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrReported))

	require.NoError(t, run(t, application, "config", "unset", "remote.device_name"))
	stored, err = application.Settings.Repository().GetSetting(ctx, "remote.device_name")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetNextMigrationNumber(t *testing.T) {
	dir := t.TempDir()

	n, err := getNextMigrationNumber(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000004_add_sync_logs.up.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	n, err = getNextMigrationNumber(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("abc"))
	assert.Equal(t, "****7890", mask("eyJhbGciOi1234567890"))
}
