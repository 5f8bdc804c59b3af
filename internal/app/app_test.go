package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/records"
)

func newTestApp(t *testing.T, opts Options) *App {
	t.Helper()
	t.Setenv("ENV_FILE_PATH", "")
	t.Setenv("CONGREGATE_REMOTE_URL", "")
	t.Setenv("CONGREGATE_REMOTE_API_KEY", "")
	t.Setenv("CONGREGATE_LOG_OUTPUT", "stderr")
	t.Setenv("CONGREGATE_LOG_LEVEL", "error")

	if opts.ConfigDir == "" {
		opts.ConfigDir = t.TempDir()
	}

	application, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown() })
	return application
}

func TestUnconfiguredRemoteRunsOffline(t *testing.T) {
	application := newTestApp(t, Options{})

	assert.False(t, application.Config.RemoteConfigured())
	assert.False(t, application.Signal.IsOnline())
	assert.Nil(t, application.monitor)

	ctx := context.Background()
	member, err := application.Records.Members().Add(ctx, records.MemberInput{FullName: "Ana Ruiz"})
	require.NoError(t, err)
	assert.False(t, member.Synced)

	n, err := application.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	result := application.Sync.TriggerSync(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"no connectivity"}, result.Errors)
}

func TestOfflineOptionWinsOverConfiguredRemote(t *testing.T) {
	t.Setenv("CONGREGATE_REMOTE_URL", "https://example.supabase.co")
	t.Setenv("CONGREGATE_REMOTE_API_KEY", "anon")

	dir := t.TempDir()
	application, err := New(context.Background(), Options{ConfigDir: dir, Offline: true})
	require.NoError(t, err)
	defer application.Shutdown()

	assert.True(t, application.Config.Sync.ForceOffline)
	assert.False(t, application.Signal.IsOnline())
	assert.Nil(t, application.monitor, "no probing when forced offline")
}

func TestDeviceNameIsStored(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestApp(t, Options{ConfigDir: dir})
	name := first.Config.Remote.DeviceName
	require.NotEmpty(t, name)

	stored, err := first.Settings.Repository().GetSetting(ctx, config.KeyRemoteDeviceName)
	require.NoError(t, err)
	assert.Equal(t, name, stored)
}

func TestWatcherStartsOnce(t *testing.T) {
	application := newTestApp(t, Options{})

	w := application.StartWatcher(context.Background())
	assert.Same(t, w, application.StartWatcher(context.Background()))

	all, err := application.Store.GetAll(context.Background(), entity.Members)
	require.NoError(t, err)
	assert.Empty(t, all)
}
