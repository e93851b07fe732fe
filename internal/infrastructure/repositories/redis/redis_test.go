package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jamlink/internal/core/domain"
	"jamlink/pkg/retry"
)

const testPrefix = "jamlink-test:"

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestNewRedisClient_RunsMigrations(t *testing.T) {
	s := miniredis.RunT(t)
	s.SAdd(testPrefix+"plugins", "/legacy.so")

	client, err := NewRedisClient(context.Background(), ClientOptions{
		Address:   s.Addr(),
		PoolSize:  2,
		KeyPrefix: testPrefix,
		Retry:     retry.Config{Enabled: false},
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer CloseRedisClient(client)

	version, err := s.Get(testPrefix + "schema:version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
	assert.False(t, s.Exists(testPrefix+"plugins"), "legacy catalog dropped")

	// idempotent
	require.NoError(t, Migrate(context.Background(), client, testPrefix, nil))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewRedisClient(context.Background(), ClientOptions{
		Address:  addr,
		PoolSize: 1,
		Retry: retry.Config{
			Enabled:      true,
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}, nil)
	assert.Error(t, err)
}

func TestSettingsRepository(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRedisSettingsRepository(client, testPrefix)
	ctx := context.Background()

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	snap := domain.InputsSnapshot{Groups: []domain.GroupSnapshot{
		{Name: "Keys", Subchannels: []domain.InputSelection{
			{Kind: domain.StereoInput, FirstChannel: 2, MidiDevice: -1},
			{Kind: domain.MidiInput, FirstChannel: -1, MidiDevice: 0},
		}},
	}}
	require.NoError(t, repo.Save(ctx, snap))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestSettingsRepository_CorruptSnapshot(t *testing.T) {
	s, client := newTestClient(t)
	repo := NewRedisSettingsRepository(client, testPrefix)
	require.NoError(t, s.Set(testPrefix+"inputs:snapshot", "{not json"))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestPluginRepository(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRedisPluginRepository(client, testPrefix)
	ctx := context.Background()

	require.NoError(t, repo.AddPlugin(ctx, domain.PluginDescriptor{Name: "Delay", Group: "Fx", Path: "/vst/delay.so"}))
	require.NoError(t, repo.AddPlugin(ctx, domain.PluginDescriptor{Name: "Amp", Group: "Fx", Path: "/vst/amp.so"}))
	require.NoError(t, repo.AddPlugin(ctx, domain.PluginDescriptor{Name: "Delay II", Group: "Fx", Path: "/vst/delay.so"}))

	plugins, err := repo.ListPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "Delay II", plugins[0].Name)
	assert.Equal(t, "Amp", plugins[1].Name)

	require.NoError(t, repo.RemovePlugin(ctx, "/vst/delay.so"))
	plugins, err = repo.ListPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.PluginDescriptor{{Name: "Amp", Group: "Fx", Path: "/vst/amp.so"}}, plugins)

	require.NoError(t, repo.AddToBlacklist(ctx, "/vst/crash.so"))
	require.NoError(t, repo.AddToBlacklist(ctx, "/vst/bad.so"))
	ok, err := repo.IsBlacklisted(ctx, "/vst/crash.so")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsBlacklisted(ctx, "/vst/amp.so")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := repo.Blacklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/vst/bad.so", "/vst/crash.so"}, list)

	require.NoError(t, repo.ClearPlugins(ctx))
	plugins, err = repo.ListPlugins(ctx)
	require.NoError(t, err)
	assert.Empty(t, plugins)
}
