package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgdrive/botmanager/internal/kv"
)

func TestKVJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := kv.NewBoltKV(path, "processes")
	require.NoError(t, err)

	j := NewKVJournal(store)
	started := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(Process{BotID: "b1", PID: 101, RunID: "r1", StartedAt: started}))
	require.NoError(t, j.Record(Process{BotID: "b2", PID: 102, RunID: "r2", StartedAt: started}))
	require.NoError(t, j.Forget("b2"))
	require.NoError(t, store.Close())

	store, err = kv.NewBoltKV(path, "processes")
	require.NoError(t, err)
	defer store.Close()

	entries, err := NewKVJournal(store).Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b1", entries[0].BotID)
	assert.Equal(t, 101, entries[0].PID)
	assert.Equal(t, "r1", entries[0].RunID)
	assert.True(t, started.Equal(entries[0].StartedAt))
}

func TestLaunchConfigFromEnv(t *testing.T) {
	want := LaunchConfig{
		BotID:         "b1",
		HomeserverURL: "http://h:8008",
		AccountID:     "@b1:h",
		AccountSecret: "pw",
		UpstreamURL:   "http://f:3000/api/x",
		RunID:         "run-1",
	}
	env := map[string]string{}
	for _, kv := range want.Env() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	got, err := LaunchConfigFromEnv(lookup)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	delete(env, EnvPassword)
	delete(env, EnvUpstream)
	_, err = LaunchConfigFromEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPassword)
	assert.Contains(t, err.Error(), EnvUpstream)
}
