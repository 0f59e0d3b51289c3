package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charger-monitor/reliability/internal/domain"
)

func TestStateScriptArgsMatchLiveStateFields(t *testing.T) {
	st := LiveState{ChargerID: "CHR-1", State: "FAULTED", ErrorCode: "GROUND_FAULT", Timestamp: 100, ReceivedAt: 101}
	args := stateScriptArgs(st, []byte("x"))

	assert.Equal(t, int64(100), args[0])
	assert.Equal(t, int64(stateTTL/time.Second), args[1])
	assert.Equal(t, StatusChannel, args[2])

	fields := map[string]any{}
	for i := 4; i+1 < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1]
	}
	assert.Equal(t, map[string]any{
		"charger_id":  "CHR-1",
		"state":       "FAULTED",
		"error_code":  "GROUND_FAULT",
		"timestamp":   int64(100),
		"received_at": int64(101),
	}, fields)
}

// REDIS_TEST_ADDR points at a disposable redis; the test is skipped without it.
func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return &RedisStore{client: client}
}

func TestStateUpdateKeepsNewestUnderConcurrentWriters(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	id := fmt.Sprintf("CHR-TEST-%d", time.Now().UnixNano())
	t.Cleanup(func() { rdb.client.Del(ctx, stateKey(id)) })

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obs := &domain.Observation{
				ChargerID:  id,
				Timestamp:  base.Add(time.Duration(i) * time.Minute),
				State:      domain.StateAvailable,
				ReceivedAt: base,
			}
			if i == 49 {
				obs.State = domain.StateFaulted
			}
			assert.NoError(t, rdb.PipelineStateUpdate(ctx, obs))
		}(i)
	}
	wg.Wait()

	// A late, older ping must not win.
	require.NoError(t, rdb.PipelineStateUpdate(ctx, &domain.Observation{
		ChargerID: id, Timestamp: base, State: domain.StateAvailable, ReceivedAt: base.Add(time.Hour),
	}))

	states, err := rdb.LiveStates(ctx, []string{id})
	require.NoError(t, err)
	require.Contains(t, states, id)
	assert.Equal(t, "FAULTED", states[id].State)
	assert.Equal(t, base.Add(49*time.Minute).Unix(), states[id].Timestamp)
}
