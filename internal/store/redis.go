package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"charger-monitor/reliability/internal/config"
	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/reliability"
)

const (
	AlertsChannel = "chargers:alerts"
	StatusChannel = "chargers:status"

	stateTTL = 24 * time.Hour
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// LiveState is the last ping of a charger as kept in redis.
type LiveState struct {
	ChargerID  string `json:"charger_id" redis:"charger_id"`
	State      string `json:"state" redis:"state"`
	ErrorCode  string `json:"error_code,omitempty" redis:"error_code"`
	Timestamp  int64  `json:"timestamp" redis:"timestamp"`
	ReceivedAt int64  `json:"received_at" redis:"received_at"`
}

func stateKey(chargerID string) string {
	return fmt.Sprintf("charger:%s:state", chargerID)
}

// setStateScript writes the hash only when the stored ping is not newer,
// so the check and the write cannot interleave with another writer.
// KEYS[1] state key. ARGV: timestamp, ttl seconds, channel, payload, then
// field/value pairs.
var setStateScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'timestamp')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5))
redis.call('EXPIRE', KEYS[1], ARGV[2])
redis.call('PUBLISH', ARGV[3], ARGV[4])
return 1
`)

func stateScriptArgs(state LiveState, payload []byte) []any {
	return []any{
		state.Timestamp,
		int64(stateTTL / time.Second),
		StatusChannel,
		payload,
		"charger_id", state.ChargerID,
		"state", state.State,
		"error_code", state.ErrorCode,
		"timestamp", state.Timestamp,
		"received_at", state.ReceivedAt,
	}
}

// PipelineStateUpdate stores the latest state of a charger and announces it
// on the status channel. Older pings never overwrite a newer state.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, obs *domain.Observation) error {
	state := LiveState{
		ChargerID:  obs.ChargerID,
		State:      string(obs.State),
		ErrorCode:  obs.ErrorCode,
		Timestamp:  obs.Timestamp.Unix(),
		ReceivedAt: obs.ReceivedAt.Unix(),
	}
	payload, err := msgpack.Marshal(&state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	keys := []string{stateKey(obs.ChargerID)}
	if err := setStateScript.Run(ctx, r.client, keys, stateScriptArgs(state, payload)...).Err(); err != nil {
		return fmt.Errorf("update state of %s: %w", obs.ChargerID, err)
	}
	return nil
}

// LiveStates reads the cached state of many chargers in one round trip.
// Chargers without a cached state are absent from the result.
func (r *RedisStore) LiveStates(ctx context.Context, chargerIDs []string) (map[string]LiveState, error) {
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(chargerIDs))
	for i, id := range chargerIDs {
		cmds[i] = pipe.HGetAll(ctx, stateKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read live states: %w", err)
	}

	out := make(map[string]LiveState, len(chargerIDs))
	for i, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		var st LiveState
		if err := cmd.Scan(&st); err != nil {
			return nil, fmt.Errorf("scan live state of %s: %w", chargerIDs[i], err)
		}
		out[chargerIDs[i]] = st
	}
	return out, nil
}

// ClaimAlert reports whether this alert may fire. The first claim per
// charger and type wins until ttl expires.
func (r *RedisStore) ClaimAlert(ctx context.Context, chargerID string, alertType domain.AlertType, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("alert:%s:%s", chargerID, string(alertType))
	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim failed: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) PublishAlert(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, AlertsChannel, payload).Err()
}

// SubscribeAlerts returns the alert messages until ctx is done.
func (r *RedisStore) SubscribeAlerts(ctx context.Context) (<-chan []byte, error) {
	sub := r.client.Subscribe(ctx, AlertsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", AlertsChannel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, nil
}

func reportKey(key string) string {
	return "report:" + key
}

// GetReport returns a cached report, or nil when there is none.
func (r *RedisStore) GetReport(ctx context.Context, key string) (*reliability.Report, error) {
	data, err := r.client.Get(ctx, reportKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get report failed: %w", err)
	}
	return DecodeReport(data)
}

func (r *RedisStore) SetReport(ctx context.Context, key string, rep *reliability.Report, ttl time.Duration) error {
	data, err := EncodeReport(rep)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, reportKey(key), data, ttl).Err()
}

func EncodeReport(rep *reliability.Report) ([]byte, error) {
	data, err := msgpack.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

// DecodeReport restores a cached report. msgpack hands times back in the
// local zone, so they are put back in UTC to serialize like a fresh report.
func DecodeReport(data []byte) (*reliability.Report, error) {
	var rep reliability.Report
	if err := msgpack.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	rep.WindowStart = rep.WindowStart.UTC()
	rep.WindowEnd = rep.WindowEnd.UTC()
	for i := range rep.ActiveAlerts {
		rep.ActiveAlerts[i].Start = rep.ActiveAlerts[i].Start.UTC()
	}
	return &rep, nil
}
