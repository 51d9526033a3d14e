package archive

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "simutrade:sessions"

// RedisRecorder pushes records onto a capped Redis list, newest first.
type RedisRecorder struct {
	client redis.Cmdable
	key    string
	limit  int64
	closer func() error
}

func NewRedisRecorder(client redis.Cmdable, key string, limit int64) *RedisRecorder {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRecorder{client: client, key: key, limit: limit, closer: func() error { return nil }}
}

// DialRedis connects to addr and checks the connection before handing out a
// recorder that owns the client.
func DialRedis(ctx context.Context, addr, password string, db int, key string, limit int64) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to reach redis at %s: %w", addr, err)
	}
	recorder := NewRedisRecorder(client, key, limit)
	recorder.closer = client.Close
	return recorder, nil
}

func (r *RedisRecorder) Record(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("unable to encode record %s: %w", record.SessionId, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, payload)
		if r.limit > 0 {
			pipe.LTrim(ctx, r.key, 0, r.limit-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unable to archive session %s: %w", record.SessionId, err)
	}
	return nil
}

// Recent returns up to n of the newest records.
func (r *RedisRecorder) Recent(ctx context.Context, n int64) ([]Record, error) {
	values, err := r.client.LRange(ctx, r.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(values))
	for _, value := range values {
		var record Record
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, fmt.Errorf("invalid archived record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RedisRecorder) Close() error {
	return r.closer()
}
