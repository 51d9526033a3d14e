package archive

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// memoryRedis keeps lists in memory and applies a transaction only after
// the whole pipeline was queued.
type memoryRedis struct {
	redis.Cmdable
	lists map[string][]string
	txs   int
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{lists: make(map[string][]string)}
}

func (m *memoryRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &memoryPipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	m.txs++
	for _, op := range pipe.ops {
		op(m.lists)
	}
	return nil, nil
}

func (m *memoryRedis) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	list := m.lists[key]
	if stop < 0 || stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		return redis.NewStringSliceResult(nil, nil)
	}
	return redis.NewStringSliceResult(append([]string(nil), list[start:stop+1]...), nil)
}

type memoryPipe struct {
	redis.Pipeliner
	ops []func(map[string][]string)
}

func (p *memoryPipe) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	p.ops = append(p.ops, func(lists map[string][]string) {
		for _, value := range values {
			var s string
			switch v := value.(type) {
			case []byte:
				s = string(v)
			default:
				s = fmt.Sprint(v)
			}
			lists[key] = append([]string{s}, lists[key]...)
		}
	})
	return redis.NewIntCmd(ctx)
}

func (p *memoryPipe) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	p.ops = append(p.ops, func(lists map[string][]string) {
		list := lists[key]
		if stop+1 < int64(len(list)) {
			list = list[:stop+1]
		}
		lists[key] = list[min(start, int64(len(list))):]
	})
	return redis.NewStatusCmd(ctx)
}

func TestRedisRecorder_CappedList(t *testing.T) {
	tests := []struct {
		name   string
		limit  int64
		stored []string
	}{
		{"trimmed to limit", 3, []string{"s5", "s4", "s3"}},
		{"unlimited", 0, []string{"s5", "s4", "s3", "s2", "s1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newMemoryRedis()
			recorder := NewRedisRecorder(store, "test:sessions", tt.limit)

			for i := 1; i <= 5; i++ {
				require.NoError(t, recorder.Record(ctx, createTestRecord(fmt.Sprintf("s%d", i))))
			}
			assert.Equal(t, 5, store.txs)
			assert.Len(t, store.lists["test:sessions"], len(tt.stored))

			records, err := recorder.Recent(ctx, 10)
			require.NoError(t, err)
			ids := make([]string, 0, len(records))
			for _, record := range records {
				ids = append(ids, record.SessionId)
			}
			assert.Equal(t, tt.stored, ids)
			assert.True(t, records[0].FinalEquity.Eq(fixed.MustParse("10210.5")))

			newest, err := recorder.Recent(ctx, 1)
			require.NoError(t, err)
			require.Len(t, newest, 1)
			assert.Equal(t, "s5", newest[0].SessionId)
		})
	}
}

func TestRedisRecorder_RecentInvalidRecord(t *testing.T) {
	store := newMemoryRedis()
	store.lists[DefaultRedisKey] = []string{"not json"}

	_, err := NewRedisRecorder(store, "", 0).Recent(context.Background(), 5)
	assert.Error(t, err)
}

// TestRedisRecorder_Server runs against a real server when
// SIMUTRADE_TEST_REDIS holds its address.
func TestRedisRecorder_Server(t *testing.T) {
	addr := os.Getenv("SIMUTRADE_TEST_REDIS")
	if addr == "" {
		t.Skip("SIMUTRADE_TEST_REDIS not set")
	}
	ctx := context.Background()
	key := "simutrade:test:" + t.Name()

	recorder, err := DialRedis(ctx, addr, "", 0, key, 2)
	require.NoError(t, err)
	defer recorder.Close()
	require.NoError(t, recorder.client.Del(ctx, key).Err())
	defer recorder.client.Del(ctx, key)

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, recorder.Record(ctx, createTestRecord(id)))
	}

	length, err := recorder.client.LLen(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	records, err := recorder.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s3", records[0].SessionId)
	assert.Equal(t, "s2", records[1].SessionId)
}
