package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/store/toolcache/redis"
)

type fakeClient struct {
	data map[string]string
}

func newFakeClient() *fakeClient { return &fakeClient{data: make(map[string]string)} }

func (f *fakeClient) Get(_ context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(context.Background())
	if v, ok := f.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(goredis.Nil)
	}
	return cmd
}

func (f *fakeClient) Set(_ context.Context, key string, value any, _ time.Duration) *goredis.StatusCmd {
	f.data[key] = value.(string)
	cmd := goredis.NewStatusCmd(context.Background())
	cmd.SetVal("OK")
	return cmd
}

func TestGet_MissingKeyReturnsFalseNoError(t *testing.T) {
	t.Parallel()

	store, err := redis.New(newFakeClient(), redis.Options{})
	require.NoError(t, err)

	_, found, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutThenGet_RoundTripsNamespacedValue(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	store, err := redis.New(client, redis.Options{Prefix: "req-1"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tool-key", "result text"))
	assert.Contains(t, client.data, "req-1:tool-key")

	value, found, err := store.Get(ctx, "tool-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "result text", value)
}

func TestNew_NilClientReturnsError(t *testing.T) {
	t.Parallel()

	_, err := redis.New(nil, redis.Options{})
	assert.Error(t, err)
}
