package delivery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupKV(t *testing.T) (*miniredis.Miniredis, *KVStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewKVStore(client)
}

func TestKVStore_DeliverAndListNewestFirst(t *testing.T) {
	mr, store := setupKV(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := sampleSubmission()
		s.ID = fmt.Sprintf("submission:%d:x", i)
		s.Timestamp = s.Timestamp.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Deliver(ctx, s))
	}

	ids, err := mr.List(IndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"submission:2:x", "submission:1:x", "submission:0:x"}, ids)

	raw, err := mr.Get("submission:0:x")
	require.NoError(t, err)
	assert.Contains(t, raw, `"sourceIp":"203.0.113.9"`)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "submission:2:x", all[0].ID)
	assert.Equal(t, "jane@example.com", all[0].Email)

	two, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "submission:1:x", two[1].ID)
}

func TestKVStore_ListSkipsMissingAndCorruptRecords(t *testing.T) {
	mr, store := setupKV(t)
	ctx := context.Background()

	require.NoError(t, store.Deliver(ctx, sampleSubmission()))
	_, err := mr.Lpush(IndexKey, "submission:gone")
	require.NoError(t, err)
	require.NoError(t, mr.Set("submission:bad", "{not json"))
	_, err = mr.Lpush(IndexKey, "submission:bad")
	require.NoError(t, err)

	got, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sampleSubmission().ID, got[0].ID)
}

func TestKVStore_EmptyList(t *testing.T) {
	_, store := setupKV(t)
	got, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestKVStore_NotConfigured(t *testing.T) {
	store := NewKVStore(nil)
	assert.ErrorIs(t, store.Deliver(context.Background(), sampleSubmission()), ErrConfigurationMissing)
	_, err := store.List(context.Background(), 0)
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestKVStore_Unavailable(t *testing.T) {
	mr, store := setupKV(t)
	mr.Close()

	assert.ErrorIs(t, store.Deliver(context.Background(), sampleSubmission()), ErrStoreUnavailable)
	_, err := store.List(context.Background(), 0)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
