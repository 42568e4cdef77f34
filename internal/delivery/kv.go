package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/domain"
)

// IndexKey is the Redis list holding submission ids, newest at the head.
const IndexKey = "submissions"

// KVStore persists submissions in Redis: one string key per submission
// (the id) holding its JSON, plus an LPUSH onto IndexKey.
type KVStore struct {
	client redis.Cmdable
}

// NewKVStore returns a store over client. A nil client yields a store that
// reports ErrConfigurationMissing.
func NewKVStore(client redis.Cmdable) *KVStore {
	return &KVStore{client: client}
}

func (k *KVStore) Name() string { return config.BackendKV }
func (k *KVStore) Kind() Kind   { return KindStore }

// Deliver writes the record and appends its id in one MULTI/EXEC so the
// index never references a missing record. LPUSH is additive, so
// concurrent submissions never overwrite each other's index entries.
func (k *KVStore) Deliver(ctx context.Context, s domain.Submission) error {
	if k.client == nil {
		return fmt.Errorf("%w: REDIS_URL is not set", ErrConfigurationMissing)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := k.client.TxPipeline()
	pipe.Set(ctx, s.ID, data, 0)
	pipe.LPush(ctx, IndexKey, s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: kv write: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// List implements Lister. Ids whose record is missing or unreadable are
// skipped.
func (k *KVStore) List(ctx context.Context, limit int) ([]domain.Submission, error) {
	if k.client == nil {
		return nil, fmt.Errorf("%w: REDIS_URL is not set", ErrConfigurationMissing)
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := k.client.LRange(ctx, IndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: kv index: %w", ErrStoreUnavailable, err)
	}
	out := make([]domain.Submission, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	vals, err := k.client.MGet(ctx, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: kv read: %w", ErrStoreUnavailable, err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s domain.Submission
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			log.Warn().Err(err).Str("id", ids[i]).Msg("kv: skipping unreadable submission")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
