package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-contact-intake/internal/config"
)

func TestRegistry_SelectAndStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	reg := NewRegistry(config.Config{}, nil, rdb)

	got, err := reg.Select(config.BackendKV, config.BackendResend)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, config.BackendKV, got[0].Name())
	assert.Equal(t, KindMail, got[1].Kind())

	_, err = reg.Select("carrier-pigeon")
	assert.ErrorContains(t, err, "carrier-pigeon")

	kv, err := reg.Store(config.BackendKV)
	require.NoError(t, err)
	require.NoError(t, kv.Deliver(context.Background(), sampleSubmission()))
	subs, err := kv.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = reg.Store(config.BackendSMTP)
	assert.ErrorContains(t, err, "cannot be listed")
}

func TestRegistry_UnconfiguredStores(t *testing.T) {
	reg := NewRegistry(config.Config{}, nil, nil)

	for _, name := range []string{config.BackendKV, config.BackendDB} {
		s, err := reg.Store(name)
		require.NoError(t, err)
		err = s.Deliver(context.Background(), sampleSubmission())
		assert.True(t, errors.Is(err, ErrConfigurationMissing), "%s: %v", name, err)
	}

	// Memory is always available and shared between lookups.
	m1, _ := reg.Store(config.BackendMemory)
	m2, _ := reg.Store(config.BackendMemory)
	require.NoError(t, m1.Deliver(context.Background(), sampleSubmission()))
	subs, _ := m2.List(context.Background(), 0)
	assert.Len(t, subs, 1)
}
