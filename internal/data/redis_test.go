package data

import (
	"context"
	"testing"
	"time"

	"PuckRelay/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_Success(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	c := &conf.Data{
		Redis: &conf.DataRedis{
			Addr:         mr.Addr(),
			Password:     "s3cret",
			ReadTimeout:  200 * time.Millisecond,
			WriteTimeout: 200 * time.Millisecond,
		},
	}

	client, cleanup, err := NewRedisClient(c, newTestLogger())
	require.NoError(t, err)
	require.NotNil(t, client)
	defer cleanup()

	assert.NoError(t, client.Ping(context.Background()).Err())
	assert.Equal(t, "tcp", client.Options().Network)
}

func TestNewRedisClient_ConnectionFailure(t *testing.T) {
	c := &conf.Data{
		Redis: &conf.DataRedis{
			Addr:        "127.0.0.1:1", // nothing listens here
			ReadTimeout: 100 * time.Millisecond,
		},
	}

	// graceful degradation: no error, nil client
	client, cleanup, err := NewRedisClient(c, newTestLogger())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.NotPanics(t, cleanup)
}

func TestNewRedisClient_NotConfigured(t *testing.T) {
	for _, c := range []*conf.Data{nil, {}, {Redis: &conf.DataRedis{}}} {
		client, cleanup, err := NewRedisClient(c, newTestLogger())
		require.NoError(t, err)
		assert.Nil(t, client)
		cleanup()
	}
}
