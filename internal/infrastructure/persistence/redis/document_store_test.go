package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document/documenttest"
)

// newTestClient connects with a unique key prefix so runs never collide.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("ZAPTALK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ZAPTALK_TEST_REDIS_ADDR not set")
	}
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "zaptalk-test:" + uuid.NewString() + ":"

	c, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := c.Redis().Keys(ctx, cfg.KeyPrefix+"*").Result()
		if len(keys) > 0 {
			_ = c.Redis().Del(ctx, keys...).Err()
		}
		_ = c.Close()
	})
	return c
}

func TestDocumentStore(t *testing.T) {
	documenttest.Run(t, func(t *testing.T) document.Store {
		return NewDocumentStore(newTestClient(t))
	})
}

func TestEventForwarder(t *testing.T) {
	c := newTestClient(t)
	f, err := NewEventForwarder(c, "events")
	require.NoError(t, err)

	ctx := context.Background()
	sub := c.Redis().Subscribe(ctx, f.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.Handle(shared.NewXPGainedEvent("learner", at, 95, 95, "Lesson completed", "A1-L01")))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env shared.EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, shared.EventXPGained, env.Type)
	assert.Equal(t, "learner", env.AggregateID)
}

func TestClient_Key(t *testing.T) {
	c := &Client{prefix: "zaptalk:"}

	key, err := c.Key("doc", "progression", "u1")
	require.NoError(t, err)
	assert.Equal(t, "zaptalk:doc:progression:u1", key)

	_, err = c.Key("doc", " ")
	assert.ErrorIs(t, err, ErrKeyEmpty)
}
