package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/retry"
)

var testAt = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func xpEvent() shared.Event {
	return shared.NewXPGainedEvent("learner", testAt, 50, 50, "Lesson completed", "A1-L01")
}

func levelEvent() shared.Event {
	return shared.NewLevelUpEvent("learner", testAt, 1, 2, "Explorer")
}

func newSyncBus() *InMemoryEventBus {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.Logger = logger.Nop()
	return NewInMemoryEventBus(cfg)
}

func TestInMemoryEventBus_SyncOrder(t *testing.T) {
	bus := newSyncBus()
	var got []string

	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		got = append(got, "all:"+string(e.EventType()))
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		got = append(got, "xp")
		return nil
	}))

	require.NoError(t, bus.Publish(xpEvent()))
	require.NoError(t, bus.Publish(levelEvent()))

	assert.Equal(t, []string{
		"xp",
		"all:" + string(shared.EventXPGained),
		"all:" + string(shared.EventLevelUp),
	}, got)
}

func TestInMemoryEventBus_HandlerErrorDoesNotReachPublisher(t *testing.T) {
	bus := newSyncBus()
	calls := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { calls++; return nil }))

	assert.NoError(t, bus.Publish(xpEvent()))
	assert.Equal(t, 1, calls)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, int64(1), snap.HandlerFailures)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	cfg := InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Nop(), EnableMetrics: true}
	bus := NewInMemoryEventBus(cfg)

	var n atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		n.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(xpEvent()))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(10), n.Load(), "Close waits for accepted deliveries")
	assert.Equal(t, int64(10), bus.Metrics().Published(shared.EventXPGained))
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(xpEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_NilArguments(t *testing.T) {
	bus := newSyncBus()
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestInMemoryEventBus_MetricsDisabled(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})
	require.NoError(t, bus.Publish(xpEvent()))
	assert.Nil(t, bus.Metrics())
}

func TestEventBusMetrics_Reset(t *testing.T) {
	m := NewEventBusMetrics()
	m.RecordPublish(shared.EventLevelUp)
	m.RecordHandlerExecution(shared.EventLevelUp, time.Millisecond, true)
	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalPublished)
	assert.Zero(t, snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}

func TestRecoveryMiddleware(t *testing.T) {
	bus := newSyncBus()
	bus.Use(RecoveryMiddleware(logger.Nop()))

	var mu sync.Mutex
	after := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("kaboom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		after = true
		mu.Unlock()
		return nil
	}))

	require.NoError(t, bus.Publish(xpEvent()))
	assert.True(t, after)
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)

	h := RecoveryMiddleware(logger.Nop())(func(shared.Event) error { panic("again") })
	assert.ErrorIs(t, h(xpEvent()), ErrHandlerPanic)
}

func TestRetryMiddleware(t *testing.T) {
	fast := []retry.Option{retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0)}

	calls := 0
	h := RetryMiddleware(fast...)(func(shared.Event) error {
		calls++
		if calls < 3 {
			return errors.New("redis down")
		}
		return nil
	})
	assert.NoError(t, h(xpEvent()))
	assert.Equal(t, 3, calls)

	calls = 0
	perm := errors.New("bad payload")
	h = RetryMiddleware(fast...)(func(shared.Event) error {
		calls++
		return retry.Permanent(perm)
	})
	assert.ErrorIs(t, h(xpEvent()), perm)
	assert.Equal(t, 1, calls)
}

func TestLoggingAndTimeoutMiddleware(t *testing.T) {
	slow := func(shared.Event) error { time.Sleep(50 * time.Millisecond); return nil }
	h := LoggingMiddleware(logger.Nop())(TimeoutMiddleware(5 * time.Millisecond)(slow))
	assert.Error(t, h(xpEvent()))

	quick := TimeoutMiddleware(time.Second)(func(shared.Event) error { return nil })
	assert.NoError(t, quick(levelEvent()))
}
