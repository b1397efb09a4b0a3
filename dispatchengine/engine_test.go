package dispatchengine_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-dispatch/dispatchengine"
	"github.com/tinywideclouds/go-notification-dispatch/dispatchengine/config"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// memoryStore is an in-memory dispatch.ThrottleStore for end-to-end tests.
type memoryStore struct {
	mu       sync.Mutex
	times    map[string]time.Time
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{times: make(map[string]time.Time), counters: make(map[string]int64)}
}

func (s *memoryStore) LastSent(_ context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.times[key]
	if !ok {
		return time.Time{}, dispatch.ErrNotFound
	}
	return at, nil
}

func (s *memoryStore) MarkSent(_ context.Context, key string, at time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[key] = at
	return nil
}

func (s *memoryStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *memoryStore) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// stubAdapter succeeds for every item and records how often it was called.
type stubAdapter struct {
	transport notification.PushTransport
	calls     int
}

func (a *stubAdapter) Transport() notification.PushTransport { return a.transport }

func (a *stubAdapter) SendAll(_ context.Context, items []notification.BatchItem) (notification.DeliveryResult, error) {
	a.calls++
	var result notification.DeliveryResult
	for _, item := range items {
		result.Append(notification.ProviderResponse{Success: true, Token: item.Token})
	}
	return result, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func throttledConfig() *config.Config {
	return &config.Config{
		Throttle: config.ThrottleConfig{
			Types: map[string]config.TypePolicy{
				"TICKET_CREATED": {Window: time.Hour, Strategy: config.StrategyTimestamp},
			},
		},
	}
}

func TestNew(t *testing.T) {
	adapters := map[notification.PushTransport]dispatch.Adapter{
		notification.TransportFirebase: &stubAdapter{transport: notification.TransportFirebase},
	}

	t.Run("Requires At Least One Adapter", func(t *testing.T) {
		_, err := dispatchengine.New(&config.Config{}, nil, nil, nil, nil, newTestLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "adapter")
	})

	t.Run("Requires Store When Throttle Types Configured", func(t *testing.T) {
		_, err := dispatchengine.New(throttledConfig(), nil, nil, adapters, nil, newTestLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttle store")
	})

	t.Run("Succeeds Without Store When Nothing Is Throttled", func(t *testing.T) {
		engine, err := dispatchengine.New(&config.Config{}, nil, nil, adapters, nil, newTestLogger())
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})
}

func TestEngine_Dispatch(t *testing.T) {
	msg := &notification.Message{
		ID:        "msg-1",
		Type:      "TICKET_CREATED",
		Recipient: notification.Recipient{UserID: "u1"},
		Title:     "Ticket created",
		Body:      "Your ticket was created",
	}
	regs := []notification.RemoteClientRegistration{
		{ID: "r1", Transport: notification.TransportFirebase, PushToken: "tok-1"},
	}

	t.Run("Second Send Within Window Is Throttled", func(t *testing.T) {
		adapter := &stubAdapter{transport: notification.TransportFirebase}
		engine, err := dispatchengine.New(throttledConfig(), newMemoryStore(), nil,
			map[notification.PushTransport]dispatch.Adapter{notification.TransportFirebase: adapter},
			nil, newTestLogger())
		require.NoError(t, err)

		first, err := engine.Dispatch(context.Background(), msg, regs)
		require.NoError(t, err)
		require.True(t, first.Decision.ShouldSend)
		assert.Equal(t, 1, first.SuccessCount())

		second, err := engine.Dispatch(context.Background(), msg, regs)
		require.NoError(t, err)
		assert.False(t, second.Decision.ShouldSend)
		assert.Equal(t, dispatch.ReasonThrottled, second.Decision.Reason)
		assert.Equal(t, 1, adapter.calls)
	})

	t.Run("Counter Strategy Dedupes The Same Way", func(t *testing.T) {
		cfg := &config.Config{
			Throttle: config.ThrottleConfig{
				Types: map[string]config.TypePolicy{
					"TICKET_CREATED": {Window: time.Hour, Strategy: config.StrategyCounter},
				},
			},
		}
		adapter := &stubAdapter{transport: notification.TransportFirebase}
		engine, err := dispatchengine.New(cfg, newMemoryStore(), nil,
			map[notification.PushTransport]dispatch.Adapter{notification.TransportFirebase: adapter},
			nil, newTestLogger())
		require.NoError(t, err)

		first, err := engine.Dispatch(context.Background(), msg, regs)
		require.NoError(t, err)
		require.True(t, first.Decision.ShouldSend)

		second, err := engine.Dispatch(context.Background(), msg, regs)
		require.NoError(t, err)
		assert.Equal(t, dispatch.ReasonThrottled, second.Decision.Reason)
	})

	t.Run("Unthrottled Type Always Sends", func(t *testing.T) {
		adapter := &stubAdapter{transport: notification.TransportFirebase}
		engine, err := dispatchengine.New(throttledConfig(), newMemoryStore(), nil,
			map[notification.PushTransport]dispatch.Adapter{notification.TransportFirebase: adapter},
			nil, newTestLogger())
		require.NoError(t, err)

		other := *msg
		other.Type = "PASSWORD_RESET"

		for i := 0; i < 3; i++ {
			outcome, err := engine.Dispatch(context.Background(), &other, regs)
			require.NoError(t, err)
			assert.True(t, outcome.Decision.ShouldSend)
		}
		assert.Equal(t, 3, adapter.calls)
	})

	t.Run("Custom Hook Set Overrides Built-In Policy", func(t *testing.T) {
		adapter := &stubAdapter{transport: notification.TransportFirebase}
		custom := map[notification.MessageType]dispatch.HookSet{
			"TICKET_CREATED": denyAll{},
		}
		engine, err := dispatchengine.New(throttledConfig(), newMemoryStore(), nil,
			map[notification.PushTransport]dispatch.Adapter{notification.TransportFirebase: adapter},
			custom, newTestLogger())
		require.NoError(t, err)

		outcome, err := engine.Dispatch(context.Background(), msg, regs)
		require.NoError(t, err)
		assert.False(t, outcome.Decision.ShouldSend)
		assert.Zero(t, adapter.calls)
	})

	t.Run("Cancelled Context Returns Error", func(t *testing.T) {
		adapter := &stubAdapter{transport: notification.TransportFirebase}
		engine, err := dispatchengine.New(&config.Config{}, nil, nil,
			map[notification.PushTransport]dispatch.Adapter{notification.TransportFirebase: adapter},
			nil, newTestLogger())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = engine.Dispatch(ctx, msg, regs)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type denyAll struct{}

func (denyAll) ShouldSend(context.Context, *notification.Message) dispatch.ShouldSendDecision {
	return dispatch.Deny(dispatch.ReasonBlacklisted)
}

func (denyAll) AfterSend(context.Context, *notification.Message) {}
