package hooks_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-dispatch/internal/hooks"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// --- Mocks ---

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LastSent(ctx context.Context, key string) (time.Time, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Time), args.Error(1)
}
func (m *MockStore) MarkSent(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	return m.Called(ctx, key, at, ttl).Error(0)
}
func (m *MockStore) Count(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(int64), args.Error(1)
}

type MockSuppressions struct {
	mock.Mock
}

func (m *MockSuppressions) Suppressed(ctx context.Context, msg *notification.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMessage() *notification.Message {
	return &notification.Message{
		ID:        "msg-1",
		Type:      "TICKET_CREATED",
		Recipient: notification.Recipient{UserID: "u1"},
		Meta:      notification.Meta{Data: map[string]string{"userId": "u1"}},
	}
}

const testKey = "throttle:TICKET_CREATED:u1"

func TestThrottle(t *testing.T) {
	msg := newTestMessage()

	t.Run("First Send Allowed", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewThrottle(store, time.Hour, newTestLogger())
		store.On("LastSent", mock.Anything, testKey).Return(time.Time{}, dispatch.ErrNotFound)

		decision := hook.ShouldSend(context.Background(), msg)

		assert.True(t, decision.ShouldSend)
	})

	t.Run("Within Window Denied", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewThrottle(store, time.Hour, newTestLogger())
		store.On("LastSent", mock.Anything, testKey).Return(time.Now().Add(-10*time.Minute), nil)

		decision := hook.ShouldSend(context.Background(), msg)

		require.False(t, decision.ShouldSend)
		assert.Equal(t, dispatch.ReasonThrottled, decision.Reason)
	})

	t.Run("Window Elapsed Allowed", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewThrottle(store, time.Hour, newTestLogger())
		store.On("LastSent", mock.Anything, testKey).Return(time.Now().Add(-2*time.Hour), nil)

		decision := hook.ShouldSend(context.Background(), msg)

		assert.True(t, decision.ShouldSend)
	})

	t.Run("Store Unavailable Fails Closed", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewThrottle(store, time.Hour, newTestLogger())
		store.On("LastSent", mock.Anything, testKey).Return(time.Time{}, assert.AnError)

		decision := hook.ShouldSend(context.Background(), msg)

		require.False(t, decision.ShouldSend)
		assert.Equal(t, dispatch.ReasonStoreUnavailable, decision.Reason)
	})

	t.Run("AfterSend Records Timestamp With Window TTL", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewThrottle(store, time.Hour, newTestLogger())
		store.On("MarkSent", mock.Anything, testKey, mock.Anything, time.Hour).Return(nil)

		hook.AfterSend(context.Background(), msg)

		store.AssertExpectations(t)
	})
}

func TestCountDedup(t *testing.T) {
	msg := newTestMessage()

	t.Run("Zero Count Allowed", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewCountDedup(store, time.Hour, newTestLogger())
		store.On("Count", mock.Anything, testKey).Return(int64(0), nil)

		assert.True(t, hook.ShouldSend(context.Background(), msg).ShouldSend)
	})

	t.Run("Existing Count Denied", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewCountDedup(store, time.Hour, newTestLogger())
		store.On("Count", mock.Anything, testKey).Return(int64(1), nil)

		decision := hook.ShouldSend(context.Background(), msg)

		require.False(t, decision.ShouldSend)
		assert.Equal(t, dispatch.ReasonThrottled, decision.Reason)
	})

	t.Run("AfterSend Increments With Window TTL", func(t *testing.T) {
		store := new(MockStore)
		hook := hooks.NewCountDedup(store, time.Hour, newTestLogger())
		store.On("Incr", mock.Anything, testKey, time.Hour).Return(int64(1), nil)

		hook.AfterSend(context.Background(), msg)

		store.AssertExpectations(t)
	})
}

func TestSuppressionGate(t *testing.T) {
	msg := newTestMessage()

	t.Run("Suppressed - Denied Before Throttle Store Touched", func(t *testing.T) {
		store := new(MockStore)
		list := new(MockSuppressions)
		inner := hooks.NewThrottle(store, time.Hour, newTestLogger())
		gate := hooks.NewSuppressionGate(list, inner, newTestLogger())

		list.On("Suppressed", mock.Anything, msg).Return(true, nil)

		decision := gate.ShouldSend(context.Background(), msg)

		require.False(t, decision.ShouldSend)
		assert.Equal(t, dispatch.ReasonBlacklisted, decision.Reason)
		store.AssertNotCalled(t, "LastSent", mock.Anything, mock.Anything)
	})

	t.Run("Not Suppressed - Delegates To Inner Policy", func(t *testing.T) {
		store := new(MockStore)
		list := new(MockSuppressions)
		gate := hooks.NewSuppressionGate(list, hooks.NewThrottle(store, time.Hour, newTestLogger()), newTestLogger())

		list.On("Suppressed", mock.Anything, msg).Return(false, nil)
		store.On("LastSent", mock.Anything, testKey).Return(time.Time{}, dispatch.ErrNotFound)

		assert.True(t, gate.ShouldSend(context.Background(), msg).ShouldSend)
		store.AssertExpectations(t)
	})

	t.Run("Lookup Error Fails Closed", func(t *testing.T) {
		store := new(MockStore)
		list := new(MockSuppressions)
		gate := hooks.NewSuppressionGate(list, hooks.NewThrottle(store, time.Hour, newTestLogger()), newTestLogger())

		list.On("Suppressed", mock.Anything, msg).Return(false, assert.AnError)

		decision := gate.ShouldSend(context.Background(), msg)

		require.False(t, decision.ShouldSend)
		assert.Equal(t, dispatch.ReasonStoreUnavailable, decision.Reason)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("Unknown Type Gets Always-Send Default", func(t *testing.T) {
		registry := hooks.NewRegistry()

		set := registry.Resolve("SOME_NEW_TYPE")
		decision := set.ShouldSend(context.Background(), newTestMessage())

		assert.True(t, decision.ShouldSend)
		assert.Empty(t, decision.Reason)
	})

	t.Run("Registered Type Resolves Its Own Set", func(t *testing.T) {
		registry := hooks.NewRegistry()
		store := new(MockStore)
		registry.Register("TICKET_CREATED", hooks.NewThrottle(store, time.Hour, newTestLogger()))
		store.On("LastSent", mock.Anything, testKey).Return(time.Now(), nil)

		decision := registry.Resolve("TICKET_CREATED").ShouldSend(context.Background(), newTestMessage())

		assert.False(t, decision.ShouldSend)
	})
}
