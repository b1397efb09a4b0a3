package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// CountDedup is the counter-based variant of the one-per-window
// guarantee: a send is allowed only while the window's counter is zero,
// and AfterSend increments it atomically. Functionally equivalent to
// Throttle; some message types historically count sent messages instead
// of recording a timestamp.
type CountDedup struct {
	store   dispatch.ThrottleStore
	window  time.Duration
	timeout time.Duration
	keyFn   KeyFunc
	logger  *slog.Logger
}

func NewCountDedup(store dispatch.ThrottleStore, window time.Duration, logger *slog.Logger) *CountDedup {
	return &CountDedup{
		store:   store,
		window:  window,
		timeout: defaultStoreTimeout,
		keyFn:   DefaultKey,
		logger:  logger.With("component", "CountDedupHook"),
	}
}

func (h *CountDedup) ShouldSend(ctx context.Context, msg *notification.Message) dispatch.ShouldSendDecision {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	key := h.keyFn(msg)
	count, err := h.store.Count(ctx, key)
	if err != nil {
		h.logger.Error("Throttle store count failed; denying send", "key", key, "err", err)
		return dispatch.Deny(dispatch.ReasonStoreUnavailable)
	}
	if count > 0 {
		h.logger.Debug("Message deduplicated", "key", key, "count", count)
		return dispatch.Deny(dispatch.ReasonThrottled)
	}
	return dispatch.Allow()
}

func (h *CountDedup) AfterSend(ctx context.Context, msg *notification.Message) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	key := h.keyFn(msg)
	if _, err := h.store.Incr(ctx, key, h.window); err != nil {
		h.logger.Warn("Failed to increment send counter", "key", key, "err", err)
	}
}
