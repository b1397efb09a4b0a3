package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// KeyFunc derives the throttle key for a message. The default keys on
// (recipient, type) so one window covers all a recipient's devices.
type KeyFunc func(msg *notification.Message) string

// DefaultKey builds "throttle:<type>:<recipient>" using meta.data.userId
// when present, falling back to the recipient reference.
func DefaultKey(msg *notification.Message) string {
	return fmt.Sprintf("throttle:%s:%s", msg.Type, msg.ThrottleRecipient())
}

// storeTimeout bounds each throttle-store call. On timeout the hook
// resolves to a denial rather than risking double delivery.
const defaultStoreTimeout = 2 * time.Second

// Throttle allows at most one message per recipient+type within the
// window, using a last-sent timestamp with TTL. Store errors fail closed.
type Throttle struct {
	store   dispatch.ThrottleStore
	window  time.Duration
	timeout time.Duration
	keyFn   KeyFunc
	logger  *slog.Logger
}

func NewThrottle(store dispatch.ThrottleStore, window time.Duration, logger *slog.Logger) *Throttle {
	return &Throttle{
		store:   store,
		window:  window,
		timeout: defaultStoreTimeout,
		keyFn:   DefaultKey,
		logger:  logger.With("component", "ThrottleHook"),
	}
}

func (h *Throttle) ShouldSend(ctx context.Context, msg *notification.Message) dispatch.ShouldSendDecision {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	key := h.keyFn(msg)
	last, err := h.store.LastSent(ctx, key)
	if errors.Is(err, dispatch.ErrNotFound) {
		return dispatch.Allow()
	}
	if err != nil {
		h.logger.Error("Throttle store lookup failed; denying send", "key", key, "err", err)
		return dispatch.Deny(dispatch.ReasonStoreUnavailable)
	}

	if time.Since(last) < h.window {
		h.logger.Debug("Message throttled", "key", key, "last_sent", last)
		return dispatch.Deny(dispatch.ReasonThrottled)
	}
	return dispatch.Allow()
}

func (h *Throttle) AfterSend(ctx context.Context, msg *notification.Message) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	key := h.keyFn(msg)
	if err := h.store.MarkSent(ctx, key, time.Now(), h.window); err != nil {
		// Bookkeeping only. The worst case is one extra send next window.
		h.logger.Warn("Failed to record send time", "key", key, "err", err)
	}
}
