// Package dispatch contains the public contracts of the dispatch engine:
// transport adapters, eligibility hook sets, the throttle store, and the
// outcome types returned to callers.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// ErrNotFound is returned by ThrottleStore lookups when no record exists
// for the key. Hooks treat it as "never sent"; any other error means the
// store is unavailable and hooks must fail closed.
var ErrNotFound = errors.New("throttle store: key not found")

// ReasonCode is a machine-readable explanation for a negative send
// decision, surfaced to callers for observability and user messaging.
type ReasonCode string

const (
	ReasonThrottled        ReasonCode = "THROTTLED"
	ReasonBlacklisted      ReasonCode = "BLACKLISTED"
	ReasonStoreUnavailable ReasonCode = "STORE_UNAVAILABLE"
)

// ShouldSendDecision is the output of the eligibility hook chain.
type ShouldSendDecision struct {
	ShouldSend bool       `json:"shouldSend"`
	Reason     ReasonCode `json:"reason,omitempty"`
}

// Allow is the positive decision.
func Allow() ShouldSendDecision {
	return ShouldSendDecision{ShouldSend: true}
}

// Deny is a negative decision with a reason code.
func Deny(reason ReasonCode) ShouldSendDecision {
	return ShouldSendDecision{ShouldSend: false, Reason: reason}
}

// Adapter is the uniform contract every push provider implements.
// SendAll must process every item even when earlier items fail, return
// one response per input item, and never abort the batch for one bad
// recipient. A non-nil error is reserved for unexpected adapter-level
// failures; the coordinator converts it to an all-failure result.
type Adapter interface {
	Transport() notification.PushTransport
	SendAll(ctx context.Context, items []notification.BatchItem) (notification.DeliveryResult, error)
}

// HookSet is the pluggable policy object governing send-eligibility and
// post-send effects for one message type. ShouldSend must always return a
// definite decision; I/O failures resolve to a denial, never a panic or
// error. AfterSend is fire-and-forget bookkeeping, called only when at
// least one transport attempt was made.
type HookSet interface {
	ShouldSend(ctx context.Context, msg *notification.Message) ShouldSendDecision
	AfterSend(ctx context.Context, msg *notification.Message)
}

// ThrottleStore is the externally consistent keyed store hooks use for
// throttle bookkeeping. Implementations map keys to last-sent timestamps
// or counters with a TTL equal to the throttle window.
type ThrottleStore interface {
	// LastSent returns the recorded send time for the key, or ErrNotFound.
	LastSent(ctx context.Context, key string) (time.Time, error)
	// MarkSent records a send at the given time, expiring after ttl.
	MarkSent(ctx context.Context, key string, at time.Time, ttl time.Duration) error
	// Count returns the current counter value, 0 when the key is absent.
	Count(ctx context.Context, key string) (int64, error)
	// Incr atomically increments the counter, setting ttl on first use.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// SuppressionList answers whether a message's recipient or organization
// is blacklisted for its type. Checked strictly before throttling and
// without consuming throttle quota.
type SuppressionList interface {
	Suppressed(ctx context.Context, msg *notification.Message) (bool, error)
}

// TransportResult pairs one adapter's delivery result with its transport.
type TransportResult struct {
	Transport notification.PushTransport  `json:"transport"`
	Result    notification.DeliveryResult `json:"result"`
}

// Outcome is what Dispatch returns to the caller: the eligibility
// decision, per-transport delivery results, and the token-invalidation
// commands the caller must persist.
type Outcome struct {
	Decision      ShouldSendDecision               `json:"decision"`
	Results       []TransportResult                `json:"results"`
	Invalidations []notification.TokenInvalidation `json:"invalidations"`
}

// SuccessCount sums successes across all transports.
func (o *Outcome) SuccessCount() int {
	total := 0
	for _, r := range o.Results {
		total += r.Result.SuccessCount
	}
	return total
}

// FailureCount sums failures across all transports.
func (o *Outcome) FailureCount() int {
	total := 0
	for _, r := range o.Results {
		total += r.Result.FailureCount
	}
	return total
}
