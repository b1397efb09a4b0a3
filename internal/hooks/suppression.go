package hooks

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// SuppressionGate wraps another hook set with a blacklist check that runs
// strictly first. A suppressed recipient is denied before the inner
// policy runs, so the check never consumes throttle quota. Lookup errors
// fail closed.
type SuppressionGate struct {
	list   dispatch.SuppressionList
	next   dispatch.HookSet
	logger *slog.Logger
}

func NewSuppressionGate(list dispatch.SuppressionList, next dispatch.HookSet, logger *slog.Logger) *SuppressionGate {
	return &SuppressionGate{
		list:   list,
		next:   next,
		logger: logger.With("component", "SuppressionGate"),
	}
}

func (g *SuppressionGate) ShouldSend(ctx context.Context, msg *notification.Message) dispatch.ShouldSendDecision {
	suppressed, err := g.list.Suppressed(ctx, msg)
	if err != nil {
		g.logger.Error("Suppression lookup failed; denying send", "type", msg.Type, "err", err)
		return dispatch.Deny(dispatch.ReasonStoreUnavailable)
	}
	if suppressed {
		g.logger.Info("Recipient suppressed", "type", msg.Type, "recipient", msg.Recipient.Key())
		return dispatch.Deny(dispatch.ReasonBlacklisted)
	}
	return g.next.ShouldSend(ctx, msg)
}

func (g *SuppressionGate) AfterSend(ctx context.Context, msg *notification.Message) {
	g.next.AfterSend(ctx, msg)
}
