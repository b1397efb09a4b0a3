// Package dispatchengine assembles the notification dispatch engine:
// eligibility hooks, transport adapters, the dispatch coordinator, and
// the response resolver, wired from an injected configuration.
package dispatchengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-notification-dispatch/dispatchengine/config"
	"github.com/tinywideclouds/go-notification-dispatch/internal/hooks"
	"github.com/tinywideclouds/go-notification-dispatch/internal/pipeline"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// Engine is the library entry point. It is stateless between calls
// except for the throttle store and safe for concurrent use across
// independent messages.
type Engine struct {
	coordinator *pipeline.Coordinator
	logger      *slog.Logger
}

// New assembles the engine.
//
// The throttle store backs the built-in throttle/dedup hook sets and is
// required when cfg.Throttle.Types is non-empty. A nil suppressions list
// disables the blacklist gate. Custom hook sets own eligibility for their
// message types and replace any built-in policy configured for the same
// type.
func New(
	cfg *config.Config,
	store dispatch.ThrottleStore,
	suppressions dispatch.SuppressionList,
	adapters map[notification.PushTransport]dispatch.Adapter,
	custom map[notification.MessageType]dispatch.HookSet,
	logger *slog.Logger,
) (*Engine, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("dispatchengine: at least one transport adapter is required")
	}
	if len(cfg.Throttle.Types) > 0 && store == nil {
		return nil, fmt.Errorf("dispatchengine: throttle policies configured but no throttle store provided")
	}

	registry := hooks.NewRegistry()

	for name, policy := range cfg.Throttle.Types {
		var set dispatch.HookSet
		switch policy.Strategy {
		case config.StrategyCounter:
			set = hooks.NewCountDedup(store, policy.Window, logger)
		default:
			set = hooks.NewThrottle(store, policy.Window, logger)
		}
		if suppressions != nil {
			set = hooks.NewSuppressionGate(suppressions, set, logger)
		}
		registry.Register(notification.MessageType(name), set)
	}

	for t, set := range custom {
		if suppressions != nil {
			set = hooks.NewSuppressionGate(suppressions, set, logger)
		}
		registry.Register(t, set)
	}

	voipTypes := make([]notification.MessageType, len(cfg.VoIPTypes))
	for i, t := range cfg.VoIPTypes {
		voipTypes[i] = notification.MessageType(t)
	}

	return &Engine{
		coordinator: pipeline.NewCoordinator(registry, adapters, voipTypes, cfg.DisabledApps, logger),
		logger:      logger.With("component", "DispatchEngine"),
	}, nil
}

// Dispatch runs one message through the full engine control flow and
// returns the decision, per-transport results, and invalidation commands.
// The error return is reserved for context cancellation surfaced by the
// caller's ctx; per-recipient delivery failures are data, not errors.
func (e *Engine) Dispatch(
	ctx context.Context,
	msg *notification.Message,
	regs []notification.RemoteClientRegistration,
) (*dispatch.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.coordinator.Dispatch(ctx, msg, regs)
}
