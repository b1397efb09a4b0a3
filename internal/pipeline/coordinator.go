// Package pipeline contains the dispatch coordinator and the response
// resolver: the fan-out across transport adapters for one message and the
// translation of provider feedback into token-invalidation commands.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-notification-dispatch/internal/hooks"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// Coordinator drives one message through the hook gate, the per-transport
// adapters, and the resolver. It is stateless between calls and safe for
// concurrent use across independent messages.
type Coordinator struct {
	registry     *hooks.Registry
	adapters     map[notification.PushTransport]dispatch.Adapter
	resolver     *Resolver
	voipTypes    map[notification.MessageType]struct{}
	disabledApps map[string]struct{}
	logger       *slog.Logger
}

func NewCoordinator(
	registry *hooks.Registry,
	adapters map[notification.PushTransport]dispatch.Adapter,
	voipTypes []notification.MessageType,
	disabledApps []string,
	logger *slog.Logger,
) *Coordinator {
	voip := make(map[notification.MessageType]struct{}, len(voipTypes))
	for _, t := range voipTypes {
		voip[t] = struct{}{}
	}
	disabled := make(map[string]struct{}, len(disabledApps))
	for _, id := range disabledApps {
		disabled[id] = struct{}{}
	}
	return &Coordinator{
		registry:     registry,
		adapters:     adapters,
		resolver:     NewResolver(logger),
		voipTypes:    voip,
		disabledApps: disabled,
		logger:       logger.With("component", "Coordinator"),
	}
}

// partition keeps one transport's batch together with insertion order
// preserved, so results are deterministic for a given registration list.
type partition struct {
	transport notification.PushTransport
	items     []notification.BatchItem
}

// Dispatch implements the engine's control flow for one message:
// hook gate first, then every transport partition regardless of sibling
// failures, then resolution, then afterSend bookkeeping exactly once.
func (c *Coordinator) Dispatch(
	ctx context.Context,
	msg *notification.Message,
	regs []notification.RemoteClientRegistration,
) (*dispatch.Outcome, error) {
	logger := c.logger.With(
		"message_id", msg.ID,
		"message_type", string(msg.Type),
		"dispatch_id", uuid.NewString(),
	)

	hookSet := c.registry.Resolve(msg.Type)

	decision := hookSet.ShouldSend(ctx, msg)
	if !decision.ShouldSend {
		logger.Info("Message suppressed", "reason", string(decision.Reason))
		return &dispatch.Outcome{Decision: decision}, nil
	}

	isVoIP := c.isVoIP(msg.Type)
	partitions := c.partition(msg, regs, isVoIP, logger)

	outcome := &dispatch.Outcome{Decision: decision}
	attempted := false

	for _, part := range partitions {
		adapter, ok := c.adapters[part.transport]
		if !ok {
			logger.Error("No adapter registered for transport", "transport", string(part.transport))
			outcome.Results = append(outcome.Results, dispatch.TransportResult{
				Transport: part.transport,
				Result:    allFailed(part.items, "no adapter registered"),
			})
			continue
		}

		attempted = true
		result, err := adapter.SendAll(ctx, part.items)
		if err != nil {
			// Adapter-level failure counts every item as failed; sibling
			// transports are still attempted.
			logger.Error("Adapter failed", "transport", string(part.transport), "err", err)
			result = allFailed(part.items, err.Error())
		}
		outcome.Results = append(outcome.Results, dispatch.TransportResult{
			Transport: part.transport,
			Result:    result,
		})
		logger.Info("Transport dispatched",
			"transport", string(part.transport),
			"success", result.SuccessCount,
			"failure", result.FailureCount,
		)
	}

	outcome.Invalidations = c.resolver.Resolve(outcome.Results, regs, isVoIP)

	if attempted {
		hookSet.AfterSend(ctx, msg)
	} else {
		logger.Info("No usable registrations; nothing dispatched")
	}

	return outcome, nil
}

func (c *Coordinator) isVoIP(t notification.MessageType) bool {
	_, ok := c.voipTypes[t]
	return ok
}

// partition groups registrations by transport. Registrations with an
// empty token for the relevant field are skipped, not failed, and so are
// registrations for apps with notifications disabled.
func (c *Coordinator) partition(
	msg *notification.Message,
	regs []notification.RemoteClientRegistration,
	isVoIP bool,
	logger *slog.Logger,
) []partition {
	field := notification.FieldPushToken
	if isVoIP {
		field = notification.FieldPushTokenVoIP
	}

	var parts []partition
	index := make(map[notification.PushTransport]int)

	for _, reg := range regs {
		token := reg.Token(field)
		if token == "" {
			continue
		}
		if _, disabled := c.disabledApps[reg.AppID]; disabled {
			logger.Debug("Skipping registration for disabled app", "app_id", reg.AppID)
			continue
		}

		item := notification.BatchItem{
			Token:        token,
			Title:        msg.Title,
			Body:         msg.Body,
			Data:         msg.Payload,
			Type:         reg.PushType,
			AppID:        reg.AppID,
			VoIP:         isVoIP,
			HighPriority: isVoIP,
		}
		if item.Type == "" {
			item.Type = notification.PushTypeDefault
		}

		i, seen := index[reg.Transport]
		if !seen {
			i = len(parts)
			index[reg.Transport] = i
			parts = append(parts, partition{transport: reg.Transport})
		}
		parts[i].items = append(parts[i].items, item)
	}
	return parts
}

func allFailed(items []notification.BatchItem, reason string) notification.DeliveryResult {
	var result notification.DeliveryResult
	for _, item := range items {
		result.Append(notification.ProviderResponse{
			Token:     item.Token,
			AppID:     item.AppID,
			ErrorCode: notification.ErrCodeTransport,
			Error:     reason,
		})
	}
	return result
}
