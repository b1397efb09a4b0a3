package pipeline

import (
	"log/slog"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// Resolver scans delivery results for stale-token signals and emits
// invalidation commands for the caller to persist. It never alters the
// delivery counts it reads.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger.With("component", "Resolver")}
}

// Resolve matches every token-not-registered response to a registration
// on the VoIP-aware token field. Responses that cannot be matched are
// logged and skipped; the resolver never guesses. At most one command is
// emitted per registration.
func (r *Resolver) Resolve(
	results []dispatch.TransportResult,
	regs []notification.RemoteClientRegistration,
	isVoIP bool,
) []notification.TokenInvalidation {
	field := notification.FieldPushToken
	if isVoIP {
		field = notification.FieldPushTokenVoIP
	}

	// token -> registration, per transport
	byToken := make(map[notification.PushTransport]map[string]*notification.RemoteClientRegistration)
	for i := range regs {
		reg := &regs[i]
		token := reg.Token(field)
		if token == "" {
			continue
		}
		if byToken[reg.Transport] == nil {
			byToken[reg.Transport] = make(map[string]*notification.RemoteClientRegistration)
		}
		byToken[reg.Transport][token] = reg
	}

	var commands []notification.TokenInvalidation
	emitted := make(map[string]struct{})

	for _, tr := range results {
		for _, resp := range tr.Result.Responses {
			if resp.ErrorCode != notification.ErrCodeTokenNotRegistered {
				continue
			}
			if resp.Token == "" {
				r.logger.Warn("Stale-token response carries no token; skipping",
					"transport", string(tr.Transport))
				continue
			}
			reg, ok := byToken[tr.Transport][resp.Token]
			if !ok {
				r.logger.Warn("No registration matches stale token; skipping",
					"transport", string(tr.Transport))
				continue
			}
			if _, done := emitted[reg.ID]; done {
				continue
			}
			emitted[reg.ID] = struct{}{}

			commands = append(commands, notification.TokenInvalidation{
				RegistrationID: reg.ID,
				Field:          field,
				Token:          resp.Token,
				Actor:          notification.InvalidationActor,
			})
		}
	}
	return commands
}
