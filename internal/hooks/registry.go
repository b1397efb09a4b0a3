// Package hooks implements the eligibility hook chain: a read-only
// registry mapping message types to hook sets, plus the built-in
// throttling, count-deduplication, and suppression policies.
package hooks

import (
	"context"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// Registry resolves a message type to its hook set. It is built once at
// startup and treated as read-only afterwards; Resolve is safe for
// concurrent use.
type Registry struct {
	sets map[notification.MessageType]dispatch.HookSet
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[notification.MessageType]dispatch.HookSet)}
}

// Register binds a hook set to a message type. Each type owns exactly one
// set; a second Register for the same type replaces the first.
func (r *Registry) Register(t notification.MessageType, set dispatch.HookSet) {
	r.sets[t] = set
}

// Resolve returns the hook set for the type, or the always-send default
// for unknown types.
func (r *Registry) Resolve(t notification.MessageType) dispatch.HookSet {
	if set, ok := r.sets[t]; ok {
		return set
	}
	return alwaysSend{}
}

// alwaysSend is the default hook set for unregistered message types.
type alwaysSend struct{}

func (alwaysSend) ShouldSend(context.Context, *notification.Message) dispatch.ShouldSendDecision {
	return dispatch.Allow()
}

func (alwaysSend) AfterSend(context.Context, *notification.Message) {}
