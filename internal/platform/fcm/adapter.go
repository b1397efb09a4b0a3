// Package fcm implements the Firebase Cloud Messaging transport adapter.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// Adapter routes batch items to per-app Firebase clients. Devices are
// registered against a specific Firebase project, so each appId must be
// sent through its own app; unknown appIds fall back to the default app.
type Adapter struct {
	clients      map[string]MessagingClient
	defaultAppID string
	logger       *slog.Logger
}

// NewAdapter fails fast when no client is configured for the default app:
// that is a startup configuration error, not a per-message condition.
func NewAdapter(clients map[string]MessagingClient, defaultAppID string, logger *slog.Logger) (*Adapter, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("fcm: no messaging clients configured")
	}
	if defaultAppID == "" {
		return nil, fmt.Errorf("fcm: default app id is required")
	}
	if _, ok := clients[defaultAppID]; !ok {
		return nil, fmt.Errorf("fcm: no client configured for default app %q", defaultAppID)
	}
	return &Adapter{
		clients:      clients,
		defaultAppID: defaultAppID,
		logger:       logger.With("component", "FCMAdapter"),
	}, nil
}

func (a *Adapter) Transport() notification.PushTransport {
	return notification.TransportFirebase
}

// SendAll groups items by appId, sends each group through its app's
// client, and classifies every response. One entry per input item is
// guaranteed even when a whole group's request fails.
func (a *Adapter) SendAll(ctx context.Context, items []notification.BatchItem) (notification.DeliveryResult, error) {
	var result notification.DeliveryResult

	groups, order := a.groupByApp(items, &result)

	for _, appID := range order {
		group := groups[appID]
		client, ok := a.clients[appID]
		if !ok {
			client = a.clients[a.defaultAppID]
			a.logger.Warn("No client for appId, using default app", "app_id", appID)
		}

		msgs := make([]*messaging.Message, len(group))
		for i, item := range group {
			msgs[i] = buildMessage(item)
		}

		br, err := client.SendEach(ctx, msgs)
		if err != nil {
			// Whole-batch transport failure: one failure entry per item.
			a.logger.Error("FCM batch send failed", "app_id", appID, "count", len(group), "err", err)
			for _, item := range group {
				result.Append(notification.ProviderResponse{
					Token:     item.Token,
					AppID:     appID,
					ErrorCode: notification.ErrCodeTransport,
					Error:     err.Error(),
				})
			}
			continue
		}

		for i, resp := range br.Responses {
			pr := notification.ProviderResponse{
				Token: group[i].Token,
				AppID: appID,
			}
			if resp.Success {
				pr.Success = true
				pr.MessageID = resp.MessageID
			} else {
				pr.Error = resp.Error.Error()
				if messaging.IsRegistrationTokenNotRegistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
					pr.ErrorCode = notification.ErrCodeTokenNotRegistered
				}
			}
			result.Append(pr)
		}
	}

	return result, nil
}

// groupByApp partitions real items per appId, preserving first-seen app
// order for deterministic results. Fake tokens are resolved immediately.
func (a *Adapter) groupByApp(items []notification.BatchItem, result *notification.DeliveryResult) (map[string][]notification.BatchItem, []string) {
	groups := make(map[string][]notification.BatchItem)
	var order []string

	for _, item := range items {
		if notification.IsFakeToken(item.Token) {
			result.Append(fakeResponse(item))
			continue
		}
		appID := item.AppID
		if appID == "" {
			appID = a.defaultAppID
		}
		if _, seen := groups[appID]; !seen {
			order = append(order, appID)
		}
		groups[appID] = append(groups[appID], item)
	}
	return groups, order
}

func buildMessage(item notification.BatchItem) *messaging.Message {
	msg := &messaging.Message{Token: item.Token}

	if item.Type == notification.PushTypeSilentData {
		// Silent pushes carry everything as data; the client renders it.
		data := make(map[string]string, len(item.Data)+2)
		for k, v := range item.Data {
			data[k] = v
		}
		data["_title"] = item.Title
		data["_body"] = item.Body
		msg.Data = data
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{"apns-push-type": "background"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{MutableContent: true, ContentAvailable: true},
			},
		}
	} else {
		msg.Data = item.Data
		msg.Notification = &messaging.Notification{
			Title: item.Title,
			Body:  item.Body,
		}
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{MutableContent: true, Sound: "default"},
			},
		}
	}

	if item.HighPriority {
		msg.Android = &messaging.AndroidConfig{Priority: "high"}
	}
	return msg
}

func fakeResponse(item notification.BatchItem) notification.ProviderResponse {
	if notification.IsFakeSuccessToken(item.Token) {
		return notification.ProviderResponse{
			Success:   true,
			MessageID: "fake-success-message",
			Token:     item.Token,
			AppID:     item.AppID,
		}
	}
	return notification.ProviderResponse{
		Token: item.Token,
		AppID: item.AppID,
		Error: "fake error message",
	}
}
