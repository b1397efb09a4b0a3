// Package apns implements the Apple Push Notification Service transport
// adapter, including VoIP pushes routed via the .voip topic suffix.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file.
	P8KeyContent string
}

type Adapter struct {
	client APNSClient
	topic  string // The app bundle ID (e.g. com.tinywide.resident)
	logger *slog.Logger
}

// NewAdapter parses the P8 key immediately to fail fast on startup if
// credentials are bad.
func NewAdapter(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.KeyID == "" || cfg.TeamID == "" || cfg.BundleID == "" || cfg.P8KeyContent == "" {
		return nil, fmt.Errorf("apns: key_id, team_id, bundle_id and p8 key are all required")
	}

	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("apns: failed to parse P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}).Production()

	return &Adapter{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSAdapter"),
	}, nil
}

func (a *Adapter) Transport() notification.PushTransport {
	return notification.TransportApple
}

// SendAll sends one request per token. The APNs HTTP/2 API is unary;
// items are processed sequentially and a failing item never stops the
// rest of the batch.
func (a *Adapter) SendAll(ctx context.Context, items []notification.BatchItem) (notification.DeliveryResult, error) {
	var result notification.DeliveryResult

	for _, item := range items {
		if notification.IsFakeToken(item.Token) {
			result.Append(fakeResponse(item))
			continue
		}

		n := &apns2.Notification{
			DeviceToken: item.Token,
			Topic:       a.topic,
			Payload:     buildPayload(item),
			PushType:    apns2.PushTypeAlert,
		}
		switch {
		case item.VoIP:
			n.Topic = a.topic + ".voip"
			n.PushType = apns2.PushTypeVOIP
		case item.Type == notification.PushTypeSilentData:
			n.PushType = apns2.PushTypeBackground
		}

		res, err := a.client.PushWithContext(ctx, n)
		if err != nil {
			a.logger.Error("APNs transport failed", "token", item.Token, "err", err)
			result.Append(notification.ProviderResponse{
				Token:     item.Token,
				AppID:     item.AppID,
				ErrorCode: notification.ErrCodeTransport,
				Error:     err.Error(),
			})
			continue
		}

		pr := notification.ProviderResponse{
			Token:      item.Token,
			AppID:      item.AppID,
			StatusCode: res.StatusCode,
		}
		if res.Sent() {
			pr.Success = true
			pr.MessageID = res.ApnsID
		} else {
			pr.Error = res.Reason
			switch res.Reason {
			case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
				pr.ErrorCode = notification.ErrCodeTokenNotRegistered
			default:
				// The token may be fine while our configuration is wrong
				// (TopicDisallowed, PayloadEmpty); do not flag it stale.
				a.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
			}
		}
		result.Append(pr)
	}

	return result, nil
}

func buildPayload(item notification.BatchItem) *payload.Payload {
	if item.Type == notification.PushTypeSilentData {
		builder := payload.NewPayload().ContentAvailable().MutableContent()
		for k, v := range item.Data {
			builder.Custom(k, v)
		}
		builder.Custom("_title", item.Title)
		builder.Custom("_body", item.Body)
		return builder
	}

	builder := payload.NewPayload().
		AlertTitle(item.Title).
		AlertBody(item.Body).
		MutableContent().
		Sound("default")
	for k, v := range item.Data {
		builder.Custom(k, v)
	}
	return builder
}

func fakeResponse(item notification.BatchItem) notification.ProviderResponse {
	if notification.IsFakeSuccessToken(item.Token) {
		return notification.ProviderResponse{
			Success:    true,
			MessageID:  "fake-success-message",
			Token:      item.Token,
			AppID:      item.AppID,
			StatusCode: 200,
		}
	}
	return notification.ProviderResponse{
		Token:      item.Token,
		AppID:      item.AppID,
		StatusCode: 400,
		Error:      "fake error message",
	}
}
