// Package rustore implements the RuStore push transport adapter against
// the VK push notification service REST API.
package rustore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

const defaultBaseURL = "https://vkpns.rustore.ru"

// Config holds the RuStore project credentials.
type Config struct {
	ProjectID    string
	ServiceToken string
	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

type Adapter struct {
	projectID    string
	serviceToken string
	sendURL      string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewAdapter(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.ProjectID == "" || cfg.ServiceToken == "" {
		return nil, fmt.Errorf("rustore: project_id and service_token are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		projectID:    cfg.ProjectID,
		serviceToken: cfg.ServiceToken,
		sendURL:      fmt.Sprintf("%s/v1/projects/%s/messages:send", baseURL, cfg.ProjectID),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.With("component", "RuStoreAdapter"),
	}, nil
}

func (a *Adapter) Transport() notification.PushTransport {
	return notification.TransportRuStore
}

type sendRequest struct {
	Message rustoreMessage `json:"message"`
}

type rustoreMessage struct {
	Token        string               `json:"token"`
	Notification *rustoreNotification `json:"notification,omitempty"`
	Data         map[string]string    `json:"data,omitempty"`
}

type rustoreNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type sendResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SendAll issues one request per item. The RuStore API has no batch
// endpoint; items are processed sequentially and failures never abort
// the rest of the batch.
func (a *Adapter) SendAll(ctx context.Context, items []notification.BatchItem) (notification.DeliveryResult, error) {
	var result notification.DeliveryResult

	for _, item := range items {
		if notification.IsFakeToken(item.Token) {
			result.Append(fakeResponse(item))
			continue
		}
		result.Append(a.sendOne(ctx, item))
	}

	return result, nil
}

func (a *Adapter) sendOne(ctx context.Context, item notification.BatchItem) notification.ProviderResponse {
	pr := notification.ProviderResponse{Token: item.Token, AppID: item.AppID}

	msg := rustoreMessage{Token: item.Token}
	if item.Type == notification.PushTypeSilentData {
		data := make(map[string]string, len(item.Data)+2)
		for k, v := range item.Data {
			data[k] = v
		}
		data["_title"] = item.Title
		data["_body"] = item.Body
		msg.Data = data
	} else {
		msg.Notification = &rustoreNotification{Title: item.Title, Body: item.Body}
		msg.Data = item.Data
	}

	body, err := json.Marshal(sendRequest{Message: msg})
	if err != nil {
		pr.ErrorCode = notification.ErrCodeTransport
		pr.Error = err.Error()
		return pr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.sendURL, bytes.NewReader(body))
	if err != nil {
		pr.ErrorCode = notification.ErrCodeTransport
		pr.Error = err.Error()
		return pr
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.serviceToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("RuStore transport failed", "token", item.Token, "err", err)
		pr.ErrorCode = notification.ErrCodeTransport
		pr.Error = err.Error()
		return pr
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	pr.StatusCode = resp.StatusCode
	pr.Raw = string(raw)

	if resp.StatusCode == http.StatusOK {
		pr.Success = true
		return pr
	}

	var parsed sendResponse
	_ = json.Unmarshal(raw, &parsed)
	pr.Error = parsed.Message
	if pr.Error == "" {
		pr.Error = http.StatusText(resp.StatusCode)
	}

	// 404 means the project has no such token anymore; the registration
	// should be cleaned up.
	if resp.StatusCode == http.StatusNotFound || parsed.Code == "UNREGISTERED" {
		pr.ErrorCode = notification.ErrCodeTokenNotRegistered
	} else {
		a.logger.Warn("RuStore rejected notification", "status", resp.StatusCode, "code", parsed.Code)
	}
	return pr
}

func fakeResponse(item notification.BatchItem) notification.ProviderResponse {
	if notification.IsFakeSuccessToken(item.Token) {
		return notification.ProviderResponse{
			Success:    true,
			MessageID:  "fake-success-message",
			Token:      item.Token,
			AppID:      item.AppID,
			StatusCode: http.StatusOK,
		}
	}
	return notification.ProviderResponse{
		Token:      item.Token,
		AppID:      item.AppID,
		StatusCode: http.StatusBadRequest,
		Error:      "fake error message",
	}
}
