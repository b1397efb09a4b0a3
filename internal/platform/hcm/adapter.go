// Package hcm implements the RedStore push transport adapter against an
// HCM-style (Huawei Cloud Messaging) REST API: an OAuth2
// client-credentials token exchange followed by per-message send calls.
package hcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

const (
	defaultAuthURL      = "https://oauth-login.cloud.huawei.com/oauth2/v3/token"
	defaultPushEndpoint = "https://push-api.cloud.huawei.com"

	// Provider response codes, from the HCM push API.
	codeSuccess        = "80000000"
	codePartialSuccess = "80100000"
	codeTokensInvalid  = "80300007"
)

// Config holds the HCM application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	// AuthURL and PushEndpoint override production endpoints, mainly for tests.
	AuthURL      string
	PushEndpoint string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

type Adapter struct {
	clientID     string
	clientSecret string
	authURL      string
	sendURL      string
	httpClient   *http.Client
	logger       *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewAdapter(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("hcm: client_id and client_secret are required")
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	endpoint := cfg.PushEndpoint
	if endpoint == "" {
		endpoint = defaultPushEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authURL:      authURL,
		sendURL:      fmt.Sprintf("%s/v1/%s/messages:send", endpoint, cfg.ClientID),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.With("component", "HCMAdapter"),
	}, nil
}

func (a *Adapter) Transport() notification.PushTransport {
	return notification.TransportRedStore
}

type sendRequest struct {
	Message hcmMessage `json:"message"`
}

type hcmMessage struct {
	Token        []string         `json:"token"`
	Notification *hcmNotification `json:"notification,omitempty"`
	// Data must be a string per the HCM API; maps are JSON-encoded.
	Data string `json:"data,omitempty"`
}

type hcmNotification struct {
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	ClickAction *hcmClickAction `json:"click_action,omitempty"`
}

type hcmClickAction struct {
	Type int `json:"type"`
}

type sendResponse struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	RequestID string `json:"requestId"`
}

// partialResult is the JSON carried inside msg for partial-success codes.
type partialResult struct {
	Success       int      `json:"success"`
	Failure       int      `json:"failure"`
	IllegalTokens []string `json:"illegal_tokens"`
}

// SendAll issues one request per item, refreshing the OAuth token as
// needed. Failures never abort the rest of the batch.
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

	accessToken, err := a.ensureToken(ctx)
	if err != nil {
		a.logger.Error("HCM auth failed", "err", err)
		pr.ErrorCode = notification.ErrCodeTransport
		pr.Error = err.Error()
		return pr
	}

	msg := hcmMessage{Token: []string{item.Token}}
	data := make(map[string]string, len(item.Data)+2)
	for k, v := range item.Data {
		data[k] = v
	}
	if item.Type == notification.PushTypeSilentData {
		data["_title"] = item.Title
		data["_body"] = item.Body
	} else {
		msg.Notification = &hcmNotification{
			Title:       item.Title,
			Body:        item.Body,
			ClickAction: &hcmClickAction{Type: 3},
		}
	}
	if len(data) > 0 {
		encoded, err := json.Marshal(data)
		if err != nil {
			pr.ErrorCode = notification.ErrCodeTransport
			pr.Error = err.Error()
			return pr
		}
		msg.Data = string(encoded)
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
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("HCM transport failed", "token", item.Token, "err", err)
		pr.ErrorCode = notification.ErrCodeTransport
		pr.Error = err.Error()
		return pr
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	pr.StatusCode = resp.StatusCode
	pr.Raw = string(raw)

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		pr.Error = fmt.Sprintf("unparsable response: %v", err)
		return pr
	}
	pr.MessageID = parsed.RequestID
	if pr.MessageID == "" {
		pr.MessageID = uuid.NewString()
	}

	switch parsed.Code {
	case codeSuccess:
		pr.Success = true
	case codePartialSuccess:
		// The msg field carries a JSON body naming the dead tokens.
		var partial partialResult
		if err := json.Unmarshal([]byte(parsed.Msg), &partial); err != nil {
			pr.Error = parsed.Msg
			return pr
		}
		// One token per request: partial success here means our token is
		// among the illegal ones.
		pr.Error = parsed.Msg
		if contains(partial.IllegalTokens, item.Token) {
			pr.ErrorCode = notification.ErrCodeTokenNotRegistered
		}
	case codeTokensInvalid:
		pr.Error = parsed.Msg
		pr.ErrorCode = notification.ErrCodeTokenNotRegistered
	default:
		pr.Error = parsed.Msg
		a.logger.Warn("HCM rejected notification", "code", parsed.Code, "msg", parsed.Msg)
	}
	return pr
}

// ensureToken returns a cached access token, fetching a new one when the
// cached token is within a minute of expiry.
func (a *Adapter) ensureToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("unparsable token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

func contains(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

func fakeResponse(item notification.BatchItem) notification.ProviderResponse {
	if notification.IsFakeSuccessToken(item.Token) {
		return notification.ProviderResponse{
			Success:   true,
			MessageID: "fake-success-message",
			Token:     item.Token,
			AppID:     item.AppID,
			Raw:       `{"code":"` + codeSuccess + `","msg":"Success"}`,
		}
	}
	return notification.ProviderResponse{
		Token: item.Token,
		AppID: item.AppID,
		Error: "fake error message",
		Raw:   `{"code":"` + codePartialSuccess + `","msg":"{\"success\":0,\"failure\":1,\"illegal_tokens\":[\"` + item.Token + `\"]}"}`,
	}
}
