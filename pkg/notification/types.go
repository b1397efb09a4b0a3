// Package notification contains the public domain models for the
// notification dispatch engine: messages, device registrations, batch
// items handed to transport adapters, and normalized delivery results.
package notification

import (
	"strings"
	"time"
)

// MessageType identifies the business meaning of a message and selects
// which eligibility hooks apply to it.
type MessageType string

// PushTransport identifies the provider a registration belongs to.
type PushTransport string

const (
	TransportFirebase PushTransport = "firebase"
	TransportRuStore  PushTransport = "rustore"
	TransportRedStore PushTransport = "redstore"
	TransportApple    PushTransport = "apple"
)

// PushType selects how a notification surfaces on the device.
type PushType string

const (
	PushTypeDefault    PushType = "default"
	PushTypeSilentData PushType = "silent_data"
)

// TokenField names the registration field an invalidation command targets.
type TokenField string

const (
	FieldPushToken     TokenField = "pushToken"
	FieldPushTokenVoIP TokenField = "pushTokenVoIP"
)

// ProviderErrorCode is the normalized classification of a failed provider
// response. Adapters translate provider-specific signals to these codes so
// downstream code never branches on provider identity.
type ProviderErrorCode string

const (
	// ErrCodeTokenNotRegistered means the provider reported the push token
	// as stale or unknown. The registration holding it should be cleaned up.
	ErrCodeTokenNotRegistered ProviderErrorCode = "TOKEN_NOT_REGISTERED"
	// ErrCodeTransport covers network-level failures where no protocol
	// response was received.
	ErrCodeTransport ProviderErrorCode = "TRANSPORT_ERROR"
)

// InvalidationActor is recorded as audit metadata on every token
// invalidation command emitted by the engine.
const InvalidationActor = "internal token cleanup"

// Fake token prefixes let CI exercise the full dispatch path without real
// provider calls. Adapters synthesize responses for matching tokens.
const (
	FakeTokenSuccessPrefix = "PUSH_FAKE_TOKEN_SUCCESS"
	FakeTokenFailPrefix    = "PUSH_FAKE_TOKEN_FAIL"
)

// IsFakeSuccessToken reports whether the token requests an emulated success.
func IsFakeSuccessToken(token string) bool {
	return strings.HasPrefix(token, FakeTokenSuccessPrefix)
}

// IsFakeFailToken reports whether the token requests an emulated failure.
func IsFakeFailToken(token string) bool {
	return strings.HasPrefix(token, FakeTokenFailPrefix)
}

// IsFakeToken reports whether the token is one of the emulation prefixes.
func IsFakeToken(token string) bool {
	return IsFakeSuccessToken(token) || IsFakeFailToken(token)
}

// Recipient identifies who a message is addressed to. UserID is set for
// registered users; Phone/Email cover anonymous recipients.
type Recipient struct {
	UserID string `json:"userId,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Key returns the most specific identifier available for throttle keys
// and suppression lookups.
func (r Recipient) Key() string {
	switch {
	case r.UserID != "":
		return r.UserID
	case r.Phone != "":
		return r.Phone
	default:
		return r.Email
	}
}

// Meta carries free-form structured data used by eligibility hooks,
// e.g. Data["userId"] for throttle keying.
type Meta struct {
	Data           map[string]string `json:"data,omitempty"`
	OrganizationID string            `json:"organizationId,omitempty"`
}

// Message is the already-validated record the caller asks the engine to
// deliver. The engine only reads it.
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	Recipient Recipient         `json:"recipient"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Payload   map[string]string `json:"payload,omitempty"`
	Meta      Meta              `json:"meta"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ThrottleRecipient returns the identifier throttle hooks key on:
// meta.data.userId when present, otherwise the recipient reference.
func (m *Message) ThrottleRecipient() string {
	if id := m.Meta.Data["userId"]; id != "" {
		return id
	}
	return m.Recipient.Key()
}

// RemoteClientRegistration is one (recipient, transport) device
// registration owned by the calling system. The engine reads tokens from
// it and emits invalidation commands naming its ID; it never writes to it.
type RemoteClientRegistration struct {
	ID            string        `json:"id"`
	Owner         Recipient     `json:"owner"`
	Transport     PushTransport `json:"transport"`
	PushToken     string        `json:"pushToken,omitempty"`
	PushTokenVoIP string        `json:"pushTokenVoIP,omitempty"`
	PushType      PushType      `json:"pushType,omitempty"`
	AppID         string        `json:"appId,omitempty"`
}

// Token returns the token for the requested field.
func (r *RemoteClientRegistration) Token(field TokenField) string {
	if field == FieldPushTokenVoIP {
		return r.PushTokenVoIP
	}
	return r.PushToken
}

// BatchItem is the unit of work handed to a transport adapter, built
// per-registration from a Message.
type BatchItem struct {
	Token        string            `json:"token"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	Type         PushType          `json:"type"`
	AppID        string            `json:"appId,omitempty"`
	VoIP         bool              `json:"voip,omitempty"`
	HighPriority bool              `json:"highPriority,omitempty"`
}

// ProviderResponse is the normalized per-item outcome of one provider
// call, success or failure.
type ProviderResponse struct {
	Success    bool              `json:"success"`
	MessageID  string            `json:"messageId,omitempty"`
	Token      string            `json:"token,omitempty"`
	AppID      string            `json:"appId,omitempty"`
	StatusCode int               `json:"statusCode,omitempty"`
	ErrorCode  ProviderErrorCode `json:"errorCode,omitempty"`
	Error      string            `json:"error,omitempty"`
	Raw        string            `json:"raw,omitempty"`
}

// DeliveryResult aggregates one adapter's outcomes for a batch.
// SuccessCount+FailureCount always equals len(Responses).
type DeliveryResult struct {
	Responses    []ProviderResponse `json:"responses"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
}

// Append records one response and updates the counters.
func (d *DeliveryResult) Append(resp ProviderResponse) {
	d.Responses = append(d.Responses, resp)
	if resp.Success {
		d.SuccessCount++
	} else {
		d.FailureCount++
	}
}

// Merge folds another result into this one.
func (d *DeliveryResult) Merge(other DeliveryResult) {
	d.Responses = append(d.Responses, other.Responses...)
	d.SuccessCount += other.SuccessCount
	d.FailureCount += other.FailureCount
}

// TokenInvalidation is a command for the caller: null the named token
// field on the named registration. Re-applying it to an already-null
// field is a no-op.
type TokenInvalidation struct {
	RegistrationID string     `json:"registrationId"`
	Field          TokenField `json:"field"`
	Token          string     `json:"token"`
	Actor          string     `json:"actor"`
}
