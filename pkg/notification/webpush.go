package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// DefaultTTL is how long the push service keeps an undelivered test push
const DefaultTTL = 86400

// VAPIDConfig holds the application server credentials
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Validate checks that all VAPID fields are set
func (c VAPIDConfig) Validate() error {
	if c.PublicKey == "" || c.PrivateKey == "" || c.Subject == "" {
		return errors.New("VAPID configuration required: public key, private key and subject")
	}
	return nil
}

// Message is the JSON document delivered as the push payload
type Message struct {
	Title   string                    `json:"title,omitempty"`
	Body    string                    `json:"body,omitempty"`
	Message string                    `json:"message,omitempty"`
	Icon    string                    `json:"icon,omitempty"`
	Badge   string                    `json:"badge,omitempty"`
	Tag     string                    `json:"tag,omitempty"`
	Data    entities.NotificationData `json:"data"`
}

// SendOptions controls delivery of a single push
type SendOptions struct {
	TTL     int
	Urgency string
	Topic   string
}

// Sender delivers test pushes to a subscription through the push service
type Sender struct {
	vapid      VAPIDConfig
	httpClient webpush.HTTPClient
}

// NewSender creates a new sender
func NewSender(cfg VAPIDConfig, httpClient webpush.HTTPClient) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sender{vapid: cfg, httpClient: httpClient}, nil
}

// Send encrypts msg for sub and posts it to the subscription endpoint
func (s *Sender) Send(ctx context.Context, sub *entities.Subscription, msg Message, opts SendOptions) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.SendRaw(ctx, sub, payload, opts)
}

// SendRaw posts an arbitrary payload, which lets a plain text push be tested
func (s *Sender) SendRaw(ctx context.Context, sub *entities.Subscription, payload []byte, opts SendOptions) error {
	p256dh, auth := sub.EncodedKeys()
	webpushSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: p256dh,
			Auth:   auth,
		},
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	options := &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.vapid.Subject,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             ttl,
		Topic:           opts.Topic,
		Urgency:         parseUrgency(opts.Urgency),
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, webpushSub, options)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[PUSH] Warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func parseUrgency(urgency string) webpush.Urgency {
	switch urgency {
	case "very-low":
		return webpush.UrgencyVeryLow
	case "low":
		return webpush.UrgencyLow
	case "high":
		return webpush.UrgencyHigh
	default:
		return webpush.UrgencyNormal
	}
}

// GenerateVAPIDKeys creates a new application server key pair. Both keys are
// URL-safe base64.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
