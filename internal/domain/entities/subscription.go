package entities

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SubscriptionKeys holds the raw key material of a push subscription
type SubscriptionKeys struct {
	P256dh []byte
	Auth   []byte
}

// Subscription represents a push subscription created by the platform push
// service. At most one exists per background handler registration.
type Subscription struct {
	Endpoint       string
	Keys           SubscriptionKeys
	ExpirationTime *time.Time
}

// Validate ensures the subscription is usable
func (s *Subscription) Validate() error {
	if s.Endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}

	if len(s.Keys.P256dh) == 0 {
		return errors.New("p256dh key is required")
	}

	if len(s.Keys.Auth) == 0 {
		return errors.New("auth key is required")
	}

	return nil
}

// EncodedKeys returns the keys as standard base64 of the raw bytes, which is
// the form the backend expects.
func (s *Subscription) EncodedKeys() (p256dh, auth string) {
	return base64.StdEncoding.EncodeToString(s.Keys.P256dh), base64.StdEncoding.EncodeToString(s.Keys.Auth)
}

// ExpirationMillis returns the expiration as epoch milliseconds, or nil
func (s *Subscription) ExpirationMillis() *int64 {
	if s.ExpirationTime == nil {
		return nil
	}
	ms := s.ExpirationTime.UnixMilli()
	return &ms
}

// IsExpired reports whether the subscription has passed its expiration time
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.ExpirationTime != nil && !now.Before(*s.ExpirationTime)
}

type subscriptionJSON struct {
	Endpoint       string `json:"endpoint"`
	ExpirationTime *int64 `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// MarshalJSON encodes the subscription in the platform's toJSON shape
func (s Subscription) MarshalJSON() ([]byte, error) {
	var out subscriptionJSON
	out.Endpoint = s.Endpoint
	out.ExpirationTime = s.ExpirationMillis()
	out.Keys.P256dh, out.Keys.Auth = s.EncodedKeys()
	return json.Marshal(out)
}

// UnmarshalJSON accepts keys in standard or URL-safe base64, padded or not
func (s *Subscription) UnmarshalJSON(data []byte) error {
	var in subscriptionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	p256dh, err := decodeKey(in.Keys.P256dh)
	if err != nil {
		return fmt.Errorf("invalid p256dh key: %w", err)
	}
	auth, err := decodeKey(in.Keys.Auth)
	if err != nil {
		return fmt.Errorf("invalid auth key: %w", err)
	}

	s.Endpoint = in.Endpoint
	s.Keys = SubscriptionKeys{P256dh: p256dh, Auth: auth}
	s.ExpirationTime = nil
	if in.ExpirationTime != nil {
		t := time.UnixMilli(*in.ExpirationTime)
		s.ExpirationTime = &t
	}
	return nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
