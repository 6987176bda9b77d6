package notification

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var urlSafeToStd = strings.NewReplacer("-", "+", "_", "/")

// DecodeApplicationServerKey converts a URL-safe base64 application server
// (VAPID) public key into raw key bytes: '-' becomes '+', '_' becomes '/',
// and '=' padding is restored to a multiple of four before decoding.
func DecodeApplicationServerKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("application server key is empty")
	}

	padding := strings.Repeat("=", (4-len(key)%4)%4)
	raw, err := base64.StdEncoding.DecodeString(urlSafeToStd.Replace(key + padding))
	if err != nil {
		return nil, fmt.Errorf("failed to decode application server key: %w", err)
	}
	return raw, nil
}

// EncodeApplicationServerKey converts raw key bytes into the unpadded
// URL-safe base64 form used for configuration.
func EncodeApplicationServerKey(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
