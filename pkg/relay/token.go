package relay

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken means no session token is available, so relay calls are skipped
var ErrNoToken = errors.New("no auth token available")

// TokenSource provides the bearer token for relay calls
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token. An empty StaticToken has no token.
type StaticToken string

// Token implements TokenSource
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// FileToken reads the token from the session file at the given path on
// every call, so a token written after startup is picked up.
type FileToken string

// Token implements TokenSource
func (f FileToken) Token() (string, error) {
	if f == "" {
		return "", ErrNoToken
	}
	data, err := os.ReadFile(string(f))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// ChainToken returns the first token any source yields
type ChainToken []TokenSource

// Token implements TokenSource
func (c ChainToken) Token() (string, error) {
	for _, src := range c {
		token, err := src.Token()
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}
