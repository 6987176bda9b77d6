package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

func TestClient_Status(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		serverStatus   int
		wantErr        bool
		wantStatusCode int
		expected       bool
	}{
		{name: "subscribed", serverResponse: `{"is_subscribed": true}`, serverStatus: http.StatusOK, expected: true},
		{name: "not subscribed", serverResponse: `{"is_subscribed": false}`, serverStatus: http.StatusOK, expected: false},
		{name: "unauthorized", serverResponse: `{"error":"unauthorized"}`, serverStatus: http.StatusUnauthorized, wantErr: true, wantStatusCode: http.StatusUnauthorized},
		{name: "created is not ok", serverResponse: `{"is_subscribed": true}`, serverStatus: http.StatusCreated, wantErr: true, wantStatusCode: http.StatusCreated},
		{name: "bad body", serverResponse: `not json`, serverStatus: http.StatusOK, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, StatusPath, r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.serverStatus)
				_, _ = w.Write([]byte(tt.serverResponse))
			}))
			defer server.Close()

			client := NewClient(server.URL, StaticToken("secret"))
			subscribed, err := client.Status(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, entities.ErrRelayFailed))
				if tt.wantStatusCode != 0 {
					assert.True(t, IsStatus(err, tt.wantStatusCode))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, subscribed)
		})
	}
}

func TestClient_Subscribe(t *testing.T) {
	var got SubscribeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, SubscribePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	exp := time.UnixMilli(1700000000000)
	sub := &entities.Subscription{
		Endpoint:       "https://push.example.com/abc",
		Keys:           entities.SubscriptionKeys{P256dh: []byte{0xfb, 0xff, 0x01}, Auth: []byte("auth")},
		ExpirationTime: &exp,
	}

	client := NewClient(server.URL+"/", StaticToken("secret"))
	require.NoError(t, client.Subscribe(context.Background(), NewSubscribeRequest(sub)))

	assert.Equal(t, "https://push.example.com/abc", got.Endpoint)
	assert.Equal(t, "+/8B", got.Keys.P256dh)
	assert.Equal(t, "YXV0aA==", got.Keys.Auth)
	require.NotNil(t, got.ExpirationTime)
	assert.Equal(t, int64(1700000000000), *got.ExpirationTime)
}

func TestClient_SubscribeNullExpiration(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer server.Close()

	sub := &entities.Subscription{Endpoint: "e", Keys: entities.SubscriptionKeys{P256dh: []byte{1}, Auth: []byte{2}}}
	require.NoError(t, NewClient(server.URL, StaticToken("t")).Subscribe(context.Background(), NewSubscribeRequest(sub)))

	value, ok := raw["expirationTime"]
	assert.True(t, ok, "expirationTime should be sent as null")
	assert.Nil(t, value)
}

func TestClient_Unsubscribe(t *testing.T) {
	var got UnsubscribeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UnsubscribePath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := &entities.Subscription{Endpoint: "https://push.example.com/abc", Keys: entities.SubscriptionKeys{P256dh: []byte("p"), Auth: []byte("a")}}
	require.NoError(t, NewClient(server.URL, StaticToken("t")).Unsubscribe(context.Background(), NewUnsubscribeRequest(sub)))

	assert.Equal(t, "https://push.example.com/abc", got.Endpoint)
	assert.Equal(t, "cA==", got.Keys.P256dh)
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewClient(server.URL, StaticToken("t")).Subscribe(context.Background(), SubscribeRequest{Endpoint: "e"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url, StaticToken("t")).Subscribe(context.Background(), SubscribeRequest{Endpoint: "e"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrRelayFailed))
}

func TestClient_NoTokenSkipsCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := NewClient(server.URL, StaticToken("")).Status(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoToken))
	assert.True(t, errors.Is(err, entities.ErrRelayFailed))
	assert.False(t, called)
}

func TestFileToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	_, err := FileToken(path).Token()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, os.WriteFile(path, []byte("  abc\n"), 0600))
	token, err := FileToken(path).Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	chain := ChainToken{StaticToken(""), FileToken(path)}
	token, err = chain.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = ChainToken{StaticToken(""), FileToken("")}.Token()
	assert.ErrorIs(t, err, ErrNoToken)
}
