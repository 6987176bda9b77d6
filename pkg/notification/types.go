package notification

import (
	"context"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/relay"
)

// Relay is the backend the manager reports subscription changes to.
// *relay.Client satisfies it.
type Relay interface {
	Subscribe(ctx context.Context, req relay.SubscribeRequest) error
	Unsubscribe(ctx context.Context, req relay.UnsubscribeRequest) error
}

// PermissionResult represents the outcome of a permission prompt
type PermissionResult struct {
	Granted bool                     `json:"granted"`
	State   entities.PermissionState `json:"state"`
}

// SubscribeResult represents the outcome of Subscribe
type SubscribeResult struct {
	Success      bool                   `json:"success"`
	Subscription *entities.Subscription `json:"subscription,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// UnsubscribeResult represents the outcome of Unsubscribe
type UnsubscribeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
