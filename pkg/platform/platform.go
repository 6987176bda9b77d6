// Package platform defines the port to the runtime that hosts push
// notifications: permission prompts, background handler registration, the
// push manager and notification display.
package platform

import (
	"context"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// Platform is the application view's access to push capabilities
type Platform interface {
	// SupportsBackgroundHandlers reports whether a background handler can be registered
	SupportsBackgroundHandlers() bool

	// SupportsPush reports whether the push messaging facility exists
	SupportsPush() bool

	// SupportsNotifications reports whether notifications can be displayed at all
	SupportsNotifications() bool

	// Permission returns the current notification permission without prompting
	Permission() entities.PermissionState

	// RequestPermission prompts the user and blocks until they respond
	RequestPermission(ctx context.Context) (entities.PermissionState, error)

	// Register installs the background handler script under scope. Registering
	// an already registered scope returns the existing registration.
	Register(ctx context.Context, scriptURL, scope string) (Registration, error)

	// GetRegistration returns the registration for scope, or nil if none exists
	GetRegistration(ctx context.Context, scope string) (Registration, error)

	// ShowNotification displays a notification directly from the application view
	ShowNotification(ctx context.Context, title string, opts entities.NotificationOptions) error
}

// Registration is an installed background handler
type Registration interface {
	// ID returns the registration identifier
	ID() string

	// Scope returns the path the registration controls
	Scope() string

	// PushManager returns the push manager bound to this registration
	PushManager() PushManager

	// ShowNotification displays a notification through the background handler
	ShowNotification(ctx context.Context, title string, opts entities.NotificationOptions) error
}

// PushManager creates and cancels the single subscription of a registration
type PushManager interface {
	// GetSubscription returns the current subscription, or nil if none exists
	GetSubscription(ctx context.Context) (*entities.Subscription, error)

	// Subscribe creates a subscription, or returns the existing one
	Subscribe(ctx context.Context, opts SubscribeOptions) (*entities.Subscription, error)

	// Unsubscribe cancels the current subscription. It reports whether one existed.
	Unsubscribe(ctx context.Context) (bool, error)
}

// SubscribeOptions are passed to the push service when creating a subscription
type SubscribeOptions struct {
	// UserVisibleOnly promises that every push results in a visible notification
	UserVisibleOnly bool
	// ApplicationServerKey is the raw VAPID public key, if configured
	ApplicationServerKey []byte
}
