package worker

import (
	"context"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// State is the lifecycle state of the background handler
type State string

const (
	StateInstalling State = "installing"
	StateActivated  State = "activated"
	StateIdle       State = "idle"
)

// Event is something the runtime delivers to the background handler
type Event interface {
	// Name returns the event type name for logging
	Name() string
}

// InstallEvent is delivered once when the handler is first installed
type InstallEvent struct{}

// ActivateEvent is delivered once the handler becomes the active instance
type ActivateEvent struct{}

// PushEvent carries a raw push message
type PushEvent struct {
	Data []byte
}

// NotificationClickEvent is delivered when the user clicks a notification
// or one of its actions. Action is empty for a click on the body.
type NotificationClickEvent struct {
	Notification Notification
	Action       string
}

// NotificationCloseEvent is delivered when the user dismisses a notification
type NotificationCloseEvent struct {
	Notification Notification
}

func (InstallEvent) Name() string { return "install" }
func (ActivateEvent) Name() string { return "activate" }
func (PushEvent) Name() string { return "push" }
func (NotificationClickEvent) Name() string { return "notificationclick" }
func (NotificationCloseEvent) Name() string { return "notificationclose" }

// EventHandler handles a single event. Handle returns only after all work
// the event started has completed; the runtime may stop the handler once it
// returns.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// Notification is a notification previously displayed by the handler
type Notification interface {
	Title() string
	Data() entities.NotificationData
	Close()
}

// Runtime is what the hosting platform offers the background handler
type Runtime interface {
	// SkipWaiting activates this instance without waiting for older ones
	SkipWaiting(ctx context.Context) error

	// Clients returns access to the open application views
	Clients() Clients

	// ShowNotification displays a notification
	ShowNotification(ctx context.Context, title string, opts entities.NotificationOptions) error
}

// Clients gives access to the application views the handler controls
type Clients interface {
	// Claim takes control of all open views immediately
	Claim(ctx context.Context) error

	// MatchAll returns every open window, controlled or not
	MatchAll(ctx context.Context) ([]Client, error)

	// OpenWindow opens a new view at url
	OpenWindow(ctx context.Context, url string) (Client, error)
}

// Client is one open application view
type Client interface {
	URL() string
	Navigate(ctx context.Context, url string) (Client, error)
	Focus(ctx context.Context) error
}
