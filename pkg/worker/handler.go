// Package worker implements the background push handler: it turns push
// messages into notifications and routes notification clicks back into the
// application. It runs independently of any open application view.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// DefaultProcessPath is the process detail route; %s is the process id
const DefaultProcessPath = "/processes/%s"

// Options configures the background handler
type Options struct {
	// AppOrigin is the application's own origin, e.g. https://app.example.com
	AppOrigin string
	// Defaults are used for payload fields the producer left out
	Defaults entities.NotificationDefaults
	// ProcessPath is the fmt pattern for the process detail route
	ProcessPath string
}

// Handler is the background push handler. Apart from its lifecycle state it
// keeps nothing between events.
type Handler struct {
	runtime Runtime
	opts    Options

	mu    sync.RWMutex
	state State
}

// NewHandler creates a handler in the installing state
func NewHandler(runtime Runtime, opts Options) *Handler {
	if opts.Defaults == (entities.NotificationDefaults{}) {
		opts.Defaults = entities.DefaultNotificationDefaults()
	}
	if opts.ProcessPath == "" {
		opts.ProcessPath = DefaultProcessPath
	}

	return &Handler{
		runtime: runtime,
		opts:    opts,
		state:   StateInstalling,
	}
}

// State returns the current lifecycle state
func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Handle dispatches event to its named handler
func (h *Handler) Handle(ctx context.Context, event Event) error {
	switch ev := event.(type) {
	case InstallEvent:
		return h.OnInstall(ctx)
	case ActivateEvent:
		return h.OnActivate(ctx)
	case PushEvent:
		return h.OnPush(ctx, ev)
	case NotificationClickEvent:
		return h.OnNotificationClick(ctx, ev)
	case NotificationCloseEvent:
		return h.OnNotificationClose(ctx, ev)
	default:
		return fmt.Errorf("unsupported event type %T", event)
	}
}

// OnInstall claims readiness immediately instead of waiting for old instances
func (h *Handler) OnInstall(ctx context.Context) error {
	log.Printf("[PUSH_WORKER] Installing")
	if err := h.runtime.SkipWaiting(ctx); err != nil {
		return fmt.Errorf("failed to skip waiting: %w", err)
	}
	return nil
}

// OnActivate takes control of all open views and settles into idle
func (h *Handler) OnActivate(ctx context.Context) error {
	log.Printf("[PUSH_WORKER] Activating")
	if err := h.runtime.Clients().Claim(ctx); err != nil {
		return fmt.Errorf("failed to claim clients: %w", err)
	}
	h.setState(StateActivated)
	h.setState(StateIdle)
	return nil
}

// OnPush displays the notification described by the push message. It
// returns after the platform has accepted the notification.
func (h *Handler) OnPush(ctx context.Context, ev PushEvent) error {
	parsed := entities.ParsePushPayload(ev.Data)
	if _, ok := parsed.(entities.PlainTextPayload); ok && len(ev.Data) > 0 {
		log.Printf("[PUSH_WORKER] Warning: push payload is not JSON, showing it as text")
	}

	payload := entities.Normalize(parsed, h.opts.Defaults)
	log.Printf("[PUSH_WORKER] Push received: %s", payload)

	if err := h.runtime.ShowNotification(ctx, payload.Title, entities.BuildNotificationOptions(payload)); err != nil {
		return fmt.Errorf("failed to show notification: %w", err)
	}
	return nil
}

// OnNotificationClick closes the notification and, unless it was
// dismissed, brings the application to the routed URL.
func (h *Handler) OnNotificationClick(ctx context.Context, ev NotificationClickEvent) error {
	ev.Notification.Close()

	if ev.Action == entities.ActionDismiss {
		log.Printf("[PUSH_WORKER] Notification dismissed")
		return nil
	}

	target := resolveURL(h.opts.AppOrigin, ResolveClickTarget(ev.Notification.Data(), h.opts.ProcessPath))
	log.Printf("[PUSH_WORKER] Notification clicked, routing to %s", target)

	clients := h.runtime.Clients()
	views, err := clients.MatchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}

	for _, view := range views {
		if !sameOrigin(view.URL(), h.opts.AppOrigin) {
			continue
		}
		navigated, err := view.Navigate(ctx, target)
		if err != nil {
			log.Printf("[PUSH_WORKER] Warning: failed to navigate client: %v", err)
			break
		}
		if navigated == nil {
			navigated = view
		}
		if err := navigated.Focus(ctx); err != nil {
			return fmt.Errorf("failed to focus client: %w", err)
		}
		return nil
	}

	if _, err := clients.OpenWindow(ctx, target); err != nil {
		return fmt.Errorf("failed to open window: %w", err)
	}
	return nil
}

// OnNotificationClose only records the close
func (h *Handler) OnNotificationClose(_ context.Context, ev NotificationCloseEvent) error {
	log.Printf("[PUSH_WORKER] Notification closed: %q", ev.Notification.Title())
	return nil
}
