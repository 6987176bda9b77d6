package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/platform"
	"github.com/takutakahashi/agentapi-push/pkg/relay"
)

const (
	// DefaultScriptURL is where the background handler script is served
	DefaultScriptURL = "/sw.js"
	// DefaultScope is the path the background handler controls
	DefaultScope = "/"
)

// Options configures a Manager
type Options struct {
	ScriptURL string
	Scope     string
	// ApplicationServerKey is the URL-safe base64 VAPID public key
	ApplicationServerKey string
}

// Manager drives the subscription lifecycle from the application view:
// support probing, permission, background handler registration, the push
// subscription itself and best-effort relay to the backend.
type Manager struct {
	platform platform.Platform
	relay    Relay
	opts     Options

	subscribeGroup singleflight.Group

	mu          sync.RWMutex
	initialized bool
	supported   bool
	now         func() time.Time
}

// NewManager creates a new subscription manager. relay may be nil, in which
// case subscription changes stay local.
func NewManager(p platform.Platform, r Relay, opts Options) *Manager {
	if opts.ScriptURL == "" {
		opts.ScriptURL = DefaultScriptURL
	}
	if opts.Scope == "" {
		opts.Scope = DefaultScope
	}
	return &Manager{
		platform: p,
		relay:    r,
		opts:     opts,
		now:      time.Now,
	}
}

// Initialize probes platform support once and caches the result
func (m *Manager) Initialize() bool {
	supported := m.probe()

	m.mu.Lock()
	m.initialized = true
	m.supported = supported
	m.mu.Unlock()

	if supported {
		log.Printf("[PUSH] Push notifications supported (scope %s)", m.opts.Scope)
	} else {
		log.Printf("[PUSH] Push notifications are not supported on this platform")
	}
	return supported
}

// CheckSupport reports whether both background handlers and push messaging exist
func (m *Manager) CheckSupport() bool {
	m.mu.RLock()
	initialized, supported := m.initialized, m.supported
	m.mu.RUnlock()
	if initialized {
		return supported
	}
	return m.probe()
}

func (m *Manager) probe() bool {
	return m.platform.SupportsBackgroundHandlers() && m.platform.SupportsPush()
}

// PermissionState returns the current notification permission without prompting
func (m *Manager) PermissionState() entities.PermissionState {
	if !m.platform.SupportsNotifications() {
		return entities.PermissionUnsupported
	}
	return m.platform.Permission()
}

// RequestPermission prompts the user when the permission is undecided
func (m *Manager) RequestPermission(ctx context.Context) PermissionResult {
	if !m.platform.SupportsNotifications() {
		return PermissionResult{Granted: false, State: entities.PermissionUnsupported}
	}

	state, err := m.platform.RequestPermission(ctx)
	if err != nil {
		log.Printf("[PUSH] Warning: permission request failed: %v", err)
		state = m.platform.Permission()
	}
	return PermissionResult{Granted: state.IsGranted(), State: state}
}

// RegisterBackgroundHandler returns the registration for the configured
// scope, installing the background handler if needed.
func (m *Manager) RegisterBackgroundHandler(ctx context.Context) (platform.Registration, error) {
	if !m.CheckSupport() {
		return nil, fmt.Errorf("%w: %w", entities.ErrRegistrationFailed, entities.ErrUnsupportedPlatform)
	}

	reg, err := m.platform.GetRegistration(ctx, m.opts.Scope)
	if err == nil && reg != nil {
		return reg, nil
	}
	if err != nil {
		log.Printf("[PUSH] Warning: failed to look up registration: %v", err)
	}

	reg, err = m.platform.Register(ctx, m.opts.ScriptURL, m.opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrRegistrationFailed, err)
	}
	log.Printf("[PUSH] Background handler registered (id %s, scope %s)", reg.ID(), reg.Scope())
	return reg, nil
}

// Subscribe ensures a push subscription exists and reports it to the
// backend. Concurrent calls share a single in-flight attempt. A backend
// failure is logged and does not affect the result.
func (m *Manager) Subscribe(ctx context.Context) SubscribeResult {
	if !m.CheckSupport() {
		return SubscribeResult{Success: false, Error: entities.ErrUnsupportedPlatform.Error()}
	}

	v, err, shared := m.subscribeGroup.Do("subscribe", func() (interface{}, error) {
		return m.subscribe(ctx)
	})
	if err != nil {
		log.Printf("[PUSH] Failed to subscribe: %v", err)
		return SubscribeResult{Success: false, Error: err.Error()}
	}
	if shared {
		log.Printf("[PUSH] Joined in-flight subscribe")
	}
	return SubscribeResult{Success: true, Subscription: v.(*entities.Subscription)}
}

func (m *Manager) subscribe(ctx context.Context) (*entities.Subscription, error) {
	reg, err := m.RegisterBackgroundHandler(ctx)
	if err != nil {
		return nil, err
	}
	pm := reg.PushManager()

	existing, err := pm.GetSubscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get subscription: %w", entities.ErrSubscriptionFailed, err)
	}
	if existing != nil {
		if !existing.IsExpired(m.now()) {
			log.Printf("[PUSH] Reusing existing subscription %s", existing.Endpoint)
			m.relaySubscribe(ctx, existing)
			return existing, nil
		}
		log.Printf("[PUSH] Existing subscription %s expired, replacing it", existing.Endpoint)
		if _, err := pm.Unsubscribe(ctx); err != nil {
			return nil, fmt.Errorf("%w: failed to cancel expired subscription: %w", entities.ErrSubscriptionFailed, err)
		}
	}

	opts := platform.SubscribeOptions{UserVisibleOnly: true}
	if m.opts.ApplicationServerKey != "" {
		key, err := DecodeApplicationServerKey(m.opts.ApplicationServerKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid application server key: %w", entities.ErrSubscriptionFailed, err)
		}
		opts.ApplicationServerKey = key
	}

	sub, err := pm.Subscribe(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrSubscriptionFailed, err)
	}
	log.Printf("[PUSH] Created subscription %s", sub.Endpoint)

	m.relaySubscribe(ctx, sub)
	return sub, nil
}

// Unsubscribe notifies the backend and then cancels the local
// subscription. Having no subscription is a success.
func (m *Manager) Unsubscribe(ctx context.Context) UnsubscribeResult {
	if !m.CheckSupport() {
		return UnsubscribeResult{Success: true}
	}

	sub, err := m.CurrentSubscription(ctx)
	if err != nil {
		log.Printf("[PUSH] Failed to unsubscribe: %v", err)
		return UnsubscribeResult{Success: false, Error: err.Error()}
	}
	if sub == nil {
		return UnsubscribeResult{Success: true}
	}

	m.relayUnsubscribe(ctx, sub)

	reg, err := m.platform.GetRegistration(ctx, m.opts.Scope)
	if err != nil || reg == nil {
		return UnsubscribeResult{Success: true}
	}
	if _, err := reg.PushManager().Unsubscribe(ctx); err != nil {
		log.Printf("[PUSH] Failed to cancel subscription: %v", err)
		return UnsubscribeResult{Success: false, Error: fmt.Sprintf("failed to unsubscribe: %v", err)}
	}
	log.Printf("[PUSH] Cancelled subscription %s", sub.Endpoint)
	return UnsubscribeResult{Success: true}
}

// CurrentSubscription returns the subscription of the configured scope, or
// nil if there is no registration or no subscription.
func (m *Manager) CurrentSubscription(ctx context.Context) (*entities.Subscription, error) {
	if !m.CheckSupport() {
		return nil, nil
	}
	reg, err := m.platform.GetRegistration(ctx, m.opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	if reg == nil {
		return nil, nil
	}
	sub, err := reg.PushManager().GetSubscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ShowLocalNotification displays a notification without a push, preferring
// the background handler's registration. It returns false when permission
// is not granted or display fails.
func (m *Manager) ShowLocalNotification(ctx context.Context, title string, opts entities.NotificationOptions) bool {
	if state := m.PermissionState(); !state.IsGranted() {
		log.Printf("[PUSH] Warning: not showing notification, permission is %s", state)
		return false
	}

	if m.CheckSupport() {
		reg, err := m.platform.GetRegistration(ctx, m.opts.Scope)
		if err == nil && reg != nil {
			err = reg.ShowNotification(ctx, title, opts)
			if err == nil {
				return true
			}
			log.Printf("[PUSH] Warning: registration failed to show notification, falling back: %v", err)
		}
	}

	if err := m.platform.ShowNotification(ctx, title, opts); err != nil {
		log.Printf("[PUSH] Warning: failed to show notification: %v", err)
		return false
	}
	return true
}

func (m *Manager) relaySubscribe(ctx context.Context, sub *entities.Subscription) {
	if m.relay == nil {
		return
	}
	if err := m.relay.Subscribe(ctx, relay.NewSubscribeRequest(sub)); err != nil {
		logRelayError("subscription", err)
		return
	}
	log.Printf("[PUSH] Subscription sent to backend")
}

func (m *Manager) relayUnsubscribe(ctx context.Context, sub *entities.Subscription) {
	if m.relay == nil {
		return
	}
	if err := m.relay.Unsubscribe(ctx, relay.NewUnsubscribeRequest(sub)); err != nil {
		logRelayError("unsubscription", err)
		return
	}
	log.Printf("[PUSH] Unsubscription sent to backend")
}

func logRelayError(what string, err error) {
	if errors.Is(err, relay.ErrNoToken) {
		log.Printf("[PUSH] Warning: no auth token, %s not sent to backend", what)
		return
	}
	log.Printf("[PUSH] Warning: failed to send %s to backend: %v", what, err)
}
