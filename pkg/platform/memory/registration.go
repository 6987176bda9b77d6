package memory

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/platform"
	"github.com/takutakahashi/agentapi-push/pkg/worker"
)

// EndpointBase is the push service URL prefix of simulated subscriptions
const EndpointBase = "https://push.memory.test/wp/"

// Registration is an installed background handler together with its push
// subscription and the notifications it has on screen.
type Registration struct {
	id        string
	scriptURL string
	scope     string
	browser   *Browser
	host      *host
	handler   worker.EventHandler

	ready    chan struct{}
	startErr error

	mu            sync.Mutex
	skippedWait   bool
	sub           *entities.Subscription
	notifications []*Notification
}

var _ platform.Registration = (*Registration)(nil)

func newRegistration(b *Browser, id, scriptURL, scope string) *Registration {
	r := &Registration{
		id:        id,
		scriptURL: scriptURL,
		scope:     scope,
		browser:   b,
		ready:     make(chan struct{}),
	}
	r.handler = b.factory(&runtime{reg: r})
	r.host = newHost(r.handler)
	return r
}

// start runs install then activate on the handler's own event loop
func (r *Registration) start(ctx context.Context) {
	defer close(r.ready)

	ctx = context.WithoutCancel(ctx)
	if err := r.host.dispatch(ctx, worker.InstallEvent{}); err != nil {
		r.startErr = fmt.Errorf("install failed: %w", err)
		return
	}
	if err := r.host.dispatch(ctx, worker.ActivateEvent{}); err != nil {
		r.startErr = fmt.Errorf("activate failed: %w", err)
	}
}

// ID implements platform.Registration
func (r *Registration) ID() string {
	return r.id
}

// Scope implements platform.Registration
func (r *Registration) Scope() string {
	return r.scope
}

// ScriptURL returns the handler script location
func (r *Registration) ScriptURL() string {
	return r.scriptURL
}

// WorkerState returns the lifecycle state of the hosted handler, or "" if
// the handler does not expose one.
func (r *Registration) WorkerState() worker.State {
	if h, ok := r.handler.(interface{ State() worker.State }); ok {
		return h.State()
	}
	return ""
}

// SkippedWaiting reports whether the handler asked to activate immediately
func (r *Registration) SkippedWaiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skippedWait
}

// PushManager implements platform.Registration
func (r *Registration) PushManager() platform.PushManager {
	return &pushManager{reg: r}
}

// ShowNotification implements platform.Registration. A notification with
// the same tag as one already on screen replaces it.
func (r *Registration) ShowNotification(_ context.Context, title string, opts entities.NotificationOptions) error {
	if !r.browser.SupportsNotifications() {
		return entities.ErrUnsupportedPlatform
	}
	if !r.browser.Permission().IsGranted() {
		return entities.ErrPermissionDenied
	}

	n := &Notification{id: uuid.NewString(), title: title, opts: opts, registration: r}

	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.Tag != "" {
		kept := r.notifications[:0]
		for _, existing := range r.notifications {
			if existing.opts.Tag != opts.Tag {
				kept = append(kept, existing)
			}
		}
		r.notifications = kept
	}
	r.notifications = append(r.notifications, n)
	return nil
}

// Notifications returns the notifications currently on screen
func (r *Registration) Notifications() []*Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

func (r *Registration) removeNotification(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.notifications {
		if n.id == id {
			r.notifications = append(r.notifications[:i], r.notifications[i+1:]...)
			return
		}
	}
}

func (r *Registration) subscription() (*entities.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub, r.sub != nil
}

type pushManager struct {
	reg *Registration
}

func (m *pushManager) GetSubscription(ctx context.Context) (*entities.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, _ := m.reg.subscription()
	return sub, nil
}

func (m *pushManager) Subscribe(ctx context.Context, opts platform.SubscribeOptions) (*entities.Subscription, error) {
	b := m.reg.browser
	if !b.SupportsPush() {
		return nil, entities.ErrUnsupportedPlatform
	}
	if sub, ok := m.reg.subscription(); ok {
		return sub, nil
	}
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	if !opts.UserVisibleOnly {
		return nil, errors.New("push subscriptions must be user visible")
	}
	if len(opts.ApplicationServerKey) > 0 && (len(opts.ApplicationServerKey) != 65 || opts.ApplicationServerKey[0] != 0x04) {
		return nil, errors.New("application server key is not an uncompressed P-256 point")
	}

	state, err := b.RequestPermission(ctx)
	if err != nil {
		return nil, err
	}
	if !state.IsGranted() {
		return nil, fmt.Errorf("%w: permission is %s", entities.ErrPermissionDenied, state)
	}

	sub, err := newSubscription()
	if err != nil {
		return nil, err
	}

	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	if m.reg.sub != nil {
		return m.reg.sub, nil
	}
	m.reg.sub = sub

	b.mu.Lock()
	b.createdSubs++
	b.mu.Unlock()
	return sub, nil
}

func (m *pushManager) Unsubscribe(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	existed := m.reg.sub != nil
	m.reg.sub = nil
	return existed, nil
}

func newSubscription() (*entities.Subscription, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate p256dh key: %w", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("failed to generate auth secret: %w", err)
	}

	return &entities.Subscription{
		Endpoint: EndpointBase + uuid.NewString(),
		Keys: entities.SubscriptionKeys{
			P256dh: key.PublicKey().Bytes(),
			Auth:   auth,
		},
	}, nil
}

// runtime is the worker.Runtime handed to the hosted handler
type runtime struct {
	reg *Registration
}

func (rt *runtime) SkipWaiting(_ context.Context) error {
	rt.reg.mu.Lock()
	rt.reg.skippedWait = true
	rt.reg.mu.Unlock()
	return nil
}

func (rt *runtime) Clients() worker.Clients {
	return &clients{browser: rt.reg.browser, reg: rt.reg}
}

func (rt *runtime) ShowNotification(ctx context.Context, title string, opts entities.NotificationOptions) error {
	return rt.reg.ShowNotification(ctx, title, opts)
}
