// Package memory provides an in-process platform that behaves like a
// browser hosting a push-capable background handler. It backs the CLI
// simulation and the tests of the packages built on top of platform.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/platform"
	"github.com/takutakahashi/agentapi-push/pkg/worker"
)

// Option configures a Browser
type Option func(*Browser)

// WithPermission sets the initial notification permission
func WithPermission(p entities.PermissionState) Option {
	return func(b *Browser) { b.permission = p }
}

// WithPromptAnswer sets what the user answers when prompted
func WithPromptAnswer(p entities.PermissionState) Option {
	return func(b *Browser) { b.promptAnswer = p }
}

// WithoutPush removes the push messaging facility
func WithoutPush() Option {
	return func(b *Browser) { b.push = false }
}

// WithoutBackgroundHandlers removes background handler registration
func WithoutBackgroundHandlers() Option {
	return func(b *Browser) { b.backgroundHandlers = false }
}

// WithoutNotifications removes notification display entirely
func WithoutNotifications() Option {
	return func(b *Browser) {
		b.notifications = false
		b.permission = entities.PermissionUnsupported
	}
}

// WithRegisterError makes every registration attempt fail with err
func WithRegisterError(err error) Option {
	return func(b *Browser) { b.registerErr = err }
}

// WithSubscribeError makes every subscription create fail with err
func WithSubscribeError(err error) Option {
	return func(b *Browser) { b.subscribeErr = err }
}

// WithWorkerOptions sets the options of the hosted background handler
func WithWorkerOptions(opts worker.Options) Option {
	return func(b *Browser) { b.workerOpts = opts }
}

// WithHandlerFactory replaces the hosted background handler
func WithHandlerFactory(f func(worker.Runtime) worker.EventHandler) Option {
	return func(b *Browser) { b.factory = f }
}

// Browser is an in-memory platform.Platform
type Browser struct {
	origin string

	backgroundHandlers bool
	push               bool
	notifications      bool
	registerErr        error
	subscribeErr       error
	workerOpts         worker.Options
	factory            func(worker.Runtime) worker.EventHandler

	mu                 sync.Mutex
	permission         entities.PermissionState
	promptAnswer       entities.PermissionState
	prompts            int
	createdSubs        int
	registrations      map[string]*Registration
	views              []*View
	directNotification []*Notification
}

var _ platform.Platform = (*Browser)(nil)

// NewBrowser creates a browser for the application served at origin
func NewBrowser(origin string, opts ...Option) *Browser {
	b := &Browser{
		origin:             origin,
		backgroundHandlers: true,
		push:               true,
		notifications:      true,
		permission:         entities.PermissionDefault,
		promptAnswer:       entities.PermissionGranted,
		registrations:      make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.workerOpts.AppOrigin == "" {
		b.workerOpts.AppOrigin = origin
	}
	if b.factory == nil {
		wopts := b.workerOpts
		b.factory = func(rt worker.Runtime) worker.EventHandler {
			return worker.NewHandler(rt, wopts)
		}
	}
	return b
}

// Origin returns the application origin
func (b *Browser) Origin() string {
	return b.origin
}

// SupportsBackgroundHandlers implements platform.Platform
func (b *Browser) SupportsBackgroundHandlers() bool {
	return b.backgroundHandlers
}

// SupportsPush implements platform.Platform
func (b *Browser) SupportsPush() bool {
	return b.push
}

// SupportsNotifications implements platform.Platform
func (b *Browser) SupportsNotifications() bool {
	return b.notifications
}

// Permission implements platform.Platform
func (b *Browser) Permission() entities.PermissionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.permission
}

// SetPermission changes the permission as if the user edited site settings
func (b *Browser) SetPermission(p entities.PermissionState) {
	b.mu.Lock()
	b.permission = p
	b.mu.Unlock()
}

// RequestPermission implements platform.Platform. A decision already made
// is returned without a prompt, as browsers do.
func (b *Browser) RequestPermission(ctx context.Context) (entities.PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return entities.PermissionDefault, err
	}
	if !b.notifications {
		return entities.PermissionUnsupported, entities.ErrUnsupportedPlatform
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.permission == entities.PermissionDefault {
		b.prompts++
		b.permission = b.promptAnswer
	}
	return b.permission, nil
}

// Prompts returns how many times the user was prompted
func (b *Browser) Prompts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompts
}

// CreatedSubscriptions returns how many subscriptions the push service created
func (b *Browser) CreatedSubscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createdSubs
}

// Register implements platform.Platform. It returns once the handler has
// been installed and activated.
func (b *Browser) Register(ctx context.Context, scriptURL, scope string) (platform.Registration, error) {
	if !b.backgroundHandlers {
		return nil, entities.ErrUnsupportedPlatform
	}
	if b.registerErr != nil {
		return nil, b.registerErr
	}

	b.mu.Lock()
	reg, ok := b.registrations[scope]
	if !ok {
		reg = newRegistration(b, uuid.NewString(), scriptURL, scope)
		b.registrations[scope] = reg
	}
	b.mu.Unlock()

	if !ok {
		go reg.start(ctx)
	}

	select {
	case <-reg.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if reg.startErr != nil {
		b.mu.Lock()
		delete(b.registrations, scope)
		b.mu.Unlock()
		reg.host.stop()
		return nil, reg.startErr
	}
	return reg, nil
}

// GetRegistration implements platform.Platform
func (b *Browser) GetRegistration(_ context.Context, scope string) (platform.Registration, error) {
	reg := b.registration(scope)
	if reg == nil {
		return nil, nil
	}
	return reg, nil
}

// Registration returns the concrete registration for scope, or nil
func (b *Browser) Registration(scope string) *Registration {
	return b.registration(scope)
}

func (b *Browser) registration(scope string) *Registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registrations[scope]
}

// ShowNotification implements platform.Platform for notifications raised
// directly by the application view.
func (b *Browser) ShowNotification(_ context.Context, title string, opts entities.NotificationOptions) error {
	if !b.notifications {
		return entities.ErrUnsupportedPlatform
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.permission.IsGranted() {
		return entities.ErrPermissionDenied
	}
	b.directNotification = append(b.directNotification, &Notification{id: uuid.NewString(), title: title, opts: opts})
	return nil
}

// DirectNotifications returns notifications raised from the application view
func (b *Browser) DirectNotifications() []*Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Notification, len(b.directNotification))
	copy(out, b.directNotification)
	return out
}

// Push delivers a push message to the handler registered under scope. It
// returns once the handler has finished with the event.
func (b *Browser) Push(ctx context.Context, scope string, data []byte) error {
	reg := b.registration(scope)
	if reg == nil {
		return fmt.Errorf("no registration for scope %s", scope)
	}
	if sub, _ := reg.subscription(); sub == nil {
		return errors.New("registration has no push subscription")
	}
	return reg.host.dispatch(ctx, worker.PushEvent{Data: data})
}

// Click delivers a notification click with the given action
func (b *Browser) Click(ctx context.Context, n *Notification, action string) error {
	reg := n.registration
	if reg == nil {
		return errors.New("notification was not shown by a background handler")
	}
	return reg.host.dispatch(ctx, worker.NotificationClickEvent{Notification: n, Action: action})
}

// Dismiss closes a notification as the user would, and tells the handler
func (b *Browser) Dismiss(ctx context.Context, n *Notification) error {
	reg := n.registration
	if reg == nil {
		return errors.New("notification was not shown by a background handler")
	}
	n.Close()
	return reg.host.dispatch(ctx, worker.NotificationCloseEvent{Notification: n})
}

// Close stops every hosted background handler
func (b *Browser) Close() {
	b.mu.Lock()
	regs := make([]*Registration, 0, len(b.registrations))
	for _, r := range b.registrations {
		regs = append(regs, r)
	}
	b.mu.Unlock()

	for _, r := range regs {
		r.host.stop()
	}
	log.Printf("[MEMORY_PLATFORM] Stopped %d background handler(s)", len(regs))
}
