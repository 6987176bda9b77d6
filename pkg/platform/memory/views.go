package memory

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/worker"
)

// View is an open application window
type View struct {
	id      string
	browser *Browser

	mu         sync.Mutex
	url        string
	focused    bool
	controller *Registration
	history    []string
}

// OpenView opens a window at rawURL, resolved against the browser origin
func (b *Browser) OpenView(rawURL string) *View {
	v := &View{id: uuid.NewString(), browser: b, url: b.resolve(rawURL)}
	v.history = append(v.history, v.url)

	b.mu.Lock()
	b.views = append(b.views, v)
	b.mu.Unlock()
	return v
}

// Views returns all open windows
func (b *Browser) Views() []*View {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*View, len(b.views))
	copy(out, b.views)
	return out
}

func (b *Browser) resolve(rawURL string) string {
	base, err := url.Parse(b.origin)
	if err != nil {
		return rawURL
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return base.ResolveReference(ref).String()
}

func (b *Browser) focus(target *View) {
	b.mu.Lock()
	views := make([]*View, len(b.views))
	copy(views, b.views)
	b.mu.Unlock()

	for _, v := range views {
		v.mu.Lock()
		v.focused = v == target
		v.mu.Unlock()
	}
}

// ID returns the window identifier
func (v *View) ID() string {
	return v.id
}

// URL implements worker.Client
func (v *View) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

// Path returns the path component of the current URL
func (v *View) Path() string {
	u, err := url.Parse(v.URL())
	if err != nil {
		return ""
	}
	return u.Path
}

// History returns every URL the window has shown, oldest first
func (v *View) History() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.history))
	copy(out, v.history)
	return out
}

// Focused reports whether the window has focus
func (v *View) Focused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.focused
}

// Controlled reports whether a background handler controls the window
func (v *View) Controlled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.controller != nil
}

// Navigate implements worker.Client. Only controlled windows can be
// navigated by a background handler.
func (v *View) Navigate(ctx context.Context, rawURL string) (worker.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := v.browser.resolve(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.controller == nil {
		return nil, errors.New("window is not controlled by a background handler")
	}
	v.url = target
	v.history = append(v.history, target)
	return v, nil
}

// Focus implements worker.Client
func (v *View) Focus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.browser.focus(v)
	return nil
}

// clients implements worker.Clients over the browser's windows
type clients struct {
	browser *Browser
	reg     *Registration
}

func (c *clients) Claim(_ context.Context) error {
	for _, v := range c.browser.Views() {
		v.mu.Lock()
		v.controller = c.reg
		v.mu.Unlock()
	}
	return nil
}

func (c *clients) MatchAll(_ context.Context) ([]worker.Client, error) {
	views := c.browser.Views()
	out := make([]worker.Client, 0, len(views))
	for _, v := range views {
		out = append(out, v)
	}
	return out, nil
}

func (c *clients) OpenWindow(_ context.Context, rawURL string) (worker.Client, error) {
	v := c.browser.OpenView(rawURL)
	v.mu.Lock()
	v.controller = c.reg
	v.mu.Unlock()
	c.browser.focus(v)
	return v, nil
}

// Notification is a notification on screen
type Notification struct {
	id           string
	title        string
	opts         entities.NotificationOptions
	registration *Registration

	mu     sync.Mutex
	closed bool
}

// ID returns the notification identifier
func (n *Notification) ID() string {
	return n.id
}

// Title implements worker.Notification
func (n *Notification) Title() string {
	return n.title
}

// Data implements worker.Notification
func (n *Notification) Data() entities.NotificationData {
	return n.opts.Data
}

// Options returns the options the notification was shown with
func (n *Notification) Options() entities.NotificationOptions {
	return n.opts
}

// Closed reports whether the notification was closed
func (n *Notification) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Close implements worker.Notification
func (n *Notification) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	if n.registration != nil {
		n.registration.removeNotification(n.id)
	}
}
