package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/platform"
	"github.com/takutakahashi/agentapi-push/pkg/platform/memory"
	"github.com/takutakahashi/agentapi-push/pkg/relay"
)

const testOrigin = "https://app.example.com"

// recordingRelay is a Relay that records calls and can be told to fail
type recordingRelay struct {
	mu            sync.Mutex
	subscribes    []relay.SubscribeRequest
	unsubscribes  []relay.UnsubscribeRequest
	err           error
	onUnsubscribe func()
}

func (r *recordingRelay) Subscribe(_ context.Context, req relay.SubscribeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribes = append(r.subscribes, req)
	return r.err
}

func (r *recordingRelay) Unsubscribe(_ context.Context, req relay.UnsubscribeRequest) error {
	r.mu.Lock()
	r.unsubscribes = append(r.unsubscribes, req)
	hook := r.onUnsubscribe
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r.err
}

// blockingPlatform is a Platform whose push manager holds every create
// until release is closed. Unlike the memory browser it never reuses a
// subscription on its own, so each create it sees is a separate attempt.
type blockingPlatform struct {
	release chan struct{}
	entered chan struct{}

	creates  atomic.Int32
	inFlight atomic.Int32
	maxAlive atomic.Int32

	mu  sync.Mutex
	sub *entities.Subscription
}

func newBlockingPlatform() *blockingPlatform {
	return &blockingPlatform{release: make(chan struct{}), entered: make(chan struct{}, 64)}
}

func (p *blockingPlatform) SupportsBackgroundHandlers() bool     { return true }
func (p *blockingPlatform) SupportsPush() bool                   { return true }
func (p *blockingPlatform) SupportsNotifications() bool          { return true }
func (p *blockingPlatform) Permission() entities.PermissionState { return entities.PermissionGranted }

func (p *blockingPlatform) RequestPermission(_ context.Context) (entities.PermissionState, error) {
	return entities.PermissionGranted, nil
}

func (p *blockingPlatform) Register(_ context.Context, _, _ string) (platform.Registration, error) {
	return p, nil
}

func (p *blockingPlatform) GetRegistration(_ context.Context, _ string) (platform.Registration, error) {
	return p, nil
}

func (p *blockingPlatform) ShowNotification(_ context.Context, _ string, _ entities.NotificationOptions) error {
	return nil
}

func (p *blockingPlatform) ID() string                        { return "blocking" }
func (p *blockingPlatform) Scope() string                     { return DefaultScope }
func (p *blockingPlatform) PushManager() platform.PushManager { return p }

func (p *blockingPlatform) GetSubscription(_ context.Context) (*entities.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub, nil
}

func (p *blockingPlatform) Subscribe(_ context.Context, _ platform.SubscribeOptions) (*entities.Subscription, error) {
	n := p.creates.Add(1)
	alive := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxAlive.Load()
		if alive <= peak || p.maxAlive.CompareAndSwap(peak, alive) {
			break
		}
	}
	p.entered <- struct{}{}
	<-p.release

	sub := &entities.Subscription{
		Endpoint: fmt.Sprintf("https://push.example.com/%d", n),
		Keys:     entities.SubscriptionKeys{P256dh: []byte{4, 1}, Auth: []byte{2}},
	}
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	return sub, nil
}

func (p *blockingPlatform) Unsubscribe(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	existed := p.sub != nil
	p.sub = nil
	return existed, nil
}

func newTestBrowser(t *testing.T, opts ...memory.Option) *memory.Browser {
	t.Helper()
	b := memory.NewBrowser(testOrigin, opts...)
	t.Cleanup(b.Close)
	return b
}

func testVAPIDKey(t *testing.T) string {
	t.Helper()
	publicKey, _, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	return publicKey
}

func TestManager_CheckSupport(t *testing.T) {
	tests := []struct {
		name     string
		opts     []memory.Option
		expected bool
	}{
		{name: "full support", expected: true},
		{name: "no push", opts: []memory.Option{memory.WithoutPush()}, expected: false},
		{name: "no background handlers", opts: []memory.Option{memory.WithoutBackgroundHandlers()}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(newTestBrowser(t, tt.opts...), nil, Options{})
			assert.Equal(t, tt.expected, m.CheckSupport())
			assert.Equal(t, tt.expected, m.Initialize())
			assert.Equal(t, tt.expected, m.CheckSupport())
		})
	}
}

func TestManager_PermissionState(t *testing.T) {
	m := NewManager(newTestBrowser(t, memory.WithoutNotifications()), nil, Options{})
	assert.Equal(t, entities.PermissionUnsupported, m.PermissionState())

	result := m.RequestPermission(context.Background())
	assert.False(t, result.Granted)
	assert.Equal(t, entities.PermissionUnsupported, result.State)

	b := newTestBrowser(t, memory.WithPromptAnswer(entities.PermissionDenied))
	m = NewManager(b, nil, Options{})
	assert.Equal(t, entities.PermissionDefault, m.PermissionState())

	result = m.RequestPermission(context.Background())
	assert.False(t, result.Granted)
	assert.Equal(t, entities.PermissionDenied, result.State)
	assert.Equal(t, 1, b.Prompts())
}

func TestManager_RegisterBackgroundHandlerIsIdempotent(t *testing.T) {
	m := NewManager(newTestBrowser(t), nil, Options{})
	ctx := context.Background()

	first, err := m.RegisterBackgroundHandler(ctx)
	require.NoError(t, err)
	second, err := m.RegisterBackgroundHandler(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, DefaultScope, first.Scope())
}

func TestManager_RegisterBackgroundHandlerFailure(t *testing.T) {
	m := NewManager(newTestBrowser(t, memory.WithRegisterError(errors.New("script not found"))), nil, Options{})

	_, err := m.RegisterBackgroundHandler(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrRegistrationFailed)
	assert.Contains(t, err.Error(), "script not found")

	result := m.Subscribe(context.Background())
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "script not found")
}

func TestManager_SubscribeIsIdempotent(t *testing.T) {
	b := newTestBrowser(t)
	r := &recordingRelay{}
	m := NewManager(b, r, Options{ApplicationServerKey: testVAPIDKey(t)})
	ctx := context.Background()

	first := m.Subscribe(ctx)
	require.True(t, first.Success, first.Error)
	require.NotNil(t, first.Subscription)

	second := m.Subscribe(ctx)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, first.Subscription.Endpoint, second.Subscription.Endpoint)
	assert.Equal(t, 1, b.CreatedSubscriptions())
	assert.Equal(t, 1, b.Prompts())

	require.Len(t, r.subscribes, 2)
	p256dh, auth := first.Subscription.EncodedKeys()
	assert.Equal(t, first.Subscription.Endpoint, r.subscribes[0].Endpoint)
	assert.Equal(t, p256dh, r.subscribes[0].Keys.P256dh)
	assert.Equal(t, auth, r.subscribes[0].Keys.Auth)
}

func TestManager_SubscribeConcurrent(t *testing.T) {
	b := newTestBrowser(t)
	m := NewManager(b, nil, Options{})
	ctx := context.Background()

	const callers = 8
	results := make([]SubscribeResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Subscribe(ctx)
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		require.True(t, result.Success, result.Error)
		assert.Equal(t, results[0].Subscription.Endpoint, result.Subscription.Endpoint)
	}
	assert.Equal(t, 1, b.CreatedSubscriptions())
}

func TestManager_SubscribeSingleInFlightCreate(t *testing.T) {
	p := newBlockingPlatform()
	r := &recordingRelay{}
	m := NewManager(p, r, Options{})
	ctx := context.Background()

	const callers = 8
	results := make([]SubscribeResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Subscribe(ctx)
		}(i)
	}

	select {
	case <-p.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe never reached the push manager")
	}
	// give the other callers time to pile up behind the blocked create
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), p.inFlight.Load())
	close(p.release)
	wg.Wait()

	assert.Equal(t, int32(1), p.creates.Load())
	assert.Equal(t, int32(1), p.maxAlive.Load())
	for _, result := range results {
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "https://push.example.com/1", result.Subscription.Endpoint)
	}
}

func TestManager_SubscribeReplacesExpired(t *testing.T) {
	b := newTestBrowser(t)
	m := NewManager(b, nil, Options{})
	ctx := context.Background()

	first := m.Subscribe(ctx)
	require.True(t, first.Success, first.Error)
	expiry := time.Now().Add(time.Hour)
	first.Subscription.ExpirationTime = &expiry

	m.now = func() time.Time { return expiry.Add(time.Second) }
	second := m.Subscribe(ctx)
	require.True(t, second.Success, second.Error)
	assert.NotEqual(t, first.Subscription.Endpoint, second.Subscription.Endpoint)
	assert.Equal(t, 2, b.CreatedSubscriptions())
}

func TestManager_SubscribeFailures(t *testing.T) {
	tests := []struct {
		name    string
		opts    []memory.Option
		key     string
		wantErr error
	}{
		{name: "unsupported", opts: []memory.Option{memory.WithoutPush()}, wantErr: entities.ErrUnsupportedPlatform},
		{name: "permission denied", opts: []memory.Option{memory.WithPromptAnswer(entities.PermissionDenied)}, wantErr: entities.ErrPermissionDenied},
		{name: "push service error", opts: []memory.Option{memory.WithSubscribeError(errors.New("push service unavailable"))}, wantErr: entities.ErrSubscriptionFailed},
		{name: "malformed key", key: "not*base64!", wantErr: entities.ErrSubscriptionFailed},
		{name: "key of wrong shape", key: "AAAA", wantErr: entities.ErrSubscriptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBrowser(t, tt.opts...)
			r := &recordingRelay{}
			m := NewManager(b, r, Options{ApplicationServerKey: tt.key})

			result := m.Subscribe(context.Background())
			assert.False(t, result.Success)
			assert.Nil(t, result.Subscription)
			assert.Contains(t, result.Error, tt.wantErr.Error())
			assert.Empty(t, r.subscribes, "nothing should be relayed")
			assert.Equal(t, 0, b.CreatedSubscriptions())
		})
	}
}

func TestManager_RelayResilience(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := server.URL
	server.Close()

	tests := []struct {
		name  string
		relay Relay
	}{
		{name: "unreachable backend", relay: relay.NewClient(unreachable, relay.StaticToken("token"))},
		{name: "no token", relay: relay.NewClient(unreachable, relay.StaticToken(""))},
		{name: "failing relay", relay: &recordingRelay{err: entities.ErrRelayFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBrowser(t)
			m := NewManager(b, tt.relay, Options{})
			ctx := context.Background()

			subscribed := m.Subscribe(ctx)
			require.True(t, subscribed.Success, subscribed.Error)
			require.NotNil(t, subscribed.Subscription)

			require.NoError(t, b.Push(ctx, DefaultScope, []byte(`{"title":"Done","body":"Task finished"}`)))
			reg := b.Registration(DefaultScope)
			require.NotNil(t, reg)
			require.Len(t, reg.Notifications(), 1)
			assert.Equal(t, "Done", reg.Notifications()[0].Title())

			unsubscribed := m.Unsubscribe(ctx)
			assert.True(t, unsubscribed.Success, unsubscribed.Error)
			sub, err := m.CurrentSubscription(ctx)
			require.NoError(t, err)
			assert.Nil(t, sub)
		})
	}
}

func TestManager_UnsubscribeRelaysBeforeCancel(t *testing.T) {
	b := newTestBrowser(t)
	r := &recordingRelay{}
	m := NewManager(b, r, Options{})
	ctx := context.Background()

	subscribed := m.Subscribe(ctx)
	require.True(t, subscribed.Success, subscribed.Error)

	var stillSubscribed bool
	r.onUnsubscribe = func() {
		sub, err := b.Registration(DefaultScope).PushManager().GetSubscription(ctx)
		stillSubscribed = err == nil && sub != nil
	}

	result := m.Unsubscribe(ctx)
	require.True(t, result.Success, result.Error)
	assert.True(t, stillSubscribed, "relay should run before the local cancel")

	require.Len(t, r.unsubscribes, 1)
	p256dh, auth := subscribed.Subscription.EncodedKeys()
	assert.Equal(t, subscribed.Subscription.Endpoint, r.unsubscribes[0].Endpoint)
	assert.Equal(t, p256dh, r.unsubscribes[0].Keys.P256dh)
	assert.Equal(t, auth, r.unsubscribes[0].Keys.Auth)

	sub, err := m.CurrentSubscription(ctx)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestManager_UnsubscribeWithoutSubscription(t *testing.T) {
	tests := []struct {
		name     string
		opts     []memory.Option
		register bool
	}{
		{name: "no registration"},
		{name: "registered but not subscribed", register: true},
		{name: "unsupported", opts: []memory.Option{memory.WithoutPush()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingRelay{}
			m := NewManager(newTestBrowser(t, tt.opts...), r, Options{})
			ctx := context.Background()
			if tt.register {
				_, err := m.RegisterBackgroundHandler(ctx)
				require.NoError(t, err)
			}

			result := m.Unsubscribe(ctx)
			assert.True(t, result.Success)
			assert.Empty(t, result.Error)
			assert.Empty(t, r.unsubscribes)
		})
	}
}

func TestManager_ShowLocalNotificationPermissionGating(t *testing.T) {
	opts := entities.BuildNotificationOptions(entities.NotificationPayload{Body: "local", Tag: "local"})

	tests := []struct {
		name       string
		permission entities.PermissionState
		register   bool
		expected   bool
	}{
		{name: "default", permission: entities.PermissionDefault, expected: false},
		{name: "denied", permission: entities.PermissionDenied, expected: false},
		{name: "granted without registration", permission: entities.PermissionGranted, expected: true},
		{name: "granted with registration", permission: entities.PermissionGranted, register: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBrowser(t, memory.WithPermission(tt.permission))
			m := NewManager(b, nil, Options{})
			ctx := context.Background()
			if tt.register {
				_, err := m.RegisterBackgroundHandler(ctx)
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expected, m.ShowLocalNotification(ctx, "Hello", opts))
			assert.Equal(t, 0, b.Prompts(), "showing a notification never prompts")

			shown := len(b.DirectNotifications())
			if reg := b.Registration(DefaultScope); reg != nil {
				shown += len(reg.Notifications())
				if tt.expected {
					assert.Len(t, reg.Notifications(), 1, "registration display is preferred")
				}
			}
			if tt.expected {
				assert.Equal(t, 1, shown)
			} else {
				assert.Equal(t, 0, shown)
			}
		})
	}
}

func TestManager_ShowLocalNotificationUnsupported(t *testing.T) {
	m := NewManager(newTestBrowser(t, memory.WithoutNotifications()), nil, Options{})
	assert.False(t, m.ShowLocalNotification(context.Background(), "Hello", entities.NotificationOptions{}))
}
