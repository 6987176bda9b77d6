// Package statesync bridges the subscription manager into a presentation
// layer: an observable State that tracks support, permission and whether the
// user is subscribed, reconciled against the backend's status.
package statesync

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/notification"
	"github.com/takutakahashi/agentapi-push/pkg/platform"
)

const (
	// MessageEnabled is the success outcome of Enable
	MessageEnabled = "Push notifications enabled"
	// MessageDisabled is the success outcome of Disable
	MessageDisabled = "Push notifications disabled"
)

// Manager is the part of notification.Manager the store drives
type Manager interface {
	CheckSupport() bool
	PermissionState() entities.PermissionState
	RequestPermission(ctx context.Context) notification.PermissionResult
	RegisterBackgroundHandler(ctx context.Context) (platform.Registration, error)
	CurrentSubscription(ctx context.Context) (*entities.Subscription, error)
	Subscribe(ctx context.Context) notification.SubscribeResult
	Unsubscribe(ctx context.Context) notification.UnsubscribeResult
}

// StatusSource answers whether the backend holds a subscription for the
// current user. *relay.Client satisfies it.
type StatusSource interface {
	Status(ctx context.Context) (bool, error)
}

// OutcomeKind classifies the result of a user action
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeError   OutcomeKind = "error"
)

// Outcome is the user-facing result of the last Enable or Disable
type Outcome struct {
	Kind    OutcomeKind `json:"kind" yaml:"kind"`
	Message string      `json:"message" yaml:"message"`
}

// State is what the presentation layer renders
type State struct {
	Supported  bool                     `json:"supported" yaml:"supported"`
	Permission entities.PermissionState `json:"permission" yaml:"permission"`
	Subscribed bool                     `json:"subscribed" yaml:"subscribed"`
	Loading    bool                     `json:"loading" yaml:"loading"`
	Outcome    *Outcome                 `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// Store holds State and notifies listeners when it changes
type Store struct {
	manager Manager
	status  StatusSource

	mu           sync.Mutex
	state        State
	version      uint64
	backendKnown bool
	listeners    map[int]func(State)
	nextListener int
	ready        chan struct{}
	initOnce     sync.Once
	poller       *cron.Cron

	// notifyMu orders listener calls; delivered is the newest version sent
	notifyMu  sync.Mutex
	delivered uint64
}

// NewStore creates a new store. status may be nil when there is no backend.
func NewStore(m Manager, status StatusSource) *Store {
	return &Store{
		manager:   m,
		status:    status,
		state:     State{Permission: entities.PermissionDefault},
		listeners: make(map[int]func(State)),
		ready:     make(chan struct{}),
	}
}

// Initialize reads support and permission synchronously, then reconciles
// the subscribed flag in the background from the platform and the backend.
// Ready is closed once both have answered. Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		supported := s.manager.CheckSupport()
		s.update(func(st *State) {
			st.Supported = supported
			st.Permission = s.manager.PermissionState()
		})

		if !supported {
			log.Printf("[STATESYNC] Push notifications not supported, skipping reconciliation")
			close(s.ready)
			return
		}

		go func() {
			defer close(s.ready)

			g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
			g.Go(func() error {
				s.probePlatform(gctx)
				return nil
			})
			g.Go(func() error {
				s.RefreshStatus(gctx)
				return nil
			})
			_ = g.Wait()
		}()
	})
}

// Ready is closed when Initialize has finished reconciling
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

func (s *Store) probePlatform(ctx context.Context) {
	if _, err := s.manager.RegisterBackgroundHandler(ctx); err != nil {
		log.Printf("[STATESYNC] Warning: failed to register background handler: %v", err)
		return
	}
	sub, err := s.manager.CurrentSubscription(ctx)
	if err != nil {
		log.Printf("[STATESYNC] Warning: failed to probe subscription: %v", err)
		return
	}

	s.mu.Lock()
	if s.backendKnown {
		s.mu.Unlock()
		return
	}
	s.state.Subscribed = sub != nil
	s.version++
	snapshot, version := s.state, s.version
	s.mu.Unlock()
	s.notify(snapshot, version)
}

// RefreshStatus asks the backend for the authoritative subscribed flag. An
// unreachable backend or a non-200 answer leaves the state untouched.
func (s *Store) RefreshStatus(ctx context.Context) {
	if s.status == nil {
		return
	}
	subscribed, err := s.status.Status(ctx)
	if err != nil {
		log.Printf("[STATESYNC] Warning: backend status unavailable: %v", err)
		return
	}

	s.mu.Lock()
	s.backendKnown = true
	changed := s.state.Subscribed != subscribed
	s.state.Subscribed = subscribed
	s.version++
	snapshot, version := s.state, s.version
	s.mu.Unlock()
	if changed {
		log.Printf("[STATESYNC] Backend reports subscribed=%t", subscribed)
	}
	s.notify(snapshot, version)
}

// Enable prompts for permission if needed and subscribes
func (s *Store) Enable(ctx context.Context) State {
	s.update(func(st *State) {
		st.Loading = true
		st.Outcome = nil
	})

	perm := s.manager.RequestPermission(ctx)
	if !perm.Granted {
		return s.update(func(st *State) {
			st.Loading = false
			st.Permission = perm.State
			st.Outcome = &Outcome{Kind: OutcomeError, Message: entities.ErrPermissionDenied.Error()}
		})
	}

	result := s.manager.Subscribe(ctx)
	return s.update(func(st *State) {
		st.Loading = false
		st.Permission = s.manager.PermissionState()
		if !result.Success {
			st.Outcome = &Outcome{Kind: OutcomeError, Message: result.Error}
			return
		}
		st.Subscribed = true
		st.Outcome = &Outcome{Kind: OutcomeSuccess, Message: MessageEnabled}
	})
}

// Disable unsubscribes
func (s *Store) Disable(ctx context.Context) State {
	s.update(func(st *State) {
		st.Loading = true
		st.Outcome = nil
	})

	result := s.manager.Unsubscribe(ctx)
	return s.update(func(st *State) {
		st.Loading = false
		if !result.Success {
			st.Outcome = &Outcome{Kind: OutcomeError, Message: result.Error}
			return
		}
		st.Subscribed = false
		st.Outcome = &Outcome{Kind: OutcomeSuccess, Message: MessageDisabled}
	})
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Listen registers fn to be called with every new state. Calls are
// serialized and never deliver a state older than one already delivered;
// fn must not call back into Enable, Disable or RefreshStatus. The
// returned function removes it.
func (s *Store) Listen(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) update(fn func(*State)) State {
	s.mu.Lock()
	fn(&s.state)
	s.version++
	snapshot, version := s.state, s.version
	s.mu.Unlock()
	s.notify(snapshot, version)
	return snapshot
}

func (s *Store) notify(st State, version uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.mu.Lock()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}
