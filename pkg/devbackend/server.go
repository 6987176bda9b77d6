// Package devbackend is a development stand-in for the relay backend. It
// keeps subscriptions in memory, keyed by bearer token and endpoint.
package devbackend

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/takutakahashi/agentapi-push/pkg/relay"
)

// ListPath lists the caller's stored subscriptions
const ListPath = "/api/notifications/push/subscriptions"

// Record is a stored subscription
type Record struct {
	ID             string     `json:"id" yaml:"id"`
	Endpoint       string     `json:"endpoint" yaml:"endpoint"`
	Keys           relay.Keys `json:"keys" yaml:"keys"`
	ExpirationTime *int64     `json:"expirationTime" yaml:"expirationTime"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Options configures the server
type Options struct {
	// Tokens lists the accepted bearer tokens. Empty accepts any token.
	Tokens  []string
	Verbose bool
}

// Server serves the relay endpoints
type Server struct {
	echo   *echo.Echo
	tokens map[string]bool

	mu   sync.RWMutex
	subs map[string]map[string]Record
}

// NewServer creates a new development backend
func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(io.Discard)
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		tokens: make(map[string]bool),
		subs:   make(map[string]map[string]Record),
	}
	for _, token := range opts.Tokens {
		if token != "" {
			s.tokens[token] = true
		}
	}

	if opts.Verbose {
		e.Use(loggingMiddleware())
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auth := s.authMiddleware()
	s.echo.GET(relay.StatusPath, s.Status, auth)
	s.echo.POST(relay.SubscribePath, s.Subscribe, auth)
	s.echo.POST(relay.UnsubscribePath, s.Unsubscribe, auth)
	s.echo.GET(ListPath, s.List, auth)
}

// Handler returns the HTTP handler, for httptest servers
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	log.Printf("[DEV_BACKEND] Listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Subscriptions returns the records stored for token, ordered by creation
func (s *Server) Subscriptions(token string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.subs[token]))
	for _, r := range s.subs[token] {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" || (len(s.tokens) > 0 && !s.tokens[token]) {
				log.Printf("[DEV_BACKEND] Authentication failed from %s", c.RealIP())
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			c.Set("token", token)
			return next(c)
		}
	}
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func tokenFrom(c echo.Context) string {
	token, _ := c.Get("token").(string)
	return token
}

// Status handles GET /api/notifications/push/status
func (s *Server) Status(c echo.Context) error {
	s.mu.RLock()
	subscribed := len(s.subs[tokenFrom(c)]) > 0
	s.mu.RUnlock()

	return c.JSON(http.StatusOK, relay.StatusResponse{IsSubscribed: subscribed})
}

// Subscribe handles POST /api/notifications/push/subscribe
func (s *Server) Subscribe(c echo.Context) error {
	var req relay.SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Endpoint is required")
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Keys with p256dh and auth are required")
	}

	token := tokenFrom(c)
	now := time.Now()

	s.mu.Lock()
	userSubs, ok := s.subs[token]
	if !ok {
		userSubs = make(map[string]Record)
		s.subs[token] = userSubs
	}
	record, exists := userSubs[req.Endpoint]
	if !exists {
		record = Record{ID: uuid.NewString(), Endpoint: req.Endpoint, CreatedAt: now}
	}
	record.Keys = req.Keys
	record.ExpirationTime = req.ExpirationTime
	record.UpdatedAt = now
	userSubs[req.Endpoint] = record
	s.mu.Unlock()

	if exists {
		log.Printf("[DEV_BACKEND] Updated subscription %s", record.ID)
	} else {
		log.Printf("[DEV_BACKEND] Stored subscription %s for %s", record.ID, req.Endpoint)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"subscription_id": record.ID,
	})
}

// Unsubscribe handles POST /api/notifications/push/unsubscribe
func (s *Server) Unsubscribe(c echo.Context) error {
	var req relay.UnsubscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Endpoint is required")
	}

	token := tokenFrom(c)

	s.mu.Lock()
	_, ok := s.subs[token][req.Endpoint]
	if ok {
		delete(s.subs[token], req.Endpoint)
		if len(s.subs[token]) == 0 {
			delete(s.subs, token)
		}
	}
	s.mu.Unlock()

	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Subscription not found")
	}
	log.Printf("[DEV_BACKEND] Removed subscription for %s", req.Endpoint)

	return c.JSON(http.StatusOK, map[string]bool{
		"success": true,
	})
}

// List handles GET /api/notifications/push/subscriptions
func (s *Server) List(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Subscriptions(tokenFrom(c)))
}

func loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Printf("[DEV_BACKEND] %s %s %d %v", c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
