package statesync

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// DefaultPollSchedule re-queries the backend every five minutes
const DefaultPollSchedule = "@every 5m"

var pollParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StartPolling re-queries backend status on the given cron schedule, which
// may be a five-field expression or a descriptor such as "@every 1m".
// Starting again replaces the previous schedule.
func (s *Store) StartPolling(spec string) error {
	if spec == "" {
		spec = DefaultPollSchedule
	}

	c := cron.New(cron.WithParser(pollParser))
	if _, err := c.AddFunc(spec, func() {
		s.RefreshStatus(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	previous := s.poller
	s.poller = c
	s.mu.Unlock()

	if previous != nil {
		<-previous.Stop().Done()
	}
	c.Start()
	log.Printf("[STATESYNC] Polling backend status (%s)", spec)
	return nil
}

// StopPolling stops the poller and waits for a running refresh to finish
func (s *Store) StopPolling() {
	s.mu.Lock()
	c := s.poller
	s.poller = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Printf("[STATESYNC] Stopped polling")
}
