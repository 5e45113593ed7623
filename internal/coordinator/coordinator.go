package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"qwikswitch-bridge/internal/domain"
)

// Poller is the slice of the dispatcher the coordinator drives. Queued
// polls are collapsed upstream, so calling Poll on every tick is safe even
// when cycles back up behind the rate gate.
type Poller interface {
	Poll(ctx context.Context) (domain.StatusMap, error)
}

// Listener receives the result of each successful poll cycle.
type Listener interface {
	ApplyStatuses(statuses domain.StatusMap)
}

// Coordinator runs the periodic status poll and fans each result out to
// every subscribed listener. A failed cycle is logged and skipped; the next
// poll happens at the normal interval.
type Coordinator struct {
	poller   Poller
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	data      domain.StatusMap
	listeners []Listener
}

func New(poller Poller, interval time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		poller:   poller,
		interval: interval,
		logger:   logger,
	}
}

// Subscribe registers a listener for future poll results.
func (c *Coordinator) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Data returns a copy of the last successful poll result.
func (c *Coordinator) Data() domain.StatusMap {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := make(domain.StatusMap, len(c.data))
	for id, status := range c.data {
		data[id] = status
	}
	return data
}

// Refresh performs one poll cycle and distributes the result.
func (c *Coordinator) Refresh(ctx context.Context) error {
	statuses, err := c.poller.Poll(ctx)
	if err != nil {
		return fmt.Errorf("polling device statuses: %w", err)
	}

	c.mu.Lock()
	c.data = statuses
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.ApplyStatuses(statuses)
	}

	c.logger.Debug("poll cycle complete", "devices", len(statuses))
	return nil
}

// Run polls at the configured interval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("coordinator started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("poll cycle failed", "error", err)
			}
		}
	}
}
