package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"qwikswitch-bridge/internal/domain"
)

// DeviceClient is the outbound surface the dispatcher drives. Every call
// consumes one unit of rate-limited budget, whether it succeeds or not.
type DeviceClient interface {
	ControlDevice(ctx context.Context, deviceID string, level int) error
	DeviceStatuses(ctx context.Context) (domain.StatusMap, error)
}

type Config struct {
	WindowCapacity int           // max calls per window, default 30
	WindowDuration time.Duration // sliding window, default 60s
	MinSpacing     time.Duration // gap between consecutive calls, default 2s
}

func (c Config) withDefaults() Config {
	if c.WindowCapacity == 0 {
		c.WindowCapacity = 30
	}
	if c.WindowDuration == 0 {
		c.WindowDuration = time.Minute
	}
	if c.MinSpacing == 0 {
		c.MinSpacing = 2 * time.Second
	}
	return c
}

type kind int

const (
	kindCommand kind = iota
	kindPoll
)

// request is the envelope that flows through the queue. While queued it is
// mutated only under the queue mutex (debouncing swaps level and ticket in
// place); once popped it belongs to the dispatcher alone.
type request struct {
	kind        kind
	deviceID    string // empty for polls
	level       int
	submittedAt time.Time

	cmdTicket  *CommandTicket
	pollTicket *PollTicket
}

// Queue serializes every outbound QwikSwitch call behind one dispatcher:
// commands go before polls, the newest command per device wins, and nothing
// leaves faster than the rate gate allows.
//
// One instance is constructed per process and handed to every caller; there
// is no package-level singleton.
type Queue struct {
	client DeviceClient
	gate   *RateGate
	logger *slog.Logger

	mu          sync.Mutex
	commands    []*request          // command tier, FIFO
	pendingCmd  map[string]*request // deviceID -> queued, not yet dispatched
	inFlightCmd map[string]int      // deviceID -> dispatched, not yet resolved
	pendingPoll *request            // at most one queued poll

	wake chan struct{} // nudges the dispatcher after an enqueue
}

func New(client DeviceClient, cfg Config, logger *slog.Logger) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		client:      client,
		gate:        NewRateGate(cfg.WindowCapacity, cfg.WindowDuration, cfg.MinSpacing),
		logger:      logger,
		pendingCmd:  make(map[string]*request),
		inFlightCmd: make(map[string]int),
		wake:        make(chan struct{}, 1),
	}
}

// EnqueueCommand queues a set-level command for a device and returns a
// ticket for its outcome. A command already queued for the same device is
// superseded in place: the new command inherits its queue position and the
// old ticket resolves domain.ErrSuperseded. A command already in flight is
// never altered; the new one queues behind it independently.
//
// The call never blocks on the dispatcher; it is safe from any goroutine.
func (q *Queue) EnqueueCommand(deviceID string, level int) *CommandTicket {
	ticket := newCommandTicket()

	q.mu.Lock()
	if existing, ok := q.pendingCmd[deviceID]; ok {
		superseded := existing.cmdTicket
		existing.level = level
		existing.cmdTicket = ticket
		q.mu.Unlock()

		superseded.resolve(domain.ErrSuperseded)
		metricSuperseded.Inc()
		q.logger.Debug("command debounced", "device", deviceID, "level", level)
		return ticket
	}

	req := &request{
		kind:        kindCommand,
		deviceID:    deviceID,
		level:       level,
		submittedAt: time.Now(),
		cmdTicket:   ticket,
	}
	q.commands = append(q.commands, req)
	q.pendingCmd[deviceID] = req
	metricQueueDepth.Set(float64(q.depthLocked()))
	q.mu.Unlock()

	q.notify()
	return ticket
}

// EnqueuePoll queues a poll of all device statuses. While a poll is already
// queued the same ticket is returned, so any number of callers share one
// dispatched call. A poll already in flight is not reused; the new one
// queues for the next slot.
func (q *Queue) EnqueuePoll() *PollTicket {
	q.mu.Lock()
	if q.pendingPoll != nil {
		ticket := q.pendingPoll.pollTicket
		q.mu.Unlock()
		return ticket
	}

	req := &request{
		kind:        kindPoll,
		submittedAt: time.Now(),
		pollTicket:  newPollTicket(),
	}
	q.pendingPoll = req
	metricQueueDepth.Set(float64(q.depthLocked()))
	q.mu.Unlock()

	q.notify()
	return req.pollTicket
}

// Poll enqueues a poll and waits for its result.
func (q *Queue) Poll(ctx context.Context) (domain.StatusMap, error) {
	return q.EnqueuePoll().Wait(ctx)
}

// OutstandingCommand reports whether a command for the device is still
// queued or in flight. Entities consult this before letting polled state
// overwrite an optimistic value.
func (q *Queue) OutstandingCommand(deviceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pendingCmd[deviceID]; ok {
		return true
	}
	return q.inFlightCmd[deviceID] > 0
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) depthLocked() int {
	depth := len(q.commands)
	if q.pendingPoll != nil {
		depth++
	}
	return depth
}

// peek returns the head of the highest nonempty tier without removing it.
func (q *Queue) peek() *request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) > 0 {
		return q.commands[0]
	}
	return q.pendingPoll
}

// pop removes and returns the head request, marking commands in flight.
func (q *Queue) pop() *request {
	q.mu.Lock()
	defer q.mu.Unlock()

	var req *request
	switch {
	case len(q.commands) > 0:
		req = q.commands[0]
		q.commands = q.commands[1:]
		delete(q.pendingCmd, req.deviceID)
		q.inFlightCmd[req.deviceID]++
	case q.pendingPoll != nil:
		req = q.pendingPoll
		q.pendingPoll = nil
	}
	metricQueueDepth.Set(float64(q.depthLocked()))
	return req
}

// commandDone clears the in-flight mark for a dispatched command. Runs
// before the ticket resolves: once a waiter observes the outcome,
// OutstandingCommand no longer counts this command.
func (q *Queue) commandDone(deviceID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlightCmd[deviceID]--; q.inFlightCmd[deviceID] <= 0 {
		delete(q.inFlightCmd, deviceID)
	}
}
