package queue

import (
	"context"
	"time"
)

// Run is the dispatcher loop: one goroutine popping one request at a time,
// so the rate gate is enforced against a single clock. It returns when ctx
// is cancelled, after resolving every queued ticket with the ctx error so
// no caller blocks forever.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("dispatcher started",
		"window_capacity", q.gate.windowCapacity,
		"window_duration", q.gate.windowDuration,
		"min_spacing", q.gate.minSpacing,
	)
	defer q.shutdown(ctx.Err())

	for {
		req := q.peek()
		if req == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
			}
			continue
		}

		now := time.Now()
		if !q.gate.TryAcquire(now) {
			// Sleep until the gate opens without popping, then re-peek: a
			// command that arrives during the wait is served before a poll
			// that was already at the head.
			timer := time.NewTimer(q.gate.NextEligible(now).Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		req = q.pop()
		if req == nil {
			continue
		}
		q.gate.Record(now)
		q.dispatch(ctx, req)
	}
}

// dispatch invokes the remote call for one request and resolves its ticket.
// A failed call is delivered to the caller as-is: the dispatcher never
// retries, and the attempt has already been charged against the gate.
func (q *Queue) dispatch(ctx context.Context, req *request) {
	switch req.kind {
	case kindCommand:
		err := q.client.ControlDevice(ctx, req.deviceID, req.level)
		if err != nil {
			metricRemoteErrors.Inc()
			q.logger.Error("device command failed",
				"device", req.deviceID,
				"level", req.level,
				"error", err,
			)
		} else {
			q.logger.Debug("device command dispatched",
				"device", req.deviceID,
				"level", req.level,
				"queued_for", time.Since(req.submittedAt),
			)
		}
		q.commandDone(req.deviceID)
		req.cmdTicket.resolve(err)
		metricDispatched.WithLabelValues("command").Inc()

	case kindPoll:
		statuses, err := q.client.DeviceStatuses(ctx)
		if err != nil {
			metricRemoteErrors.Inc()
			q.logger.Error("status poll failed", "error", err)
		} else {
			q.logger.Debug("status poll dispatched", "devices", len(statuses))
		}
		req.pollTicket.resolve(statuses, err)
		metricDispatched.WithLabelValues("poll").Inc()
	}
}

// shutdown resolves everything still queued so waiters unblock.
func (q *Queue) shutdown(err error) {
	q.mu.Lock()
	commands := q.commands
	poll := q.pendingPoll
	q.commands = nil
	q.pendingCmd = make(map[string]*request)
	q.pendingPoll = nil
	metricQueueDepth.Set(0)
	q.mu.Unlock()

	for _, req := range commands {
		req.cmdTicket.resolve(err)
	}
	if poll != nil {
		poll.pollTicket.resolve(nil, err)
	}
	q.logger.Info("dispatcher stopped", "abandoned", len(commands))
}
