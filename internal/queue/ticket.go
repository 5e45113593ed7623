package queue

import (
	"context"

	"qwikswitch-bridge/internal/domain"
)

// CommandTicket reports the outcome of one enqueued device command. The
// outcome is assigned exactly once; any number of goroutines may Wait.
type CommandTicket struct {
	done chan struct{}
	err  error
}

func newCommandTicket() *CommandTicket {
	return &CommandTicket{done: make(chan struct{})}
}

func (t *CommandTicket) resolve(err error) {
	t.err = err
	close(t.done)
}

// Wait blocks until the command resolves or ctx is cancelled.
func (t *CommandTicket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.err
	}
}

// Done is closed once the command has resolved.
func (t *CommandTicket) Done() <-chan struct{} {
	return t.done
}

// PollTicket reports the outcome of a poll cycle. Because pending polls are
// shared, a single ticket usually has several waiters.
type PollTicket struct {
	done     chan struct{}
	statuses domain.StatusMap
	err      error
}

func newPollTicket() *PollTicket {
	return &PollTicket{done: make(chan struct{})}
}

func (t *PollTicket) resolve(statuses domain.StatusMap, err error) {
	t.statuses = statuses
	t.err = err
	close(t.done)
}

// Wait blocks until the poll resolves or ctx is cancelled.
func (t *PollTicket) Wait(ctx context.Context) (domain.StatusMap, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.statuses, t.err
	}
}

// Done is closed once the poll has resolved.
func (t *PollTicket) Done() <-chan struct{} {
	return t.done
}
