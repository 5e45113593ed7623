package entity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"qwikswitch-bridge/internal/domain"
	"qwikswitch-bridge/internal/queue"
)

// Commander is what entities need from the dispatcher.
type Commander interface {
	EnqueueCommand(deviceID string, level int) *queue.CommandTicket
	OutstandingCommand(deviceID string) bool
}

// Reconcile decides what an entity displays after a poll delivers an
// authoritative value. While a command for the device is still queued or in
// flight, the polled value is stale relative to that intent and the
// optimistic value stands; otherwise polled truth wins. This keeps the UI
// from flickering back when a poll races a command.
func Reconcile(displayed, polled int, outstandingCommand bool) int {
	if outstandingCommand {
		return displayed
	}
	return polled
}

// Entity tracks one device with optimistic updates: Set shows the requested
// value immediately, polls reconcile it with remote truth later.
type Entity struct {
	deviceID string
	queue    Commander
	logger   *slog.Logger

	mu         sync.Mutex
	displayed  int
	lastPolled int
	known      bool // false until the first command or poll touches this device
}

func newEntity(deviceID string, q Commander, logger *slog.Logger) *Entity {
	return &Entity{deviceID: deviceID, queue: q, logger: logger}
}

func (e *Entity) DeviceID() string {
	return e.deviceID
}

// Set enqueues a level command and displays the value optimistically before
// it resolves. The returned ticket reports the eventual outcome; the entity
// also logs failures itself, so fire-and-forget callers lose nothing.
func (e *Entity) Set(level int) *queue.CommandTicket {
	e.mu.Lock()
	e.displayed = level
	e.known = true
	e.mu.Unlock()

	ticket := e.queue.EnqueueCommand(e.deviceID, level)
	go e.observe(ticket, level)
	return ticket
}

func (e *Entity) observe(ticket *queue.CommandTicket, level int) {
	err := ticket.Wait(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSuperseded):
		e.logger.Debug("command superseded", "device", e.deviceID, "level", level)
	default:
		e.logger.Error("command failed", "device", e.deviceID, "level", level, "error", err)
	}
}

// ApplyStatuses reconciles one poll result into the displayed value. It
// implements the coordinator's Listener interface.
func (e *Entity) ApplyStatuses(statuses domain.StatusMap) {
	status, ok := statuses[e.deviceID]
	if !ok {
		return
	}

	outstanding := e.queue.OutstandingCommand(e.deviceID)

	e.mu.Lock()
	e.lastPolled = status.Value
	e.displayed = Reconcile(e.displayed, status.Value, outstanding)
	e.known = true
	e.mu.Unlock()
}

// Value returns the currently displayed level, and false when the device
// has never been commanded or polled.
func (e *Entity) Value() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayed, e.known
}

// LastPolled returns the most recent authoritative value.
func (e *Entity) LastPolled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPolled
}

// Relay is an on/off device; on maps to level 100.
type Relay struct {
	*Entity
}

func NewRelay(deviceID string, q Commander, logger *slog.Logger) *Relay {
	return &Relay{Entity: newEntity(deviceID, q, logger)}
}

func (r *Relay) TurnOn() *queue.CommandTicket {
	return r.Set(100)
}

func (r *Relay) TurnOff() *queue.CommandTicket {
	return r.Set(0)
}

func (r *Relay) IsOn() bool {
	level, _ := r.Value()
	return level > 0
}

// Dimmer is a device with a 0..100 brightness level.
type Dimmer struct {
	*Entity
}

func NewDimmer(deviceID string, q Commander, logger *slog.Logger) *Dimmer {
	return &Dimmer{Entity: newEntity(deviceID, q, logger)}
}

func (d *Dimmer) SetBrightness(level int) *queue.CommandTicket {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return d.Set(level)
}

func (d *Dimmer) Brightness() int {
	level, _ := d.Value()
	return level
}

func (d *Dimmer) IsOn() bool {
	return d.Brightness() > 0
}

// FromStatuses builds entities for every device in a poll result, split by
// device class. Unknown classes are skipped.
func FromStatuses(statuses domain.StatusMap, q Commander, logger *slog.Logger) ([]*Relay, []*Dimmer) {
	var relays []*Relay
	var dimmers []*Dimmer

	for id, status := range statuses {
		switch status.Class {
		case domain.ClassRelay:
			relay := NewRelay(id, q, logger)
			relay.ApplyStatuses(statuses)
			relays = append(relays, relay)
		case domain.ClassDimmer:
			dimmer := NewDimmer(id, q, logger)
			dimmer.ApplyStatuses(statuses)
			dimmers = append(dimmers, dimmer)
		default:
			logger.Debug("skipping device with unknown class", "device", id)
		}
	}

	return relays, dimmers
}
