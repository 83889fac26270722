package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/i474232898/weather-locator/internal/weather"
)

// ErrNoPosition is reported for a fix request while no position is configured.
var ErrNoPosition = errors.New("device position unavailable")

// FixedDevice is a LocationManager with a configurable position and
// permission. It stands in for real hardware on servers and in tests.
// Events are delivered in the order they were raised.
type FixedDevice struct {
	mu       sync.Mutex
	status   AuthorizationStatus
	grant    AuthorizationStatus
	position *weather.Coordinate
	failure  error
	queue    []Event

	wake chan struct{}
	out  chan Event
	done chan struct{}
	once sync.Once
}

// NewFixedDevice creates a device with the given permission state. grant is
// the status the "user" picks when authorization is requested. position may
// be nil.
func NewFixedDevice(status, grant AuthorizationStatus, position *weather.Coordinate) *FixedDevice {
	d := &FixedDevice{
		status: status,
		grant:  grant,
		wake:   make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	if position != nil {
		p := *position
		d.position = &p
	}
	go d.pump()
	return d
}

func (d *FixedDevice) AuthorizationStatus() AuthorizationStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// RequestAuthorization prompts the "user" once; the answer arrives as an
// authorization-changed event.
func (d *FixedDevice) RequestAuthorization() {
	d.mu.Lock()
	if d.status != StatusNotDetermined {
		d.mu.Unlock()
		return
	}
	d.status = d.grant
	ev := Event{Kind: EventAuthorizationChanged, Status: d.status}
	d.mu.Unlock()
	d.emit(ev)
}

// RequestLocation delivers one fix. It fails with weather.ErrPermissionDenied
// unless location access is authorized, and with ErrNoPosition when no
// position is set.
func (d *FixedDevice) RequestLocation() {
	d.mu.Lock()
	var ev Event
	switch {
	case !d.status.Authorized():
		ev = Event{Kind: EventLocationFailed, Err: weather.NewError(weather.ErrPermissionDenied, "request location",
			fmt.Errorf("authorization is %s", d.status))}
	case d.failure != nil:
		ev = Event{Kind: EventLocationFailed, Err: d.failure}
	case d.position == nil:
		ev = Event{Kind: EventLocationFailed, Err: ErrNoPosition}
	default:
		ev = Event{Kind: EventLocation, Coordinate: *d.position}
	}
	d.mu.Unlock()
	d.emit(ev)
}

func (d *FixedDevice) Events() <-chan Event {
	return d.out
}

// MoveTo changes the position reported by later fixes.
func (d *FixedDevice) MoveTo(c weather.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = &c
	d.failure = nil
}

// FailWith makes later fixes fail with err; nil clears it.
func (d *FixedDevice) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failure = err
}

// SetAuthorization changes the permission, as the user would in system
// settings, and raises an authorization-changed event.
func (d *FixedDevice) SetAuthorization(status AuthorizationStatus) {
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
	d.emit(Event{Kind: EventAuthorizationChanged, Status: status})
}

// Close stops event delivery and closes the event channel.
func (d *FixedDevice) Close() {
	d.once.Do(func() { close(d.done) })
}

func (d *FixedDevice) emit(ev Event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *FixedDevice) pump() {
	defer close(d.out)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.done:
				return
			}
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		select {
		case d.out <- ev:
		case <-d.done:
			return
		}
	}
}
