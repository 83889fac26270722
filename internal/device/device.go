// Package device models the platform location capability: permission
// status, one-shot position fixes and the asynchronous event stream through
// which results arrive.
package device

import (
	"fmt"
	"strings"

	"github.com/i474232898/weather-locator/internal/weather"
)

// AuthorizationStatus is the location permission reported by the platform.
type AuthorizationStatus int

const (
	StatusNotDetermined AuthorizationStatus = iota
	StatusRestricted
	StatusDenied
	StatusAuthorizedWhenInUse
	StatusAuthorizedAlways
)

func (s AuthorizationStatus) String() string {
	switch s {
	case StatusNotDetermined:
		return "not_determined"
	case StatusRestricted:
		return "restricted"
	case StatusDenied:
		return "denied"
	case StatusAuthorizedWhenInUse:
		return "authorized"
	case StatusAuthorizedAlways:
		return "authorized_always"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Authorized reports whether location fixes may be requested.
func (s AuthorizationStatus) Authorized() bool {
	return s == StatusAuthorizedWhenInUse || s == StatusAuthorizedAlways
}

// ParseAuthorizationStatus parses the names produced by String.
func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "not_determined", "":
		return StatusNotDetermined, nil
	case "restricted":
		return StatusRestricted, nil
	case "denied":
		return StatusDenied, nil
	case "authorized", "authorized_when_in_use":
		return StatusAuthorizedWhenInUse, nil
	case "authorized_always":
		return StatusAuthorizedAlways, nil
	default:
		return StatusNotDetermined, fmt.Errorf("unknown authorization status %q", s)
	}
}

// EventKind tells which member of an Event is meaningful.
type EventKind int

const (
	EventLocation EventKind = iota
	EventLocationFailed
	EventAuthorizationChanged
)

// Event is delivered on the manager's event channel.
type Event struct {
	Kind       EventKind
	Coordinate weather.Coordinate
	Err        error
	Status     AuthorizationStatus
}

// LocationManager is the platform location capability. Requests return
// immediately; their outcome is delivered later on Events.
type LocationManager interface {
	AuthorizationStatus() AuthorizationStatus
	RequestAuthorization()
	RequestLocation()
	Events() <-chan Event
}
