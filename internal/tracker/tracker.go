// Package tracker owns the device-location permission flow and the single
// published "current weather" state.
//
// All device events, settings-changed signals and explicit requests are
// handled one at a time by the Run loop, so the compare-publish-persist
// sequence for a position fix never interleaves with another. Weather
// fetches run in their own goroutines and publish when they complete.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/i474232898/weather-locator/internal/device"
	"github.com/i474232898/weather-locator/internal/weather"
)

// Fetcher is the weather client used by the tracker.
type Fetcher interface {
	FetchWeather(ctx context.Context, q weather.LocationQuery, settings weather.ResolutionSettings) (weather.Snapshot, error)
	Search(ctx context.Context, text string, settings weather.ResolutionSettings) (weather.Snapshot, error)
}

// Settings is the part of the settings store the tracker needs.
type Settings interface {
	Snapshot() weather.ResolutionSettings
	LastCoordinate() (weather.Coordinate, bool)
	SetLastCoordinate(weather.Coordinate) error
}

// State is the observable tracker state. Values reachable from a State are
// never mutated after publication.
type State struct {
	LastKnownCoordinate     *weather.Coordinate `json:"lastKnownCoordinate,omitempty"`
	IsFetching              bool                `json:"isFetching"`
	PermissionDenied        bool                `json:"permissionDenied"`
	CurrentSnapshot         *weather.Snapshot   `json:"currentSnapshot,omitempty"`
	LastPersistedCoordinate *weather.Coordinate `json:"lastPersistedCoordinate,omitempty"`
	LastError               string              `json:"lastError,omitempty"`
}

type command int

const (
	cmdRecheck command = iota
	cmdRequestFix
)

// Tracker drives the weather client on the device's behalf.
type Tracker struct {
	device   device.LocationManager
	fetcher  Fetcher
	settings Settings
	changed  <-chan struct{}
	logger   *slog.Logger

	cmds chan command
	done chan struct{}

	mu    sync.RWMutex
	state State

	// issued numbers every fetch when it starts; applied is the number of
	// the newest fetch whose result was published. A completion older than
	// applied is discarded.
	issued  atomic.Uint64
	applied uint64

	fetchCtx context.Context
	wg       sync.WaitGroup
}

// New creates a Tracker. changed is the settings-changed signal and may be nil.
func New(dev device.LocationManager, fetcher Fetcher, settings Settings, changed <-chan struct{}, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		device:   dev,
		fetcher:  fetcher,
		settings: settings,
		changed:  changed,
		logger:   logger.With("component", "tracker"),
		cmds:     make(chan command, 16),
		done:     make(chan struct{}),
		fetchCtx: context.Background(),
	}
	if c, ok := settings.LastCoordinate(); ok {
		t.state.LastPersistedCoordinate = &c
	}
	return t
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Run checks the permission and then processes events until ctx is done.
// In-flight fetches are cancelled and waited for before Run returns.
func (t *Tracker) Run(ctx context.Context) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	t.fetchCtx = fetchCtx
	defer func() {
		cancel()
		t.wg.Wait()
		close(t.done)
	}()

	t.logger.Info("tracker started")
	t.checkAuthorization()

	events := t.device.Events()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker stopped")
			return nil

		case ev, ok := <-events:
			if !ok {
				t.logger.Warn("device event stream closed")
				events = nil
				continue
			}
			t.handleEvent(ev)

		case <-t.changed:
			t.logger.Info("settings changed; refreshing location")
			t.requestFix()

		case cmd := <-t.cmds:
			switch cmd {
			case cmdRecheck:
				t.checkAuthorization()
			case cmdRequestFix:
				t.requestFix()
			}
		}
	}
}

// Recheck re-runs the permission check.
func (t *Tracker) Recheck() { t.send(cmdRecheck) }

// RequestFix asks for a fresh one-shot position fix.
func (t *Tracker) RequestFix() { t.send(cmdRequestFix) }

func (t *Tracker) send(cmd command) {
	select {
	case t.cmds <- cmd:
	case <-t.done:
	}
}

// Search fetches weather for free text and publishes the result as the
// current snapshot. The error is returned to the caller; state is left
// untouched on failure apart from the recorded error.
func (t *Tracker) Search(ctx context.Context, text string) (weather.Snapshot, error) {
	gen := t.issued.Add(1)
	snap, err := t.fetcher.Search(ctx, text, t.settings.Snapshot())
	t.applyFetch(gen, snap, err, t.logger.With("search", text))
	return snap, err
}

func (t *Tracker) checkAuthorization() {
	status := t.device.AuthorizationStatus()
	t.logger.Debug("checking location authorization", "status", status.String())

	switch {
	case status == device.StatusNotDetermined:
		t.device.RequestAuthorization()
	case status.Authorized():
		t.mu.Lock()
		t.state.PermissionDenied = false
		t.mu.Unlock()
		t.requestFix()
	default:
		t.mu.Lock()
		t.state.PermissionDenied = true
		t.mu.Unlock()
	}
}

func (t *Tracker) requestFix() {
	t.mu.Lock()
	t.state.IsFetching = true
	t.mu.Unlock()
	t.device.RequestLocation()
}

func (t *Tracker) handleEvent(ev device.Event) {
	switch ev.Kind {
	case device.EventLocation:
		t.handleFix(ev.Coordinate)
	case device.EventLocationFailed:
		t.logger.Warn("location fix failed", "error", ev.Err)
		t.mu.Lock()
		t.state.IsFetching = false
		if errors.Is(ev.Err, weather.ErrPermissionDenied) {
			t.state.PermissionDenied = true
		}
		t.mu.Unlock()
	case device.EventAuthorizationChanged:
		t.checkAuthorization()
	}
}

// handleFix publishes c and starts a weather fetch when c differs from the
// persisted coordinate. Any difference counts; there is no tolerance.
func (t *Tracker) handleFix(c weather.Coordinate) {
	last, ok := t.settings.LastCoordinate()
	changed := !ok || last != c

	persisted := false
	if changed {
		if err := t.settings.SetLastCoordinate(c); err != nil {
			t.logger.Warn("could not persist coordinate", "coordinate", c.String(), "error", err)
		} else {
			persisted = true
		}
	}

	t.mu.Lock()
	t.state.LastKnownCoordinate = &c
	if persisted {
		saved := c
		t.state.LastPersistedCoordinate = &saved
	}
	t.state.IsFetching = false
	t.mu.Unlock()

	if !changed {
		t.logger.Debug("position unchanged; skipping weather fetch", "coordinate", c.String())
		return
	}
	t.startFetch(c)
}

func (t *Tracker) startFetch(c weather.Coordinate) {
	gen := t.issued.Add(1)
	settings := t.settings.Snapshot()
	log := t.logger.With("fetch_id", uuid.NewString(), "coordinate", c.String())
	log.Info("position changed; fetching weather")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		snap, err := t.fetcher.FetchWeather(t.fetchCtx, weather.ByCoordinate(c), settings)
		t.applyFetch(gen, snap, err, log)
	}()
}

func (t *Tracker) applyFetch(gen uint64, snap weather.Snapshot, err error, log *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		log.Warn("weather fetch failed", "error", err)
		t.state.LastError = err.Error()
		return
	}
	if gen < t.applied {
		log.Info("discarding stale weather result", "generation", gen, "published", t.applied)
		return
	}
	t.applied = gen
	t.state.CurrentSnapshot = &snap
	t.state.LastError = ""
}
