package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-locator/internal/device"
	"github.com/i474232898/weather-locator/internal/settings"
	"github.com/i474232898/weather-locator/internal/store"
	"github.com/i474232898/weather-locator/internal/weather"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const waitFor = time.Second

// manualDevice never answers on its own; the test raises events explicitly.
type manualDevice struct {
	mu           sync.Mutex
	status       device.AuthorizationStatus
	authRequests int
	fixRequests  int
	events       chan device.Event
}

func newManualDevice(status device.AuthorizationStatus) *manualDevice {
	return &manualDevice{status: status, events: make(chan device.Event, 64)}
}

func (d *manualDevice) AuthorizationStatus() device.AuthorizationStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *manualDevice) RequestAuthorization() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authRequests++
}

func (d *manualDevice) RequestLocation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fixRequests++
}

func (d *manualDevice) Events() <-chan device.Event { return d.events }

func (d *manualDevice) fixes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fixRequests
}

func (d *manualDevice) authorize(status device.AuthorizationStatus) {
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
	d.events <- device.Event{Kind: device.EventAuthorizationChanged, Status: status}
}

func (d *manualDevice) fix(c weather.Coordinate) {
	d.events <- device.Event{Kind: device.EventLocation, Coordinate: c}
}

// countingFetcher returns a snapshot named after the requested coordinate.
type countingFetcher struct {
	calls    atomic.Int32
	err      error
	gate     chan struct{}
	searched atomic.Int32
}

func (f *countingFetcher) FetchWeather(ctx context.Context, q weather.LocationQuery, s weather.ResolutionSettings) (weather.Snapshot, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return weather.Snapshot{}, ctx.Err()
		}
	}
	if f.err != nil {
		return weather.Snapshot{}, f.err
	}
	return weather.Snapshot{Name: q.String(), Coordinate: q.Coordinate()}, nil
}

func (f *countingFetcher) Search(_ context.Context, text string, _ weather.ResolutionSettings) (weather.Snapshot, error) {
	f.searched.Add(1)
	if f.err != nil {
		return weather.Snapshot{}, f.err
	}
	return weather.Snapshot{Name: text}, nil
}

type harness struct {
	dev      *manualDevice
	fetcher  *countingFetcher
	settings *settings.Store
	tracker  *Tracker
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func start(t *testing.T, status device.AuthorizationStatus, fetcher *countingFetcher, kv store.KV) *harness {
	t.Helper()
	if kv == nil {
		kv = store.NewMemoryStore()
	}
	h := &harness{
		dev:      newManualDevice(status),
		fetcher:  fetcher,
		settings: settings.New(kv, quietLogger),
		stopped:  make(chan struct{}),
	}
	changed, unsubscribe := h.settings.Subscribe()
	h.tracker = New(h.dev, fetcher, h.settings, changed, quietLogger)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = h.tracker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.stopped
		unsubscribe()
	})
	return h
}

func TestAuthorizedStartRequestsFix(t *testing.T) {
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, nil)

	require.Eventually(t, func() bool { return h.dev.fixes() == 1 }, waitFor, time.Millisecond)
	st := h.tracker.State()
	assert.True(t, st.IsFetching)
	assert.False(t, st.PermissionDenied)
}

func TestDeniedStartStaysIdle(t *testing.T) {
	for _, status := range []device.AuthorizationStatus{device.StatusDenied, device.StatusRestricted, device.AuthorizationStatus(42)} {
		t.Run(status.String(), func(t *testing.T) {
			h := start(t, status, &countingFetcher{}, nil)

			require.Eventually(t, func() bool { return h.tracker.State().PermissionDenied }, waitFor, time.Millisecond)
			assert.False(t, h.tracker.State().IsFetching)
			assert.Zero(t, h.dev.fixes())
		})
	}
}

func TestNotDeterminedRequestsAuthorizationThenFetches(t *testing.T) {
	h := start(t, device.StatusNotDetermined, &countingFetcher{}, nil)

	require.Eventually(t, func() bool {
		h.dev.mu.Lock()
		defer h.dev.mu.Unlock()
		return h.dev.authRequests == 1
	}, waitFor, time.Millisecond)
	assert.Zero(t, h.dev.fixes())

	h.dev.authorize(device.StatusAuthorizedAlways)
	require.Eventually(t, func() bool { return h.dev.fixes() == 1 }, waitFor, time.Millisecond)
	assert.False(t, h.tracker.State().PermissionDenied)
}

func TestAuthorizationRevokedSetsDenied(t *testing.T) {
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, nil)
	require.Eventually(t, func() bool { return h.dev.fixes() == 1 }, waitFor, time.Millisecond)

	h.dev.authorize(device.StatusDenied)
	require.Eventually(t, func() bool { return h.tracker.State().PermissionDenied }, waitFor, time.Millisecond)
}

func TestFixPublishesPersistsAndFetches(t *testing.T) {
	kv := store.NewMemoryStore()
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, kv)
	c := weather.Coordinate{Latitude: 40.75, Longitude: -73.99}

	h.dev.fix(c)
	require.Eventually(t, func() bool {
		st := h.tracker.State()
		return st.CurrentSnapshot != nil
	}, waitFor, time.Millisecond)

	st := h.tracker.State()
	require.NotNil(t, st.LastKnownCoordinate)
	assert.Equal(t, c, *st.LastKnownCoordinate)
	require.NotNil(t, st.LastPersistedCoordinate)
	assert.Equal(t, c, *st.LastPersistedCoordinate)
	assert.False(t, st.IsFetching)
	assert.Equal(t, c, st.CurrentSnapshot.Coordinate)
	assert.EqualValues(t, 1, h.fetcher.calls.Load())

	persisted, ok := settings.New(kv, quietLogger).LastCoordinate()
	require.True(t, ok)
	assert.Equal(t, c, persisted)
}

func TestIdenticalFixesFetchOnce(t *testing.T) {
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, nil)
	c := weather.Coordinate{Latitude: 51.5, Longitude: -0.12}

	h.dev.fix(c)
	h.dev.fix(c)
	require.Eventually(t, func() bool { return h.tracker.State().CurrentSnapshot != nil }, waitFor, time.Millisecond)

	// A third fix travels through the same queue, so once it is published
	// the second one has been handled as well.
	moved := weather.Coordinate{Latitude: 51.5, Longitude: -0.12000001}
	h.dev.fix(moved)
	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 2 }, waitFor, time.Millisecond)

	st := h.tracker.State()
	require.NotNil(t, st.LastKnownCoordinate)
	assert.Equal(t, moved, *st.LastKnownCoordinate)
}

func TestAlreadyPersistedFixDoesNotFetch(t *testing.T) {
	kv := store.NewMemoryStore()
	c := weather.Coordinate{Latitude: 1.25, Longitude: 2.5}
	require.NoError(t, settings.New(kv, quietLogger).SetLastCoordinate(c))

	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, kv)
	require.Eventually(t, func() bool { return h.tracker.State().IsFetching }, waitFor, time.Millisecond)

	h.dev.fix(c)
	require.Eventually(t, func() bool {
		st := h.tracker.State()
		return st.LastKnownCoordinate != nil && !st.IsFetching
	}, waitFor, time.Millisecond)

	// Let any wrongly started fetch get scheduled before checking.
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, h.fetcher.calls.Load())
	assert.Nil(t, h.tracker.State().CurrentSnapshot)
}

func TestFixFailureClearsFetchingOnly(t *testing.T) {
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, nil)
	c := weather.Coordinate{Latitude: 10, Longitude: 10}
	h.dev.fix(c)
	require.Eventually(t, func() bool { return h.tracker.State().CurrentSnapshot != nil }, waitFor, time.Millisecond)

	h.tracker.RequestFix()
	require.Eventually(t, func() bool { return h.tracker.State().IsFetching }, waitFor, time.Millisecond)

	h.dev.events <- device.Event{Kind: device.EventLocationFailed, Err: errors.New("kCLErrorLocationUnknown")}
	require.Eventually(t, func() bool { return !h.tracker.State().IsFetching }, waitFor, time.Millisecond)

	st := h.tracker.State()
	require.NotNil(t, st.LastKnownCoordinate)
	assert.Equal(t, c, *st.LastKnownCoordinate)
	assert.False(t, st.PermissionDenied)
}

func TestFetchingSpansRequestToCompletion(t *testing.T) {
	h := start(t, device.StatusDenied, &countingFetcher{}, nil)
	require.Eventually(t, func() bool { return h.tracker.State().PermissionDenied }, waitFor, time.Millisecond)
	assert.False(t, h.tracker.State().IsFetching)

	for i := 0; i < 5; i++ {
		h.tracker.RequestFix()
		require.Eventually(t, func() bool { return h.tracker.State().IsFetching }, waitFor, time.Millisecond)
		// Nothing has answered yet, so the flag must hold.
		time.Sleep(2 * time.Millisecond)
		assert.True(t, h.tracker.State().IsFetching)

		h.dev.fix(weather.Coordinate{Latitude: float64(i)})
		require.Eventually(t, func() bool { return !h.tracker.State().IsFetching }, waitFor, time.Millisecond)
	}
}

func TestFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	fetcher := &countingFetcher{}
	h := start(t, device.StatusAuthorizedWhenInUse, fetcher, nil)

	h.dev.fix(weather.Coordinate{Latitude: 1})
	require.Eventually(t, func() bool { return h.tracker.State().CurrentSnapshot != nil }, waitFor, time.Millisecond)
	before := h.tracker.State().CurrentSnapshot

	fetcher.err = weather.NewError(weather.ErrTransport, "fetch", errors.New("offline"))
	h.dev.fix(weather.Coordinate{Latitude: 2})
	require.Eventually(t, func() bool { return h.tracker.State().LastError != "" }, waitFor, time.Millisecond)

	st := h.tracker.State()
	assert.Equal(t, before, st.CurrentSnapshot)
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestSettingsChangeRequestsFreshFix(t *testing.T) {
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, nil)
	require.Eventually(t, func() bool { return h.dev.fixes() == 1 }, waitFor, time.Millisecond)

	metric := true
	_, err := h.settings.Update(settings.Update{UseMetricUnits: &metric})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.dev.fixes() == 2 }, waitFor, time.Millisecond)
	assert.True(t, h.tracker.State().IsFetching)
}

func TestSearchPublishesSnapshot(t *testing.T) {
	h := start(t, device.StatusDenied, &countingFetcher{}, nil)

	snap, err := h.tracker.Search(context.Background(), "Lisbon")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", snap.Name)

	st := h.tracker.State()
	require.NotNil(t, st.CurrentSnapshot)
	assert.Equal(t, "Lisbon", st.CurrentSnapshot.Name)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	fetcher := &countingFetcher{gate: make(chan struct{})}
	h := start(t, device.StatusAuthorizedWhenInUse, fetcher, nil)

	// The ambient fetch starts first and blocks on the gate.
	h.dev.fix(weather.Coordinate{Latitude: 7})
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, waitFor, time.Millisecond)

	// A newer manual search completes first.
	_, err := h.tracker.Search(context.Background(), "Oslo")
	require.NoError(t, err)
	require.Equal(t, "Oslo", h.tracker.State().CurrentSnapshot.Name)

	// The older ambient result must not overwrite it.
	close(fetcher.gate)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "Oslo", h.tracker.State().CurrentSnapshot.Name)
}

func TestWithFixedDevice(t *testing.T) {
	kv := store.NewMemoryStore()
	st := settings.New(kv, quietLogger)
	dev := device.NewFixedDevice(device.StatusNotDetermined, device.StatusAuthorizedWhenInUse, &weather.Coordinate{Latitude: 48.85, Longitude: 2.35})
	defer dev.Close()
	fetcher := &countingFetcher{}

	tr := New(dev, fetcher, st, nil, quietLogger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return tr.State().CurrentSnapshot != nil }, waitFor, time.Millisecond)
	assert.EqualValues(t, 1, fetcher.calls.Load())

	// Same position again: published, not fetched.
	tr.RequestFix()
	require.Eventually(t, func() bool { return !tr.State().IsFetching }, waitFor, time.Millisecond)

	dev.MoveTo(weather.Coordinate{Latitude: 48.86, Longitude: 2.35})
	tr.RequestFix()
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 2 }, waitFor, time.Millisecond)
}

// requestCountingDevice counts location requests made to a FixedDevice.
type requestCountingDevice struct {
	*device.FixedDevice
	requests atomic.Int32
}

func (d *requestCountingDevice) RequestLocation() {
	d.requests.Add(1)
	d.FixedDevice.RequestLocation()
}

func TestDeniedDeviceNeverPublishesAFix(t *testing.T) {
	st := settings.New(store.NewMemoryStore(), quietLogger)
	changed, unsubscribe := st.Subscribe()
	defer unsubscribe()
	dev := &requestCountingDevice{FixedDevice: device.NewFixedDevice(device.StatusDenied, device.StatusDenied, &weather.Coordinate{Latitude: 1, Longitude: 2})}
	defer dev.Close()
	fetcher := &countingFetcher{}

	tr := New(dev, fetcher, st, changed, quietLogger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool { return tr.State().PermissionDenied }, waitFor, time.Millisecond)

	metric := true
	_, err := st.Update(settings.Update{UseMetricUnits: &metric})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return dev.requests.Load() == 1 && !tr.State().IsFetching
	}, waitFor, time.Millisecond)

	tr.RequestFix()
	require.Eventually(t, func() bool {
		return dev.requests.Load() == 2 && !tr.State().IsFetching
	}, waitFor, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	state := tr.State()
	assert.True(t, state.PermissionDenied)
	assert.Nil(t, state.LastKnownCoordinate)
	assert.Nil(t, state.LastPersistedCoordinate)
	assert.Zero(t, fetcher.calls.Load())
	_, ok := st.LastCoordinate()
	assert.False(t, ok)
}

// readOnlyKV rejects every write.
type readOnlyKV struct {
	*store.MemoryStore
}

func (readOnlyKV) Set(string, string) error { return errors.New("disk full") }

func TestUnsavedFixIsNotReportedPersisted(t *testing.T) {
	h := start(t, device.StatusAuthorizedWhenInUse, &countingFetcher{}, readOnlyKV{store.NewMemoryStore()})
	c := weather.Coordinate{Latitude: 3, Longitude: 4}

	h.dev.fix(c)
	h.dev.fix(c)
	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 2 }, waitFor, time.Millisecond)

	st := h.tracker.State()
	require.NotNil(t, st.LastKnownCoordinate)
	assert.Equal(t, c, *st.LastKnownCoordinate)
	assert.Nil(t, st.LastPersistedCoordinate)
	_, ok := h.settings.LastCoordinate()
	assert.False(t, ok)
}
