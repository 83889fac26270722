// Package settings exposes the user's persisted preferences and the last
// known device position on top of a scalar key-value store, and broadcasts a
// payload-free signal whenever the preferences are committed.
package settings

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/i474232898/weather-locator/internal/store"
	"github.com/i474232898/weather-locator/internal/weather"
)

// Persisted keys.
const (
	KeyMetric          = "isMetric"
	KeyUseAPIGeocoding = "useApiGeocoding"
	KeyGeocoderEnabled = "isGeocoderEnabled"
	KeyLastLatitude    = "lastLatitude"
	KeyLastLongitude   = "lastLongitude"
)

// Defaults returns the settings used when nothing is stored.
func Defaults() weather.ResolutionSettings {
	return weather.ResolutionSettings{
		UseMetricUnits:     false,
		PreferAPIGeocoding: false,
		GeocodingEnabled:   true,
	}
}

// Update is a partial settings change; nil fields are left alone.
type Update struct {
	UseMetricUnits     *bool `json:"useMetricUnits"`
	PreferAPIGeocoding *bool `json:"preferApiGeocoding"`
	GeocodingEnabled   *bool `json:"geocodingEnabled"`
}

// Store reads and writes settings through a store.KV.
type Store struct {
	kv     store.KV
	logger *slog.Logger

	// writeMu serializes Update so a commit is never interleaved with another.
	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[int]chan struct{}
	next  int
}

// New creates a settings Store over kv.
func New(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     kv,
		logger: logger.With("component", "settings"),
		subs:   make(map[int]chan struct{}),
	}
}

// Snapshot returns the current settings by value.
func (s *Store) Snapshot() weather.ResolutionSettings {
	d := Defaults()
	return weather.ResolutionSettings{
		UseMetricUnits:     s.getBool(KeyMetric, d.UseMetricUnits),
		PreferAPIGeocoding: s.getBool(KeyUseAPIGeocoding, d.PreferAPIGeocoding),
		GeocodingEnabled:   s.getBool(KeyGeocoderEnabled, d.GeocodingEnabled),
	}
}

// Update writes the non-nil fields, then broadcasts the settings-changed
// signal. The signal is sent on every commit, even if nothing changed.
func (s *Store) Update(u Update) (weather.ResolutionSettings, error) {
	s.writeMu.Lock()
	err := s.apply(u)
	s.writeMu.Unlock()
	if err != nil {
		return weather.ResolutionSettings{}, err
	}

	snap := s.Snapshot()
	s.logger.Info("settings updated",
		"metric", snap.UseMetricUnits,
		"api_geocoding", snap.PreferAPIGeocoding,
		"geocoder_enabled", snap.GeocodingEnabled)
	s.NotifyChanged()
	return snap, nil
}

func (s *Store) apply(u Update) error {
	writes := []struct {
		key string
		val *bool
	}{
		{KeyMetric, u.UseMetricUnits},
		{KeyUseAPIGeocoding, u.PreferAPIGeocoding},
		{KeyGeocoderEnabled, u.GeocodingEnabled},
	}
	for _, w := range writes {
		if w.val == nil {
			continue
		}
		if err := s.kv.Set(w.key, strconv.FormatBool(*w.val)); err != nil {
			return err
		}
	}
	return nil
}

// LastCoordinate returns the persisted last known coordinate. Both
// components must be stored for it to count as present.
func (s *Store) LastCoordinate() (weather.Coordinate, bool) {
	lat, okLat := s.getFloat(KeyLastLatitude)
	lon, okLon := s.getFloat(KeyLastLongitude)
	if !okLat || !okLon {
		return weather.Coordinate{}, false
	}
	return weather.Coordinate{Latitude: lat, Longitude: lon}, true
}

// SetLastCoordinate persists c. Values are stored in their shortest exact
// form so an exact comparison still holds after a restart. If the longitude
// cannot be written the previous latitude is restored, so a stored pair is
// never half new.
func (s *Store) SetLastCoordinate(c weather.Coordinate) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prevLat, err := s.kv.Get(KeyLastLatitude)
	hadLat := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.kv.Set(KeyLastLatitude, strconv.FormatFloat(c.Latitude, 'g', -1, 64)); err != nil {
		return err
	}
	if err := s.kv.Set(KeyLastLongitude, strconv.FormatFloat(c.Longitude, 'g', -1, 64)); err != nil {
		var rollback error
		if hadLat {
			rollback = s.kv.Set(KeyLastLatitude, prevLat)
		} else {
			rollback = s.kv.Delete(KeyLastLatitude)
		}
		if rollback != nil {
			s.logger.Error("could not restore latitude", "error", rollback)
		}
		return err
	}
	return nil
}

// Subscribe registers for the settings-changed signal. Signals that arrive
// while a previous one is still pending are coalesced. Call cancel to
// unsubscribe.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// NotifyChanged broadcasts the settings-changed signal without blocking.
func (s *Store) NotifyChanged() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) getBool(key string, def bool) bool {
	raw, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("settings read failed", "key", key, "error", err)
		}
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn("ignoring malformed setting", "key", key, "value", raw)
		return def
	}
	return v
}

func (s *Store) getFloat(key string) (float64, bool) {
	raw, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("settings read failed", "key", key, "error", err)
		}
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.logger.Warn("ignoring malformed coordinate", "key", key, "value", raw)
		return 0, false
	}
	return v, true
}
