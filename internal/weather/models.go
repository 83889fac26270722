package weather

import (
	"fmt"
	"time"

	"github.com/i474232898/weather-locator/internal/common"
)

// Units is the unit token sent to the provider. Every numeric field of a
// Snapshot is expressed in the units that were requested.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// DefaultPostalCountry is used for postal lookups when the query has no country.
const DefaultPostalCountry = "US"

// Coordinate is an immutable latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%g,%g", c.Latitude, c.Longitude)
}

// QueryKind tells which branch of a LocationQuery is populated.
type QueryKind int

const (
	QueryCoordinate QueryKind = iota
	QueryPlace
	QueryPostal
)

func (k QueryKind) String() string {
	switch k {
	case QueryCoordinate:
		return "coordinate"
	case QueryPlace:
		return "place"
	case QueryPostal:
		return "postal"
	default:
		return "unknown"
	}
}

// LocationQuery identifies where to fetch weather for. Build it with
// ByCoordinate or ByPlace; a place name made only of digits becomes a
// postal query at construction time.
type LocationQuery struct {
	kind       QueryKind
	coordinate Coordinate
	name       string
	state      string
	country    string
}

// ByCoordinate builds a query for an exact position.
func ByCoordinate(c Coordinate) LocationQuery {
	return LocationQuery{kind: QueryCoordinate, coordinate: c}
}

// ByPlace builds a query for a named place. Empty state and country mean absent.
func ByPlace(name, stateCode, countryCode string) LocationQuery {
	kind := QueryPlace
	if common.IsAllDigits(name) {
		kind = QueryPostal
	}
	return LocationQuery{kind: kind, name: name, state: stateCode, country: countryCode}
}

func (q LocationQuery) Kind() QueryKind        { return q.kind }
func (q LocationQuery) Coordinate() Coordinate { return q.coordinate }
func (q LocationQuery) Name() string           { return q.name }
func (q LocationQuery) StateCode() string      { return q.state }
func (q LocationQuery) CountryCode() string    { return q.country }

// PlaceString returns name[,state][,country] with absent parts omitted.
func (q LocationQuery) PlaceString() string {
	return common.JoinNonEmpty(",", q.name, q.state, q.country)
}

func (q LocationQuery) String() string {
	switch q.kind {
	case QueryCoordinate:
		return q.coordinate.String()
	case QueryPostal:
		return "zip:" + q.name
	default:
		return q.PlaceString()
	}
}

// ResolutionSettings is a value snapshot of the user's settings, captured
// before a resolution starts.
type ResolutionSettings struct {
	UseMetricUnits     bool `json:"useMetricUnits"`
	PreferAPIGeocoding bool `json:"preferApiGeocoding"`
	GeocodingEnabled   bool `json:"geocodingEnabled"`
}

// Units returns the unit token for these settings.
func (s ResolutionSettings) Units() Units {
	if s.UseMetricUnits {
		return UnitsMetric
	}
	return UnitsImperial
}

// GeocodeResult is one match from the place geocoding endpoint.
type GeocodeResult struct {
	Name           string            `json:"name"`
	LocalizedNames map[string]string `json:"local_names,omitempty"`
	Coordinate     Coordinate        `json:"coordinate"`
	CountryCode    string            `json:"country"`
	StateCode      string            `json:"state,omitempty"`
}

// PostalLookupResult is the answer of the postal geocoding endpoint.
type PostalLookupResult struct {
	PostalCode  string     `json:"zip"`
	Name        string     `json:"name"`
	Coordinate  Coordinate `json:"coordinate"`
	CountryCode string     `json:"country"`
}

// Condition is one entry of the snapshot's weather list.
type Condition struct {
	ID          int    `json:"id"`
	Label       string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// IconURL returns the provider's high resolution icon for the condition.
func (c Condition) IconURL() string {
	return "https://openweathermap.org/img/wn/" + c.Icon + "@2x.png"
}

// Main holds the main metrics block. Optional pressures are nil when the
// provider did not report them.
type Main struct {
	Temperature float64 `json:"temp"`
	FeelsLike   float64 `json:"feels_like"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Pressure    int     `json:"pressure"`
	Humidity    int     `json:"humidity"`
	SeaLevel    *int    `json:"sea_level,omitempty"`
	GroundLevel *int    `json:"grnd_level,omitempty"`
}

// PressureInHg converts the hPa pressure to inches of mercury.
func (m Main) PressureInHg() float64 {
	return float64(m.Pressure) * 0.02953
}

type Wind struct {
	Speed   float64  `json:"speed"`
	Degrees int      `json:"deg"`
	Gust    *float64 `json:"gust,omitempty"`
}

type Clouds struct {
	All int `json:"all"`
}

// System is the provider's sys block. Sunrise and sunset are epoch seconds.
type System struct {
	Type    *int   `json:"type,omitempty"`
	ID      *int   `json:"id,omitempty"`
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}

// Snapshot is a decoded current-conditions observation. It is never mutated
// after decoding; publishing replaces the whole value.
type Snapshot struct {
	Coordinate Coordinate  `json:"coord"`
	Conditions []Condition `json:"weather"`
	Base       string      `json:"base,omitempty"`
	Main       Main        `json:"main"`
	Visibility *int        `json:"visibility,omitempty"`
	Wind       Wind        `json:"wind"`
	Clouds     Clouds      `json:"clouds"`
	ObservedAt int64       `json:"dt"`
	Sys        System      `json:"sys"`
	UTCOffset  int         `json:"timezone"`
	PlaceID    int64       `json:"id"`
	Name       string      `json:"name"`
	StatusCode int         `json:"cod"`
}

// Observed returns the observation time.
func (s Snapshot) Observed() time.Time {
	return time.Unix(s.ObservedAt, 0).UTC()
}

func (s Snapshot) SunriseTime() time.Time {
	return time.Unix(s.Sys.Sunrise, 0).UTC()
}

func (s Snapshot) SunsetTime() time.Time {
	return time.Unix(s.Sys.Sunset, 0).UTC()
}

// LocalTime shifts t into the snapshot's reported UTC offset.
func (s Snapshot) LocalTime(t time.Time) time.Time {
	return t.In(time.FixedZone("", s.UTCOffset))
}

// PrimaryCondition returns the first condition entry.
func (s Snapshot) PrimaryCondition() Condition {
	if len(s.Conditions) == 0 {
		return Condition{}
	}
	return s.Conditions[0]
}
