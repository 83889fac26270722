package weather

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Payload shapes as sent by the provider. Required members are pointers so a
// missing member can be told apart from a zero value.

type wireCoord struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lon *float64 `json:"lon" validate:"required"`
}

type wireCondition struct {
	ID          *int    `json:"id" validate:"required"`
	Main        *string `json:"main" validate:"required"`
	Description *string `json:"description" validate:"required"`
	Icon        *string `json:"icon" validate:"required"`
}

type wireMain struct {
	Temp        *float64 `json:"temp" validate:"required"`
	FeelsLike   *float64 `json:"feels_like" validate:"required"`
	TempMin     *float64 `json:"temp_min" validate:"required"`
	TempMax     *float64 `json:"temp_max" validate:"required"`
	Pressure    *int     `json:"pressure" validate:"required"`
	Humidity    *int     `json:"humidity" validate:"required"`
	SeaLevel    *int     `json:"sea_level"`
	GroundLevel *int     `json:"grnd_level"`
}

type wireWind struct {
	Speed *float64 `json:"speed" validate:"required"`
	Deg   *int     `json:"deg" validate:"required"`
	Gust  *float64 `json:"gust"`
}

type wireClouds struct {
	All *int `json:"all" validate:"required"`
}

type wireSys struct {
	Type    *int    `json:"type"`
	ID      *int    `json:"id"`
	Country *string `json:"country" validate:"required"`
	Sunrise *int64  `json:"sunrise" validate:"required"`
	Sunset  *int64  `json:"sunset" validate:"required"`
}

type wireSnapshot struct {
	Coord      *wireCoord      `json:"coord" validate:"required"`
	Weather    []wireCondition `json:"weather" validate:"required,min=1,dive"`
	Base       string          `json:"base"`
	Main       *wireMain       `json:"main" validate:"required"`
	Visibility *int            `json:"visibility"`
	Wind       *wireWind       `json:"wind" validate:"required"`
	Clouds     *wireClouds     `json:"clouds" validate:"required"`
	Dt         *int64          `json:"dt" validate:"required"`
	Sys        *wireSys        `json:"sys" validate:"required"`
	Timezone   *int            `json:"timezone" validate:"required"`
	ID         *int64          `json:"id" validate:"required"`
	Name       *string         `json:"name" validate:"required"`
	Cod        *int            `json:"cod" validate:"required"`
}

type wireGeocode struct {
	Name       *string           `json:"name" validate:"required"`
	LocalNames map[string]string `json:"local_names"`
	Lat        *float64          `json:"lat" validate:"required"`
	Lon        *float64          `json:"lon" validate:"required"`
	Country    *string           `json:"country" validate:"required"`
	State      string            `json:"state"`
}

type wirePostal struct {
	Zip     *string  `json:"zip" validate:"required"`
	Name    *string  `json:"name" validate:"required"`
	Lat     *float64 `json:"lat" validate:"required"`
	Lon     *float64 `json:"lon" validate:"required"`
	Country *string  `json:"country" validate:"required"`
}

// DecodeSnapshot parses a current-conditions payload. A payload that is not
// JSON, has the wrong member types or lacks a required member fails with
// ErrDecode. Optional members stay nil when absent.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	const op = "decode snapshot"
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, NewError(ErrDecode, op, err)
	}
	if err := validate.Struct(w); err != nil {
		return Snapshot{}, NewError(ErrDecode, op, err)
	}

	conds := make([]Condition, 0, len(w.Weather))
	for _, c := range w.Weather {
		conds = append(conds, Condition{
			ID:          *c.ID,
			Label:       *c.Main,
			Description: *c.Description,
			Icon:        *c.Icon,
		})
	}

	return Snapshot{
		Coordinate: Coordinate{Latitude: *w.Coord.Lat, Longitude: *w.Coord.Lon},
		Conditions: conds,
		Base:       w.Base,
		Main: Main{
			Temperature: *w.Main.Temp,
			FeelsLike:   *w.Main.FeelsLike,
			TempMin:     *w.Main.TempMin,
			TempMax:     *w.Main.TempMax,
			Pressure:    *w.Main.Pressure,
			Humidity:    *w.Main.Humidity,
			SeaLevel:    w.Main.SeaLevel,
			GroundLevel: w.Main.GroundLevel,
		},
		Visibility: w.Visibility,
		Wind: Wind{
			Speed:   *w.Wind.Speed,
			Degrees: *w.Wind.Deg,
			Gust:    w.Wind.Gust,
		},
		Clouds:     Clouds{All: *w.Clouds.All},
		ObservedAt: *w.Dt,
		Sys: System{
			Type:    w.Sys.Type,
			ID:      w.Sys.ID,
			Country: *w.Sys.Country,
			Sunrise: *w.Sys.Sunrise,
			Sunset:  *w.Sys.Sunset,
		},
		UTCOffset:  *w.Timezone,
		PlaceID:    *w.ID,
		Name:       *w.Name,
		StatusCode: *w.Cod,
	}, nil
}

// DecodeGeocodeResults parses the place geocoding array.
func DecodeGeocodeResults(data []byte) ([]GeocodeResult, error) {
	const op = "decode geocode results"
	var ws []wireGeocode
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, NewError(ErrDecode, op, err)
	}

	out := make([]GeocodeResult, 0, len(ws))
	for _, w := range ws {
		if err := validate.Struct(w); err != nil {
			return nil, NewError(ErrDecode, op, err)
		}
		out = append(out, GeocodeResult{
			Name:           *w.Name,
			LocalizedNames: w.LocalNames,
			Coordinate:     Coordinate{Latitude: *w.Lat, Longitude: *w.Lon},
			CountryCode:    *w.Country,
			StateCode:      w.State,
		})
	}
	return out, nil
}

// DecodePostalResult parses the postal geocoding object.
func DecodePostalResult(data []byte) (PostalLookupResult, error) {
	const op = "decode postal result"
	var w wirePostal
	if err := json.Unmarshal(data, &w); err != nil {
		return PostalLookupResult{}, NewError(ErrDecode, op, err)
	}
	if err := validate.Struct(w); err != nil {
		return PostalLookupResult{}, NewError(ErrDecode, op, err)
	}
	return PostalLookupResult{
		PostalCode:  *w.Zip,
		Name:        *w.Name,
		Coordinate:  Coordinate{Latitude: *w.Lat, Longitude: *w.Lon},
		CountryCode: *w.Country,
	}, nil
}
