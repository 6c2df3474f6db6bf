package prediction

import (
	"time"

	"github.com/zenithpw/zenithpw/internal/meteo"
)

// isoMillis matches the dateString format of collected observations.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Observation is what was measured at a site, apart from meteorology.
type Observation struct {
	ZWD                float64
	SatelliteAzimuth   float64
	SatelliteElevation float64
}

// NewObservation assembles a complete feature record for a site at the UTC instant at.
// Meteorology fields are marked as supplied.
func NewObservation(site Site, at time.Time, obs Observation, cond meteo.Conditions) Input {
	at = at.UTC()
	return Input{
		StationID:          site.ID,
		StationLatitude:    site.Latitude,
		StationLongitude:   site.Longitude,
		StationElevation:   site.Elevation,
		ZWDObservation:     obs.ZWD,
		SatelliteAzimuth:   obs.SatelliteAzimuth,
		SatelliteElevation: obs.SatelliteElevation,
		Temperature:        cond.Temperature,
		Pressure:           cond.Pressure,
		Humidity:           cond.Humidity,
		Year:               at.Year(),
		Month:              int(at.Month()),
		Day:                at.Day(),
		Hour:               at.Hour(),
		Minute:             at.Minute(),
		Second:             at.Second(),
		Timestamp:          at.Unix(),
		DateString:         at.Format(isoMillis),
		Supplied:           Supplied{Temperature: true, Pressure: true, Humidity: true},
	}
}
