// Package station loads GNSS receiver metadata.
package station

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/zenithpw/zenithpw/internal/prediction"
)

// Station is a GNSS receiver from the metadata file.
type Station struct {
	ID        string
	Latitude  float64
	Longitude float64
	Height    float64
}

// Site returns the station as a prediction site.
func (s Station) Site() prediction.Site {
	return prediction.Site{
		ID:        s.ID,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Elevation: s.Height,
	}
}

// record mirrors one metadata entry. Coordinates may be numbers or numeric strings.
type record struct {
	Latitude  json.Number `json:"Latitude"`
	Longitude json.Number `json:"Longitude"`
	Height    json.Number `json:"Height"`
}

// Load reads a metadata document of the form
// {"ABMF": {"Latitude": 16.26, "Longitude": -61.52, "Height": -25.6}, ...}
// and returns the stations sorted by ID.
func Load(r io.Reader) ([]Station, error) {
	var records map[string]record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding stations: %w", err)
	}

	stations := make([]Station, 0, len(records))
	for id, rec := range records {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" {
			continue
		}

		lat, err := parseCoordinate(rec.Latitude, -90, 90)
		if err != nil {
			return nil, fmt.Errorf("station %s latitude: %w", id, err)
		}
		lon, err := parseCoordinate(rec.Longitude, -180, 180)
		if err != nil {
			return nil, fmt.Errorf("station %s longitude: %w", id, err)
		}
		var height float64
		if rec.Height != "" {
			if height, err = rec.Height.Float64(); err != nil {
				return nil, fmt.Errorf("station %s height: %w", id, err)
			}
		}

		stations = append(stations, Station{ID: id, Latitude: lat, Longitude: lon, Height: height})
	}

	slices.SortFunc(stations, func(a, b Station) int {
		return strings.Compare(a.ID, b.ID)
	})
	return stations, nil
}

// LoadFile reads a metadata file from disk.
func LoadFile(path string) ([]Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stations file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var errMissing = errors.New("missing")

func parseCoordinate(n json.Number, lo, hi float64) (float64, error) {
	if n == "" {
		return 0, errMissing
	}
	v, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%g out of range [%g, %g]", v, lo, hi)
	}
	return v, nil
}

// Directory looks stations up by ID.
type Directory struct {
	byID map[string]Station
}

// NewDirectory indexes stations by upper-case ID.
func NewDirectory(stations []Station) *Directory {
	d := &Directory{byID: make(map[string]Station, len(stations))}
	for _, s := range stations {
		d.byID[strings.ToUpper(s.ID)] = s
	}
	return d
}

// Lookup finds a station by exact ID, then by its four-character marker,
// so long RINEX 3 names such as ABMF00GLP resolve to ABMF.
func (d *Directory) Lookup(id string) (Station, bool) {
	if d == nil {
		return Station{}, false
	}
	id = strings.ToUpper(strings.TrimSpace(id))
	if s, ok := d.byID[id]; ok {
		return s, true
	}
	if len(id) > 4 {
		if s, ok := d.byID[id[:4]]; ok {
			return s, true
		}
	}
	return Station{}, false
}

// Len returns the number of indexed stations.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byID)
}
