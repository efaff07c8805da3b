// Package airports holds the static airport registry and resolves GPS
// positions to the nearest known airfield.
package airports

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	geo "github.com/kellydunn/golang-geo"
)

// DefaultRadiusKm is the maximum distance at which a position is attributed to an airport
const DefaultRadiusKm = 50.0

// Airport is a known airfield together with the logbook codes used for flights from it
type Airport struct {
	Name         string  `toml:"name"`           // Name as written to the logbook (e.g. "Grenchen")
	TimeZone     string  `toml:"time_zone"`      // IANA zone used for local logbook times
	TowCallsign  string  `toml:"tow_callsign"`   // Callsign of the tow plane used at this field
	FlightTypeID string  `toml:"flight_type_id"` // Logbook flight type id
	ChargeMode   string  `toml:"charge_mode"`    // Logbook charge mode
	Latitude     float64 `toml:"latitude"`
	Longitude    float64 `toml:"longitude"`
}

func (a Airport) point() *geo.Point {
	return geo.NewPoint(a.Latitude, a.Longitude)
}

// Registry is an ordered list of airports. Order matters for tie-breaks.
type Registry struct {
	airports []Airport
	radiusKm float64
}

// NewRegistry creates a registry. A non-positive radius selects DefaultRadiusKm.
func NewRegistry(list []Airport, radiusKm float64) *Registry {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	cp := make([]Airport, len(list))
	copy(cp, list)
	return &Registry{airports: cp, radiusKm: radiusKm}
}

// Len returns the number of registered airports
func (r *Registry) Len() int {
	return len(r.airports)
}

// Lookup finds an airport by name (case-insensitive)
func (r *Registry) Lookup(name string) (Airport, bool) {
	for _, a := range r.airports {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Airport{}, false
}

// Resolve returns the nearest airport to the given position together with
// its great-circle distance in kilometers. ok is false when the registry is
// empty or the nearest airport is further than the configured radius.
//
// Equal distances resolve to the airport listed first.
func (r *Registry) Resolve(lat, lon float64) (airport Airport, distanceKm float64, ok bool) {
	pos := geo.NewPoint(lat, lon)

	best := -1
	bestDist := math.Inf(1)
	for i, a := range r.airports {
		d := pos.GreatCircleDistance(a.point())
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 || bestDist > r.radiusKm {
		return Airport{}, bestDist, false
	}
	return r.airports[best], bestDist, true
}

// LoadCSV reads airports from a CSV file with a header row and the columns
// name,time_zone,tow_callsign,flight_type_id,charge_mode,latitude,longitude
func LoadCSV(path string) ([]Airport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	list := make([]Airport, 0, len(records))
	for i, record := range records {
		line := i + 2
		if len(record) < 7 {
			return nil, fmt.Errorf("line %d: expected 7 columns, got %d", line, len(record))
		}

		lat, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid latitude for %s: %w", line, record[0], err)
		}
		lon, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid longitude for %s: %w", line, record[0], err)
		}

		list = append(list, Airport{
			Name:         record[0],
			TimeZone:     record[1],
			TowCallsign:  record[2],
			FlightTypeID: record[3],
			ChargeMode:   record[4],
			Latitude:     lat,
			Longitude:    lon,
		})
	}

	return list, nil
}
