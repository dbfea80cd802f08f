// Package geo validates reported coordinates against a configured service area.
package geo

import (
	"log/slog"
	"math"
)

// EarthRadiusMiles is the IUGG mean Earth radius (6371.0088 km) in miles.
const EarthRadiusMiles = 3958.7613

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// InRange reports whether p is a legal coordinate.
func (p Point) InRange() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceMiles returns the great-circle distance between two points using
// the haversine formula.
func DistanceMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(math.Min(h, 1)))
}

// Validator decides whether a coordinate is admissible for upload.
type Validator struct {
	// Center is the middle of the service area.
	Center Point
	// MaxDistance is the maximum distance from Center in miles.
	// Zero or negative disables the distance check.
	MaxDistance float64
	// Logger receives one line per rejection. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Valid reports whether (lat, lon) is in range and, when a maximum distance
// is configured, within that distance of the center.
func (v *Validator) Valid(lat, lon float64) bool {
	log := v.Logger
	if log == nil {
		log = slog.Default()
	}

	p := Point{Lat: lat, Lon: lon}
	if !p.InRange() {
		log.Info("invalid position", "lat", lat, "lon", lon)
		return false
	}

	if v.MaxDistance > 0 {
		if d := DistanceMiles(v.Center, p); d > v.MaxDistance {
			log.Info("position exceeds max distance",
				"lat", lat, "lon", lon, "distance_mi", d, "max_mi", v.MaxDistance)
			return false
		}
	}

	return true
}
