// Package geo provides distance and containment math over spherical
// coordinates. All functions are pure and total.
package geo

import "math"

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// BoundingBox is a rectangular geographic region.
//
// Regions are assumed not to cross the antimeridian; Contains does no
// longitude wraparound. Configured regions must satisfy MinLat < MaxLat
// and MinLon < MaxLon, enforced at config load time.
type BoundingBox struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// Contains reports whether the point falls within the closed bounds.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat &&
		lon >= b.MinLon && lon <= b.MaxLon
}

// Region is a named geographic region to monitor.
type Region struct {
	Name   string      `yaml:"name"`
	Bounds BoundingBox `yaml:"bounds"`
}

// PointOfInterest is a named coordinate with an alerting radius.
type PointOfInterest struct {
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
	RadiusKm float64 `yaml:"radius_km"`
}

// DistanceKm returns the great-circle distance between two points using
// the haversine formula over a spherical earth. Accuracy is adequate for
// regional alerting, not geodesic-precise.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// WithinRadius reports whether the point (lat, lon) is within the POI's
// alerting radius.
func (p PointOfInterest) WithinRadius(lat, lon float64) bool {
	return DistanceKm(lat, lon, p.Lat, p.Lon) <= p.RadiusKm
}

// ValidCoordinates reports whether lat and lon are finite and in range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
