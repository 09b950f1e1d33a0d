package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters matches the sphere radius used by the SQL distance
// pre-filter, so application-side checks and storage-side filtering agree.
const EarthRadiusMeters = 6371000.0

// Point is a coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point lies in the usual coordinate ranges.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceMeters computes the great-circle distance between two points
// using the haversine formula on a spherical Earth.
func DistanceMeters(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// CheckedDistanceMeters validates both points before computing.
func CheckedDistanceMeters(a, b Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, fmt.Errorf("coordinate out of range: (%v,%v) (%v,%v)",
			a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	}
	return DistanceMeters(a, b), nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
