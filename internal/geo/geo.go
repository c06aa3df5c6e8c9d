package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for haversine distances.
const earthRadiusMeters = 6371000

// DefaultRadiusMeters applies when a session geofence omits a radius.
const DefaultRadiusMeters = 100

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Fence is a circular geofence: a center and radius in meters.
type Fence struct {
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Radius returns the configured radius, falling back to the default.
func (f Fence) Radius() float64 {
	if f.RadiusMeters > 0 {
		return f.RadiusMeters
	}
	return DefaultRadiusMeters
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	dLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// WithinRadius reports whether p lies within radiusMeters of center.
func WithinRadius(center Point, radiusMeters float64, p Point) bool {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return DistanceMeters(center, p) <= radiusMeters
}

// Contains reports whether p lies inside the fence.
func (f Fence) Contains(p Point) bool {
	return WithinRadius(f.Center, f.Radius(), p)
}
