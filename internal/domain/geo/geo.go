// Package geo computes extents and distances over feature geometries.
// Coordinates are longitude/latitude degrees (x = lon, y = lat).
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// MinSpanDegrees is the smallest extent side Expand produces, so a single
// point still yields a usable viewport.
const MinSpanDegrees = 0.001

// Extent returns the union of the bounding boxes of gs. Nil and empty
// geometries are skipped; ok is false when nothing contributed.
func Extent(gs ...geom.T) (*geom.Bounds, bool) {
	b := geom.NewBounds(geom.XY)
	for _, g := range gs {
		if g == nil || len(g.FlatCoords()) == 0 {
			continue
		}
		b.Extend(g)
	}
	if b.IsEmpty() {
		return nil, false
	}
	return b, true
}

// Expand scales b around its center by factor (1.1 pads by 10%).
func Expand(b *geom.Bounds, factor float64) *geom.Bounds {
	cx := (b.Min(0) + b.Max(0)) / 2
	cy := (b.Min(1) + b.Max(1)) / 2
	hw := math.Max((b.Max(0)-b.Min(0))*factor, MinSpanDegrees) / 2
	hh := math.Max((b.Max(1)-b.Min(1))*factor, MinSpanDegrees) / 2
	return geom.NewBounds(geom.XY).Set(cx-hw, cy-hh, cx+hw, cy+hh)
}

// DiagonalMeters returns the great-circle length of the extent diagonal.
func DiagonalMeters(b *geom.Bounds) float64 {
	return Haversine(b.Min(1), b.Min(0), b.Max(1), b.Max(0))
}

// Haversine returns the great-circle distance in meters between two points
// specified by latitude and longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ValidateBounds checks that both corners of b are valid coordinates.
func ValidateBounds(b *geom.Bounds) bool {
	return ValidateCoordinates(b.Min(1), b.Min(0)) && ValidateCoordinates(b.Max(1), b.Max(0))
}
