package geo

import (
	"math"
)

// earthRadiusM is the mean earth radius used for great-circle distance.
const earthRadiusM = 6371000.0

// Distance returns the great-circle (haversine) distance in meters between
// two points. Symmetric, and zero for identical points. Used to size search
// radii from viewport corners, not as a strict inclusion filter.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
