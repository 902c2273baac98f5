package geo

import (
	"math"
)

// Bounds is one contiguous geohash key range. Records whose geohash falls
// lexicographically within [Start, End] are candidates for the search disk
// the range was derived from.
type Bounds struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

const (
	// earthEquatorialRadiusM is the WGS84 semi-major axis.
	earthEquatorialRadiusM = 6378137.0
	// earthMeridionalCircumferenceM is the length of a full meridian.
	earthMeridionalCircumferenceM = 40007860.0
	// metersPerDegreeLatitude is the length of one degree of latitude.
	metersPerDegreeLatitude = 110574.0
	// e2 is the square of the WGS84 eccentricity.
	e2 = 0.00669447819799
	// maxBitsPrecision caps query bit depth at a full-length geohash.
	maxBitsPrecision = 12 * 5
	epsilon          = 1e-12
)

// QueryBounds returns the set of geohash ranges whose union covers every
// point within radiusMeters of (lat, lng). The ranges over-cover: geohash
// cells crossing the disk boundary leak outside the strict radius, and no
// exact-distance trim is applied here — callers either accept the margin or
// filter with Distance themselves.
//
// Strategy:
//  1. Derive a query bit depth from the bounding box of the disk. The depth
//     is chosen so one cell at that depth is at least as large as the disk,
//     evaluated at the box's north and south latitudes where longitude
//     degrees are shortest.
//  2. Hash the 9 bounding-box coordinates (center, corners, edge midpoints)
//     at that depth's character precision.
//  3. Widen each hash to the key range of its bit-depth cell and drop
//     duplicates.
//
// The result is ordered as derived; callers scan each range independently.
func QueryBounds(lat, lng, radiusMeters float64) []Bounds {
	queryBits := boundingBoxBits(lat, radiusMeters)
	if queryBits < 1 {
		queryBits = 1
	}
	precision := (queryBits + 4) / 5

	coords := boundingBoxCoordinates(lat, lng, radiusMeters)
	bounds := make([]Bounds, 0, len(coords))
	for _, c := range coords {
		b := queryForGeohash(Encode(c[0], c[1], precision), queryBits)
		duplicate := false
		for _, seen := range bounds {
			if seen == b {
				duplicate = true
				break
			}
		}
		if !duplicate {
			bounds = append(bounds, b)
		}
	}
	return bounds
}

// queryForGeohash widens a geohash to the key range of the cell identified
// by its first bits significant bits. The end key uses '~', which sorts
// after every base32 character, so the range is a pure prefix interval.
func queryForGeohash(hash string, bits int) Bounds {
	precision := (bits + 4) / 5
	if len(hash) < precision {
		return Bounds{Start: hash, End: hash + "~"}
	}

	hash = hash[:precision]
	base := hash[:len(hash)-1]
	lastValue := base32Map[hash[len(hash)-1]]
	significantBits := bits - len(base)*5
	unusedBits := 5 - significantBits

	startValue := (lastValue >> unusedBits) << unusedBits
	endValue := startValue + (1 << unusedBits)
	if endValue > 31 {
		return Bounds{Start: base + string(base32[startValue]), End: base + "~"}
	}
	return Bounds{Start: base + string(base32[startValue]), End: base + string(base32[endValue])}
}

// boundingBoxBits returns the number of geohash bits at which a single cell
// is guaranteed to be at least the size of a box with half-side radiusMeters
// around the given latitude.
func boundingBoxBits(lat, radiusMeters float64) int {
	latDelta := radiusMeters / metersPerDegreeLatitude
	latNorth := math.Min(90, lat+latDelta)
	latSouth := math.Max(-90, lat-latDelta)

	bitsLat := math.Floor(latitudeBitsForResolution(radiusMeters*2)) * 2
	bitsLngNorth := math.Floor(longitudeBitsForResolution(radiusMeters*2, latNorth))*2 - 1
	bitsLngSouth := math.Floor(longitudeBitsForResolution(radiusMeters*2, latSouth))*2 - 1

	bits := math.Min(bitsLat, math.Min(bitsLngNorth, bitsLngSouth))
	if bits > maxBitsPrecision {
		bits = maxBitsPrecision
	}
	return int(bits)
}

// boundingBoxCoordinates returns the 9 sample coordinates of the bounding
// box around the disk: center, the 4 corners, and the 4 edge midpoints.
func boundingBoxCoordinates(lat, lng, radiusMeters float64) [9][2]float64 {
	latDelta := radiusMeters / metersPerDegreeLatitude
	latNorth := math.Min(90, lat+latDelta)
	latSouth := math.Max(-90, lat-latDelta)
	lngDeltaNorth := metersToLongitudeDegrees(radiusMeters, latNorth)
	lngDeltaSouth := metersToLongitudeDegrees(radiusMeters, latSouth)
	lngDelta := math.Max(lngDeltaNorth, lngDeltaSouth)

	return [9][2]float64{
		{lat, lng},
		{lat, wrapLongitude(lng - lngDelta)},
		{lat, wrapLongitude(lng + lngDelta)},
		{latNorth, lng},
		{latNorth, wrapLongitude(lng - lngDelta)},
		{latNorth, wrapLongitude(lng + lngDelta)},
		{latSouth, lng},
		{latSouth, wrapLongitude(lng - lngDelta)},
		{latSouth, wrapLongitude(lng + lngDelta)},
	}
}

// metersToLongitudeDegrees converts a distance to degrees of longitude at a
// given latitude, accounting for the ellipsoid flattening. Near the poles a
// positive distance spans all longitudes.
func metersToLongitudeDegrees(distance, lat float64) float64 {
	radians := lat * math.Pi / 180
	num := math.Cos(radians) * earthEquatorialRadiusM * math.Pi / 180
	denom := 1 / math.Sqrt(1-e2*math.Sin(radians)*math.Sin(radians))
	deltaDeg := num * denom
	if deltaDeg < epsilon {
		if distance > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, distance/deltaDeg)
}

// longitudeBitsForResolution returns the number of longitude bits needed so
// one cell spans at least resolution meters at the given latitude.
func longitudeBitsForResolution(resolution, lat float64) float64 {
	degrees := metersToLongitudeDegrees(resolution, lat)
	if math.Abs(degrees) > 1e-6 {
		return math.Max(1, math.Log2(360/degrees))
	}
	return 1
}

// latitudeBitsForResolution returns the number of latitude bits needed so
// one cell spans at least resolution meters.
func latitudeBitsForResolution(resolution float64) float64 {
	return math.Min(math.Log2(earthMeridionalCircumferenceM/2/resolution), maxBitsPrecision)
}

// wrapLongitude wraps a longitude into [-180, 180].
func wrapLongitude(lng float64) float64 {
	if lng <= 180 && lng >= -180 {
		return lng
	}
	adjusted := lng + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}
