package detection

import "math"

const earthRadiusMeters = 6371000

// haversine returns the great-circle distance in meters between two points
// given in degrees.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// planarDistance is the Euclidean distance on raw degrees. Geofence radii
// are expressed in the same units.
func planarDistance(lat1, lng1, lat2, lng2 float64) float64 {
	return math.Hypot(lat2-lat1, lng2-lng1)
}

func magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
