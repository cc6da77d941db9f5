package geo

import "math"

// WGS84 ellipsoid
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257223563
)

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// MetersToDegrees converts a metric distance into the latitude and
// longitude spans it covers at refLat, using the meridional and prime
// vertical radii of curvature of the WGS84 ellipsoid.
func MetersToDegrees(meters, refLat float64) (dLat, dLon float64) {
	e2 := 2*flattening - flattening*flattening
	phi := toRad(refLat)
	s := math.Sin(phi)
	w := 1 - e2*s*s
	meridional := semiMajorAxis * (1 - e2) / math.Pow(w, 1.5)
	primeVertical := semiMajorAxis / math.Sqrt(w)
	dLat = toDeg(meters / meridional)
	dLon = toDeg(meters / (primeVertical * math.Cos(phi)))
	return dLat, dLon
}
