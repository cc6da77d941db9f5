package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetersToDegreesEquator(t *testing.T) {
	dLat, dLon := MetersToDegrees(1, 0)
	// meridional radius at the equator is a(1-e^2), prime vertical is a
	assert.InDelta(t, 9.04369477e-6, dLat, 1e-13)
	assert.InDelta(t, 8.98315284e-6, dLon, 1e-13)
}

func TestMetersToDegreesLinear(t *testing.T) {
	lat1, lon1 := MetersToDegrees(100, 27.7)
	lat2, lon2 := MetersToDegrees(200, 27.7)
	assert.InDelta(t, 2*lat1, lat2, 1e-15)
	assert.InDelta(t, 2*lon1, lon2, 1e-15)
}

func TestMetersToDegreesLongitudeGrowsPoleward(t *testing.T) {
	_, low := MetersToDegrees(100, 10)
	_, high := MetersToDegrees(100, 60)
	assert.Greater(t, high, low)
	latLow, _ := MetersToDegrees(100, 10)
	latHigh, _ := MetersToDegrees(100, 60)
	// meridional radius grows towards the poles, so a metre spans less latitude
	assert.Less(t, latHigh, latLow)
}
