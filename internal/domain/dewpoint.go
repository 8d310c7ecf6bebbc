package domain

import "math"

// DewPoint approximates the dew point in °C from air temperature in °C and
// relative humidity in percent: T - (100 - RH) / 5. The result is NaN when
// either input is NaN.
func DewPoint(temperature, humidity float64) float64 {
	if math.IsNaN(temperature) || math.IsNaN(humidity) {
		return math.NaN()
	}
	return temperature - (100-humidity)/5
}
