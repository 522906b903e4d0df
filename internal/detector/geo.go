package detector

import (
	"math"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

const earthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance between two fixes.
func HaversineKm(a, b model.GPS) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// EffectiveDistanceKm is the haversine distance less both accuracy radii,
// floored at zero.
func EffectiveDistanceKm(a, b model.GPS) float64 {
	d := HaversineKm(a, b) - (a.Accuracy+b.Accuracy)/1000
	if d < 0 {
		return 0
	}
	return d
}
