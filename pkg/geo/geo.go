package geo

import (
	"math"

	"odysseywalk/pkg/model"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 model.LatLng) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lng - p1.Lng) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start model.LatLng, distMeters, bearing float64) model.LatLng {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lng * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)
	d := distMeters / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) +
		math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return model.LatLng{
		Lat: lat2 * (180.0 / math.Pi),
		Lng: lon2 * (180.0 / math.Pi),
	}
}

// Valid reports whether p is a finite coordinate within WGS84 ranges.
func Valid(p model.LatLng) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
