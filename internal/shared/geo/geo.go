// Package geo holds the great-circle helpers shared by routing and tracking.
package geo

import "math"

const (
	earthRadiusKm = 6371.0
	kmPerNm       = 1.852
)

// Point is an immutable WGS84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within [-90,90] x [-180,180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

type Leg struct {
	From       Point   `json:"from"`
	To         Point   `json:"to"`
	DistanceNm float64 `json:"distance_nm"`
}

// RouteStats is the sum of its legs. Legs is never nil.
type RouteStats struct {
	TotalDistanceNm float64 `json:"total_distance_nm"`
	Legs            []Leg   `json:"legs"`
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(phi1)*math.Cos(phi2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DistanceNm returns the great-circle distance between a and b in nautical miles.
func DistanceNm(a, b Point) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon) / kmPerNm
}

// ComputeRouteStats splits points into consecutive legs, in input order.
func ComputeRouteStats(points []Point) RouteStats {
	if len(points) < 2 {
		return RouteStats{Legs: []Leg{}}
	}

	legs := make([]Leg, 0, len(points)-1)
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		d := DistanceNm(points[i], points[i+1])
		total += d
		legs = append(legs, Leg{From: points[i], To: points[i+1], DistanceNm: d})
	}
	return RouteStats{TotalDistanceNm: total, Legs: legs}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
