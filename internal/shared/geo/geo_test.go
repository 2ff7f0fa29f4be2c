package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestDistanceNmOneDegreeAtEquator(t *testing.T) {
	origin := Point{Lat: 0, Lon: 0}
	assert.InDelta(t, 60.04, DistanceNm(origin, Point{Lat: 0, Lon: 1}), 0.01)
	assert.InDelta(t, 60.04, DistanceNm(origin, Point{Lat: 1, Lon: 0}), 0.01)
}

func TestDistanceNmProperties(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 37.8, Lon: -122.4},
		{Lat: -33.86, Lon: 151.21},
		{Lat: 51.5, Lon: -0.12},
		{Lat: 89.9, Lon: 179.9},
		{Lat: -60, Lon: -179.5},
	}
	for _, a := range points {
		assert.Zero(t, DistanceNm(a, a))
		for _, b := range points {
			ab := DistanceNm(a, b)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.InDelta(t, ab, DistanceNm(b, a), 1e-9)
			if a != b {
				assert.Greater(t, ab, 0.0)
			}
		}
	}
}

func TestComputeRouteStatsTooFewPoints(t *testing.T) {
	empty := ComputeRouteStats(nil)
	assert.Zero(t, empty.TotalDistanceNm)
	assert.NotNil(t, empty.Legs)
	assert.Empty(t, empty.Legs)

	single := ComputeRouteStats([]Point{{Lat: 10, Lon: 10}})
	assert.Zero(t, single.TotalDistanceNm)
	assert.Empty(t, single.Legs)
}

func TestComputeRouteStatsLegs(t *testing.T) {
	p1 := Point{Lat: 37.80, Lon: -122.45}
	p2 := Point{Lat: 37.82, Lon: -122.48}
	p3 := Point{Lat: 37.85, Lon: -122.40}

	stats := ComputeRouteStats([]Point{p1, p2, p3})
	require.Len(t, stats.Legs, 2)

	assert.Equal(t, p1, stats.Legs[0].From)
	assert.Equal(t, p2, stats.Legs[0].To)
	assert.Equal(t, p2, stats.Legs[1].From)
	assert.Equal(t, p3, stats.Legs[1].To)
	assert.InDelta(t, DistanceNm(p1, p2), stats.Legs[0].DistanceNm, 1e-12)
	assert.InDelta(t, stats.Legs[0].DistanceNm+stats.Legs[1].DistanceNm, stats.TotalDistanceNm, 1e-12)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 90, Lon: -180}.Valid())
	assert.False(t, Point{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lon: 180.5}.Valid())
}
