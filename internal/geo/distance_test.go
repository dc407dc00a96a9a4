package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters_IdenticalPoints(t *testing.T) {
	assert.Equal(t, 0.0, DistanceMeters(51.5074, -0.1278, 51.5074, -0.1278))
	assert.Equal(t, 0.0, DistanceMeters(0, 0, 0, 0))
	assert.Equal(t, 0.0, DistanceMeters(-89.9, 179.9, -89.9, 179.9))
}

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		want      float64
		tolerance float64
	}{
		{"charing cross north 0.0126 deg", Point{51.5074, -0.1278}, Point{51.5200, -0.1278}, 1401, 2},
		{"london to paris", Point{51.5074, -0.1278}, Point{48.8566, 2.3522}, 343_500, 1_000},
		{"one degree of longitude at equator", Point{0, 0}, Point{0, 1}, 111_195, 5},
		{"antipodal", Point{0, 0}, Point{0, 180}, math.Pi * EarthRadiusMeters, 1},
		{"pole to pole", Point{90, 0}, Point{-90, 0}, math.Pi * EarthRadiusMeters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.DistanceTo(tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestDistanceMeters_TinySeparation(t *testing.T) {
	d := DistanceMeters(51.5074, -0.1278, 51.5074+1e-9, -0.1278)
	assert.False(t, math.IsNaN(d))
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 0.001)
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		lat1, lon1 := rng.Float64()*180-90, rng.Float64()*360-180
		lat2, lon2 := rng.Float64()*180-90, rng.Float64()*360-180

		ab := DistanceMeters(lat1, lon1, lat2, lon2)
		ba := DistanceMeters(lat2, lon2, lat1, lon1)

		assert.False(t, math.IsNaN(ab))
		assert.InDelta(t, ab, ba, 1e-6)
		assert.LessOrEqual(t, ab, math.Pi*EarthRadiusMeters+1e-6)
	}
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{51.5, -0.12}.Valid())
	assert.True(t, Point{-90, 180}.Valid())
	assert.False(t, Point{91, 0}.Valid())
	assert.False(t, Point{0, -181}.Valid())
	assert.False(t, Point{math.NaN(), 0}.Valid())
}
