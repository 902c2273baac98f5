package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		want      float64
		tolerance float64
	}{
		{
			name: "Same point",
			lat1: 25.3132839, lng1: 55.3719379,
			lat2: 25.3132839, lng2: 55.3719379,
			want: 0, tolerance: 0.001,
		},
		{
			name: "One degree of longitude at the equator",
			lat1: 0, lng1: 0,
			lat2: 0, lng2: 1,
			want: 111195, tolerance: 100,
		},
		{
			name: "One degree of latitude",
			lat1: 25, lng1: 55,
			lat2: 26, lng2: 55,
			want: 111195, tolerance: 100,
		},
		{
			name: "Sharjah to Dubai",
			lat1: 25.3132839, lng1: 55.3719379,
			lat2: 25.2048, lng2: 55.2708,
			want: 15700, tolerance: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Distance() = %v, want %v ± %v", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	d1 := Distance(25.3132839, 55.3719379, 24.4539, 54.3773)
	d2 := Distance(24.4539, 54.3773, 25.3132839, 55.3719379)
	if math.Abs(d1-d2) > 0.001 {
		t.Errorf("Distance is not symmetric: %v vs %v", d1, d2)
	}
}

func TestDistanceTriangleInequality(t *testing.T) {
	a := [2]float64{25.3132839, 55.3719379}
	b := [2]float64{25.2048, 55.2708}
	c := [2]float64{24.4539, 54.3773}

	ab := Distance(a[0], a[1], b[0], b[1])
	bc := Distance(b[0], b[1], c[0], c[1])
	ac := Distance(a[0], a[1], c[0], c[1])

	if ac > ab+bc+0.001 {
		t.Errorf("Triangle inequality violated: %v > %v + %v", ac, ab, bc)
	}
}
