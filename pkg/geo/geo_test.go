package geo

import (
	"math"
	"testing"

	"odysseywalk/pkg/model"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   model.LatLng
		p2   model.LatLng
		want float64
	}{
		{
			name: "Same Point",
			p1:   model.LatLng{Lat: 0, Lng: 0},
			p2:   model.LatLng{Lat: 0, Lng: 0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   model.LatLng{Lat: 51.5074, Lng: -0.1278},
			p2:   model.LatLng{Lat: 48.8566, Lng: 2.3522},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   model.LatLng{Lat: 0, Lng: 0},
			p2:   model.LatLng{Lat: 0, Lng: 1},
			want: 111195,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			margin := tt.want * 0.01
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
			if tt.want == 0 && got != 0 {
				t.Errorf("Distance() = %v, want 0", got)
			}
		})
	}
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	start := model.LatLng{Lat: 48.8584, Lng: 2.2945}
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		p := DestinationPoint(start, 40, bearing)
		if d := Distance(start, p); math.Abs(d-40) > 0.01 {
			t.Errorf("bearing %v: distance = %v, want 40", bearing, d)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		p    model.LatLng
		want bool
	}{
		{"Origin", model.LatLng{}, true},
		{"NaN lat", model.LatLng{Lat: math.NaN()}, false},
		{"Inf lng", model.LatLng{Lng: math.Inf(1)}, false},
		{"Out of range", model.LatLng{Lat: 91}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.p); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
