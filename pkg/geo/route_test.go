package geo

import (
	"math"
	"testing"

	"odysseywalk/pkg/model"
)

func TestRouteFromGeoJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{
			name:    "FeatureCollection",
			input:   `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[2.29,48.85],[2.30,48.86]]}}]}`,
			wantLen: 2,
		},
		{
			name:    "Bare LineString",
			input:   `{"type":"LineString","coordinates":[[2.29,48.85],[2.30,48.86],[2.31,48.87]]}`,
			wantLen: 3,
		},
		{
			name:    "MultiLineString feature",
			input:   `{"type":"Feature","properties":{},"geometry":{"type":"MultiLineString","coordinates":[[[0,0],[0,1]],[[0,2],[0,3]]]}}`,
			wantLen: 4,
		},
		{
			name:    "Point only",
			input:   `{"type":"Point","coordinates":[2.29,48.85]}`,
			wantErr: true,
		},
		{
			name:    "Garbage",
			input:   `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := RouteFromGeoJSON([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(route) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(route), tt.wantLen)
			}
		})
	}
}

func TestRouteFromGeoJSON_AxisOrder(t *testing.T) {
	route, err := RouteFromGeoJSON([]byte(`{"type":"LineString","coordinates":[[2.29,48.85],[2.30,48.86]]}`))
	if err != nil {
		t.Fatal(err)
	}
	if route[0].Lat != 48.85 || route[0].Lng != 2.29 {
		t.Errorf("got %+v, want lat 48.85 lng 2.29", route[0])
	}
}

func TestRouteBoundsAndLength(t *testing.T) {
	route := []model.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0.01, Lng: 0.01}}

	b := RouteBounds(route)
	if b.South != 0 || b.West != 0 || b.North != 0.01 || b.East != 0.01 {
		t.Errorf("unexpected bounds %+v", b)
	}

	want := Distance(route[0], route[1]) + Distance(route[1], route[2])
	if got := RouteLength(route); math.Abs(got-want) > want*0.01 {
		t.Errorf("RouteLength = %v, want ~%v", got, want)
	}

	if RouteLength(route[:1]) != 0 {
		t.Error("single point route should have zero length")
	}
	if (RouteBounds(nil) != Bounds{}) {
		t.Error("empty route should have zero bounds")
	}
}

func TestMatchRouteIndex(t *testing.T) {
	route := []model.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}, {Lat: 3, Lng: 3}}
	if got := MatchRouteIndex(route, model.LatLng{Lat: 2.000001, Lng: 2}, 1e-5); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if got := MatchRouteIndex(route, model.LatLng{Lat: 2.1, Lng: 2}, 1e-5); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}
