package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	orbgeo "github.com/paulmach/orb/geo"

	"odysseywalk/pkg/model"
)

// ErrNoRoute is returned when GeoJSON input holds no line geometry.
var ErrNoRoute = errors.New("no route geometry found")

// Bounds is a lat/lng bounding box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// ToLineString converts a route to orb order (lng, lat).
func ToLineString(route []model.LatLng) orb.LineString {
	ls := make(orb.LineString, 0, len(route))
	for _, p := range route {
		ls = append(ls, orb.Point{p.Lng, p.Lat})
	}
	return ls
}

func fromLineString(ls orb.LineString) []model.LatLng {
	out := make([]model.LatLng, 0, len(ls))
	for _, p := range ls {
		out = append(out, model.LatLng{Lat: p.Lat(), Lng: p.Lon()})
	}
	return out
}

// RouteFromGeoJSON extracts a walking route from a GeoJSON document.
// Accepts a FeatureCollection, a Feature or a bare geometry. LineStrings are
// concatenated in document order; a MultiLineString is flattened.
func RouteFromGeoJSON(data []byte) ([]model.LatLng, error) {
	var geoms []orb.Geometry

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		geoms = append(geoms, f.Geometry)
	} else if g, err := geojson.UnmarshalGeometry(data); err == nil {
		geoms = append(geoms, g.Geometry())
	} else {
		return nil, fmt.Errorf("failed to parse route geojson: %w", err)
	}

	var route []model.LatLng
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.LineString:
			route = append(route, fromLineString(v)...)
		case orb.MultiLineString:
			for _, ls := range v {
				route = append(route, fromLineString(ls)...)
			}
		}
	}
	if len(route) == 0 {
		return nil, ErrNoRoute
	}
	return route, nil
}

// RouteBounds returns the bounding box of a route. Empty routes give a zero box.
func RouteBounds(route []model.LatLng) Bounds {
	if len(route) == 0 {
		return Bounds{}
	}
	b := ToLineString(route).Bound()
	return Bounds{South: b.Min.Lat(), West: b.Min.Lon(), North: b.Max.Lat(), East: b.Max.Lon()}
}

// RouteLength returns the geodesic length of the route in meters.
func RouteLength(route []model.LatLng) float64 {
	if len(route) < 2 {
		return 0
	}
	return orbgeo.Length(ToLineString(route))
}

// EstimateWalkMinutes converts route length to minutes at the given pace (m/s).
func EstimateWalkMinutes(route []model.LatLng, speedMS float64) int {
	if speedMS <= 0 {
		return 0
	}
	return int(math.Ceil(RouteLength(route) / speedMS / 60))
}

// MatchRouteIndex returns the first route vertex within tol degrees of p on
// both axes, or -1.
func MatchRouteIndex(route []model.LatLng, p model.LatLng, tol float64) int {
	for i, r := range route {
		if math.Abs(r.Lat-p.Lat) < tol && math.Abs(r.Lng-p.Lng) < tol {
			return i
		}
	}
	return -1
}
