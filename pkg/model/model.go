package model

// LatLng is a pair of WGS84 degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationUpdate is a single sensor or simulated sample.
// Accuracy and Speed are zero when the source did not report them.
type LocationUpdate struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy,omitempty"` // horizontal uncertainty in meters
	Speed     float64 `json:"speed,omitempty"`    // m/s
	Timestamp int64   `json:"timestamp"`          // unix millis, non-decreasing
}

// Position returns the coordinate part of the update.
func (u LocationUpdate) Position() LatLng {
	return LatLng{Lat: u.Lat, Lng: u.Lng}
}

// POI is a tour waypoint with a trigger radius and narration content.
type POI struct {
	ID            string   `json:"poi_id"`
	TourID        string   `json:"tour_id"`
	Name          string   `json:"name"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	RadiusM       float64  `json:"radius_m"`
	OrderIndex    int      `json:"order_index"`
	Script        Script   `json:"script"`
	Facts         []string `json:"facts"`
	ScriptVersion string   `json:"script_version,omitempty"`
}

// Position returns the POI coordinate.
func (p POI) Position() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// Tour is a loaded walking tour. POIs are held separately in tour order.
type Tour struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	City              string     `json:"city"`
	RoutePoints       []LatLng   `json:"route_points"`
	POIIDs            []string   `json:"poi_ids"`
	DefaultVoiceStyle VoiceStyle `json:"default_voice_style"`
	DefaultLang       Lang       `json:"default_lang"`
	IntroText         string     `json:"intro_text,omitempty"`
	OutroText         string     `json:"outro_text,omitempty"`
	EstimatedMinutes  int        `json:"estimated_minutes,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
}

// TriggerPOI is the only event type emitted by the geofence engine.
const TriggerPOI = "POI_TRIGGER"

// TriggerEvent reports arrival at a POI.
type TriggerEvent struct {
	Type      string  `json:"type"`
	POIID     string  `json:"poi_id"`
	DistM     float64 `json:"dist_m"`
	Timestamp int64   `json:"timestamp"`
}
