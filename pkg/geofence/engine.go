// Package geofence converts a stream of noisy location updates into debounced
// POI arrival events.
package geofence

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"odysseywalk/pkg/model"
)

// DistanceFunc returns the distance between two points in meters.
type DistanceFunc func(a, b model.LatLng) float64

// Config holds the classification constants.
type Config struct {
	NextK                int           `yaml:"next_k"`                   // candidate window over unvisited POIs
	AccuracyClampMax     float64       `yaml:"accuracy_clamp_max_m"`     // cap on radius widening from GPS accuracy
	ExitHysteresisM      float64       `yaml:"exit_hysteresis_m"`        // extra margin before an inside POI counts as left
	ConsecutiveInside    int           `yaml:"consecutive_inside"`       // samples needed before firing
	Cooldown             time.Duration `yaml:"cooldown"`                 // per-POI refire guard
	DefaultRadiusM       float64       `yaml:"default_radius_m"`         // used when a POI has no radius
	ResetOnVisitedChange bool          `yaml:"reset_on_visited_change"` // drop all state when the visited set changes
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		NextK:             3,
		AccuracyClampMax:  30,
		ExitHysteresisM:   5,
		ConsecutiveInside: 1,
		Cooldown:          60 * time.Second,
		DefaultRadiusM:    35,
	}
}

type poiState struct {
	consecutiveInside int
	lastInside        bool
	lastTrigger       int64
	fired             bool
}

// Engine classifies location updates against an ordered POI list.
// It is not safe for concurrent use; callers serialize Check calls.
type Engine struct {
	pois     []model.POI
	cfg      Config
	distance DistanceFunc
	state    map[string]*poiState

	lastVisited []string
}

// NewEngine sorts a copy of pois by OrderIndex (stable, so list position breaks ties).
func NewEngine(pois []model.POI, cfg Config, distance DistanceFunc) *Engine {
	sorted := slices.Clone(pois)
	slices.SortStableFunc(sorted, func(a, b model.POI) int {
		return a.OrderIndex - b.OrderIndex
	})
	if cfg.NextK <= 0 {
		cfg.NextK = 3
	}
	if cfg.ConsecutiveInside <= 0 {
		cfg.ConsecutiveInside = 1
	}
	if cfg.DefaultRadiusM <= 0 {
		cfg.DefaultRadiusM = 35
	}
	return &Engine{
		pois:     sorted,
		cfg:      cfg,
		distance: distance,
		state:    make(map[string]*poiState),
	}
}

// POIs returns the engine's tour-ordered POI list.
func (e *Engine) POIs() []model.POI {
	return slices.Clone(e.pois)
}

// Reset drops all debounce, hysteresis and cooldown state.
func (e *Engine) Reset() {
	e.state = make(map[string]*poiState)
}

// Candidates returns the first NextK POIs not in visited, in tour order.
func (e *Engine) Candidates(visited *model.VisitedSet) []model.POI {
	out := make([]model.POI, 0, e.cfg.NextK)
	for _, p := range e.pois {
		if visited.Contains(p.ID) {
			continue
		}
		out = append(out, p)
		if len(out) == e.cfg.NextK {
			break
		}
	}
	return out
}

// Check returns at most one trigger for the update, or nil.
func (e *Engine) Check(u model.LocationUpdate, visited *model.VisitedSet) *model.TriggerEvent {
	if e.cfg.ResetOnVisitedChange {
		ids := visited.IDs()
		if !slices.Equal(ids, e.lastVisited) {
			e.Reset()
			e.lastVisited = ids
		}
	}

	if !finite(u.Lat) || !finite(u.Lng) {
		slog.Debug("Geofence: ignoring malformed update", "lat", u.Lat, "lng", u.Lng)
		return nil
	}
	pos := u.Position()

	for _, poi := range e.Candidates(visited) {
		dist := e.distance(pos, poi.Position())
		if !finite(dist) {
			continue
		}
		eff := e.effectiveRadius(poi, u.Accuracy)

		st := e.stateFor(poi.ID)
		inside := dist <= eff
		reallyInside := inside || (st.lastInside && dist <= eff+e.cfg.ExitHysteresisM)
		st.lastInside = reallyInside

		if !reallyInside {
			st.consecutiveInside = 0
			continue
		}
		st.consecutiveInside++
		if st.consecutiveInside < e.cfg.ConsecutiveInside {
			continue
		}
		if st.fired && u.Timestamp-st.lastTrigger < e.cfg.Cooldown.Milliseconds() {
			continue
		}

		st.fired = true
		st.lastTrigger = u.Timestamp
		st.consecutiveInside = 0
		return &model.TriggerEvent{
			Type:      model.TriggerPOI,
			POIID:     poi.ID,
			DistM:     dist,
			Timestamp: u.Timestamp,
		}
	}
	return nil
}

func (e *Engine) effectiveRadius(poi model.POI, accuracy float64) float64 {
	radius := poi.RadiusM
	if !finite(radius) || radius <= 0 {
		radius = e.cfg.DefaultRadiusM
	}
	if math.IsNaN(accuracy) || accuracy < 0 {
		accuracy = 0
	}
	return radius + math.Min(accuracy, e.cfg.AccuracyClampMax)
}

func (e *Engine) stateFor(id string) *poiState {
	st, ok := e.state[id]
	if !ok {
		st = &poiState{}
		e.state[id] = st
	}
	return st
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
