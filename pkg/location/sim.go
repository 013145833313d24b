package location

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"odysseywalk/pkg/geo"
	"odysseywalk/pkg/model"
)

// POIPosition is a POI id with its coordinate.
type POIPosition struct {
	ID  string
	Pos model.LatLng
}

// SimConfig configures a SimProvider.
type SimConfig struct {
	Step           time.Duration // interval between route points
	MatchTolerance float64       // degrees, for resyncing a POI jump onto the route
}

// DefaultSimConfig steps every 3 s.
func DefaultSimConfig() SimConfig {
	return SimConfig{Step: 3 * time.Second, MatchTolerance: 1e-5}
}

// SimProvider replays a route polyline on a timer, or teleports to POIs,
// for demos and for use without a sensor.
type SimProvider struct {
	cfg   SimConfig
	clock clockwork.Clock
	bc    broadcaster

	mu      sync.Mutex
	route   []model.LatLng
	pois    []POIPosition
	index   int
	ticker  clockwork.Timer
	tickGen int
	demo    clockwork.Timer
	demoGen int
}

// NewSimProvider creates an idle simulator.
func NewSimProvider(cfg SimConfig, clk clockwork.Clock) *SimProvider {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.Step <= 0 {
		cfg.Step = 3 * time.Second
	}
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = 1e-5
	}
	return &SimProvider{cfg: cfg, clock: clk}
}

func (s *SimProvider) Subscribe(l Listener) func() {
	return s.bc.subscribe(l)
}

// SetRoute replaces the route and rewinds to its first point.
func (s *SimProvider) SetRoute(points []model.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = append([]model.LatLng(nil), points...)
	s.index = 0
}

// SetPOIPositions replaces the POI lookup. Order is kept for the no-route fallback.
func (s *SimProvider) SetPOIPositions(pois []POIPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pois = append([]POIPosition(nil), pois...)
}

// Start emits the current route point and then advances one point per step.
// Without a route it emits the first POI position once.
func (s *SimProvider) Start() {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return
	}
	if len(s.route) == 0 {
		first, ok := s.firstPOILocked()
		s.mu.Unlock()
		if ok {
			s.emitAt(first)
		}
		return
	}
	p := s.route[s.index]
	s.tickGen++
	s.scheduleTickLocked(s.tickGen)
	s.mu.Unlock()

	s.emitAt(p)
}

// Stop cancels the route timer and any demo sequence.
func (s *SimProvider) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Running reports whether the route timer is armed.
func (s *SimProvider) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *SimProvider) stopLocked() {
	s.tickGen++
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.demoGen++
	if s.demo != nil {
		s.demo.Stop()
		s.demo = nil
	}
}

func (s *SimProvider) scheduleTickLocked(gen int) {
	s.ticker = s.clock.AfterFunc(s.cfg.Step, func() { s.tick(gen) })
}

func (s *SimProvider) tick(gen int) {
	s.mu.Lock()
	if gen != s.tickGen || len(s.route) == 0 {
		s.mu.Unlock()
		return
	}
	s.index = min(s.index+1, len(s.route)-1)
	p := s.route[s.index]
	s.scheduleTickLocked(gen)
	s.mu.Unlock()

	s.emitAt(p)
}

// StepForward advances one route point immediately, clamped at the end.
func (s *SimProvider) StepForward() {
	s.mu.Lock()
	if len(s.route) == 0 {
		s.mu.Unlock()
		return
	}
	s.index = min(s.index+1, len(s.route)-1)
	p := s.route[s.index]
	s.mu.Unlock()

	s.emitAt(p)
}

// JumpToPOI emits the POI's coordinate and resyncs the route index when the
// coordinate lies on a route vertex. Unknown ids are ignored.
func (s *SimProvider) JumpToPOI(id string) {
	s.mu.Lock()
	pos, ok := s.poiLocked(id)
	if !ok {
		s.mu.Unlock()
		slog.Debug("SimProvider: unknown POI", "poi_id", id)
		return
	}
	if idx := geo.MatchRouteIndex(s.route, pos, s.cfg.MatchTolerance); idx >= 0 {
		s.index = idx
	}
	s.mu.Unlock()

	s.emitAt(pos)
}

// ResetToStart rewinds to the first route point (or first POI) and emits it.
func (s *SimProvider) ResetToStart() {
	s.mu.Lock()
	s.index = 0
	var p model.LatLng
	ok := false
	if len(s.route) > 0 {
		p, ok = s.route[0], true
	} else {
		p, ok = s.firstPOILocked()
	}
	s.mu.Unlock()

	if ok {
		s.emitAt(p)
	}
}

// RunDemoSequence stops the route timer, then jumps to each POI in order with
// delay between stops, calling onEach after each jump. Stop cancels it.
func (s *SimProvider) RunDemoSequence(ids []string, delay time.Duration, onEach func(id string, index int)) {
	ids = append([]string(nil), ids...)

	s.mu.Lock()
	s.stopLocked()
	gen := s.demoGen
	s.mu.Unlock()

	var runNext func(i int)
	runNext = func(i int) {
		s.mu.Lock()
		if gen != s.demoGen || i >= len(ids) {
			s.mu.Unlock()
			return
		}
		s.demo = nil
		s.mu.Unlock()

		s.JumpToPOI(ids[i])
		if onEach != nil {
			onEach(ids[i], i)
		}

		if i+1 < len(ids) {
			s.mu.Lock()
			if gen == s.demoGen {
				s.demo = s.clock.AfterFunc(delay, func() { runNext(i + 1) })
			}
			s.mu.Unlock()
		}
	}
	runNext(0)
}

// CurrentPosition returns the route point at the current index, or the first
// POI when no route is set.
func (s *SimProvider) CurrentPosition() (model.LatLng, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.route) == 0 {
		return s.firstPOILocked()
	}
	return s.route[s.index], true
}

// CurrentIndex returns the route index.
func (s *SimProvider) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *SimProvider) firstPOILocked() (model.LatLng, bool) {
	if len(s.pois) == 0 {
		return model.LatLng{}, false
	}
	return s.pois[0].Pos, true
}

func (s *SimProvider) poiLocked(id string) (model.LatLng, bool) {
	for _, p := range s.pois {
		if p.ID == id {
			return p.Pos, true
		}
	}
	return model.LatLng{}, false
}

func (s *SimProvider) emitAt(p model.LatLng) {
	s.bc.emit(model.LocationUpdate{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Timestamp: s.clock.Now().UnixMilli(),
	})
}
