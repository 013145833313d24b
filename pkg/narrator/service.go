// Package narrator runs a walking tour: it feeds location updates to the
// geofence engine, narrates triggered stops, answers questions and keeps the
// session up to date.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/geo"
	"odysseywalk/pkg/geofence"
	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/location"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/session"
	"odysseywalk/pkg/tour"
	"odysseywalk/pkg/tracker"
)

var (
	// ErrUnknownPOI is returned for a stop id that is not in the tour.
	ErrUnknownPOI = errors.New("unknown stop")
	// ErrNoActivePOI is returned by Replay before any stop was reached.
	ErrNoActivePOI = errors.New("no active stop")
	// ErrTourComplete is returned when every stop has been visited.
	ErrTourComplete = errors.New("all stops visited")
	// ErrNotDemo is returned for simulator controls outside demo mode.
	ErrNotDemo = errors.New("not in demo mode")
	// ErrNoRealProvider is returned when switching to real mode without a sensor.
	ErrNoRealProvider = errors.New("no real location provider configured")
	// ErrInvalidMode is returned for a mode other than real or demo.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrNoFallback is returned by TryAudioAgain when nothing failed.
	ErrNoFallback = errors.New("no failed narration to retry")
	// ErrEmptyQuestion is returned for a blank typed question.
	ErrEmptyQuestion = errors.New("empty question")
	// ErrTranscription wraps speech recognition failures.
	ErrTranscription = errors.New("transcription failed")
)

// Config tunes the narrator.
type Config struct {
	PrewarmAhead int
	DemoDelay    time.Duration
	Mode         model.Mode // initial mode for a new session
	VoiceStyle   model.VoiceStyle
	Lang         model.Lang
	UpdateBuffer int
}

// DefaultConfig prewarms the next two stops and starts in demo mode.
func DefaultConfig() Config {
	return Config{
		PrewarmAhead: 2,
		DemoDelay:    8 * time.Second,
		Mode:         model.ModeDemo,
		UpdateBuffer: 64,
	}
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Tour        *tour.Bundle
	Engine      *geofence.Engine // built from the tour with defaults when nil
	Sim         *location.SimProvider
	Real        location.Provider // nil disables real mode
	Audio       Audio
	Session     *session.Manager
	Answerer    llm.Answerer
	Transcriber llm.Transcriber
	Tracker     *tracker.Tracker
}

// TextFallback is narration that could not be played and is shown instead.
type TextFallback struct {
	POIID string `json:"poi_id,omitempty"`
	Text  string `json:"text"`
}

// Service orchestrates one tour.
type Service struct {
	tour        *tour.Bundle
	engine      *geofence.Engine
	sim         *location.SimProvider
	real        location.Provider
	audio       Audio
	session     *session.Manager
	answerer    llm.Answerer
	transcriber llm.Transcriber
	tracker     *tracker.Tracker
	cfg         Config

	updates  chan model.LocationUpdate
	engineMu sync.Mutex
	modeMu   sync.Mutex
	wg       sync.WaitGroup

	mu           sync.RWMutex
	running      bool
	bg           context.Context
	cancel       context.CancelFunc
	unsubLoc     func()
	unsubAudio   func()
	tourStarted  bool
	finished     bool
	lastLoc      *model.LocationUpdate
	fallback     *TextFallback
	askState     AskState
	recent       []string
	notice       string
	listeners    map[uint64]func(Event)
	nextListener uint64
}

// New wires a Service. Tour, Sim, Audio and Session are required.
func New(d Deps, cfg Config) (*Service, error) {
	if d.Tour == nil || d.Sim == nil || d.Audio == nil || d.Session == nil {
		return nil, fmt.Errorf("narrator: tour, simulator, audio and session are required")
	}
	def := DefaultConfig()
	if cfg.PrewarmAhead < 0 {
		cfg.PrewarmAhead = 0
	}
	if cfg.DemoDelay <= 0 {
		cfg.DemoDelay = def.DemoDelay
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = def.UpdateBuffer
	}
	if cfg.VoiceStyle == "" {
		cfg.VoiceStyle = d.Tour.Tour.DefaultVoiceStyle
	}
	if cfg.Lang == "" {
		cfg.Lang = d.Tour.Tour.DefaultLang
	}

	eng := d.Engine
	if eng == nil {
		eng = geofence.NewEngine(d.Tour.POIs, geofence.DefaultConfig(), geo.Distance)
	}

	s := &Service{
		tour:        d.Tour,
		engine:      eng,
		sim:         d.Sim,
		real:        d.Real,
		audio:       d.Audio,
		session:     d.Session,
		answerer:    d.Answerer,
		transcriber: d.Transcriber,
		tracker:     d.Tracker,
		cfg:         cfg,
		updates:     make(chan model.LocationUpdate, cfg.UpdateBuffer),
		askState:    AskIdle,
		listeners:   make(map[uint64]func(Event)),
	}

	positions := make([]location.POIPosition, 0, len(d.Tour.POIs))
	for _, p := range d.Tour.POIs {
		positions = append(positions, location.POIPosition{ID: p.ID, Pos: p.Position()})
	}
	s.sim.SetRoute(d.Tour.Tour.RoutePoints)
	s.sim.SetPOIPositions(positions)

	if pn, ok := d.Real.(permissionNotifier); ok {
		pn.SetPermissionCallback(s.onPermissionDenied)
	}
	return s, nil
}

// Start begins a session for the tour unless one was restored, subscribes to
// the active location source and starts processing updates.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.bg, s.cancel = context.WithCancel(ctx)
	s.running = true
	bg := s.bg
	s.mu.Unlock()

	st := s.session.State()
	if st.TourID != s.tour.Tour.ID {
		st = s.session.Start(bg, s.tour.Tour.ID, s.cfg.Mode, s.cfg.VoiceStyle, s.cfg.Lang)
	} else if len(st.VisitedPOIIDs) > 0 {
		s.mu.Lock()
		s.tourStarted = true
		s.mu.Unlock()
	}
	s.audio.SetVoice(st.VoiceStyle, st.Lang)

	mode := st.Mode
	if mode == model.ModeReal && s.real == nil {
		slog.Warn("Narrator: real mode requested without a location sensor, using demo")
		mode = model.ModeDemo
		s.session.SetMode(bg, mode)
	}
	if mode == "" {
		mode = model.ModeDemo
		s.session.SetMode(bg, mode)
	}

	unsubAudio := s.audio.Subscribe(func(state model.AudioState) {
		s.emit(Event{Type: EventAudioState, State: state})
	})
	s.mu.Lock()
	s.unsubAudio = unsubAudio
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(bg)

	s.activate(mode)
	s.mu.RLock()
	fresh := !s.tourStarted
	s.mu.RUnlock()
	if fresh {
		s.goBackground(s.prewarmTourStart)
	}
	slog.Info("Narrator started", "tour", s.tour.Tour.ID, "session", st.SessionID, "mode", mode, "visited", len(st.VisitedPOIIDs))
	return nil
}

// Stop halts location sources and playback and waits for background work.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	unsubLoc, unsubAudio := s.unsubLoc, s.unsubAudio
	s.unsubLoc, s.unsubAudio = nil, nil
	s.mu.Unlock()

	cancel()
	if unsubLoc != nil {
		unsubLoc()
	}
	if unsubAudio != nil {
		unsubAudio()
	}
	s.sim.Stop()
	if s.real != nil {
		s.real.Stop()
	}
	s.audio.Stop()
	s.wg.Wait()
	slog.Info("Narrator stopped")
}

// activate subscribes to the provider for mode and starts it.
func (s *Service) activate(mode model.Mode) {
	var p location.Provider = s.sim
	if mode == model.ModeReal {
		p = s.real
	}
	unsub := p.Subscribe(s.handleUpdate)

	s.mu.Lock()
	old := s.unsubLoc
	s.unsubLoc = unsub
	started := s.tourStarted
	s.mu.Unlock()
	if old != nil {
		old()
	}

	if mode == model.ModeReal {
		s.sim.Stop()
		s.real.Start()
		return
	}
	if s.real != nil {
		s.real.Stop()
	}
	if started {
		s.sim.Start()
	}
}

// handleUpdate runs on the provider's goroutine and only queues the update.
func (s *Service) handleUpdate(u model.LocationUpdate) {
	select {
	case s.updates <- u:
	default:
		slog.Warn("Narrator: location backlog full, dropping update", "ts", u.Timestamp)
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			s.processUpdate(ctx, u)
		}
	}
}

func (s *Service) processUpdate(ctx context.Context, u model.LocationUpdate) {
	s.mu.Lock()
	s.lastLoc = &u
	s.mu.Unlock()
	s.emit(Event{Type: EventLocation, Location: &u})

	visited := s.session.Visited()
	s.engineMu.Lock()
	ev := s.engine.Check(u, visited)
	s.engineMu.Unlock()
	if ev == nil {
		return
	}

	poi, ok := s.tour.POI(ev.POIID)
	if !ok {
		slog.Warn("Narrator: trigger for unknown stop", "poi", ev.POIID)
		return
	}
	slog.Info("Narrator: stop reached", "poi", poi.ID, "name", poi.Name, "dist_m", fmt.Sprintf("%.1f", ev.DistM))
	s.trackEvent("poi_trigger")
	s.session.Record(ctx, session.EventTrigger, poi.ID, fmt.Sprintf("dist_m=%.1f", ev.DistM))
	s.emit(Event{Type: EventTrigger, POIID: poi.ID, Text: poi.Name})
	s.narrate(poi)
}

// narrate marks poi visited and active, then plays it in the background.
func (s *Service) narrate(poi model.POI) {
	ctx := s.context()
	s.session.MarkVisited(ctx, poi.ID)
	s.session.SetActive(ctx, poi.ID)

	st := s.session.State()
	text := model.ResolveNarrationText(poi.Script, st.VoiceStyle)
	opts := audio.NarrationOptions{VoiceStyle: st.VoiceStyle, Lang: st.Lang, ScriptVersion: poi.ScriptVersion}

	s.goBackground(func(ctx context.Context) {
		s.playPOI(ctx, poi, text, opts)
	})
	s.goBackground(s.prewarmNext)
}

func (s *Service) playPOI(ctx context.Context, poi model.POI, text string, opts audio.NarrationOptions) {
	if text == "" {
		slog.Warn("Narrator: stop has no script", "poi", poi.ID)
		return
	}
	res := s.audio.PlayNarration(ctx, poi.ID, text, opts)
	switch {
	case res.Interrupted:
		return
	case res.TextFallback != "":
		slog.Warn("Narrator: narration shown as text", "poi", poi.ID, "error", res.Err)
		s.setFallback(&TextFallback{POIID: poi.ID, Text: res.TextFallback})
		s.trackEvent("text_fallback")
		s.session.Record(ctx, session.EventTextFallback, poi.ID, errString(res.Err))
	default:
		s.setFallback(nil)
		detail := "synthesized"
		if res.Placeholder {
			detail = "placeholder"
		}
		s.session.Record(ctx, session.EventNarration, poi.ID, detail)
	}
}

// prewarmNext synthesizes the upcoming stops so they start instantly. Once
// every stop is visited the outro is prewarmed instead.
func (s *Service) prewarmNext(ctx context.Context) {
	st := s.session.State()
	visited := s.session.Visited()
	if len(s.tour.NextUnvisited(visited, 1)) == 0 {
		s.prewarm(ctx, "outro", s.textItem(audio.PurposeOutro, s.tour.Tour.OutroText, st)...)
		return
	}
	if s.cfg.PrewarmAhead == 0 {
		return
	}
	s.prewarm(ctx, "upcoming stops", s.poiItems(s.tour.NextUnvisited(visited, s.cfg.PrewarmAhead), st)...)
}

// prewarmTourStart synthesizes the intro and the first stop before the
// walker presses start.
func (s *Service) prewarmTourStart(ctx context.Context) {
	st := s.session.State()
	items := s.textItem(audio.PurposeIntro, s.tour.Tour.IntroText, st)
	items = append(items, s.poiItems(s.tour.NextUnvisited(s.session.Visited(), 1), st)...)
	s.prewarm(ctx, "tour start", items...)
}

func (s *Service) prewarm(ctx context.Context, what string, items ...audio.PrewarmItem) {
	if len(items) == 0 {
		return
	}
	if n := s.audio.Prewarm(ctx, items); n > 0 {
		slog.Debug("Narrator: prewarmed "+what, "count", n)
	}
}

func (s *Service) textItem(purpose, text string, st model.SessionState) []audio.PrewarmItem {
	if text == "" {
		return nil
	}
	return []audio.PrewarmItem{{Purpose: purpose, Text: text, VoiceStyle: st.VoiceStyle, Lang: st.Lang}}
}

func (s *Service) poiItems(pois []model.POI, st model.SessionState) []audio.PrewarmItem {
	items := make([]audio.PrewarmItem, 0, len(pois))
	for _, p := range pois {
		items = append(items, audio.PrewarmItem{
			Purpose:       audio.PurposePOI,
			POIID:         p.ID,
			Text:          model.ResolveNarrationText(p.Script, st.VoiceStyle),
			VoiceStyle:    st.VoiceStyle,
			Lang:          st.Lang,
			ScriptVersion: p.ScriptVersion,
		})
	}
	return items
}

// goBackground runs fn on the service lifetime context. Nothing new starts
// once Stop has begun, so Stop's wait covers every goroutine.
func (s *Service) goBackground(fn func(ctx context.Context)) {
	s.mu.RLock()
	if s.bg != nil && !s.running {
		s.mu.RUnlock()
		return
	}
	ctx := s.bg
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	s.mu.RUnlock()
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *Service) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bg == nil {
		return context.Background()
	}
	return s.bg
}

func (s *Service) setFallback(fb *TextFallback) {
	s.mu.Lock()
	s.fallback = fb
	s.mu.Unlock()
	if fb != nil {
		s.emit(Event{Type: EventTextFallback, POIID: fb.POIID, Text: fb.Text})
	}
}

func (s *Service) trackEvent(name string) {
	if s.tracker != nil {
		s.tracker.TrackEvent(name)
	}
}

func (s *Service) mode() model.Mode {
	return s.session.State().Mode
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
