package narrator

import (
	"time"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/model"
)

// Event types pushed to subscribers.
const (
	EventAudioState   = "audio_state"
	EventLocation     = "location"
	EventTrigger      = "trigger"
	EventTextFallback = "text_fallback"
	EventMode         = "mode"
	EventVoice        = "voice"
	EventAsk          = "ask"
	EventAnswer       = "answer"
	EventNotice       = "notice"
	EventFinished     = "finished"
)

// Event is a change observers may want to render.
type Event struct {
	Type       string                `json:"type"`
	At         int64                 `json:"at"`
	State      model.AudioState      `json:"state,omitempty"`
	Location   *model.LocationUpdate `json:"location,omitempty"`
	POIID      string                `json:"poi_id,omitempty"`
	Text       string                `json:"text,omitempty"`
	Mode       model.Mode            `json:"mode,omitempty"`
	VoiceStyle model.VoiceStyle      `json:"voice_style,omitempty"`
	Lang       model.Lang            `json:"lang,omitempty"`
}

// Status is a snapshot of the walk.
type Status struct {
	TourID       string                `json:"tour_id"`
	TourName     string                `json:"tour_name"`
	SessionID    string                `json:"session_id"`
	Running      bool                  `json:"running"`
	Started      bool                  `json:"started"`
	Finished     bool                  `json:"finished"`
	Mode         model.Mode            `json:"mode"`
	VoiceStyle   model.VoiceStyle      `json:"voice_style"`
	Lang         model.Lang            `json:"lang"`
	AudioState   model.AudioState      `json:"audio_state"`
	AskState     AskState              `json:"ask_state"`
	Visited      []string              `json:"visited_poi_ids"`
	ActivePOIID  string                `json:"active_poi_id,omitempty"`
	NextPOIID    string                `json:"next_poi_id,omitempty"`
	NextPOIName  string                `json:"next_poi_name,omitempty"`
	TotalStops   int                   `json:"total_stops"`
	Location     *model.LocationUpdate `json:"location,omitempty"`
	TextFallback *TextFallback         `json:"text_fallback,omitempty"`
	Notice       string                `json:"notice,omitempty"`
	CachedClips  int                   `json:"cached_clips"`
	Transitions  []audio.Transition    `json:"transitions"`
}

// Status returns a snapshot including the last audio transitions.
func (s *Service) Status() Status {
	st := s.session.State()
	out := Status{
		TourID:      s.tour.Tour.ID,
		TourName:    s.tour.Tour.Name,
		SessionID:   st.SessionID,
		Mode:        st.Mode,
		VoiceStyle:  st.VoiceStyle,
		Lang:        st.Lang,
		AudioState:  s.audio.State(),
		Visited:     st.VisitedPOIIDs,
		ActivePOIID: st.ActivePOIID,
		TotalStops:  len(s.tour.POIs),
		CachedClips: s.audio.CacheLen(),
		Transitions: s.audio.History(),
	}
	if out.Visited == nil {
		out.Visited = []string{}
	}
	if next := s.tour.NextUnvisited(s.session.Visited(), 1); len(next) > 0 {
		out.NextPOIID = next[0].ID
		out.NextPOIName = next[0].Name
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out.Running = s.running
	out.Started = s.tourStarted
	out.Finished = s.finished
	out.AskState = s.askState
	out.Notice = s.notice
	if s.lastLoc != nil {
		loc := *s.lastLoc
		out.Location = &loc
	}
	if s.fallback != nil {
		fb := *s.fallback
		out.TextFallback = &fb
	}
	return out
}

// Subscribe registers fn for events. fn runs on the emitting goroutine and
// must not block.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(ev Event) {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
