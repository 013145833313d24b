package narrator

import (
	"context"
	"log/slog"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/session"
)

// StartTour plays the intro, then in demo mode walks the route from its start.
func (s *Service) StartTour(ctx context.Context) {
	s.mu.Lock()
	s.tourStarted = true
	s.finished = false
	s.mu.Unlock()
	s.trackEvent("tour_start")

	intro := s.tour.Tour.IntroText
	s.goBackground(func(ctx context.Context) {
		if intro != "" {
			res := s.audio.PlayIntro(ctx, intro)
			if res.TextFallback != "" {
				s.setFallback(&TextFallback{Text: res.TextFallback})
			}
		}
		if ctx.Err() != nil {
			return
		}
		if s.mode() == model.ModeDemo {
			s.sim.Stop()
			s.sim.ResetToStart()
			s.sim.Start()
		}
	})
}

// SkipNext stops the current clip and moves on: one route step in demo mode,
// a forced trigger of the next stop otherwise.
func (s *Service) SkipNext() {
	s.audio.Stop()
	if s.mode() == model.ModeDemo {
		s.sim.StepForward()
		return
	}
	if _, err := s.ForceTriggerNext(); err != nil {
		slog.Debug("Narrator: nothing to skip to", "error", err)
	}
}

// Replay narrates the active stop again.
func (s *Service) Replay() error {
	id := s.session.State().ActivePOIID
	if id == "" {
		return ErrNoActivePOI
	}
	poi, ok := s.tour.POI(id)
	if !ok {
		return ErrUnknownPOI
	}
	s.narrate(poi)
	return nil
}

// JumpToPOI narrates a stop out of order and, in demo mode, moves the
// simulated walker there.
func (s *Service) JumpToPOI(id string) error {
	poi, ok := s.tour.POI(id)
	if !ok {
		return ErrUnknownPOI
	}
	s.narrate(poi)
	if s.mode() == model.ModeDemo {
		s.sim.JumpToPOI(id)
	}
	return nil
}

// ForceTriggerNext narrates the first unvisited stop as if it had been reached.
func (s *Service) ForceTriggerNext() (string, error) {
	next := s.tour.NextUnvisited(s.session.Visited(), 1)
	if len(next) == 0 {
		return "", ErrTourComplete
	}
	poi := next[0]
	s.trackEvent("poi_trigger_forced")
	s.session.Record(s.context(), session.EventTrigger, poi.ID, "forced")
	s.emit(Event{Type: EventTrigger, POIID: poi.ID, Text: poi.Name})
	s.narrate(poi)
	return poi.ID, nil
}

// StepForward advances the simulated walker one route point.
func (s *Service) StepForward() error {
	if s.mode() != model.ModeDemo {
		return ErrNotDemo
	}
	s.sim.StepForward()
	return nil
}

// RunDemo switches to demo mode and visits every remaining stop in order.
func (s *Service) RunDemo(ctx context.Context) error {
	if err := s.SetMode(ctx, model.ModeDemo); err != nil {
		return err
	}
	s.mu.Lock()
	s.tourStarted = true
	s.mu.Unlock()

	var ids []string
	for _, p := range s.tour.NextUnvisited(s.session.Visited(), len(s.tour.POIs)) {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return ErrTourComplete
	}
	slog.Info("Narrator: demo walk started", "stops", len(ids), "delay", s.cfg.DemoDelay)
	s.sim.RunDemoSequence(ids, s.cfg.DemoDelay, func(id string, i int) {
		slog.Debug("Demo: arrived", "poi", id, "step", i+1, "of", len(ids))
	})
	return nil
}

// FinishTour stops the walker and plays the outro.
func (s *Service) FinishTour(ctx context.Context) {
	s.sim.Stop()
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	s.trackEvent("tour_finished")
	s.session.Record(ctx, session.EventFinished, "", "")
	s.emit(Event{Type: EventFinished})

	outro := s.tour.Tour.OutroText
	if outro == "" {
		s.audio.Stop()
		return
	}
	s.goBackground(func(ctx context.Context) {
		if res := s.audio.PlayOutro(ctx, outro); res.TextFallback != "" {
			s.setFallback(&TextFallback{Text: res.TextFallback})
		}
	})
}

// TryAudioAgain retries the stop narration that fell back to text. An intro
// or outro shown as text stays on screen.
func (s *Service) TryAudioAgain() error {
	s.mu.Lock()
	fb := s.fallback
	if fb == nil || fb.POIID == "" {
		s.mu.Unlock()
		return ErrNoFallback
	}
	s.fallback = nil
	s.mu.Unlock()
	poi, ok := s.tour.POI(fb.POIID)
	if !ok {
		return ErrUnknownPOI
	}
	s.narrate(poi)
	return nil
}

// Pause pauses playback.
func (s *Service) Pause() { s.audio.Pause() }

// Resume resumes playback.
func (s *Service) Resume() { s.audio.Resume() }

// StopAudio halts playback without ending the tour.
func (s *Service) StopAudio() { s.audio.Stop() }

// ClearAudioCache drops every cached clip.
func (s *Service) ClearAudioCache() { s.audio.ClearAudioCache() }
