package narrator

import (
	"context"
	"fmt"
	"log/slog"

	"odysseywalk/pkg/location"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/session"
)

// SetMode switches the location source. Geofence state is reset because the
// two sources disagree about where the walker is.
func (s *Service) SetMode(ctx context.Context, mode model.Mode) error {
	switch mode {
	case model.ModeDemo, model.ModeReal:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode == model.ModeReal && s.real == nil {
		return ErrNoRealProvider
	}

	s.modeMu.Lock()
	defer s.modeMu.Unlock()

	prev := s.session.State().Mode
	if prev == mode {
		return nil
	}
	s.session.SetMode(ctx, mode)
	s.session.Record(ctx, session.EventModeSwitch, "", fmt.Sprintf("%s->%s", prev, mode))

	s.engineMu.Lock()
	s.engine.Reset()
	s.engineMu.Unlock()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if running {
		s.activate(mode)
	}
	slog.Info("Narrator: location mode changed", "from", prev, "to", mode)
	s.emit(Event{Type: EventMode, Mode: mode})
	return nil
}

// onPermissionDenied falls back to demo mode so the tour stays usable.
func (s *Service) onPermissionDenied() {
	slog.Warn("Narrator: location permission denied, switching to demo mode")
	s.setNotice(UserMessage(location.ErrPermissionDenied))
	s.trackEvent("permission_denied")
	s.goBackground(func(ctx context.Context) {
		if err := s.SetMode(ctx, model.ModeDemo); err != nil {
			slog.Error("Narrator: demo fallback failed", "error", err)
		}
	})
}

// SetVoice changes the narrator persona and language. Cached clips are in the
// old voice, so the cache is cleared and the next stops are prewarmed again.
func (s *Service) SetVoice(ctx context.Context, style model.VoiceStyle, lang model.Lang) {
	st := s.session.State()
	if style == "" {
		style = st.VoiceStyle
	}
	if lang == "" {
		lang = st.Lang
	}
	s.audio.SetVoice(style, lang)
	s.audio.ClearAudioCache()
	s.session.SetVoice(ctx, style, lang)
	s.session.Record(ctx, session.EventVoiceChange, "", fmt.Sprintf("%s/%s", style, lang))
	s.emit(Event{Type: EventVoice, VoiceStyle: style, Lang: lang})
	s.goBackground(s.prewarmNext)
}

func (s *Service) setNotice(msg string) {
	s.mu.Lock()
	s.notice = msg
	s.mu.Unlock()
	s.emit(Event{Type: EventNotice, Text: msg})
}
