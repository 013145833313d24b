package narrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/session"
)

// AskState follows a question from recording to the spoken answer.
type AskState string

const (
	AskIdle      AskState = "idle"
	AskListening AskState = "listening"
	AskThinking  AskState = "thinking"
	AskSpeaking  AskState = "speaking"
)

const maxRecentQuestions = 8

// Answer is the reply to a question.
type Answer struct {
	Question string `json:"question"`
	Text     string `json:"answer_text"`
	POIID    string `json:"poi_id,omitempty"`
	// FromFacts is true when no model answered and the stop's facts were used.
	FromFacts bool `json:"from_facts"`
}

// Ask ducks the narration, transcribes a recorded question and speaks the
// answer. A failed or empty transcript returns audio to idle.
func (s *Service) Ask(ctx context.Context, recording []byte, mimeType string) (*Answer, error) {
	s.setAskState(AskListening)
	s.audio.InterruptForListening(ctx)

	if s.transcriber == nil {
		s.abandonQuestion()
		return nil, fmt.Errorf("%w: %w", ErrTranscription, llm.ErrNotConfigured)
	}
	text, err := s.transcriber.Transcribe(ctx, recording, mimeType, s.session.State().Lang)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyTranscript
	}
	if err != nil {
		s.abandonQuestion()
		slog.Warn("Narrator: question not understood", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	return s.answer(ctx, strings.TrimSpace(text)), nil
}

// AskText answers a typed question.
func (s *Service) AskText(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	return s.answer(ctx, question), nil
}

func (s *Service) answer(ctx context.Context, question string) *Answer {
	s.setAskState(AskThinking)
	st := s.session.State()

	var poi model.POI
	if p, ok := s.tour.POI(st.ActivePOIID); ok {
		poi = p
	} else if len(s.tour.POIs) > 0 {
		poi = s.tour.POIs[0]
	}

	req := llm.AnswerRequest{
		TourID:        s.tour.Tour.ID,
		POIID:         poi.ID,
		POIName:       poi.Name,
		Question:      question,
		POIScript:     model.ResolveNarrationText(poi.Script, st.VoiceStyle),
		POIFacts:      poi.Facts,
		VoiceStyle:    st.VoiceStyle,
		Lang:          st.Lang,
		RecentContext: s.recentQuestions(),
	}
	text, err := llm.AnswerWithFallback(ctx, s.answerer, req)
	if err != nil {
		slog.Warn("Narrator: answered from stop facts", "poi", poi.ID, "error", err)
		s.trackEvent("answer_fallback")
	}
	s.pushRecent(question)
	s.trackEvent("question")
	s.session.Record(ctx, session.EventQuestion, poi.ID, question)

	ans := &Answer{Question: question, Text: text, POIID: poi.ID, FromFacts: err != nil}
	s.emit(Event{Type: EventAnswer, POIID: poi.ID, Text: text})

	s.setAskState(AskSpeaking)
	s.goBackground(func(ctx context.Context) {
		res := s.audio.PlayAnswerStream(ctx, text)
		if res.TextFallback != "" {
			slog.Warn("Narrator: answer shown as text", "error", res.Err)
		}
		s.setAskState(AskIdle)
	})
	return ans
}

func (s *Service) abandonQuestion() {
	s.audio.EndInteraction()
	s.setAskState(AskIdle)
}

func (s *Service) setAskState(st AskState) {
	s.mu.Lock()
	changed := s.askState != st
	s.askState = st
	s.mu.Unlock()
	if changed {
		s.emit(Event{Type: EventAsk, Text: string(st)})
	}
}

func (s *Service) recentQuestions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.recent...)
}

func (s *Service) pushRecent(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, q)
	if len(s.recent) > maxRecentQuestions {
		s.recent = s.recent[len(s.recent)-maxRecentQuestions:]
	}
}
