package llm

import (
	"context"
	"errors"
	"testing"
)

func TestFallbackAnswer(t *testing.T) {
	two := []string{"Built in 1790.", "Foucault swung his pendulum here."}
	one := []string{"Built in 1790."}

	tests := []struct {
		name   string
		facts  []string
		reason FallbackReason
		want   string
	}{
		{"error two facts", two, FallbackProviderError, "Built in 1790. Foucault swung his pendulum here."},
		{"error one fact", one, FallbackProviderError, "Based on what we know: Built in 1790."},
		{"error no facts", nil, FallbackProviderError, "I'm not sure. Try reading the stop description on screen."},
		{"empty two facts", two, FallbackEmptyAnswer, "Built in 1790. Foucault swung his pendulum here."},
		{"empty one fact", one, FallbackEmptyAnswer, "One fact we have: Built in 1790."},
		{"empty no facts", []string{"  "}, FallbackEmptyAnswer, "I don't have more details for that."},
		{"not configured", two, FallbackNotConfigured, "I don't have access to answers right now. Check the POI facts on screen."},
		{"rate limited", two, FallbackRateLimited, "Please try again in a minute."},
		{"unexpected", two, FallbackUnexpected, "Something went wrong. Check the facts on screen for this stop."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackAnswer(tt.facts, tt.reason); got != tt.want {
				t.Errorf("FallbackAnswer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnswerRequest_Recent(t *testing.T) {
	r := AnswerRequest{RecentContext: []string{"a", "b", "c", "d", "e", "f"}}
	got := r.Recent()
	if len(got) != 4 || got[0] != "c" || got[3] != "f" {
		t.Errorf("Recent() = %v", got)
	}
	if len((AnswerRequest{}).Recent()) != 0 {
		t.Error("empty context should stay empty")
	}
}

func TestParseTranscript(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{" hello ", "hello"},
		{map[string]any{"transcript": "what is this"}, "what is this"},
		{map[string]any{"result": "tell me more"}, "tell me more"},
		{map[string]any{"other": 1}, ""},
		{42, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := ParseTranscript(tt.in); got != tt.want {
			t.Errorf("ParseTranscript(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type stubAnswerer struct {
	answer string
	err    error
}

func (s stubAnswerer) Answer(context.Context, AnswerRequest) (string, error) {
	return s.answer, s.err
}

func TestAnswerWithFallback(t *testing.T) {
	req := AnswerRequest{Question: "When was it built?", POIFacts: []string{"Built in 1790."}}

	tests := []struct {
		name    string
		a       Answerer
		want    string
		wantErr error
	}{
		{"success", stubAnswerer{answer: " In 1790. "}, "In 1790.", nil},
		{"nil answerer", nil, "I don't have access to answers right now. Check the POI facts on screen.", ErrNotConfigured},
		{"blank answer", stubAnswerer{answer: "  "}, "One fact we have: Built in 1790.", ErrEmptyAnswer},
		{"status error", stubAnswerer{err: &ProviderError{Provider: "openrouter", StatusCode: 503, Err: errors.New("down")}}, "Based on what we know: Built in 1790.", nil},
		{"rate limited", stubAnswerer{err: &ProviderError{Provider: "gemini", StatusCode: 429, Err: errors.New("slow")}}, "Please try again in a minute.", nil},
		{"unexpected", stubAnswerer{err: errors.New("boom")}, "Something went wrong. Check the facts on screen for this stop.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AnswerWithFallback(context.Background(), tt.a, req)
			if got != tt.want {
				t.Errorf("answer = %q, want %q", got, tt.want)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.name == "success" && err != nil {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestProviderError_Fatal(t *testing.T) {
	if !(&ProviderError{StatusCode: 401}).Fatal() || !(&ProviderError{StatusCode: 403}).Fatal() {
		t.Error("401/403 should be fatal")
	}
	if (&ProviderError{StatusCode: 500}).Fatal() {
		t.Error("500 should not be fatal")
	}
}
