package narrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/location"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/session"
	"odysseywalk/pkg/tour"
)

type playCall struct {
	Kind  string
	POIID string
	Text  string
	Opts  audio.NarrationOptions
}

// fakeAudio returns immediately with a configurable result.
type fakeAudio struct {
	mu          sync.Mutex
	calls       []playCall
	result      func(kind string) audio.Result
	state       model.AudioState
	style       model.VoiceStyle
	lang        model.Lang
	cleared     int
	interrupted int
	ended       int
	stopped     int
	prewarmed   [][]audio.PrewarmItem
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{state: model.AudioIdle}
}

func (a *fakeAudio) record(kind, poiID, text string, opts audio.NarrationOptions) audio.Result {
	a.mu.Lock()
	a.calls = append(a.calls, playCall{Kind: kind, POIID: poiID, Text: text, Opts: opts})
	f := a.result
	a.mu.Unlock()
	if f != nil {
		return f(kind)
	}
	return audio.Result{Played: true}
}

func (a *fakeAudio) PlayNarration(ctx context.Context, poiID, text string, opts audio.NarrationOptions) audio.Result {
	return a.record("narration", poiID, text, opts)
}

func (a *fakeAudio) PlayAnswerStream(ctx context.Context, text string) audio.Result {
	return a.record("answer", "", text, audio.NarrationOptions{})
}

func (a *fakeAudio) PlayIntro(ctx context.Context, text string) audio.Result {
	return a.record("intro", "", text, audio.NarrationOptions{})
}

func (a *fakeAudio) PlayOutro(ctx context.Context, text string) audio.Result {
	return a.record("outro", "", text, audio.NarrationOptions{})
}

func (a *fakeAudio) InterruptForListening(ctx context.Context) {
	a.mu.Lock()
	a.interrupted++
	a.state = model.AudioListening
	a.mu.Unlock()
}

func (a *fakeAudio) EndInteraction() {
	a.mu.Lock()
	a.ended++
	a.state = model.AudioIdle
	a.mu.Unlock()
}

func (a *fakeAudio) Pause()  {}
func (a *fakeAudio) Resume() {}

func (a *fakeAudio) Stop() {
	a.mu.Lock()
	a.stopped++
	a.mu.Unlock()
}

func (a *fakeAudio) ClearAudioCache() {
	a.mu.Lock()
	a.cleared++
	a.mu.Unlock()
}

func (a *fakeAudio) CacheLen() int { return 0 }

func (a *fakeAudio) Prewarm(ctx context.Context, items []audio.PrewarmItem) int {
	a.mu.Lock()
	a.prewarmed = append(a.prewarmed, items)
	a.mu.Unlock()
	return len(items)
}

func (a *fakeAudio) SetVoice(style model.VoiceStyle, lang model.Lang) {
	a.mu.Lock()
	a.style, a.lang = style, lang
	a.mu.Unlock()
}

func (a *fakeAudio) State() model.AudioState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *fakeAudio) History() []audio.Transition {
	return []audio.Transition{{From: model.AudioIdle, To: model.AudioNavigating}}
}

func (a *fakeAudio) Subscribe(fn func(model.AudioState)) func() { return func() {} }

func (a *fakeAudio) callsOf(kind string) []playCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []playCall
	for _, c := range a.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// prewarmBatch returns the first prewarm call holding an item that matches.
func (a *fakeAudio) prewarmBatch(match func(audio.PrewarmItem) bool) []audio.PrewarmItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, batch := range a.prewarmed {
		for _, it := range batch {
			if match(it) {
				return batch
			}
		}
	}
	return nil
}

type fakeAnswerer struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []llm.AnswerRequest
}

func (f *fakeAnswerer) Answer(ctx context.Context, req llm.AnswerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.answer, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string, lang model.Lang) (string, error) {
	return f.text, f.err
}

// deniedProvider reports a permission denial whenever it is started.
type deniedProvider struct {
	mu      sync.Mutex
	onDeny  func()
	started int
}

func (p *deniedProvider) SetPermissionCallback(f func()) {
	p.mu.Lock()
	p.onDeny = f
	p.mu.Unlock()
}

func (p *deniedProvider) Subscribe(l location.Listener) func() { return func() {} }

func (p *deniedProvider) Start() {
	p.mu.Lock()
	p.started++
	cb := p.onDeny
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *deniedProvider) Stop() {}

type fixture struct {
	svc     *Service
	audio   *fakeAudio
	sim     *location.SimProvider
	clock   *clockwork.FakeClock
	session *session.Manager
	answers *fakeAnswerer
}

func newFixture(t *testing.T, mutate func(d *Deps, cfg *Config)) *fixture {
	t.Helper()
	b, err := tour.Demo()
	require.NoError(t, err)

	clk := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	f := &fixture{
		audio:   newFakeAudio(),
		sim:     location.NewSimProvider(location.DefaultSimConfig(), clk),
		clock:   clk,
		session: session.NewManager(nil, nil),
		answers: &fakeAnswerer{answer: "It opened in 1790."},
	}
	d := Deps{
		Tour:     b,
		Sim:      f.sim,
		Audio:    f.audio,
		Session:  f.session,
		Answerer: f.answers,
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&d, &cfg)
	}
	f.svc, err = New(d, cfg)
	require.NoError(t, err)
	require.NoError(t, f.svc.Start(context.Background()))
	t.Cleanup(f.svc.Stop)
	return f
}
