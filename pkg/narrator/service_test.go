package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/location"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tour"
	"odysseywalk/pkg/tts"
)

const wait = 2 * time.Second

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, DefaultConfig())
	assert.Error(t, err)
}

func TestService_StartsSession(t *testing.T) {
	f := newFixture(t, nil)
	st := f.svc.Status()
	assert.Equal(t, "paris-latin-quarter", st.TourID)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, model.ModeDemo, st.Mode)
	assert.Equal(t, "pantheon", st.NextPOIID)
	assert.Equal(t, 4, st.TotalStops)
	assert.Empty(t, st.Visited)
	assert.Len(t, st.Transitions, 1)
}

func TestService_TriggerNarratesStop(t *testing.T) {
	f := newFixture(t, nil)

	var events []Event
	evCh := make(chan Event, 64)
	unsub := f.svc.Subscribe(func(ev Event) {
		select {
		case evCh <- ev:
		default:
		}
	})

	f.sim.JumpToPOI("pantheon")

	require.Eventually(t, func() bool { return len(f.audio.callsOf("narration")) == 1 }, wait, 5*time.Millisecond)
	call := f.audio.callsOf("narration")[0]
	assert.Equal(t, "pantheon", call.POIID)
	assert.True(t, strings.HasPrefix(call.Text, "Here is the Panthéon"))
	assert.Equal(t, model.StyleFriendly, call.Opts.VoiceStyle)
	assert.NotEmpty(t, call.Opts.ScriptVersion)

	st := f.svc.Status()
	assert.Equal(t, []string{"pantheon"}, st.Visited)
	assert.Equal(t, "pantheon", st.ActivePOIID)
	assert.Equal(t, "sorbonne", st.NextPOIID)
	require.NotNil(t, st.Location)

	// upcoming stops are prewarmed
	var items []audio.PrewarmItem
	require.Eventually(t, func() bool {
		items = f.audio.prewarmBatch(func(it audio.PrewarmItem) bool { return it.POIID == "sorbonne" })
		return items != nil
	}, wait, 5*time.Millisecond)
	require.Len(t, items, 2)
	assert.Equal(t, "sorbonne", items[0].POIID)
	assert.Equal(t, "cluny", items[1].POIID)

	// a second update at the same spot does not narrate again
	f.sim.JumpToPOI("pantheon")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.audio.callsOf("narration"), 1)

	unsub()
	for drained := false; !drained; {
		select {
		case ev := <-evCh:
			events = append(events, ev)
		default:
			drained = true
		}
	}
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	assert.Contains(t, kinds, EventLocation)
	assert.Contains(t, kinds, EventTrigger)
}

func TestService_TextFallbackAndRetry(t *testing.T) {
	f := newFixture(t, nil)
	var fail atomic.Bool
	fail.Store(true)
	f.audio.mu.Lock()
	f.audio.result = func(kind string) audio.Result {
		if fail.Load() {
			return audio.Result{TextFallback: "shown as text", Err: tts.ErrNoProviders}
		}
		return audio.Result{Played: true}
	}
	f.audio.mu.Unlock()

	_, err := f.svc.ForceTriggerNext()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.svc.Status().TextFallback != nil }, wait, 5*time.Millisecond)
	assert.Equal(t, "pantheon", f.svc.Status().TextFallback.POIID)

	fail.Store(false)

	require.NoError(t, f.svc.TryAudioAgain())
	require.Eventually(t, func() bool { return len(f.audio.callsOf("narration")) == 2 }, wait, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return f.svc.Status().TextFallback == nil }, wait, 5*time.Millisecond)

	assert.ErrorIs(t, f.svc.TryAudioAgain(), ErrNoFallback)
}

func TestService_TryAudioAgainKeepsIntroFallback(t *testing.T) {
	f := newFixture(t, nil)
	f.audio.mu.Lock()
	f.audio.result = func(kind string) audio.Result {
		if kind == "intro" {
			return audio.Result{TextFallback: "welcome as text", Err: tts.ErrNoProviders}
		}
		return audio.Result{Played: true}
	}
	f.audio.mu.Unlock()

	f.svc.StartTour(context.Background())
	require.Eventually(t, func() bool { return f.svc.Status().TextFallback != nil }, wait, 5*time.Millisecond)

	assert.ErrorIs(t, f.svc.TryAudioAgain(), ErrNoFallback)
	fb := f.svc.Status().TextFallback
	require.NotNil(t, fb)
	assert.Equal(t, "welcome as text", fb.Text)
	assert.Empty(t, fb.POIID)
	assert.Empty(t, f.audio.callsOf("narration"))
}

func TestService_PrewarmsIntroAndFirstStop(t *testing.T) {
	f := newFixture(t, nil)

	var items []audio.PrewarmItem
	require.Eventually(t, func() bool {
		items = f.audio.prewarmBatch(func(it audio.PrewarmItem) bool { return it.Purpose == audio.PurposeIntro })
		return items != nil
	}, wait, 5*time.Millisecond)
	require.Len(t, items, 2)
	assert.True(t, strings.HasPrefix(items[0].Text, "Welcome to the Latin Quarter"))
	assert.Equal(t, model.StyleFriendly, items[0].VoiceStyle)
	assert.Equal(t, audio.PurposePOI, items[1].Purpose)
	assert.Equal(t, "pantheon", items[1].POIID)
	assert.NotEmpty(t, items[1].Text)
}

func TestService_PrewarmsOutroAfterLastStop(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		_, err := f.svc.ForceTriggerNext()
		require.NoError(t, err)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, f.audio.prewarmBatch(func(it audio.PrewarmItem) bool { return it.Purpose == audio.PurposeOutro }))

	_, err := f.svc.ForceTriggerNext()
	require.NoError(t, err)

	var items []audio.PrewarmItem
	require.Eventually(t, func() bool {
		items = f.audio.prewarmBatch(func(it audio.PrewarmItem) bool { return it.Purpose == audio.PurposeOutro })
		return items != nil
	}, wait, 5*time.Millisecond)
	require.Len(t, items, 1)
	assert.True(t, strings.HasPrefix(items[0].Text, "That is the end of our stroll"))
}

func TestService_NoBackgroundWorkAfterStop(t *testing.T) {
	f := newFixture(t, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					f.svc.goBackground(func(context.Context) {})
				}
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	f.svc.Stop()
	close(stop)
	wg.Wait()

	var ran atomic.Bool
	f.svc.goBackground(func(context.Context) { ran.Store(true) })
	f.svc.wg.Wait()
	assert.False(t, ran.Load())
}

func TestService_ForceTriggerNextUntilComplete(t *testing.T) {
	f := newFixture(t, nil)
	var got []string
	for {
		id, err := f.svc.ForceTriggerNext()
		if errors.Is(err, ErrTourComplete) {
			break
		}
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, []string{"pantheon", "sorbonne", "cluny", "saint-michel"}, got)
	assert.Empty(t, f.svc.Status().NextPOIID)
}

func TestService_ReplayAndJump(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.svc.Replay(), ErrNoActivePOI)
	assert.ErrorIs(t, f.svc.JumpToPOI("nope"), ErrUnknownPOI)

	require.NoError(t, f.svc.JumpToPOI("cluny"))
	require.Eventually(t, func() bool { return len(f.audio.callsOf("narration")) >= 1 }, wait, 5*time.Millisecond)
	require.NoError(t, f.svc.Replay())
	require.Eventually(t, func() bool { return len(f.audio.callsOf("narration")) == 2 }, wait, 5*time.Millisecond)

	for _, c := range f.audio.callsOf("narration") {
		assert.Equal(t, "cluny", c.POIID)
	}
	assert.Equal(t, []string{"cluny"}, f.svc.Status().Visited)
	// pantheon is still next: jumping does not skip earlier stops
	assert.Equal(t, "pantheon", f.svc.Status().NextPOIID)
}

func TestService_StartTourPlaysIntroThenWalks(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.StartTour(context.Background())

	require.Eventually(t, func() bool { return len(f.audio.callsOf("intro")) == 1 }, wait, 5*time.Millisecond)
	require.Eventually(t, f.sim.Running, wait, 5*time.Millisecond)
	assert.True(t, f.svc.Status().Started)

	f.svc.FinishTour(context.Background())
	require.Eventually(t, func() bool { return len(f.audio.callsOf("outro")) == 1 }, wait, 5*time.Millisecond)
	assert.False(t, f.sim.Running())
	assert.True(t, f.svc.Status().Finished)
}

func TestService_AskText(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.JumpToPOI("pantheon"))

	_, err := f.svc.AskText(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	ans, err := f.svc.AskText(context.Background(), "When was it finished?")
	require.NoError(t, err)
	assert.Equal(t, "It opened in 1790.", ans.Text)
	assert.Equal(t, "pantheon", ans.POIID)
	assert.False(t, ans.FromFacts)

	_, err = f.svc.AskText(context.Background(), "Who is buried here?")
	require.NoError(t, err)

	f.answers.mu.Lock()
	reqs := f.answers.requests
	f.answers.mu.Unlock()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Panthéon", reqs[0].POIName)
	assert.Len(t, reqs[0].POIFacts, 2)
	assert.Empty(t, reqs[0].RecentContext)
	assert.Equal(t, []string{"When was it finished?"}, reqs[1].RecentContext)

	require.Eventually(t, func() bool { return len(f.audio.callsOf("answer")) == 2 }, wait, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return f.svc.Status().AskState == AskIdle }, wait, 5*time.Millisecond)
}

func TestService_AskTextFallsBackToFacts(t *testing.T) {
	f := newFixture(t, func(d *Deps, cfg *Config) {
		d.Answerer = &fakeAnswerer{err: &llm.ProviderError{Provider: "openrouter", StatusCode: 503, Err: errors.New("down")}}
	})
	ans, err := f.svc.AskText(context.Background(), "Tell me more")
	require.NoError(t, err)
	assert.True(t, ans.FromFacts)
	assert.Equal(t, "Foucault demonstrated his pendulum here in 1851. Marie Curie was interred here in 1995.", ans.Text)
}

func TestService_Ask(t *testing.T) {
	tests := []struct {
		name        string
		transcriber llm.Transcriber
		wantErr     bool
	}{
		{name: "Transcribed", transcriber: fakeTranscriber{text: " What is this? "}},
		{name: "Empty transcript", transcriber: fakeTranscriber{text: "  "}, wantErr: true},
		{name: "Transcriber error", transcriber: fakeTranscriber{err: errors.New("bad audio")}, wantErr: true},
		{name: "No transcriber", transcriber: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *Deps, cfg *Config) { d.Transcriber = tt.transcriber })

			ans, err := f.svc.Ask(context.Background(), []byte("webm"), "audio/webm")
			f.audio.mu.Lock()
			interrupted, ended := f.audio.interrupted, f.audio.ended
			f.audio.mu.Unlock()
			assert.Equal(t, 1, interrupted)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrTranscription)
				assert.Equal(t, "Voice input didn't work. Try typing your question.", UserMessage(err))
				assert.Equal(t, 1, ended)
				assert.Equal(t, AskIdle, f.svc.Status().AskState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "What is this?", ans.Question)
			assert.Equal(t, 0, ended)
		})
	}
}

func TestService_ModeSwitching(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.svc.SetMode(context.Background(), model.ModeReal), ErrNoRealProvider)
	assert.ErrorIs(t, f.svc.SetMode(context.Background(), "satellite"), ErrInvalidMode)
	require.NoError(t, f.svc.SetMode(context.Background(), model.ModeDemo))
	require.NoError(t, f.svc.StepForward())
}

func TestService_PermissionDeniedSwitchesToDemo(t *testing.T) {
	denied := &deniedProvider{}
	f := newFixture(t, func(d *Deps, cfg *Config) {
		d.Real = denied
		cfg.Mode = model.ModeReal
	})

	require.Eventually(t, func() bool { return f.svc.Status().Mode == model.ModeDemo }, wait, 5*time.Millisecond)
	assert.Equal(t, "Location access denied. Demo mode is on so you can still try the tour.", f.svc.Status().Notice)
	assert.NoError(t, f.svc.StepForward())

	// switching back works and denial happens again
	require.NoError(t, f.svc.SetMode(context.Background(), model.ModeReal))
	require.Eventually(t, func() bool { return f.svc.Status().Mode == model.ModeDemo }, wait, 5*time.Millisecond)
	denied.mu.Lock()
	assert.Equal(t, 2, denied.started)
	denied.mu.Unlock()
}

func TestService_StepForwardRequiresDemo(t *testing.T) {
	denied := &deniedProvider{}
	f := newFixture(t, func(d *Deps, cfg *Config) { d.Real = denied })
	denied.mu.Lock()
	denied.onDeny = nil
	denied.mu.Unlock()

	require.NoError(t, f.svc.SetMode(context.Background(), model.ModeReal))
	assert.ErrorIs(t, f.svc.StepForward(), ErrNotDemo)
}

func TestService_SetVoiceClearsCache(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.SetVoice(context.Background(), model.StyleHistorian, model.LangFR)

	f.audio.mu.Lock()
	assert.Equal(t, 1, f.audio.cleared)
	assert.Equal(t, model.StyleHistorian, f.audio.style)
	assert.Equal(t, model.LangFR, f.audio.lang)
	f.audio.mu.Unlock()

	st := f.svc.Status()
	assert.Equal(t, model.StyleHistorian, st.VoiceStyle)
	assert.Equal(t, model.LangFR, st.Lang)

	_, err := f.svc.ForceTriggerNext()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.audio.callsOf("narration")) == 1 }, wait, 5*time.Millisecond)
	assert.True(t, strings.HasPrefix(f.audio.callsOf("narration")[0].Text, "Commissioned by Louis"))
}

func TestService_RunDemoVisitsEveryStop(t *testing.T) {
	f := newFixture(t, func(d *Deps, cfg *Config) { cfg.DemoDelay = time.Second })
	require.NoError(t, f.svc.RunDemo(context.Background()))

	require.Eventually(t, func() bool { return len(f.svc.Status().Visited) == 1 }, wait, 5*time.Millisecond)
	for i := 2; i <= 4; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
		cancel()
		f.clock.Advance(time.Second)
		want := i
		require.Eventually(t, func() bool { return len(f.svc.Status().Visited) == want }, wait, 5*time.Millisecond,
			fmt.Sprintf("expected %d visited", want))
	}
	assert.ErrorIs(t, f.svc.RunDemo(context.Background()), ErrTourComplete)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{location.ErrPermissionDenied, "Location access denied. Demo mode is on so you can still try the tour."},
		{location.ErrTimeout, "Location unavailable. Using demo mode."},
		{fmt.Errorf("%w: %w", ErrTranscription, llm.ErrEmptyTranscript), "Voice input didn't work. Try typing your question."},
		{&tts.ChainError{Errors: []error{errors.New("x")}}, "Audio couldn't be played. You can read the text or try again."},
		{tts.NewFatalError(401, "nope"), "Audio couldn't be played. You can read the text or try again."},
		{&llm.ProviderError{Provider: "gemini", StatusCode: 500, Err: errors.New("x")}, "Answer from tour facts (AI temporarily unavailable)."},
		{fmt.Errorf("load: %w", tour.ErrNoStops), "Couldn't load that tour. Try another or the demo."},
		{errors.New("boom"), "Something went wrong."},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
