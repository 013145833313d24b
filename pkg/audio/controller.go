package audio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tts"
)

// ErrNoSynthesizer is reported when a clip is missing from the cache and no
// synthesizer is configured.
var ErrNoSynthesizer = errors.New("audio: no synthesizer configured")

const historySize = 10

// Purposes of non-narration clips, also used in cache keys.
const (
	PurposePOI    = "poi"
	PurposeIntro  = "intro"
	PurposeOutro  = "outro"
	PurposeAnswer = "answer"
)

// Config tunes the controller.
type Config struct {
	DuckVolume         float64       `yaml:"duck_volume"`
	FadeDuration       time.Duration `yaml:"fade_duration"`
	FrameInterval      time.Duration `yaml:"frame_interval"`
	Format             string        `yaml:"format"`
	PrewarmConcurrency int           `yaml:"prewarm_concurrency"`
}

// DefaultConfig ducks to 10% over 200ms at roughly 60 frames per second.
func DefaultConfig() Config {
	return Config{
		DuckVolume:         0.1,
		FadeDuration:       200 * time.Millisecond,
		FrameInterval:      16 * time.Millisecond,
		Format:             "mp3",
		PrewarmConcurrency: 2,
	}
}

// Result reports how a play call settled.
type Result struct {
	// Played is true when a clip (synthesized or placeholder) played to the end.
	Played bool
	// Placeholder is true when the generic clip stood in for failed synthesis.
	Placeholder bool
	// Interrupted is true when a newer play, Stop or context cancellation
	// superseded this call.
	Interrupted bool
	// TextFallback carries the text when nothing could be played.
	TextFallback string
	// Err is the failure that forced the fallback, if any.
	Err error
}

// Transition is one observed state change.
type Transition struct {
	From model.AudioState `json:"from"`
	To   model.AudioState `json:"to"`
	At   time.Time        `json:"at"`
}

// NarrationOptions select the voice and the cache version of a POI narration.
// Empty fields use the controller's current voice.
type NarrationOptions struct {
	VoiceStyle    model.VoiceStyle
	Lang          model.Lang
	ScriptVersion string
}

// PrewarmItem is one clip to synthesize ahead of time.
type PrewarmItem struct {
	Purpose       string // defaults to PurposePOI
	POIID         string
	Text          string
	VoiceStyle    model.VoiceStyle
	Lang          model.Lang
	ScriptVersion string
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces wall time for fades.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithPlaceholder sets the clip played when synthesis or playback fails.
func WithPlaceholder(f func(ctx context.Context) (Clip, error)) Option {
	return func(c *Controller) { c.placeholder = f }
}

type track struct {
	gen     uint64
	state   model.AudioState
	done    chan struct{}
	natural bool
	err     error
}

type listener struct {
	id uint64
	fn func(model.AudioState)
}

// Controller serialises every clip through one observable state machine.
type Controller struct {
	player      Player
	synth       tts.Synthesizer
	cache       Cache
	cfg         Config
	clock       clockwork.Clock
	placeholder func(ctx context.Context) (Clip, error)

	mu               sync.Mutex
	state            model.AudioState
	stateBeforePause model.AudioState
	gen              uint64
	track            *track
	preparing        bool
	cancelSynth      context.CancelFunc
	voice            model.VoiceStyle
	lang             model.Lang
	history          []Transition

	pending     []Transition
	dispatching bool
	listeners   []listener
	nextID      uint64
	logger      func(from, to model.AudioState)
}

// NewController wires a player, a synthesizer and a cache. A nil cache uses
// an in-memory one.
func NewController(player Player, synth tts.Synthesizer, cache Cache, cfg Config, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.DuckVolume <= 0 || cfg.DuckVolume > 1 {
		cfg.DuckVolume = def.DuckVolume
	}
	if cfg.FadeDuration < 0 {
		cfg.FadeDuration = def.FadeDuration
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.PrewarmConcurrency <= 0 {
		cfg.PrewarmConcurrency = def.PrewarmConcurrency
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	c := &Controller{
		player: player,
		synth:  synth,
		cache:  cache,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		state:  model.AudioIdle,
		voice:  model.StyleFriendly,
		lang:   model.LangEN,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() model.AudioState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns the most recent transitions, oldest first.
func (c *Controller) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

// SetVoice changes the default style and language for later clips.
func (c *Controller) SetVoice(style model.VoiceStyle, lang model.Lang) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if style != "" {
		c.voice = style
	}
	if lang != "" {
		c.lang = lang
	}
}

// Voice returns the default style and language.
func (c *Controller) Voice() (model.VoiceStyle, model.Lang) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice, c.lang
}

// Subscribe registers fn for every transition. The returned func removes it.
func (c *Controller) Subscribe(fn func(model.AudioState)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SetTransitionLogger installs a hook that sees every (from, to) pair.
func (c *Controller) SetTransitionLogger(fn func(from, to model.AudioState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = fn
}

// setStateLocked queues a transition; same-state sets are dropped.
func (c *Controller) setStateLocked(to model.AudioState) {
	if c.state == to {
		return
	}
	t := Transition{From: c.state, To: to, At: c.clock.Now()}
	c.state = to
	c.history = append(c.history, t)
	if len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}
	c.pending = append(c.pending, t)
}

// flush delivers queued transitions outside the lock. Only one goroutine
// delivers at a time, so listeners see transitions in order, each once, and
// may call back into the controller.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		t := c.pending[0]
		c.pending = c.pending[1:]
		ls := make([]listener, len(c.listeners))
		copy(ls, c.listeners)
		logger := c.logger
		c.mu.Unlock()

		slog.Debug("Audio: state", "from", t.From, "to", t.To)
		if logger != nil {
			logger(t.From, t.To)
		}
		for _, l := range ls {
			l.fn(t.To)
		}

		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

// beginLocked supersedes whatever is in flight and returns the new generation.
func (c *Controller) beginLocked() uint64 {
	c.gen++
	c.cancelSynthLocked()
	c.detachLocked()
	return c.gen
}

func (c *Controller) cancelSynthLocked() {
	if c.cancelSynth != nil {
		c.cancelSynth()
		c.cancelSynth = nil
	}
	c.preparing = false
}

// detachLocked unloads the current track; its waiter sees an interruption.
func (c *Controller) detachLocked() {
	if c.track != nil {
		close(c.track.done)
		c.track = nil
	}
	c.player.Stop()
}

type playJob struct {
	purpose   string
	key       CacheKey
	text      string
	req       tts.Request
	prepState model.AudioState
	playState model.AudioState
}

// PlayNarration narrates a POI: NAVIGATING while the clip is fetched,
// NARRATING while it plays, IDLE after.
func (c *Controller) PlayNarration(ctx context.Context, poiID, text string, opts NarrationOptions) Result {
	style, lang := c.resolveVoice(opts.VoiceStyle, opts.Lang)
	return c.play(ctx, playJob{
		purpose:   PurposePOI,
		key:       NarrationKey(poiID, style, lang, opts.ScriptVersion),
		text:      text,
		req:       tts.Request{Text: text, VoiceStyle: style, Lang: lang, Format: c.cfg.Format, Purpose: PurposePOI},
		prepState: model.AudioNavigating,
		playState: model.AudioNarrating,
	})
}

// PlayAnswerStream speaks an answer in ANSWERING, replacing LISTENING.
func (c *Controller) PlayAnswerStream(ctx context.Context, text string) Result {
	return c.playText(ctx, PurposeAnswer, text, model.AudioAnswering)
}

// PlayIntro speaks the tour introduction in PLAYING_INTRO.
func (c *Controller) PlayIntro(ctx context.Context, text string) Result {
	return c.playText(ctx, PurposeIntro, text, model.AudioPlayingIntro)
}

// PlayOutro speaks the closing words in PLAYING_OUTRO.
func (c *Controller) PlayOutro(ctx context.Context, text string) Result {
	return c.playText(ctx, PurposeOutro, text, model.AudioPlayingOutro)
}

func (c *Controller) playText(ctx context.Context, purpose, text string, state model.AudioState) Result {
	style, lang := c.resolveVoice("", "")
	return c.play(ctx, playJob{
		purpose:   purpose,
		key:       TextKey(purpose, text, style, lang),
		text:      text,
		req:       tts.Request{Text: text, VoiceStyle: style, Lang: lang, Format: c.cfg.Format, Purpose: purpose},
		prepState: state,
		playState: state,
	})
}

func (c *Controller) resolveVoice(style model.VoiceStyle, lang model.Lang) (model.VoiceStyle, model.Lang) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if style == "" {
		style = c.voice
	}
	if lang == "" {
		lang = c.lang
	}
	return style, lang
}

func (c *Controller) play(ctx context.Context, j playJob) Result {
	c.mu.Lock()
	gen := c.beginLocked()
	if strings.TrimSpace(j.text) == "" {
		c.setStateLocked(model.AudioIdle)
		c.mu.Unlock()
		c.flush()
		return Result{}
	}
	c.setStateLocked(j.prepState)
	synthCtx, cancel := context.WithCancel(ctx)
	c.cancelSynth = cancel
	c.preparing = true
	c.mu.Unlock()
	c.flush()
	defer cancel()

	clip, err := c.fetch(synthCtx, j)
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return Result{Interrupted: true}
	}
	c.preparing = false
	c.cancelSynth = nil
	c.mu.Unlock()

	if err == nil {
		res, perr := c.start(ctx, gen, j.playState, clip)
		if perr == nil {
			return res
		}
		err = perr
		c.cache.Delete(j.key)
	}
	if ctx.Err() != nil {
		c.abandon(gen)
		return Result{Interrupted: true}
	}

	slog.Warn("Audio: clip failed, falling back", "purpose", j.purpose, "key", j.key.String(), "error", err)
	return c.fallback(ctx, gen, j, err)
}

// fetch reads the cache, synthesizing on a miss.
func (c *Controller) fetch(ctx context.Context, j playJob) (Clip, error) {
	if clip, ok := c.cache.Get(j.key); ok {
		return clip, nil
	}
	if c.synth == nil {
		return Clip{}, ErrNoSynthesizer
	}
	audio, err := c.synth.Synthesize(ctx, j.req)
	if err != nil {
		return Clip{}, err
	}
	clip := Clip{Data: audio.Data, Format: audio.Format}
	c.cache.Put(j.key, clip)
	return clip, nil
}

// start loads clip for generation gen and waits for it to settle. A playback
// error is returned for the caller's fallback path.
func (c *Controller) start(ctx context.Context, gen uint64, state model.AudioState, clip Clip) (Result, error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return Result{Interrupted: true}, nil
	}
	tr := &track{gen: gen, state: state, done: make(chan struct{})}
	paused := c.state == model.AudioPaused
	c.player.SetVolume(1)
	if err := c.player.Play(clip, paused, func(err error) { go c.finishTrack(tr, err) }); err != nil {
		c.mu.Unlock()
		return Result{}, err
	}
	c.track = tr
	if paused {
		c.stateBeforePause = state
	} else {
		c.setStateLocked(state)
	}
	c.mu.Unlock()
	c.flush()

	select {
	case <-tr.done:
	case <-ctx.Done():
		c.abandon(gen)
		return Result{Interrupted: true}, nil
	}

	c.mu.Lock()
	natural, err := tr.natural, tr.err
	c.mu.Unlock()
	if !natural {
		return Result{Interrupted: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Played: true}, nil
}

// finishTrack runs when the player reports the end of tr.
func (c *Controller) finishTrack(tr *track, err error) {
	c.mu.Lock()
	if c.track != tr {
		c.mu.Unlock()
		return
	}
	c.track = nil
	tr.natural = true
	tr.err = err
	close(tr.done)
	if err == nil && c.state == tr.state {
		c.setStateLocked(model.AudioIdle)
	}
	c.mu.Unlock()
	c.flush()
}

// abandon stops generation gen if it is still current.
func (c *Controller) abandon(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) fallback(ctx context.Context, gen uint64, j playJob, cause error) Result {
	if c.placeholder != nil {
		clip, err := c.placeholder(ctx)
		if err == nil {
			res, perr := c.start(ctx, gen, j.playState, clip)
			if perr == nil {
				res.Placeholder = res.Played
				res.Err = cause
				return res
			}
			err = perr
		}
		slog.Warn("Audio: placeholder failed", "purpose", j.purpose, "error", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return Result{Interrupted: true}
	}
	c.detachLocked()
	c.setStateLocked(model.AudioIdle)
	c.mu.Unlock()
	c.flush()
	return Result{TextFallback: j.text, Err: cause}
}

// InterruptForListening ducks playing audio to the duck volume, then pauses
// and rewinds it and enters LISTENING. Pending synthesis is abandoned. A play
// call that lands during the duck fade wins and the interrupt is dropped.
func (c *Controller) InterruptForListening(ctx context.Context) {
	c.mu.Lock()
	if c.track == nil && c.preparing {
		c.gen++
		c.cancelSynthLocked()
	}
	gen, tr := c.gen, c.track
	playing := tr != nil && c.player.IsPlaying()
	c.mu.Unlock()

	if playing {
		duck := func(v float64) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen == gen && c.track == tr {
				c.player.SetVolume(v)
			}
		}
		if err := Fade(ctx, c.clock, c.cfg.FadeDuration, c.cfg.FrameInterval, 1.0, c.cfg.DuckVolume, duck); err != nil {
			slog.Debug("Audio: duck fade cut short", "error", err)
		}
	}

	c.mu.Lock()
	if c.gen != gen || c.track != tr {
		c.mu.Unlock()
		slog.Debug("Audio: listen interrupt superseded by a newer clip")
		return
	}
	if c.track != nil {
		c.player.Pause()
		if err := c.player.Rewind(); err != nil {
			slog.Debug("Audio: rewind failed", "error", err)
		}
	}
	c.setStateLocked(model.AudioListening)
	c.mu.Unlock()
	c.flush()
}

// Pause holds the playhead and enters PAUSED.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state == model.AudioPaused {
		c.mu.Unlock()
		return
	}
	if c.track != nil {
		c.player.Pause()
	}
	if c.state != model.AudioIdle {
		c.stateBeforePause = c.state
	}
	c.setStateLocked(model.AudioPaused)
	c.mu.Unlock()
	c.flush()
}

// Resume restores full volume and continues the loaded track in its playing
// state. With nothing loaded it settles IDLE, or back to the preparing state
// if a clip is still being fetched.
func (c *Controller) Resume() {
	c.mu.Lock()
	switch {
	case c.track != nil:
		c.player.SetVolume(1)
		c.player.Resume()
		c.setStateLocked(c.track.state)
	case c.preparing && c.stateBeforePause != model.AudioIdle && c.stateBeforePause != model.AudioPaused:
		c.setStateLocked(c.stateBeforePause)
	default:
		c.setStateLocked(model.AudioIdle)
	}
	c.mu.Unlock()
	c.flush()
}

// Stop halts and unloads audio and cancels pending synthesis. State goes to
// IDLE unless a question is being asked or answered.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) stopLocked() {
	c.beginLocked()
	if c.state != model.AudioListening && c.state != model.AudioAnswering {
		c.setStateLocked(model.AudioIdle)
	}
}

// EndInteraction closes a question: LISTENING or ANSWERING return to IDLE and
// any answer audio is dropped.
func (c *Controller) EndInteraction() {
	c.mu.Lock()
	if c.state == model.AudioListening || c.state == model.AudioAnswering {
		c.beginLocked()
		c.setStateLocked(model.AudioIdle)
	}
	c.mu.Unlock()
	c.flush()
}

// ClearAudioCache drops every cached clip.
func (c *Controller) ClearAudioCache() {
	c.cache.Clear()
}

// CacheLen reports how many clips are cached.
func (c *Controller) CacheLen() int {
	return c.cache.Len()
}

// IsCached reports whether a POI narration is ready for instant playback.
func (c *Controller) IsCached(poiID string, opts NarrationOptions) bool {
	style, lang := c.resolveVoice(opts.VoiceStyle, opts.Lang)
	_, ok := c.cache.Get(NarrationKey(poiID, style, lang, opts.ScriptVersion))
	return ok
}

// Prewarm synthesizes items into the cache with bounded concurrency. Failures
// are logged and skipped. It returns how many clips were added.
func (c *Controller) Prewarm(ctx context.Context, items []PrewarmItem) int {
	if c.synth == nil {
		return 0
	}
	var (
		mu    sync.Mutex
		added int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PrewarmConcurrency)
	for _, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		style, lang := c.resolveVoice(it.VoiceStyle, it.Lang)
		purpose := it.Purpose
		if purpose == "" {
			purpose = PurposePOI
		}
		key := TextKey(purpose, it.Text, style, lang)
		if purpose == PurposePOI {
			key = NarrationKey(it.POIID, style, lang, it.ScriptVersion)
		}
		if _, ok := c.cache.Get(key); ok {
			continue
		}
		req := tts.Request{Text: it.Text, VoiceStyle: style, Lang: lang, Format: c.cfg.Format, Purpose: purpose}
		g.Go(func() error {
			audio, err := c.synth.Synthesize(gctx, req)
			if err != nil {
				slog.Debug("Audio: prewarm failed", "key", key.String(), "error", err)
				return nil
			}
			c.cache.Put(key, Clip{Data: audio.Data, Format: audio.Format})
			mu.Lock()
			added++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return added
}
