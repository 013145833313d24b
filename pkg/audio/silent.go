package audio

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SilentPlayer is a Player for headless hosts: it decodes clips to validate
// them and to learn their length, then completes after that long without
// producing sound. Pause and rewind move a virtual playhead.
type SilentPlayer struct {
	clock clockwork.Clock

	mu       sync.Mutex
	loaded   bool
	paused   bool
	volume   float64
	length   time.Duration
	played   time.Duration // playhead at the last pause or rewind
	started  time.Time     // when the playhead last started moving
	timer    clockwork.Timer
	trackID  uint64
	complete func(err error)
}

// NewSilentPlayer uses clk for timing; nil means wall time.
func NewSilentPlayer(clk clockwork.Clock) *SilentPlayer {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &SilentPlayer{clock: clk, volume: 1}
}

func (p *SilentPlayer) Play(clip Clip, startPaused bool, onComplete func(err error)) error {
	streamer, format, err := Decode(clip)
	if err != nil {
		return err
	}
	length := format.SampleRate.D(streamer.Len())
	streamer.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.loaded = true
	p.length = length
	p.played = 0
	p.complete = onComplete
	p.paused = startPaused
	if !startPaused {
		p.armLocked()
	}
	return nil
}

func (p *SilentPlayer) armLocked() {
	p.started = p.clock.Now()
	id := p.trackID
	p.timer = p.clock.AfterFunc(p.length-p.played, func() { p.finish(id) })
}

func (p *SilentPlayer) finish(id uint64) {
	p.mu.Lock()
	if id != p.trackID || !p.loaded || p.paused {
		p.mu.Unlock()
		return
	}
	cb := p.complete
	p.trackID++
	p.loaded = false
	p.timer = nil
	p.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
}

func (p *SilentPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || p.paused {
		return
	}
	p.paused = true
	p.played += p.clock.Now().Sub(p.started)
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *SilentPlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || !p.paused {
		return
	}
	p.paused = false
	p.armLocked()
}

func (p *SilentPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *SilentPlayer) stopLocked() {
	p.trackID++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.loaded = false
	p.paused = false
}

func (p *SilentPlayer) Rewind() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return nil
	}
	p.played = 0
	if !p.paused {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.trackID++
		p.armLocked()
	}
	return nil
}

func (p *SilentPlayer) SetVolume(vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(vol)
}

func (p *SilentPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *SilentPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded && !p.paused
}

func (p *SilentPlayer) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *SilentPlayer) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded && p.paused
}
