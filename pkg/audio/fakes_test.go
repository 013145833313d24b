package audio

import (
	"context"
	"encoding/binary"
	"sync"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tts"
)

// fakePlayer records calls and completes only when told to.
type fakePlayer struct {
	mu         sync.Mutex
	loaded     bool
	paused     bool
	volume     float64
	volumes    []float64
	played     []Clip
	rewinds    int
	playErr    error
	onComplete func(error)
}

func newFakePlayer() *fakePlayer { return &fakePlayer{volume: 1} }

func (p *fakePlayer) Play(clip Clip, startPaused bool, onComplete func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, clip)
	p.loaded = true
	p.paused = startPaused
	p.onComplete = onComplete
	return nil
}

// complete ends the loaded clip as if it reached its end.
func (p *fakePlayer) complete(err error) bool {
	p.mu.Lock()
	cb := p.onComplete
	loaded := p.loaded
	p.loaded = false
	p.onComplete = nil
	p.mu.Unlock()
	if !loaded || cb == nil {
		return false
	}
	cb(err)
	return true
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		p.paused = true
	}
}

func (p *fakePlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	p.paused = false
	p.onComplete = nil
}

func (p *fakePlayer) Rewind() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rewinds++
	return nil
}

func (p *fakePlayer) SetVolume(vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = vol
	p.volumes = append(p.volumes, vol)
}

func (p *fakePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded && !p.paused
}

func (p *fakePlayer) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *fakePlayer) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded && p.paused
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func (p *fakePlayer) clip(i int) Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played[i]
}

func (p *fakePlayer) rewindCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewinds
}

func (p *fakePlayer) snapshotVolumes() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float64, len(p.volumes))
	copy(out, p.volumes)
	return out
}

// fakeSynth answers from a function; gate, when set, blocks until closed or
// the context ends.
type fakeSynth struct {
	mu    sync.Mutex
	calls []tts.Request
	err   error
	gate  chan struct{}
}

func (s *fakeSynth) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	gate, err := s.gate, s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tts.Audio{}, ctx.Err()
		}
	}
	if err != nil {
		return tts.Audio{}, err
	}
	return tts.Audio{Data: []byte("audio:" + req.Text), Format: "mp3"}, nil
}

func (s *fakeSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// recorder collects delivered states.
type recorder struct {
	mu     sync.Mutex
	states []model.AudioState
}

func (r *recorder) add(s model.AudioState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) get() []model.AudioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AudioState, len(r.states))
	copy(out, r.states)
	return out
}

// makeWAV builds a 16-bit mono PCM WAV of n silent samples.
func makeWAV(sampleRate, n int) []byte {
	dataSize := n * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataSize))
	return buf
}
