// Package audio owns narration playback: the session state machine, the clip
// cache and the speaker output.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for clips that are neither MP3 nor WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const outputSampleRate = beep.SampleRate(48000)

// ManagerConfig configures speaker output.
type ManagerConfig struct {
	SpeechFilter bool
	LowCutoff    float64
	HighCutoff   float64
}

// Manager implements Player on the system speaker using gopxl/beep.
type Manager struct {
	mu                 sync.RWMutex
	cfg                ManagerConfig
	ctrl               *beep.Ctrl
	volume             float64
	isPaused           bool
	speakerInitialized bool
	streamer           *effects.Volume
	trackStreamer      beep.StreamSeekCloser
	trackFormat        beep.Format
	trackID            uint64
}

// NewManager creates a speaker-backed player.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{volume: 1.0, cfg: cfg}
}

// Decode opens an in-memory clip, sniffing the container when Format is empty.
func Decode(clip Clip) (beep.StreamSeekCloser, beep.Format, error) {
	format := clip.Format
	if format == "" {
		format = sniffFormat(clip.Data)
	}
	switch format {
	case "mp3", "mpeg":
		return mp3.Decode(io.NopCloser(bytes.NewReader(clip.Data)))
	case "wav", "wave":
		return wav.Decode(bytes.NewReader(clip.Data))
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func sniffFormat(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// Play decodes clip and starts it on the speaker.
func (m *Manager) Play(clip Clip, startPaused bool, onComplete func(err error)) error {
	streamer, format, err := Decode(clip)
	if err != nil {
		slog.Error("Audio: failed to decode clip", "format", clip.Format, "bytes", len(clip.Data), "error", err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	if err := m.ensureSpeakerInitialized(); err != nil {
		streamer.Close()
		return err
	}

	var out beep.Streamer = beep.Resample(3, format.SampleRate, outputSampleRate, streamer)
	if m.cfg.SpeechFilter {
		out = NewSpeechFilter(out, float64(outputSampleRate), m.cfg.LowCutoff, m.cfg.HighCutoff)
	}

	vol := &effects.Volume{
		Streamer: out,
		Base:     2,
		Volume:   volumeToPower(m.volume),
		Silent:   m.volume <= 0.01,
	}

	m.trackID++
	id := m.trackID
	m.streamer = vol
	m.trackStreamer = streamer
	m.trackFormat = format
	m.ctrl = &beep.Ctrl{Streamer: vol, Paused: startPaused}
	m.isPaused = startPaused

	speaker.Play(beep.Seq(m.ctrl, beep.Callback(func() {
		// Leave the speaker goroutine before taking locks.
		go m.finish(id, onComplete)
	})))

	slog.Debug("Audio: playing clip", "format", clip.Format, "duration", format.SampleRate.D(streamer.Len()), "paused", startPaused)
	return nil
}

func (m *Manager) finish(id uint64, onComplete func(err error)) {
	m.mu.Lock()
	if m.trackID != id || m.ctrl == nil {
		m.mu.Unlock()
		return
	}
	err := m.trackStreamer.Err()
	m.trackStreamer.Close()
	m.trackStreamer = nil
	m.ctrl = nil
	m.streamer = nil
	m.isPaused = false
	m.mu.Unlock()

	if onComplete != nil {
		onComplete(err)
	}
}

// Pause pauses current playback.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil {
		speaker.Lock()
		m.ctrl.Paused = true
		speaker.Unlock()
		m.isPaused = true
	}
}

// Resume resumes paused playback.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil && m.isPaused {
		speaker.Lock()
		m.ctrl.Paused = false
		speaker.Unlock()
		m.isPaused = false
	}
}

// Stop stops current playback without firing onComplete.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
}

func (m *Manager) stopLocked() {
	m.trackID++
	if m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
		m.streamer = nil
		m.isPaused = false
	}
	if m.trackStreamer != nil {
		m.trackStreamer.Close()
		m.trackStreamer = nil
	}
}

// Rewind seeks the loaded clip to its first sample.
func (m *Manager) Rewind() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.trackStreamer == nil {
		return nil
	}
	speaker.Lock()
	defer speaker.Unlock()
	return m.trackStreamer.Seek(0)
}

func (m *Manager) ensureSpeakerInitialized() error {
	if m.speakerInitialized {
		return nil
	}
	if err := speaker.Init(outputSampleRate, outputSampleRate.N(time.Second/10)); err != nil {
		slog.Error("Failed to initialize speaker", "error", err)
		return err
	}
	m.speakerInitialized = true
	return nil
}

// IsPlaying returns true if audio is currently playing.
func (m *Manager) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil && !m.isPaused
}

// IsBusy returns true if audio is loaded (playing or paused).
func (m *Manager) IsBusy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil
}

// IsPaused returns true if playback is paused.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil && m.isPaused
}

// SetVolume sets playback volume (0.0 to 1.0).
func (m *Manager) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volume = clampVolume(vol)
	if m.streamer != nil {
		speaker.Lock()
		m.streamer.Volume = volumeToPower(m.volume)
		m.streamer.Silent = m.volume <= 0.01
		speaker.Unlock()
	}
}

// Volume returns current volume level.
func (m *Manager) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// Position returns the current playback position.
func (m *Manager) Position() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trackStreamer == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return m.trackFormat.SampleRate.D(m.trackStreamer.Position())
}

// Duration returns the total duration of the current audio.
func (m *Manager) Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trackStreamer == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	return m.trackFormat.SampleRate.D(m.trackStreamer.Len())
}

func clampVolume(vol float64) float64 {
	if vol < 0 {
		return 0
	}
	if vol > 1 {
		return 1
	}
	return vol
}
