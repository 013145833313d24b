package audio

// Clip is encoded audio held in memory.
type Clip struct {
	Data   []byte
	Format string // "mp3" or "wav"
}

// Player owns the single audible output.
type Player interface {
	// Play stops anything loaded and starts clip. onComplete runs once when the
	// clip ends on its own, with a non-nil error if playback failed midway.
	// It is not called after Stop.
	Play(clip Clip, startPaused bool, onComplete func(err error)) error
	Pause()
	Resume()
	Stop()
	// Rewind seeks the loaded clip back to its start.
	Rewind() error
	SetVolume(vol float64)
	Volume() float64
	// IsPlaying reports loaded and not paused.
	IsPlaying() bool
	// IsBusy reports loaded (playing or paused).
	IsBusy() bool
	IsPaused() bool
}
