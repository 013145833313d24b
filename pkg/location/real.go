package location

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"odysseywalk/pkg/model"
)

// WatchOptions are passed to the sensor when a continuous watch starts.
type WatchOptions struct {
	HighAccuracy bool
	MaximumAge   time.Duration
	Timeout      time.Duration
}

// DefaultWatchOptions requests continuous high-accuracy fixes.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{HighAccuracy: true, MaximumAge: 5 * time.Second, Timeout: 10 * time.Second}
}

// Sensor is a continuous position source. Watch delivers fixes and errors until
// the returned cancel func is called.
type Sensor interface {
	Watch(opts WatchOptions, onFix func(model.LocationUpdate), onErr func(error)) (cancel func(), err error)
}

// RealConfig configures a RealProvider.
type RealConfig struct {
	Throttle time.Duration
	Watch    WatchOptions
	// RetryDelay is the wait before reopening a watch that ended or failed
	// to start. Zero disables reopening.
	RetryDelay time.Duration
}

// DefaultRealConfig throttles to one update per 2 s and reopens a lost
// watch after 5 s.
func DefaultRealConfig() RealConfig {
	return RealConfig{Throttle: 2 * time.Second, Watch: DefaultWatchOptions(), RetryDelay: 5 * time.Second}
}

// RealProvider wraps a device sensor, throttles its output and suspends it
// while the application is in the background.
type RealProvider struct {
	sensor Sensor
	vis    Visibility
	cfg    RealConfig
	clock  clockwork.Clock
	bc     broadcaster

	mu           sync.Mutex
	running      bool
	watchGen     int
	cancelWatch  func()
	retry        clockwork.Timer
	removeVis    func()
	onPermission func()

	hasEmitted bool
	lastEmit   int64
	last       model.LocationUpdate
}

// NewRealProvider creates a provider. A nil sensor behaves as a denied permission.
// A nil visibility source counts as always visible.
func NewRealProvider(sensor Sensor, vis Visibility, cfg RealConfig, clk clockwork.Clock) *RealProvider {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}
	return &RealProvider{sensor: sensor, vis: vis, cfg: cfg, clock: clk}
}

// SetPermissionCallback registers f, called once per permission denial event.
func (p *RealProvider) SetPermissionCallback(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPermission = f
}

func (p *RealProvider) Subscribe(l Listener) func() {
	return p.bc.subscribe(l)
}

// Start begins watching. Calling Start on a running provider does nothing.
func (p *RealProvider) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	if p.vis != nil {
		p.removeVis = p.vis.OnChange(p.handleVisibility)
	}
	visible := p.vis == nil || p.vis.Visible()
	p.mu.Unlock()

	if visible {
		p.startWatch()
	}
}

// Stop releases the sensor watch and the visibility listener.
func (p *RealProvider) Stop() {
	p.mu.Lock()
	p.running = false
	cancel := p.detachWatchLocked()
	removeVis := p.removeVis
	p.removeVis = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if removeVis != nil {
		removeVis()
	}
}

// LastKnown returns the most recently emitted update.
func (p *RealProvider) LastKnown() (model.LocationUpdate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasEmitted
}

// Watching reports whether a sensor watch is active.
func (p *RealProvider) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelWatch != nil
}

func (p *RealProvider) handleVisibility(visible bool) {
	if visible {
		slog.Debug("RealProvider: foreground, resuming sensor")
		p.startWatch()
		return
	}
	slog.Debug("RealProvider: background, suspending sensor")
	p.mu.Lock()
	cancel := p.detachWatchLocked()
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *RealProvider) startWatch() {
	p.mu.Lock()
	if !p.running || p.cancelWatch != nil {
		p.mu.Unlock()
		return
	}
	if p.sensor == nil {
		p.mu.Unlock()
		slog.Warn("RealProvider: no location sensor available")
		p.reportPermissionDenied()
		return
	}
	p.watchGen++
	gen := p.watchGen
	// Placeholder so a concurrent startWatch does not open a second watch.
	p.cancelWatch = func() {}
	p.mu.Unlock()

	cancel, err := p.sensor.Watch(p.cfg.Watch,
		func(u model.LocationUpdate) { p.handleFix(gen, u) },
		func(err error) { p.handleError(gen, err) },
	)

	p.mu.Lock()
	if p.watchGen != gen {
		// Stopped or suspended while Watch was starting.
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	if err != nil {
		p.cancelWatch = nil
		if !errors.Is(err, ErrPermissionDenied) {
			p.scheduleRetryLocked()
		}
		p.mu.Unlock()
		p.handleError(gen, err)
		return
	}
	p.cancelWatch = cancel
	p.mu.Unlock()
}

// detachWatchLocked invalidates the current watch, drops a pending reopen
// and returns the watch's cancel func.
func (p *RealProvider) detachWatchLocked() func() {
	cancel := p.cancelWatch
	p.cancelWatch = nil
	p.watchGen++
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
	return cancel
}

// scheduleRetryLocked reopens the watch after RetryDelay unless it was
// stopped, suspended or already reopened meanwhile.
func (p *RealProvider) scheduleRetryLocked() {
	if p.cfg.RetryDelay <= 0 || !p.running || p.retry != nil {
		return
	}
	gen := p.watchGen
	p.retry = p.clock.AfterFunc(p.cfg.RetryDelay, func() {
		p.mu.Lock()
		if gen != p.watchGen {
			p.mu.Unlock()
			return
		}
		p.retry = nil
		visible := p.vis == nil || p.vis.Visible()
		p.mu.Unlock()
		if visible {
			slog.Debug("RealProvider: reopening sensor watch")
			p.startWatch()
		}
	})
}

func (p *RealProvider) handleFix(gen int, u model.LocationUpdate) {
	p.mu.Lock()
	if gen != p.watchGen || !p.running {
		p.mu.Unlock()
		return
	}
	if u.Timestamp == 0 {
		u.Timestamp = p.clock.Now().UnixMilli()
	}
	if p.hasEmitted && u.Timestamp-p.lastEmit < p.cfg.Throttle.Milliseconds() {
		p.mu.Unlock()
		return
	}
	p.hasEmitted = true
	p.lastEmit = u.Timestamp
	p.last = u
	p.mu.Unlock()

	p.bc.emit(u)
}

func (p *RealProvider) handleError(gen int, err error) {
	p.mu.Lock()
	stale := gen != p.watchGen
	p.mu.Unlock()
	if stale {
		return
	}
	if errors.Is(err, ErrPermissionDenied) {
		slog.Warn("RealProvider: permission denied", "error", err)
		p.reportPermissionDenied()
		return
	}
	if errors.Is(err, ErrWatchEnded) {
		slog.Warn("RealProvider: sensor watch ended", "error", err, "retry_in", p.cfg.RetryDelay)
		p.mu.Lock()
		var cancel func()
		if gen == p.watchGen {
			cancel = p.detachWatchLocked()
			p.scheduleRetryLocked()
		}
		p.mu.Unlock()
		if cancel != nil {
			// The sensor may report from inside its own read loop.
			go cancel()
		}
		return
	}
	slog.Debug("RealProvider: sensor error ignored", "error", err)
}

func (p *RealProvider) reportPermissionDenied() {
	p.mu.Lock()
	f := p.onPermission
	p.mu.Unlock()
	if f != nil {
		f()
	}
}
