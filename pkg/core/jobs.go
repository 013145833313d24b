package core

import (
	"context"
	"sync/atomic"
	"time"

	"odysseywalk/pkg/geo"
	"odysseywalk/pkg/model"
)

// Tick is what the scheduler hands to its jobs on each heartbeat.
type Tick struct {
	Now      time.Time
	Location *model.LocationUpdate // nil until the first fix
}

// Job defines a scheduled task.
type Job interface {
	Name() string
	ShouldFire(t *Tick) bool
	Run(ctx context.Context, t *Tick)
}

// BaseJob provides atomic running state to prevent re-entry.
type BaseJob struct {
	name    string
	running int32 // 1 if running, 0 otherwise
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock attempts to set running to 1. Returns true if successful.
func (b *BaseJob) TryLock() bool {
	return atomic.CompareAndSwapInt32(&b.running, 0, 1)
}

func (b *BaseJob) Unlock() {
	atomic.StoreInt32(&b.running, 0)
}

func (b *BaseJob) busy() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// DistanceJob fires once the walker is threshold meters away from where it
// last fired. It never fires without a fix.
type DistanceJob struct {
	BaseJob
	lastPos   model.LatLng
	threshold float64 // meters
	action    func(context.Context, Tick)
	firstRun  bool
}

func NewDistanceJob(name string, thresholdMeters float64, action func(context.Context, Tick)) *DistanceJob {
	return &DistanceJob{
		BaseJob:   NewBaseJob(name),
		threshold: thresholdMeters,
		action:    action,
		firstRun:  true,
	}
}

func (j *DistanceJob) ShouldFire(t *Tick) bool {
	if j.busy() || t.Location == nil {
		return false
	}
	if j.firstRun {
		return true
	}
	return geo.Distance(j.lastPos, t.Location.Position()) >= j.threshold
}

func (j *DistanceJob) Run(ctx context.Context, t *Tick) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.lastPos = t.Location.Position()
	j.firstRun = false

	j.action(ctx, *t)
}

// TimeJob fires when the interval since its last run has elapsed. The first
// tick always fires.
type TimeJob struct {
	BaseJob
	lastTime  time.Time
	threshold time.Duration
	action    func(context.Context, Tick)
	firstRun  bool
}

func NewTimeJob(name string, threshold time.Duration, action func(context.Context, Tick)) *TimeJob {
	return &TimeJob{
		BaseJob:   NewBaseJob(name),
		threshold: threshold,
		action:    action,
		firstRun:  true,
	}
}

func (j *TimeJob) ShouldFire(t *Tick) bool {
	if j.busy() {
		return false
	}
	if j.firstRun {
		return true
	}
	return t.Now.Sub(j.lastTime) >= j.threshold
}

func (j *TimeJob) Run(ctx context.Context, t *Tick) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.lastTime = t.Now
	j.firstRun = false

	j.action(ctx, *t)
}
