package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odysseywalk/pkg/model"
)

type recordingJob struct {
	BaseJob
	mu    sync.Mutex
	ticks []Tick
	fire  bool
}

func (j *recordingJob) ShouldFire(t *Tick) bool { return j.fire }

func (j *recordingJob) Run(ctx context.Context, t *Tick) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ticks = append(j.ticks, *t)
}

func (j *recordingJob) seen() []Tick {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Tick(nil), j.ticks...)
}

func TestScheduler_TickPassesLatestLocation(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(time.Second, clk)
	on := &recordingJob{BaseJob: NewBaseJob("on"), fire: true}
	off := &recordingJob{BaseJob: NewBaseJob("off")}
	s.AddJob(on)
	s.AddJob(off)

	s.tick(context.Background())
	s.Observe(model.LocationUpdate{Lat: 48.85, Lng: 2.34, Timestamp: 1})
	s.Observe(model.LocationUpdate{Lat: 48.86, Lng: 2.35, Timestamp: 2})
	s.tick(context.Background())
	s.wg.Wait()

	ticks := on.seen()
	require.Len(t, ticks, 2)
	assert.Empty(t, off.seen())

	var withFix *Tick
	for i := range ticks {
		assert.Equal(t, t0, ticks[i].Now)
		if ticks[i].Location != nil {
			withFix = &ticks[i]
		}
	}
	require.NotNil(t, withFix)
	assert.Equal(t, int64(2), withFix.Location.Timestamp)
}

func TestScheduler_StartStops(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, nil)
	job := &recordingJob{BaseJob: NewBaseJob("beat"), fire: true}
	s.AddJob(job)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.NotEmpty(t, job.seen(), "the immediate first tick runs")
}

func TestScheduler_TicksOnClock(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(time.Minute, clk)
	job := &recordingJob{BaseJob: NewBaseJob("beat"), fire: true}
	s.AddJob(job)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(job.seen()) == 1 }, time.Second, time.Millisecond)
	block, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, clk.BlockUntilContext(block, 1))
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(job.seen()) == 2 }, time.Second, time.Millisecond)

	ticks := job.seen()
	assert.Equal(t, t0, ticks[0].Now)
	assert.Equal(t, t0.Add(time.Minute), ticks[1].Now)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
