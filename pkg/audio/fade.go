package audio

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// VolumeAtElapsed is a linear ramp from start to end over duration, clamped
// at both ends. A non-positive duration yields end immediately.
func VolumeAtElapsed(elapsed, duration time.Duration, start, end float64) float64 {
	if duration <= 0 || elapsed >= duration {
		return end
	}
	if elapsed <= 0 {
		return start
	}
	t := float64(elapsed) / float64(duration)
	return start + (end-start)*t
}

// Fade steps set through VolumeAtElapsed once per frame until duration has
// elapsed. The final call always receives end. It returns ctx.Err() if the
// context ends first.
func Fade(ctx context.Context, clk clockwork.Clock, duration, frame time.Duration, start, end float64, set func(float64)) error {
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	begin := clk.Now()
	for {
		elapsed := clk.Now().Sub(begin)
		set(VolumeAtElapsed(elapsed, duration, start, end))
		if elapsed >= duration {
			return nil
		}

		t := clk.NewTimer(min(frame, duration-elapsed))
		select {
		case <-t.Chan():
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
