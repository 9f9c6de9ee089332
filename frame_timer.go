package forge

import "time"

// FrameTimer tracks wall-clock frame delta time, the way
// PostprocessHDREyeAdaptationStage's running-mean adaptation needs a
// per-frame weight. Clamped to a 10fps floor so a debugger breakpoint
// or a startup hitch doesn't push adaptation or physics-like systems
// into a single huge step.
type FrameTimer struct {
	last       time.Time
	Dt         float64
	FrameCount uint64
}

func NewFrameTimer() *FrameTimer {
	return &FrameTimer{last: time.Now()}
}

// Tick advances the timer by the wall-clock time since the previous
// Tick (or construction) and returns the clamped delta, in seconds.
func (t *FrameTimer) Tick() float64 {
	now := time.Now()
	dt := now.Sub(t.last).Seconds()
	if dt > 0.1 {
		dt = 0.1
	}
	t.last = now
	t.Dt = dt
	t.FrameCount++
	return dt
}
