package util

import "time"

// Timer measures elapsed wall-clock time for scoring stages.
type Timer struct {
	start time.Time
}

// StartTimer begins measuring at the current time.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the duration since the timer started. A zero timer reports
// zero elapsed time.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start)
}

// ElapsedMs returns whole elapsed milliseconds since start.
func (t Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}
