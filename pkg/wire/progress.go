package wire

import "time"

// ProgressFunc receives rate-limited progress updates for a single file.
// bytesPerSec is the instantaneous average since the operation started.
type ProgressFunc func(percent float64, bytesDone int64, bytesPerSec float64)

// ProgressInterval is the minimum wall-clock time between two progress
// callbacks. The completion callback bypasses the limit so the consumer
// always observes percent == 100.
const ProgressInterval = 150 * time.Millisecond

// progressMeter accumulates transferred bytes and drives a ProgressFunc,
// emitting at most once per ProgressInterval plus exactly once at Finish.
type progressMeter struct {
	total    int64
	done     int64
	start    time.Time
	lastEmit time.Time
	fn       ProgressFunc
}

func newProgressMeter(total int64, fn ProgressFunc) *progressMeter {
	return &progressMeter{total: total, start: time.Now(), fn: fn}
}

// Add records n more transferred bytes and emits if the rate limit allows.
func (m *progressMeter) Add(n int) {
	m.done += int64(n)
	if m.fn == nil {
		return
	}
	now := time.Now()
	if now.Sub(m.lastEmit) < ProgressInterval {
		return
	}
	m.lastEmit = now
	m.fn(m.percent(), m.done, m.speed(now))
}

// Finish emits the mandatory completion callback with percent 100.
func (m *progressMeter) Finish() {
	if m.fn == nil {
		return
	}
	m.done = m.total
	m.fn(100, m.done, m.speed(time.Now()))
}

func (m *progressMeter) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.done) / float64(m.total) * 100.0
}

// speed is bytesDone*1000/elapsedMillis, guarded to 0 for a zero elapsed.
func (m *progressMeter) speed(now time.Time) float64 {
	elapsedMillis := now.Sub(m.start).Milliseconds()
	if elapsedMillis == 0 {
		return 0
	}
	return float64(m.done) * 1000.0 / float64(elapsedMillis)
}
