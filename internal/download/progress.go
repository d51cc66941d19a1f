package download

import "time"

// ProgressFunc receives the bytes written so far and the expected total.
type ProgressFunc func(bytesDone, bytesTotal int64)

// progressThrottle forwards at most one update per interval.
type progressThrottle struct {
	fn       ProgressFunc
	interval time.Duration
	total    int64

	last     time.Time
	lastDone int64
}

func newProgressThrottle(fn ProgressFunc, interval time.Duration, total int64) *progressThrottle {
	return &progressThrottle{fn: fn, interval: interval, total: total, lastDone: -1}
}

func (p *progressThrottle) update(done int64) {
	if p.fn == nil {
		return
	}
	now := time.Now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.lastDone = done
	p.fn(done, p.total)
}

// flush always reports the final value once.
func (p *progressThrottle) flush(done int64) {
	if p.fn == nil || p.lastDone == done {
		return
	}
	p.last = time.Now()
	p.lastDone = done
	p.fn(done, p.total)
}
