package application

import (
	"time"

	"github.com/loov/hrtime"
)

// Pacer holds a frame loop to a target rate by sleeping off the remainder
// of each frame period. Examples use it with present modes that don't
// block, like mailbox or immediate; it is never part of the core frame
// lifecycle, where the in-flight fence wait is the only backpressure.
type Pacer struct {
	period time.Duration
	now    func() time.Duration
	sleep  func(time.Duration)
	last   time.Duration
	primed bool
}

// NewPacer creates a pacer targeting the given frames per second.
func NewPacer(framesPerSecond int) *Pacer {
	return &Pacer{
		period: time.Second / time.Duration(framesPerSecond),
		now:    hrtime.Now,
		sleep:  time.Sleep,
	}
}

// Wait sleeps until the current frame period has elapsed since the previous
// call. The first call establishes the baseline and returns immediately.
func (p *Pacer) Wait() {
	current := p.now()
	if !p.primed {
		p.primed = true
		p.last = current
		return
	}

	elapsed := current - p.last
	if elapsed < p.period {
		p.sleep(p.period - elapsed)
		current = p.now()
	}
	p.last = current
}
