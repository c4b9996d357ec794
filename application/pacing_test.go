package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	current time.Duration
	sleeps  []time.Duration
}

func (c *fakeClock) now() time.Duration { return c.current }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.current += d
}

func testPacer(fps int) (*Pacer, *fakeClock) {
	clock := &fakeClock{}
	return &Pacer{
		period: time.Second / time.Duration(fps),
		now:    clock.now,
		sleep:  clock.sleep,
	}, clock
}

func TestPacerFirstWaitReturnsImmediately(t *testing.T) {
	pacer, clock := testPacer(60)

	pacer.Wait()
	assert.Empty(t, clock.sleeps)
}

func TestPacerSleepsOffRemainderOfPeriod(t *testing.T) {
	pacer, clock := testPacer(100)
	pacer.Wait()

	// The frame took 4ms of the 10ms period.
	clock.current += 4 * time.Millisecond
	pacer.Wait()

	assert.Equal(t, []time.Duration{6 * time.Millisecond}, clock.sleeps)
}

func TestPacerSkipsSleepWhenFrameRanLong(t *testing.T) {
	pacer, clock := testPacer(100)
	pacer.Wait()

	clock.current += 25 * time.Millisecond
	pacer.Wait()

	assert.Empty(t, clock.sleeps)
}

func TestPacerSteadyState(t *testing.T) {
	pacer, clock := testPacer(100)
	pacer.Wait()

	for i := 0; i < 5; i++ {
		clock.current += 3 * time.Millisecond
		pacer.Wait()
	}

	// Every frame cost 3ms, so every sleep tops it up to 10ms.
	assert.Len(t, clock.sleeps, 5)
	for _, slept := range clock.sleeps {
		assert.Equal(t, 7*time.Millisecond, slept)
	}
}
