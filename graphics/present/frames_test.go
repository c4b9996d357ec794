package present

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
)

// fakeFence models the signal state of a device fence. inFlight is true
// between Submit and the next Wait; resetting or resubmitting a fence that
// is still in flight is a synchronization bug.
type fakeFence struct {
	inFlight  bool
	waits     int
	destroyed bool
}

func (f *fakeFence) Wait() error {
	f.inFlight = false
	f.waits++
	return nil
}

func (f *fakeFence) Reset() error {
	if f.inFlight {
		return errors.New("fence reset while still in flight")
	}
	return nil
}

func (f *fakeFence) Destroy() { f.destroyed = true }

type fakeSubmitter struct {
	submits    []int
	violations []string
}

func (s *fakeSubmitter) Submit(slot *Slot) error {
	fence := slot.InFlight.(*fakeFence)
	if fence.inFlight {
		s.violations = append(s.violations, "submit on a fence that was never waited")
	}
	fence.inFlight = true
	s.submits = append(s.submits, slot.Index)
	return nil
}

type fakeTarget struct {
	imageCount int
	nextImage  int

	// scripted outcomes consumed in order; exhausted scripts yield Optimal.
	acquireScript []Outcome
	presentScript []Outcome

	acquires int
	presents int
	rebuilds []core1_0.Extent2D

	rebuildErr error
}

func (t *fakeTarget) Acquire(_ core1_0.Semaphore) (int, Outcome, error) {
	t.acquires++
	outcome := Optimal
	if len(t.acquireScript) > 0 {
		outcome = t.acquireScript[0]
		t.acquireScript = t.acquireScript[1:]
	}
	if outcome == OutOfDate {
		return 0, OutOfDate, nil
	}
	image := t.nextImage
	t.nextImage = (t.nextImage + 1) % t.imageCount
	return image, outcome, nil
}

func (t *fakeTarget) Present(_ int, _ core1_0.Semaphore) (Outcome, error) {
	t.presents++
	if len(t.presentScript) > 0 {
		outcome := t.presentScript[0]
		t.presentScript = t.presentScript[1:]
		return outcome, nil
	}
	return Optimal, nil
}

func (t *fakeTarget) Rebuild(extent core1_0.Extent2D) error {
	if t.rebuildErr != nil {
		return t.rebuildErr
	}
	t.rebuilds = append(t.rebuilds, extent)
	t.nextImage = 0
	return nil
}

func (t *fakeTarget) ImageCount() int { return t.imageCount }

func testPool(count int) *SlotPool {
	pool := &SlotPool{}
	for i := 0; i < count; i++ {
		pool.slots = append(pool.slots, &Slot{Index: i, InFlight: &fakeFence{}})
	}
	return pool
}

type harness struct {
	frames  *Frames
	target  *fakeTarget
	submit  *fakeSubmitter
	pool    *SlotPool
	extent  core1_0.Extent2D
	idles   int
	idleErr error
}

func newHarness(t *testing.T, slotCount, imageCount int) *harness {
	t.Helper()
	h := &harness{
		target: &fakeTarget{imageCount: imageCount},
		submit: &fakeSubmitter{},
		pool:   testPool(slotCount),
		extent: core1_0.Extent2D{Width: 800, Height: 600},
	}
	idle := func() error {
		h.idles++
		return h.idleErr
	}
	h.frames = newFrames(h.target, h.submit, idle, func() core1_0.Extent2D { return h.extent }, h.pool)
	return h
}

func (h *harness) drawFrame(t *testing.T) Token {
	t.Helper()
	token, err := h.frames.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, h.frames.EndFrame(token))
	return token
}

func TestFramesRoundRobinSlots(t *testing.T) {
	h := newHarness(t, 2, 3)

	var slots []int
	for i := 0; i < 6; i++ {
		slots = append(slots, h.drawFrame(t).SlotIndex)
	}

	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, slots)
	assert.Empty(t, h.submit.violations)
}

func TestFramesOutrunSlotCountWithoutDeadlock(t *testing.T) {
	h := newHarness(t, 2, 3)

	// One more frame than there are slots forces a reuse of slot 0; the
	// fence wait in BeginFrame is what makes that safe.
	for i := 0; i < 3; i++ {
		h.drawFrame(t)
	}

	assert.Equal(t, []int{0, 1, 0}, h.submit.submits)
	assert.Empty(t, h.submit.violations)
	fence := h.pool.Slot(0).InFlight.(*fakeFence)
	assert.GreaterOrEqual(t, fence.waits, 2)
}

func TestFramesImageReuseWaitsOnOwningSlot(t *testing.T) {
	// More slots than images guarantees image reuse while the owning
	// slot's work may still be in flight.
	h := newHarness(t, 3, 2)

	for i := 0; i < 4; i++ {
		h.drawFrame(t)
	}

	assert.Empty(t, h.submit.violations)
}

func TestFramesAcquireOutOfDateRebuildsAndRetries(t *testing.T) {
	h := newHarness(t, 2, 3)
	h.target.acquireScript = []Outcome{OutOfDate}

	_, err := h.frames.BeginFrame()
	require.Error(t, err)
	assert.True(t, IsRetryNeeded(err))
	assert.False(t, IsFatal(err))
	assert.Len(t, h.target.rebuilds, 1)

	// The very next frame acquires image 0 from the fresh swapchain.
	token := h.drawFrame(t)
	assert.Equal(t, 0, token.ImageIndex)
	assert.Len(t, h.target.rebuilds, 1)
}

func TestFramesSuboptimalAcquireStillPresents(t *testing.T) {
	h := newHarness(t, 2, 3)
	h.target.acquireScript = []Outcome{Suboptimal}

	h.drawFrame(t)

	// The suboptimal frame completes, then the swapchain is rebuilt
	// before the next acquire.
	assert.Equal(t, 1, h.target.presents)
	assert.Len(t, h.target.rebuilds, 1)

	h.drawFrame(t)
	assert.Len(t, h.target.rebuilds, 1)
}

func TestFramesSuboptimalPresentRebuildsBeforeNextAcquire(t *testing.T) {
	h := newHarness(t, 2, 3)
	h.target.presentScript = []Outcome{Suboptimal}

	h.drawFrame(t)
	assert.Len(t, h.target.rebuilds, 1)

	acquiresBefore := h.target.acquires
	h.drawFrame(t)
	assert.Equal(t, acquiresBefore+1, h.target.acquires)
	assert.Len(t, h.target.rebuilds, 1)
}

func TestFramesOutOfDatePresentRebuilds(t *testing.T) {
	h := newHarness(t, 2, 3)
	h.target.presentScript = []Outcome{OutOfDate}

	h.drawFrame(t)
	assert.Len(t, h.target.rebuilds, 1)

	token := h.drawFrame(t)
	assert.Equal(t, 0, token.ImageIndex)
}

func TestFramesZeroExtentDefersRebuild(t *testing.T) {
	h := newHarness(t, 2, 3)
	h.frames.Invalidate()
	h.extent = core1_0.Extent2D{}

	// Minimized: no drawable area, so no rebuild and no frame.
	for i := 0; i < 3; i++ {
		_, err := h.frames.BeginFrame()
		require.Error(t, err)
		assert.True(t, IsRetryNeeded(err))
	}
	assert.Empty(t, h.target.rebuilds)
	assert.Zero(t, h.target.acquires)

	// Restored: the pending rebuild runs and rendering resumes.
	h.extent = core1_0.Extent2D{Width: 1024, Height: 768}
	token := h.drawFrame(t)
	require.Len(t, h.target.rebuilds, 1)
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, h.target.rebuilds[0])
	assert.Equal(t, 0, token.ImageIndex)
}

func TestFramesInvalidateRebuildsOnce(t *testing.T) {
	h := newHarness(t, 2, 3)

	h.frames.Invalidate()
	h.frames.Invalidate()
	h.drawFrame(t)
	h.drawFrame(t)

	assert.Len(t, h.target.rebuilds, 1)
}

func TestFramesRebuildFailurePropagates(t *testing.T) {
	h := newHarness(t, 2, 3)
	h.target.rebuildErr = errors.Mark(errors.New("surface gone"), ErrSurfaceIncompatible)
	h.frames.Invalidate()

	_, err := h.frames.BeginFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSurfaceIncompatible)
	assert.False(t, IsFatal(err))
}

func TestFramesBeginTwiceFails(t *testing.T) {
	h := newHarness(t, 2, 3)

	_, err := h.frames.BeginFrame()
	require.NoError(t, err)

	_, err = h.frames.BeginFrame()
	assert.Error(t, err)
}

func TestFramesEndWithoutBeginFails(t *testing.T) {
	h := newHarness(t, 2, 3)
	assert.Error(t, h.frames.EndFrame(Token{}))
}

func TestFramesWaitIdleIsIdempotent(t *testing.T) {
	h := newHarness(t, 2, 3)

	require.NoError(t, h.frames.WaitIdle())
	require.NoError(t, h.frames.WaitIdle())
	assert.Equal(t, 1, h.idles)

	// Rendering another frame re-arms the next WaitIdle.
	h.drawFrame(t)
	require.NoError(t, h.frames.WaitIdle())
	assert.Equal(t, 2, h.idles)
}

func TestFramesFrameCount(t *testing.T) {
	h := newHarness(t, 3, 3)
	assert.Equal(t, 3, h.frames.FrameCount())
}

func TestConfigFrameCountDefaults(t *testing.T) {
	assert.Equal(t, 2, Config{}.frameCount())
	assert.Equal(t, 4, Config{FrameCount: 4}.frameCount())
}

func TestSlotPoolRejectsSingleSlot(t *testing.T) {
	_, err := NewSlotPool(nil, 0, 1)
	assert.Error(t, err)
}

func TestSlotPoolAdvanceWraps(t *testing.T) {
	pool := testPool(3)

	assert.Equal(t, 0, pool.Current().Index)
	pool.Advance()
	assert.Equal(t, 1, pool.Current().Index)
	pool.Advance()
	pool.Advance()
	assert.Equal(t, 0, pool.Current().Index)
}
