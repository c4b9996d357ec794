package graphics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/core1_0"
)

func TestPickQueueFamiliesPrefersCombinedFamily(t *testing.T) {
	flags := []core1_0.QueueFlags{
		core1_0.QueueTransfer,
		core1_0.QueueGraphics,
		core1_0.QueueGraphics | core1_0.QueueCompute,
	}
	presentable := []bool{true, false, true}

	graphics, present, ok := pickQueueFamilies(flags, presentable)
	assert.True(t, ok)
	assert.Equal(t, 2, graphics)
	assert.Equal(t, 2, present)
}

func TestPickQueueFamiliesSplitsWhenNecessary(t *testing.T) {
	flags := []core1_0.QueueFlags{
		core1_0.QueueGraphics,
		core1_0.QueueTransfer,
	}
	presentable := []bool{false, true}

	graphics, present, ok := pickQueueFamilies(flags, presentable)
	assert.True(t, ok)
	assert.Equal(t, 0, graphics)
	assert.Equal(t, 1, present)
}

func TestPickQueueFamiliesFailsWithoutGraphics(t *testing.T) {
	flags := []core1_0.QueueFlags{core1_0.QueueTransfer, core1_0.QueueCompute}
	presentable := []bool{true, true}

	_, _, ok := pickQueueFamilies(flags, presentable)
	assert.False(t, ok)
}

func TestPickQueueFamiliesFailsWithoutPresentation(t *testing.T) {
	flags := []core1_0.QueueFlags{core1_0.QueueGraphics}
	presentable := []bool{false}

	_, _, ok := pickQueueFamilies(flags, presentable)
	assert.False(t, ok)
}

func TestPickQueueFamiliesEmptyTable(t *testing.T) {
	_, _, ok := pickQueueFamilies(nil, nil)
	assert.False(t, ok)
}
