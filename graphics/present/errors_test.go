package present

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

func TestClassifyResultAllocationFailures(t *testing.T) {
	for _, res := range []common.VkResult{
		core1_0.VKErrorOutOfHostMemory,
		core1_0.VKErrorOutOfDeviceMemory,
	} {
		err := classifyResult(res, errors.New("boom"))
		assert.ErrorIs(t, err, ErrAllocationFailed)
		assert.True(t, IsFatal(err))
	}
}

func TestClassifyResultDefaultsToDeviceLost(t *testing.T) {
	err := classifyResult(core1_0.VKErrorDeviceLost, errors.New("boom"))
	assert.ErrorIs(t, err, ErrDeviceLost)
	assert.True(t, IsFatal(err))
}

func TestClassifyResultPassesNil(t *testing.T) {
	assert.NoError(t, classifyResult(core1_0.VKSuccess, nil))
}

func TestAsFatalPreservesExistingSentinels(t *testing.T) {
	retry := errors.Wrap(ErrRetryNeeded, "frame skipped")
	assert.True(t, IsRetryNeeded(asFatal(retry)))
	assert.False(t, IsFatal(asFatal(retry)))

	surface := errors.Mark(errors.New("query failed"), ErrSurfaceIncompatible)
	assert.ErrorIs(t, asFatal(surface), ErrSurfaceIncompatible)
	assert.False(t, IsFatal(asFatal(surface)))
}

func TestAsFatalMarksUnclassifiedErrors(t *testing.T) {
	err := asFatal(errors.New("something broke"))
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestRetryNeededIsNotFatal(t *testing.T) {
	assert.True(t, IsRetryNeeded(ErrRetryNeeded))
	assert.False(t, IsFatal(ErrRetryNeeded))
	assert.False(t, IsRetryNeeded(ErrDeviceLost))
}
