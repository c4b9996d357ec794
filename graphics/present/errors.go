package present

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

// Sentinel errors for every failure the presentation engine can surface.
//
// ErrRetryNeeded and ErrSurfaceIncompatible are recoverable: the caller
// should skip the current frame and call BeginFrame again once the window
// has settled. ErrDeviceLost and ErrAllocationFailed are fatal: no further
// frame calls are valid and the caller should tear down via WaitIdle and
// Destroy.
var (
	ErrRetryNeeded         = errors.New("swapchain invalidated: no frame produced, retry BeginFrame")
	ErrSurfaceIncompatible = errors.New("surface capability query failed")
	ErrDeviceLost          = errors.New("device lost")
	ErrAllocationFailed    = errors.New("out of memory allocating gpu-visible resources")
)

// IsRetryNeeded reports whether err indicates a recoverable skipped frame.
func IsRetryNeeded(err error) bool {
	return errors.Is(err, ErrRetryNeeded)
}

// IsFatal reports whether err means the engine can no longer produce frames.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrAllocationFailed)
}

// classifyResult marks a failed Vulkan call with the matching sentinel.
// Queue and swapchain failures which are not allocation failures are
// treated as a lost device: there is no recovery strategy for them.
func classifyResult(res common.VkResult, err error) error {
	if err == nil {
		return nil
	}
	switch res {
	case core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfDeviceMemory:
		return errors.Mark(err, ErrAllocationFailed)
	default:
		return errors.Mark(err, ErrDeviceLost)
	}
}

// asFatal marks err fatal unless it already carries a sentinel.
func asFatal(err error) error {
	if err == nil || IsFatal(err) || IsRetryNeeded(err) || errors.Is(err, ErrSurfaceIncompatible) {
		return err
	}
	return errors.Mark(err, ErrDeviceLost)
}
