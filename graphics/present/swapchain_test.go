package present

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

func TestChooseSurfaceFormatPrefersSRGB(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}

	chosen := chooseSurfaceFormat(formats)
	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, chosen.Format)
	assert.Equal(t, khr_surface.ColorSpaceSRGBNonlinear, chosen.ColorSpace)
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}

	assert.Equal(t, formats[0], chooseSurfaceFormat(formats))
}

func TestChoosePresentModeDefaultsToMailbox(t *testing.T) {
	available := []khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
	}

	assert.Equal(t, khr_surface.PresentModeMailbox, choosePresentMode(available, 0))
}

func TestChoosePresentModeHonorsPreference(t *testing.T) {
	available := []khr_surface.PresentMode{
		khr_surface.PresentModeImmediate,
		khr_surface.PresentModeFIFO,
	}

	assert.Equal(t, khr_surface.PresentModeImmediate,
		choosePresentMode(available, khr_surface.PresentModeImmediate))
}

func TestChoosePresentModeFallsBackToFIFO(t *testing.T) {
	available := []khr_surface.PresentMode{khr_surface.PresentModeFIFO}

	assert.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode(available, 0))
	assert.Equal(t, khr_surface.PresentModeFIFO,
		choosePresentMode(available, khr_surface.PresentModeMailbox))
}

func TestClampExtentUsesCurrentExtentWhenFixed(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent: core1_0.Extent2D{Width: 640, Height: 480},
	}

	extent := clampExtent(caps, core1_0.Extent2D{Width: 1920, Height: 1080})
	assert.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, extent)
}

func TestClampExtentClampsFramebufferSize(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: core1_0.Extent2D{Width: 2000, Height: 2000},
	}

	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600},
		clampExtent(caps, core1_0.Extent2D{Width: 800, Height: 600}))
	assert.Equal(t, core1_0.Extent2D{Width: 100, Height: 100},
		clampExtent(caps, core1_0.Extent2D{Width: 10, Height: 10}))
	assert.Equal(t, core1_0.Extent2D{Width: 2000, Height: 2000},
		clampExtent(caps, core1_0.Extent2D{Width: 4000, Height: 4000}))
}

func TestChooseImageCountRequestsOneOverMinimum(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{MinImageCount: 2}
	assert.Equal(t, 3, chooseImageCount(caps))
}

func TestChooseImageCountRespectsMaximum(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}
	assert.Equal(t, 3, chooseImageCount(caps))
}

func TestChooseImageCountIgnoresUnlimitedMaximum(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{MinImageCount: 4, MaxImageCount: 0}
	assert.Equal(t, 5, chooseImageCount(caps))
}
