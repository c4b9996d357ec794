package present

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

// Swapchain owns the swapchain handle, its images and views, and the
// format/extent they were built with. It knows how to rebuild itself from
// the surface's current capabilities; callers must not touch resources from
// a previous build after Rebuild returns.
type Swapchain struct {
	device         core1_0.Device
	physicalDevice core1_0.PhysicalDevice
	surface        khr_surface.Surface
	extension      khr_swapchain.Extension

	graphicsFamily int
	presentFamily  int
	preferredMode  khr_surface.PresentMode

	handle      khr_swapchain.Swapchain
	images      []core1_0.Image
	views       []core1_0.ImageView
	format      core1_0.Format
	colorSpace  khr_surface.ColorSpace
	extent      core1_0.Extent2D
	presentMode khr_surface.PresentMode

	// generation increments on every successful rebuild so render passes
	// and framebuffers can detect that their attachments are stale.
	generation uint64
}

// NewSwapchain builds a swapchain for the given surface. The preferred
// present mode may be zero, in which case mailbox is used when available
// with a FIFO fallback.
func NewSwapchain(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	surface khr_surface.Surface,
	graphicsFamily, presentFamily int,
	extent core1_0.Extent2D,
	preferredMode khr_surface.PresentMode,
) (*Swapchain, error) {
	s := &Swapchain{
		device:         device,
		physicalDevice: physicalDevice,
		surface:        surface,
		extension:      khr_swapchain.CreateExtensionFromDevice(device),
		graphicsFamily: graphicsFamily,
		presentFamily:  presentFamily,
		preferredMode:  preferredMode,
	}
	if err := s.Rebuild(extent); err != nil {
		return nil, err
	}
	return s, nil
}

// Rebuild destroys the current swapchain resources and builds new ones from
// the surface's capabilities. The caller is responsible for making sure no
// GPU work still references the old resources.
func (s *Swapchain) Rebuild(framebufferExtent core1_0.Extent2D) error {
	caps, _, err := s.surface.PhysicalDeviceSurfaceCapabilities(s.physicalDevice)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "querying surface capabilities"), ErrSurfaceIncompatible)
	}

	formats, _, err := s.surface.PhysicalDeviceSurfaceFormats(s.physicalDevice)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "querying surface formats"), ErrSurfaceIncompatible)
	}

	presentModes, _, err := s.surface.PhysicalDeviceSurfacePresentModes(s.physicalDevice)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "querying surface present modes"), ErrSurfaceIncompatible)
	}

	surfaceFormat := chooseSurfaceFormat(formats)
	presentMode := choosePresentMode(presentModes, s.preferredMode)
	extent := clampExtent(caps, framebufferExtent)
	imageCount := chooseImageCount(caps)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.graphicsFamily != s.presentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = []int{s.graphicsFamily, s.presentFamily}
	}

	s.destroyResources()

	handle, res, err := s.extension.CreateSwapchain(s.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return classifyResult(res, errors.Wrap(err, "creating swapchain"))
	}
	s.handle = handle
	s.format = surfaceFormat.Format
	s.colorSpace = surfaceFormat.ColorSpace
	s.extent = extent
	s.presentMode = presentMode

	images, res, err := handle.SwapchainImages()
	if err != nil {
		return classifyResult(res, errors.Wrap(err, "fetching swapchain images"))
	}
	s.images = images

	for _, image := range images {
		view, res, err := s.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   surfaceFormat.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return classifyResult(res, errors.Wrap(err, "creating swapchain image view"))
		}
		s.views = append(s.views, view)
	}

	s.generation++
	return nil
}

// Destroy releases all swapchain resources. The device must be idle.
func (s *Swapchain) Destroy() {
	s.destroyResources()
}

func (s *Swapchain) destroyResources() {
	for _, view := range s.views {
		view.Destroy(nil)
	}
	s.views = nil
	s.images = nil

	if s.handle != nil {
		s.handle.Destroy(nil)
		s.handle = nil
	}
}

func (s *Swapchain) Handle() khr_swapchain.Swapchain    { return s.handle }
func (s *Swapchain) Images() []core1_0.Image            { return s.images }
func (s *Swapchain) Views() []core1_0.ImageView         { return s.views }
func (s *Swapchain) Format() core1_0.Format             { return s.format }
func (s *Swapchain) ColorSpace() khr_surface.ColorSpace { return s.colorSpace }
func (s *Swapchain) Extent() core1_0.Extent2D           { return s.extent }
func (s *Swapchain) PresentMode() khr_surface.PresentMode {
	return s.presentMode
}
func (s *Swapchain) ImageCount() int    { return len(s.images) }
func (s *Swapchain) Generation() uint64 { return s.generation }

func chooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func choosePresentMode(availableModes []khr_surface.PresentMode, preferred khr_surface.PresentMode) khr_surface.PresentMode {
	if preferred == 0 {
		preferred = khr_surface.PresentModeMailbox
	}
	for _, presentMode := range availableModes {
		if presentMode == preferred {
			return presentMode
		}
	}

	// FIFO is the one mode every driver must support.
	return khr_surface.PresentModeFIFO
}

func clampExtent(caps *khr_surface.SurfaceCapabilities, framebuffer core1_0.Extent2D) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}

	extent := framebuffer
	if extent.Width < caps.MinImageExtent.Width {
		extent.Width = caps.MinImageExtent.Width
	}
	if extent.Width > caps.MaxImageExtent.Width {
		extent.Width = caps.MaxImageExtent.Width
	}
	if extent.Height < caps.MinImageExtent.Height {
		extent.Height = caps.MinImageExtent.Height
	}
	if extent.Height > caps.MaxImageExtent.Height {
		extent.Height = caps.MaxImageExtent.Height
	}

	return extent
}

func chooseImageCount(caps *khr_surface.SurfaceCapabilities) int {
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && caps.MaxImageCount < imageCount {
		imageCount = caps.MaxImageCount
	}
	return imageCount
}
