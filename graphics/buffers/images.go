package buffers

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// Image bundles an image, its memory, and a full-resource view.
type Image struct {
	Handle core1_0.Image
	Memory core1_0.DeviceMemory
	View   core1_0.ImageView
	Format core1_0.Format
	Width  int
	Height int
}

// ImageConfig describes the image NewImage creates.
type ImageConfig struct {
	Width   int
	Height  int
	Format  core1_0.Format
	Usage   core1_0.ImageUsageFlags
	Aspect  core1_0.ImageAspectFlags
	Samples core1_0.SampleCountFlags
}

// NewImage creates a device-local 2D image with optimal tiling and a view
// covering the whole resource.
func NewImage(device core1_0.Device, physicalDevice core1_0.PhysicalDevice, config ImageConfig) (*Image, error) {
	samples := config.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}

	handle, _, err := device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        config.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         config.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       samples,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating image")
	}

	image := &Image{
		Handle: handle,
		Format: config.Format,
		Width:  config.Width,
		Height: config.Height,
	}

	memReqs := handle.MemoryRequirements()
	memoryIndex, err := FindMemoryType(physicalDevice.MemoryProperties(), memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		image.Destroy()
		return nil, err
	}

	image.Memory, _, err = device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "allocating image memory")
	}

	if _, err := handle.BindImageMemory(image.Memory, 0); err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "binding image memory")
	}

	image.View, _, err = device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   config.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     config.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "creating image view")
	}

	return image, nil
}

// Destroy releases the view, image, and memory.
func (i *Image) Destroy() {
	if i.View != nil {
		i.View.Destroy(nil)
		i.View = nil
	}
	if i.Handle != nil {
		i.Handle.Destroy(nil)
		i.Handle = nil
	}
	if i.Memory != nil {
		i.Memory.Free(nil)
		i.Memory = nil
	}
}
