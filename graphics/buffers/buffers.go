// Package buffers wraps the repetitive parts of Vulkan memory management:
// buffer + memory allocation, host-coherent writes, staged uploads to
// device-local memory, and single-time command submission.
package buffers

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

// Buffer bundles a Vulkan buffer with the memory bound to it.
type Buffer struct {
	Handle core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int
}

// NewBuffer allocates a buffer and binds fresh memory with the requested
// properties to it.
func NewBuffer(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	size int,
	usage core1_0.BufferUsageFlags,
	properties core1_0.MemoryPropertyFlags,
) (*Buffer, error) {
	handle, _, err := device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating buffer")
	}

	memRequirements := handle.MemoryRequirements()
	memoryTypeIndex, err := FindMemoryType(physicalDevice.MemoryProperties(), memRequirements.MemoryTypeBits, properties)
	if err != nil {
		handle.Destroy(nil)
		return nil, err
	}

	memory, _, err := device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		handle.Destroy(nil)
		return nil, errors.Wrap(err, "allocating buffer memory")
	}

	if _, err := handle.BindBufferMemory(memory, 0); err != nil {
		memory.Free(nil)
		handle.Destroy(nil)
		return nil, errors.Wrap(err, "binding buffer memory")
	}

	return &Buffer{Handle: handle, Memory: memory, Size: size}, nil
}

// NewHostCoherentBuffer allocates a buffer the CPU can write directly.
func NewHostCoherentBuffer(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	size int,
	usage core1_0.BufferUsageFlags,
) (*Buffer, error) {
	return NewBuffer(device, physicalDevice, size, usage,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
}

// NewDeviceLocalBuffer allocates a buffer in GPU-only memory. Fill it with
// Upload.
func NewDeviceLocalBuffer(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	size int,
	usage core1_0.BufferUsageFlags,
) (*Buffer, error) {
	return NewBuffer(device, physicalDevice, size,
		usage|core1_0.BufferUsageTransferDst,
		core1_0.MemoryPropertyDeviceLocal)
}

// Write serializes data into the buffer's memory at the given offset. The
// memory must be host-visible; data follows encoding/binary layout rules.
func (b *Buffer) Write(offset int, data any) error {
	dataSize := binary.Size(data)
	if offset+dataSize > b.Size {
		return errors.Newf("write of %d bytes at offset %d overflows %d-byte buffer", dataSize, offset, b.Size)
	}

	memoryPtr, _, err := b.Memory.Map(offset, dataSize, 0)
	if err != nil {
		return errors.Wrap(err, "mapping buffer memory")
	}
	defer b.Memory.Unmap()

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), dataSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return errors.Wrap(err, "serializing buffer data")
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

// Destroy releases the buffer and frees its memory.
func (b *Buffer) Destroy() {
	if b.Handle != nil {
		b.Handle.Destroy(nil)
		b.Handle = nil
	}
	if b.Memory != nil {
		b.Memory.Free(nil)
		b.Memory = nil
	}
}

// FindMemoryType locates a memory type matching both the resource's type
// filter and the requested property flags.
func FindMemoryType(
	memProperties *core1_0.PhysicalDeviceMemoryProperties,
	typeFilter uint32,
	properties core1_0.MemoryPropertyFlags,
) (int, error) {
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches filter %#x with properties %s", typeFilter, properties)
}
