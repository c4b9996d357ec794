package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/core1_0"
)

func TestBytesToBytecodeLittleEndianWords(t *testing.T) {
	// The SPIR-V magic number, serialized little-endian.
	bytecode := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07})

	assert.Equal(t, []uint32{0x07230203}, bytecode)
}

func TestBytesToBytecodeMultipleWords(t *testing.T) {
	bytecode := bytesToBytecode([]byte{
		0x01, 0x00, 0x00, 0x00,
		0xff, 0xff, 0xff, 0xff,
	})

	assert.Equal(t, []uint32{1, 0xffffffff}, bytecode)
}

func TestLoadShaderModuleRejectsBadLengths(t *testing.T) {
	_, err := LoadShaderModule(nil, nil)
	assert.Error(t, err)

	_, err = LoadShaderModule(nil, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestHighestSampleBit(t *testing.T) {
	assert.Equal(t, core1_0.Samples8, highestSampleBit(core1_0.Samples1|core1_0.Samples2|core1_0.Samples4|core1_0.Samples8))
	assert.Equal(t, core1_0.Samples2, highestSampleBit(core1_0.Samples1|core1_0.Samples2))
	assert.Equal(t, core1_0.Samples1, highestSampleBit(core1_0.Samples1))
	assert.Equal(t, core1_0.Samples1, highestSampleBit(0))
}
