package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// LoadShaderModule wraps compiled SPIR-V bytes in a shader module. Destroy
// the module after pipeline creation.
func LoadShaderModule(device core1_0.Device, spirv []byte) (core1_0.ShaderModule, error) {
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, errors.Newf("spir-v bytecode must be a non-empty multiple of 4 bytes, got %d", len(spirv))
	}

	module, _, err := device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(spirv),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating shader module")
	}
	return module, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
