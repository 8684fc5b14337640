package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/revolution/engine/core"
	"honnef.co/go/safeish"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

// ShaderLoader reads compiled SPIR-V modules relative to a shader directory.
type ShaderLoader struct {
	Dir string
}

func (sl *ShaderLoader) path(name string) string {
	if filepath.IsAbs(name) || sl.Dir == "" {
		return name
	}
	return filepath.Join(sl.Dir, name)
}

// Load returns the SPIR-V words of the module called name.
func (sl *ShaderLoader) Load(name string) ([]uint32, error) {
	path := sl.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load shader %s: %w", path, err)
	}
	return DecodeSpirv(path, data)
}

// DecodeSpirv checks the size and magic number of a SPIR-V module and returns its words.
func DecodeSpirv(name string, data []byte) ([]uint32, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("shader %s has %d bytes, not a whole number of words: %w", name, len(data), core.ErrResourceCreation)
	}
	words := make([]uint32, len(data)/4)
	copy(safeish.SliceCast[[]byte](words), data)
	if words[0] != SpirvMagic {
		return nil, fmt.Errorf("shader %s has magic %#08x: %w", name, words[0], core.ErrResourceCreation)
	}
	return words, nil
}
