package vector

import (
	"fmt"
	"path/filepath"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search persisted to a single file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeChromem uses the embedded chromem-go vector database.
	IndexTypeChromem IndexType = "chromem"
)

// NewVectorIndex creates a vector index of the specified type.
// dir is the storage directory; it may be empty for a purely in-memory index.
func NewVectorIndex(indexType string, dimensions int, dir string, compress bool) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeChromem:
		path := ""
		if dir != "" {
			path = filepath.Join(dir, "chromem")
		}
		return NewChromemIndex(path, dimensions, compress)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, chromem)", indexType)
	}
}

// IndexFile returns the file a memory index is saved to inside dir.
func IndexFile(dir string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "vectors.bin")
}
