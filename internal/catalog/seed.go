package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Analysis     QualitativeAnalysis `yaml:"analysis"`
	Publications []Publication       `yaml:"publications"`
}

// Load decodes a YAML catalog and builds an index from it
func Load(r io.Reader) (*MemoryIndex, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	return NewMemoryIndex(f.Publications, f.Analysis)
}

// LoadFile loads the catalog at path
func LoadFile(path string) (*MemoryIndex, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer fh.Close()

	return Load(fh)
}

// Default returns the built-in demo catalog
func Default() *MemoryIndex {
	idx, err := Load(bytes.NewReader(seedYAML))
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded seed is invalid: %v", err))
	}
	return idx
}

// Open loads path, or the built-in catalog when path is empty
func Open(path string) (*MemoryIndex, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
