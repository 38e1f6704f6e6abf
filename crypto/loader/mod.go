// Package loader defines the primitives to load the secrets of a node, like
// the key of a contract or the secret of the coprocessor, and to create them
// on first use.
package loader

import (
	"bytes"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// Generator creates a fresh secret.
type Generator interface {
	Generate() ([]byte, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func() ([]byte, error)

// Generate implements loader.Generator.
func (fn GeneratorFunc) Generate() ([]byte, error) {
	return fn()
}

// Loader is the interface to load a secret.
type Loader interface {
	// LoadOrCreate returns the stored secret, or creates and stores a new
	// one with the generator when there is none.
	LoadOrCreate(g Generator) ([]byte, error)

	// Load returns the stored secret or an error when it does not exist.
	Load() ([]byte, error)
}

// fileLoader stores the secret in a file readable only by the owner.
//
// - implements loader.Loader
type fileLoader struct {
	path string
}

// NewFileLoader returns a loader that uses the file at the given path.
func NewFileLoader(path string) Loader {
	return fileLoader{path: path}
}

// LoadOrCreate implements loader.Loader. The file is created with the 0400
// permission, and its parent directory when missing.
func (l fileLoader) LoadOrCreate(g Generator) ([]byte, error) {
	_, err := os.Stat(l.path)
	if err == nil {
		data, err := l.Load()
		if err != nil {
			return nil, xerrors.Errorf("failed to load file: %v", err)
		}

		return data, nil
	}

	if !os.IsNotExist(err) {
		return nil, xerrors.Errorf("while checking file: %v", err)
	}

	data, err := g.Generate()
	if err != nil {
		return nil, xerrors.Errorf("generator failed: %v", err)
	}

	err = os.MkdirAll(filepath.Dir(l.path), 0700)
	if err != nil {
		return nil, xerrors.Errorf("while creating folder: %v", err)
	}

	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0400)
	if err != nil {
		return nil, xerrors.Errorf("while creating file: %v", err)
	}

	defer file.Close()

	_, err = file.Write(data)
	if err != nil {
		return nil, xerrors.Errorf("while writing: %v", err)
	}

	return data, nil
}

// Load implements loader.Loader.
func (l fileLoader) Load() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, xerrors.Errorf("while reading file: %v", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, xerrors.Errorf("file '%s' is empty", l.path)
	}

	return data, nil
}
