package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir reads and replaces geometry documents inside one directory.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) path(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("geometry file %q is outside the data directory", name)
	}
	return filepath.Join(d.root, name), nil
}

func (d *Dir) ReadGeometry(name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (d *Dir) WriteGeometry(name string, raw []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return writeAtomic(p, raw)
}
