package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/playperu/territories/internal/game"
)

const archiveExt = ".json.zst"

// Archive writes zstd-compressed copies of states into a directory.
type Archive struct {
	dir string
	now func() time.Time
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir, now: time.Now}
}

// Archive stores st under a timestamped name.
func (a *Archive) Archive(_ context.Context, st *game.State) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	name := "state-" + a.now().UTC().Format("20060102T150405.000Z") + archiveExt
	path := filepath.Join(a.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(st.WithoutGeometry()); err != nil {
		enc.Close()
		return fmt.Errorf("encoding archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}
	return f.Sync()
}

// List returns archive names, oldest first.
func (a *Archive) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), archiveExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read decodes one archive by name.
func (a *Archive) Read(name string) (*game.State, error) {
	if !filepath.IsLocal(name) || !strings.HasSuffix(name, archiveExt) {
		return nil, fmt.Errorf("invalid archive name %q", name)
	}
	f, err := os.Open(filepath.Join(a.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var st game.State
	if err := json.NewDecoder(dec).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding archive: %w", err)
	}
	return &st, nil
}
