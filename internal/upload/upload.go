// Package upload stores proof photos sent inline as base64 data URIs.
package upload

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// URLPrefix is where stored files are served from.
const URLPrefix = "/uploads/"

// DefaultMaxBytes caps a decoded image.
const DefaultMaxBytes = 8 << 20

var (
	ErrNotDataURI = errors.New("image is not a base64 data URI")
	ErrNotImage   = errors.New("unsupported image type")
	ErrTooLarge   = errors.New("image is too large")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store writes images into one directory.
type Store struct {
	dir      string
	maxBytes int
}

func NewStore(dir string, maxBytes int) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{dir: dir, maxBytes: maxBytes}
}

func (s *Store) Dir() string { return s.dir }

// SaveDataURI decodes a data:image/...;base64, URI, stores it as
// <prefix>_<random>.<ext> and returns its public URL. The type is taken
// from the decoded bytes, not from the URI header.
func (s *Store) SaveDataURI(dataURI, prefix string) (string, error) {
	header, encoded, ok := strings.Cut(dataURI, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return "", ErrNotDataURI
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > s.maxBytes+3 {
		return "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDataURI, err)
	}
	if len(data) > s.maxBytes {
		return "", ErrTooLarge
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", ErrNotImage
	}

	var rnd [8]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return "", err
	}
	name := prefix + "_" + hex.EncodeToString(rnd[:]) + ext
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return URLPrefix + name, nil
}
