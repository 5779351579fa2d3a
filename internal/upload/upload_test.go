package upload

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func dataURI(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func TestSaveDataURI(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0)

	url, err := s.SaveDataURI(dataURI("image/jpeg", pngHeader), "proof")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/proof_") || !strings.HasSuffix(url, ".png") {
		t.Errorf("unexpected url %q", url)
	}
	b, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, URLPrefix)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(b) != string(pngHeader) {
		t.Error("stored bytes differ")
	}

	other, _ := s.SaveDataURI(dataURI("image/png", pngHeader), "proof")
	if other == url {
		t.Error("expected distinct names")
	}
}

func TestSaveDataURIErrors(t *testing.T) {
	s := NewStore(t.TempDir(), 32)
	tests := []struct {
		name string
		uri  string
		want error
	}{
		{"no comma", "data:image/png;base64", ErrNotDataURI},
		{"not base64", "data:image/png,abc", ErrNotDataURI},
		{"bad encoding", "data:image/png;base64,!!!", ErrNotDataURI},
		{"text", dataURI("image/png", []byte("hello, not an image")), ErrNotImage},
		{"too large", dataURI("image/png", append(pngHeader, make([]byte, 64)...)), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.SaveDataURI(tt.uri, "proof"); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
