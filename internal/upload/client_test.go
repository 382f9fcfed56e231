package upload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStageWritesTempFileWithExtension(t *testing.T) {
	dir := t.TempDir()
	src, cleanup, err := Stage(dir, "Weekly Sync.MP3", []byte("audio"))
	if err != nil {
		t.Fatalf("Stage returned error: %v", err)
	}

	if filepath.Dir(src.Path) != dir {
		t.Fatalf("expected staged file under %s, got %s", dir, src.Path)
	}
	if filepath.Ext(src.Path) != ".mp3" {
		t.Fatalf("expected .mp3 extension, got %s", src.Path)
	}
	if src.Filename != "Weekly Sync.MP3" || src.MimeType != "audio/mpeg" || src.Size != 5 {
		t.Fatalf("unexpected source: %+v", src)
	}
	got, err := os.ReadFile(src.Path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if !bytes.Equal(got, []byte("audio")) {
		t.Fatalf("staged content mismatch: %q", got)
	}

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(src.Path); !os.IsNotExist(err) {
		t.Fatalf("expected staged file to be removed, stat err=%v", err)
	}
}

func TestStageRejectsUnsupportedExtension(t *testing.T) {
	if _, _, err := Stage(t.TempDir(), "notes.txt", []byte("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestStageRejectsEmptyAudio(t *testing.T) {
	if _, _, err := Stage(t.TempDir(), "call.wav", nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.mp3", true},
		{"a.WAV", true},
		{"a.m4a", true},
		{"a.mp4", true},
		{"a.aac", true},
		{"a.flac", true},
		{"a.ogg", false},
		{"mp3", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.name); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMimeTypeFallback(t *testing.T) {
	if got := MimeType("x.flac"); got != "audio/flac" {
		t.Fatalf("unexpected mime: %s", got)
	}
	if got := MimeType("x.bin"); got != "application/octet-stream" {
		t.Fatalf("unexpected fallback mime: %s", got)
	}
}
