// internal/upload/client.go
package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for files whose extension is not on the
// audio allow-list.
var ErrUnsupportedType = errors.New("unsupported audio file type")

// ErrEmptyAudio is returned when there are no bytes to stage.
var ErrEmptyAudio = errors.New("audio is empty")

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

// SupportedExtensions lists the accepted audio containers.
func SupportedExtensions() []string {
	return []string{"mp3", "wav", "m4a", "mp4", "aac", "flac"}
}

// Supported reports whether filename carries an allowed audio extension.
// Only the extension is checked; the content is never sniffed.
func Supported(filename string) bool {
	_, ok := audioTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// MimeType maps an allowed audio extension to the MIME type sent upstream.
func MimeType(filename string) string {
	if mt, ok := audioTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Source is an audio recording staged on local disk, ready to be uploaded.
type Source struct {
	Path     string
	Filename string
	MimeType string
	Size     int64
}

// Stage writes data into a temporary file under dir (os.TempDir when empty)
// that keeps the original extension. The returned cleanup removes it.
func Stage(dir, filename string, data []byte) (*Source, func() error, error) {
	if !Supported(filename) {
		return nil, nil, fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedType, filename, strings.Join(SupportedExtensions(), ", "))
	}
	if len(data) == 0 {
		return nil, nil, ErrEmptyAudio
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create staging dir: %w", err)
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	temp, err := os.CreateTemp(dir, "minutes-audio-*"+ext)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return nil, nil, fmt.Errorf("write audio to disk: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return nil, nil, fmt.Errorf("close temp file: %w", err)
	}

	cleanup := func() error {
		return os.Remove(temp.Name())
	}

	return &Source{
		Path:     temp.Name(),
		Filename: filename,
		MimeType: MimeType(filename),
		Size:     int64(len(data)),
	}, cleanup, nil
}
