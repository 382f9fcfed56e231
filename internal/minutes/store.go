// Package minutes writes generated minutes documents to disk.
package minutes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const (
	timestampLayout = "20060102_150405"
	defaultStem     = "minutes"
)

// Store saves each document as {YYYYMMDD_HHMMSS}_{stem}.md under dir.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) Dir() string { return s.dir }

// Save writes text verbatim and returns the new file's path. An existing file
// is never replaced.
func (s *Store) Save(text, originalFilename string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create minutes dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.md", s.now().Format(timestampLayout), SanitizeStem(originalFilename))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("minutes file %s already exists", path)
		}
		return "", fmt.Errorf("create minutes file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write minutes file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close minutes file: %w", err)
	}
	return path, nil
}

// SanitizeStem drops the extension of filename and replaces every rune other
// than letters, digits, space, '-' and '_' with '_'. Path separators are
// replaced too, so "Q3 Review: Final/v2.mp3" becomes "Q3 Review_ Final_v2".
func SanitizeStem(filename string) string {
	stem := strings.TrimSuffix(filename, extension(filename))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return defaultStem
	}
	return b.String()
}

// extension is filepath.Ext without treating '/' or '\' as a boundary: a
// leading dot (".mp3") is a name, not an extension.
func extension(name string) string {
	i := strings.LastIndexAny(name, `./\`)
	if i <= 0 || name[i] != '.' || name[i-1] == '/' || name[i-1] == '\\' {
		return ""
	}
	return name[i:]
}
