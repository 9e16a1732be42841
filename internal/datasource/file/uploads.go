package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxUpload is the upload size limit when none is configured.
const DefaultMaxUpload int64 = 50 << 20

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// ErrUnsupportedType is returned for uploads with an unknown extension.
var ErrUnsupportedType = errors.New("unsupported file type")

// Uploads stores incoming files under random names in one directory.
type Uploads struct {
	Dir      string
	MaxBytes int64
}

// Allowed extensions, lower case.
var allowedExt = map[string]bool{".csv": true, ".txt": true, ".xlsx": true}

// Save copies r into a new file named <uuid><ext> and returns its Local.
// The original name only contributes its extension. On error nothing is
// left behind.
func (u Uploads) Save(r io.Reader, originalName string) (*Local, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExt[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, originalName)
	}
	limit := u.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxUpload
	}
	if err := os.MkdirAll(u.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}

	path := filepath.Join(u.Dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}

	// Read one byte past the limit to detect oversize input.
	n, copyErr := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", closeErr)
	case n > limit:
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return NewLocal(path), nil
}
