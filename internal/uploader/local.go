package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local stores attachments under a media directory and serves file:// URLs.
// Used in demo mode and tests; a real deployment swaps in a remote uploader.
type Local struct {
	dir string
}

// NewLocal creates a Local uploader rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Upload implements Uploader.
func (l *Local) Upload(ctx context.Context, f File) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	data := f.Data
	if data == nil && f.Path != "" {
		var err error
		data, err = os.ReadFile(f.Path)
		if err != nil {
			return Descriptor{}, fmt.Errorf("read attachment: %w", err)
		}
	}
	if len(data) == 0 {
		return Descriptor{}, fmt.Errorf("empty attachment %q", f.Name)
	}
	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return Descriptor{}, err
	}
	name := uuid.NewString() + filepath.Ext(f.Name)
	dest := filepath.Join(l.dir, name)
	if err := os.WriteFile(dest, data, 0600); err != nil {
		return Descriptor{}, fmt.Errorf("store attachment: %w", err)
	}
	return Descriptor{
		URL:      "file://" + dest,
		Filename: f.Name,
		Size:     int64(len(data)),
	}, nil
}

var _ Uploader = (*Local)(nil)
