package upload

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// DiskStorage writes uploads into a local directory.
type DiskStorage struct {
	dir string
}

func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &DiskStorage{dir: dir}, nil
}

func (d *DiskStorage) Dir() string {
	return d.dir
}

// Save creates name exclusively, so a concurrent upload in the same
// millisecond gets ErrExist instead of overwriting.
func (d *DiskStorage) Save(ctx context.Context, name string, r io.Reader, _ string, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := filepath.Join(d.dir, filepath.Base(name))

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExist
		}

		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		return multierr.Combine(err, f.Close(), os.Remove(dst))
	}

	if err := f.Close(); err != nil {
		return multierr.Append(err, os.Remove(dst))
	}

	return nil
}
