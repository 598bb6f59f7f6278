package storageprovider

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/getsentry/calltree/internal/storageutil"
)

// Local implements storageutil.ObjectHandler on a directory of the local
// filesystem. Missing parent directories are created on Put.
type Local struct {
	Root string
}

type localFile struct {
	*os.File
	size int64
}

func (f *localFile) Size() int64 {
	return f.size
}

func (l *Local) path(name string) string {
	return filepath.Join(l.Root, filepath.FromSlash(name))
}

// Put writes a file to the storage provider with name being the path.
func (l *Local) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	p := l.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.Create(p)
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (l *Local) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	f, err := os.Open(l.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &localFile{File: f, size: fi.Size()}, nil
}
