package storageutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/getsentry/calltree/internal/calltree"
)

const (
	// TreeExtension is appended to the tree name to build object names.
	TreeExtension = ".tree"
	// CompressedExtension marks lz4 compressed objects.
	CompressedExtension = ".lz4"

	writeTimeout = 5 * time.Second
)

// ErrObjectNotFound indicates an object was not found.
var ErrObjectNotFound = errors.New("object not found")

type ReadSizeCloser interface {
	io.Reader
	io.Closer
	Size() int64
}

// ObjectHandler provides common interface for multiple storage providers.
type ObjectHandler interface {
	// Put writes a file to the storage provider with name being the path.
	Put(ctx context.Context, name string) (io.WriteCloser, error)
	// Get reads a file from the storage provider with name being the path.
	// If a key was not found, it will return ErrObjectNotFound.
	Get(ctx context.Context, name string) (ReadSizeCloser, error)
}

// TreeObjectName returns "<root name>.tree", with ".lz4" appended when
// compressed.
func TreeObjectName(t *calltree.Tree, compressed bool) string {
	name := t.Name() + TreeExtension
	if compressed {
		name += CompressedExtension
	}
	return name
}

// WriteTree writes the text form of a tree.
func WriteTree(ctx context.Context, b ObjectHandler, objectName string, t *calltree.Tree) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ow, err := b.Put(ctx, objectName)
	if err != nil {
		return err
	}
	_, err = t.WriteTo(ow)
	if err != nil {
		_ = ow.Close()
		return fmt.Errorf("writing %s: %w", objectName, err)
	}
	return ow.Close()
}

// CompressedWriteTree compresses and writes the text form of a tree.
func CompressedWriteTree(ctx context.Context, b ObjectHandler, objectName string, t *calltree.Tree) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ow, err := b.Put(ctx, objectName)
	if err != nil {
		return err
	}
	zw := lz4.NewWriter(ow)
	_ = zw.Apply(lz4.CompressionLevelOption(lz4.Level9))
	_, err = t.WriteTo(zw)
	if err != nil {
		_ = ow.Close()
		return fmt.Errorf("writing %s: %w", objectName, err)
	}
	err = zw.Close()
	if err != nil {
		_ = ow.Close()
		return err
	}
	return ow.Close()
}

// ReadTree reads and decodes a tree. Objects whose name ends with ".lz4" are
// decompressed first.
func ReadTree(ctx context.Context, b ObjectHandler, objectName string) (*calltree.Tree, error) {
	or, err := b.Get(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer or.Close()

	var r io.Reader = or
	if strings.HasSuffix(objectName, CompressedExtension) {
		r = lz4.NewReader(or)
	}
	return calltree.ReadTree(r)
}
