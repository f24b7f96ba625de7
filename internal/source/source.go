// Package source provides the byte sources digests are built from: local
// files, in-memory buffers, standard input and S3 objects.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source is a read-only, randomly addressable input that must be closed.
type Source interface {
	io.ReaderAt
	io.Closer
	Name() string
	Size() (int64, error)
}

// StdinName is the path that selects standard input.
const StdinName = "-"

// Open resolves name to a source: "-" reads standard input into memory,
// "s3://bucket/key" addresses an object through api, anything else is a
// local file. api may be nil when no S3 names are used.
func Open(ctx context.Context, name string, api S3API) (Source, error) {
	switch {
	case name == StdinName:
		return ReadAll(StdinName, os.Stdin)
	case strings.HasPrefix(name, s3Scheme):
		if api == nil {
			return nil, fmt.Errorf("%s: no S3 client configured", name)
		}
		bucket, key, err := ParseS3URL(name)
		if err != nil {
			return nil, err
		}
		return OpenS3(ctx, api, bucket, key)
	default:
		return OpenFile(name)
	}
}

// File is a local file source.
type File struct {
	f    *os.File
	name string
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{f: f, name: path}, nil
}

func (f *File) Name() string { return f.name }

func (f *File) Size() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", f.name)
	}
	return fi.Size(), nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

func (f *File) Close() error { return f.f.Close() }

// Bytes is an in-memory source.
type Bytes struct {
	r    *bytes.Reader
	name string
}

// FromBytes wraps data without copying it. data must not change while the
// source is in use.
func FromBytes(name string, data []byte) *Bytes {
	return &Bytes{r: bytes.NewReader(data), name: name}
}

// ReadAll drains r into memory. Used for pipes and other unsized streams.
func ReadAll(name string, r io.Reader) (*Bytes, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return FromBytes(name, data), nil
}

func (b *Bytes) Name() string { return b.name }

func (b *Bytes) Size() (int64, error) { return b.r.Size(), nil }

func (b *Bytes) ReadAt(p []byte, off int64) (int, error) { return b.r.ReadAt(p, off) }

func (b *Bytes) Close() error { return nil }
