// Package vfs is the read contract every importer goes through: open a name,
// read at offsets, query the size, close. Importers never touch the file
// system directly.
package vfs

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// DefaultMaxSize caps ReadAll when the caller passes no limit.
const DefaultMaxSize = 1 << 30

var (
	// ErrNotFound is returned (wrapped in *IOError) when a name does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrTooLarge is returned by ReadAll when a file exceeds the size cap.
	ErrTooLarge = errors.New("file too large")
)

// File is an open handle.
type File interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// System opens files by name.
type System interface {
	Open(name string) (File, error)
	Exists(name string) bool
}

// IOError reports a failed operation on a named file.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ReadAll reads the whole file. A limit <= 0 means DefaultMaxSize.
func ReadAll(f File, name string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	size := f.Size()
	if size < 0 {
		return nil, &IOError{Op: "read", Name: name, Err: fmt.Errorf("negative size %d", size)}
	}
	if size > limit {
		return nil, &IOError{Op: "read", Name: name, Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, limit)}
	}
	data := make([]byte, size)
	n, err := f.ReadAt(data, 0)
	if n == len(data) {
		return data, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, &IOError{Op: "read", Name: name, Err: err}
}

// ReadFile opens name on sys, reads it fully and closes it.
func ReadFile(sys System, name string, limit int64) (data []byte, err error) {
	f, err := sys.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, &IOError{Op: "close", Name: name, Err: cerr})
		}
	}()
	return ReadAll(f, name, limit)
}

// ReadHead reads up to n bytes from the start of f.
func ReadHead(f File, n int) ([]byte, error) {
	if size := f.Size(); int64(n) > size {
		n = int(size)
	}
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := f.ReadAt(buf, 0)
	if got == n {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return buf[:got], err
}
