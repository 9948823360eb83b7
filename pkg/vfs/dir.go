package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DirSystem opens files from the local file system. Relative names are
// resolved against Root; an empty Root means the working directory.
type DirSystem struct {
	Root string
}

func (d DirSystem) path(name string) string {
	if d.Root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Root, name)
}

// Open implements System.
func (d DirSystem) Open(name string) (File, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotFound
		}
		return nil, &IOError{Op: "open", Name: name, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Name: name, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, &IOError{Op: "open", Name: name, Err: errors.New("is a directory")}
	}
	return &osFile{File: f, size: info.Size()}, nil
}

// Exists implements System.
func (d DirSystem) Exists(name string) bool {
	info, err := os.Stat(d.path(name))
	return err == nil && !info.IsDir()
}

type osFile struct {
	*os.File
	size int64
}

func (f *osFile) Size() int64 { return f.size }
