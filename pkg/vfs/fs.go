package vfs

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"time"
)

// FS exposes the files of sys below dir as an fs.FS, for libraries that
// resolve relative references through the standard interface.
func FS(sys System, dir string) fs.FS {
	return &systemFS{sys: sys, dir: dir}
}

type systemFS struct {
	sys System
	dir string
}

func (s *systemFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	full := name
	if s.dir != "" && s.dir != "." {
		full = path.Join(s.dir, name)
	}
	f, err := s.sys.Open(full)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = fs.ErrNotExist
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{File: f, name: path.Base(name), r: io.NewSectionReader(f, 0, f.Size())}, nil
}

type fsFile struct {
	File
	name string
	r    *io.SectionReader
}

func (f *fsFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fsFile) Stat() (fs.FileInfo, error) { return fileInfo{name: f.name, size: f.Size()}, nil }

type fileInfo struct {
	name string
	size int64
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.size }
func (i fileInfo) Mode() fs.FileMode  { return 0o444 }
func (i fileInfo) ModTime() time.Time { return time.Time{} }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() any           { return nil }
