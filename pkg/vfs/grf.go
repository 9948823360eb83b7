package vfs

import (
	"bytes"

	"go.uber.org/multierr"

	"github.com/Faultbox/scenery/pkg/grf"
)

// GRFSystem serves files stored in one or more GRF archives. Archives are
// searched in order; the first one containing a name wins.
type GRFSystem struct {
	archives []*grf.Archive
}

// NewGRFSystem wraps already opened archives.
func NewGRFSystem(archives ...*grf.Archive) *GRFSystem {
	return &GRFSystem{archives: archives}
}

// OpenGRFSystem opens the archives at paths. On error every archive opened
// so far is closed.
func OpenGRFSystem(paths ...string) (*GRFSystem, error) {
	s := &GRFSystem{}
	for _, p := range paths {
		a, err := grf.Open(p)
		if err != nil {
			return nil, multierr.Append(&IOError{Op: "open archive", Name: p, Err: err}, s.Close())
		}
		s.archives = append(s.archives, a)
	}
	return s, nil
}

// Close closes every archive.
func (s *GRFSystem) Close() error {
	var err error
	for _, a := range s.archives {
		err = multierr.Append(err, a.Close())
	}
	s.archives = nil
	return err
}

// Open implements System. Entries are decompressed on open.
func (s *GRFSystem) Open(name string) (File, error) {
	for _, a := range s.archives {
		if !a.Contains(name) {
			continue
		}
		data, err := a.Read(name)
		if err != nil {
			return nil, &IOError{Op: "read", Name: name, Err: err}
		}
		return &memFile{Reader: bytes.NewReader(data)}, nil
	}
	return nil, &IOError{Op: "open", Name: name, Err: ErrNotFound}
}

// Exists implements System.
func (s *GRFSystem) Exists(name string) bool {
	for _, a := range s.archives {
		if a.Contains(name) {
			return true
		}
	}
	return false
}

// List returns the names in every archive, in archive order.
func (s *GRFSystem) List() []string {
	var names []string
	for _, a := range s.archives {
		names = append(names, a.List()...)
	}
	return names
}
