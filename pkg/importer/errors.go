package importer

import (
	"errors"
	"fmt"
)

// Registry and selection errors.
var (
	ErrNoMatchingFormat        = errors.New("no matching format")
	ErrFormatAlreadyRegistered = errors.New("format already registered")
	ErrRegistrySealed          = errors.New("registry is sealed")
	ErrExtensionConflict       = errors.New("extension already claimed")
	ErrInvalidFormat           = errors.New("invalid format plugin")
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("parse failure")

// ParseError reports input a format plugin rejected.
type ParseError struct {
	Format string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Format == "" {
		return "parse: " + msg
	}
	return fmt.Sprintf("parse %s: %s", e.Format, msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParse) true.
func (e *ParseError) Is(target error) bool { return target == ErrParse }
