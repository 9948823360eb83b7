package assetimport

import (
	"errors"
	"fmt"

	"github.com/Faultbox/scenery/pkg/importer"
)

// Stage names the part of an import that failed.
type Stage int

const (
	// StageConfigure covers the post-processing request.
	StageConfigure Stage = iota + 1
	// StageSelect covers format selection.
	StageSelect
	// StageRead covers opening the file and parsing it.
	StageRead
	// StagePostProcess covers the requested steps.
	StagePostProcess
	// StageValidate covers the final invariant check.
	StageValidate
)

func (s Stage) String() string {
	switch s {
	case StageConfigure:
		return "configure"
	case StageSelect:
		return "select"
	case StageRead:
		return "read"
	case StagePostProcess:
		return "postprocess"
	case StageValidate:
		return "validate"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ImportError is returned by every failing import. errors.Is and errors.As
// reach the underlying failure.
type ImportError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *ImportError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("import (%s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("import %s (%s): %v", e.File, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// StageOf returns the stage of an *ImportError in err's chain, or 0.
func StageOf(err error) Stage {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return 0
}

func dispatchStage(err error) Stage {
	if errors.Is(err, importer.ErrNoMatchingFormat) {
		return StageSelect
	}
	return StageRead
}
