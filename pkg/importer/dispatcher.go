package importer

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
	"github.com/Faultbox/scenery/pkg/vfs"
)

// Dispatcher drives the format selected by a Registry to fill a new scene.
type Dispatcher struct {
	reg    *Registry
	logger *zap.Logger
}

// NewDispatcher returns a dispatcher over reg. The registry is sealed on the
// first import.
func NewDispatcher(reg *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		reg:    reg,
		logger: logger.With(zap.String("component", "dispatcher")),
	}
}

// Registry returns the registry the dispatcher selects from.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Import opens name on sys, selects a format and reads the file into a new
// scene. The format hint is taken from cfg (ConfigKeyFormatHint) when set.
// On any failure no scene is returned.
func (d *Dispatcher) Import(name string, sys vfs.System, cfg *props.Store) (*scene.Scene, Format, error) {
	return d.ImportWithHint(name, cfg.StringOr(ConfigKeyFormatHint, ""), sys, cfg)
}

// ImportWithHint is Import with an explicit format name.
func (d *Dispatcher) ImportWithHint(name, hint string, sys vfs.System, cfg *props.Store) (sc *scene.Scene, f Format, err error) {
	if cfg == nil {
		cfg = props.New()
	}
	file, err := sys.Open(name)
	if err != nil {
		return nil, nil, asIOError("open", name, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			err = multierr.Append(err, &vfs.IOError{Op: "close", Name: name, Err: cerr})
			if sc != nil {
				sc.Release()
				sc, f = nil, nil
			}
		}
	}()

	head, err := vfs.ReadHead(file, ProbeSize)
	if err != nil {
		return nil, nil, asIOError("read", name, err)
	}

	f, err = d.reg.Select(name, NewProbe(head), hint)
	if err != nil {
		return nil, nil, err
	}
	info := f.Info()

	start := time.Now()
	sc = scene.New()
	ctx := &ReadContext{
		Name:    name,
		System:  sys,
		File:    file,
		Config:  cfg,
		Logger:  d.logger.With(zap.String("format", info.Name), zap.String("file", name)),
		format:  info.Name,
		maxSize: cfg.IntOr(ConfigKeyMaxFileSize, MaxFileSize),
	}
	if err := d.read(f, ctx, sc); err != nil {
		sc.Release()
		return nil, nil, err
	}

	st := sc.Stats()
	d.logger.Debug("file read",
		zap.String("file", name),
		zap.String("format", info.Name),
		zap.Int("nodes", st.Nodes),
		zap.Int("meshes", st.Meshes),
		zap.Int("vertices", st.Vertices),
		zap.Duration("duration", time.Since(start)))
	return sc, f, nil
}

// read runs f.Read and normalises its failure into *ParseError or
// *vfs.IOError.
func (d *Dispatcher) read(f Format, ctx *ReadContext, sc *scene.Scene) (err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Warn("format panicked in Read",
				zap.String("format", ctx.format),
				zap.String("file", ctx.Name),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			err = &ParseError{Format: ctx.format, Reason: fmt.Sprintf("plugin panic: %v", p)}
		}
	}()

	err = f.Read(ctx, sc)
	if err == nil {
		return nil
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		if perr.Format == "" {
			perr.Format = ctx.format
		}
		return err
	}
	var ioErr *vfs.IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &ParseError{Format: ctx.format, Err: err}
}

func asIOError(op, name string, err error) error {
	var ioErr *vfs.IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &vfs.IOError{Op: op, Name: name, Err: err}
}
