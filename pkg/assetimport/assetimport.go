// Package assetimport is the entry point for reading a 3D asset: it selects
// a format, parses the file into a scene and runs the requested
// post-processing steps. A returned scene is always valid; on failure the
// partially built scene is released and an *ImportError says which stage
// failed.
package assetimport

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/formats"
	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/postprocess"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
	"github.com/Faultbox/scenery/pkg/vfs"
)

// Importer combines a format registry and a step catalog. It holds no
// per-import state and is safe for concurrent use once its registry is
// sealed.
type Importer struct {
	registry   *importer.Registry
	catalog    *postprocess.Catalog
	system     vfs.System
	logger     *zap.Logger
	dispatcher *importer.Dispatcher
}

// Option configures an Importer.
type Option func(*Importer)

// WithRegistry replaces the built-in format registry.
func WithRegistry(r *importer.Registry) Option {
	return func(i *Importer) { i.registry = r }
}

// WithCatalog replaces the built-in step catalog.
func WithCatalog(c *postprocess.Catalog) Option {
	return func(i *Importer) { i.catalog = c }
}

// WithSystem sets the file system ReadFile reads from. The default is the
// local file system relative to the working directory.
func WithSystem(sys vfs.System) Option {
	return func(i *Importer) { i.system = sys }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// New returns an Importer. The registry is sealed.
func New(opts ...Option) *Importer {
	i := &Importer{}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = zap.NewNop()
	}
	i.logger = i.logger.With(zap.String("component", "importer"))
	if i.registry == nil {
		i.registry = formats.DefaultRegistry()
	}
	if i.catalog == nil {
		i.catalog = postprocess.DefaultCatalog()
	}
	if i.system == nil {
		i.system = vfs.DirSystem{}
	}
	i.registry.Seal()
	i.dispatcher = importer.NewDispatcher(i.registry, i.logger)
	return i
}

// ReadFile imports name from the importer's file system and runs steps on
// the result.
func (i *Importer) ReadFile(name string, steps []postprocess.ID, cfg *props.Store) (*scene.Scene, error) {
	return i.read(name, "", i.system, steps, cfg)
}

// ReadFileWithHint is ReadFile with the format forced by name.
func (i *Importer) ReadFileWithHint(name, hint string, steps []postprocess.ID, cfg *props.Store) (*scene.Scene, error) {
	return i.read(name, hint, i.system, steps, cfg)
}

// ReadMemory imports data held in memory. hintName is a file name or a bare
// extension used for extension based format selection; it may be empty.
// Formats that load companion files cannot resolve them from memory.
func (i *Importer) ReadMemory(data []byte, hintName string, steps []postprocess.ID, cfg *props.Store) (*scene.Scene, error) {
	name := hintName
	switch {
	case name == "":
		name = "memory"
	case !strings.Contains(name, "."):
		name = "memory." + name
	}
	mem := vfs.NewMemSystem()
	mem.Add(name, data)
	return i.read(name, "", mem, steps, cfg)
}

func (i *Importer) read(name, hint string, sys vfs.System, steps []postprocess.ID, cfg *props.Store) (*scene.Scene, error) {
	if cfg == nil {
		cfg = props.New()
	}
	log := i.logger.With(zap.String("import_id", uuid.NewString()), zap.String("file", name))
	start := time.Now()

	plan, err := i.catalog.Plan(steps)
	if err != nil {
		log.Debug("rejected step request", zap.Error(err))
		return nil, &ImportError{Stage: StageConfigure, File: name, Err: err}
	}

	if hint == "" {
		hint = cfg.StringOr(importer.ConfigKeyFormatHint, "")
	}
	sc, f, err := i.dispatcher.ImportWithHint(name, hint, sys, cfg)
	if err != nil {
		log.Debug("import failed", zap.Error(err))
		return nil, &ImportError{Stage: dispatchStage(err), File: name, Err: err}
	}

	if err := plan.Run(postprocess.NewContext(cfg, log), sc); err != nil {
		sc.Release()
		log.Debug("post-processing failed", zap.Error(err))
		return nil, &ImportError{Stage: StagePostProcess, File: name, Err: err}
	}
	if err := sc.Check(); err != nil {
		sc.Release()
		log.Debug("imported scene invalid", zap.Error(err))
		return nil, &ImportError{Stage: StageValidate, File: name, Err: err}
	}

	st := sc.Stats()
	log.Info("import completed",
		zap.String("format", f.Info().Name),
		zap.Strings("steps", idStrings(plan.Steps())),
		zap.Int("meshes", st.Meshes),
		zap.Int("vertices", st.Vertices),
		zap.Duration("duration", time.Since(start)))
	return sc, nil
}

// ApplyPostProcessing runs steps on a scene that was imported or built by
// hand. A rejected request leaves the scene untouched. When a step fails the
// scene is left as that step left it and still belongs to the caller.
func (i *Importer) ApplyPostProcessing(sc *scene.Scene, steps []postprocess.ID, cfg *props.Store) error {
	plan, err := i.catalog.Plan(steps)
	if err != nil {
		return &ImportError{Stage: StageConfigure, Err: err}
	}
	log := i.logger.With(zap.String("import_id", uuid.NewString()))
	if err := plan.Run(postprocess.NewContext(cfg, log), sc); err != nil {
		return &ImportError{Stage: StagePostProcess, Err: err}
	}
	return nil
}

// IsExtensionSupported reports whether a registered format claims ext.
func (i *Importer) IsExtensionSupported(ext string) bool {
	return i.registry.IsExtensionSupported(ext)
}

// Formats describes the registered formats in registration order.
func (i *Importer) Formats() []importer.Info {
	return i.registry.Formats()
}

// Steps lists the step ids of the catalog in registration order.
func (i *Importer) Steps() []postprocess.ID {
	return i.catalog.IDs()
}

func idStrings(ids []postprocess.ID) []string {
	out := make([]string, len(ids))
	for k, id := range ids {
		out[k] = string(id)
	}
	return out
}
