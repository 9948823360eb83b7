// Package formats provides the bundled format plugins: Ragnarok Online
// resource models (RSM), Irrlicht static meshes (IrrMesh) and glTF 2.0.
package formats

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/importer"
)

// Builtins returns one instance of every bundled format in registration
// order.
func Builtins() []importer.Format {
	return []importer.Format{
		RSMFormat{},
		IrrMeshFormat{},
		GLTFFormat{},
	}
}

// RegisterDefaults adds the bundled formats to reg.
func RegisterDefaults(reg *importer.Registry) error {
	for _, f := range Builtins() {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *importer.Registry
)

// DefaultRegistry returns a sealed registry holding the bundled formats.
func DefaultRegistry() *importer.Registry {
	defaultRegistryOnce.Do(func() {
		reg := importer.NewRegistry(zap.NewNop())
		reg.MustRegister(Builtins()...)
		reg.Seal()
		defaultRegistry = reg
	})
	return defaultRegistry
}
