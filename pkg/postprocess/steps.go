package postprocess

import (
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/scene"
)

// Configuration keys read by the built-in steps.
const (
	ConfigKeyGenNormalsForce   = "pp.gen_normals.force"
	ConfigKeyGenNormalsAngle   = "pp.gen_normals.max_angle"
	ConfigKeyCalcTangentsForce = "pp.calc_tangents.force"
	ConfigKeyTriangulateEar    = "pp.triangulate.ear_clip"
	ConfigKeyOptimizeGraphKeep = "pp.optimize_graph.keep"
)

// DefaultMaxSmoothingAngle is the default of ConfigKeyGenNormalsAngle, in
// degrees.
const DefaultMaxSmoothingAngle = 175.0

// Builtins returns fresh instances of every built-in step in registration
// order.
func Builtins() []Step {
	return []Step{
		NewStep(Definition{ID: IDValidate, Idempotent: true}, validateScene),
		NewStep(Definition{
			ID:         IDTriangulate,
			After:      []ID{IDValidate},
			Idempotent: true,
		}, triangulate),
		NewStep(Definition{
			ID:         IDJoinVertices,
			After:      []ID{IDTriangulate},
			Idempotent: true,
		}, joinVertices),
		NewStep(Definition{
			ID:           IDGenNormals,
			After:        []ID{IDJoinVertices, IDTriangulate},
			Incompatible: []ID{IDGenFlatNormals},
			Idempotent:   true,
		}, genSmoothNormals),
		NewStep(Definition{
			ID:           IDGenFlatNormals,
			After:        []ID{IDTriangulate},
			Incompatible: []ID{IDGenNormals, IDJoinVertices},
			Idempotent:   true,
		}, genFlatNormals),
		NewStep(Definition{
			ID:         IDCalcTangents,
			After:      []ID{IDGenNormals, IDGenFlatNormals},
			Requires:   []ID{IDGenNormals, IDGenFlatNormals},
			Idempotent: true,
		}, calcTangents),
		NewStep(Definition{
			ID:         IDRemoveRedundantMaterials,
			After:      []ID{IDValidate},
			Idempotent: true,
		}, removeRedundantMaterials),
		NewStep(Definition{ID: IDFlipUVs}, flipUVs),
		NewStep(Definition{
			ID:         IDOptimizeMeshes,
			After:      []ID{IDJoinVertices, IDRemoveRedundantMaterials},
			Idempotent: true,
		}, optimizeMeshes),
		NewStep(Definition{
			ID:         IDOptimizeGraph,
			After:      []ID{IDOptimizeMeshes},
			Idempotent: true,
		}, optimizeGraph),
	}
}

func validateScene(ctx *Context, sc *scene.Scene) error {
	if err := sc.Check(); err != nil {
		ctx.Logger.Debug("scene invalid", zap.Error(err))
		return err
	}
	sc.Flags |= scene.FlagValidated
	return nil
}

// flipUVs mirrors every texture coordinate vertically.
func flipUVs(ctx *Context, sc *scene.Scene) error {
	for _, m := range sc.Meshes() {
		for ch := range m.UVs {
			for i := range m.UVs[ch] {
				m.UVs[ch][i].Y = 1 - m.UVs[ch][i].Y
			}
		}
	}
	return nil
}
