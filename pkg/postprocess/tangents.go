package postprocess

import (
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/scene"
)

// calcTangents derives tangents and bitangents from the first UV channel.
// Meshes that already carry tangents keep them unless
// ConfigKeyCalcTangentsForce is set. Meshes without UVs are left alone;
// meshes without normals are skipped with a warning.
func calcTangents(ctx *Context, sc *scene.Scene) error {
	force := ctx.Config.BoolOr(ConfigKeyCalcTangentsForce, false)
	done := 0
	for i, m := range sc.Meshes() {
		if m.NumVertices() == 0 || !m.HasUVs(0) {
			continue
		}
		if m.HasTangents() && !force {
			continue
		}
		if !m.HasNormals() {
			ctx.Logger.Warn("mesh has no normals, tangents skipped", zap.Int("mesh", i))
			continue
		}
		if !meshIndicesValid(m) || len(m.UVs[0]) != m.NumVertices() || len(m.Normals) != m.NumVertices() {
			ctx.Logger.Warn("malformed mesh, tangents skipped", zap.Int("mesh", i))
			continue
		}
		tangentSpace(m)
		done++
	}
	ctx.Logger.Debug("calculated tangents", zap.Int("meshes", done))
	return nil
}

func tangentSpace(m *scene.Mesh) {
	n := m.NumVertices()
	tan := make([]math.Vec3, n)
	bit := make([]math.Vec3, n)
	uv := m.UVs[0]

	for _, f := range m.Faces {
		for i := 1; i+1 < len(f.Indices); i++ {
			a, b, c := f.Indices[0], f.Indices[i], f.Indices[i+1]
			e1 := m.Positions[b].Sub(m.Positions[a])
			e2 := m.Positions[c].Sub(m.Positions[a])
			du1, dv1 := uv[b].X-uv[a].X, uv[b].Y-uv[a].Y
			du2, dv2 := uv[c].X-uv[a].X, uv[c].Y-uv[a].Y
			det := du1*dv2 - du2*dv1
			if det == 0 {
				continue
			}
			r := 1 / det
			t := e1.Scale(dv2).Sub(e2.Scale(dv1)).Scale(r)
			bt := e2.Scale(du1).Sub(e1.Scale(du2)).Scale(r)
			if !t.IsFinite() || !bt.IsFinite() {
				continue
			}
			for _, v := range [3]uint32{a, b, c} {
				tan[v] = tan[v].Add(t)
				bit[v] = bit[v].Add(bt)
			}
		}
	}

	for v := 0; v < n; v++ {
		nv := m.Normals[v].Normalize()
		t := tan[v].Sub(nv.Scale(nv.Dot(tan[v]))).Normalize()
		if t == (math.Vec3{}) {
			t = perpendicular(nv)
		}
		b := nv.Cross(t)
		if b.Dot(bit[v]) < 0 {
			b = b.Scale(-1)
		}
		tan[v] = t
		bit[v] = b
	}
	m.Tangents = tan
	m.Bitangents = bit
}

// perpendicular returns a unit vector orthogonal to n.
func perpendicular(n math.Vec3) math.Vec3 {
	axis := math.Vec3{X: 1}
	if n.X > 0.9 || n.X < -0.9 {
		axis = math.Vec3{Y: 1}
	}
	p := n.Cross(axis).Normalize()
	if p == (math.Vec3{}) {
		return math.Vec3{X: 1}
	}
	return p
}
