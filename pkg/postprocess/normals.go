package postprocess

import (
	stdmath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/scene"
)

// genSmoothNormals computes area-weighted vertex normals. Faces meeting at
// one position are averaged when the angle between them stays under the
// configured limit.
func genSmoothNormals(ctx *Context, sc *scene.Scene) error {
	force := ctx.Config.BoolOr(ConfigKeyGenNormalsForce, false)
	maxAngle := ctx.Config.FloatOr(ConfigKeyGenNormalsAngle, DefaultMaxSmoothingAngle)
	smoothAll := maxAngle >= DefaultMaxSmoothingAngle
	cosLimit := float32(stdmath.Cos(maxAngle * stdmath.Pi / 180))

	generated := 0
	for i, m := range sc.Meshes() {
		if m.NumVertices() == 0 || (m.HasNormals() && !force) {
			continue
		}
		if !meshIndicesValid(m) {
			ctx.Logger.Warn("face index out of range, normals skipped", zap.Int("mesh", i))
			continue
		}
		smoothNormals(m, cosLimit, smoothAll)
		generated++
	}
	ctx.Logger.Debug("generated smooth normals", zap.Int("meshes", generated))
	return nil
}

func smoothNormals(m *scene.Mesh, cosLimit float32, smoothAll bool) {
	n := m.NumVertices()
	faceNormals := make([]math.Vec3, len(m.Faces))
	incident := make([][]int, n)
	for fi, f := range m.Faces {
		if len(f.Indices) < 3 {
			continue
		}
		faceNormals[fi] = polygonNormal(m.Positions, f.Indices)
		for _, v := range f.Indices {
			incident[v] = append(incident[v], fi)
		}
	}

	byPosition := make(map[[3]uint32][]int, n)
	for v, p := range m.Positions {
		byPosition[p.Bits()] = append(byPosition[p.Bits()], v)
	}

	smooth := func(f, own int) bool {
		a, b := faceNormals[f].Normalize(), faceNormals[own].Normalize()
		return a.Dot(b) >= cosLimit
	}

	normals := make([]math.Vec3, n)
	stamp := make([]int, len(m.Faces))
	for v := range normals {
		own := incident[v]
		if len(own) == 0 {
			continue
		}
		var sum math.Vec3
		for _, u := range byPosition[m.Positions[v].Bits()] {
			for _, f := range incident[u] {
				if stamp[f] == v+1 {
					continue
				}
				stamp[f] = v + 1
				take := smoothAll || u == v
				for i := 0; !take && i < len(own); i++ {
					take = smooth(f, own[i])
				}
				if take {
					sum = sum.Add(faceNormals[f])
				}
			}
		}
		normals[v] = sum.Normalize()
	}
	m.Normals = normals
}

// genFlatNormals gives every face corner its own vertex carrying the face
// normal.
func genFlatNormals(ctx *Context, sc *scene.Scene) error {
	force := ctx.Config.BoolOr(ConfigKeyGenNormalsForce, false)
	generated := 0
	for i, m := range sc.Meshes() {
		if m.NumVertices() == 0 || (m.HasNormals() && !force) {
			continue
		}
		if !meshIndicesValid(m) {
			ctx.Logger.Warn("face index out of range, normals skipped", zap.Int("mesh", i))
			continue
		}
		flatNormals(m)
		generated++
	}
	ctx.Logger.Debug("generated flat normals", zap.Int("meshes", generated))
	return nil
}

func flatNormals(m *scene.Mesh) {
	var src []uint32
	var normals []math.Vec3
	for fi := range m.Faces {
		f := &m.Faces[fi]
		var fn math.Vec3
		if len(f.Indices) >= 3 {
			fn = polygonNormal(m.Positions, f.Indices).Normalize()
		}
		for i, v := range f.Indices {
			f.Indices[i] = uint32(len(src))
			src = append(src, v)
			normals = append(normals, fn)
		}
	}
	remapVertices(m, src)
	m.Normals = normals
}

// meshIndicesValid reports whether every face index addresses a vertex.
func meshIndicesValid(m *scene.Mesh) bool {
	n := m.NumVertices()
	for _, f := range m.Faces {
		if !indicesInRange(f, n) {
			return false
		}
	}
	return true
}
