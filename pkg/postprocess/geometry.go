package postprocess

import (
	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/scene"
)

// polygonNormal returns the Newell normal of a face. Its length is twice the
// face area, so summing these weights faces by area.
func polygonNormal(pos []math.Vec3, idx []uint32) math.Vec3 {
	var n math.Vec3
	for i := range idx {
		a := pos[idx[i]]
		b := pos[idx[(i+1)%len(idx)]]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return n
}

// faceArea is the area of a planar face.
func faceArea(pos []math.Vec3, idx []uint32) float32 {
	if len(idx) < 3 {
		return 0
	}
	return polygonNormal(pos, idx).Length() / 2
}

// indicesInRange reports whether every index of f addresses a vertex.
func indicesInRange(f scene.Face, n int) bool {
	for _, i := range f.Indices {
		if int(i) >= n {
			return false
		}
	}
	return true
}

// remapVertices rewrites one mesh's per-vertex arrays through a list of source
// vertices: new vertex i copies old vertex src[i].
func remapVertices(m *scene.Mesh, src []uint32) {
	pick3 := func(in []math.Vec3) []math.Vec3 {
		if in == nil {
			return nil
		}
		out := make([]math.Vec3, len(src))
		for i, s := range src {
			out[i] = in[s]
		}
		return out
	}
	m.Positions = pick3(m.Positions)
	m.Normals = pick3(m.Normals)
	m.Tangents = pick3(m.Tangents)
	m.Bitangents = pick3(m.Bitangents)
	for ch := range m.UVs {
		m.UVs[ch] = pick3(m.UVs[ch])
	}
	for set := range m.Colors {
		if m.Colors[set] == nil {
			continue
		}
		out := make([]math.Vec4, len(src))
		for i, s := range src {
			out[i] = m.Colors[set][s]
		}
		m.Colors[set] = out
	}

	if len(m.Bones) == 0 {
		return
	}
	targets := make(map[uint32][]uint32, len(src))
	for i, s := range src {
		targets[s] = append(targets[s], uint32(i))
	}
	for b := range m.Bones {
		var weights []scene.VertexWeight
		for _, w := range m.Bones[b].Weights {
			for _, t := range targets[w.Vertex] {
				weights = append(weights, scene.VertexWeight{Vertex: t, Weight: w.Weight})
			}
		}
		m.Bones[b].Weights = weights
	}
}
