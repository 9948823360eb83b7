package postprocess

import (
	"encoding/binary"
	"math"

	"go.uber.org/zap"

	mathx "github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/scene"
)

// joinVertices merges vertices that are bit-for-bit identical in every
// present attribute and rewrites the faces to use the survivors.
func joinVertices(ctx *Context, sc *scene.Scene) error {
	before, after := 0, 0
	for _, m := range sc.Meshes() {
		before += m.NumVertices()
		joinMesh(m)
		after += m.NumVertices()
	}
	sc.Flags |= scene.FlagNonVerbose
	ctx.Logger.Debug("joined vertices", zap.Int("before", before), zap.Int("after", after))
	return nil
}

func joinMesh(m *scene.Mesh) {
	n := m.NumVertices()
	if n == 0 {
		return
	}

	var weights map[uint32][]byte
	if len(m.Bones) > 0 {
		weights = make(map[uint32][]byte)
		for b, bone := range m.Bones {
			for _, w := range bone.Weights {
				weights[w.Vertex] = binary.LittleEndian.AppendUint32(weights[w.Vertex], uint32(b))
				weights[w.Vertex] = binary.LittleEndian.AppendUint32(weights[w.Vertex], math.Float32bits(w.Weight))
			}
		}
	}

	seen := make(map[string]uint32, n)
	remap := make([]uint32, n)
	src := make([]uint32, 0, n)
	key := make([]byte, 0, 64)
	for v := 0; v < n; v++ {
		key = vertexKey(key[:0], m, v)
		if weights != nil {
			key = append(key, weights[uint32(v)]...)
		}
		if idx, ok := seen[string(key)]; ok {
			remap[v] = idx
			continue
		}
		idx := uint32(len(src))
		seen[string(key)] = idx
		remap[v] = idx
		src = append(src, uint32(v))
	}
	if len(src) == n {
		return
	}

	for _, f := range m.Faces {
		for i, idx := range f.Indices {
			if int(idx) < n {
				f.Indices[i] = remap[idx]
			}
		}
	}
	remapVertices(m, src)
}

// vertexKey appends the bit patterns of every attribute of vertex v.
func vertexKey(key []byte, m *scene.Mesh, v int) []byte {
	put := func(f float32) {
		key = binary.LittleEndian.AppendUint32(key, math.Float32bits(f))
	}
	putVec := func(x mathx.Vec3) {
		put(x.X)
		put(x.Y)
		put(x.Z)
	}
	putVec(m.Positions[v])
	if m.Normals != nil {
		putVec(m.Normals[v])
	}
	if m.Tangents != nil {
		putVec(m.Tangents[v])
	}
	if m.Bitangents != nil {
		putVec(m.Bitangents[v])
	}
	for ch := range m.UVs {
		if m.UVs[ch] != nil {
			putVec(m.UVs[ch][v])
		}
	}
	for set := range m.Colors {
		if m.Colors[set] != nil {
			for _, f := range m.Colors[set][v] {
				put(f)
			}
		}
	}
	return key
}
