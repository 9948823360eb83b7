package postprocess

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/scene"
)

// identityEpsilon is the tolerance used when deciding that a node transform
// is the identity.
const identityEpsilon = 1e-6

// optimizeMeshes merges the meshes of each node that share material, vertex
// layout and primitive types. Meshes used by more than one node and skinned
// meshes are left alone.
func optimizeMeshes(ctx *Context, sc *scene.Scene) error {
	before := len(sc.Meshes())
	merged := mergeNodeMeshes(sc)
	ctx.Logger.Debug("optimized meshes",
		zap.Int("before", before),
		zap.Int("after", len(sc.Meshes())),
		zap.Int("merged", merged))
	return nil
}

// optimizeGraph shrinks the node hierarchy. Leaf children with an identity
// transform are folded into their parent, sibling leaves with equal
// transforms are folded into one node, and the meshes that end up on one
// node are merged. Nodes named by animations, cameras, lights, bones or
// ConfigKeyOptimizeGraphKeep survive.
func optimizeGraph(ctx *Context, sc *scene.Scene) error {
	if sc.RootNode() == nil {
		return nil
	}
	keep := keptNodeNames(ctx, sc)
	before := sc.NodeCount()

	collapsible := func(id scene.NodeID) bool {
		n := sc.Node(id)
		return id != sc.Root() && len(n.Children()) == 0 && n.Metadata.Len() == 0 && !keep[n.Name]
	}

	// Folding leaves can turn their parents into leaves, so repeat until
	// nothing changes.
	for {
		drop := make(map[scene.NodeID]bool)
		sc.Walk(func(id scene.NodeID, _ int) bool {
			if !collapsible(id) || !sc.Node(id).Transform.IsIdentity(identityEpsilon) {
				return true
			}
			parent := sc.Node(sc.Node(id).Parent())
			if parent == nil {
				return true
			}
			parent.Meshes = append(parent.Meshes, sc.Node(id).Meshes...)
			drop[id] = true
			return true
		})
		if len(drop) == 0 {
			break
		}
		sc.RemoveNodes(func(id scene.NodeID, _ *scene.Node) bool { return !drop[id] })
	}

	drop := make(map[scene.NodeID]bool)
	sc.Walk(func(id scene.NodeID, _ int) bool {
		first := make(map[math.Mat4]scene.NodeID)
		for _, c := range sc.Node(id).Children() {
			if !collapsible(c) {
				continue
			}
			child := sc.Node(c)
			into, ok := first[child.Transform]
			if !ok {
				first[child.Transform] = c
				continue
			}
			target := sc.Node(into)
			target.Meshes = append(target.Meshes, child.Meshes...)
			drop[c] = true
		}
		return true
	})
	if len(drop) > 0 {
		sc.RemoveNodes(func(id scene.NodeID, _ *scene.Node) bool { return !drop[id] })
	}

	merged := mergeNodeMeshes(sc)
	ctx.Logger.Debug("optimized graph",
		zap.Int("nodes_before", before),
		zap.Int("nodes_after", sc.NodeCount()),
		zap.Int("meshes_merged", merged))
	return nil
}

func keptNodeNames(ctx *Context, sc *scene.Scene) map[string]bool {
	keep := make(map[string]bool)
	for _, name := range strings.Split(ctx.Config.StringOr(ConfigKeyOptimizeGraphKeep, ""), ",") {
		if name = strings.TrimSpace(name); name != "" {
			keep[name] = true
		}
	}
	for _, a := range sc.Animations() {
		if a == nil {
			continue
		}
		for _, ch := range a.Channels {
			keep[ch.NodeName] = true
		}
	}
	for _, c := range sc.Cameras() {
		if c != nil {
			keep[c.Name] = true
		}
	}
	for _, l := range sc.Lights() {
		if l != nil {
			keep[l.Name] = true
		}
	}
	for _, m := range sc.Meshes() {
		if m == nil {
			continue
		}
		for _, b := range m.Bones {
			keep[b.Name] = true
		}
	}
	return keep
}

// mergeNodeMeshes merges compatible meshes within each node, then rebuilds
// the mesh list in tree order with unreferenced meshes at the end. It
// returns the number of meshes merged away.
func mergeNodeMeshes(sc *scene.Scene) int {
	meshes := sc.Meshes()
	refs := make([]int, len(meshes))
	for id := 0; id < sc.NodeCount(); id++ {
		for _, mi := range sc.Node(scene.NodeID(id)).Meshes {
			if mi >= 0 && mi < len(meshes) {
				refs[mi]++
			}
		}
	}
	mergeable := func(mi int) bool {
		m := meshes[mi]
		return refs[mi] == 1 && m != nil && len(m.Bones) == 0 && wellFormed(m)
	}

	gone := make([]bool, len(meshes))
	merged := 0
	for id := 0; id < sc.NodeCount(); id++ {
		n := sc.Node(scene.NodeID(id))
		out := n.Meshes[:0]
		for _, mi := range n.Meshes {
			if mi < 0 || mi >= len(meshes) || !mergeable(mi) {
				out = append(out, mi)
				continue
			}
			m := meshes[mi]
			absorbed := false
			for _, head := range out {
				if head < 0 || head >= len(meshes) || !mergeable(head) {
					continue
				}
				h := meshes[head]
				if h.MaterialIndex == m.MaterialIndex && h.PrimitiveTypes == m.PrimitiveTypes && h.SameLayout(m) {
					appendMesh(h, m)
					gone[mi] = true
					absorbed = true
					merged++
					break
				}
			}
			if !absorbed {
				out = append(out, mi)
			}
		}
		n.Meshes = out
	}

	remap := make([]int, len(meshes))
	for i := range remap {
		remap[i] = -1
	}
	var order []*scene.Mesh
	place := func(mi int) {
		if mi >= 0 && mi < len(meshes) && !gone[mi] && remap[mi] < 0 {
			remap[mi] = len(order)
			order = append(order, meshes[mi])
		}
	}
	sc.Walk(func(id scene.NodeID, _ int) bool {
		for _, mi := range sc.Node(id).Meshes {
			place(mi)
		}
		return true
	})
	for mi := range meshes {
		place(mi)
	}
	for id := 0; id < sc.NodeCount(); id++ {
		n := sc.Node(scene.NodeID(id))
		for i, mi := range n.Meshes {
			if mi >= 0 && mi < len(meshes) {
				n.Meshes[i] = remap[mi]
			}
		}
	}
	sc.SetMeshes(order)
	return merged
}

// appendMesh appends the vertices and faces of src to dst. Both meshes must
// share a layout.
func appendMesh(dst, src *scene.Mesh) {
	offset := uint32(dst.NumVertices())
	dst.Positions = append(dst.Positions, src.Positions...)
	if dst.Normals != nil {
		dst.Normals = append(dst.Normals, src.Normals...)
	}
	if dst.Tangents != nil {
		dst.Tangents = append(dst.Tangents, src.Tangents...)
		dst.Bitangents = append(dst.Bitangents, src.Bitangents...)
	}
	for ch := range dst.UVs {
		if dst.UVs[ch] != nil {
			dst.UVs[ch] = append(dst.UVs[ch], src.UVs[ch]...)
		}
	}
	for set := range dst.Colors {
		if dst.Colors[set] != nil {
			dst.Colors[set] = append(dst.Colors[set], src.Colors[set]...)
		}
	}
	for _, f := range src.Faces {
		idx := make([]uint32, len(f.Indices))
		for i, v := range f.Indices {
			idx[i] = v + offset
		}
		dst.Faces = append(dst.Faces, scene.Face{Indices: idx})
	}
}

// wellFormed reports whether every attribute matches the vertex count and
// every face index is in range.
func wellFormed(m *scene.Mesh) bool {
	n := m.NumVertices()
	ok := func(l int, present bool) bool { return !present || l == n }
	if !ok(len(m.Normals), m.Normals != nil) ||
		!ok(len(m.Tangents), m.Tangents != nil) ||
		!ok(len(m.Bitangents), m.Bitangents != nil) {
		return false
	}
	for ch := range m.UVs {
		if !ok(len(m.UVs[ch]), m.UVs[ch] != nil) {
			return false
		}
	}
	for set := range m.Colors {
		if !ok(len(m.Colors[set]), m.Colors[set] != nil) {
			return false
		}
	}
	return meshIndicesValid(m)
}
