package postprocess

import (
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/scene"
)

// triangulate splits every face with more than three indices. Points and
// lines are kept as they are. The cached PrimitiveTypes mask is not trusted;
// it is recomputed from the faces.
func triangulate(ctx *Context, sc *scene.Scene) error {
	earClip := ctx.Config.BoolOr(ConfigKeyTriangulateEar, true)
	split := 0
	for _, m := range sc.Meshes() {
		m.UpdatePrimitiveTypes()
		if m.PrimitiveTypes&scene.PrimitivePolygon == 0 {
			continue
		}
		out := make([]scene.Face, 0, len(m.Faces))
		for _, f := range m.Faces {
			if len(f.Indices) <= 3 {
				out = append(out, f)
				continue
			}
			split++
			var tris [][3]uint32
			if earClip && indicesInRange(f, len(m.Positions)) {
				tris = earClipPolygon(m.Positions, f.Indices)
			} else {
				tris = fanPolygon(f.Indices)
			}
			for _, t := range tris {
				out = append(out, scene.Tri(t[0], t[1], t[2]))
			}
		}
		m.Faces = out
		m.UpdatePrimitiveTypes()
	}
	ctx.Logger.Debug("triangulated", zap.Int("polygons", split))
	return nil
}

func fanPolygon(idx []uint32) [][3]uint32 {
	tris := make([][3]uint32, 0, len(idx)-2)
	for i := 1; i+1 < len(idx); i++ {
		tris = append(tris, [3]uint32{idx[0], idx[i], idx[i+1]})
	}
	return tris
}

// earClipPolygon triangulates a simple planar polygon, concave or not,
// keeping its winding. Degenerate input falls back to a fan.
func earClipPolygon(pos []math.Vec3, idx []uint32) [][3]uint32 {
	n := polygonNormal(pos, idx)
	if n.Length() == 0 {
		return fanPolygon(idx)
	}

	// Drop the dominant normal axis and orient the 2D polygon
	// counter-clockwise.
	abs := func(f float32) float32 {
		if f < 0 {
			return -f
		}
		return f
	}
	project := func(p math.Vec3) math.Vec2 { return math.Vec2{X: p.Y, Y: p.Z} }
	sign := n.X
	switch {
	case abs(n.Z) >= abs(n.X) && abs(n.Z) >= abs(n.Y):
		project = func(p math.Vec3) math.Vec2 { return math.Vec2{X: p.X, Y: p.Y} }
		sign = n.Z
	case abs(n.Y) >= abs(n.X):
		project = func(p math.Vec3) math.Vec2 { return math.Vec2{X: p.Z, Y: p.X} }
		sign = n.Y
	}
	pts := make([]math.Vec2, len(idx))
	for i, v := range idx {
		pts[i] = project(pos[v])
		if sign < 0 {
			pts[i].X = -pts[i].X
		}
	}

	remaining := make([]int, len(idx))
	for i := range remaining {
		remaining[i] = i
	}
	tris := make([][3]uint32, 0, len(idx)-2)

	for len(remaining) > 3 {
		clipped := false
		for k := range remaining {
			p := remaining[(k+len(remaining)-1)%len(remaining)]
			c := remaining[k]
			nx := remaining[(k+1)%len(remaining)]
			if !isEar(pts, remaining, p, c, nx) {
				continue
			}
			tris = append(tris, [3]uint32{idx[p], idx[c], idx[nx]})
			remaining = append(remaining[:k], remaining[k+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// Self-intersecting or collinear remainder.
			rest := make([]uint32, len(remaining))
			for i, r := range remaining {
				rest[i] = idx[r]
			}
			return append(tris, fanPolygon(rest)...)
		}
	}
	return append(tris, [3]uint32{idx[remaining[0]], idx[remaining[1]], idx[remaining[2]]})
}

func isEar(pts []math.Vec2, remaining []int, p, c, n int) bool {
	a, b, d := pts[p], pts[c], pts[n]
	if b.Sub(a).Cross(d.Sub(b)) <= 0 {
		return false
	}
	for _, r := range remaining {
		if r == p || r == c || r == n {
			continue
		}
		if pointInTriangle(pts[r], a, b, d) {
			return false
		}
	}
	return true
}

func pointInTriangle(p, a, b, c math.Vec2) bool {
	d1 := b.Sub(a).Cross(p.Sub(a))
	d2 := c.Sub(b).Cross(p.Sub(b))
	d3 := a.Sub(c).Cross(p.Sub(c))
	return d1 >= 0 && d2 >= 0 && d3 >= 0
}
