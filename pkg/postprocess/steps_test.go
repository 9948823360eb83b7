package postprocess

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
)

// runSteps runs ids and checks the scene invariants after every step.
func runSteps(t *testing.T, sc *scene.Scene, cfg *props.Store, ids ...ID) {
	t.Helper()
	if cfg == nil {
		cfg = props.New()
	}
	cfg.SetBool(ConfigKeyValidateEach, true)
	require.NoError(t, DefaultCatalog().Run(NewContext(cfg, zaptest.NewLogger(t)), sc, ids))
}

func totalArea(m *scene.Mesh) float32 {
	var a float32
	for _, f := range m.Faces {
		a += faceArea(m.Positions, f.Indices)
	}
	return a
}

func polygonMesh(pts ...math.Vec3) *scene.Mesh {
	m := scene.NewMesh("poly")
	m.Positions = pts
	idx := make([]uint32, len(pts))
	for i := range idx {
		idx[i] = uint32(i)
	}
	m.Faces = []scene.Face{{Indices: idx}}
	return m
}

func assertVec(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-5)
	assert.InDelta(t, want.Y, got.Y, 1e-5)
	assert.InDelta(t, want.Z, got.Z, 1e-5)
}

func TestTriangulate_Concave(t *testing.T) {
	// L shape of three unit squares.
	l := polygonMesh(
		math.Vec3{}, math.Vec3{X: 2}, math.Vec3{X: 2, Y: 1},
		math.Vec3{X: 1, Y: 1}, math.Vec3{X: 1, Y: 2}, math.Vec3{Y: 2},
	)
	sc := meshScene(t, l)
	runSteps(t, sc, nil, IDTriangulate, IDValidate)

	m := sc.Mesh(0)
	require.Len(t, m.Faces, 4)
	for _, f := range m.Faces {
		assert.Len(t, f.Indices, 3)
		assert.Greater(t, polygonNormal(m.Positions, f.Indices).Z, float32(0), "winding kept")
	}
	assert.InDelta(t, 3.0, totalArea(m), 1e-5)
	assert.Equal(t, scene.PrimitiveTriangle, m.PrimitiveTypes)
}

func TestTriangulate_Fan(t *testing.T) {
	quad := polygonMesh(math.Vec3{}, math.Vec3{X: 1}, math.Vec3{X: 1, Y: 1}, math.Vec3{Y: 1})
	cfg := props.New()
	cfg.SetBool(ConfigKeyTriangulateEar, false)
	sc := meshScene(t, quad)
	runSteps(t, sc, cfg, IDTriangulate)

	assert.Equal(t, []scene.Face{scene.Tri(0, 1, 2), scene.Tri(0, 2, 3)}, sc.Mesh(0).Faces)
}

func TestTriangulate_StalePrimitiveMask(t *testing.T) {
	quad := polygonMesh(math.Vec3{}, math.Vec3{X: 1}, math.Vec3{X: 1, Y: 1}, math.Vec3{Y: 1})
	sc := meshScene(t, quad)
	quad.PrimitiveTypes = scene.PrimitiveTriangle
	runSteps(t, sc, nil, IDTriangulate, IDValidate)

	require.Len(t, quad.Faces, 2)
	for _, f := range quad.Faces {
		assert.Len(t, f.Indices, 3)
	}
	assert.Equal(t, scene.PrimitiveTriangle, quad.PrimitiveTypes)
}

func TestTriangulate_KeepsPointsAndLines(t *testing.T) {
	m := scene.NewMesh("lines")
	m.Positions = []math.Vec3{{}, {X: 1}, {Y: 1}}
	m.Faces = []scene.Face{{Indices: []uint32{0, 1}}, {Indices: []uint32{2}}}
	sc := meshScene(t, m)
	runSteps(t, sc, nil, IDTriangulate)

	assert.Len(t, sc.Mesh(0).Faces, 2)
	assert.Equal(t, scene.PrimitiveLine|scene.PrimitivePoint, sc.Mesh(0).PrimitiveTypes)
}

func TestTriangulate_RegularPolygons(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(3, 16).Draw(rt, "sides")
		r := rapid.Float64Range(0.5, 50).Draw(rt, "radius")
		z := float32(rapid.Float64Range(-10, 10).Draw(rt, "z"))
		ear := rapid.Bool().Draw(rt, "ear")

		pts := make([]math.Vec3, n)
		for i := range pts {
			a := 2 * stdmath.Pi * float64(i) / float64(n)
			pts[i] = math.Vec3{X: float32(r * stdmath.Cos(a)), Y: float32(r * stdmath.Sin(a)), Z: z}
		}
		m := polygonMesh(pts...)
		m.UpdatePrimitiveTypes()
		want := totalArea(m)

		cfg := props.New()
		cfg.SetBool(ConfigKeyTriangulateEar, ear)
		require.NoError(rt, triangulate(NewContext(cfg, nil), meshScene(t, m)))

		if len(m.Faces) != n-2 {
			rt.Fatalf("got %d triangles for %d sides", len(m.Faces), n)
		}
		for _, f := range m.Faces {
			if len(f.Indices) != 3 {
				rt.Fatalf("face with %d indices", len(f.Indices))
			}
		}
		if got := totalArea(m); stdmath.Abs(float64(got-want)) > 1e-3*float64(want) {
			rt.Fatalf("area %v, want %v", got, want)
		}
	})
}

func TestJoinVertices(t *testing.T) {
	m := scene.NewMesh("quad")
	m.Positions = []math.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {}, {X: 1, Y: 1}, {Y: 1}}
	m.Faces = []scene.Face{scene.Tri(0, 1, 2), scene.Tri(3, 4, 5)}
	sc := meshScene(t, m)
	runSteps(t, sc, nil, IDJoinVertices, IDValidate)

	assert.Equal(t, 4, m.NumVertices())
	assert.Equal(t, []scene.Face{scene.Tri(0, 1, 2), scene.Tri(0, 2, 3)}, m.Faces)
	assert.NotZero(t, sc.Flags&scene.FlagNonVerbose)
}

func TestJoinVertices_DistinctAttributesKept(t *testing.T) {
	m := scene.NewMesh("seam")
	m.Positions = []math.Vec3{{}, {X: 1}, {Y: 1}, {}}
	m.UVs[0] = []math.Vec3{{}, {X: 1}, {Y: 1}, {X: 0.5}}
	m.UVComponents[0] = 2
	m.Faces = []scene.Face{scene.Tri(0, 1, 2), scene.Tri(3, 1, 2)}
	sc := meshScene(t, m)
	runSteps(t, sc, nil, IDJoinVertices)

	assert.Equal(t, 4, m.NumVertices())
}

func TestJoinVertices_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		grid := rapid.SliceOfN(rapid.IntRange(0, 3), 3, 30).Draw(rt, "grid")
		m := scene.NewMesh("random")
		for i, g := range grid {
			m.Positions = append(m.Positions, math.Vec3{X: float32(g), Y: float32(i % 2)})
		}
		for i := 0; i+2 < len(m.Positions); i += 3 {
			m.Faces = append(m.Faces, scene.Tri(uint32(i), uint32(i+1), uint32(i+2)))
		}
		joinMesh(m)
		once := m.Clone()
		joinMesh(m)

		if m.NumVertices() != once.NumVertices() {
			rt.Fatalf("second join changed vertex count %d -> %d", once.NumVertices(), m.NumVertices())
		}
		for i := range m.Faces {
			for k := range m.Faces[i].Indices {
				if m.Faces[i].Indices[k] != once.Faces[i].Indices[k] {
					rt.Fatalf("second join changed face %d", i)
				}
			}
		}
	})
}

func TestGenNormals_Triangle(t *testing.T) {
	sc := meshScene(t, triangleMesh())
	runSteps(t, sc, nil, IDGenNormals, IDValidate)

	require.Len(t, sc.Mesh(0).Normals, 3)
	for _, n := range sc.Mesh(0).Normals {
		assertVec(t, math.Vec3{Z: 1}, n)
	}
}

func TestGenNormals_ExistingNormalsKept(t *testing.T) {
	m := triangleMesh()
	m.Normals = []math.Vec3{{X: 1}, {X: 1}, {X: 1}}
	sc := meshScene(t, m)
	runSteps(t, sc, nil, IDGenNormals)
	assertVec(t, math.Vec3{X: 1}, m.Normals[0])

	cfg := props.New()
	cfg.SetBool(ConfigKeyGenNormalsForce, true)
	runSteps(t, sc, cfg, IDGenNormals)
	assertVec(t, math.Vec3{Z: 1}, m.Normals[0])
}

func TestGenNormals_SmoothingAngle(t *testing.T) {
	// Two triangles at a right angle sharing the edge along X, without
	// shared vertices.
	corner := func() *scene.Mesh {
		m := scene.NewMesh("corner")
		m.Positions = []math.Vec3{{}, {X: 1}, {Y: 1}, {}, {Z: 1}, {X: 1}}
		m.Faces = []scene.Face{scene.Tri(0, 1, 2), scene.Tri(3, 4, 5)}
		return m
	}

	smooth := corner()
	runSteps(t, meshScene(t, smooth), nil, IDGenNormals)
	diag := math.Vec3{Y: 1, Z: 1}.Normalize()
	assertVec(t, diag, smooth.Normals[0])
	assertVec(t, diag, smooth.Normals[3])
	assertVec(t, math.Vec3{Z: 1}, smooth.Normals[2])

	sharp := corner()
	cfg := props.New()
	cfg.SetFloat(ConfigKeyGenNormalsAngle, 45)
	runSteps(t, meshScene(t, sharp), cfg, IDGenNormals)
	assertVec(t, math.Vec3{Z: 1}, sharp.Normals[0])
	assertVec(t, math.Vec3{Y: 1}, sharp.Normals[3])
}

func TestGenFlatNormals(t *testing.T) {
	m := scene.NewMesh("bent")
	m.Positions = []math.Vec3{{}, {X: 1}, {Y: 1}, {Z: 1}}
	m.UVs[0] = []math.Vec3{{}, {X: 1}, {Y: 1}, {X: 1, Y: 1}}
	m.UVComponents[0] = 2
	m.Faces = []scene.Face{scene.Tri(0, 1, 2), scene.Tri(0, 3, 1)}
	sc := meshScene(t, m)
	runSteps(t, sc, nil, IDGenFlatNormals, IDValidate)

	require.Equal(t, 6, m.NumVertices())
	assert.Equal(t, []scene.Face{scene.Tri(0, 1, 2), scene.Tri(3, 4, 5)}, m.Faces)
	assert.Len(t, m.UVs[0], 6)
	assertVec(t, math.Vec3{X: 1, Y: 1}, m.UVs[0][4])
	for i := 0; i < 3; i++ {
		assertVec(t, math.Vec3{Z: 1}, m.Normals[i])
		assertVec(t, math.Vec3{Y: 1}, m.Normals[i+3])
	}
}

func TestCalcTangents(t *testing.T) {
	m := triangleMesh()
	m.UVs[0] = []math.Vec3{{}, {X: 1}, {Y: 1}}
	m.UVComponents[0] = 2
	sc := meshScene(t, m)
	runSteps(t, sc, nil, IDCalcTangents, IDValidate)

	require.True(t, m.HasNormals(), "normals generated first")
	require.True(t, m.HasTangents())
	for i := range m.Positions {
		assertVec(t, math.Vec3{X: 1}, m.Tangents[i])
		assertVec(t, math.Vec3{Y: 1}, m.Bitangents[i])
	}
}

func TestCalcTangents_ExistingTangentsKept(t *testing.T) {
	authored := func() *scene.Mesh {
		m := triangleMesh()
		m.Normals = []math.Vec3{{Z: 1}, {Z: 1}, {Z: 1}}
		m.UVs[0] = []math.Vec3{{}, {X: 1}, {Y: 1}}
		m.UVComponents[0] = 2
		m.Tangents = []math.Vec3{{Y: 1}, {Y: 1}, {Y: 1}}
		m.Bitangents = []math.Vec3{{X: -1}, {X: -1}, {X: -1}}
		return m
	}

	tests := []struct {
		name          string
		force         bool
		wantTangent   math.Vec3
		wantBitangent math.Vec3
	}{
		{"kept", false, math.Vec3{Y: 1}, math.Vec3{X: -1}},
		{"forced", true, math.Vec3{X: 1}, math.Vec3{Y: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := authored()
			cfg := props.New()
			cfg.SetBool(ConfigKeyCalcTangentsForce, tt.force)
			runSteps(t, meshScene(t, m), cfg, IDCalcTangents)

			for i := range m.Positions {
				assertVec(t, tt.wantTangent, m.Tangents[i])
				assertVec(t, tt.wantBitangent, m.Bitangents[i])
			}
		})
	}
}

func TestCalcTangents_NoUVs(t *testing.T) {
	m := triangleMesh()
	runSteps(t, meshScene(t, m), nil, IDCalcTangents)
	assert.True(t, m.HasNormals())
	assert.False(t, m.HasTangents())
}

func TestCalcTangents_DegenerateUVs(t *testing.T) {
	m := triangleMesh()
	m.Normals = []math.Vec3{{Z: 1}, {Z: 1}, {Z: 1}}
	m.UVs[0] = make([]math.Vec3, 3)
	m.UVComponents[0] = 2
	runSteps(t, meshScene(t, m), nil, IDCalcTangents)

	require.True(t, m.HasTangents())
	for i := range m.Tangents {
		assert.InDelta(t, 1, m.Tangents[i].Length(), 1e-5)
		assert.InDelta(t, 0, m.Tangents[i].Dot(m.Normals[i]), 1e-5)
	}
}

func TestRemoveRedundantMaterials(t *testing.T) {
	a, b := triangleMesh(), triangleMesh()
	sc := meshScene(t, a, b)

	red := func(name string) *scene.Material {
		mat := scene.NewMaterial(name)
		mat.Props.SetVec3(props.KeyColorDiffuse, math.Vec3{X: 1})
		return mat
	}
	sc.AddMaterial(scene.NewMaterial("unused"))
	a.MaterialIndex = sc.AddMaterial(red("first"))
	b.MaterialIndex = sc.AddMaterial(red("second"))

	runSteps(t, sc, nil, IDRemoveRedundantMaterials, IDValidate)

	require.Len(t, sc.Materials(), 1)
	assert.Equal(t, "first", sc.Material(0).Name())
	assert.Equal(t, 0, a.MaterialIndex)
	assert.Equal(t, 0, b.MaterialIndex)
}

func TestFlipUVs(t *testing.T) {
	m := triangleMesh()
	m.UVs[1] = []math.Vec3{{Y: 0.25}, {Y: 1}, {X: 0.5}}
	m.UVComponents[1] = 2
	runSteps(t, meshScene(t, m), nil, IDFlipUVs)
	assert.Equal(t, []math.Vec3{{Y: 0.75}, {Y: 0}, {X: 0.5, Y: 1}}, m.UVs[1])
}

func TestOptimizeMeshes(t *testing.T) {
	a, b, c := triangleMesh(), triangleMesh(), triangleMesh()
	for i := range b.Positions {
		b.Positions[i].Z = 2
	}
	sc := meshScene(t, a, b, c)
	sc.AddMaterial(scene.NewMaterial("m0"))
	sc.AddMaterial(scene.NewMaterial("m1"))
	a.MaterialIndex, b.MaterialIndex, c.MaterialIndex = 0, 0, 1

	runSteps(t, sc, nil, IDOptimizeMeshes, IDValidate)

	require.Len(t, sc.Meshes(), 2)
	assert.Equal(t, []int{0, 1}, sc.RootNode().Meshes)
	merged := sc.Mesh(0)
	assert.Equal(t, 6, merged.NumVertices())
	assert.Equal(t, []scene.Face{scene.Tri(0, 1, 2), scene.Tri(3, 4, 5)}, merged.Faces)
	assert.Equal(t, float32(2), merged.Positions[3].Z)
	assert.Same(t, c, sc.Mesh(1))
}

func TestOptimizeMeshes_SharedMeshUntouched(t *testing.T) {
	a, b := triangleMesh(), triangleMesh()
	sc := meshScene(t, a, b)
	child, err := sc.AddChild(sc.Root(), "instance")
	require.NoError(t, err)
	sc.Node(child).Meshes = []int{0}

	runSteps(t, sc, nil, IDOptimizeMeshes, IDValidate)
	assert.Len(t, sc.Meshes(), 2)
}

func TestOptimizeGraph(t *testing.T) {
	sc := meshScene(t)
	root := sc.Root()
	shift := math.Translate(0, 1, 0)

	a, _ := sc.AddChild(root, "a")
	sc.Node(a).Meshes = []int{sc.AddMesh(triangleMesh())}
	group, _ := sc.AddChild(root, "group")
	inner, _ := sc.AddChild(group, "inner")
	sc.Node(inner).Meshes = []int{sc.AddMesh(triangleMesh())}
	s1, _ := sc.AddChild(root, "s1")
	s2, _ := sc.AddChild(root, "s2")
	sc.Node(s1).Transform, sc.Node(s2).Transform = shift, shift
	sc.Node(s1).Meshes = []int{sc.AddMesh(triangleMesh())}
	sc.Node(s2).Meshes = []int{sc.AddMesh(triangleMesh())}
	_, err := sc.AddChild(root, "cam")
	require.NoError(t, err)
	sc.AddCamera(scene.NewCamera("cam"))
	require.NoError(t, sc.Check())

	runSteps(t, sc, nil, IDOptimizeGraph, IDValidate)

	var names []string
	sc.Walk(func(id scene.NodeID, _ int) bool {
		names = append(names, sc.Node(id).Name)
		return true
	})
	assert.Equal(t, []string{"root", "s1", "cam"}, names)

	require.Len(t, sc.Meshes(), 2)
	assert.Equal(t, []int{0}, sc.RootNode().Meshes)
	assert.Equal(t, 6, sc.Mesh(0).NumVertices(), "root meshes merged")
	s := sc.FindNode("s1")
	assert.Equal(t, []int{1}, sc.Node(s).Meshes)
	assert.Equal(t, 6, sc.Mesh(1).NumVertices(), "sibling meshes merged")
	assert.Equal(t, shift, sc.Node(s).Transform)
}

func TestOptimizeGraph_KeepList(t *testing.T) {
	sc := meshScene(t)
	a, _ := sc.AddChild(sc.Root(), "a")
	sc.Node(a).Meshes = []int{sc.AddMesh(triangleMesh())}
	b, _ := sc.AddChild(sc.Root(), "b")
	sc.Node(b).Meshes = []int{sc.AddMesh(triangleMesh())}

	cfg := props.New()
	cfg.SetString(ConfigKeyOptimizeGraphKeep, "a, b")
	runSteps(t, sc, cfg, IDOptimizeGraph, IDValidate)
	assert.Equal(t, 3, sc.NodeCount())
}
