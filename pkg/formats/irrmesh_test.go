package formats

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
)

const irrQuadMaterial = `
    <material>
      <enum name="Type" value="%s" />
      <color name="Ambient" value="ffffffff" />
      <color name="Diffuse" value="80ff0000" />
      <color name="Emissive" value="00000000" />
      <color name="Specular" value="ffffffff" />
      <float name="Shininess" value="20.000000" />
      <texture name="Texture1" value="wall.bmp" />
      <texture name="Texture2" value="%s" />
      <bool name="GouraudShading" value="true" />
      <bool name="Lighting" value="true" />
      <bool name="BackfaceCulling" value="false" />
      <bool name="FogEnable" value="true" />
    </material>`

// irrMeshDoc builds a one-buffer file holding a quad.
func irrMeshDoc(mtype, tex2, vtype, vertices, indices string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<mesh xmlns="http://irrlicht.sourceforge.net/IRRMESH_09_2007" version="1.0">
  <boundingBox minEdge="0 0 0" maxEdge="1 1 0" />
  <buffer>
    <boundingBox minEdge="0 0 0" maxEdge="1 1 0" />%s
    <vertices type="%s" vertexCount="4">
%s
    </vertices>
    <indices indexCount="6">
%s
    </indices>
  </buffer>
</mesh>
`, fmt.Sprintf(irrQuadMaterial, mtype, tex2), vtype, vertices, indices)
}

const irrStandardQuad = `
0 0 0 0 0 1 ffffffff 0 0
1 0 0 0 0 1 ffffffff 1 0
1 1 0 0 0 1 ffffffff 1 1
0 1 0 0 0 1 ff00ff00 0 1`

const irr2TCoordsQuad = `
0 0 0 0 0 1 ffffffff 0 0 0 0
1 0 0 0 0 1 ffffffff 1 0 1 0
1 1 0 0 0 1 ffffffff 1 1 1 1
0 1 0 0 0 1 ffffffff 0 1 0 1`

const irrTangentsQuad = `
0 0 0 0 0 1 ffffffff 0 0 1 0 0 0 1 0
1 0 0 0 0 1 ffffffff 1 0 1 0 0 0 1 0
1 1 0 0 0 1 ffffffff 1 1 1 0 0 0 1 0
0 1 0 0 0 1 ffffffff 0 1 1 0 0 0 1 0`

func TestIrrMeshFormat_CanRead(t *testing.T) {
	f := IrrMeshFormat{}
	assert.True(t, f.CanRead("models/box.IrrMesh", importer.Probe{}, false))
	assert.False(t, f.CanRead("box.irr", importer.Probe{}, false))

	doc := irrMeshDoc("solid", "", "standard", irrStandardQuad, "0 1 2 0 2 3")
	assert.True(t, f.CanRead("box.xml", importer.NewProbe([]byte(doc)), true))
	assert.False(t, f.CanRead("box.xml", importer.NewProbe([]byte(`<scene><node/></scene>`)), true))
}

func TestIrrMeshFormat_Read_Standard(t *testing.T) {
	doc := irrMeshDoc("solid", "", "standard", irrStandardQuad, "0 1 2 0 2 3")
	sc, err := importBytes(t, IrrMeshFormat{}, "models/box.irrmesh", []byte(doc))
	require.NoError(t, err)
	require.NoError(t, sc.Check())

	assert.Equal(t, "box", sc.RootNode().Name)
	require.Len(t, sc.Meshes(), 1)
	m := sc.Meshes()[0]
	assert.Equal(t, 4, m.NumVertices())
	require.Len(t, m.Faces, 2)
	assert.Equal(t, []uint32{0, 2, 3}, m.Faces[1].Indices)
	assert.Equal(t, math.Vec3{X: 1, Y: 1}, m.Positions[2])
	assert.Equal(t, math.Vec3{Z: 1}, m.Normals[0])
	assert.Equal(t, math.Vec3{X: 1, Y: 1}, m.UVs[0][2])
	assert.Equal(t, 2, m.UVComponents[0])
	assert.False(t, m.HasUVs(1))
	assert.False(t, m.HasTangents())
	require.True(t, m.HasColors(0), "a non-white vertex enables colours")
	assert.Equal(t, math.ColorFromRGBA8(0, 255, 0, 255), m.Colors[0][3])

	mat := sc.Material(m.MaterialIndex)
	p := mat.Props
	assert.Equal(t, math.Vec3{X: 1}, mustVec3(t, p, props.KeyColorDiffuse))
	assert.InDelta(t, 128.0/255.0, p.FloatOr(props.KeyOpacity, 0), 1e-6)
	assert.Equal(t, 20.0, p.FloatOr(props.KeyShininess, 0))
	assert.Equal(t, props.ShadingGouraud, p.IntOr(props.KeyShadingModel, 0))
	assert.True(t, p.BoolOr(props.KeyTwoSided, false))
	assert.True(t, p.BoolOr(props.FormatKey("irr", "fogenable"), false))
	assert.Equal(t, "solid", p.StringOr(KeyIrrType, ""))

	ref, err := mat.Texture(props.TextureDiffuse, 0)
	require.NoError(t, err)
	assert.Equal(t, "wall.bmp", ref.Path)
	assert.Equal(t, 1, mat.TextureCount(props.TextureDiffuse))
}

func TestIrrMeshFormat_Read_WhiteVerticesHaveNoColours(t *testing.T) {
	vertices := strings.ReplaceAll(irrStandardQuad, "ff00ff00", "ffffffff")
	sc, err := importBytes(t, IrrMeshFormat{}, "box.irrmesh", []byte(irrMeshDoc("solid", "", "standard", vertices, "0 1 2 0 2 3")))
	require.NoError(t, err)
	assert.False(t, sc.Meshes()[0].HasColors(0))
}

func TestIrrMeshFormat_Read_SecondTexture(t *testing.T) {
	tests := []struct {
		name     string
		mtype    string
		vtype    string
		vertices string
		wantType props.TextureType
		wantSlot int
		wantUV   int
	}{
		{"lightmap", "lightmap_m2", "2tcoords", irr2TCoordsQuad, props.TextureLightmap, 0, 1},
		{"detail map", "detail_map", "2tcoords", irr2TCoordsQuad, props.TextureDiffuse, 1, 1},
		{"single uv set", "solid_2layer", "standard", irrStandardQuad, props.TextureDiffuse, 1, 0},
		{"normal map", "normalmap_solid", "tangents", irrTangentsQuad, props.TextureNormals, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := irrMeshDoc(tt.mtype, "second.png", tt.vtype, tt.vertices, "0 1 2 0 2 3")
			sc, err := importBytes(t, IrrMeshFormat{}, "box.irrmesh", []byte(doc))
			require.NoError(t, err)
			require.NoError(t, sc.Check())

			mat := sc.Materials()[0]
			ref, err := mat.Texture(tt.wantType, tt.wantSlot)
			require.NoError(t, err)
			assert.Equal(t, "second.png", ref.Path)
			assert.Equal(t, tt.wantUV, ref.UVChannel)
		})
	}
}

func TestIrrMeshFormat_Read_VertexLayouts(t *testing.T) {
	sc, err := importBytes(t, IrrMeshFormat{}, "a.irrmesh", []byte(irrMeshDoc("solid", "", "2tcoords", irr2TCoordsQuad, "0 1 2")))
	require.NoError(t, err)
	m := sc.Meshes()[0]
	require.True(t, m.HasUVs(1))
	assert.Equal(t, math.Vec3{X: 1, Y: 1}, m.UVs[1][2])

	sc, err = importBytes(t, IrrMeshFormat{}, "b.irrmesh", []byte(irrMeshDoc("solid", "", "tangents", irrTangentsQuad, "0 1 2")))
	require.NoError(t, err)
	m = sc.Meshes()[0]
	require.True(t, m.HasTangents())
	assert.Equal(t, math.Vec3{X: 1}, m.Tangents[0])
	assert.Equal(t, math.Vec3{Y: 1}, m.Bitangents[0])
}

func TestIrrMeshFormat_Read_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "irrmesh <<<"},
		{"wrong root", `<scene><irrmesh/></scene>`},
		{"short vertex record", irrMeshDoc("solid", "", "standard", "0 0 0 0 0 1 ffffffff 0 0\n1 0 0", "0 1 2")},
		{"index out of range", irrMeshDoc("solid", "", "standard", irrStandardQuad, "0 1 7")},
		{"unknown vertex type", irrMeshDoc("solid", "", "skinned", irrStandardQuad, "0 1 2")},
		{"bad colour", irrMeshDoc("solid", "", "standard", strings.Replace(irrStandardQuad, "ffffffff", "zz", 1), "0 1 2")},
		{"bad index", irrMeshDoc("solid", "", "standard", irrStandardQuad, "0 1 x")},
		{"huge vertex count", strings.Replace(irrMeshDoc("solid", "", "standard", irrStandardQuad, "0 1 2"), `vertexCount="4"`, `vertexCount="9223372036854775807"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := importBytes(t, IrrMeshFormat{}, "bad.irrmesh", []byte(tt.doc))
			assert.Nil(t, sc)
			assert.ErrorIs(t, err, importer.ErrParse)
		})
	}
}

func TestIrrMeshFormat_Read_IncompleteTriangleDropped(t *testing.T) {
	sc, err := importBytes(t, IrrMeshFormat{}, "a.irrmesh", []byte(irrMeshDoc("solid", "", "standard", irrStandardQuad, "0 1 2 3")))
	require.NoError(t, err)
	assert.Len(t, sc.Meshes()[0].Faces, 1)
}

func TestParseIrrColor(t *testing.T) {
	c, err := parseIrrColor("80ff4000")
	require.NoError(t, err)
	assert.Equal(t, math.ColorFromRGBA8(0xff, 0x40, 0x00, 0x80), c)

	_, err = parseIrrColor("nothex")
	assert.Error(t, err)
}

func mustVec3(t *testing.T, p *props.Store, key string) math.Vec3 {
	t.Helper()
	v, err := p.Vec3(key)
	require.NoError(t, err)
	return v
}
