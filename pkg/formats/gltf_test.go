package formats

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	stdmath "math"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
	"github.com/Faultbox/scenery/pkg/vfs"
)

const fakePNG = "\x89PNG\r\n\x1a\n"

// gltfQuadBuffer holds positions, normals, texture coordinates and strip
// indices of a unit quad followed by an 8 byte image.
func gltfQuadBuffer(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	w([4][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}})
	w([4][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}})
	w([4][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}})
	w([4]uint16{0, 1, 2, 3})
	buf.WriteString(fakePNG)
	require.Equal(t, 144, buf.Len())
	return buf.Bytes()
}

// gltfQuadJSON is a two-root scene: a quad mesh used by a node and its
// child, plus a camera. buffer is the JSON object of buffer 0.
func gltfQuadJSON(buffer string, indices int) string {
	return fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"name": "world", "nodes": [0, 2]}],
  "nodes": [
    {"name": "body", "mesh": 0, "translation": [1, 2, 3], "children": [1]},
    {"name": "wheel", "mesh": 0},
    {"name": "eye", "camera": 0, "matrix": [1,0,0,0, 0,1,0,0, 0,0,1,0, 0,0,5,1]}
  ],
  "cameras": [{"type": "perspective", "perspective": {"yfov": 0.8, "znear": 0.5, "zfar": 100, "aspectRatio": 1.5}}],
  "meshes": [{"name": "quad", "primitives": [
    {"attributes": {"POSITION": 0, "NORMAL": 1, "TEXCOORD_0": 2}, "indices": %d, "material": 0, "mode": 5}
  ]}],
  "materials": [{
    "name": "paint",
    "pbrMetallicRoughness": {
      "baseColorFactor": [1, 0.5, 0.25, 0.75],
      "metallicFactor": 0.2,
      "roughnessFactor": 0.6,
      "baseColorTexture": {"index": 0}
    },
    "doubleSided": true,
    "alphaMode": "BLEND"
  }],
  "textures": [{"source": 0}],
  "images": [{"name": "paint", "mimeType": "image/png", "bufferView": 4}],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 4, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]},
    {"bufferView": 1, "componentType": 5126, "count": 4, "type": "VEC3"},
    {"bufferView": 2, "componentType": 5126, "count": 4, "type": "VEC2"},
    {"bufferView": 3, "componentType": 5123, "count": 4, "type": "SCALAR"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 48},
    {"buffer": 0, "byteOffset": 48, "byteLength": 48},
    {"buffer": 0, "byteOffset": 96, "byteLength": 32},
    {"buffer": 0, "byteOffset": 128, "byteLength": 8},
    {"buffer": 0, "byteOffset": 136, "byteLength": 8}
  ],
  "buffers": [%s]
}`, indices, buffer)
}

func dataURIBuffer(data []byte) string {
	return fmt.Sprintf(`{"byteLength": %d, "uri": "data:application/octet-stream;base64,%s"}`,
		len(data), base64.StdEncoding.EncodeToString(data))
}

// glb wraps a JSON document and a binary chunk into a GLB container.
func glb(t *testing.T, doc string, bin []byte) []byte {
	t.Helper()
	js := []byte(doc)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	for len(bin)%4 != 0 {
		bin = append(bin, 0)
	}
	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	buf.WriteString(GLBMagic)
	w(uint32(2))
	w(uint32(12 + 8 + len(js) + 8 + len(bin)))
	w(uint32(len(js)))
	w(uint32(0x4E4F534A))
	buf.Write(js)
	w(uint32(len(bin)))
	w(uint32(0x004E4942))
	buf.Write(bin)
	return buf.Bytes()
}

func checkQuadScene(t *testing.T, sc *scene.Scene) {
	t.Helper()
	require.NoError(t, sc.Check())

	root := sc.RootNode()
	assert.Equal(t, "world", root.Name)
	require.Len(t, root.Children(), 2)

	body := sc.Node(sc.FindNode("body"))
	require.NotNil(t, body)
	assert.Equal(t, math.Translate(1, 2, 3), body.Transform)
	wheel := sc.Node(sc.FindNode("wheel"))
	require.NotNil(t, wheel)
	assert.Equal(t, sc.FindNode("body"), wheel.Parent())

	require.Len(t, sc.Meshes(), 1, "a mesh used twice is converted once")
	assert.Equal(t, body.Meshes, wheel.Meshes)
	m := sc.Meshes()[0]
	assert.Equal(t, "quad", m.Name)
	assert.Equal(t, 4, m.NumVertices())
	require.Len(t, m.Faces, 2)
	assert.Equal(t, []uint32{0, 1, 2}, m.Faces[0].Indices)
	assert.Equal(t, []uint32{2, 1, 3}, m.Faces[1].Indices, "strip winding alternates")
	assert.Equal(t, math.Vec3{Z: 1}, m.Normals[3])
	assert.Equal(t, math.Vec3{X: 1, Y: 1}, m.UVs[0][3])

	mat := sc.Material(m.MaterialIndex)
	p := mat.Props
	assert.Equal(t, "paint", mat.Name())
	assert.Equal(t, props.ShadingPBR, p.IntOr(props.KeyShadingModel, 0))
	assert.Equal(t, math.Vec3{X: 1, Y: 0.5, Z: 0.25}, mustVec3(t, p, props.KeyColorDiffuse))
	assert.InDelta(t, 0.75, p.FloatOr(props.KeyOpacity, 0), 1e-9)
	assert.InDelta(t, 0.2, p.FloatOr(props.KeyMetallicFactor, 0), 1e-9)
	assert.InDelta(t, 0.6, p.FloatOr(props.KeyRoughness, 0), 1e-9)
	assert.True(t, p.BoolOr(props.KeyTwoSided, false))
	assert.Equal(t, "BLEND", p.StringOr(KeyGLTFAlphaMode, ""))

	ref, err := mat.Texture(props.TextureBaseColor, 0)
	require.NoError(t, err)
	assert.Equal(t, "*0", ref.Path)
	require.Len(t, sc.Textures(), 1)
	assert.Equal(t, "png", sc.Textures()[0].FormatHint)
	assert.Equal(t, []byte(fakePNG), sc.Textures()[0].Data)

	require.Len(t, sc.Cameras(), 1)
	cam := sc.Cameras()[0]
	assert.Equal(t, "eye", cam.Name)
	assert.Equal(t, float32(0.5), cam.ClipNear)
	assert.Equal(t, float32(100), cam.ClipFar)
	assert.Equal(t, float32(1.5), cam.Aspect)
	assert.InDelta(t, 2*stdmath.Atan(stdmath.Tan(0.4)*1.5), float64(cam.HorizontalFOV), 1e-5)
	eye := sc.Node(sc.FindNode("eye"))
	assert.Equal(t, float32(5), eye.Transform[14])
}

func TestGLTFFormat_Read_JSON(t *testing.T) {
	doc := gltfQuadJSON(dataURIBuffer(gltfQuadBuffer(t)), 3)
	sc, err := importBytes(t, GLTFFormat{}, "car.gltf", []byte(doc))
	require.NoError(t, err)
	checkQuadScene(t, sc)
}

func TestGLTFFormat_Read_GLB(t *testing.T) {
	bin := gltfQuadBuffer(t)
	data := glb(t, gltfQuadJSON(fmt.Sprintf(`{"byteLength": %d}`, len(bin)), 3), bin)
	sc, err := importBytes(t, GLTFFormat{}, "car.glb", data)
	require.NoError(t, err)
	checkQuadScene(t, sc)
}

func TestGLTFFormat_Read_ExternalBuffer(t *testing.T) {
	bin := gltfQuadBuffer(t)
	mem := vfs.NewMemSystem()
	mem.Add("models/car.gltf", []byte(gltfQuadJSON(fmt.Sprintf(`{"byteLength": %d, "uri": "car.bin"}`, len(bin)), 3)))
	mem.Add("models/car.bin", bin)

	sc, err := importFrom(t, GLTFFormat{}, "models/car.gltf", mem)
	require.NoError(t, err)
	checkQuadScene(t, sc)
}

func TestGLTFFormat_Read_Errors(t *testing.T) {
	buf := dataURIBuffer(gltfQuadBuffer(t))
	tests := []struct {
		name string
		doc  string
	}{
		{"broken json", `{"asset": {"version": "2.0"`},
		{"accessor out of range", gltfQuadJSON(buf, 9)},
		{"missing external buffer", gltfQuadJSON(`{"byteLength": 144, "uri": "gone.bin"}`, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := importBytes(t, GLTFFormat{}, "bad.gltf", []byte(tt.doc))
			assert.Nil(t, sc)
			assert.ErrorIs(t, err, importer.ErrParse)
		})
	}
}

func TestGLTFFormat_Read_IndexOutOfRange(t *testing.T) {
	data := gltfQuadBuffer(t)
	binary.LittleEndian.PutUint16(data[128+6:], 40)
	sc, err := importBytes(t, GLTFFormat{}, "bad.gltf", []byte(gltfQuadJSON(dataURIBuffer(data), 3)))
	assert.Nil(t, sc)
	require.ErrorIs(t, err, importer.ErrParse)
	assert.Contains(t, err.Error(), "out of range")
}

func TestGLTFFormat_Read_NoIndicesNoMaterial(t *testing.T) {
	doc := strings.NewReplacer(`"indices": 3, "material": 0, "mode": 5`, `"mode": 4`).
		Replace(gltfQuadJSON(dataURIBuffer(gltfQuadBuffer(t)), 3))
	sc, err := importBytes(t, GLTFFormat{}, "plain.gltf", []byte(doc))
	require.NoError(t, err)
	require.NoError(t, sc.Check())

	m := sc.Meshes()[0]
	require.Len(t, m.Faces, 1, "four vertices hold one full triangle")
	assert.Equal(t, []uint32{0, 1, 2}, m.Faces[0].Indices)
	assert.Equal(t, "gltf_default", sc.Material(m.MaterialIndex).Name())
}

func TestGLTFFormat_CanRead(t *testing.T) {
	f := GLTFFormat{}
	assert.True(t, f.CanRead("a.GLB", importer.Probe{}, false))
	assert.True(t, f.CanRead("a.gltf", importer.Probe{}, false))
	assert.False(t, f.CanRead("a.json", importer.Probe{}, false))
	assert.True(t, f.CanRead("a.json", importer.NewProbe([]byte(`{"asset": {"version": "2.0"}}`)), true))
	assert.False(t, f.CanRead("a.json", importer.NewProbe([]byte(`{"name": "x"}`)), true))
}

func TestGLTFFaces(t *testing.T) {
	idx := []uint32{0, 1, 2, 3, 4}
	tests := []struct {
		name string
		mode gltf.PrimitiveMode
		want [][]uint32
	}{
		{"points", gltf.PrimitivePoints, [][]uint32{{0}, {1}, {2}, {3}, {4}}},
		{"lines", gltf.PrimitiveLines, [][]uint32{{0, 1}, {2, 3}}},
		{"line strip", gltf.PrimitiveLineStrip, [][]uint32{{0, 1}, {1, 2}, {2, 3}, {3, 4}}},
		{"line loop", gltf.PrimitiveLineLoop, [][]uint32{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 0}}},
		{"triangles", gltf.PrimitiveTriangles, [][]uint32{{0, 1, 2}}},
		{"strip", gltf.PrimitiveTriangleStrip, [][]uint32{{0, 1, 2}, {2, 1, 3}, {2, 3, 4}}},
		{"fan", gltf.PrimitiveTriangleFan, [][]uint32{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]uint32
			for _, f := range gltfFaces(tt.mode, idx) {
				got = append(got, f.Indices)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
