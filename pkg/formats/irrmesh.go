package formats

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/encoding"
	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
)

// IrrMesh material property keys.
var (
	KeyIrrType     = props.FormatKey("irr", "type")
	KeyIrrLighting = props.FormatKey("irr", "lighting")
	KeyIrrParam1   = props.FormatKey("irr", "param1")
	KeyIrrParam2   = props.FormatKey("irr", "param2")
)

// Vertex record layouts of an IrrMesh <vertices> block. Every layout starts
// with position, normal, colour and one texture coordinate.
const (
	irrVertexStandard = "standard"
	irrVertex2TCoords = "2tcoords"
	irrVertexTangents = "tangents"
)

var irrVertexStride = map[string]int{
	irrVertexStandard: 9,
	irrVertex2TCoords: 11,
	irrVertexTangents: 15,
}

type irrMeshXML struct {
	XMLName xml.Name       `xml:"mesh"`
	Buffers []irrBufferXML `xml:"buffer"`
}

type irrBufferXML struct {
	Material irrMaterialXML `xml:"material"`
	Vertices irrVerticesXML `xml:"vertices"`
	Indices  irrIndicesXML  `xml:"indices"`
}

type irrMaterialXML struct {
	Attrs []irrAttrXML `xml:",any"`
}

// irrAttrXML is one typed attribute such as <color name="Diffuse" value="ffffffff"/>.
type irrAttrXML struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Value   string `xml:"value,attr"`
}

type irrVerticesXML struct {
	Type  string `xml:"type,attr"`
	Count int    `xml:"vertexCount,attr"`
	Data  string `xml:",chardata"`
}

type irrIndicesXML struct {
	Count int    `xml:"indexCount,attr"`
	Data  string `xml:",chardata"`
}

// IrrMeshFormat imports Irrlicht engine static meshes (.irrmesh).
type IrrMeshFormat struct{}

// Info implements importer.Format.
func (IrrMeshFormat) Info() importer.Info {
	return importer.Info{
		Name:              "irrmesh",
		Description:       "Irrlicht static mesh",
		Extensions:        []string{"irrmesh"},
		SupportsSignature: true,
		Flags:             importer.FlagText,
	}
}

// CanRead implements importer.Format.
func (f IrrMeshFormat) CanRead(name string, probe importer.Probe, checkSig bool) bool {
	if !checkSig {
		return f.Info().HasExtension(importer.ExtensionOf(name))
	}
	return probe.ContainsToken("irrmesh")
}

// Read implements importer.Format.
func (IrrMeshFormat) Read(ctx *importer.ReadContext, sc *scene.Scene) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	doc, err := decodeIrrMesh(data)
	if err != nil {
		return ctx.Wrap(err, "decoding xml")
	}

	rootName := strings.TrimSuffix(path.Base(strings.ReplaceAll(ctx.Name, `\`, "/")), path.Ext(ctx.Name))
	if rootName == "" || rootName == "." {
		rootName = "irrmesh"
	}
	root, err := sc.SetRoot(rootName)
	if err != nil {
		return err
	}

	for i := range doc.Buffers {
		m, err := buildIrrBuffer(ctx, &doc.Buffers[i], i)
		if err != nil {
			return err
		}
		if m == nil {
			continue
		}
		mat := irrMaterial(&doc.Buffers[i].Material, i, m)
		m.MaterialIndex = sc.AddMaterial(mat)
		rn := sc.Node(root)
		rn.Meshes = append(rn.Meshes, sc.AddMesh(m))
	}
	if len(sc.Meshes()) == 0 {
		ctx.Logger.Warn("irrmesh has no geometry", zap.Int("buffers", len(doc.Buffers)))
		sc.Flags |= scene.FlagIncomplete
	}
	return nil
}

func decodeIrrMesh(data []byte) (*irrMeshXML, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		cs, err := encoding.ParseCharset(label)
		if err != nil {
			return nil, err
		}
		return cs.NewReader(input), nil
	}
	var doc irrMeshXML
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// buildIrrBuffer converts one <buffer>. It returns nil for a buffer without
// vertices or triangles.
func buildIrrBuffer(ctx *importer.ReadContext, buf *irrBufferXML, index int) (*scene.Mesh, error) {
	vtype := strings.ToLower(strings.TrimSpace(buf.Vertices.Type))
	if vtype == "" {
		vtype = irrVertexStandard
	}
	stride, ok := irrVertexStride[vtype]
	if !ok {
		return nil, ctx.Errorf("buffer %d: unknown vertex type %q", index, buf.Vertices.Type)
	}

	fields := strings.Fields(buf.Vertices.Data)
	count := buf.Vertices.Count
	if count < 0 {
		return nil, ctx.Errorf("buffer %d: negative vertex count %d", index, count)
	}
	if count == 0 {
		count = len(fields) / stride
	}
	if count > len(fields)/stride {
		return nil, ctx.Errorf("buffer %d: short vertex record: %d values for %d %s vertices", index, len(fields), count, vtype)
	}
	if len(fields) < count*stride || (buf.Vertices.Count == 0 && len(fields)%stride != 0) {
		return nil, ctx.Errorf("buffer %d: short vertex record: %d values for %d %s vertices", index, len(fields), count, vtype)
	}
	if len(fields) > count*stride {
		ctx.Logger.Warn("ignoring extra vertex data",
			zap.Int("buffer", index), zap.Int("declared", count), zap.Int("found", len(fields)/stride))
	}

	m := scene.NewMesh(fmt.Sprintf("buffer%d", index))
	m.Positions = make([]math.Vec3, count)
	m.Normals = make([]math.Vec3, count)
	colors := make([]math.Vec4, count)
	useColors := false
	m.UVs[0] = make([]math.Vec3, count)
	m.UVComponents[0] = 2
	if vtype == irrVertex2TCoords {
		m.UVs[1] = make([]math.Vec3, count)
		m.UVComponents[1] = 2
	}
	if vtype == irrVertexTangents {
		m.Tangents = make([]math.Vec3, count)
		m.Bitangents = make([]math.Vec3, count)
	}

	p := irrFieldParser{fields: fields}
	for v := 0; v < count; v++ {
		m.Positions[v] = p.vec3()
		m.Normals[v] = p.vec3()
		colors[v] = p.color()
		if colors[v] != math.White {
			useColors = true
		}
		m.UVs[0][v] = p.uv()
		switch vtype {
		case irrVertex2TCoords:
			m.UVs[1][v] = p.uv()
		case irrVertexTangents:
			m.Tangents[v] = p.vec3()
			m.Bitangents[v] = p.vec3()
		}
		if p.err != nil {
			return nil, ctx.Wrap(p.err, fmt.Sprintf("buffer %d vertex %d", index, v))
		}
	}
	if useColors {
		m.Colors[0] = colors
	}

	idx := strings.Fields(buf.Indices.Data)
	if buf.Indices.Count > 0 && buf.Indices.Count != len(idx) {
		ctx.Logger.Warn("index count mismatch",
			zap.Int("buffer", index), zap.Int("declared", buf.Indices.Count), zap.Int("found", len(idx)))
	}
	if len(idx)%3 != 0 {
		ctx.Logger.Warn("dropping incomplete triangle", zap.Int("buffer", index), zap.Int("indices", len(idx)))
		idx = idx[:len(idx)-len(idx)%3]
	}
	m.Faces = make([]scene.Face, 0, len(idx)/3)
	for t := 0; t < len(idx); t += 3 {
		var f [3]uint32
		for k := range f {
			n, err := strconv.ParseUint(idx[t+k], 10, 32)
			if err != nil {
				return nil, ctx.Wrap(err, fmt.Sprintf("buffer %d index %d", index, t+k))
			}
			if int(n) >= count {
				return nil, ctx.Errorf("buffer %d: index %d out of range [0,%d)", index, n, count)
			}
			f[k] = uint32(n)
		}
		m.Faces = append(m.Faces, scene.Tri(f[0], f[1], f[2]))
	}
	if count == 0 || len(m.Faces) == 0 {
		ctx.Logger.Debug("skipping empty buffer", zap.Int("buffer", index))
		return nil, nil
	}
	m.UpdatePrimitiveTypes()
	return m, nil
}

// irrFieldParser consumes whitespace separated vertex values, keeping the
// first error.
type irrFieldParser struct {
	fields []string
	pos    int
	err    error
}

func (p *irrFieldParser) next() string {
	if p.pos >= len(p.fields) {
		if p.err == nil {
			p.err = io.ErrUnexpectedEOF
		}
		return ""
	}
	s := p.fields[p.pos]
	p.pos++
	return s
}

func (p *irrFieldParser) float() float32 {
	s := p.next()
	if p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		p.err = err
	}
	return float32(f)
}

func (p *irrFieldParser) vec3() math.Vec3 {
	return math.Vec3{X: p.float(), Y: p.float(), Z: p.float()}
}

func (p *irrFieldParser) uv() math.Vec3 {
	return math.Vec3{X: p.float(), Y: p.float()}
}

func (p *irrFieldParser) color() math.Vec4 {
	s := p.next()
	if p.err != nil {
		return math.White
	}
	c, err := parseIrrColor(s)
	if err != nil {
		p.err = err
	}
	return c
}

// parseIrrColor decodes an "aarrggbb" hex colour.
func parseIrrColor(s string) (math.Vec4, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return math.White, fmt.Errorf("bad colour %q: %w", s, err)
	}
	return math.ColorFromRGBA8(uint8(v>>16), uint8(v>>8), uint8(v), uint8(v>>24)), nil
}

func irrMaterial(mx *irrMaterialXML, index int, m *scene.Mesh) *scene.Material {
	mat := scene.NewMaterial(fmt.Sprintf("material%d", index))
	p := mat.Props
	p.SetFloat(props.KeyOpacity, 1)
	shading := props.ShadingGouraud
	mtype := "solid"

	var tex1, tex2 string
	for _, a := range mx.Attrs {
		name := strings.ToLower(a.Name)
		switch a.XMLName.Local {
		case "enum":
			if name == "type" {
				mtype = strings.ToLower(a.Value)
			}
		case "color":
			c, err := parseIrrColor(a.Value)
			if err != nil {
				continue
			}
			switch name {
			case "diffuse":
				p.SetVec3(props.KeyColorDiffuse, c.RGB())
				p.SetFloat(props.KeyOpacity, float64(c[3]))
			case "ambient":
				p.SetVec3(props.KeyColorAmbient, c.RGB())
			case "specular":
				p.SetVec3(props.KeyColorSpecular, c.RGB())
			case "emissive":
				p.SetVec3(props.KeyColorEmissive, c.RGB())
			}
		case "float":
			f, err := strconv.ParseFloat(a.Value, 64)
			if err != nil {
				continue
			}
			switch name {
			case "shininess":
				p.SetFloat(props.KeyShininess, f)
			case "param1":
				p.SetFloat(KeyIrrParam1, f)
			case "param2":
				p.SetFloat(KeyIrrParam2, f)
			}
		case "bool":
			b := strings.EqualFold(a.Value, "true")
			switch name {
			case "gouraudshading":
				if !b {
					shading = props.ShadingFlat
				}
			case "lighting":
				p.SetBool(KeyIrrLighting, b)
			case "backfaceculling":
				p.SetBool(props.KeyTwoSided, !b)
			default:
				p.SetBool(props.FormatKey("irr", name), b)
			}
		case "texture":
			switch name {
			case "texture1":
				tex1 = a.Value
			case "texture2":
				tex2 = a.Value
			}
		}
	}
	if !p.BoolOr(KeyIrrLighting, true) {
		shading = props.ShadingNone
	}
	p.SetInt(props.KeyShadingModel, shading)
	p.SetString(KeyIrrType, mtype)

	if tex1 != "" {
		mat.AddTexture(props.TextureRef{Type: props.TextureDiffuse, Path: tex1, Mapping: props.MappingUV})
	}
	if tex2 != "" {
		ref := props.TextureRef{Type: props.TextureDiffuse, Slot: 1, Path: tex2, Mapping: props.MappingUV, UVChannel: 1}
		switch {
		case strings.HasPrefix(mtype, "lightmap"):
			ref.Type, ref.Slot = props.TextureLightmap, 0
		case strings.HasPrefix(mtype, "normalmap"), strings.HasPrefix(mtype, "parallaxmap"):
			ref.Type, ref.Slot, ref.UVChannel = props.TextureNormals, 0, 0
		}
		if !m.HasUVs(ref.UVChannel) {
			ref.UVChannel = 0
		}
		mat.AddTexture(ref)
	}
	return mat
}
