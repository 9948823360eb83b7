package formats

import (
	"bytes"
	"fmt"
	stdmath "math"
	"path"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
	"github.com/Faultbox/scenery/pkg/vfs"
)

// glTF material property keys.
var (
	KeyGLTFAlphaMode   = props.FormatKey("gltf", "alphamode")
	KeyGLTFAlphaCutoff = props.FormatKey("gltf", "alphacutoff")
	KeyGLTFNormalScale = props.FormatKey("gltf", "normalscale")
)

// GLBMagic starts every binary glTF container.
const GLBMagic = "glTF"

// GLTFFormat imports glTF 2.0 assets in JSON (.gltf) or binary (.glb) form.
// Buffers and images referenced by relative URI are resolved through the
// read context's file system.
type GLTFFormat struct{}

// Info implements importer.Format.
func (GLTFFormat) Info() importer.Info {
	return importer.Info{
		Name:              "gltf",
		Description:       "glTF 2.0",
		Extensions:        []string{"gltf", "glb"},
		SupportsSignature: true,
		Flags:             importer.FlagText | importer.FlagBinary,
	}
}

// CanRead implements importer.Format.
func (f GLTFFormat) CanRead(name string, probe importer.Probe, checkSig bool) bool {
	if !checkSig {
		return f.Info().HasExtension(importer.ExtensionOf(name))
	}
	if probe.HasPrefix(GLBMagic) {
		return true
	}
	return probe.ContainsToken(`"asset"`) && probe.ContainsToken(`"version"`)
}

// Read implements importer.Format.
func (GLTFFormat) Read(ctx *importer.ReadContext, sc *scene.Scene) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	dir := path.Dir(strings.ReplaceAll(ctx.Name, `\`, "/"))
	doc := new(gltf.Document)
	if err := gltf.NewDecoderFS(bytes.NewReader(data), vfs.FS(ctx.System, dir)).Decode(doc); err != nil {
		return ctx.Wrap(err, "decoding document")
	}
	b := &gltfBuilder{
		doc:      doc,
		sc:       sc,
		ctx:      ctx,
		meshes:   make(map[int][]int),
		visited:  make([]bool, len(doc.Nodes)),
		material: scene.NoMaterial,
	}
	return b.build()
}

type gltfBuilder struct {
	doc *gltf.Document
	sc  *scene.Scene
	ctx *importer.ReadContext

	// images maps an image index to a texture path ("" when unusable).
	images    []string
	materials []int
	// meshes maps a glTF mesh to the scene meshes of its primitives.
	meshes  map[int][]int
	visited []bool
	// material is the lazily created default material.
	material int
}

func (b *gltfBuilder) build() error {
	if err := b.buildImages(); err != nil {
		return err
	}
	b.buildMaterials()

	roots, sceneName := b.sceneRoots()
	switch len(roots) {
	case 0:
		if sceneName == "" {
			sceneName = "gltf_root"
		}
		if _, err := b.sc.SetRoot(sceneName); err != nil {
			return err
		}
		b.sc.Flags |= scene.FlagIncomplete
		b.ctx.Logger.Warn("gltf scene has no nodes")
		return nil
	case 1:
		root, err := b.sc.SetRoot(b.nodeName(roots[0]))
		if err != nil {
			return err
		}
		b.visited[roots[0]] = true
		if err := b.fill(root, roots[0]); err != nil {
			return err
		}
	default:
		if sceneName == "" {
			sceneName = "gltf_root"
		}
		root, err := b.sc.SetRoot(sceneName)
		if err != nil {
			return err
		}
		for _, n := range roots {
			if err := b.attach(root, n); err != nil {
				return err
			}
		}
	}
	if len(b.sc.Meshes()) == 0 {
		b.sc.Flags |= scene.FlagIncomplete
	}
	return nil
}

// sceneRoots returns the root node indices of the default scene. Without
// scenes every node that is nobody's child is a root.
func (b *gltfBuilder) sceneRoots() ([]int, string) {
	doc := b.doc
	var nodes []int
	var name string
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			s = *doc.Scene
		}
		nodes, name = doc.Scenes[s].Nodes, doc.Scenes[s].Name
	} else {
		child := make([]bool, len(doc.Nodes))
		for _, n := range doc.Nodes {
			for _, c := range n.Children {
				if c >= 0 && c < len(child) {
					child[c] = true
				}
			}
		}
		for i := range doc.Nodes {
			if !child[i] {
				nodes = append(nodes, i)
			}
		}
	}
	roots := make([]int, 0, len(nodes))
	for _, n := range nodes {
		if n < 0 || n >= len(doc.Nodes) {
			b.ctx.Logger.Warn("scene references unknown node", zap.Int("node", n))
			continue
		}
		roots = append(roots, n)
	}
	return roots, name
}

func (b *gltfBuilder) nodeName(i int) string {
	if n := b.doc.Nodes[i].Name; n != "" {
		return n
	}
	return fmt.Sprintf("node%d", i)
}

func (b *gltfBuilder) attach(parent scene.NodeID, i int) error {
	if i < 0 || i >= len(b.doc.Nodes) {
		b.ctx.Logger.Warn("node references unknown child", zap.Int("node", i))
		return nil
	}
	if b.visited[i] {
		b.ctx.Logger.Warn("node listed twice, keeping first placement", zap.Int("node", i))
		return nil
	}
	b.visited[i] = true
	id, err := b.sc.AddChild(parent, b.nodeName(i))
	if err != nil {
		return err
	}
	return b.fill(id, i)
}

func (b *gltfBuilder) fill(id scene.NodeID, i int) error {
	gn := b.doc.Nodes[i]
	node := b.sc.Node(id)
	node.Transform = gltfNodeTransform(gn)

	if gn.Mesh != nil {
		meshes, err := b.mesh(*gn.Mesh)
		if err != nil {
			return err
		}
		node.Meshes = append(node.Meshes, meshes...)
	}
	if gn.Camera != nil {
		b.camera(*gn.Camera, node.Name)
	}
	for _, c := range gn.Children {
		if err := b.attach(id, c); err != nil {
			return err
		}
	}
	return nil
}

func gltfNodeTransform(n *gltf.Node) math.Mat4 {
	mat := n.MatrixOrDefault()
	var m math.Mat4
	for k, v := range mat {
		m[k] = float32(v)
	}
	if !m.IsIdentity(0) {
		return m
	}
	t, r, s := n.TranslationOrDefault(), n.RotationOrDefault(), n.ScaleOrDefault()
	return math.Compose(
		math.Vec3{X: float32(t[0]), Y: float32(t[1]), Z: float32(t[2])},
		math.QuatXYZW([4]float32{float32(r[0]), float32(r[1]), float32(r[2]), float32(r[3])}).Normalize(),
		math.Vec3{X: float32(s[0]), Y: float32(s[1]), Z: float32(s[2])},
	)
}

func (b *gltfBuilder) camera(i int, nodeName string) {
	if i < 0 || i >= len(b.doc.Cameras) {
		b.ctx.Logger.Warn("node references unknown camera", zap.Int("camera", i))
		return
	}
	gc := b.doc.Cameras[i]
	cam := scene.NewCamera(nodeName)
	cam.LookAt = math.Vec3{Z: -1}
	switch {
	case gc.Perspective != nil:
		p := gc.Perspective
		fov := p.Yfov
		if p.AspectRatio != nil && *p.AspectRatio > 0 {
			cam.Aspect = float32(*p.AspectRatio)
			fov = 2 * stdmath.Atan(stdmath.Tan(p.Yfov/2)*(*p.AspectRatio))
		}
		if fov > 0 {
			cam.HorizontalFOV = float32(fov)
		}
		if p.Znear > 0 {
			cam.ClipNear = float32(p.Znear)
		}
		if p.Zfar != nil {
			cam.ClipFar = float32(*p.Zfar)
		}
	case gc.Orthographic != nil:
		o := gc.Orthographic
		cam.HorizontalFOV = 0
		if o.Znear > 0 {
			cam.ClipNear = float32(o.Znear)
		}
		cam.ClipFar = float32(o.Zfar)
		if o.Ymag != 0 {
			cam.Aspect = float32(o.Xmag / o.Ymag)
		}
	}
	if cam.ClipFar <= cam.ClipNear {
		cam.ClipFar = cam.ClipNear * 1000
	}
	b.sc.AddCamera(cam)
}

// mesh converts every primitive of glTF mesh i once and returns the scene
// mesh indices.
func (b *gltfBuilder) mesh(i int) ([]int, error) {
	if out, ok := b.meshes[i]; ok {
		return out, nil
	}
	if i < 0 || i >= len(b.doc.Meshes) {
		return nil, b.ctx.Errorf("mesh %d out of range [0,%d)", i, len(b.doc.Meshes))
	}
	gm := b.doc.Meshes[i]
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("mesh%d", i)
	}
	var out []int
	for pi, prim := range gm.Primitives {
		pname := name
		if len(gm.Primitives) > 1 {
			pname = fmt.Sprintf("%s_%d", name, pi)
		}
		m, err := b.primitive(pname, prim)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		out = append(out, b.sc.AddMesh(m))
	}
	b.meshes[i] = out
	return out, nil
}

func (b *gltfBuilder) accessor(i int) (*gltf.Accessor, error) {
	if i < 0 || i >= len(b.doc.Accessors) {
		return nil, b.ctx.Errorf("accessor %d out of range [0,%d)", i, len(b.doc.Accessors))
	}
	return b.doc.Accessors[i], nil
}

func (b *gltfBuilder) primitive(name string, p *gltf.Primitive) (*scene.Mesh, error) {
	log := b.ctx.Logger.With(zap.String("mesh", name))
	posIdx, ok := p.Attributes["POSITION"]
	if !ok {
		log.Warn("primitive has no positions, skipped")
		return nil, nil
	}
	acc, err := b.accessor(posIdx)
	if err != nil {
		return nil, err
	}
	pos, err := modeler.ReadPosition(b.doc, acc, nil)
	if err != nil {
		return nil, b.ctx.Wrap(err, name+": positions")
	}
	n := len(pos)
	if n == 0 {
		log.Warn("primitive has no vertices, skipped")
		return nil, nil
	}

	m := scene.NewMesh(name)
	m.Positions = make([]math.Vec3, n)
	for k, v := range pos {
		m.Positions[k] = math.V3(v)
	}

	if idx, ok := p.Attributes["NORMAL"]; ok {
		if acc, err := b.accessor(idx); err == nil {
			normals, err := modeler.ReadNormal(b.doc, acc, nil)
			switch {
			case err != nil:
				return nil, b.ctx.Wrap(err, name+": normals")
			case len(normals) != n:
				log.Warn("normal count mismatch, normals dropped", zap.Int("normals", len(normals)), zap.Int("vertices", n))
			default:
				m.Normals = make([]math.Vec3, n)
				for k, v := range normals {
					m.Normals[k] = math.V3(v)
				}
			}
		}
	}

	if idx, ok := p.Attributes["TANGENT"]; ok && m.Normals != nil {
		if acc, err := b.accessor(idx); err == nil {
			tangents, err := modeler.ReadTangent(b.doc, acc, nil)
			switch {
			case err != nil:
				return nil, b.ctx.Wrap(err, name+": tangents")
			case len(tangents) != n:
				log.Warn("tangent count mismatch, tangents dropped")
			default:
				m.Tangents = make([]math.Vec3, n)
				m.Bitangents = make([]math.Vec3, n)
				for k, v := range tangents {
					t := math.Vec3{X: v[0], Y: v[1], Z: v[2]}
					m.Tangents[k] = t
					m.Bitangents[k] = m.Normals[k].Cross(t).Scale(v[3])
				}
			}
		}
	}

	for ch := 0; ch < scene.MaxUVChannels; ch++ {
		idx, ok := p.Attributes[fmt.Sprintf("TEXCOORD_%d", ch)]
		if !ok {
			break
		}
		acc, err := b.accessor(idx)
		if err != nil {
			return nil, err
		}
		uvs, err := modeler.ReadTextureCoord(b.doc, acc, nil)
		if err != nil {
			return nil, b.ctx.Wrap(err, fmt.Sprintf("%s: texcoord %d", name, ch))
		}
		if len(uvs) != n {
			log.Warn("texcoord count mismatch, channel dropped", zap.Int("channel", ch))
			break
		}
		m.UVs[ch] = make([]math.Vec3, n)
		m.UVComponents[ch] = 2
		for k, v := range uvs {
			m.UVs[ch][k] = math.Vec3{X: v[0], Y: v[1]}
		}
	}

	if idx, ok := p.Attributes["COLOR_0"]; ok {
		acc, err := b.accessor(idx)
		if err != nil {
			return nil, err
		}
		colors, err := modeler.ReadColor(b.doc, acc, nil)
		if err != nil {
			return nil, b.ctx.Wrap(err, name+": colors")
		}
		if len(colors) == n {
			m.Colors[0] = make([]math.Vec4, n)
			for k, c := range colors {
				m.Colors[0][k] = math.ColorFromRGBA8(c[0], c[1], c[2], c[3])
			}
		}
	}

	var indices []uint32
	if p.Indices != nil {
		acc, err := b.accessor(*p.Indices)
		if err != nil {
			return nil, err
		}
		if indices, err = modeler.ReadIndices(b.doc, acc, nil); err != nil {
			return nil, b.ctx.Wrap(err, name+": indices")
		}
		for _, v := range indices {
			if int(v) >= n {
				return nil, b.ctx.Errorf("%s: index %d out of range [0,%d)", name, v, n)
			}
		}
	} else {
		indices = make([]uint32, n)
		for k := range indices {
			indices[k] = uint32(k)
		}
	}
	m.Faces = gltfFaces(p.Mode, indices)
	if len(m.Faces) == 0 {
		log.Warn("primitive has no faces, skipped", zap.Int("mode", int(p.Mode)))
		return nil, nil
	}
	m.UpdatePrimitiveTypes()
	m.MaterialIndex = b.primitiveMaterial(p.Material)
	b.ensureUVs(m)
	return m, nil
}

// gltfFaces turns an index list into faces. Strips and fans become
// triangles and line loops are closed.
func gltfFaces(mode gltf.PrimitiveMode, idx []uint32) []scene.Face {
	var faces []scene.Face
	switch mode {
	case gltf.PrimitivePoints:
		for _, v := range idx {
			faces = append(faces, scene.Face{Indices: []uint32{v}})
		}
	case gltf.PrimitiveLines:
		for k := 0; k+1 < len(idx); k += 2 {
			faces = append(faces, scene.Face{Indices: []uint32{idx[k], idx[k+1]}})
		}
	case gltf.PrimitiveLineStrip, gltf.PrimitiveLineLoop:
		for k := 0; k+1 < len(idx); k++ {
			faces = append(faces, scene.Face{Indices: []uint32{idx[k], idx[k+1]}})
		}
		if mode == gltf.PrimitiveLineLoop && len(idx) > 2 {
			faces = append(faces, scene.Face{Indices: []uint32{idx[len(idx)-1], idx[0]}})
		}
	case gltf.PrimitiveTriangleStrip:
		for k := 0; k+2 < len(idx); k++ {
			if k%2 == 0 {
				faces = append(faces, scene.Tri(idx[k], idx[k+1], idx[k+2]))
			} else {
				faces = append(faces, scene.Tri(idx[k+1], idx[k], idx[k+2]))
			}
		}
	case gltf.PrimitiveTriangleFan:
		for k := 1; k+1 < len(idx); k++ {
			faces = append(faces, scene.Tri(idx[0], idx[k], idx[k+1]))
		}
	default:
		for k := 0; k+2 < len(idx); k += 3 {
			faces = append(faces, scene.Tri(idx[k], idx[k+1], idx[k+2]))
		}
	}
	return faces
}

func (b *gltfBuilder) primitiveMaterial(i *int) int {
	if i != nil && *i >= 0 && *i < len(b.materials) {
		return b.materials[*i]
	}
	if b.material == scene.NoMaterial {
		mat := scene.NewMaterial("gltf_default")
		mat.Props.SetVec3(props.KeyColorDiffuse, math.Vec3{X: 1, Y: 1, Z: 1})
		mat.Props.SetFloat(props.KeyMetallicFactor, 1)
		mat.Props.SetFloat(props.KeyRoughness, 1)
		mat.Props.SetInt(props.KeyShadingModel, props.ShadingPBR)
		b.material = b.sc.AddMaterial(mat)
	}
	return b.material
}

// ensureUVs adds a zero channel for every texture slot of m's material
// whose UV set the primitive does not provide.
func (b *gltfBuilder) ensureUVs(m *scene.Mesh) {
	mat := b.sc.Material(m.MaterialIndex)
	if mat == nil {
		return
	}
	for _, ref := range mat.Textures() {
		ch := ref.UVChannel
		if ch < 0 || ch >= scene.MaxUVChannels || m.HasUVs(ch) {
			continue
		}
		b.ctx.Logger.Warn("material samples a missing uv set, filling with zeros",
			zap.String("mesh", m.Name), zap.Int("channel", ch))
		m.UVs[ch] = make([]math.Vec3, m.NumVertices())
		m.UVComponents[ch] = 2
	}
}

func (b *gltfBuilder) buildMaterials() {
	b.materials = make([]int, len(b.doc.Materials))
	for i, gm := range b.doc.Materials {
		b.materials[i] = b.sc.AddMaterial(b.convertMaterial(i, gm))
	}
}

func (b *gltfBuilder) convertMaterial(i int, gm *gltf.Material) *scene.Material {
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("material%d", i)
	}
	mat := scene.NewMaterial(name)
	p := mat.Props
	p.SetInt(props.KeyShadingModel, props.ShadingPBR)

	base := [4]float64{1, 1, 1, 1}
	metallic, roughness := 1.0, 1.0
	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		base = pbr.BaseColorFactorOrDefault()
		metallic = pbr.MetallicFactorOrDefault()
		roughness = pbr.RoughnessFactorOrDefault()
		if t := pbr.BaseColorTexture; t != nil {
			b.texture(mat, props.TextureBaseColor, t.Index, t.TexCoord)
			b.texture(mat, props.TextureDiffuse, t.Index, t.TexCoord)
		}
		if t := pbr.MetallicRoughnessTexture; t != nil {
			b.texture(mat, props.TextureMetalness, t.Index, t.TexCoord)
			b.texture(mat, props.TextureRoughness, t.Index, t.TexCoord)
		}
	}
	p.SetVec3(props.KeyColorDiffuse, math.Vec3{X: float32(base[0]), Y: float32(base[1]), Z: float32(base[2])})
	p.SetFloat(props.KeyOpacity, base[3])
	p.SetFloat(props.KeyMetallicFactor, metallic)
	p.SetFloat(props.KeyRoughness, roughness)
	p.SetVec3(props.KeyColorEmissive, math.Vec3{X: float32(gm.EmissiveFactor[0]), Y: float32(gm.EmissiveFactor[1]), Z: float32(gm.EmissiveFactor[2])})
	p.SetBool(props.KeyTwoSided, gm.DoubleSided)

	switch gm.AlphaMode {
	case gltf.AlphaMask:
		p.SetString(KeyGLTFAlphaMode, "MASK")
		p.SetFloat(KeyGLTFAlphaCutoff, gm.AlphaCutoffOrDefault())
	case gltf.AlphaBlend:
		p.SetString(KeyGLTFAlphaMode, "BLEND")
	default:
		p.SetString(KeyGLTFAlphaMode, "OPAQUE")
	}

	if t := gm.NormalTexture; t != nil && t.Index != nil {
		b.texture(mat, props.TextureNormals, *t.Index, t.TexCoord)
		p.SetFloat(KeyGLTFNormalScale, t.ScaleOrDefault())
	}
	if t := gm.OcclusionTexture; t != nil && t.Index != nil {
		b.texture(mat, props.TextureLightmap, *t.Index, t.TexCoord)
	}
	if t := gm.EmissiveTexture; t != nil {
		b.texture(mat, props.TextureEmissive, t.Index, t.TexCoord)
	}
	return mat
}

func (b *gltfBuilder) texture(mat *scene.Material, typ props.TextureType, tex, uv int) {
	if tex < 0 || tex >= len(b.doc.Textures) {
		b.ctx.Logger.Warn("material references unknown texture", zap.Int("texture", tex))
		return
	}
	src := b.doc.Textures[tex].Source
	if src == nil || *src < 0 || *src >= len(b.images) || b.images[*src] == "" {
		return
	}
	mat.AddTexture(props.TextureRef{
		Type:      typ,
		Path:      b.images[*src],
		Mapping:   props.MappingUV,
		UVChannel: uv,
	})
}

// buildImages resolves every image to a texture path. Images held in a
// buffer view or a data URI become embedded textures ("*N"); other URIs are
// kept as relative paths.
func (b *gltfBuilder) buildImages() error {
	b.images = make([]string, len(b.doc.Images))
	for i, img := range b.doc.Images {
		var data []byte
		switch {
		case img.BufferView != nil:
			d, err := b.bufferView(*img.BufferView)
			if err != nil {
				return b.ctx.Wrap(err, fmt.Sprintf("image %d", i))
			}
			data = d
		case img.IsEmbeddedResource():
			d, err := img.MarshalData()
			if err != nil {
				return b.ctx.Wrap(err, fmt.Sprintf("image %d", i))
			}
			data = d
		default:
			b.images[i] = img.URI
			continue
		}
		if len(data) == 0 {
			b.ctx.Logger.Warn("image has no data", zap.Int("image", i))
			continue
		}
		idx := b.sc.AddTexture(&scene.Texture{
			Name:       img.Name,
			FormatHint: imageFormatHint(img.MimeType, data),
			Data:       data,
		})
		b.images[i] = fmt.Sprintf("%s%d", props.EmbeddedPrefix, idx)
	}
	return nil
}

func (b *gltfBuilder) bufferView(i int) ([]byte, error) {
	if i < 0 || i >= len(b.doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d out of range", i)
	}
	bv := b.doc.BufferViews[i]
	if bv.Buffer < 0 || bv.Buffer >= len(b.doc.Buffers) {
		return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
	}
	data := b.doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("buffer view %d [%d,%d) exceeds buffer of %d bytes", i, bv.ByteOffset, end, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

func imageFormatHint(mime string, data []byte) string {
	switch {
	case mime == "image/png", bytes.HasPrefix(data, []byte("\x89PNG")):
		return "png"
	case mime == "image/jpeg", bytes.HasPrefix(data, []byte{0xff, 0xd8}):
		return "jpg"
	case mime != "":
		return strings.TrimPrefix(mime, "image/")
	}
	return "bin"
}
