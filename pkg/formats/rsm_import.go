package formats

import (
	"cmp"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/encoding"
	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
)

// RSM material property keys.
var (
	KeyRSMAlpha   = props.FormatKey("rsm", "alpha")
	KeyRSMShading = props.FormatKey("rsm", "shading")
)

// RSMFormat imports Ragnarok Online resource models.
type RSMFormat struct{}

// Info implements importer.Format.
func (RSMFormat) Info() importer.Info {
	return importer.Info{
		Name:              "rsm",
		Description:       "Ragnarok Online resource model",
		Extensions:        []string{"rsm"},
		SupportsSignature: true,
		Flags:             importer.FlagBinary,
	}
}

// CanRead implements importer.Format.
func (f RSMFormat) CanRead(name string, probe importer.Probe, checkSig bool) bool {
	if !checkSig {
		return f.Info().HasExtension(importer.ExtensionOf(name))
	}
	return probe.HasPrefix(RSMMagic)
}

// Read implements importer.Format.
func (RSMFormat) Read(ctx *importer.ReadContext, sc *scene.Scene) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	charset, err := encoding.ParseCharset(ctx.Config.StringOr(importer.ConfigKeyCharset, string(encoding.EUCKR)))
	if err != nil {
		return ctx.Wrap(err, "charset")
	}
	rsm, err := DecodeRSM(data, charset)
	if err != nil {
		return ctx.Wrap(err, "decoding model")
	}
	b := &rsmBuilder{rsm: rsm, sc: sc, ctx: ctx}
	return b.build()
}

type rsmBuilder struct {
	rsm *RSM
	sc  *scene.Scene
	ctx *importer.ReadContext

	nodeIDs []scene.NodeID
	// materials maps a global texture index (-1 for none) to a material.
	materials map[int]int
}

func (b *rsmBuilder) build() error {
	rsm := b.rsm
	if len(rsm.Nodes) == 0 {
		return b.ctx.Errorf("model has no nodes")
	}

	parents := b.resolveParents()
	rootIdx := -1
	for i, p := range parents {
		if p < 0 && rsm.Nodes[i].Name == rsm.RootNode {
			rootIdx = i
			break
		}
	}

	rootName := rsm.RootNode
	if rootIdx >= 0 {
		rootName = rsm.Nodes[rootIdx].Name
	}
	if rootName == "" {
		rootName = "rsm_root"
	}
	root, err := b.sc.SetRoot(rootName)
	if err != nil {
		return err
	}

	b.nodeIDs = make([]scene.NodeID, len(rsm.Nodes))
	for i := range b.nodeIDs {
		b.nodeIDs[i] = scene.NoNode
	}
	if rootIdx >= 0 {
		b.nodeIDs[rootIdx] = root
		b.sc.Node(root).Transform = rsmNodeTransform(&rsm.Nodes[rootIdx])
	}
	for i := range rsm.Nodes {
		if err := b.attach(i, parents, root); err != nil {
			return err
		}
	}

	b.materials = make(map[int]int)
	for i := range rsm.Nodes {
		if err := b.buildMeshes(i); err != nil {
			return err
		}
	}
	if len(b.sc.Meshes()) == 0 {
		b.sc.Flags |= scene.FlagIncomplete
	}
	b.buildAnimation()

	b.ctx.Logger.Debug("rsm decoded",
		zap.Stringer("version", rsm.Version),
		zap.Int("nodes", len(rsm.Nodes)),
		zap.Int("textures", len(rsm.Textures)))
	return nil
}

// resolveParents returns each node's parent index, -1 for top-level nodes.
// Unknown, self and cyclic parents make a node top-level.
func (b *rsmBuilder) resolveParents() []int {
	nodes := b.rsm.Nodes
	byName := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := byName[n.Name]; !dup {
			byName[n.Name] = i
		}
	}
	parents := make([]int, len(nodes))
	for i, n := range nodes {
		parents[i] = -1
		if p, ok := byName[n.Parent]; ok && n.Parent != "" && p != i {
			parents[i] = p
		}
	}
	for i := range parents {
		seen := map[int]bool{i: true}
		for p := parents[i]; p >= 0; p = parents[p] {
			if seen[p] {
				b.ctx.Logger.Warn("rsm node hierarchy has a cycle", zap.String("node", nodes[i].Name))
				parents[i] = -1
				break
			}
			seen[p] = true
		}
	}
	return parents
}

func (b *rsmBuilder) attach(i int, parents []int, root scene.NodeID) error {
	if b.nodeIDs[i] != scene.NoNode {
		return nil
	}
	parent := root
	if p := parents[i]; p >= 0 {
		if err := b.attach(p, parents, root); err != nil {
			return err
		}
		parent = b.nodeIDs[p]
	}
	id, err := b.sc.AddChild(parent, b.rsm.Nodes[i].Name)
	if err != nil {
		return err
	}
	b.nodeIDs[i] = id
	b.sc.Node(id).Transform = rsmNodeTransform(&b.rsm.Nodes[i])
	return nil
}

// rsmNodeTransform is the part of a node transform its children inherit:
// position, rotation, then scale. Rotation key frames replace the static
// axis-angle rotation and are carried by the animation instead.
func rsmNodeTransform(n *RSMNode) math.Mat4 {
	m := math.Translate(n.Position[0], n.Position[1], n.Position[2])
	if len(n.RotKeys) == 0 && n.RotAngle != 0 {
		axis := math.V3(n.RotAxis)
		if axis.Length() > 1e-6 {
			m = m.Mul(math.RotateAxis(axis.Normalize(), n.RotAngle))
		}
	}
	return m.Mul(math.Scale(n.Scale[0], n.Scale[1], n.Scale[2]))
}

// rsmVertexTransform is applied to a node's vertices only: pivot offset
// and the 3x3 matrix.
func rsmVertexTransform(n *RSMNode) math.Mat4 {
	return math.Translate(n.Offset[0], n.Offset[1], n.Offset[2]).Mul(math.FromMat3x3(n.Matrix))
}

type rsmCorner struct {
	vertex, texCoord uint16
}

// buildMeshes emits one mesh per texture used by node i.
func (b *rsmBuilder) buildMeshes(i int) error {
	node := &b.rsm.Nodes[i]
	if len(node.Faces) == 0 {
		return nil
	}
	vt := rsmVertexTransform(node)
	// Nodes without texture coordinates get a zero UV channel so textured
	// materials stay usable.
	hasUV := len(node.TexCoords) > 0

	type group struct {
		mesh    *scene.Mesh
		corners map[rsmCorner]uint32
	}
	groups := make(map[int]*group)
	var order []int

	for fi, face := range node.Faces {
		for k := 0; k < 3; k++ {
			if int(face.VertexIDs[k]) >= len(node.Vertices) {
				return b.ctx.Errorf("node %q face %d: vertex index %d out of range [0,%d)",
					node.Name, fi, face.VertexIDs[k], len(node.Vertices))
			}
			if hasUV && int(face.TexCoordIDs[k]) >= len(node.TexCoords) {
				return b.ctx.Errorf("node %q face %d: texture coordinate index %d out of range [0,%d)",
					node.Name, fi, face.TexCoordIDs[k], len(node.TexCoords))
			}
		}

		tex := -1
		if int(face.TextureID) < len(node.TextureIDs) {
			if t := int(node.TextureIDs[face.TextureID]); t >= 0 && t < len(b.rsm.Textures) {
				tex = t
			}
		}
		g, ok := groups[tex]
		if !ok {
			m := scene.NewMesh(fmt.Sprintf("%s_%d", node.Name, len(order)))
			m.MaterialIndex = b.material(tex)
			m.UVs[0] = []math.Vec3{}
			m.UVComponents[0] = 2
			if hasUV {
				m.Colors[0] = []math.Vec4{}
			}
			g = &group{mesh: m, corners: make(map[rsmCorner]uint32)}
			groups[tex] = g
			order = append(order, tex)
		}

		var idx [3]uint32
		for k := 0; k < 3; k++ {
			c := rsmCorner{face.VertexIDs[k], face.TexCoordIDs[k]}
			if !hasUV {
				c.texCoord = 0
			}
			v, ok := g.corners[c]
			if !ok {
				m := g.mesh
				v = uint32(len(m.Positions))
				m.Positions = append(m.Positions, vt.TransformPoint(math.V3(node.Vertices[c.vertex])))
				var uv math.Vec3
				if hasUV {
					tc := node.TexCoords[c.texCoord]
					uv = math.Vec3{X: tc.U, Y: tc.V}
					m.Colors[0] = append(m.Colors[0], math.ColorFromRGBA8(tc.Color[0], tc.Color[1], tc.Color[2], tc.Color[3]))
				}
				m.UVs[0] = append(m.UVs[0], uv)
				g.corners[c] = v
			}
			idx[k] = v
		}
		g.mesh.Faces = append(g.mesh.Faces, scene.Tri(idx[0], idx[1], idx[2]))
		if face.TwoSide != 0 {
			g.mesh.Faces = append(g.mesh.Faces, scene.Tri(idx[2], idx[1], idx[0]))
		}
	}

	sn := b.sc.Node(b.nodeIDs[i])
	for _, tex := range order {
		m := groups[tex].mesh
		m.UpdatePrimitiveTypes()
		sn.Meshes = append(sn.Meshes, b.sc.AddMesh(m))
	}
	return nil
}

// material returns the material for a global texture index, creating it on
// first use. -1 selects an untextured material.
func (b *rsmBuilder) material(tex int) int {
	if idx, ok := b.materials[tex]; ok {
		return idx
	}
	name := "rsm_untextured"
	if tex >= 0 {
		name = b.rsm.Textures[tex]
	}
	mat := scene.NewMaterial(name)
	mat.Props.SetVec3(props.KeyColorDiffuse, math.Vec3{X: 1, Y: 1, Z: 1})
	mat.Props.SetFloat(props.KeyOpacity, float64(b.rsm.Alpha))
	mat.Props.SetFloat(KeyRSMAlpha, float64(b.rsm.Alpha))
	mat.Props.SetInt(KeyRSMShading, int64(b.rsm.Shading))
	switch b.rsm.Shading {
	case RSMShadingNone:
		mat.Props.SetInt(props.KeyShadingModel, props.ShadingNone)
	case RSMShadingFlat:
		mat.Props.SetInt(props.KeyShadingModel, props.ShadingFlat)
	default:
		mat.Props.SetInt(props.KeyShadingModel, props.ShadingGouraud)
	}
	if tex >= 0 {
		mat.AddTexture(props.TextureRef{
			Type:    props.TextureDiffuse,
			Path:    encoding.NormalizeGRFPath("data/texture/" + b.rsm.Textures[tex]),
			Mapping: props.MappingUV,
		})
	}
	idx := b.sc.AddMaterial(mat)
	b.materials[tex] = idx
	return idx
}

// buildAnimation converts the key frames into one animation with a channel
// per animated node. Frames are milliseconds.
func (b *rsmBuilder) buildAnimation() {
	if !b.rsm.HasAnimation() {
		return
	}
	anim := &scene.Animation{
		Name:           "rsm",
		Duration:       float64(max(b.rsm.AnimLength, 0)),
		TicksPerSecond: 1000,
	}
	for i := range b.rsm.Nodes {
		n := &b.rsm.Nodes[i]
		if len(n.PosKeys) == 0 && len(n.RotKeys) == 0 && len(n.ScaleKeys) == 0 {
			continue
		}
		ch := scene.NodeAnim{NodeName: b.sc.Node(b.nodeIDs[i]).Name}
		for _, k := range n.PosKeys {
			ch.PositionKeys = append(ch.PositionKeys, scene.VectorKey{Time: float64(k.Frame), Value: math.V3(k.Position)})
		}
		for _, k := range n.RotKeys {
			ch.RotationKeys = append(ch.RotationKeys, scene.QuatKey{Time: float64(k.Frame), Value: math.QuatXYZW(k.Quaternion).Normalize()})
		}
		for _, k := range n.ScaleKeys {
			ch.ScalingKeys = append(ch.ScalingKeys, scene.VectorKey{Time: float64(k.Frame), Value: math.V3(k.Scale)})
		}
		byTime := func(x, y scene.VectorKey) int { return cmp.Compare(x.Time, y.Time) }
		slices.SortStableFunc(ch.PositionKeys, byTime)
		slices.SortStableFunc(ch.ScalingKeys, byTime)
		slices.SortStableFunc(ch.RotationKeys, func(x, y scene.QuatKey) int { return cmp.Compare(x.Time, y.Time) })
		for _, t := range []float64{lastVectorTime(ch.PositionKeys), lastVectorTime(ch.ScalingKeys), lastQuatTime(ch.RotationKeys)} {
			anim.Duration = max(anim.Duration, t)
		}
		anim.Channels = append(anim.Channels, ch)
	}
	b.sc.AddAnimation(anim)
}

func lastVectorTime(keys []scene.VectorKey) float64 {
	if len(keys) == 0 {
		return 0
	}
	return keys[len(keys)-1].Time
}

func lastQuatTime(keys []scene.QuatKey) float64 {
	if len(keys) == 0 {
		return 0
	}
	return keys[len(keys)-1].Time
}
