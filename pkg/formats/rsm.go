// RSM (Resource Model) format parser for 3D models.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Faultbox/scenery/pkg/encoding"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidNodeCount      = errors.New("invalid RSM node count")
	ErrInvalidRSMCount       = errors.New("invalid RSM element count")
)

// RSMMagic starts every RSM file.
const RSMMagic = "GRSM"

// Upper bounds on element counts, well above anything shipped with the game.
const (
	maxRSMNodes    = 10000
	maxRSMElements = 1 << 20
	rsmNameSize    = 40
)

// RSMVersion represents the RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	if v.Major > major {
		return true
	}
	if v.Major == major && v.Minor >= minor {
		return true
	}
	return false
}

// RSMShadingType represents the shading mode for rendering.
type RSMShadingType int32

const (
	RSMShadingNone   RSMShadingType = 0 // No shading
	RSMShadingFlat   RSMShadingType = 1 // Flat shading
	RSMShadingSmooth RSMShadingType = 2 // Smooth shading
)

// String returns a human-readable shading type name.
func (s RSMShadingType) String() string {
	switch s {
	case RSMShadingNone:
		return "None"
	case RSMShadingFlat:
		return "Flat"
	case RSMShadingSmooth:
		return "Smooth"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RSMTexCoord represents a texture coordinate with optional vertex color.
type RSMTexCoord struct {
	Color [4]uint8 // RGBA vertex color (v1.2+)
	U, V  float32  // Texture coordinates
}

// RSMFace represents a triangle face in a mesh.
type RSMFace struct {
	VertexIDs   [3]uint16 // Indices into vertex array
	TexCoordIDs [3]uint16 // Indices into texcoord array
	TextureID   uint16    // Index into node's texture array
	Padding     uint16
	TwoSide     int32 // Double-sided rendering flag
	SmoothGroup int32 // Smoothing group ID (v1.2+)
}

// RSMPosKeyframe represents a position animation keyframe.
type RSMPosKeyframe struct {
	Frame    int32
	Position [3]float32
}

// RSMRotKeyframe represents a rotation animation keyframe.
type RSMRotKeyframe struct {
	Frame      int32
	Quaternion [4]float32 // X, Y, Z, W
}

// RSMScaleKeyframe represents a scale animation keyframe.
type RSMScaleKeyframe struct {
	Frame int32
	Scale [3]float32
}

// RSMNode represents a node in the model hierarchy.
type RSMNode struct {
	Name       string  // Node name
	Parent     string  // Parent node name (empty for root)
	TextureIDs []int32 // Indices into RSM.Textures array

	// Transform components
	Matrix   [9]float32 // 3x3 rotation matrix
	Offset   [3]float32 // Pivot point offset
	Position [3]float32 // Translation
	RotAngle float32    // Rotation angle (radians)
	RotAxis  [3]float32 // Rotation axis
	Scale    [3]float32 // Scale factors

	// Mesh data
	Vertices  [][3]float32
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	// Animation keyframes
	PosKeys   []RSMPosKeyframe // v < 1.5
	RotKeys   []RSMRotKeyframe
	ScaleKeys []RSMScaleKeyframe // v >= 1.5
}

// RSMVolumeBox represents a bounding volume box.
type RSMVolumeBox struct {
	Size     [3]float32
	Position [3]float32
	Rotation [3]float32 // Euler angles
	Flag     int32      // v1.3+
}

// RSM represents a parsed RSM (Resource Model) file.
type RSM struct {
	Version     RSMVersion
	AnimLength  int32 // Animation length in milliseconds
	Shading     RSMShadingType
	Alpha       float32 // Global alpha (0-1)
	Textures    []string
	RootNode    string
	Nodes       []RSMNode
	VolumeBoxes []RSMVolumeBox
}

// rsmReader reads little-endian values and remembers the first failure, so a
// parse can be written as a straight sequence of reads checked once.
type rsmReader struct {
	r       *bytes.Reader
	charset encoding.Charset
	err     error
}

func (r *rsmReader) read(v any) {
	if r.err != nil {
		return
	}
	if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
		r.err = ErrTruncatedRSMData
	}
}

func (r *rsmReader) int32() int32 {
	var v int32
	r.read(&v)
	return v
}

func (r *rsmReader) string(size int) string {
	if r.err != nil {
		return ""
	}
	if r.r.Len() < size {
		r.err = ErrTruncatedRSMData
		return ""
	}
	buf := make([]byte, size)
	_, _ = r.r.Read(buf)
	return r.charset.DecodeFixed(buf)
}

func (r *rsmReader) skip(n int64) {
	if r.err != nil {
		return
	}
	if int64(r.r.Len()) < n {
		r.err = ErrTruncatedRSMData
		return
	}
	_, _ = r.r.Seek(n, 1)
}

// count reads an element count and checks that the remaining data can hold
// that many records of recordSize bytes.
func (r *rsmReader) count(what string, recordSize int) int {
	n := r.int32()
	if r.err != nil {
		return 0
	}
	if n < 0 || n > maxRSMElements {
		r.err = fmt.Errorf("%w: %d %s", ErrInvalidRSMCount, n, what)
		return 0
	}
	if int64(n)*int64(recordSize) > int64(r.r.Len()) {
		r.err = fmt.Errorf("%w: %d %s", ErrTruncatedRSMData, n, what)
		return 0
	}
	return int(n)
}

// ParseRSM parses RSM data from a byte slice. Names are decoded as EUC-KR.
func ParseRSM(data []byte) (*RSM, error) {
	return DecodeRSM(data, encoding.EUCKR)
}

// DecodeRSM parses RSM data, decoding names with charset.
func DecodeRSM(data []byte, charset encoding.Charset) (*RSM, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != RSMMagic {
		return nil, ErrInvalidRSMMagic
	}

	r := &rsmReader{r: bytes.NewReader(data[4:]), charset: charset}
	var verMajor, verMinor uint8
	r.read(&verMajor)
	r.read(&verMinor)

	rsm := &RSM{
		Version: RSMVersion{Major: verMajor, Minor: verMinor},
		Alpha:   1,
	}

	// Check supported versions (1.1 - 2.3)
	if rsm.Version.Major < 1 || rsm.Version.Major > 2 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, rsm.Version)
	}

	rsm.AnimLength = r.int32()
	rsm.Shading = RSMShadingType(r.int32())

	if rsm.Version.AtLeast(1, 4) {
		var alpha uint8
		r.read(&alpha)
		rsm.Alpha = float32(alpha) / 255.0
	}

	// 16 reserved bytes
	r.skip(16)

	textureCount := r.count("textures", rsmNameSize)
	rsm.Textures = make([]string, textureCount)
	for i := range rsm.Textures {
		rsm.Textures[i] = r.string(rsmNameSize)
	}

	rsm.RootNode = r.string(rsmNameSize)

	nodeCount := r.int32()
	if r.err != nil {
		return nil, r.err
	}
	if nodeCount < 0 || nodeCount > maxRSMNodes {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNodeCount, nodeCount)
	}

	rsm.Nodes = make([]RSMNode, nodeCount)
	for i := range rsm.Nodes {
		parseRSMNode(r, rsm.Version, &rsm.Nodes[i])
		if r.err != nil {
			return nil, fmt.Errorf("parsing node %d: %w", i, r.err)
		}
	}

	// Volume boxes are optional trailing data.
	if r.r.Len() >= 4 {
		boxSize := 36
		if rsm.Version.AtLeast(1, 3) {
			boxSize += 4
		}
		boxCount := r.count("volume boxes", boxSize)
		rsm.VolumeBoxes = make([]RSMVolumeBox, boxCount)
		for i := range rsm.VolumeBoxes {
			box := &rsm.VolumeBoxes[i]
			r.read(&box.Size)
			r.read(&box.Position)
			r.read(&box.Rotation)
			if rsm.Version.AtLeast(1, 3) {
				box.Flag = r.int32()
			}
		}
		if r.err != nil {
			return nil, fmt.Errorf("parsing volume boxes: %w", r.err)
		}
	}

	return rsm, nil
}

// parseRSMNode parses a single node. Failures are left in r.err.
func parseRSMNode(r *rsmReader, version RSMVersion, node *RSMNode) {
	node.Name = r.string(rsmNameSize)
	node.Parent = r.string(rsmNameSize)

	node.TextureIDs = make([]int32, r.count("texture ids", 4))
	r.read(node.TextureIDs)

	r.read(&node.Matrix)
	r.read(&node.Offset)
	r.read(&node.Position)
	r.read(&node.RotAngle)
	r.read(&node.RotAxis)
	r.read(&node.Scale)

	node.Vertices = make([][3]float32, r.count("vertices", 12))
	r.read(node.Vertices)

	tcSize := 8
	if version.AtLeast(1, 2) {
		tcSize += 4
	}
	node.TexCoords = make([]RSMTexCoord, r.count("texture coordinates", tcSize))
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		if version.AtLeast(1, 2) {
			r.read(&tc.Color)
		} else {
			tc.Color = [4]uint8{255, 255, 255, 255}
		}
		r.read(&tc.U)
		r.read(&tc.V)
	}

	faceSize := 24
	if version.AtLeast(1, 2) {
		faceSize += 4
	}
	node.Faces = make([]RSMFace, r.count("faces", faceSize))
	for i := range node.Faces {
		face := &node.Faces[i]
		r.read(&face.VertexIDs)
		r.read(&face.TexCoordIDs)
		r.read(&face.TextureID)
		r.read(&face.Padding)
		face.TwoSide = r.int32()
		if version.AtLeast(1, 2) {
			face.SmoothGroup = r.int32()
		}
	}

	if !version.AtLeast(1, 5) {
		node.PosKeys = make([]RSMPosKeyframe, r.count("position keys", 16))
		r.read(node.PosKeys)
	}

	node.RotKeys = make([]RSMRotKeyframe, r.count("rotation keys", 20))
	r.read(node.RotKeys)

	if version.AtLeast(1, 5) {
		node.ScaleKeys = make([]RSMScaleKeyframe, r.count("scale keys", 16))
		r.read(node.ScaleKeys)
	}
}

// GetTotalVertexCount returns the total number of vertices across all nodes.
func (rsm *RSM) GetTotalVertexCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Vertices)
	}
	return total
}

// GetTotalFaceCount returns the total number of faces across all nodes.
func (rsm *RSM) GetTotalFaceCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Faces)
	}
	return total
}

// GetNodeByName returns a node by its name, or nil if not found.
func (rsm *RSM) GetNodeByName(name string) *RSMNode {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return &rsm.Nodes[i]
		}
	}
	return nil
}

// GetRootNode returns the root node (first node matching RootNode name).
func (rsm *RSM) GetRootNode() *RSMNode {
	return rsm.GetNodeByName(rsm.RootNode)
}

// GetChildNodes returns all nodes that have the given parent name.
func (rsm *RSM) GetChildNodes(parentName string) []*RSMNode {
	var children []*RSMNode
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Parent == parentName {
			children = append(children, &rsm.Nodes[i])
		}
	}
	return children
}

// HasAnimation returns true if the model has any animation keyframes.
func (rsm *RSM) HasAnimation() bool {
	for _, node := range rsm.Nodes {
		if len(node.PosKeys) > 0 || len(node.RotKeys) > 0 || len(node.ScaleKeys) > 0 {
			return true
		}
	}
	return false
}
