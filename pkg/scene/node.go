package scene

import (
	"errors"
	"fmt"

	"github.com/Faultbox/scenery/pkg/math"
	"github.com/Faultbox/scenery/pkg/props"
)

// Node tree errors.
var (
	ErrRootExists  = errors.New("scene already has a root node")
	ErrInvalidNode = errors.New("invalid node id")
	ErrNodeCycle   = errors.New("operation would create a cycle")
	ErrRootNode    = errors.New("operation not allowed on the root node")
)

// NodeID addresses a node in the scene's arena.
type NodeID int

// NoNode is the parent of the root and the result of failed lookups.
const NoNode NodeID = -1

// Node is a named transform in the hierarchy. Children are owned by the node;
// Parent is a non-owning back-reference. Meshes holds indices into the
// scene's mesh sequence.
type Node struct {
	Name      string
	Transform math.Mat4
	Meshes    []int
	Metadata  *props.Store

	parent   NodeID
	children []NodeID
}

// Parent returns the parent id, NoNode for the root.
func (n *Node) Parent() NodeID { return n.parent }

// Children returns the child ids in order. The slice must not be modified.
func (n *Node) Children() []NodeID { return n.children }

func (s *Scene) newNode(name string, parent NodeID) NodeID {
	s.nodes = append(s.nodes, &Node{
		Name:      name,
		Transform: math.Identity(),
		parent:    parent,
	})
	return NodeID(len(s.nodes) - 1)
}

func (s *Scene) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(s.nodes) && s.nodes[id] != nil
}

// SetRoot creates the root node. A scene has exactly one root.
func (s *Scene) SetRoot(name string) (NodeID, error) {
	if s.root != NoNode {
		return NoNode, ErrRootExists
	}
	s.root = s.newNode(name, NoNode)
	return s.root, nil
}

// Root returns the root id, NoNode for an empty scene.
func (s *Scene) Root() NodeID { return s.root }

// RootNode returns the root node, nil for an empty scene.
func (s *Scene) RootNode() *Node { return s.Node(s.root) }

// Node returns the node with the given id, nil when out of range.
func (s *Scene) Node(id NodeID) *Node {
	if !s.valid(id) {
		return nil
	}
	return s.nodes[id]
}

// NodeCount returns the number of nodes in the arena.
func (s *Scene) NodeCount() int { return len(s.nodes) }

// AddChild creates a node under parent and returns its id.
func (s *Scene) AddChild(parent NodeID, name string) (NodeID, error) {
	if !s.valid(parent) {
		return NoNode, fmt.Errorf("%w: parent %d", ErrInvalidNode, parent)
	}
	id := s.newNode(name, parent)
	s.nodes[parent].children = append(s.nodes[parent].children, id)
	return id, nil
}

// IsAncestor reports whether a is b or an ancestor of b.
func (s *Scene) IsAncestor(a, b NodeID) bool {
	for steps := 0; s.valid(b) && steps <= len(s.nodes); steps++ {
		if a == b {
			return true
		}
		b = s.nodes[b].parent
	}
	return false
}

// Reparent moves id, with its subtree, under newParent.
func (s *Scene) Reparent(id, newParent NodeID) error {
	if !s.valid(id) || !s.valid(newParent) {
		return ErrInvalidNode
	}
	if id == s.root {
		return ErrRootNode
	}
	if s.IsAncestor(id, newParent) {
		return fmt.Errorf("%w: %d under %d", ErrNodeCycle, id, newParent)
	}
	old := s.nodes[id].parent
	if s.valid(old) {
		s.nodes[old].children = removeID(s.nodes[old].children, id)
	}
	s.nodes[id].parent = newParent
	s.nodes[newParent].children = append(s.nodes[newParent].children, id)
	return nil
}

// RemoveNode deletes a non-root node. Its children take its place in the
// parent's child list; their transforms are left for the caller to adjust.
// Node ids above id shift down by one.
func (s *Scene) RemoveNode(id NodeID) error {
	if !s.valid(id) {
		return ErrInvalidNode
	}
	if id == s.root {
		return ErrRootNode
	}
	if !s.valid(s.nodes[id].parent) {
		return fmt.Errorf("%w: orphan %d", ErrInvalidNode, id)
	}
	s.RemoveNodes(func(x NodeID, _ *Node) bool { return x != id })
	return nil
}

// RemoveNodes deletes every non-root node for which keep returns false,
// splicing the children of a removed node into its parent's child list at
// the removed node's position. The arena is compacted and every parent and
// child id rewritten. It returns the number of nodes removed.
func (s *Scene) RemoveNodes(keep func(id NodeID, n *Node) bool) int {
	if len(s.nodes) == 0 {
		return 0
	}
	drop := make([]bool, len(s.nodes))
	removed := 0
	for i, n := range s.nodes {
		id := NodeID(i)
		if id != s.root && !keep(id, n) {
			drop[i] = true
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	// expand replaces dropped children by their own (expanded) children.
	var expand func(ids []NodeID, depth int) []NodeID
	expand = func(ids []NodeID, depth int) []NodeID {
		out := make([]NodeID, 0, len(ids))
		for _, c := range ids {
			if !s.valid(c) {
				continue
			}
			if drop[c] && depth <= len(s.nodes) {
				out = append(out, expand(s.nodes[c].children, depth+1)...)
				continue
			}
			out = append(out, c)
		}
		return out
	}
	for i, n := range s.nodes {
		if !drop[i] {
			n.children = expand(n.children, 0)
		}
	}

	remap := make([]NodeID, len(s.nodes))
	kept := s.nodes[:0]
	for i, n := range s.nodes {
		if drop[i] {
			remap[i] = NoNode
			continue
		}
		remap[i] = NodeID(len(kept))
		kept = append(kept, n)
	}
	for i := len(kept); i < len(s.nodes); i++ {
		s.nodes[i] = nil
	}
	s.nodes = kept
	if s.root != NoNode {
		s.root = remap[s.root]
	}
	for _, n := range s.nodes {
		n.parent = NoNode
	}
	for i, n := range s.nodes {
		children := n.children[:0]
		for _, c := range n.children {
			if remap[c] == NoNode {
				continue
			}
			children = append(children, remap[c])
			s.nodes[remap[c]].parent = NodeID(i)
		}
		n.children = children
	}
	return removed
}

// Walk visits the tree depth-first in pre-order starting at the root. fn
// returns false to skip the node's subtree. Nodes already visited are not
// visited again, so a corrupted tree cannot loop forever.
func (s *Scene) Walk(fn func(id NodeID, depth int) bool) {
	if !s.valid(s.root) {
		return
	}
	type frame struct {
		id    NodeID
		depth int
	}
	seen := make([]bool, len(s.nodes))
	stack := []frame{{s.root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !s.valid(f.id) || seen[f.id] {
			continue
		}
		seen[f.id] = true
		if !fn(f.id, f.depth) {
			continue
		}
		children := s.nodes[f.id].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{children[i], f.depth + 1})
		}
	}
}

// FindNode returns the first node in pre-order with the given name.
func (s *Scene) FindNode(name string) NodeID {
	found := NoNode
	s.Walk(func(id NodeID, _ int) bool {
		if found != NoNode {
			return false
		}
		if s.nodes[id].Name == name {
			found = id
			return false
		}
		return true
	})
	return found
}

// GlobalTransform returns the product of the transforms from the root down
// to id.
func (s *Scene) GlobalTransform(id NodeID) math.Mat4 {
	m := math.Identity()
	for steps := 0; s.valid(id) && steps <= len(s.nodes); steps++ {
		m = s.nodes[id].Transform.Mul(m)
		id = s.nodes[id].parent
	}
	return m
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
