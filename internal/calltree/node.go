package calltree

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	// NoEndTime marks a call that was never closed.
	NoEndTime int64 = -1

	// DefaultShift is the indentation width used when rendering nested calls.
	DefaultShift = 3

	hashMultiplier int32 = 1367
)

type Node struct {
	name     string
	shift    int
	startNS  int64
	endNS    int64
	children []*Node

	// next is the pre-order successor of this node in its tree.
	next *Node
}

// NewNode returns an open node. shift only affects the indentation used by
// String and Encode.
func NewNode(name string, shift int, startNS int64) (*Node, error) {
	return newNodeWithEnd(name, shift, startNS, NoEndTime)
}

func newNodeWithEnd(name string, shift int, startNS, endNS int64) (*Node, error) {
	if shift < 0 {
		return nil, fmt.Errorf("calltree: %w: shift must be non-negative, got %d", ErrInvalidArgument, shift)
	}
	return &Node{
		name:    name,
		shift:   shift,
		startNS: startNS,
		endNS:   endNS,
	}, nil
}

func (n *Node) Name() string {
	return n.name
}

// FunctionName returns the name without its argument suffix.
func (n *Node) FunctionName() string {
	if i := strings.IndexByte(n.name, '{'); i != -1 {
		return n.name[:i]
	}
	return n.name
}

func (n *Node) StartNS() int64 {
	return n.startNS
}

func (n *Node) EndNS() int64 {
	return n.endNS
}

// Children returns the direct children in call order. The returned slice
// must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// ExecutionTime returns the duration of the call, or 0 if it never ended.
func (n *Node) ExecutionTime() int64 {
	if n.endNS == NoEndTime {
		return 0
	}
	return n.endNS - n.startNS
}

// AddChild appends a new open child and returns it.
func (n *Node) AddChild(name string, startNS int64) *Node {
	return n.appendChild(&Node{
		name:    name,
		shift:   n.shift,
		startNS: startNS,
		endNS:   NoEndTime,
	})
}

func (n *Node) appendChild(child *Node) *Node {
	n.children = append(n.children, child)
	return child
}

// MarkEnded sets the end time. Calling it again overwrites the previous value.
func (n *Node) MarkEnded(endNS int64) {
	n.endNS = endNS
}

// Hash returns the structural hash of the subtree. Only names and the order
// of children contribute, timestamps don't. Distinct subtrees may collide.
func (n *Node) Hash() int32 {
	h := int32(1)
	for _, c := range n.children {
		h = 31*h + c.Hash()
	}
	return combineHash(n.name, h)
}

// combineHash mixes a node name with the hash of its children list. The
// 32-bit wrapping arithmetic is part of the .tree format.
func combineHash(name string, childrenHash int32) int32 {
	return (stringHash(name) * hashMultiplier) ^ childrenHash
}

func childrenHash(hashes []int32) int32 {
	h := int32(1)
	for _, ch := range hashes {
		h = 31*h + ch
	}
	return h
}

func stringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

// Equal reports whether both subtrees have the same names in the same shape.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.name != o.name || len(n.children) != len(o.children) {
		return false
	}
	for i := range n.children {
		if !n.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}

func (n *Node) String() string {
	var b strings.Builder
	n.render(&b, 0, n.hashes())
	return b.String()
}

// hashes computes the hash of every node of the subtree in one post-order pass.
func (n *Node) hashes() map[*Node]int32 {
	m := make(map[*Node]int32)
	var visit func(*Node) int32
	visit = func(v *Node) int32 {
		h := int32(1)
		for _, c := range v.children {
			h = 31*h + visit(c)
		}
		m[v] = combineHash(v.name, h)
		return m[v]
	}
	visit(n)
	return m
}

func (n *Node) indent() string {
	if n.shift <= 1 {
		return "|"
	}
	return "|" + strings.Repeat(" ", n.shift-1)
}

func (n *Node) render(b *strings.Builder, depth int, hashes map[*Node]int32) {
	indent := n.indent()
	for i := 0; i < depth; i++ {
		b.WriteString(indent)
	}
	b.WriteByte('[')
	b.WriteString(n.name)
	b.WriteString(", ")
	b.WriteString(strconv.FormatInt(int64(hashes[n]), 10))
	b.WriteString(", ")
	b.WriteString(strconv.FormatInt(n.startNS, 10))
	b.WriteByte('#')
	b.WriteString(strconv.FormatInt(n.endNS, 10))
	b.WriteString("]: ")
	for i, c := range n.children {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(c.name)
		b.WriteString(", ")
		b.WriteString(strconv.FormatInt(int64(hashes[c]), 10))
		b.WriteByte(')')
	}
	b.WriteByte('\n')
	for _, c := range n.children {
		c.render(b, depth+1, hashes)
	}
}
