package calltree

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Clock returns the current time in nanoseconds.
type Clock func() int64

var epoch = time.Now()

// MonotonicClock counts nanoseconds from process start on the monotonic clock.
func MonotonicClock() int64 {
	return int64(time.Since(epoch))
}

// Tree records the calls made by a single execution context. It is not safe
// for concurrent use: only the owning context may call BeginCall and
// EndCall. Once finished or decoded, it may be read concurrently.
type Tree struct {
	root *Node
	last *Node
	now  Clock

	// stack is the path from the root to the innermost open call. The root
	// is never popped.
	stack []*Node

	frozen bool
}

// Call is returned by BeginCall. Defer its End method so the frame is
// closed on every exit path.
type Call struct {
	tree  *Tree
	node  *Node
	ended bool
}

func NewTree(rootName string) *Tree {
	t, _ := NewTreeWithShift(rootName, DefaultShift)
	return t
}

func NewTreeWithShift(rootName string, shift int) (*Tree, error) {
	root, err := NewNode(rootName, shift, MonotonicClock())
	if err != nil {
		return nil, err
	}
	return newTree(root), nil
}

func newTree(root *Node) *Tree {
	return &Tree{
		root:  root,
		last:  root,
		now:   MonotonicClock,
		stack: []*Node{root},
	}
}

// SetClock replaces the clock used to timestamp calls.
func (t *Tree) SetClock(c Clock) {
	t.now = c
}

func (t *Tree) Root() *Node {
	return t.root
}

// Name returns the name of the root node.
func (t *Tree) Name() string {
	return t.root.name
}

// Depth returns the number of calls currently open.
func (t *Tree) Depth() int {
	return len(t.stack) - 1
}

// Frozen reports whether the tree was decoded and so rejects new calls.
func (t *Tree) Frozen() bool {
	return t.frozen
}

// BeginCall registers the start of methodName as a child of the innermost
// open call. The arguments are rendered with %v into the node name.
func (t *Tree) BeginCall(methodName string, args ...interface{}) (*Call, error) {
	if t.frozen {
		return nil, fmt.Errorf("calltree: %w: can't begin %q on %q", ErrFrozenTree, methodName, t.root.name)
	}
	top := t.stack[len(t.stack)-1]
	n := top.AddChild(callName(methodName, args), t.now())
	t.stack = append(t.stack, n)
	t.last.next = n
	t.last = n
	return &Call{tree: t, node: n}, nil
}

func callName(methodName string, args []interface{}) string {
	var b strings.Builder
	b.WriteString(methodName)
	b.WriteByte('{')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprint(&b, a)
	}
	b.WriteByte('}')
	return b.String()
}

// EndCall closes the innermost open call.
func (t *Tree) EndCall() error {
	if len(t.stack) == 1 {
		return fmt.Errorf("calltree: %w: no open call to finish in %q", ErrIllegalState, t.root.name)
	}
	last := len(t.stack) - 1
	t.stack[last].MarkEnded(t.now())
	t.stack[last] = nil
	t.stack = t.stack[:last]
	return nil
}

// End closes the call. It fails if another call opened after this one is
// still open. Calling End again is a no-op.
func (c *Call) End() error {
	if c.ended {
		return nil
	}
	stack := c.tree.stack
	if top := stack[len(stack)-1]; top != c.node {
		return fmt.Errorf("calltree: %w: %q is not the innermost open call, %q is", ErrIllegalState, c.node.name, top.name)
	}
	c.ended = true
	return c.tree.EndCall()
}

// Node returns the frame recorded for this call.
func (c *Call) Node() *Node {
	return c.node
}

// ForEach calls fn for every node in pre-order.
func (t *Tree) ForEach(fn func(n *Node)) {
	for n := t.root; n != nil; n = n.next {
		fn(n)
	}
}

// Nodes returns every node in pre-order.
func (t *Tree) Nodes() []*Node {
	var nodes []*Node
	t.ForEach(func(n *Node) {
		nodes = append(nodes, n)
	})
	return nodes
}

// Equal reports whether both trees have equal roots and the same open calls.
func (t *Tree) Equal(o *Tree) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !t.root.Equal(o.root) || len(t.stack) != len(o.stack) {
		return false
	}
	for i := range t.stack {
		if t.stack[i].name != o.stack[i].name {
			return false
		}
	}
	return true
}

func (t *Tree) String() string {
	return Encode(t)
}

// WriteTo writes the encoded tree to w.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, Encode(t))
	return int64(n), err
}
