package tree

import (
	"sync"
	"sync/atomic"

	"github.com/bastiangx/seqtree/pkg/seq"
)

// Node is one prefix of the tree. Child slots and the payload slot are
// independently atomic so the same node type backs both Map and
// ConcurrentMap; Map simply never races on them.
type Node[V any] struct {
	parent   *Node[V]
	code     uint8
	children []atomic.Pointer[Node[V]]
	value    atomic.Pointer[V]

	// mu serialises payload creation for the *Sync operations only.
	mu sync.Mutex
}

func newNode[V any](parent *Node[V], code uint8, fanout int) *Node[V] {
	return &Node[V]{
		parent:   parent,
		code:     code,
		children: make([]atomic.Pointer[Node[V]], fanout),
	}
}

// Child returns the node reached over code, or nil.
func (n *Node[V]) Child(code uint8) *Node[V] {
	return n.children[code].Load()
}

// Value returns the payload and whether one is present.
func (n *Node[V]) Value() (V, bool) {
	if p := n.value.Load(); p != nil {
		return *p, true
	}
	var zero V
	return zero, false
}

// HasValue reports whether a key ends here.
func (n *Node[V]) HasValue() bool {
	return n.value.Load() != nil
}

// Depth is the length of the key leading to this node.
func (n *Node[V]) Depth() int {
	d := 0
	for c := n; c.parent != nil; c = c.parent {
		d++
	}
	return d
}

// Key rebuilds the key by walking parent links up to the root.
func (n *Node[V]) Key(a *seq.Alphabet) seq.Sequence {
	depth := n.Depth()
	b := seq.NewBuilder(a, depth)
	i := depth - 1
	for c := n; c.parent != nil; c = c.parent {
		// codes on the path were validated on insertion
		_ = b.Set(i, c.code)
		i--
	}
	return b.Build()
}

// free nodes carry no payload and no children.
func (n *Node[V]) free() bool {
	if n.value.Load() != nil {
		return false
	}
	for i := range n.children {
		if n.children[i].Load() != nil {
			return false
		}
	}
	return true
}

// traverseToEnd follows reference exactly from position on.
func traverseToEnd[V any](n *Node[V], reference seq.Sequence, position int) *Node[V] {
	for ; n != nil && position < reference.Len(); position++ {
		n = n.children[reference.CodeAt(position)].Load()
	}
	return n
}

// occupied walks the subtree of root depth-first with an explicit stack and
// calls yield for every node holding a payload, in code order.
func occupied[V any](root *Node[V], yield func(*Node[V]) bool) {
	stack := []*Node[V]{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.HasValue() && !yield(n) {
			return
		}
		// push in reverse so the lowest code is visited first
		for i := len(n.children) - 1; i >= 0; i-- {
			if c := n.children[i].Load(); c != nil {
				stack = append(stack, c)
			}
		}
	}
}
