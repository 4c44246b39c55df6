/*
Package tree indexes sequences in a prefix tree and searches it for keys
within a bounded edit penalty of a reference.

[Map] is the single-goroutine index. [ConcurrentMap] allows lock-free
concurrent creation, replacement and dirty removal, with a separate
single-threaded compaction pass.

A neighborhood search expands a penalty budget into the ordered list of
[DifferenceCombinations] and walks each one over the tree, so hits come out
best-first:

	it, err := m.Neighborhood(reference, tree.ParametersFor(tree.Strict, reference.Len(), nil))
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		log.Debug("hit", "value", v, "penalty", it.Penalty(), "mutations", it.Mutations())
	}
*/
package tree

import (
	"fmt"
	"iter"

	"github.com/bastiangx/seqtree/pkg/seq"
)

// Map associates sequences of one alphabet with values. It is not safe for
// concurrent mutation.
type Map[V any] struct {
	alphabet *seq.Alphabet
	root     *Node[V]
	size     int
	stats    Stats
}

// NewMap creates an empty map for keys of alphabet a.
func NewMap[V any](a *seq.Alphabet) *Map[V] {
	return &Map[V]{
		alphabet: a,
		root:     newNode[V](nil, 0, a.Size()),
	}
}

func checkAlphabet(a *seq.Alphabet, key seq.Sequence) error {
	if key.Alphabet() != a {
		return fmt.Errorf("key %s for tree %s: %w", key.Alphabet(), a, seq.ErrAlphabetMismatch)
	}
	return nil
}

// Alphabet returns the key alphabet.
func (m *Map[V]) Alphabet() *seq.Alphabet { return m.alphabet }

// Root returns the node of the empty key.
func (m *Map[V]) Root() *Node[V] { return m.root }

// Len returns the number of stored keys.
func (m *Map[V]) Len() int { return m.size }

// Stats returns node counters.
func (m *Map[V]) Stats() StatsSnapshot { return m.stats.Snapshot() }

// Put stores value under key and returns the value it replaced, if any.
func (m *Map[V]) Put(key seq.Sequence, value V) (old V, replaced bool, err error) {
	if err := checkAlphabet(m.alphabet, key); err != nil {
		return old, false, err
	}
	n := m.root
	for i := 0; i < key.Len(); i++ {
		code := key.CodeAt(i)
		child := n.children[code].Load()
		if child == nil {
			child = newNode(n, code, m.alphabet.Size())
			n.children[code].Store(child)
			m.stats.nodesCreated.Add(1)
		}
		n = child
	}
	prev := n.value.Swap(&value)
	if prev == nil {
		m.size++
		return old, false, nil
	}
	return *prev, true, nil
}

// Get returns the node stored for key, or nil. The node may exist without a
// payload when key is only a prefix of stored keys.
func (m *Map[V]) Get(key seq.Sequence) (*Node[V], error) {
	if err := checkAlphabet(m.alphabet, key); err != nil {
		return nil, err
	}
	return traverseToEnd(m.root, key, 0), nil
}

// GetValue returns the value stored for key.
func (m *Map[V]) GetValue(key seq.Sequence) (V, bool, error) {
	n, err := m.Get(key)
	if err != nil || n == nil {
		var zero V
		return zero, false, err
	}
	v, ok := n.Value()
	return v, ok, nil
}

// Contains reports whether key holds a value.
func (m *Map[V]) Contains(key seq.Sequence) (bool, error) {
	_, ok, err := m.GetValue(key)
	return ok, err
}

// Remove deletes key and prunes the ancestors left without payload or
// children. It returns the removed value.
func (m *Map[V]) Remove(key seq.Sequence) (V, bool, error) {
	var zero V
	n, err := m.Get(key)
	if err != nil || n == nil {
		return zero, false, err
	}
	prev := n.value.Swap(nil)
	if prev == nil {
		return zero, false, nil
	}
	m.size--
	m.stats.nodesPruned.Add(int64(pruneUp(n)))
	return *prev, true, nil
}

// pruneUp unlinks n and its ancestors while they are free. The root is
// never unlinked.
func pruneUp[V any](n *Node[V]) int {
	removed := 0
	for n.parent != nil && n.free() {
		n.parent.children[n.code].CompareAndSwap(n, nil)
		n = n.parent
		removed++
	}
	return removed
}

// Nodes yields every node holding a payload, depth-first in code order.
func (m *Map[V]) Nodes() iter.Seq[*Node[V]] {
	return func(yield func(*Node[V]) bool) {
		occupied(m.root, yield)
	}
}

// All yields keys and values in code order.
func (m *Map[V]) All() iter.Seq2[seq.Sequence, V] {
	return func(yield func(seq.Sequence, V) bool) {
		occupied(m.root, func(n *Node[V]) bool {
			v, _ := n.Value()
			return yield(n.Key(m.alphabet), v)
		})
	}
}

// Neighborhood starts a search around reference.
func (m *Map[V]) Neighborhood(reference seq.Sequence, params SearchParameters) (*NeighborhoodIterator[V], error) {
	return newNeighborhoodIterator(m.root, m.alphabet, reference, params)
}

// Search collects distinct hits around reference, best first.
func (m *Map[V]) Search(reference seq.Sequence, params SearchParameters, limit int) ([]Hit[V], error) {
	it, err := m.Neighborhood(reference, params)
	if err != nil {
		return nil, err
	}
	return Collect(it, m.alphabet, limit), nil
}
