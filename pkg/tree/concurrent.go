package tree

import (
	"iter"

	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/charmbracelet/log"
)

// ConcurrentMap is a sequence tree safe for concurrent Get, ContainsKey,
// GetOrCreate, Put and RemoveDirty calls without external locking. Child
// links are created with compare-and-swap; no lock spans a path.
//
// Preconditions that are documented, not detected:
//   - GetOrCreateSync and RemoveDirtySync must not race with GetOrCreate on
//     the same keys.
//   - RemoveClean and RemoveEmptyBranches must not run concurrently with any
//     other mutator.
type ConcurrentMap[V any] struct {
	alphabet *seq.Alphabet
	root     *Node[V]
	stats    Stats
}

// NewConcurrentMap creates an empty map for keys of alphabet a.
func NewConcurrentMap[V any](a *seq.Alphabet) *ConcurrentMap[V] {
	return &ConcurrentMap[V]{
		alphabet: a,
		root:     newNode[V](nil, 0, a.Size()),
	}
}

// Alphabet returns the key alphabet.
func (m *ConcurrentMap[V]) Alphabet() *seq.Alphabet { return m.alphabet }

// Root returns the node of the empty key.
func (m *ConcurrentMap[V]) Root() *Node[V] { return m.root }

// Stats returns node and contention counters.
func (m *ConcurrentMap[V]) Stats() StatsSnapshot { return m.stats.Snapshot() }

// path walks key, creating missing nodes. A node that loses the race for a
// slot is dropped and the winner is followed.
func (m *ConcurrentMap[V]) path(key seq.Sequence) *Node[V] {
	n := m.root
	for i := 0; i < key.Len(); i++ {
		code := key.CodeAt(i)
		slot := &n.children[code]
		child := slot.Load()
		if child == nil {
			fresh := newNode(n, code, m.alphabet.Size())
			if slot.CompareAndSwap(nil, fresh) {
				m.stats.nodesCreated.Add(1)
				child = fresh
			} else {
				m.stats.lostNodeRaces.Add(1)
				child = slot.Load()
			}
		}
		n = child
	}
	return n
}

// Get returns the value stored for key.
func (m *ConcurrentMap[V]) Get(key seq.Sequence) (V, bool, error) {
	var zero V
	if err := checkAlphabet(m.alphabet, key); err != nil {
		return zero, false, err
	}
	n := traverseToEnd(m.root, key, 0)
	if n == nil {
		return zero, false, nil
	}
	v, ok := n.Value()
	return v, ok, nil
}

// ContainsKey reports whether key holds a value.
func (m *ConcurrentMap[V]) ContainsKey(key seq.Sequence) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// GetOrCreate returns the value for key, installing factory() when absent.
// Under contention factory may run more than once; only one result is
// installed and every caller receives it.
func (m *ConcurrentMap[V]) GetOrCreate(key seq.Sequence, factory func() V) (V, error) {
	if err := checkAlphabet(m.alphabet, key); err != nil {
		var zero V
		return zero, err
	}
	n := m.path(key)
	for {
		if p := n.value.Load(); p != nil {
			return *p, nil
		}
		v := factory()
		if n.value.CompareAndSwap(nil, &v) {
			return v, nil
		}
		m.stats.payloadRetries.Add(1)
	}
}

// GetOrCreateSync is GetOrCreate with factory invoked at most once per key,
// under the node's lock.
func (m *ConcurrentMap[V]) GetOrCreateSync(key seq.Sequence, factory func() V) (V, error) {
	if err := checkAlphabet(m.alphabet, key); err != nil {
		var zero V
		return zero, err
	}
	n := m.path(key)
	if p := n.value.Load(); p != nil {
		return *p, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if p := n.value.Load(); p != nil {
		return *p, nil
	}
	v := factory()
	n.value.Store(&v)
	return v, nil
}

// Put replaces the value for key and returns the previous one.
func (m *ConcurrentMap[V]) Put(key seq.Sequence, value V) (V, bool, error) {
	var zero V
	if err := checkAlphabet(m.alphabet, key); err != nil {
		return zero, false, err
	}
	prev := m.path(key).value.Swap(&value)
	if prev == nil {
		return zero, false, nil
	}
	return *prev, true, nil
}

func (m *ConcurrentMap[V]) find(key seq.Sequence) (*Node[V], error) {
	if err := checkAlphabet(m.alphabet, key); err != nil {
		return nil, err
	}
	return traverseToEnd(m.root, key, 0), nil
}

// RemoveDirty clears the value for key and leaves its branch in place.
// It reports whether a value was present.
func (m *ConcurrentMap[V]) RemoveDirty(key seq.Sequence) (bool, error) {
	n, err := m.find(key)
	if err != nil || n == nil {
		return false, err
	}
	return n.value.Swap(nil) != nil, nil
}

// RemoveDirtySync is RemoveDirty under the node's lock, pairing with
// GetOrCreateSync.
func (m *ConcurrentMap[V]) RemoveDirtySync(key seq.Sequence) (bool, error) {
	n, err := m.find(key)
	if err != nil || n == nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value.Swap(nil) != nil, nil
}

// RemoveClean clears the value for key and prunes ancestors that become
// free. Single writer only.
func (m *ConcurrentMap[V]) RemoveClean(key seq.Sequence) (bool, error) {
	n, err := m.find(key)
	if err != nil || n == nil {
		return false, err
	}
	if n.value.Swap(nil) == nil {
		return false, nil
	}
	m.stats.nodesPruned.Add(int64(pruneUp(n)))
	return true, nil
}

// RemoveEmptyBranches unlinks every free node left behind by dirty
// removals and returns how many were removed. Single threaded only.
func (m *ConcurrentMap[V]) RemoveEmptyBranches() int {
	type frame struct {
		node *Node[V]
		next int
	}
	removed := 0
	stack := []frame{{node: m.root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.children) {
			child := top.node.children[top.next].Load()
			top.next++
			if child != nil {
				stack = append(stack, frame{node: child})
			}
			continue
		}
		// all children done: n is final now
		n := top.node
		stack = stack[:len(stack)-1]
		if n.parent != nil && n.free() {
			n.parent.children[n.code].CompareAndSwap(n, nil)
			removed++
		}
	}
	m.stats.nodesPruned.Add(int64(removed))
	log.Debugf("Pruned %d empty nodes", removed)
	return removed
}

// Len counts stored keys with a full walk.
func (m *ConcurrentMap[V]) Len() int {
	count := 0
	occupied(m.root, func(*Node[V]) bool {
		count++
		return true
	})
	return count
}

// Nodes yields every node holding a payload.
func (m *ConcurrentMap[V]) Nodes() iter.Seq[*Node[V]] {
	return func(yield func(*Node[V]) bool) {
		occupied(m.root, yield)
	}
}

// All yields keys and values in code order.
func (m *ConcurrentMap[V]) All() iter.Seq2[seq.Sequence, V] {
	return func(yield func(seq.Sequence, V) bool) {
		occupied(m.root, func(n *Node[V]) bool {
			v, ok := n.Value()
			if !ok {
				return true
			}
			return yield(n.Key(m.alphabet), v)
		})
	}
}

// Neighborhood starts a search around reference.
func (m *ConcurrentMap[V]) Neighborhood(reference seq.Sequence, params SearchParameters) (*NeighborhoodIterator[V], error) {
	return newNeighborhoodIterator(m.root, m.alphabet, reference, params)
}

// Search collects distinct hits around reference, best first.
func (m *ConcurrentMap[V]) Search(reference seq.Sequence, params SearchParameters, limit int) ([]Hit[V], error) {
	it, err := m.Neighborhood(reference, params)
	if err != nil {
		return nil, err
	}
	return Collect(it, m.alphabet, limit), nil
}
