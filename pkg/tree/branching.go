package tree

import "github.com/bastiangx/seqtree/pkg/seq"

// branchingEnumerator yields, one at a time, the nodes reachable from a
// starting node by walking the reference exactly for zero or more symbols
// and then applying exactly one edit of a fixed type.
type branchingEnumerator[V any] struct {
	reference seq.Sequence
	guide     MutationGuide
	size      int

	errType   ErrorType
	autoMove1 bool

	// walking state: node sits at reference position
	node     *Node[V]
	position int
	code     int

	// last yielded edit
	nextPosition int
	editCode     uint8
	editPosition int
}

func newBranchingEnumerator[V any](reference seq.Sequence, guide MutationGuide) *branchingEnumerator[V] {
	return &branchingEnumerator[V]{
		reference: reference,
		guide:     guide,
		size:      reference.Alphabet().Size(),
	}
}

// setup fixes the edit type. autoMove1 forces one exact step before the
// first edit so that adjacent edits cancelling into another combination
// (I then D, D then I, I then M) are not generated twice.
func (e *branchingEnumerator[V]) setup(t ErrorType, autoMove1 bool) {
	e.errType = t
	e.autoMove1 = autoMove1
}

// needsAutoMove1 lists the adjacent pairs that would otherwise duplicate
// results reachable through a different ordering.
func needsAutoMove1(previous, current ErrorType) bool {
	return (previous == Deletion && current == Insertion) ||
		(previous == Insertion && current == Deletion) ||
		(previous == Insertion && current == Mismatch)
}

func (e *branchingEnumerator[V]) reset(position int, node *Node[V]) {
	e.node = node
	e.position = position
	e.code = 0
	if e.autoMove1 {
		e.move1()
	}
}

// move1 follows the reference symbol at the current position.
func (e *branchingEnumerator[V]) move1() bool {
	if e.node == nil {
		return false
	}
	if e.position >= e.reference.Len() {
		e.node = nil
		return false
	}
	e.node = e.node.children[e.reference.CodeAt(e.position)].Load()
	e.position++
	e.code = 0
	return e.node != nil
}

// next returns the next admissible node, or nil once exhausted.
func (e *branchingEnumerator[V]) next() *Node[V] {
	for e.node != nil {
		switch e.errType {
		case Mismatch:
			if e.position >= e.reference.Len() {
				e.node = nil
				return nil
			}
			refCode := int(e.reference.CodeAt(e.position))
			for e.code < e.size {
				c := e.code
				e.code++
				if c == refCode {
					continue
				}
				child := e.node.children[c].Load()
				if child != nil && e.guide.Allowed(e.reference, e.position, Mismatch, uint8(c)) {
					e.editCode = uint8(c)
					e.editPosition = e.position
					e.nextPosition = e.position + 1
					return child
				}
			}

		case Deletion:
			if e.position >= e.reference.Len() {
				e.node = nil
				return nil
			}
			if e.code == 0 {
				e.code = 1
				dropped := e.reference.CodeAt(e.position)
				if e.guide.Allowed(e.reference, e.position, Deletion, dropped) {
					e.editCode = dropped
					e.editPosition = e.position
					e.nextPosition = e.position + 1
					return e.node
				}
			}

		case Insertion:
			// an insertion may also follow the last reference symbol
			if e.position > e.reference.Len() {
				e.node = nil
				return nil
			}
			for e.code < e.size {
				c := e.code
				e.code++
				child := e.node.children[c].Load()
				if child != nil && e.guide.Allowed(e.reference, e.position, Insertion, uint8(c)) {
					e.editCode = uint8(c)
					e.editPosition = e.position
					e.nextPosition = e.position
					return child
				}
			}
		}
		e.move1()
	}
	return nil
}
