package tree

import (
	"fmt"

	"github.com/bastiangx/seqtree/pkg/seq"
)

// SearchParameters bound a neighborhood search.
type SearchParameters struct {
	// Penalties is indexed by ErrorType and must have exactly three entries.
	Penalties []float64
	// MaxErrors caps each ErrorType (inclusive); nil leaves them uncapped.
	MaxErrors []int
	// MaxPenalty is the largest accepted total penalty.
	MaxPenalty float64
	// MaxCombinations rejects budgets expanding to more difference
	// combinations; zero means no limit.
	MaxCombinations int
	// Guide may veto single edits; nil allows everything.
	Guide MutationGuide
}

// ParametersFor derives parameters from a model for a reference of the
// given length.
func ParametersFor(model PenaltyModel, length int, maxErrors []int) SearchParameters {
	return SearchParameters{
		Penalties:  Penalties(model),
		MaxErrors:  maxErrors,
		MaxPenalty: model.Threshold(length),
	}
}

// Mutation describes one edit of the current result relative to the
// reference.
type Mutation struct {
	Type     ErrorType
	Position int
	Code     uint8
}

func (m Mutation) String() string {
	return fmt.Sprintf("%s%d:%d", m.Type.Short(), m.Position, m.Code)
}

// Format is String with the code written as its symbol in a, as in "I4:G".
func (m Mutation) Format(a *seq.Alphabet) string {
	return fmt.Sprintf("%s%d:%c", m.Type.Short(), m.Position, a.Symbol(m.Code))
}

// Hit is a collected search result.
type Hit[V any] struct {
	Key       seq.Sequence
	Value     V
	Penalty   float64
	Mutations []Mutation
}

// NeighborhoodIterator enumerates stored keys around a reference in
// non-decreasing penalty order. It walks one difference combination at a
// time, chaining one branchingEnumerator per edit depth-first, and finishes
// each partial match by following the reference exactly.
//
// An iterator is not safe for concurrent use. Over a ConcurrentMap it sees
// concurrent insertions or removals only if they land ahead of its walk.
// The same key may be reached through several combinations; every
// occurrence is reported. Collect keeps the first one only.
type NeighborhoodIterator[V any] struct {
	root         *Node[V]
	reference    seq.Sequence
	guide        MutationGuide
	maxPenalty   float64
	combinations []Combination

	combination int
	active      bool
	done        bool

	enumerators []*branchingEnumerator[V]
	depth       int
	level       int

	current *Node[V]
}

func newNeighborhoodIterator[V any](root *Node[V], a *seq.Alphabet, reference seq.Sequence, params SearchParameters) (*NeighborhoodIterator[V], error) {
	if reference.Alphabet() != a {
		return nil, fmt.Errorf("reference %s for tree %s: %w", reference.Alphabet(), a, seq.ErrAlphabetMismatch)
	}
	combinations, err := LimitedDifferenceCombinations(params.MaxPenalty, params.Penalties, params.MaxErrors, params.MaxCombinations)
	if err != nil {
		return nil, err
	}
	guide := params.Guide
	if guide == nil {
		guide = allowAll{}
	}
	return &NeighborhoodIterator[V]{
		root:         root,
		reference:    reference,
		guide:        guide,
		maxPenalty:   params.MaxPenalty,
		combinations: combinations,
		combination:  -1,
	}, nil
}

// NextNode advances to the next matching node. It returns nil once the
// search is exhausted and keeps returning nil afterwards.
func (it *NeighborhoodIterator[V]) NextNode() *Node[V] {
	for !it.done {
		if !it.active {
			if !it.startCombination() {
				it.done = true
				break
			}
			if it.depth == 0 {
				it.active = false
				if n := traverseToEnd(it.root, it.reference, 0); n != nil && n.HasValue() {
					it.current = n
					return n
				}
			}
			continue
		}
		if n := it.step(); n != nil {
			it.current = n
			return n
		}
		it.active = false
	}
	it.current = nil
	return nil
}

// Next advances and returns the payload of the next match.
func (it *NeighborhoodIterator[V]) Next() (V, bool) {
	for n := it.NextNode(); n != nil; n = it.NextNode() {
		// a concurrent dirty removal can clear the payload under us
		if v, ok := n.Value(); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (it *NeighborhoodIterator[V]) startCombination() bool {
	it.combination++
	if it.combination >= len(it.combinations) {
		return false
	}
	c := it.combinations[it.combination]
	if c.Penalty > it.maxPenalty {
		return false
	}
	it.depth = len(c.Types)
	for len(it.enumerators) < it.depth {
		it.enumerators = append(it.enumerators, newBranchingEnumerator[V](it.reference, it.guide))
	}
	for i, t := range c.Types {
		it.enumerators[i].setup(t, i > 0 && needsAutoMove1(c.Types[i-1], t))
	}
	if it.depth > 0 {
		it.enumerators[0].reset(0, it.root)
		it.level = 0
		it.active = true
	}
	return true
}

// step resumes the depth-first walk over the active enumerators.
func (it *NeighborhoodIterator[V]) step() *Node[V] {
	for it.level >= 0 {
		e := it.enumerators[it.level]
		n := e.next()
		if n == nil {
			it.level--
			continue
		}
		if it.level == it.depth-1 {
			if end := traverseToEnd(n, it.reference, e.nextPosition); end != nil && end.HasValue() {
				return end
			}
			continue
		}
		it.level++
		it.enumerators[it.level].reset(e.nextPosition, n)
	}
	return nil
}

// Current returns the last node returned by NextNode.
func (it *NeighborhoodIterator[V]) Current() *Node[V] { return it.current }

// Penalty of the current result, zero when there is none.
func (it *NeighborhoodIterator[V]) Penalty() float64 {
	return it.Combination().Penalty
}

// Combination of edit types that produced the current result. It is empty
// before the first NextNode and once the search is exhausted.
func (it *NeighborhoodIterator[V]) Combination() Combination {
	if it.current == nil {
		return Combination{}
	}
	return it.combinations[it.combination]
}

// MutationCount is the number of edits in the current result.
func (it *NeighborhoodIterator[V]) MutationCount() int {
	return len(it.Combination().Types)
}

// ErrorCount is the number of edits of type t in the current result.
func (it *NeighborhoodIterator[V]) ErrorCount(t ErrorType) int {
	if t >= errorTypes {
		return 0
	}
	return it.Combination().Counts()[t]
}

// Mutation returns the i-th edit of the current result. It panics unless
// 0 <= i < MutationCount.
func (it *NeighborhoodIterator[V]) Mutation(i int) Mutation {
	if i < 0 || i >= it.MutationCount() {
		panic(fmt.Sprintf("tree: mutation %d of %d", i, it.MutationCount()))
	}
	e := it.enumerators[i]
	return Mutation{Type: e.errType, Position: e.editPosition, Code: e.editCode}
}

// Mutations returns all edits of the current result in reference order.
func (it *NeighborhoodIterator[V]) Mutations() []Mutation {
	out := make([]Mutation, it.MutationCount())
	for i := range out {
		out[i] = it.Mutation(i)
	}
	return out
}

// Collect drains it into hits, reporting each key once at its lowest
// penalty. limit <= 0 means no limit.
func Collect[V any](it *NeighborhoodIterator[V], a *seq.Alphabet, limit int) []Hit[V] {
	seen := make(map[*Node[V]]struct{})
	var hits []Hit[V]
	for n := it.NextNode(); n != nil; n = it.NextNode() {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		v, ok := n.Value()
		if !ok {
			continue
		}
		hits = append(hits, Hit[V]{
			Key:       n.Key(a),
			Value:     v,
			Penalty:   it.Penalty(),
			Mutations: it.Mutations(),
		})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits
}
