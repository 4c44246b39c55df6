package tree

import (
	"fmt"

	"github.com/bastiangx/seqtree/pkg/seq"
)

// MutationGuide is consulted before an edit is applied during a
// neighborhood search. code is the substituted or inserted code, or the
// dropped reference code for a deletion.
type MutationGuide interface {
	Allowed(reference seq.Sequence, position int, t ErrorType, code uint8) bool
}

// GuideFunc adapts a plain function to MutationGuide.
type GuideFunc func(reference seq.Sequence, position int, t ErrorType, code uint8) bool

// Allowed implements MutationGuide.
func (f GuideFunc) Allowed(reference seq.Sequence, position int, t ErrorType, code uint8) bool {
	return f(reference, position, t, code)
}

type allowAll struct{}

func (allowAll) Allowed(seq.Sequence, int, ErrorType, uint8) bool { return true }

// RegionGuide confines edits to reference positions in [from, to). An
// insertion at position to (right after the region) is allowed too.
func RegionGuide(from, to int) (MutationGuide, error) {
	if from > to || from < 0 {
		return nil, fmt.Errorf("region [%d, %d): %w", from, to, seq.ErrInvalidArgument)
	}
	return GuideFunc(func(_ seq.Sequence, position int, t ErrorType, _ uint8) bool {
		if t == Insertion {
			return position >= from && position <= to
		}
		return position >= from && position < to
	}), nil
}
