package tree

import (
	"fmt"
	"math"
	"sort"

	"github.com/bastiangx/seqtree/pkg/seq"
)

// Combination is an ordered list of edits applied left to right along the
// reference, with its summed penalty.
type Combination struct {
	Types   []ErrorType
	Penalty float64
}

// Counts returns how many edits of each type the combination holds.
func (c Combination) Counts() [errorTypes]int {
	var counts [errorTypes]int
	for _, t := range c.Types {
		counts[t]++
	}
	return counts
}

func (c Combination) String() string {
	s := ""
	for _, t := range c.Types {
		s += t.Short()
	}
	return fmt.Sprintf("[%s]=%g", s, c.Penalty)
}

// DifferenceCombinations lists every edit sequence whose running penalty
// stays within maxPenalty and whose per-type counts stay within maxErrors
// (nil means uncapped). The empty combination always comes first.
//
// The result is sorted by total penalty, then length, then the per-position
// penalties, then the per-position type ids. Searches rely on this order to
// report hits best-first.
func DifferenceCombinations(maxPenalty float64, penalties []float64, maxErrors []int) ([]Combination, error) {
	return LimitedDifferenceCombinations(maxPenalty, penalties, maxErrors, 0)
}

// LimitedDifferenceCombinations is DifferenceCombinations that gives up once
// more than limit combinations exist. limit <= 0 means no limit.
func LimitedDifferenceCombinations(maxPenalty float64, penalties []float64, maxErrors []int, limit int) ([]Combination, error) {
	if math.IsNaN(maxPenalty) {
		return nil, fmt.Errorf("max penalty %g: %w", maxPenalty, seq.ErrInvalidArgument)
	}
	if len(penalties) != errorTypes {
		return nil, fmt.Errorf("penalty vector has %d entries, want %d: %w",
			len(penalties), errorTypes, seq.ErrInvalidArgument)
	}
	if maxErrors != nil && len(maxErrors) != errorTypes {
		return nil, fmt.Errorf("max error vector has %d entries, want %d: %w",
			len(maxErrors), errorTypes, seq.ErrInvalidArgument)
	}
	caps := [errorTypes]int{math.MaxInt, math.MaxInt, math.MaxInt}
	for t := 0; t < errorTypes; t++ {
		p := penalties[t]
		if p < 0 || math.IsNaN(p) {
			return nil, fmt.Errorf("%s penalty %g: %w", ErrorType(t), p, seq.ErrInvalidArgument)
		}
		if maxErrors != nil {
			if maxErrors[t] < 0 {
				return nil, fmt.Errorf("%s cap %d: %w", ErrorType(t), maxErrors[t], seq.ErrInvalidArgument)
			}
			caps[t] = maxErrors[t]
		}
		// a free, uncapped edit would expand forever
		if p == 0 && caps[t] == math.MaxInt && maxPenalty >= 0 {
			return nil, fmt.Errorf("%s has zero penalty and no cap: %w", ErrorType(t), seq.ErrInvalidArgument)
		}
		if math.IsInf(maxPenalty, 1) && caps[t] == math.MaxInt {
			return nil, fmt.Errorf("%s has no cap under an infinite max penalty: %w", ErrorType(t), seq.ErrInvalidArgument)
		}
	}

	type candidate struct {
		types  []ErrorType
		total  float64
		counts [errorTypes]int
	}

	all := []Combination{{Types: []ErrorType{}, Penalty: 0}}
	level := []candidate{{types: []ErrorType{}}}
	for len(level) > 0 {
		var next []candidate
		for _, c := range level {
			for t := 0; t < errorTypes; t++ {
				if c.counts[t] >= caps[t] {
					continue
				}
				total := c.total + penalties[t]
				if total > maxPenalty {
					continue
				}
				types := make([]ErrorType, len(c.types)+1)
				copy(types, c.types)
				types[len(c.types)] = ErrorType(t)
				counts := c.counts
				counts[t]++
				next = append(next, candidate{types: types, total: total, counts: counts})
				all = append(all, Combination{Types: types, Penalty: total})
				if limit > 0 && len(all) > limit {
					return nil, fmt.Errorf("more than %d difference combinations within %g: %w",
						limit, maxPenalty, seq.ErrInvalidArgument)
				}
			}
		}
		level = next
	}

	sort.SliceStable(all, func(i, j int) bool {
		return combinationLess(all[i], all[j], penalties)
	})
	return all, nil
}

func combinationLess(a, b Combination, penalties []float64) bool {
	if a.Penalty != b.Penalty {
		return a.Penalty < b.Penalty
	}
	if len(a.Types) != len(b.Types) {
		return len(a.Types) < len(b.Types)
	}
	for i := range a.Types {
		pa, pb := penalties[a.Types[i]], penalties[b.Types[i]]
		if pa != pb {
			return pa < pb
		}
	}
	for i := range a.Types {
		if a.Types[i] != b.Types[i] {
			return a.Types[i] < b.Types[i]
		}
	}
	return false
}
