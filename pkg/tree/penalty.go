package tree

import (
	"fmt"

	"github.com/bastiangx/seqtree/pkg/seq"
)

// ErrorType is one edit between a reference and a stored key.
type ErrorType uint8

const (
	// Mismatch substitutes the reference symbol at a position.
	Mismatch ErrorType = iota
	// Deletion drops a reference symbol: the stored key lacks it.
	Deletion
	// Insertion adds a symbol to the stored key that the reference lacks.
	Insertion
)

// errorTypes is the number of ErrorType values.
const errorTypes = 3

func (t ErrorType) String() string {
	switch t {
	case Mismatch:
		return "mismatch"
	case Deletion:
		return "deletion"
	case Insertion:
		return "insertion"
	}
	return fmt.Sprintf("ErrorType(%d)", uint8(t))
}

// Short is the one-letter form used in logs and wire messages.
func (t ErrorType) Short() string {
	return [...]string{"M", "D", "I"}[t]
}

// PenaltyModel scores edits and bounds the total accepted for a reference.
type PenaltyModel interface {
	Penalty(t ErrorType) float64
	Threshold(length int) float64
}

// ScalarPenalty charges a fixed amount per edit type. The accepted total is
// Base + PerSymbol*length.
type ScalarPenalty struct {
	Mismatch  float64 `toml:"mismatch"`
	Deletion  float64 `toml:"deletion"`
	Insertion float64 `toml:"insertion"`
	Base      float64 `toml:"threshold_base"`
	PerSymbol float64 `toml:"threshold_per_symbol"`
}

// Strict tolerates roughly one mismatch per ten symbols and makes indels
// too expensive for short references.
var Strict = ScalarPenalty{
	Mismatch:  1,
	Deletion:  10,
	Insertion: 10,
	Base:      1,
	PerSymbol: 0.1,
}

// Fuzzy accepts indels at a small premium over mismatches.
var Fuzzy = ScalarPenalty{
	Mismatch:  1,
	Deletion:  1.5,
	Insertion: 1.5,
	Base:      1.5,
	PerSymbol: 0.15,
}

// NewPenalty builds a custom model. Its threshold admits one edit of the
// cheapest type regardless of length; use WithThreshold to scale it.
func NewPenalty(mismatch, deletion, insertion float64) ScalarPenalty {
	return ScalarPenalty{
		Mismatch:  mismatch,
		Deletion:  deletion,
		Insertion: insertion,
		Base:      min(mismatch, deletion, insertion),
	}
}

// PresetByName resolves "strict" and "fuzzy".
func PresetByName(name string) (ScalarPenalty, error) {
	switch name {
	case "strict":
		return Strict, nil
	case "fuzzy":
		return Fuzzy, nil
	}
	return ScalarPenalty{}, fmt.Errorf("unknown penalty preset %q: %w", name, seq.ErrInvalidArgument)
}

// WithThreshold returns a copy with a new length-dependent threshold.
func (p ScalarPenalty) WithThreshold(base, perSymbol float64) ScalarPenalty {
	p.Base = base
	p.PerSymbol = perSymbol
	return p
}

// Penalty implements PenaltyModel.
func (p ScalarPenalty) Penalty(t ErrorType) float64 {
	switch t {
	case Mismatch:
		return p.Mismatch
	case Deletion:
		return p.Deletion
	default:
		return p.Insertion
	}
}

// Threshold implements PenaltyModel.
func (p ScalarPenalty) Threshold(length int) float64 {
	return p.Base + p.PerSymbol*float64(length)
}

// Penalties returns the per-type vector indexed by ErrorType.
func Penalties(m PenaltyModel) []float64 {
	return []float64{m.Penalty(Mismatch), m.Penalty(Deletion), m.Penalty(Insertion)}
}
