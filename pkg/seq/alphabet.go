/*
Package seq provides fixed small alphabets and immutable bit-packed sequences
of their codes.

Every symbol of an [Alphabet] maps to a code in [0, Size()). A [Sequence]
stores those codes densely (2 bits per nucleotide, 5 bits per amino acid) and
remembers the alphabet it was built from. Alphabets are compared by identity:
two sequences only belong to the same index when they share the same
*Alphabet value.

	s, err := seq.Parse(seq.Nucleotide, "ATTACACA")
	rc, _ := s.ReverseComplement() // TGTGTAAT
*/
package seq

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"
)

// maxSymbols bounds the alphabet size so a code always fits a byte and a
// node fan-out stays small.
const maxSymbols = 64

// Alphabet is a closed set of symbols with a bijective code mapping.
type Alphabet struct {
	name       string
	symbols    []byte
	codes      [256]int8
	bits       uint
	complement []uint8
	wildcards  map[byte][]uint8
}

// Wildcard is an ambiguity symbol that stands for several codes.
type Wildcard struct {
	Symbol byte
	Codes  []uint8
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Alphabet{}
)

// Nucleotide is the DNA alphabet A, C, G, T with IUPAC wildcards.
var Nucleotide = mustRegister(mustNucleotide())

// AminoAcid is the 20 amino acids plus the stop symbol '*'.
var AminoAcid = mustRegister(mustAminoAcid())

func mustNucleotide() *Alphabet {
	a, err := NewAlphabet("nucleotide", "ACGT")
	if err != nil {
		panic(err)
	}
	// A<->T, C<->G
	a.complement = []uint8{3, 2, 1, 0}
	a.addWildcards(map[byte]string{
		'R': "AG", 'Y': "CT", 'S': "CG", 'W': "AT", 'K': "GT", 'M': "AC",
		'B': "CGT", 'D': "AGT", 'H': "ACT", 'V': "ACG", 'N': "ACGT",
	})
	return a
}

func mustAminoAcid() *Alphabet {
	a, err := NewAlphabet("aminoacid", "ACDEFGHIKLMNPQRSTVWY*")
	if err != nil {
		panic(err)
	}
	a.addWildcards(map[byte]string{
		'B': "DN", 'Z': "EQ", 'J': "IL", 'X': "ACDEFGHIKLMNPQRSTVWY",
	})
	return a
}

func mustRegister(a *Alphabet) *Alphabet {
	if err := Register(a); err != nil {
		panic(err)
	}
	return a
}

// NewAlphabet builds an alphabet whose codes follow the order of symbols.
// Symbols are case-insensitive for letters.
func NewAlphabet(name, symbols string) (*Alphabet, error) {
	if len(symbols) == 0 || len(symbols) > maxSymbols {
		return nil, fmt.Errorf("alphabet %q must have 1..%d symbols, got %d: %w",
			name, maxSymbols, len(symbols), ErrInvalidArgument)
	}
	a := &Alphabet{
		name:    name,
		symbols: []byte(symbols),
	}
	for i := range a.codes {
		a.codes[i] = -1
	}
	for i := 0; i < len(symbols); i++ {
		c := upper(symbols[i])
		if a.codes[c] >= 0 {
			return nil, fmt.Errorf("alphabet %q repeats symbol %q: %w", name, c, ErrInvalidArgument)
		}
		a.codes[c] = int8(i)
		a.codes[lower(c)] = int8(i)
		a.symbols[i] = c
	}
	a.bits = uint(bits.Len(uint(len(symbols) - 1)))
	if a.bits == 0 {
		a.bits = 1
	}
	return a, nil
}

// Register makes an alphabet reachable through AlphabetByName.
func Register(a *Alphabet) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, ok := registry[a.name]; ok && prev != a {
		return fmt.Errorf("alphabet %q already registered: %w", a.name, ErrInvalidArgument)
	}
	registry[a.name] = a
	return nil
}

// AlphabetByName returns a registered alphabet.
func AlphabetByName(name string) (*Alphabet, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := registry[name]
	return a, ok
}

// Alphabets lists the registered alphabet names in sorted order.
func Alphabets() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Alphabet) addWildcards(m map[byte]string) {
	a.wildcards = make(map[byte][]uint8, len(m))
	for sym, expansion := range m {
		codes := make([]uint8, 0, len(expansion))
		for i := 0; i < len(expansion); i++ {
			codes = append(codes, uint8(a.codes[expansion[i]]))
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
		a.wildcards[sym] = codes
	}
}

// Name returns the registry name.
func (a *Alphabet) Name() string { return a.name }

// Size returns the number of codes.
func (a *Alphabet) Size() int { return len(a.symbols) }

// BitsPerCode returns the packed width of one code.
func (a *Alphabet) BitsPerCode() uint { return a.bits }

// Code returns the code of symbol, or false if the symbol is not part of the
// alphabet. Wildcards are not codes.
func (a *Alphabet) Code(symbol byte) (uint8, bool) {
	c := a.codes[symbol]
	if c < 0 {
		return 0, false
	}
	return uint8(c), true
}

// Symbol returns the upper-case symbol for code.
func (a *Alphabet) Symbol(code uint8) byte {
	return a.symbols[code]
}

// Wildcard looks up an ambiguity symbol.
func (a *Alphabet) Wildcard(symbol byte) (Wildcard, bool) {
	codes, ok := a.wildcards[upper(symbol)]
	if !ok {
		return Wildcard{}, false
	}
	return Wildcard{Symbol: upper(symbol), Codes: codes}, true
}

// Wildcards counts the ambiguity symbols in text.
func (a *Alphabet) Wildcards(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		if _, ok := a.Code(text[i]); ok {
			continue
		}
		if _, ok := a.Wildcard(text[i]); ok {
			n++
		}
	}
	return n
}

// HasComplement reports whether ReverseComplement is defined.
func (a *Alphabet) HasComplement() bool { return a.complement != nil }

// String implements fmt.Stringer.
func (a *Alphabet) String() string { return a.name }

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c - 'A' + 'a'
	}
	return c
}
