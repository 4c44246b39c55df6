package seq

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Sequence is an immutable, fixed-length list of alphabet codes packed into
// 64-bit words. Codes never straddle a word boundary; unused high bits are
// always zero so words can be compared directly.
type Sequence struct {
	alphabet *Alphabet
	n        int
	words    []uint64
}

// ParseOptions controls text conversion.
type ParseOptions struct {
	// ResolveWildcards replaces an ambiguity symbol by the lowest code it
	// expands to instead of rejecting it.
	ResolveWildcards bool
}

// Parse converts text into a sequence, rejecting any character without a
// code, wildcards included.
func Parse(a *Alphabet, text string) (Sequence, error) {
	return ParseWithOptions(a, text, ParseOptions{})
}

// MustParse is Parse for literals known to be valid.
func MustParse(a *Alphabet, text string) Sequence {
	s, err := Parse(a, text)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseWithOptions converts text into a sequence.
func ParseWithOptions(a *Alphabet, text string, opts ParseOptions) (Sequence, error) {
	b := NewBuilder(a, len(text))
	for i := 0; i < len(text); i++ {
		code, ok := a.Code(text[i])
		if !ok {
			w, isWildcard := a.Wildcard(text[i])
			if !opts.ResolveWildcards || !isWildcard || len(w.Codes) == 0 {
				return Sequence{}, fmt.Errorf("%q at position %d for alphabet %s: %w",
					text[i], i, a.name, ErrInvalidSymbol)
			}
			code = w.Codes[0]
		}
		b.set(i, code)
	}
	return b.Build(), nil
}

// FromCodes builds a sequence from raw codes.
func FromCodes(a *Alphabet, codes []uint8) (Sequence, error) {
	b := NewBuilder(a, len(codes))
	for i, c := range codes {
		if err := b.Set(i, c); err != nil {
			return Sequence{}, err
		}
	}
	return b.Build(), nil
}

// Builder fills a sequence of fixed length. It must not be used after Build.
type Builder struct {
	alphabet *Alphabet
	n        int
	words    []uint64
}

// NewBuilder allocates a builder for n codes, all initialised to code 0.
func NewBuilder(a *Alphabet, n int) *Builder {
	return &Builder{
		alphabet: a,
		n:        n,
		words:    make([]uint64, wordsFor(a, n)),
	}
}

// Set stores code at position i.
func (b *Builder) Set(i int, code uint8) error {
	if i < 0 || i >= b.n {
		return fmt.Errorf("position %d of %d: %w", i, b.n, ErrIndexOutOfBounds)
	}
	if int(code) >= b.alphabet.Size() {
		return fmt.Errorf("code %d for alphabet %s: %w", code, b.alphabet.name, ErrInvalidSymbol)
	}
	b.set(i, code)
	return nil
}

func (b *Builder) set(i int, code uint8) {
	per := perWord(b.alphabet)
	shift := uint(i%per) * b.alphabet.bits
	w := &b.words[i/per]
	*w &^= mask(b.alphabet) << shift
	*w |= uint64(code) << shift
}

// Build returns the finished sequence.
func (b *Builder) Build() Sequence {
	return Sequence{alphabet: b.alphabet, n: b.n, words: b.words}
}

func perWord(a *Alphabet) int { return 64 / int(a.bits) }

func mask(a *Alphabet) uint64 { return 1<<a.bits - 1 }

func wordsFor(a *Alphabet, n int) int {
	per := perWord(a)
	return (n + per - 1) / per
}

// Alphabet returns the alphabet the sequence was built from.
func (s Sequence) Alphabet() *Alphabet { return s.alphabet }

// Len returns the number of codes.
func (s Sequence) Len() int { return s.n }

// CodeAt returns the code at position i. Like a slice index it panics when i
// is out of range; the panic value wraps ErrIndexOutOfBounds.
func (s Sequence) CodeAt(i int) uint8 {
	if i < 0 || i >= s.n {
		panic(fmt.Errorf("position %d of %d: %w", i, s.n, ErrIndexOutOfBounds))
	}
	return s.code(i)
}

// At is the checked form of CodeAt.
func (s Sequence) At(i int) (uint8, error) {
	if i < 0 || i >= s.n {
		return 0, fmt.Errorf("position %d of %d: %w", i, s.n, ErrIndexOutOfBounds)
	}
	return s.code(i), nil
}

func (s Sequence) code(i int) uint8 {
	per := perWord(s.alphabet)
	return uint8(s.words[i/per] >> (uint(i%per) * s.alphabet.bits) & mask(s.alphabet))
}

// Codes copies the codes into a new slice.
func (s Sequence) Codes() []uint8 {
	out := make([]uint8, s.n)
	for i := range out {
		out[i] = s.code(i)
	}
	return out
}

// Equal compares alphabet identity and content.
func (s Sequence) Equal(o Sequence) bool {
	if s.alphabet != o.alphabet || s.n != o.n {
		return false
	}
	for i := range s.words {
		if s.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Hash is consistent with Equal.
func (s Sequence) Hash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(s.alphabet.name)
	_, _ = d.WriteString(s.Key())
	return d.Sum64()
}

// Key returns a compact string usable as a Go map key. Sequences with equal
// keys and the same alphabet are Equal.
func (s Sequence) Key() string {
	buf := make([]byte, 8+8*len(s.words))
	binary.LittleEndian.PutUint64(buf, uint64(s.n))
	for i, w := range s.words {
		binary.LittleEndian.PutUint64(buf[8+8*i:], w)
	}
	return string(buf)
}

// String renders the sequence with upper-case symbols.
func (s Sequence) String() string {
	if s.alphabet == nil {
		return ""
	}
	var sb strings.Builder
	sb.Grow(s.n)
	for i := 0; i < s.n; i++ {
		sb.WriteByte(s.alphabet.symbols[s.code(i)])
	}
	return sb.String()
}

// Sub returns the codes in [from, to).
func (s Sequence) Sub(from, to int) (Sequence, error) {
	if from > to {
		return Sequence{}, fmt.Errorf("range [%d, %d): %w", from, to, ErrInvalidArgument)
	}
	if from < 0 || to > s.n {
		return Sequence{}, fmt.Errorf("range [%d, %d) of %d: %w", from, to, s.n, ErrIndexOutOfBounds)
	}
	b := NewBuilder(s.alphabet, to-from)
	for i := from; i < to; i++ {
		b.set(i-from, s.code(i))
	}
	return b.Build(), nil
}

// Concat appends o to s.
func (s Sequence) Concat(o Sequence) (Sequence, error) {
	if s.alphabet != o.alphabet {
		return Sequence{}, fmt.Errorf("concat %s with %s: %w", s.alphabet, o.alphabet, ErrAlphabetMismatch)
	}
	b := NewBuilder(s.alphabet, s.n+o.n)
	for i := 0; i < s.n; i++ {
		b.set(i, s.code(i))
	}
	for i := 0; i < o.n; i++ {
		b.set(s.n+i, o.code(i))
	}
	return b.Build(), nil
}

// ReverseComplement is defined for alphabets with a complement table only.
func (s Sequence) ReverseComplement() (Sequence, error) {
	if s.alphabet.complement == nil {
		return Sequence{}, fmt.Errorf("reverse complement of %s sequence: %w", s.alphabet, ErrInvalidArgument)
	}
	b := NewBuilder(s.alphabet, s.n)
	for i := 0; i < s.n; i++ {
		b.set(s.n-1-i, s.alphabet.complement[s.code(i)])
	}
	return b.Build(), nil
}
