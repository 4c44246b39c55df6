/*
Package library keeps a set of named reference segments indexed by sequence.

Segments come from FASTA files. Identical sequences share one tree entry, a
[Bucket] listing every segment name that carries them, so a neighborhood
search reports each distinct sequence once together with all its names.
Names are also kept in a patricia trie for prefix lookups such as "chr1_".

Loading a directory reads files in parallel straight into a
tree.ConcurrentMap.
*/
package library

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/seqtree/internal/logger"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Segment is one named reference sequence.
type Segment struct {
	Name     string
	Source   string
	Sequence seq.Sequence
}

// Bucket lists the names of all segments sharing a sequence.
type Bucket struct {
	mu    sync.Mutex
	names []string
}

func (b *Bucket) add(name string) {
	b.mu.Lock()
	b.names = append(b.names, name)
	b.mu.Unlock()
}

// remove drops name and reports whether the bucket is now empty.
func (b *Bucket) remove(name string) (found, empty bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.names {
		if n == name {
			b.names = append(b.names[:i], b.names[i+1:]...)
			return true, len(b.names) == 0
		}
	}
	return false, len(b.names) == 0
}

// Names returns a sorted copy of the segment names.
func (b *Bucket) Names() []string {
	b.mu.Lock()
	out := append([]string(nil), b.names...)
	b.mu.Unlock()
	sort.Strings(out)
	return out
}

// Match is one distinct sequence found near a query.
type Match struct {
	Names     []string
	Sequence  seq.Sequence
	Penalty   float64
	Mutations []tree.Mutation
}

// Library indexes segments of one alphabet.
type Library struct {
	alphabet *seq.Alphabet
	index    *tree.ConcurrentMap[*Bucket]
	logger   *log.Logger

	// structure guards the tree shape: Add and searches hold it shared,
	// Remove and Compact exclusively.
	structure sync.RWMutex

	namesMu sync.RWMutex
	names   *patricia.Trie

	segments atomic.Int64
}

// New creates an empty library for alphabet a.
func New(a *seq.Alphabet) *Library {
	return &Library{
		alphabet: a,
		index:    tree.NewConcurrentMap[*Bucket](a),
		logger:   logger.New("library"),
		names:    patricia.NewTrie(),
	}
}

// Alphabet returns the segment alphabet.
func (l *Library) Alphabet() *seq.Alphabet { return l.alphabet }

// Len is the number of segments.
func (l *Library) Len() int { return int(l.segments.Load()) }

// Distinct is the number of distinct sequences.
func (l *Library) Distinct() int { return l.index.Len() }

// Stats exposes the counters of the underlying tree.
func (l *Library) Stats() tree.StatsSnapshot { return l.index.Stats() }

// Add registers a segment. Names must be unique. Safe for concurrent use.
func (l *Library) Add(s Segment) error {
	if s.Name == "" {
		return fmt.Errorf("segment without name: %w", seq.ErrInvalidArgument)
	}
	if s.Sequence.Alphabet() != l.alphabet {
		return fmt.Errorf("segment %s: %w", s.Name, seq.ErrAlphabetMismatch)
	}

	l.structure.RLock()
	defer l.structure.RUnlock()

	l.namesMu.Lock()
	inserted := l.names.Insert(patricia.Prefix(s.Name), s)
	l.namesMu.Unlock()
	if !inserted {
		return fmt.Errorf("duplicate segment name %q: %w", s.Name, seq.ErrInvalidArgument)
	}

	bucket, err := l.index.GetOrCreateSync(s.Sequence, func() *Bucket { return &Bucket{} })
	if err != nil {
		return err
	}
	bucket.add(s.Name)
	l.segments.Add(1)
	return nil
}

// Remove drops the named segment. A sequence left without names leaves the
// index; its branch is reclaimed by the next Compact.
func (l *Library) Remove(name string) bool {
	l.namesMu.Lock()
	item := l.names.Get(patricia.Prefix(name))
	if item != nil {
		l.names.Delete(patricia.Prefix(name))
	}
	l.namesMu.Unlock()
	if item == nil {
		return false
	}
	s := item.(Segment)

	l.structure.Lock()
	defer l.structure.Unlock()
	bucket, ok, _ := l.index.Get(s.Sequence)
	if !ok {
		return false
	}
	if found, empty := bucket.remove(name); found {
		l.segments.Add(-1)
		if empty {
			_, _ = l.index.RemoveDirtySync(s.Sequence)
		}
	}
	return true
}

// Compact reclaims branches emptied by Remove.
func (l *Library) Compact() int {
	l.structure.Lock()
	defer l.structure.Unlock()
	removed := l.index.RemoveEmptyBranches()
	l.logger.Debugf("Compacted index: %d nodes freed", removed)
	return removed
}

// Segment returns the segment registered under name.
func (l *Library) Segment(name string) (Segment, bool) {
	l.namesMu.RLock()
	defer l.namesMu.RUnlock()
	item := l.names.Get(patricia.Prefix(name))
	if item == nil {
		return Segment{}, false
	}
	return item.(Segment), true
}

var errStopVisit = errors.New("stop visit")

// ByNamePrefix lists segments whose name starts with prefix, in name order.
// limit <= 0 means no limit.
func (l *Library) ByNamePrefix(prefix string, limit int) []Segment {
	var out []Segment
	l.namesMu.RLock()
	err := l.names.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
		out = append(out, item.(Segment))
		if limit > 0 && len(out) >= limit {
			return errStopVisit
		}
		return nil
	})
	l.namesMu.RUnlock()
	if err != nil && !errors.Is(err, errStopVisit) {
		log.Errorf("Visiting names under %q: %v", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the names of segments with exactly sequence s.
func (l *Library) Lookup(s seq.Sequence) ([]string, error) {
	bucket, ok, err := l.index.Get(s)
	if err != nil || !ok {
		return nil, err
	}
	return bucket.Names(), nil
}

// Nearest returns the distinct sequences within the budget of params around
// query, best first. limit <= 0 means no limit.
func (l *Library) Nearest(query seq.Sequence, params tree.SearchParameters, limit int) ([]Match, error) {
	l.structure.RLock()
	defer l.structure.RUnlock()

	hits, err := l.index.Search(query, params, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{
			Names:     h.Value.Names(),
			Sequence:  h.Key,
			Penalty:   h.Penalty,
			Mutations: h.Mutations,
		})
	}
	return matches, nil
}

// Segments yields all segments grouped by sequence in code order.
func (l *Library) Segments(yield func(Segment) bool) {
	for key, bucket := range l.index.All() {
		for _, name := range bucket.Names() {
			s, ok := l.Segment(name)
			if !ok {
				s = Segment{Name: name, Sequence: key}
			}
			if !yield(s) {
				return
			}
		}
	}
}

// All yields each distinct sequence with its segment names. Together with
// Put it lets a library be written to and read from snapshots.
func (l *Library) All() iter.Seq2[seq.Sequence, []string] {
	return func(yield func(seq.Sequence, []string) bool) {
		for key, bucket := range l.index.All() {
			if !yield(key, bucket.Names()) {
				return
			}
		}
	}
}

// Put adds one segment per name, all carrying key, and returns the names
// key already had.
func (l *Library) Put(key seq.Sequence, names []string) ([]string, bool, error) {
	previous, err := l.Lookup(key)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		if err := l.Add(Segment{Name: name, Sequence: key}); err != nil {
			return previous, len(previous) > 0, err
		}
	}
	return previous, len(previous) > 0, nil
}
