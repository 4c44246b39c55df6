package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/snapshot"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `>chr1_a first
ATTACACA
>chr1_b duplicate of a
attacaca
>chr2_a with an ambiguity code
GATTNCA
>bad contains Q
ACGTQ
>chr3_a
ATTAGCACA
`

func nt(s string) seq.Sequence { return seq.MustParse(seq.Nucleotide, s) }

func TestLoadFASTA(t *testing.T) {
	l := New(seq.Nucleotide)
	stats, err := l.LoadFASTA(strings.NewReader(sample), "sample.fa")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Segments)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, 3, l.Distinct())

	names, err := l.Lookup(nt("ATTACACA"))
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1_a", "chr1_b"}, names)

	// N resolves to A
	names, err = l.Lookup(nt("GATTACA"))
	require.NoError(t, err)
	assert.Equal(t, []string{"chr2_a"}, names)

	s, ok := l.Segment("chr3_a")
	require.True(t, ok)
	assert.Equal(t, "sample.fa", s.Source)
	assert.Equal(t, "ATTAGCACA", s.Sequence.String())

	_, ok = l.Segment("bad")
	assert.False(t, ok)
}

func TestByNamePrefix(t *testing.T) {
	l := New(seq.Nucleotide)
	_, err := l.LoadFASTA(strings.NewReader(sample), "sample.fa")
	require.NoError(t, err)

	testCases := []struct {
		prefix string
		limit  int
		want   []string
	}{
		{"chr1", 0, []string{"chr1_a", "chr1_b"}},
		{"chr", 0, []string{"chr1_a", "chr1_b", "chr2_a", "chr3_a"}},
		{"chr", 1, []string{"chr1_a"}},
		{"chrX", 0, nil},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s_%d", tc.prefix, tc.limit), func(t *testing.T) {
			var got []string
			for _, s := range l.ByNamePrefix(tc.prefix, tc.limit) {
				got = append(got, s.Name)
			}
			if tc.limit == 1 {
				assert.Len(t, got, 1)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNearest(t *testing.T) {
	l := New(seq.Nucleotide)
	_, err := l.LoadFASTA(strings.NewReader(sample), "sample.fa")
	require.NoError(t, err)

	params := tree.SearchParameters{Penalties: []float64{1, 1, 1}, MaxPenalty: 1}
	matches, err := l.Nearest(nt("ATTACACA"), params, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, []string{"chr1_a", "chr1_b"}, matches[0].Names)
	assert.Zero(t, matches[0].Penalty)
	assert.Equal(t, []string{"chr3_a"}, matches[1].Names)
	assert.Equal(t, 1.0, matches[1].Penalty)
	assert.Equal(t, []tree.Mutation{{Type: tree.Insertion, Position: 4, Code: 2}}, matches[1].Mutations)

	_, err = l.Nearest(seq.MustParse(seq.AminoAcid, "MKV"), params, 0)
	assert.True(t, errors.Is(err, seq.ErrAlphabetMismatch))
}

func TestAddRejects(t *testing.T) {
	l := New(seq.Nucleotide)
	require.NoError(t, l.Add(Segment{Name: "x", Sequence: nt("ACGT")}))

	err := l.Add(Segment{Name: "x", Sequence: nt("ACGA")})
	assert.True(t, errors.Is(err, seq.ErrInvalidArgument))
	err = l.Add(Segment{Name: "", Sequence: nt("ACGA")})
	assert.True(t, errors.Is(err, seq.ErrInvalidArgument))
	err = l.Add(Segment{Name: "p", Sequence: seq.MustParse(seq.AminoAcid, "MKV")})
	assert.True(t, errors.Is(err, seq.ErrAlphabetMismatch))
	assert.Equal(t, 1, l.Len())
}

func TestRemoveAndCompact(t *testing.T) {
	l := New(seq.Nucleotide)
	require.NoError(t, l.Add(Segment{Name: "a", Sequence: nt("ACGTACGT")}))
	require.NoError(t, l.Add(Segment{Name: "b", Sequence: nt("ACGTACGT")}))
	require.NoError(t, l.Add(Segment{Name: "c", Sequence: nt("ACGT")}))

	assert.True(t, l.Remove("a"))
	assert.False(t, l.Remove("a"))
	names, _ := l.Lookup(nt("ACGTACGT"))
	assert.Equal(t, []string{"b"}, names)
	assert.Zero(t, l.Compact())

	assert.True(t, l.Remove("b"))
	names, _ = l.Lookup(nt("ACGTACGT"))
	assert.Empty(t, names)
	assert.Equal(t, 4, l.Compact())
	assert.Equal(t, 1, l.Distinct())
	assert.Equal(t, 1, l.Len())
}

func TestLoadDirParallel(t *testing.T) {
	dir := t.TempDir()
	const files, perFile = 8, 50
	for f := 0; f < files; f++ {
		var buf bytes.Buffer
		for i := 0; i < perFile; i++ {
			// every file shares its first ten sequences
			value := i
			if i >= 10 {
				value = 512 + f*perFile + i
			}
			body := strings.NewReplacer("0", "A", "1", "C").Replace(fmt.Sprintf("%011b", value))
			fmt.Fprintf(&buf, ">f%d_s%d\n%s\n", f, i, body)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("part%d.fa", f)), buf.Bytes(), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	l := New(seq.Nucleotide)
	stats, err := l.LoadDir(context.Background(), dir, "*.fa", 4)
	require.NoError(t, err)
	assert.Equal(t, files, stats.Files)
	assert.Equal(t, files*perFile, stats.Segments)
	assert.Equal(t, files*perFile, l.Len())

	shared, err := l.Lookup(nt("AAAAAAAAAAC"))
	require.NoError(t, err)
	assert.Len(t, shared, files)

	_, err = l.LoadDir(context.Background(), dir, "*.fasta", 4)
	assert.Error(t, err)
}

func TestLoadDirCancelled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.fa"), []byte(">a\nACGT\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(seq.Nucleotide).LoadDir(ctx, dir, "*.fa", 2)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentAdd(t *testing.T) {
	l := New(seq.Nucleotide)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s := nt(strings.Repeat("AC", 1+i%7))
				if err := l.Add(Segment{Name: fmt.Sprintf("w%d_%d", w, i), Sequence: s}); err != nil {
					t.Errorf("Add: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, l.Len())
	assert.Equal(t, 7, l.Distinct())
	names, _ := l.Lookup(nt("AC"))
	assert.Len(t, names, 8*15)
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New(seq.Nucleotide)
	_, err := l.LoadFASTA(strings.NewReader(sample), "sample.fa")
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := snapshot.Write[[]string](&buf, l)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	restored := New(seq.Nucleotide)
	_, err = snapshot.ReadInto[[]string](&buf, restored)
	require.NoError(t, err)
	assert.Equal(t, l.Len(), restored.Len())
	names, _ := restored.Lookup(nt("ATTACACA"))
	assert.Equal(t, []string{"chr1_a", "chr1_b"}, names)
}
