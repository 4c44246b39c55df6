package snapshot

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type segment struct {
	Name  string   `msgpack:"name"`
	Start int      `msgpack:"start"`
	Tags  []string `msgpack:"tags"`
}

func TestWriteReadRebuildsTree(t *testing.T) {
	src := tree.NewMap[segment](seq.Nucleotide)
	entries := map[string]segment{
		"ATTACACA": {Name: "chr1", Start: 10, Tags: []string{"a"}},
		"ATTA":     {Name: "chr1", Start: 4},
		"":         {Name: "empty"},
		"GGGCCC":   {Name: "chr2", Start: 99, Tags: []string{"x", "y"}},
	}
	for k, v := range entries {
		_, _, err := src.Put(seq.MustParse(seq.Nucleotide, k), v)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := Write[segment](&buf, src)
	require.NoError(t, err)
	assert.Equal(t, len(entries), n)

	m, err := Read[segment](&buf)
	require.NoError(t, err)
	assert.Equal(t, seq.Nucleotide, m.Alphabet())
	assert.Equal(t, len(entries), m.Len())
	for k, want := range entries {
		got, ok, err := m.GetValue(seq.MustParse(seq.Nucleotide, k))
		require.NoError(t, err)
		require.True(t, ok, "key %q", k)
		assert.Equal(t, want, got)
	}

	// the rebuilt tree answers searches like the original
	params := tree.SearchParameters{Penalties: []float64{1, 1, 1}, MaxPenalty: 1}
	hits, err := m.Search(seq.MustParse(seq.Nucleotide, "ATTGCACA"), params, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chr1", hits[0].Value.Name)
}

func TestReadIntoConcurrentMap(t *testing.T) {
	src := tree.NewConcurrentMap[int](seq.AminoAcid)
	for i, k := range []string{"MKV", "MKVL*", "W"} {
		_, _, _ = src.Put(seq.MustParse(seq.AminoAcid, k), i)
	}
	var buf bytes.Buffer
	_, err := Write[int](&buf, src)
	require.NoError(t, err)

	dst := tree.NewConcurrentMap[int](seq.AminoAcid)
	n, err := ReadInto[int](bytes.NewReader(buf.Bytes()), dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, dst.Len())

	wrong := tree.NewMap[int](seq.Nucleotide)
	_, err = ReadInto[int](bytes.NewReader(buf.Bytes()), wrong)
	assert.True(t, errors.Is(err, seq.ErrAlphabetMismatch))
}

func TestReadRejectsBadStreams(t *testing.T) {
	encode := func(values ...any) []byte {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		for _, v := range values {
			require.NoError(t, enc.Encode(v))
		}
		return buf.Bytes()
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"future version", encode(Header{Version: 9, Alphabet: "nucleotide"})},
		{"unknown alphabet", encode(Header{Version: Version, Alphabet: "rna"})},
		{"truncated", encode(Header{Version: Version, Alphabet: "nucleotide", Count: 2}, Record[int]{Key: "AC", Value: 1})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read[int](bytes.NewReader(tc.data))
			assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
		})
	}

	bad := encode(Header{Version: Version, Alphabet: "nucleotide", Count: 1}, Record[int]{Key: "ACXZ", Value: 1})
	_, err := Read[int](bytes.NewReader(bad))
	assert.True(t, errors.Is(err, seq.ErrInvalidSymbol))
}

func TestSaveLoadMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")
	src := tree.NewMap[string](seq.Nucleotide)
	_, _, _ = src.Put(seq.MustParse(seq.Nucleotide, "GATTACA"), "film")

	require.NoError(t, SaveMap[string](path, src))
	m, err := LoadMap[string](path)
	require.NoError(t, err)
	v, ok, _ := m.GetValue(seq.MustParse(seq.Nucleotide, "GATTACA"))
	assert.True(t, ok)
	assert.Equal(t, "film", v)

	dst := tree.NewConcurrentMap[string](seq.Nucleotide)
	n, err := LoadInto[string](path, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = LoadMap[string](filepath.Join(t.TempDir(), "missing.snap"))
	assert.Error(t, err)
}
