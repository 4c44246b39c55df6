package server

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/bastiangx/seqtree/internal/metrics"
	"github.com/bastiangx/seqtree/pkg/config"
	"github.com/bastiangx/seqtree/pkg/library"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const sample = `>chr1_a
ATTACACA
>chr1_b
ATTACACA
>chr2_a
GATTACA
>chr3_a
ATTAGCACA
`

func newLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib := library.New(seq.Nucleotide)
	_, err := lib.LoadFASTA(strings.NewReader(sample), "sample.fa")
	require.NoError(t, err)
	return lib
}

// run feeds messages to a fresh server and returns a decoder over its output,
// positioned after the ready notice.
func run(t *testing.T, cfg *config.Config, m *metrics.Metrics, messages ...any) *msgpack.Decoder {
	t.Helper()
	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, msg := range messages {
		require.NoError(t, enc.Encode(msg))
	}

	var out bytes.Buffer
	srv := NewServerWithIO(newLibrary(t), cfg, m, &in, &out)
	require.NoError(t, srv.Start())

	dec := msgpack.NewDecoder(&out)
	var ready StatusResponse
	require.NoError(t, dec.Decode(&ready))
	require.Equal(t, "ready", ready.Status)
	return dec
}

func floatPtr(f float64) *float64 { return &f }

func TestSearch(t *testing.T) {
	dec := run(t, config.DefaultConfig(), nil,
		Request{ID: "strict", Query: "ATTACACA"},
		Request{ID: "fuzzy", Query: "att aca-ca", Preset: "fuzzy"},
		Request{ID: "exact", Query: "ATTACACA", Preset: "fuzzy", MaxPenalty: floatPtr(0)},
		Request{ID: "limited", Query: "ATTACACA", Preset: "fuzzy", Limit: 1},
	)

	var strict SearchResponse
	require.NoError(t, dec.Decode(&strict))
	assert.Equal(t, "strict", strict.ID)
	require.Equal(t, 1, strict.Count)
	assert.Equal(t, []string{"chr1_a", "chr1_b"}, strict.Matches[0].Names)
	assert.Equal(t, "ATTACACA", strict.Matches[0].Sequence)
	assert.Empty(t, strict.Matches[0].Mutations)

	var fuzzy SearchResponse
	require.NoError(t, dec.Decode(&fuzzy))
	require.Equal(t, 2, fuzzy.Count)
	assert.Equal(t, []string{"chr3_a"}, fuzzy.Matches[1].Names)
	assert.Equal(t, 1.5, fuzzy.Matches[1].Penalty)
	assert.Equal(t, []string{"I4:G"}, fuzzy.Matches[1].Mutations)

	var exact SearchResponse
	require.NoError(t, dec.Decode(&exact))
	assert.Equal(t, 1, exact.Count)

	var limited SearchResponse
	require.NoError(t, dec.Decode(&limited))
	assert.Equal(t, 1, limited.Count)
}

func TestRejectsBadRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.MaxQueryLength = 16

	testCases := []struct {
		name    string
		message any
		id      string
	}{
		{"not a request", "hello", ""},
		{"missing query", Request{ID: "r1"}, "r1"},
		{"digits only", Request{ID: "r2", Query: "1234"}, "r2"},
		{"foreign symbol", Request{ID: "r3", Query: "ATTQ"}, "r3"},
		{"too long", Request{ID: "r4", Query: strings.Repeat("A", 17)}, "r4"},
		{"unknown preset", Request{ID: "r5", Query: "ACGT", Preset: "bogus"}, "r5"},
		{"unknown action", Request{ID: "r6", Action: "drop"}, "r6"},
		{"names without prefix", Request{ID: "r7", Action: "names"}, "r7"},
	}

	messages := make([]any, 0, len(testCases)+1)
	for _, tc := range testCases {
		messages = append(messages, tc.message)
	}
	// the stream survives every bad message
	messages = append(messages, Request{ID: "after", Action: "health"})
	dec := run(t, cfg, nil, messages...)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var resp ErrorResponse
			require.NoError(t, dec.Decode(&resp))
			assert.Equal(t, tc.id, resp.ID)
			assert.Equal(t, 400, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}

	var health StatusResponse
	require.NoError(t, dec.Decode(&health))
	assert.Equal(t, StatusResponse{ID: "after", Status: "ok"}, health)
}

func TestSearchBudgetIsBounded(t *testing.T) {
	long := strings.Repeat("ACGT", 250)

	dec := run(t, config.DefaultConfig(), nil, Request{ID: "long", Query: long})
	var resp SearchResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "long", resp.ID)
	assert.Zero(t, resp.Count)

	testCases := []struct {
		name    string
		request Request
	}{
		{"infinite", Request{Query: long, MaxPenalty: floatPtr(math.Inf(1))}},
		{"not a number", Request{Query: "ACGT", MaxPenalty: floatPtr(math.NaN())}},
		{"above server max", Request{Query: "ACGT", MaxPenalty: floatPtr(1e9)}},
		{"negative", Request{Query: "ACGT", MaxPenalty: floatPtr(-1)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.request.ID = tc.name
			dec := run(t, config.DefaultConfig(), nil, tc.request)
			var resp ErrorResponse
			require.NoError(t, dec.Decode(&resp))
			assert.Equal(t, tc.name, resp.ID)
			assert.Equal(t, 400, resp.Code)
		})
	}

	// uncapped fuzzy edits within the server max expand to 937 combinations
	cfg := config.DefaultConfig()
	cfg.Search.MaxErrors = nil
	cfg.Server.MaxCombinations = 100
	dec = run(t, cfg, nil, Request{ID: "wide", Query: long, Preset: "fuzzy"})
	var wide ErrorResponse
	require.NoError(t, dec.Decode(&wide))
	assert.Equal(t, 400, wide.Code)
	assert.Contains(t, wide.Error, "difference combinations")
}

func TestGetNamesInfo(t *testing.T) {
	dec := run(t, config.DefaultConfig(), nil,
		Request{ID: "g1", Action: "get", Query: "gattaca"},
		Request{ID: "g2", Action: "get", Query: "GATTACC"},
		Request{ID: "n1", Action: "names", Query: "chr1"},
		Request{ID: "i1", Action: "info"},
	)

	var found GetResponse
	require.NoError(t, dec.Decode(&found))
	assert.True(t, found.Found)
	assert.Equal(t, []string{"chr2_a"}, found.Names)

	var missing GetResponse
	require.NoError(t, dec.Decode(&missing))
	assert.False(t, missing.Found)

	var names NamesResponse
	require.NoError(t, dec.Decode(&names))
	require.Equal(t, 2, names.Count)
	assert.Equal(t, SegmentInfo{Name: "chr1_a", Source: "sample.fa", Length: 8}, names.Segments[0])

	var info InfoResponse
	require.NoError(t, dec.Decode(&info))
	assert.Equal(t, "nucleotide", info.Alphabet)
	assert.Equal(t, "strict", info.Preset)
	assert.Equal(t, 4, info.Segments)
	assert.Equal(t, 3, info.Distinct)
	assert.Positive(t, info.LiveNodes)
	assert.Equal(t, 4, info.Requests)
}

func TestRequestsAreCounted(t *testing.T) {
	lib := newLibrary(t)
	m := metrics.New(lib)

	var in, out bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	require.NoError(t, enc.Encode(Request{ID: "a", Query: "ACGT"}))
	require.NoError(t, enc.Encode(Request{ID: "b", Action: "nope"}))
	require.NoError(t, enc.Encode(Request{ID: "c", Action: "drop"}))
	require.NoError(t, NewServerWithIO(lib, config.DefaultConfig(), m, &in, &out).Start())

	count, err := testutil.GatherAndCount(m.Registry(), "seqtree_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// client supplied actions never become labels
	expected := `
# HELP seqtree_requests_total IPC requests by action and status code.
# TYPE seqtree_requests_total counter
seqtree_requests_total{action="search",code="200"} 1
seqtree_requests_total{action="unknown",code="400"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "seqtree_requests_total"))
}

func TestRepeatedSearchIsCached(t *testing.T) {
	dec := run(t, config.DefaultConfig(), nil,
		Request{ID: "first", Query: "ATTACACA", Preset: "fuzzy"},
		Request{ID: "second", Query: "attacaca", Preset: "fuzzy"},
		Request{ID: "i1", Action: "info"},
	)

	var first, second SearchResponse
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "second", second.ID)
	assert.Equal(t, first.Matches, second.Matches)

	var info InfoResponse
	require.NoError(t, dec.Decode(&info))
	assert.Equal(t, 1, info.Cached)
	assert.Equal(t, 1, info.CacheHits)
}
