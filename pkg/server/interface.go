/*
Package server implements msgpack IPC for approximate sequence search.

Clients write msgpack maps to stdin and read one msgpack map per request from
stdout. Once the library is loaded the server announces itself:

	{"status": "ready"}

# IPC

Every request carries an ID that is echoed back. Action defaults to "search",
which returns the distinct reference sequences near the query, best first:

	{"id": "q1", "q": "ATTACACA", "l": 8}
	{"id": "q1", "m": [{"n": ["chr1_a"], "s": "ATTAGCACA", "p": 1, "x": ["I4:G"]}], "c": 1, "t": 212}

Mutations are written as <type><position>:<symbol>, where type is M
(mismatch), D (deletion) or I (insertion) and position indexes the query.

A request may pick another penalty preset or an explicit penalty budget:

	{"id": "q2", "q": "ATTACACA", "preset": "fuzzy"}
	{"id": "q3", "q": "ATTACACA", "mp": 2.5}

Budgets never exceed server.max_penalty: a larger "mp" is rejected and a
preset threshold is clamped to it. A budget expanding to more than
server.max_combinations edit combinations is rejected as well.

Other actions:

	{"id": "g1", "action": "get", "q": "GATTACA"}     exact lookup
	{"id": "n1", "action": "names", "q": "chr1_"}     segments by name prefix
	{"id": "i1", "action": "info"}                    index counters
	{"id": "h1", "action": "health"}

Failures come back as an ErrorResponse with an HTTP-like code: 400 for bad
requests, 500 for internal errors. A message that does not decode as a
request is answered with a 400 and the stream goes on.

TimeTaken is in microseconds. Repeated searches are answered from a result
cache sized by server.cache_size.
*/
package server

// Request is any client message.
type Request struct {
	ID         string   `msgpack:"id"`
	Action     string   `msgpack:"action,omitempty"` // "search" (default), "get", "names", "info", "health"
	Query      string   `msgpack:"q"`
	Limit      int      `msgpack:"l,omitempty"`
	Preset     string   `msgpack:"preset,omitempty"`
	MaxPenalty *float64 `msgpack:"mp,omitempty"`
}

// MatchResult is one distinct sequence near the query.
type MatchResult struct {
	Names     []string `msgpack:"n"`
	Sequence  string   `msgpack:"s"`
	Penalty   float64  `msgpack:"p"`
	Mutations []string `msgpack:"x,omitempty"`
}

// SearchResponse answers a search.
type SearchResponse struct {
	ID        string        `msgpack:"id"`
	Matches   []MatchResult `msgpack:"m"`
	Count     int           `msgpack:"c"`
	TimeTaken int64         `msgpack:"t"`
}

// GetResponse answers an exact lookup.
type GetResponse struct {
	ID    string   `msgpack:"id"`
	Found bool     `msgpack:"f"`
	Names []string `msgpack:"n,omitempty"`
}

// SegmentInfo describes one named segment.
type SegmentInfo struct {
	Name   string `msgpack:"n"`
	Source string `msgpack:"src,omitempty"`
	Length int    `msgpack:"len"`
}

// NamesResponse answers a name prefix lookup.
type NamesResponse struct {
	ID       string        `msgpack:"id"`
	Segments []SegmentInfo `msgpack:"s"`
	Count    int           `msgpack:"c"`
}

// InfoResponse reports index counters.
type InfoResponse struct {
	ID        string `msgpack:"id"`
	Status    string `msgpack:"status"`
	Alphabet  string `msgpack:"alphabet"`
	Preset    string `msgpack:"preset"`
	Segments  int    `msgpack:"segments"`
	Distinct  int    `msgpack:"distinct"`
	LiveNodes int64  `msgpack:"live_nodes"`
	Requests  int    `msgpack:"requests"`
	Cached    int    `msgpack:"cached"`
	CacheHits int    `msgpack:"cache_hits"`
}

// StatusResponse carries the ready and health notices.
type StatusResponse struct {
	ID     string `msgpack:"id,omitempty"`
	Status string `msgpack:"status"`
}

// ErrorResponse holds basic error information for any request
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
