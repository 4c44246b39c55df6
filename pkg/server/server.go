package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/bastiangx/seqtree/internal/logger"
	"github.com/bastiangx/seqtree/internal/metrics"
	"github.com/bastiangx/seqtree/internal/utils"
	"github.com/bastiangx/seqtree/pkg/config"
	"github.com/bastiangx/seqtree/pkg/library"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Server answers search requests over a msgpack stream.
type Server struct {
	library      *library.Library
	config       *config.Config
	metrics      *metrics.Metrics
	cache        *ResultCache
	reader       io.Reader
	writer       io.Writer
	logger       *log.Logger
	requestCount int
}

// NewServer creates a server using stdin/stdout for IPC. m may be nil.
func NewServer(lib *library.Library, cfg *config.Config, m *metrics.Metrics) *Server {
	return NewServerWithIO(lib, cfg, m, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server on explicit streams.
func NewServerWithIO(lib *library.Library, cfg *config.Config, m *metrics.Metrics, r io.Reader, w io.Writer) *Server {
	return &Server{
		library: lib,
		config:  cfg,
		metrics: m,
		cache:   NewResultCache(cfg.Server.CacheSize),
		reader:  r,
		writer:  w,
		logger:  logger.New("server"),
	}
}

// Start sends the ready notice and serves requests until the input ends.
func (s *Server) Start() error {
	s.logger.Debug("Starting Server.")
	s.sendResponse(StatusResponse{Status: "ready"})

	dec := msgpack.NewDecoder(bufio.NewReader(s.reader))
	for {
		raw, err := dec.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debugf("Input closed after %d requests", s.requestCount)
				return nil
			}
			s.logger.Errorf("Reading request stream: %v", err)
			return err
		}
		s.handleMessage(raw)
	}
}

func (s *Server) handleMessage(raw msgpack.RawMessage) {
	var request Request
	if err := msgpack.Unmarshal(raw, &request); err != nil {
		s.logger.Errorf("Unmarshaling request: %v", err)
		s.sendError("", "Invalid msgpack request", 400)
		return
	}
	s.requestCount++

	action := request.Action
	if action == "" {
		action = "search"
	}
	start := time.Now()
	code := s.handleRequest(action, request)
	if !actions[action] {
		action = "unknown"
	}
	s.metrics.ObserveRequest(action, code, time.Since(start))
}

// actions are the request actions served; anything else is labelled
// "unknown" in metrics.
var actions = map[string]bool{
	"search": true,
	"get":    true,
	"names":  true,
	"info":   true,
	"health": true,
}

// handleRequest dispatches one request and returns the status code sent.
func (s *Server) handleRequest(action string, request Request) int {
	switch action {
	case "search":
		return s.handleSearch(request)
	case "get":
		return s.handleGet(request)
	case "names":
		return s.handleNames(request)
	case "info":
		s.sendResponse(s.info(request.ID))
		return 200
	case "health":
		s.sendResponse(StatusResponse{ID: request.ID, Status: "ok"})
		return 200
	default:
		return s.sendError(request.ID, fmt.Sprintf("Unknown action: %s", action), 400)
	}
}

// parseQuery cleans and validates the query text of a request.
func (s *Server) parseQuery(request Request) (seq.Sequence, error) {
	text := utils.CleanSequenceText(request.Query)
	if text == "" {
		return seq.Sequence{}, errors.New("Missing 'q' parameter")
	}
	if len(text) > s.config.Server.MaxQueryLength {
		return seq.Sequence{}, fmt.Errorf("Query exceeds maximum length of %d symbols", s.config.Server.MaxQueryLength)
	}
	if !utils.IsValidQuery(text) {
		return seq.Sequence{}, errors.New("Query holds characters outside any alphabet")
	}
	query, err := seq.ParseWithOptions(s.library.Alphabet(), text, seq.ParseOptions{ResolveWildcards: true})
	if err != nil {
		return seq.Sequence{}, fmt.Errorf("Invalid query: %v", err)
	}
	return query, nil
}

// limit clamps the requested result count to the server bounds.
func (s *Server) limit(requested int) int {
	limit := requested
	if limit < 1 {
		limit = s.config.Search.Limit
	}
	if max := s.config.Server.MaxLimit; max > 0 && limit > max {
		limit = max
	}
	return limit
}

// parameters builds the search parameters for a query, honoring per-request
// overrides within the server budget.
func (s *Server) parameters(request Request, length int) (tree.SearchParameters, error) {
	search := s.config.Search
	if request.Preset != "" {
		search.Preset = request.Preset
	}
	params, err := search.Parameters(length)
	if err != nil {
		return params, err
	}
	if request.MaxPenalty != nil {
		mp := *request.MaxPenalty
		if mp < 0 || math.IsNaN(mp) || math.IsInf(mp, 0) {
			return params, fmt.Errorf("Invalid 'mp' parameter: %g", mp)
		}
		if max := s.config.Server.MaxPenalty; max > 0 && mp > max {
			return params, fmt.Errorf("'mp' exceeds maximum of %g", max)
		}
		params.MaxPenalty = mp
	}
	return s.config.Server.Bound(params), nil
}

func (s *Server) handleSearch(request Request) int {
	query, err := s.parseQuery(request)
	if err != nil {
		s.logger.Debugf("Rejected query %q: %v", request.Query, err)
		return s.sendError(request.ID, err.Error(), 400)
	}
	params, err := s.parameters(request, query.Len())
	if err != nil {
		return s.sendError(request.ID, err.Error(), 400)
	}

	limit := s.limit(request.Limit)
	key := fmt.Sprintf("%v|%g|%d|%s", params.Penalties, params.MaxPenalty, limit, query)
	start := time.Now()
	if cached, ok := s.cache.Get(key); ok {
		s.sendResponse(SearchResponse{
			ID:        request.ID,
			Matches:   cached,
			Count:     len(cached),
			TimeTaken: time.Since(start).Microseconds(),
		})
		return 200
	}

	matches, err := s.library.Nearest(query, params, limit)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, seq.ErrInvalidArgument) {
			return s.sendError(request.ID, err.Error(), 400)
		}
		s.logger.Errorf("Search failed for %q: %v", request.Query, err)
		return s.sendError(request.ID, "Internal server error", 500)
	}
	s.logger.Debugf("Took [ %v ] for query of %d symbols, %d matches", elapsed, query.Len(), len(matches))

	response := SearchResponse{
		ID:        request.ID,
		Matches:   make([]MatchResult, len(matches)),
		Count:     len(matches),
		TimeTaken: elapsed.Microseconds(),
	}
	for i, m := range matches {
		response.Matches[i] = MatchResult{
			Names:     m.Names,
			Sequence:  m.Sequence.String(),
			Penalty:   m.Penalty,
			Mutations: formatMutations(s.library.Alphabet(), m.Mutations),
		}
	}
	s.cache.Put(key, response.Matches)
	s.sendResponse(response)
	return 200
}

func (s *Server) handleGet(request Request) int {
	query, err := s.parseQuery(request)
	if err != nil {
		return s.sendError(request.ID, err.Error(), 400)
	}
	names, err := s.library.Lookup(query)
	if err != nil {
		return s.sendError(request.ID, err.Error(), 400)
	}
	s.sendResponse(GetResponse{ID: request.ID, Found: len(names) > 0, Names: names})
	return 200
}

func (s *Server) handleNames(request Request) int {
	if request.Query == "" {
		return s.sendError(request.ID, "Missing 'q' parameter", 400)
	}
	segments := s.library.ByNamePrefix(request.Query, s.limit(request.Limit))
	response := NamesResponse{
		ID:       request.ID,
		Segments: make([]SegmentInfo, len(segments)),
		Count:    len(segments),
	}
	for i, seg := range segments {
		response.Segments[i] = SegmentInfo{Name: seg.Name, Source: seg.Source, Length: seg.Sequence.Len()}
	}
	s.sendResponse(response)
	return 200
}

func (s *Server) info(id string) InfoResponse {
	cache := s.cache.Stats()
	return InfoResponse{
		ID:        id,
		Status:    "ok",
		Alphabet:  s.library.Alphabet().Name(),
		Preset:    s.config.Search.Preset,
		Segments:  s.library.Len(),
		Distinct:  s.library.Distinct(),
		LiveNodes: s.library.Stats().LiveNodes(),
		Requests:  s.requestCount,
		Cached:    cache["cachedSearches"],
		CacheHits: cache["cacheHits"],
	}
}

// formatMutations renders mutations as <type><position>:<symbol>.
func formatMutations(a *seq.Alphabet, mutations []tree.Mutation) []string {
	if len(mutations) == 0 {
		return nil
	}
	out := make([]string, len(mutations))
	for i, m := range mutations {
		out[i] = m.Format(a)
	}
	return out
}

// sendResponse marshals response into msgpack and writes it to the client.
func (s *Server) sendResponse(response any) {
	data, err := msgpack.Marshal(response)
	if err != nil {
		s.logger.Errorf("Marshaling response: %v", err)
		s.sendError("", "Internal server error", 500)
		return
	}
	if _, err := s.writer.Write(data); err != nil {
		s.logger.Errorf("Writing response: %v", err)
	}
}

// sendError sends an error response and returns its code.
func (s *Server) sendError(id, message string, code int) int {
	s.sendResponse(ErrorResponse{ID: id, Error: message, Code: code})
	return code
}
