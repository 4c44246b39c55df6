// Package cli handles the interactive query shell used for debugging and
// exploring a loaded library
package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bastiangx/seqtree/internal/logger"
	"github.com/bastiangx/seqtree/internal/utils"
	"github.com/bastiangx/seqtree/pkg/config"
	"github.com/bastiangx/seqtree/pkg/library"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/charmbracelet/log"
)

// InputHandler reads sequences from stdin and prints the nearest reference
// segments for each. Lines starting with ':' are shell commands:
//
//	:preset fuzzy    switch penalty preset
//	:limit 5         change the number of hits shown
//	:names chr1_     list segments by name prefix
type InputHandler struct {
	library      *library.Library
	search       config.SearchConfig
	limits       config.ServerConfig
	reader       io.Reader
	out          *log.Logger
	requestCount int
}

// NewInputHandler creates a handler on stdin/stdout. Queries obey the same
// length and budget bounds as the server.
func NewInputHandler(lib *library.Library, search config.SearchConfig, limits config.ServerConfig) *InputHandler {
	return NewInputHandlerWithIO(lib, search, limits, os.Stdin, os.Stdout)
}

// NewInputHandlerWithIO creates a handler on explicit streams.
func NewInputHandlerWithIO(lib *library.Library, search config.SearchConfig, limits config.ServerConfig, r io.Reader, w io.Writer) *InputHandler {
	return &InputHandler{
		library: lib,
		search:  search,
		limits:  limits,
		reader:  r,
		out:     logger.NewWriter(w, ""),
	}
}

// Start begins the interface loop. It returns nil once the input ends.
func (h *InputHandler) Start() error {
	h.out.Print("SeqTree CLI [BETA]")
	h.out.Printf("%d segments, %d distinct %s sequences", h.library.Len(), h.library.Distinct(), h.library.Alphabet())
	h.out.Print("type a sequence and press Enter to see the nearest segments (Ctrl+C to exit):")

	reader := bufio.NewReader(h.reader)
	for {
		h.out.Print("> ")
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if strings.HasPrefix(line, ":") {
				h.handleCommand(line[1:])
			} else {
				h.handleInput(line)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (h *InputHandler) handleCommand(command string) {
	fields := strings.Fields(command)
	if len(fields) != 2 {
		h.out.Errorf("Usage: :preset <name> | :limit <n> | :names <prefix>")
		return
	}
	switch fields[0] {
	case "preset":
		next := h.search
		next.Preset = fields[1]
		if _, err := next.Model(); err != nil {
			h.out.Errorf("%v", err)
			return
		}
		h.search = next
		h.out.Printf("preset: %s", next.Preset)
	case "limit":
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			h.out.Errorf("Invalid limit: %s", fields[1])
			return
		}
		h.search.Limit = n
		h.out.Printf("limit: %d", n)
	case "names":
		segments := h.library.ByNamePrefix(fields[1], h.search.Limit)
		if len(segments) == 0 {
			h.out.Warnf("No segments named '%s*'", fields[1])
			return
		}
		for i, s := range segments {
			h.out.Printf("%2d. %-24s %6d  %s", i+1, s.Name, s.Sequence.Len(), s.Source)
		}
	default:
		h.out.Errorf("Unknown command: %s", fields[0])
	}
}

// handleInput parses one query and prints its best hits with the mutations
// that turn the query into each hit.
func (h *InputHandler) handleInput(text string) {
	h.requestCount++
	text = utils.CleanSequenceText(text)

	if len(text) > h.limits.MaxQueryLength {
		h.out.Errorf("Query too long: %d symbols", len(text))
		return
	}
	if !utils.IsValidQuery(text) {
		h.out.Errorf("Not a sequence: '%s'", text)
		return
	}
	if utils.IsRepetitive(text) {
		log.Debugf("Homopolymer query '%s'", text)
	}

	query, err := seq.ParseWithOptions(h.library.Alphabet(), text, seq.ParseOptions{ResolveWildcards: true})
	if err != nil {
		h.out.Errorf("%v", err)
		return
	}
	params, err := h.search.Parameters(query.Len())
	if err != nil {
		h.out.Errorf("%v", err)
		return
	}
	params = h.limits.Bound(params)

	start := time.Now()
	matches, err := h.library.Nearest(query, params, h.search.Limit)
	elapsed := time.Since(start)
	log.Debugf("Took [ %v ] for query #%d of %d symbols", elapsed, h.requestCount, query.Len())
	if err != nil {
		h.out.Errorf("%v", err)
		return
	}

	if len(matches) == 0 {
		h.out.Warnf("No segments within %.2f of '%s'", params.MaxPenalty, query)
		return
	}

	h.out.Printf("Found %d sequences within %.2f of '%s':", len(matches), params.MaxPenalty, query)
	for i, m := range matches {
		mutations := make([]string, len(m.Mutations))
		for j, mu := range m.Mutations {
			mutations[j] = mu.Format(query.Alphabet())
		}
		h.out.Printf("%2d. %-32s (penalty: %5.2f) %s  %s",
			i+1, m.Sequence, m.Penalty, strings.Join(m.Names, ","), strings.Join(mutations, " "))
	}
}
