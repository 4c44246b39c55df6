package library

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bastiangx/seqtree/internal/utils"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"golang.org/x/sync/errgroup"
)

// LoadStats summarises one load.
type LoadStats struct {
	Files    int
	Segments int
	Skipped  int
	// Resolved counts ambiguity symbols replaced in loaded segments.
	Resolved int
	Elapsed  time.Duration
}

// biogoAlphabet picks the biogo alphabet used to read records. Letters are
// validated by seq.ParseWithOptions afterwards, so it only needs to be wide
// enough to keep every symbol.
func biogoAlphabet(a *seq.Alphabet) alphabet.Alphabet {
	if a == seq.AminoAcid {
		return alphabet.Protein
	}
	return alphabet.DNAredundant
}

// LoadFASTA reads every record of r and adds it as a segment named by the
// record ID. Ambiguity codes resolve to their lowest code; records with
// symbols outside the alphabet are skipped. source is kept on each segment.
func (l *Library) LoadFASTA(r io.Reader, source string) (LoadStats, error) {
	start := time.Now()
	stats := LoadStats{Files: 1}
	reader := fasta.NewReader(r, linear.NewSeq("", nil, biogoAlphabet(l.alphabet)))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("%s: %w", source, err)
		}
		s, ok := record.(*linear.Seq)
		if !ok {
			return stats, fmt.Errorf("%s: unexpected record type %T", source, record)
		}

		text := make([]byte, len(s.Seq))
		for i, letter := range s.Seq {
			text[i] = byte(letter)
		}
		sequence, err := seq.ParseWithOptions(l.alphabet, string(text), seq.ParseOptions{ResolveWildcards: true})
		if err != nil {
			l.logger.Warnf("Skipping %s in %s: %v", s.ID, source, err)
			stats.Skipped++
			continue
		}
		if err := l.Add(Segment{Name: s.ID, Source: source, Sequence: sequence}); err != nil {
			l.logger.Warnf("Skipping %s in %s: %v", s.ID, source, err)
			stats.Skipped++
			continue
		}
		stats.Segments++
		if n := l.alphabet.Wildcards(string(text)); n > 0 {
			l.logger.Warnf("Resolved %d ambiguity symbols in %s from %s", n, s.ID, source)
			stats.Resolved += n
		}
	}
	stats.Elapsed = time.Since(start)
	l.logger.Debugf("Loaded %d segments from %s in %v (%d skipped)", stats.Segments, source, stats.Elapsed, stats.Skipped)
	return stats, nil
}

// LoadFile loads one FASTA file.
func (l *Library) LoadFile(path string) (LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadStats{}, err
	}
	defer f.Close()
	return l.LoadFASTA(f, path)
}

// LoadDir loads every file in dir matching glob with up to workers files in
// flight. The first failing file cancels the rest.
func (l *Library) LoadDir(ctx context.Context, dir, glob string, workers int) (LoadStats, error) {
	start := time.Now()
	files, err := utils.GlobFiles(dir, glob)
	if err != nil {
		return LoadStats{}, err
	}
	if len(files) == 0 {
		return LoadStats{}, fmt.Errorf("no files matching %q in %s", glob, dir)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]LoadStats, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats, err := l.LoadFile(path)
			results[i] = stats
			return err
		})
	}
	err = g.Wait()

	total := LoadStats{Elapsed: time.Since(start)}
	for _, r := range results {
		total.Files += r.Files
		total.Segments += r.Segments
		total.Skipped += r.Skipped
		total.Resolved += r.Resolved
	}
	if err != nil {
		return total, err
	}
	stats := l.Stats()
	l.logger.Infof("Loaded %d segments (%d distinct) from %d files in %v, %d lost node races",
		l.Len(), l.Distinct(), total.Files, total.Elapsed, stats.LostNodeRaces)
	return total, nil
}
