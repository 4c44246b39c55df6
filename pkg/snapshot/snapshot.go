/*
Package snapshot persists sequence trees as a msgpack stream.

A snapshot is a header followed by one record per stored key:

	{"v": 1, "a": "nucleotide", "n": 2}
	{"k": "ATTACACA", "v": <value>}
	{"k": "GATTACA", "v": <value>}

Keys are written as symbol strings so a snapshot stays readable by any build
that registers the same alphabet name. Values go through msgpack as-is, so V
must be msgpack encodable. Trees are rebuilt by re-inserting every record.
*/
package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Version is the format version written in every header.
const Version = 1

// ErrFormat is returned for streams that are not snapshots of a supported
// version.
var ErrFormat = errors.New("invalid snapshot")

// Header opens a snapshot stream.
type Header struct {
	Version  int    `msgpack:"v"`
	Alphabet string `msgpack:"a"`
	Count    int    `msgpack:"n"`
}

// Record is one key and its value.
type Record[V any] struct {
	Key   string `msgpack:"k"`
	Value V      `msgpack:"v"`
}

// Source is a tree that can be enumerated. Both tree.Map and
// tree.ConcurrentMap satisfy it.
type Source[V any] interface {
	Alphabet() *seq.Alphabet
	All() iter.Seq2[seq.Sequence, V]
}

// Sink is a tree that accepts insertions.
type Sink[V any] interface {
	Alphabet() *seq.Alphabet
	Put(key seq.Sequence, value V) (V, bool, error)
}

// Write encodes every key of src to w. Entries are gathered first so the
// header count matches the records even if src is mutated concurrently.
func Write[V any](w io.Writer, src Source[V]) (int, error) {
	var records []Record[V]
	for k, v := range src.All() {
		records = append(records, Record[V]{Key: k.String(), Value: v})
	}

	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	header := Header{Version: Version, Alphabet: src.Alphabet().Name(), Count: len(records)}
	if err := enc.Encode(&header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return i, fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(records), err
	}
	return len(records), nil
}

// ReadHeader decodes and checks the header of a snapshot stream.
func ReadHeader(dec *msgpack.Decoder) (Header, *seq.Alphabet, error) {
	var header Header
	if err := dec.Decode(&header); err != nil {
		return header, nil, fmt.Errorf("reading header: %v: %w", err, ErrFormat)
	}
	if header.Version != Version {
		return header, nil, fmt.Errorf("version %d, want %d: %w", header.Version, Version, ErrFormat)
	}
	if header.Count < 0 {
		return header, nil, fmt.Errorf("negative count %d: %w", header.Count, ErrFormat)
	}
	a, ok := seq.AlphabetByName(header.Alphabet)
	if !ok {
		return header, nil, fmt.Errorf("unknown alphabet %q: %w", header.Alphabet, ErrFormat)
	}
	return header, a, nil
}

// ReadInto decodes a snapshot from r and puts every record into dst. The
// snapshot alphabet must be the one dst was built for.
func ReadInto[V any](r io.Reader, dst Sink[V]) (int, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	header, a, err := ReadHeader(dec)
	if err != nil {
		return 0, err
	}
	if a != dst.Alphabet() {
		return 0, fmt.Errorf("snapshot of %s into tree of %s: %w", a, dst.Alphabet(), seq.ErrAlphabetMismatch)
	}
	for i := 0; i < header.Count; i++ {
		var rec Record[V]
		if err := dec.Decode(&rec); err != nil {
			return i, fmt.Errorf("reading record %d of %d: %v: %w", i, header.Count, err, ErrFormat)
		}
		key, err := seq.Parse(a, rec.Key)
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
		if _, _, err := dst.Put(key, rec.Value); err != nil {
			return i, err
		}
	}
	return header.Count, nil
}

// Read rebuilds a tree.Map from r, using the alphabet named in the header.
func Read[V any](r io.Reader) (*tree.Map[V], error) {
	br := bufio.NewReader(r)
	dec := msgpack.NewDecoder(br)
	header, a, err := ReadHeader(dec)
	if err != nil {
		return nil, err
	}
	m := tree.NewMap[V](a)
	for i := 0; i < header.Count; i++ {
		var rec Record[V]
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("reading record %d of %d: %v: %w", i, header.Count, err, ErrFormat)
		}
		key, err := seq.Parse(a, rec.Key)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, _, err := m.Put(key, rec.Value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SaveMap writes src to path through a temporary file renamed into place.
func SaveMap[V any](path string, src Source[V]) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := Write(tmp, src)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	log.Debugf("Saved snapshot with %d keys to %s", n, path)
	return nil
}

// LoadMap reads a snapshot file into a new tree.Map.
func LoadMap[V any](path string) (*tree.Map[V], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Read[V](f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("Loaded snapshot with %d keys from %s", m.Len(), path)
	return m, nil
}

// LoadInto reads a snapshot file into dst.
func LoadInto[V any](path string, dst Sink[V]) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := ReadInto(f, dst)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("Loaded snapshot with %d keys from %s", n, path)
	return n, nil
}
