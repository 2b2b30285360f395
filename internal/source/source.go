// Package source opens OSM input files as osm.Scanners. Every pass over
// the input reopens the file, so one Source can feed several passes.
package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"github.com/wegman-software/osmrel-go/internal/osc"
)

// Format is an input file format.
type Format int

const (
	FormatPBF Format = iota + 1
	FormatXML
	FormatOSC
)

func (f Format) String() string {
	switch f {
	case FormatPBF:
		return "pbf"
	case FormatXML:
		return "xml"
	case FormatOSC:
		return "osc"
	default:
		return "unknown"
	}
}

// DetectFormat picks the format from the file name.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, ".gz")
	switch {
	case strings.HasSuffix(name, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(name, ".osm"), strings.HasSuffix(name, ".xml"):
		return FormatXML, nil
	case strings.HasSuffix(name, ".osc"):
		return FormatOSC, nil
	default:
		return 0, fmt.Errorf("cannot detect format of %s (want .pbf, .osm, .osc, optionally .gz)", path)
	}
}

// Kinds selects the object types a pass reads.
type Kinds struct {
	Nodes      bool
	Ways       bool
	Relations  bool
	Changesets bool
}

// All reads every object type.
var All = Kinds{Nodes: true, Ways: true, Relations: true, Changesets: true}

func (k Kinds) wants(obj osm.Object) bool {
	switch obj.(type) {
	case *osm.Node:
		return k.Nodes
	case *osm.Way:
		return k.Ways
	case *osm.Relation:
		return k.Relations
	case *osm.Changeset:
		return k.Changesets
	case *osm.Bounds, *osm.Note, *osm.User:
		// File headers and metadata, not entities.
		return false
	default:
		// Unknown types reach the dispatcher, which rejects them.
		return true
	}
}

// Source is an input file.
type Source struct {
	Path    string
	Format  Format
	Workers int

	size int64
	read atomic.Int64
}

// Open checks that path exists and detects its format.
func Open(path string, workers int) (*Source, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	return &Source{Path: path, Format: format, Workers: workers, size: info.Size()}, nil
}

// Size returns the file size in bytes.
func (s *Source) Size() int64 {
	return s.size
}

// BytesRead returns how far the current pass has read into the file.
func (s *Source) BytesRead() int64 {
	return s.read.Load()
}

// Scanner opens a new pass over the file restricted to kinds.
func (s *Source) Scanner(ctx context.Context, kinds Kinds) (osm.Scanner, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	s.read.Store(0)

	var r io.Reader = &countingReader{r: f, n: &s.read}
	closers := []io.Closer{f}
	if strings.HasSuffix(strings.ToLower(s.Path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		r = gz
		closers = append([]io.Closer{gz}, closers...)
	}

	var sc osm.Scanner
	switch s.Format {
	case FormatPBF:
		pbf := osmpbf.New(ctx, r, s.Workers)
		pbf.SkipNodes = !kinds.Nodes
		pbf.SkipWays = !kinds.Ways
		pbf.SkipRelations = !kinds.Relations
		sc = pbf
	case FormatXML:
		sc = osmxml.New(ctx, r)
	case FormatOSC:
		sc = osc.NewScanner(ctx, r)
	}

	return &scanner{Scanner: sc, kinds: kinds, closers: closers}, nil
}

// scanner drops unwanted types and closes the file with the scanner.
type scanner struct {
	osm.Scanner
	kinds   Kinds
	closers []io.Closer
}

func (s *scanner) Scan() bool {
	for s.Scanner.Scan() {
		if s.kinds.wants(s.Scanner.Object()) {
			return true
		}
	}
	return false
}

func (s *scanner) Close() error {
	err := s.Scanner.Close()
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
