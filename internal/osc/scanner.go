package osc

import (
	"context"
	"io"

	"github.com/paulmach/osm"
)

// Scanner reads the objects of an OSC stream as an osm.Scanner.
// Deleted objects are skipped unless IncludeDeletes is set before the
// first Scan.
type Scanner struct {
	IncludeDeletes bool

	cancel  context.CancelFunc
	changes <-chan Change
	errs    <-chan error
	parser  *Parser

	obj    osm.Object
	err    error
	closed bool
}

// NewScanner starts parsing r in the background.
func NewScanner(ctx context.Context, r io.Reader) *Scanner {
	ctx, cancel := context.WithCancel(ctx)
	p := NewParser()
	changes, errs := p.ParseReader(ctx, r)
	return &Scanner{
		cancel:  cancel,
		changes: changes,
		errs:    errs,
		parser:  p,
	}
}

func (s *Scanner) Scan() bool {
	if s.closed || s.err != nil {
		return false
	}
	for c := range s.changes {
		if c.Action == ActionDelete && !s.IncludeDeletes {
			continue
		}
		s.obj = c.Object
		return true
	}
	s.obj = nil
	if err := <-s.errs; err != nil {
		s.err = err
	}
	return false
}

func (s *Scanner) Object() osm.Object {
	return s.obj
}

// Err returns the parse error, if any. A cancelled context is reported
// as its error.
func (s *Scanner) Err() error {
	return s.err
}

// Stats returns counts of the changes parsed so far, deletes included.
// Call it after Scan has returned false.
func (s *Scanner) Stats() Stats {
	return s.parser.Stats()
}

// Close stops the parser and waits for it to exit.
func (s *Scanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	for range s.changes {
	}
	return nil
}

var _ osm.Scanner = &Scanner{}
