package handler

import "github.com/paulmach/osm"

// SliceScanner implements osm.Scanner over objects already in memory.
type SliceScanner struct {
	objs []osm.Object
	pos  int
}

// NewSliceScanner scans objs in order.
func NewSliceScanner(objs ...osm.Object) *SliceScanner {
	return &SliceScanner{objs: objs, pos: -1}
}

func (s *SliceScanner) Scan() bool {
	if s.pos+1 >= len(s.objs) {
		s.pos = len(s.objs)
		return false
	}
	s.pos++
	return true
}

func (s *SliceScanner) Object() osm.Object {
	if s.pos < 0 || s.pos >= len(s.objs) {
		return nil
	}
	return s.objs[s.pos]
}

func (s *SliceScanner) Err() error   { return nil }
func (s *SliceScanner) Close() error { return nil }

// Reset rewinds the scanner so the same objects can be read again.
func (s *SliceScanner) Reset() {
	s.pos = -1
}

var _ osm.Scanner = &SliceScanner{}
