// Package store is an append-only arena of variable-length OSM records.
//
// A record is committed once and addressed by the Handle returned from
// Commit. Handles are byte offsets that increase monotonically and stay valid
// until the arena is closed; committed bytes are never moved or modified.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Handle addresses a committed record. Zero is a valid handle (the first
// record committed to an arena).
type Handle uint64

// Kind identifies the entity type stored in a record.
type Kind byte

const (
	KindNode     Kind = 1
	KindWay      Kind = 2
	KindRelation Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

var (
	// ErrInvalidHandle is returned by Get for handles that were never issued.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrMalformed is returned for records whose header does not match their size.
	ErrMalformed = errors.New("malformed record")
)

// Error wraps failures of the underlying storage with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Arena is an append-only record store.
type Arena interface {
	// Commit copies rec into the arena and returns its handle.
	// rec must be a complete record as produced by the Encode functions.
	Commit(rec []byte) (Handle, error)
	// Get returns a view of a committed record. The payload aliases arena
	// memory and must not be modified.
	Get(h Handle) (Record, error)
	// Size returns the number of bytes committed.
	Size() int64
	Close() error
}

// Record is a typed view of a committed record.
type Record struct {
	Kind    Kind
	Payload []byte
}

// recordSize validates a record header and returns the total record length.
func recordSize(rec []byte) (int, error) {
	if len(rec) < 2 {
		return 0, ErrMalformed
	}
	n, w := binary.Uvarint(rec[1:])
	if w <= 0 {
		return 0, ErrMalformed
	}
	total := 1 + w + int(n)
	if total > len(rec) || n > uint64(len(rec)) {
		return 0, ErrMalformed
	}
	return total, nil
}

// parseRecord reads the record starting at data[0].
func parseRecord(data []byte) (Record, error) {
	total, err := recordSize(data)
	if err != nil {
		return Record{}, err
	}
	_, w := binary.Uvarint(data[1:])
	return Record{Kind: Kind(data[0]), Payload: data[1+w : total]}, nil
}

// segments maps handles onto a list of fixed buffers. Each buffer starts at
// the handle equal to the bytes committed before it was opened.
type segments struct {
	bases []int64
	bufs  [][]byte
	size  int64
}

// room returns the free space in the last buffer.
func (s *segments) room() int {
	if len(s.bufs) == 0 {
		return 0
	}
	last := s.bufs[len(s.bufs)-1]
	return cap(last) - len(last)
}

func (s *segments) add(buf []byte) {
	s.bases = append(s.bases, s.size)
	s.bufs = append(s.bufs, buf[:0])
}

// append copies rec into the last buffer, which must have room.
func (s *segments) append(rec []byte) Handle {
	i := len(s.bufs) - 1
	h := Handle(s.size)
	s.bufs[i] = append(s.bufs[i], rec...)
	s.size += int64(len(rec))
	return h
}

func (s *segments) get(h Handle) (Record, error) {
	off := int64(h)
	if off < 0 || off >= s.size {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	i := sort.Search(len(s.bases), func(i int) bool { return s.bases[i] > off }) - 1
	if i < 0 {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	local := off - s.bases[i]
	buf := s.bufs[i]
	if local >= int64(len(buf)) {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	rec, err := parseRecord(buf[local:])
	if err != nil {
		return Record{}, fmt.Errorf("handle %d: %w", h, err)
	}
	return rec, nil
}
