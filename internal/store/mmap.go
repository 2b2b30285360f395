package store

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// DefaultSegmentSize is the mapping size used by NewMmapArena when none is given.
const DefaultSegmentSize = 64 << 20

// MmapArena keeps records in a file that is mapped into memory one segment
// at a time. Segments are never remapped, so records stay where they were
// written while the file keeps growing.
type MmapArena struct {
	path    string
	file    *os.File
	segSize int
	keep    bool

	maps    []mmap.MMap
	fileEnd int64
	segs    segments
}

// NewMmapArena creates (or truncates) the backing file at path.
// The file is removed on Close unless keep is true.
func NewMmapArena(path string, segmentSize int, keep bool) (*MmapArena, error) {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	segmentSize = pageAlign(segmentSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	return &MmapArena{
		path:    path,
		file:    f,
		segSize: segmentSize,
		keep:    keep,
	}, nil
}

func (a *MmapArena) Commit(rec []byte) (Handle, error) {
	n, err := recordSize(rec)
	if err != nil {
		return 0, &Error{Op: "commit", Err: err}
	}
	rec = rec[:n]

	if a.segs.room() < n {
		if err := a.grow(n); err != nil {
			return 0, err
		}
	}
	return a.segs.append(rec), nil
}

// grow extends the file and maps a new segment of at least n bytes.
func (a *MmapArena) grow(n int) error {
	size := a.segSize
	if n > size {
		size = pageAlign(n)
	}

	if err := a.file.Truncate(a.fileEnd + int64(size)); err != nil {
		return &Error{Op: "grow", Err: err}
	}
	m, err := mmap.MapRegion(a.file, size, mmap.RDWR, 0, a.fileEnd)
	if err != nil {
		return &Error{Op: "map", Err: fmt.Errorf("segment at %d: %w", a.fileEnd, err)}
	}

	a.maps = append(a.maps, m)
	a.fileEnd += int64(size)
	a.segs.add([]byte(m))
	return nil
}

func (a *MmapArena) Get(h Handle) (Record, error) {
	return a.segs.get(h)
}

func (a *MmapArena) Size() int64 {
	return a.segs.size
}

// Close unmaps all segments and closes the file.
func (a *MmapArena) Close() error {
	var firstErr error
	for i := range a.maps {
		if err := a.maps[i].Unmap(); err != nil && firstErr == nil {
			firstErr = &Error{Op: "unmap", Err: err}
		}
	}
	a.maps = nil
	a.segs = segments{}

	if err := a.file.Close(); err != nil && firstErr == nil {
		firstErr = &Error{Op: "close", Err: err}
	}
	if !a.keep {
		os.Remove(a.path)
	}
	return firstErr
}

func pageAlign(n int) int {
	page := os.Getpagesize()
	return (n + page - 1) / page * page
}

var _ Arena = &MmapArena{}
