// Package nodeindex stores node coordinates by id so that way geometry can
// be built after the nodes have streamed past.
package nodeindex

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmrel-go/internal/handler"
)

// Index maps node ids to coordinates.
type Index interface {
	Put(nodeID int64, lat, lon float64)
	Get(nodeID int64) (lat, lon float64, ok bool)
	Close() error
}

var (
	_ Index = &MmapIndex{}
	_ Index = &MemoryIndex{}
)

func fixed(c float64) int32 {
	return int32(math.Round(c * 1e7))
}

// MemoryIndex keeps coordinates in a map. It suits extracts and tests;
// planet-sized inputs should use an MmapIndex.
type MemoryIndex struct {
	coords map[int64][2]int32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{coords: make(map[int64][2]int32)}
}

func (m *MemoryIndex) Put(nodeID int64, lat, lon float64) {
	m.coords[nodeID] = [2]int32{fixed(lat), fixed(lon)}
}

func (m *MemoryIndex) Get(nodeID int64) (lat, lon float64, ok bool) {
	c, ok := m.coords[nodeID]
	if !ok {
		return 0, 0, false
	}
	return float64(c[0]) / 1e7, float64(c[1]) / 1e7, true
}

func (m *MemoryIndex) Len() int {
	return len(m.coords)
}

func (m *MemoryIndex) Close() error {
	m.coords = nil
	return nil
}

// Open creates an index of the given kind: "memory" or "mmap". path is
// only used by mmap indexes.
func Open(kind, path string) (Index, error) {
	switch strings.ToLower(kind) {
	case "memory":
		return NewMemoryIndex(), nil
	case "mmap":
		return NewMmapIndex(path, DefaultMaxNodeID, false)
	default:
		return nil, fmt.Errorf("unknown node index %q (want memory or mmap)", kind)
	}
}

// Recorder is a handler that writes every node location into an Index.
type Recorder struct {
	handler.Base
	idx   Index
	count int64
}

func NewRecorder(idx Index) *Recorder {
	return &Recorder{idx: idx}
}

func (r *Recorder) Node(_ context.Context, n *osm.Node) error {
	r.idx.Put(int64(n.ID), n.Lat, n.Lon)
	r.count++
	return nil
}

// Count returns the number of nodes recorded.
func (r *Recorder) Count() int64 {
	return r.count
}
