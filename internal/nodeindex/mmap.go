package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	// Each node entry: biased lat (uint32) + lon (int32) = 8 bytes, both
	// fixed-point degrees * 1e7. The bias keeps every stored latitude
	// non-zero, so an all-zero slot is empty and 0,0 stays a valid location.
	entrySize = 8
	latBias   = 900_000_001
	// DefaultMaxNodeID bounds the id space of an MmapIndex (10 billion).
	DefaultMaxNodeID = 10_000_000_000
)

// MmapIndex is a memory-mapped node coordinate index
// Node coordinates are stored at offset = nodeID * 8
// This gives O(1) lookup for any node ID
type MmapIndex struct {
	file  *os.File
	data  mmap.MMap
	maxID int64
	path  string
	keep  bool
}

// NewMmapIndex creates a new mmap index for node ids below maxID.
// The file is sparse, so disk usage grows only with the nodes written.
// It is removed on Close unless keep is set.
func NewMmapIndex(path string, maxID int64, keep bool) (*MmapIndex, error) {
	if maxID <= 0 {
		maxID = DefaultMaxNodeID
	}
	size := maxID * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}

	// Truncate to full size (creates sparse file on Linux)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate file: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:  f,
		data:  data,
		maxID: maxID,
		path:  path,
		keep:  keep,
	}, nil
}

// OpenMmapIndex opens an existing index file read-only.
func OpenMmapIndex(path string) (*MmapIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:  f,
		data:  data,
		maxID: int64(len(data)) / entrySize,
		path:  path,
		keep:  true,
	}, nil
}

// Put stores a node's coordinates. Ids outside [0, maxID) and latitudes
// outside [-90, 90] are ignored.
func (m *MmapIndex) Put(nodeID int64, lat, lon float64) {
	if nodeID < 0 || nodeID >= m.maxID || !(lat >= -90 && lat <= 90) {
		return
	}
	offset := nodeID * entrySize
	putEntry(m.data[offset:offset+entrySize], lat, lon)
}

// Get retrieves a node's coordinates
// Returns (0, 0, false) if the node doesn't exist
func (m *MmapIndex) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 || nodeID >= m.maxID {
		return 0, 0, false
	}
	offset := nodeID * entrySize
	return getEntry(m.data[offset : offset+entrySize])
}

// Sync flushes changes to disk
func (m *MmapIndex) Sync() error {
	return m.data.Flush()
}

// Close unmaps and closes the index file.
func (m *MmapIndex) Close() error {
	if err := m.data.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	if err := m.file.Close(); err != nil {
		return err
	}
	if !m.keep {
		return os.Remove(m.path)
	}
	return nil
}

func putEntry(b []byte, lat, lon float64) {
	binary.LittleEndian.PutUint32(b, uint32(int64(fixed(lat))+latBias))
	binary.LittleEndian.PutUint32(b[4:], uint32(fixed(lon)))
}

func getEntry(b []byte) (lat, lon float64, ok bool) {
	latRaw := binary.LittleEndian.Uint32(b)
	if latRaw == 0 {
		return 0, 0, false
	}
	lonInt := int32(binary.LittleEndian.Uint32(b[4:]))
	return float64(int64(latRaw)-latBias) / 1e7, float64(lonInt) / 1e7, true
}
