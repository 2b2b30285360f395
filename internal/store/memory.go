package store

// DefaultChunkSize is the buffer size used by NewMemoryArena when none is given.
const DefaultChunkSize = 4 << 20

// MemoryArena keeps records in heap buffers. A buffer is never grown once
// allocated; a record that does not fit opens a new buffer.
type MemoryArena struct {
	chunkSize int
	segs      segments
}

// NewMemoryArena creates an in-memory arena with buffers of chunkSize bytes.
func NewMemoryArena(chunkSize int) *MemoryArena {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &MemoryArena{chunkSize: chunkSize}
}

func (a *MemoryArena) Commit(rec []byte) (Handle, error) {
	n, err := recordSize(rec)
	if err != nil {
		return 0, &Error{Op: "commit", Err: err}
	}
	rec = rec[:n]

	if a.segs.room() < n {
		size := a.chunkSize
		if n > size {
			size = n
		}
		a.segs.add(make([]byte, 0, size))
	}
	return a.segs.append(rec), nil
}

func (a *MemoryArena) Get(h Handle) (Record, error) {
	return a.segs.get(h)
}

func (a *MemoryArena) Size() int64 {
	return a.segs.size
}

// Close releases the buffers. Handles are invalid afterwards.
func (a *MemoryArena) Close() error {
	a.segs = segments{}
	return nil
}

var _ Arena = &MemoryArena{}
