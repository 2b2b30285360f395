package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"
)

func arenas(t *testing.T) map[string]Arena {
	t.Helper()
	mm, err := NewMmapArena(filepath.Join(t.TempDir(), "arena.bin"), 1, false)
	if err != nil {
		t.Fatalf("NewMmapArena: %v", err)
	}
	return map[string]Arena{
		"memory": NewMemoryArena(64),
		"mmap":   mm,
	}
}

func TestArenaHandlesStable(t *testing.T) {
	for name, a := range arenas(t) {
		t.Run(name, func(t *testing.T) {
			defer a.Close()

			var handles []Handle
			for i := 1; i <= 500; i++ {
				n := &osm.Node{
					ID:   osm.NodeID(i),
					Lat:  float64(i) / 100,
					Lon:  -float64(i) / 100,
					Tags: osm.Tags{{Key: "name", Value: "node"}},
				}
				h, err := a.Commit(EncodeNode(n))
				if err != nil {
					t.Fatalf("Commit(%d): %v", i, err)
				}
				if len(handles) > 0 && h <= handles[len(handles)-1] {
					t.Fatalf("handle %d not greater than %d", h, handles[len(handles)-1])
				}
				handles = append(handles, h)
			}

			for i, h := range handles {
				rec, err := a.Get(h)
				if err != nil {
					t.Fatalf("Get(%d): %v", h, err)
				}
				n, err := rec.Node()
				if err != nil {
					t.Fatalf("Node(): %v", err)
				}
				if n.ID != osm.NodeID(i+1) {
					t.Errorf("Get(%d).ID = %d, want %d", h, n.ID, i+1)
				}
			}
			if a.Size() <= 0 {
				t.Errorf("Size() = %d, want > 0", a.Size())
			}
		})
	}
}

func TestArenaLargeRecord(t *testing.T) {
	a := NewMemoryArena(16)
	w := &osm.Way{ID: 1}
	for i := 0; i < 100; i++ {
		w.Nodes = append(w.Nodes, osm.WayNode{ID: osm.NodeID(i + 1)})
	}

	h, err := a.Commit(EncodeWay(w))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rec, err := a.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := rec.Way()
	if err != nil {
		t.Fatalf("Way(): %v", err)
	}
	if len(got.Nodes) != 100 {
		t.Errorf("len(Nodes) = %d, want 100", len(got.Nodes))
	}
}

func TestArenaInvalidHandle(t *testing.T) {
	a := NewMemoryArena(0)
	if _, err := a.Get(0); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Get(0) on empty arena = %v, want ErrInvalidHandle", err)
	}

	h, err := a.Commit(EncodeNode(&osm.Node{ID: 1}))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := a.Get(h + Handle(a.Size())); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Get past end = %v, want ErrInvalidHandle", err)
	}
}

func TestArenaRejectsMalformed(t *testing.T) {
	a := NewMemoryArena(0)
	tests := []struct {
		name string
		rec  []byte
	}{
		{"empty", nil},
		{"kind only", []byte{byte(KindNode)}},
		{"short payload", []byte{byte(KindNode), 5, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Commit(tt.rec)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Commit(%v) = %v, want ErrMalformed", tt.rec, err)
			}
			var se *Error
			if !errors.As(err, &se) || se.Op != "commit" {
				t.Errorf("Commit(%v) error %v is not a commit *Error", tt.rec, err)
			}
		})
	}
}

func TestMmapArenaRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	a, err := NewMmapArena(path, 0, false)
	if err != nil {
		t.Fatalf("NewMmapArena: %v", err)
	}
	if _, err := a.Commit(EncodeNode(&osm.Node{ID: 1})); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("backing file %s still exists after Close (stat: %v)", path, err)
	}
}
