package store

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/osm"
)

var nan = math.NaN()

func decode(t *testing.T, rec []byte) osm.Object {
	t.Helper()
	a := NewMemoryArena(0)
	h, err := a.Commit(rec)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	r, err := a.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	obj, err := r.Object()
	if err != nil {
		t.Fatalf("Object(): %v", err)
	}
	return obj
}

func TestCodecNode(t *testing.T) {
	n := &osm.Node{
		ID:      -42,
		Version: 3,
		Lat:     52.5200066,
		Lon:     13.4049540,
		Tags:    osm.Tags{{Key: "amenity", Value: "cafe"}, {Key: "name", Value: "Café"}},
	}

	got := decode(t, EncodeNode(n))
	if diff := cmp.Diff(osm.Object(n), got); diff != "" {
		t.Errorf("node mismatch (-want +got):\n%s", diff)
	}
}

func TestCodecWay(t *testing.T) {
	tests := []struct {
		name string
		way  *osm.Way
	}{
		{
			name: "refs only",
			way: &osm.Way{
				ID:    7,
				Nodes: osm.WayNodes{{ID: 10}, {ID: 5}, {ID: 1000}, {ID: 10}},
				Tags:  osm.Tags{{Key: "highway", Value: "residential"}},
			},
		},
		{
			name: "with locations",
			way: &osm.Way{
				ID:      8,
				Version: 1,
				Nodes: osm.WayNodes{
					{ID: 1, Lat: 10.5, Lon: -20.25},
					{ID: 2, Lat: 10.5000001, Lon: -20.2500001},
					{ID: 3, Lat: -89.9999999, Lon: 179.9999999},
				},
			},
		},
		{
			name: "empty",
			way:  &osm.Way{ID: 9},
		},
		{
			name: "located at zero",
			way: &osm.Way{
				ID:    10,
				Nodes: osm.WayNodes{{ID: 1}, {ID: 2, Lat: 0.0000001}, {ID: 1}},
			},
		},
		{
			name: "unlocated",
			way: &osm.Way{
				ID:    11,
				Nodes: osm.WayNodes{{ID: 1, Lat: nan, Lon: nan}, {ID: 2, Lat: nan, Lon: nan}},
			},
		},
		{
			name: "mixed",
			way: &osm.Way{
				ID: 12,
				Nodes: osm.WayNodes{
					{ID: 1, Lat: 1.5, Lon: 2.5},
					{ID: 2, Lat: nan, Lon: nan},
					{ID: 3, Lat: 0, Lon: 0},
					{ID: 4, Lat: 1.5000001, Lon: 2.5},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decode(t, EncodeWay(tt.way))
			if diff := cmp.Diff(osm.Object(tt.way), got, cmpopts.EquateNaNs()); diff != "" {
				t.Errorf("way mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodecRelation(t *testing.T) {
	r := &osm.Relation{
		ID:      99,
		Version: 2,
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 1, Role: "outer"},
			{Type: osm.TypeNode, Ref: -5, Role: ""},
			{Type: osm.TypeRelation, Ref: 3, Role: "subarea"},
		},
		Tags: osm.Tags{{Key: "type", Value: "multipolygon"}},
	}

	got := decode(t, EncodeRelation(r))
	if diff := cmp.Diff(osm.Object(r), got); diff != "" {
		t.Errorf("relation mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordKindMismatch(t *testing.T) {
	a := NewMemoryArena(0)
	h, err := a.Commit(EncodeNode(&osm.Node{ID: 1}))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rec, _ := a.Get(h)
	if _, err := rec.Way(); err == nil {
		t.Error("Way() on node record succeeded, want error")
	}
}

func TestRecordTruncatedPayload(t *testing.T) {
	rec := Record{Kind: KindRelation, Payload: []byte{2, 0, 4}}
	if _, err := rec.Relation(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Relation() = %v, want ErrMalformed", err)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := Encode(&osm.Changeset{ID: 1}); err == nil {
		t.Error("Encode(changeset) succeeded, want error")
	}
}
