package output

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/osm"
	"github.com/wegman-software/osmrel-go/internal/assemble"
	"github.com/wegman-software/osmrel-go/internal/config"
	"github.com/wegman-software/osmrel-go/internal/geom"
	"github.com/wegman-software/osmrel-go/internal/parquet"
)

type memWriter struct {
	rows   []Row
	err    error
	closed bool
}

func (w *memWriter) Write(r Row) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, r)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return w.err
}

func route(id osm.RelationID, members ...osm.Member) *osm.Relation {
	return &osm.Relation{
		ID:      id,
		Version: 2,
		Tags:    osm.Tags{{Key: "type", Value: "route"}},
		Members: members,
	}
}

func TestMembersToJSON(t *testing.T) {
	got := MembersToJSON(osm.Members{
		{Type: osm.TypeNode, Ref: 1, Role: "stop"},
		{Type: osm.TypeWay, Ref: 2},
		{Type: osm.TypeRelation, Ref: 3, Role: "sub"},
	})
	want := `[{"type":"n","ref":1,"role":"stop"},{"type":"w","ref":2,"role":""},{"type":"r","ref":3,"role":"sub"}]`
	if got != want {
		t.Errorf("MembersToJSON = %s, want %s", got, want)
	}
}

func TestConvert(t *testing.T) {
	conv := NewConverter(geom.NewBuilder(nil, nil))

	row, err := conv.Convert(route(7, osm.Member{Type: osm.TypeNode, Ref: 1, Lat: 43.7, Lon: 7.4}))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if row.ID != 7 || row.Version != 2 || row.Kind != "route" {
		t.Errorf("row = %+v", row)
	}
	if row.Tags != `{"type":"route"}` {
		t.Errorf("Tags = %s", row.Tags)
	}
	// EWKB point: 1 + 4 + 4 + 16
	if len(row.Geometry) != 25 {
		t.Errorf("geometry length = %d, want 25", len(row.Geometry))
	}

	row, err = conv.Convert(route(8, osm.Member{Type: osm.TypeRelation, Ref: 1}))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if row.Geometry != nil {
		t.Errorf("Geometry = %v, want nil", row.Geometry)
	}

	row, err = NewConverter(nil).Convert(route(9, osm.Member{Type: osm.TypeNode, Ref: 1, Lat: 1, Lon: 1}))
	if err != nil || row.Geometry != nil {
		t.Errorf("Convert without builder = %v, %v", row.Geometry, err)
	}
}

func TestSink(t *testing.T) {
	bbox, err := config.ParseBBox("0,0,10,10")
	if err != nil {
		t.Fatal(err)
	}
	a, b := &memWriter{}, &memWriter{}
	s := NewSink(NewConverter(geom.NewBuilder(nil, bbox)), nil, a, b)
	ctx := context.Background()

	rels := []*osm.Relation{
		route(1, osm.Member{Type: osm.TypeNode, Ref: 1, Lat: 5, Lon: 5}),
		route(2, osm.Member{Type: osm.TypeNode, Ref: 2, Lat: 50, Lon: 50}),
		route(3, osm.Member{Type: osm.TypeRelation, Ref: 1}),
	}
	for _, r := range rels {
		if err := s.Relation(ctx, r); err != nil {
			t.Fatalf("Relation(%d): %v", r.ID, err)
		}
	}
	if err := s.Done(ctx); err != nil {
		t.Fatal(err)
	}

	want := SinkStats{Written: 2, NoGeometry: 1, Outside: 1}
	if diff := cmp.Diff(want, s.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	for _, w := range []*memWriter{a, b} {
		if len(w.rows) != 2 || w.rows[0].ID != 1 || w.rows[1].ID != 3 {
			t.Errorf("writer rows = %+v", w.rows)
		}
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("writers not closed")
	}
}

func TestSinkWriteError(t *testing.T) {
	boom := errors.New("disk full")
	s := NewSink(NewConverter(nil), nil, &memWriter{err: boom})

	err := s.Relation(context.Background(), route(1))
	if !errors.Is(err, boom) {
		t.Errorf("Relation error = %v, want %v", err, boom)
	}
	if err := s.Close(); !errors.Is(err, boom) {
		t.Errorf("Close error = %v, want %v", err, boom)
	}
}

func TestSinkToParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relations.parquet")
	pw, err := parquet.NewRelationWriter(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	s := NewSink(NewConverter(geom.NewBuilder(nil, nil)), nil, pw)
	if err := s.Relation(context.Background(), route(4, osm.Member{Type: osm.TypeNode, Ref: 1, Lat: 1, Lon: 2})); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	n, err := parquet.ReadRelations(context.Background(), path, func(r parquet.Record) error {
		if r.ID != 4 || r.Geometry == nil {
			t.Errorf("record = %+v", r)
		}
		return nil
	})
	if err != nil || n != 1 {
		t.Errorf("ReadRelations = %d, %v", n, err)
	}
}

func TestReportRoundTrip(t *testing.T) {
	list := []assemble.Incomplete{
		{
			ID:      10,
			Meta:    assemble.RelationMeta{Needed: 2},
			Missing: []assemble.MemberKey{{Type: osm.TypeNode, Ref: 1}, {Type: osm.TypeWay, Ref: 5}},
		},
	}
	path := filepath.Join(t.TempDir(), "incomplete.yaml")
	if err := WriteReport(path, NewReport(assemble.IncompleteDrop, list)); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	got, err := ReadReport(path)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	want := Report{
		Policy:    "drop",
		Count:     1,
		Relations: []ReportEntry{{ID: 10, Needed: 2, Missing: []string{"node/1", "way/5"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestTableSQL(t *testing.T) {
	create := createTableSQL(`"public"."osm_relations"`, 3857)
	if !strings.Contains(create, "geometry(Geometry, 3857)") {
		t.Errorf("create statement missing srid:\n%s", create)
	}
	insert := insertSQL(`"public"."osm_relations"`, "tmp")
	if !strings.Contains(insert, "ST_GeomFromEWKB(geom_wkb)") || !strings.Contains(insert, "FROM tmp") {
		t.Errorf("insert statement:\n%s", insert)
	}
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relations.parquet")
	pw, err := parquet.NewRelationWriter(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []int64{1, 2, 3} {
		if err := pw.Write(Row{ID: id, Tags: "{}", Members: "[]"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}

	w := &memWriter{}
	n, err := LoadParquet(context.Background(), path, w)
	if err != nil {
		t.Fatalf("LoadParquet: %v", err)
	}
	if n != 3 || len(w.rows) != 3 || w.rows[2].ID != 3 {
		t.Errorf("loaded %d rows: %+v", n, w.rows)
	}
	if w.closed {
		t.Error("LoadParquet closed the writer")
	}
}
