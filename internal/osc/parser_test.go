package osc

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/osm"
	"go.uber.org/goleak"
)

const testOSC = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6" generator="test">
  <create>
    <node id="1" lat="43.7384" lon="7.4246" version="1" changeset="123" timestamp="2024-01-15T12:00:00Z" user="testuser" uid="1">
      <tag k="name" v="Test Node"/>
      <tag k="amenity" v="cafe"/>
    </node>
    <way id="100" version="1" changeset="124">
      <nd ref="1"/>
      <nd ref="2"/>
      <nd ref="3"/>
      <tag k="highway" v="primary"/>
    </way>
  </create>
  <modify>
    <node id="2" lat="43.7390" lon="7.4250" version="2">
      <tag k="name" v="Modified Node"/>
    </node>
    <relation id="200" version="2">
      <member type="way" ref="100" role="outer"/>
      <member type="way" ref="101" role="inner"/>
      <tag k="type" v="multipolygon"/>
    </relation>
  </modify>
  <delete>
    <node id="999"/>
    <way id="998"/>
  </delete>
</osmChange>`

func TestParseOSC(t *testing.T) {
	defer goleak.VerifyNone(t)

	parser := NewParser()
	changes, errChan := parser.ParseReader(context.Background(), strings.NewReader(testOSC))

	var all []Change
	for change := range changes {
		all = append(all, change)
	}
	for err := range errChan {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := Stats{
		NodesCreated:      1,
		NodesModified:     1,
		NodesDeleted:      1,
		WaysCreated:       1,
		WaysDeleted:       1,
		RelationsModified: 1,
	}
	if diff := cmp.Diff(want, parser.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(all) != 6 {
		t.Fatalf("got %d changes, want 6", len(all))
	}

	node, ok := all[0].Object.(*osm.Node)
	if !ok || all[0].Action != ActionCreate {
		t.Fatalf("first change = %+v, want created node", all[0])
	}
	if node.ID != 1 || node.Lat != 43.7384 || node.Tags.Find("name") != "Test Node" || node.User != "testuser" {
		t.Errorf("node = %+v", node)
	}

	way := all[1].Object.(*osm.Way)
	if diff := cmp.Diff([]osm.NodeID{1, 2, 3}, way.Nodes.NodeIDs()); diff != "" {
		t.Errorf("way nodes mismatch (-want +got):\n%s", diff)
	}

	rel := all[3].Object.(*osm.Relation)
	wantMembers := osm.Members{
		{Type: osm.TypeWay, Ref: 100, Role: "outer"},
		{Type: osm.TypeWay, Ref: 101, Role: "inner"},
	}
	if diff := cmp.Diff(wantMembers, rel.Members); diff != "" {
		t.Errorf("relation members mismatch (-want +got):\n%s", diff)
	}

	deleted := all[4].Object.(*osm.Node)
	if all[4].Action != ActionDelete || deleted.Visible {
		t.Errorf("deleted node = %+v, action %s", deleted, all[4].Action)
	}
	if all[5].Type() != osm.TypeWay {
		t.Errorf("last change type = %s, want way", all[5].Type())
	}
}

func TestParseOSCErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad id", `<osmChange><create><node id="x" lat="1" lon="2"/></create></osmChange>`},
		{"bad member type", `<osmChange><create><relation id="1"><member type="area" ref="1"/></relation></create></osmChange>`},
		{"truncated", `<osmChange><create><way id="1"><nd ref="1"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			changes, errChan := NewParser().ParseReader(context.Background(), strings.NewReader(tt.data))
			for range changes {
			}
			if err := <-errChan; err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestScanner(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScanner(context.Background(), strings.NewReader(testOSC))
	defer s.Close()

	var got []osm.ObjectID
	for s.Scan() {
		got = append(got, s.Object().ObjectID())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	want := []osm.ObjectID{
		osm.NodeID(1).ObjectID(1),
		osm.WayID(100).ObjectID(1),
		osm.NodeID(2).ObjectID(2),
		osm.RelationID(200).ObjectID(2),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
	st := s.Stats()
	if st.Total() != 6 {
		t.Errorf("Stats().Total() = %d, want 6", st.Total())
	}
}

func TestScannerIncludeDeletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScanner(context.Background(), strings.NewReader(testOSC))
	s.IncludeDeletes = true
	defer s.Close()

	n := 0
	for s.Scan() {
		n++
	}
	if n != 6 {
		t.Errorf("scanned %d objects, want 6", n)
	}
}

func TestScannerCloseEarly(t *testing.T) {
	defer goleak.VerifyNone(t)

	var b strings.Builder
	b.WriteString("<osmChange><create>")
	for i := 1; i <= 5000; i++ {
		b.WriteString(`<node id="`)
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`" lat="1" lon="1"/>`)
	}
	b.WriteString("</create></osmChange>")

	s := NewScanner(context.Background(), strings.NewReader(b.String()))
	if !s.Scan() {
		t.Fatalf("Scan() = false, err %v", s.Err())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Scan() {
		t.Error("Scan() after Close returned true")
	}
}
