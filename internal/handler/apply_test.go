package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/osm"
)

// recorder logs every hook it sees.
type recorder struct {
	calls []string

	// stopAt makes the named call return ErrStop.
	stopAt string
	// failAt makes the named call return an error.
	failAt string
}

func (r *recorder) hook(name string) error {
	r.calls = append(r.calls, name)
	switch name {
	case r.stopAt:
		return ErrStop
	case r.failAt:
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) Init(context.Context) error        { return r.hook("init") }
func (r *recorder) BeforeNodes(context.Context) error { return r.hook("before_nodes") }
func (r *recorder) Node(_ context.Context, n *osm.Node) error {
	return r.hook(fmt.Sprintf("node:%d", n.ID))
}
func (r *recorder) AfterNodes(context.Context) error { return r.hook("after_nodes") }
func (r *recorder) BeforeWays(context.Context) error { return r.hook("before_ways") }
func (r *recorder) Way(_ context.Context, w *osm.Way) error {
	return r.hook(fmt.Sprintf("way:%d", w.ID))
}
func (r *recorder) AfterWays(context.Context) error       { return r.hook("after_ways") }
func (r *recorder) BeforeRelations(context.Context) error { return r.hook("before_relations") }
func (r *recorder) Relation(_ context.Context, rel *osm.Relation) error {
	return r.hook(fmt.Sprintf("relation:%d", rel.ID))
}
func (r *recorder) AfterRelations(context.Context) error   { return r.hook("after_relations") }
func (r *recorder) BeforeChangesets(context.Context) error { return r.hook("before_changesets") }
func (r *recorder) Changeset(_ context.Context, c *osm.Changeset) error {
	return r.hook(fmt.Sprintf("changeset:%d", c.ID))
}
func (r *recorder) AfterChangesets(context.Context) error { return r.hook("after_changesets") }
func (r *recorder) Done(context.Context) error            { return r.hook("done") }

func TestApplyPhaseOrder(t *testing.T) {
	tests := []struct {
		name string
		objs []osm.Object
		want []string
	}{
		{
			name: "empty stream",
			objs: nil,
			want: []string{"init", "done"},
		},
		{
			name: "points then way",
			objs: []osm.Object{&osm.Node{ID: 1}, &osm.Node{ID: 2}, &osm.Way{ID: 10}},
			want: []string{
				"init", "before_nodes", "node:1", "node:2", "after_nodes",
				"before_ways", "way:10", "after_ways", "done",
			},
		},
		{
			name: "ungrouped stream reports every boundary",
			objs: []osm.Object{&osm.Way{ID: 10}, &osm.Node{ID: 1}, &osm.Way{ID: 11}},
			want: []string{
				"init", "before_ways", "way:10", "after_ways",
				"before_nodes", "node:1", "after_nodes",
				"before_ways", "way:11", "after_ways", "done",
			},
		},
		{
			name: "all four types",
			objs: []osm.Object{
				&osm.Node{ID: 1}, &osm.Way{ID: 2}, &osm.Relation{ID: 3}, &osm.Changeset{ID: 4},
			},
			want: []string{
				"init",
				"before_nodes", "node:1", "after_nodes",
				"before_ways", "way:2", "after_ways",
				"before_relations", "relation:3", "after_relations",
				"before_changesets", "changeset:4", "after_changesets",
				"done",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			if err := Apply(context.Background(), NewSliceScanner(tt.objs...), rec); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if diff := cmp.Diff(tt.want, rec.calls); diff != "" {
				t.Errorf("hook sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyFanOutIndependence(t *testing.T) {
	objs := []osm.Object{
		&osm.Node{ID: 1, Tags: osm.Tags{{Key: "name", Value: "a"}}},
		&osm.Way{ID: 2, Nodes: osm.WayNodes{{ID: 1}, {ID: 3}}},
	}

	var seen []string
	mutator := &mutatingHandler{}
	observer := &observingHandler{seen: &seen}
	rec1, rec2 := &recorder{}, &recorder{}

	if err := Apply(context.Background(), NewSliceScanner(objs...), rec1, mutator, observer, rec2); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if diff := cmp.Diff(rec1.calls, rec2.calls); diff != "" {
		t.Errorf("handlers saw different sequences (-first +last):\n%s", diff)
	}

	want := []string{"node:1:name=a", "way:2:nodes=2"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("observer saw mutated objects (-want +got):\n%s", diff)
	}
}

type mutatingHandler struct{ Base }

func (mutatingHandler) Node(_ context.Context, n *osm.Node) error {
	n.Tags[0].Value = "changed"
	n.Tags = append(n.Tags, osm.Tag{Key: "extra", Value: "x"})
	return nil
}

func (mutatingHandler) Way(_ context.Context, w *osm.Way) error {
	w.Nodes[0].ID = 99
	w.Nodes = w.Nodes[:1]
	return nil
}

type observingHandler struct {
	Base
	seen *[]string
}

func (o observingHandler) Node(_ context.Context, n *osm.Node) error {
	*o.seen = append(*o.seen, fmt.Sprintf("node:%d:%s=%s", n.ID, n.Tags[0].Key, n.Tags[0].Value))
	return nil
}

func (o observingHandler) Way(_ context.Context, w *osm.Way) error {
	if w.Nodes[0].ID != 1 {
		return fmt.Errorf("way node changed to %d", w.Nodes[0].ID)
	}
	*o.seen = append(*o.seen, fmt.Sprintf("way:%d:nodes=%d", w.ID, len(w.Nodes)))
	return nil
}

func TestApplyStop(t *testing.T) {
	objs := []osm.Object{&osm.Node{ID: 1}, &osm.Node{ID: 2}, &osm.Way{ID: 3}}

	stopper := &recorder{stopAt: "node:1"}
	other := &recorder{}
	if err := Apply(context.Background(), NewSliceScanner(objs...), stopper, other); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []string{"init", "before_nodes", "node:1", "after_nodes", "done"}
	if diff := cmp.Diff(want, stopper.calls); diff != "" {
		t.Errorf("stopping handler (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, other.calls); diff != "" {
		t.Errorf("second handler (-want +got):\n%s", diff)
	}
}

func TestApplyStopInBeforeHook(t *testing.T) {
	objs := []osm.Object{&osm.Node{ID: 1}, &osm.Way{ID: 3}}

	rec := &recorder{stopAt: "before_ways"}
	if err := Apply(context.Background(), NewSliceScanner(objs...), rec); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []string{
		"init", "before_nodes", "node:1", "after_nodes",
		"before_ways", "after_ways", "done",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("hook sequence (-want +got):\n%s", diff)
	}
}

func TestApplyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	objs := []osm.Object{&osm.Node{ID: 1}, &osm.Node{ID: 2}}

	rec := &cancellingRecorder{recorder: &recorder{}, cancel: cancel}
	err := Apply(ctx, NewSliceScanner(objs...), rec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	want := []string{"init", "before_nodes", "node:1", "after_nodes", "done"}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("hook sequence (-want +got):\n%s", diff)
	}
}

type cancellingRecorder struct {
	*recorder
	cancel context.CancelFunc
}

func (c *cancellingRecorder) Node(ctx context.Context, n *osm.Node) error {
	c.cancel()
	return c.recorder.Node(ctx, n)
}

func TestApplyHandlerError(t *testing.T) {
	objs := []osm.Object{&osm.Node{ID: 1}, &osm.Node{ID: 2}}

	rec := &recorder{failAt: "node:1"}
	err := Apply(context.Background(), NewSliceScanner(objs...), Base{}, rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "handler 1: node: boom" {
		t.Errorf("error = %q", got)
	}

	want := []string{"init", "before_nodes", "node:1"}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("hook sequence (-want +got):\n%s", diff)
	}
}

func TestApplyUnknownType(t *testing.T) {
	objs := []osm.Object{&osm.Node{ID: 1}, &osm.User{ID: 7}}

	rec := &recorder{}
	err := Apply(context.Background(), NewSliceScanner(objs...), rec)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}

	// fatal: no closing hooks
	want := []string{"init", "before_nodes", "node:1"}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("hook sequence (-want +got):\n%s", diff)
	}
}

func TestCounter(t *testing.T) {
	objs := []osm.Object{
		&osm.Node{ID: 1}, &osm.Node{ID: 2}, &osm.Way{ID: 3},
		&osm.Node{ID: 4}, &osm.Relation{ID: 5}, &osm.Changeset{ID: 6},
	}

	c := NewCounter()
	if err := Apply(context.Background(), NewSliceScanner(objs...), c); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := Counts{Nodes: 3, Ways: 1, Relations: 1, Changesets: 1, Phases: 5}
	if diff := cmp.Diff(want, c.Counts()); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
	if c.Counts().Total() != 6 {
		t.Errorf("Total = %d, want 6", c.Counts().Total())
	}
}

func TestCloneRelation(t *testing.T) {
	rel := &osm.Relation{
		ID:   1,
		Tags: osm.Tags{{Key: "type", Value: "route"}},
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 2, Role: "forward", Nodes: osm.WayNodes{{ID: 5}}},
		},
		Updates: osm.Updates{{Index: 0, Version: 3}},
	}

	c := Clone(rel).(*osm.Relation)
	c.Members[0].Role = "backward"
	c.Members[0].Nodes[0].ID = 6
	c.Tags[0].Value = "bus"
	c.Updates[0].Version = 4

	if rel.Members[0].Role != "forward" || rel.Members[0].Nodes[0].ID != 5 || rel.Tags[0].Value != "route" {
		t.Errorf("clone shares state with original: %+v", rel)
	}
	if rel.Updates[0].Version != 3 {
		t.Errorf("clone shares updates with original: %+v", rel.Updates)
	}
}

func TestCloneWay(t *testing.T) {
	w := &osm.Way{
		ID:      1,
		Nodes:   osm.WayNodes{{ID: 5}},
		Updates: osm.Updates{{Index: 0, Version: 2, Lat: 1, Lon: 2}},
	}

	c := Clone(w).(*osm.Way)
	c.Nodes[0].ID = 6
	c.Updates[0].Lat = 9

	if w.Nodes[0].ID != 5 || w.Updates[0].Lat != 1 {
		t.Errorf("clone shares state with original: %+v", w)
	}
}
