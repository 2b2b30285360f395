// Package handler drives consumers over an ordered stream of OSM objects.
//
// Apply pulls objects one at a time from an osm.Scanner and calls every
// registered Handler in order. Whenever the object type changes, the
// matching After hook for the previous type and Before hook for the new
// type fire, so a handler sees phases like
//
//	Init, BeforeNodes, Node..., AfterNodes, BeforeWays, Way..., AfterWays, Done
//
// The stream does not have to be grouped by type; every transition is
// reported as it happens.
package handler

import (
	"context"

	"github.com/paulmach/osm"
)

// Handler receives objects and phase notifications from Apply.
// Embed Base to get no-op implementations of the hooks you don't need.
type Handler interface {
	Init(ctx context.Context) error

	BeforeNodes(ctx context.Context) error
	Node(ctx context.Context, n *osm.Node) error
	AfterNodes(ctx context.Context) error

	BeforeWays(ctx context.Context) error
	Way(ctx context.Context, w *osm.Way) error
	AfterWays(ctx context.Context) error

	BeforeRelations(ctx context.Context) error
	Relation(ctx context.Context, r *osm.Relation) error
	AfterRelations(ctx context.Context) error

	BeforeChangesets(ctx context.Context) error
	Changeset(ctx context.Context, c *osm.Changeset) error
	AfterChangesets(ctx context.Context) error

	Done(ctx context.Context) error
}

// Base implements every Handler hook as a no-op.
type Base struct{}

func (Base) Init(context.Context) error                      { return nil }
func (Base) BeforeNodes(context.Context) error               { return nil }
func (Base) Node(context.Context, *osm.Node) error           { return nil }
func (Base) AfterNodes(context.Context) error                { return nil }
func (Base) BeforeWays(context.Context) error                { return nil }
func (Base) Way(context.Context, *osm.Way) error             { return nil }
func (Base) AfterWays(context.Context) error                 { return nil }
func (Base) BeforeRelations(context.Context) error           { return nil }
func (Base) Relation(context.Context, *osm.Relation) error   { return nil }
func (Base) AfterRelations(context.Context) error            { return nil }
func (Base) BeforeChangesets(context.Context) error          { return nil }
func (Base) Changeset(context.Context, *osm.Changeset) error { return nil }
func (Base) AfterChangesets(context.Context) error           { return nil }
func (Base) Done(context.Context) error                      { return nil }

var _ Handler = Base{}
