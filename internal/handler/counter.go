package handler

import (
	"context"

	"github.com/paulmach/osm"
)

// Counts holds per-type object counts seen by a Counter.
type Counts struct {
	Nodes      int64
	Ways       int64
	Relations  int64
	Changesets int64

	// Phases is the number of Before hooks that fired. It equals the number
	// of type runs in the stream; a stream sorted by type has at most 4.
	Phases int
}

// Total returns the number of objects counted.
func (c Counts) Total() int64 {
	return c.Nodes + c.Ways + c.Relations + c.Changesets
}

// Counter counts objects and type runs.
type Counter struct {
	Base
	counts Counts
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Counts returns a snapshot of the counts.
func (c *Counter) Counts() Counts {
	return c.counts
}

func (c *Counter) BeforeNodes(context.Context) error {
	c.counts.Phases++
	return nil
}

func (c *Counter) Node(context.Context, *osm.Node) error {
	c.counts.Nodes++
	return nil
}

func (c *Counter) BeforeWays(context.Context) error {
	c.counts.Phases++
	return nil
}

func (c *Counter) Way(context.Context, *osm.Way) error {
	c.counts.Ways++
	return nil
}

func (c *Counter) BeforeRelations(context.Context) error {
	c.counts.Phases++
	return nil
}

func (c *Counter) Relation(context.Context, *osm.Relation) error {
	c.counts.Relations++
	return nil
}

func (c *Counter) BeforeChangesets(context.Context) error {
	c.counts.Phases++
	return nil
}

func (c *Counter) Changeset(context.Context, *osm.Changeset) error {
	c.counts.Changesets++
	return nil
}
