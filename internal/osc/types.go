// Package osc streams the objects of OsmChange (.osc) files.
package osc

import "github.com/paulmach/osm"

// Action represents the type of change in an OSC file
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Change represents a single OSM change from an OSC file. Deleted objects
// carry only their id and metadata, with Visible false.
type Change struct {
	Action Action
	Object osm.Object
}

// Type returns the object type of the change.
func (c Change) Type() osm.Type {
	return c.Object.ObjectID().Type()
}

// Stats tracks OSC parsing statistics
type Stats struct {
	NodesCreated      int64
	NodesModified     int64
	NodesDeleted      int64
	WaysCreated       int64
	WaysModified      int64
	WaysDeleted       int64
	RelationsCreated  int64
	RelationsModified int64
	RelationsDeleted  int64
}

// Total returns total number of changes
func (s *Stats) Total() int64 {
	return s.NodesCreated + s.NodesModified + s.NodesDeleted +
		s.WaysCreated + s.WaysModified + s.WaysDeleted +
		s.RelationsCreated + s.RelationsModified + s.RelationsDeleted
}

func (s *Stats) add(action Action, t osm.Type) {
	var created, modified, deleted *int64
	switch t {
	case osm.TypeNode:
		created, modified, deleted = &s.NodesCreated, &s.NodesModified, &s.NodesDeleted
	case osm.TypeWay:
		created, modified, deleted = &s.WaysCreated, &s.WaysModified, &s.WaysDeleted
	case osm.TypeRelation:
		created, modified, deleted = &s.RelationsCreated, &s.RelationsModified, &s.RelationsDeleted
	default:
		return
	}
	switch action {
	case ActionCreate:
		*created++
	case ActionModify:
		*modified++
	case ActionDelete:
		*deleted++
	}
}
