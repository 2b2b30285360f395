package handler

import "github.com/paulmach/osm"

// Clone returns a copy of obj that shares no tag, node, member or update
// slices with the original. Metadata pointers (timestamps, discussions) are shared.
func Clone(obj osm.Object) osm.Object {
	switch o := obj.(type) {
	case *osm.Node:
		c := *o
		c.Tags = cloneTags(o.Tags)
		return &c
	case *osm.Way:
		c := *o
		c.Tags = cloneTags(o.Tags)
		if o.Nodes != nil {
			c.Nodes = append(osm.WayNodes(nil), o.Nodes...)
		}
		c.Updates = cloneUpdates(o.Updates)
		return &c
	case *osm.Relation:
		c := *o
		c.Tags = cloneTags(o.Tags)
		if o.Members != nil {
			c.Members = make(osm.Members, len(o.Members))
			for i, m := range o.Members {
				if m.Nodes != nil {
					m.Nodes = append(osm.WayNodes(nil), m.Nodes...)
				}
				c.Members[i] = m
			}
		}
		c.Updates = cloneUpdates(o.Updates)
		return &c
	case *osm.Changeset:
		c := *o
		c.Tags = cloneTags(o.Tags)
		return &c
	default:
		return obj
	}
}

func cloneTags(tags osm.Tags) osm.Tags {
	if tags == nil {
		return nil
	}
	return append(osm.Tags(nil), tags...)
}

func cloneUpdates(us osm.Updates) osm.Updates {
	if us == nil {
		return nil
	}
	return append(osm.Updates(nil), us...)
}
