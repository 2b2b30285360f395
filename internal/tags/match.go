// Package tags holds stateless predicates over OSM tag lists.
package tags

import "github.com/paulmach/osm"

// Predicate reports whether a single tag matches.
type Predicate func(osm.Tag) bool

// MatchAny returns true if at least one tag satisfies fn.
// An empty tag list never matches.
func MatchAny(tags osm.Tags, fn Predicate) bool {
	for _, t := range tags {
		if fn(t) {
			return true
		}
	}
	return false
}

// MatchAll returns true if every tag satisfies fn.
// An empty tag list always matches.
func MatchAll(tags osm.Tags, fn Predicate) bool {
	for _, t := range tags {
		if !fn(t) {
			return false
		}
	}
	return true
}

// MatchNone returns true if no tag satisfies fn.
func MatchNone(tags osm.Tags, fn Predicate) bool {
	return !MatchAny(tags, fn)
}

// HasKey matches tags with the given key, whatever the value.
func HasKey(key string) Predicate {
	return func(t osm.Tag) bool {
		return t.Key == key
	}
}

// KeyValue matches tags with the given key and one of the given values.
// With no values it behaves like HasKey. A value of "*" matches anything.
func KeyValue(key string, values ...string) Predicate {
	if len(values) == 0 {
		return HasKey(key)
	}
	return func(t osm.Tag) bool {
		if t.Key != key {
			return false
		}
		for _, v := range values {
			if v == t.Value || v == "*" {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(fn Predicate) Predicate {
	return func(t osm.Tag) bool {
		return !fn(t)
	}
}

// And matches when every predicate matches the same tag.
func And(fns ...Predicate) Predicate {
	return func(t osm.Tag) bool {
		for _, fn := range fns {
			if !fn(t) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches the tag.
func Or(fns ...Predicate) Predicate {
	return func(t osm.Tag) bool {
		for _, fn := range fns {
			if fn(t) {
				return true
			}
		}
		return false
	}
}
