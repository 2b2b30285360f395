package filter

import "github.com/paulmach/osm"

// Source supplies assembly predicates. Both Rules and LuaFilter are
// sources; nil predicates accept everything.
type Source interface {
	Interest() func(*osm.Relation) bool
	MemberRelevant() func(*osm.Relation, osm.Member) bool
}

var (
	_ Source = &Rules{}
	_ Source = &LuaFilter{}
)

// Interest returns a predicate accepting relations every source accepts,
// or nil when no source restricts relations.
func Interest(srcs ...Source) func(*osm.Relation) bool {
	var fns []func(*osm.Relation) bool
	for _, s := range srcs {
		if s == nil {
			continue
		}
		if fn := s.Interest(); fn != nil {
			fns = append(fns, fn)
		}
	}
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(r *osm.Relation) bool {
		for _, fn := range fns {
			if !fn(r) {
				return false
			}
		}
		return true
	}
}

// MemberRelevant returns a predicate accepting members every source
// accepts, or nil when no source restricts members.
func MemberRelevant(srcs ...Source) func(*osm.Relation, osm.Member) bool {
	var fns []func(*osm.Relation, osm.Member) bool
	for _, s := range srcs {
		if s == nil {
			continue
		}
		if fn := s.MemberRelevant(); fn != nil {
			fns = append(fns, fn)
		}
	}
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(r *osm.Relation, m osm.Member) bool {
		for _, fn := range fns {
			if !fn(r, m) {
				return false
			}
		}
		return true
	}
}
