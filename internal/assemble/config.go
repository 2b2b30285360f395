// Package assemble collects relations of interest together with their
// members across several passes over an OSM stream.
//
// Pass 1 (RelationsPass) registers relations and indexes the members they
// wait for. Pass 2 (MembersPass) resolves those members as nodes, ways and
// relations stream past and hands every relation whose members are all
// present to a downstream handler, exactly once.
package assemble

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmrel-go/internal/store"
)

var (
	// ErrPassOrder is returned when a pass runs after a later stage has started.
	ErrPassOrder = errors.New("assembly pass out of order")
	// ErrDuplicateRelation is returned when a relation id is registered twice.
	ErrDuplicateRelation = errors.New("relation registered twice")
	// ErrIncomplete is matched by *IncompleteError.
	ErrIncomplete = errors.New("relations with missing members")
)

// MemberKey identifies a member entity by type and id.
type MemberKey struct {
	Type osm.Type
	Ref  int64
}

func (k MemberKey) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.Ref)
}

func (k MemberKey) less(o MemberKey) bool {
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	return k.Ref < o.Ref
}

func sortKeys(keys []MemberKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}

// RelationMeta is the bookkeeping for one tracked relation: where the
// relation is stored and how many distinct members it still needs.
type RelationMeta struct {
	Handle store.Handle
	Needed int
}

// Complete reports whether no members are outstanding.
func (m RelationMeta) Complete() bool {
	return m.Needed == 0
}

// LocationLookup returns node coordinates, typically a nodeindex.
type LocationLookup interface {
	Get(nodeID int64) (lat, lon float64, ok bool)
}

// DuplicatePolicy decides what happens when a tracked relation id shows up
// again in a relations pass.
type DuplicatePolicy int

const (
	DuplicateError DuplicatePolicy = iota
	DuplicateSkip
)

// IncompletePolicy decides what Finish does with relations that still have
// missing members.
type IncompletePolicy int

const (
	// IncompleteDrop discards them. They are never sent downstream.
	IncompleteDrop IncompletePolicy = iota
	// IncompleteEmit sends them downstream with the members that were found.
	IncompleteEmit
	// IncompleteFail makes Finish return an *IncompleteError.
	IncompleteFail
)

func (p IncompletePolicy) String() string {
	switch p {
	case IncompleteDrop:
		return "drop"
	case IncompleteEmit:
		return "emit"
	case IncompleteFail:
		return "fail"
	default:
		return fmt.Sprintf("IncompletePolicy(%d)", int(p))
	}
}

// ParseIncompletePolicy parses "drop", "emit" or "fail".
func ParseIncompletePolicy(s string) (IncompletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return IncompleteDrop, nil
	case "emit":
		return IncompleteEmit, nil
	case "fail":
		return IncompleteFail, nil
	default:
		return IncompleteDrop, fmt.Errorf("unknown incomplete policy %q (want drop, emit or fail)", s)
	}
}

// Config configures an Engine. Nil predicates accept everything.
type Config struct {
	// Interest selects the relations to track.
	Interest func(r *osm.Relation) bool
	// MemberRelevant selects the members of a tracked relation that must be
	// present before it is complete. Other members are passed through as
	// plain references.
	MemberRelevant func(r *osm.Relation, m osm.Member) bool
	// Locations, when set, supplies coordinates for way nodes.
	Locations LocationLookup

	Duplicates DuplicatePolicy
	Incomplete IncompletePolicy
}

func (c *Config) interested(r *osm.Relation) bool {
	return c.Interest == nil || c.Interest(r)
}

func (c *Config) relevant(r *osm.Relation, m osm.Member) bool {
	return c.MemberRelevant == nil || c.MemberRelevant(r, m)
}

// Incomplete describes a tracked relation that still waits for members.
type Incomplete struct {
	ID      osm.RelationID
	Meta    RelationMeta
	Missing []MemberKey
}

// IncompleteError is returned by Finish under IncompleteFail.
type IncompleteError struct {
	Relations []Incomplete
}

func (e *IncompleteError) Error() string {
	ids := make([]string, 0, 5)
	for i, r := range e.Relations {
		if i == 5 {
			ids = append(ids, "...")
			break
		}
		ids = append(ids, fmt.Sprintf("%d", r.ID))
	}
	return fmt.Sprintf("%d relations with missing members: %s", len(e.Relations), strings.Join(ids, ", "))
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncomplete
}

// Stats counts what the engine has done so far.
type Stats struct {
	Seen             int64 // relations offered in the relations pass
	Tracked          int64 // relations of interest registered
	Skipped          int64 // relations not of interest
	Duplicates       int64 // repeated relation ids ignored under DuplicateSkip
	Degenerate       int64 // tracked relations without relevant members
	Indexed          int64 // member positions added to the index
	DuplicateMembers int64 // member positions repeating a key already waited for
	Resolved         int64 // member entities matched against the index
	Emitted          int64 // relations sent downstream
	Partial          int64 // incomplete relations sent downstream by Finish
	Compactions      int64
}
