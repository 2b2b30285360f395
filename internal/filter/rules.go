// Package filter builds the predicates that decide which relations are
// assembled and which of their members must be present.
package filter

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/osm"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmrel-go/internal/tags"
)

// Rules is the YAML filter file.
//
//	relations:
//	  types: [multipolygon, boundary]
//	  exclude:
//	    boundary: [maritime]
//	members:
//	  types: [way]
//	  roles: [outer, inner, ""]
type Rules struct {
	// Relations selects the relations of interest.
	Relations *TagRules `yaml:"relations,omitempty"`
	// Members selects the members a relation waits for.
	Members *MemberRules `yaml:"members,omitempty"`
}

// TagRules defines filtering rules over a tag list
type TagRules struct {
	// Types lists accepted values of the "type" tag
	// If empty, any relation type is accepted
	Types []string `yaml:"types,omitempty"`
	// Include specifies which tag keys/values to include
	// If empty, all tags are included (no filtering)
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude specifies which tag keys/values to exclude
	// Applied after include rules
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny specifies that at least one of these tags must be present
	// If empty, no requirement
	RequireAny []string `yaml:"require_any,omitempty"`
}

// MemberRules defines which member references count towards completion.
type MemberRules struct {
	// Types lists member types: node, way, relation. Empty means all.
	Types []string `yaml:"types,omitempty"`
	// Roles lists accepted roles. Empty means all; "" is the empty role.
	Roles []string `yaml:"roles,omitempty"`
	// ExcludeRoles lists roles that never count.
	ExcludeRoles []string `yaml:"exclude_roles,omitempty"`
}

// LoadRules loads filter rules from a YAML file
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses filter rules from YAML.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse filter YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks member types.
func (r *Rules) Validate() error {
	if r.Members == nil {
		return nil
	}
	for _, t := range r.Members.Types {
		switch osm.Type(strings.ToLower(t)) {
		case osm.TypeNode, osm.TypeWay, osm.TypeRelation:
		default:
			return fmt.Errorf("invalid member type %q (want node, way or relation)", t)
		}
	}
	return nil
}

// Interest returns the relation predicate. Nil rules accept every relation.
func (r *Rules) Interest() func(*osm.Relation) bool {
	if r == nil || r.Relations == nil {
		return nil
	}
	f := NewTagFilter(r.Relations)
	if !f.HasFilter() {
		return nil
	}
	return func(rel *osm.Relation) bool {
		return f.Match(rel.Tags)
	}
}

// MemberRelevant returns the member predicate. Nil rules make every
// member relevant.
func (r *Rules) MemberRelevant() func(*osm.Relation, osm.Member) bool {
	if r == nil || r.Members == nil {
		return nil
	}
	m := r.Members
	if len(m.Types) == 0 && len(m.Roles) == 0 && len(m.ExcludeRoles) == 0 {
		return nil
	}

	types := make(map[osm.Type]bool, len(m.Types))
	for _, t := range m.Types {
		types[osm.Type(strings.ToLower(t))] = true
	}
	roles := set(m.Roles)
	excluded := set(m.ExcludeRoles)

	return func(_ *osm.Relation, mem osm.Member) bool {
		if len(types) > 0 && !types[mem.Type] {
			return false
		}
		if len(roles) > 0 && !roles[mem.Role] {
			return false
		}
		return !excluded[mem.Role]
	}
}

func set(values []string) map[string]bool {
	s := make(map[string]bool, len(values))
	for _, v := range values {
		s[v] = true
	}
	return s
}

// TagFilter checks tag lists against TagRules.
type TagFilter struct {
	types      tags.Predicate
	include    tags.Predicate
	exclude    tags.Predicate
	requireAny tags.Predicate
}

// NewTagFilter creates a filter from rules. Nil rules match everything.
func NewTagFilter(rules *TagRules) *TagFilter {
	if rules == nil {
		rules = &TagRules{}
	}
	f := &TagFilter{}

	if len(rules.Types) > 0 {
		f.types = tags.KeyValue("type", rules.Types...)
	}
	if len(rules.Include) > 0 {
		f.include = keyValues(rules.Include)
	}
	if len(rules.Exclude) > 0 {
		f.exclude = keyValues(rules.Exclude)
	}
	if len(rules.RequireAny) > 0 {
		keys := make([]tags.Predicate, 0, len(rules.RequireAny))
		for _, k := range rules.RequireAny {
			keys = append(keys, tags.HasKey(k))
		}
		f.requireAny = tags.Or(keys...)
	}
	return f
}

func keyValues(m map[string][]string) tags.Predicate {
	preds := make([]tags.Predicate, 0, len(m))
	for k, vs := range m {
		preds = append(preds, tags.KeyValue(k, vs...))
	}
	return tags.Or(preds...)
}

// Match checks if the given tags match the filter rules
// Returns true if the feature should be included
func (f *TagFilter) Match(t osm.Tags) bool {
	if f.types != nil && !tags.MatchAny(t, f.types) {
		return false
	}
	if f.requireAny != nil && !tags.MatchAny(t, f.requireAny) {
		return false
	}
	if f.include != nil && !tags.MatchAny(t, f.include) {
		return false
	}
	if f.exclude != nil && !tags.MatchNone(t, f.exclude) {
		return false
	}
	return true
}

// HasFilter returns true if filtering is enabled
func (f *TagFilter) HasFilter() bool {
	return f.types != nil || f.include != nil || f.exclude != nil || f.requireAny != nil
}
