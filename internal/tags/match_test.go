package tags

import (
	"testing"

	"github.com/paulmach/osm"
)

func TestMatchCombinators(t *testing.T) {
	tags := osm.Tags{
		{Key: "type", Value: "multipolygon"},
		{Key: "landuse", Value: "forest"},
		{Key: "name", Value: "Bois"},
	}

	tests := []struct {
		name     string
		tags     osm.Tags
		fn       Predicate
		wantAny  bool
		wantAll  bool
		wantNone bool
	}{
		{
			name:     "key present",
			tags:     tags,
			fn:       HasKey("landuse"),
			wantAny:  true,
			wantAll:  false,
			wantNone: false,
		},
		{
			name:     "key absent",
			tags:     tags,
			fn:       HasKey("building"),
			wantAny:  false,
			wantAll:  false,
			wantNone: true,
		},
		{
			name:     "every tag has a value",
			tags:     tags,
			fn:       func(t osm.Tag) bool { return t.Value != "" },
			wantAny:  true,
			wantAll:  true,
			wantNone: false,
		},
		{
			name:     "empty list",
			tags:     nil,
			fn:       HasKey("type"),
			wantAny:  false,
			wantAll:  true,
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchAny(tt.tags, tt.fn); got != tt.wantAny {
				t.Errorf("MatchAny = %v, want %v", got, tt.wantAny)
			}
			if got := MatchAll(tt.tags, tt.fn); got != tt.wantAll {
				t.Errorf("MatchAll = %v, want %v", got, tt.wantAll)
			}
			if got := MatchNone(tt.tags, tt.fn); got != tt.wantNone {
				t.Errorf("MatchNone = %v, want %v", got, tt.wantNone)
			}
		})
	}
}

func TestMatchAnyShortCircuits(t *testing.T) {
	tags := osm.Tags{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	calls := 0
	MatchAny(tags, func(t osm.Tag) bool {
		calls++
		return t.Key == "a"
	})
	if calls != 1 {
		t.Errorf("MatchAny evaluated %d tags, want 1", calls)
	}

	calls = 0
	MatchAll(tags, func(t osm.Tag) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Errorf("MatchAll evaluated %d tags, want 1", calls)
	}
}

func TestKeyValue(t *testing.T) {
	boundary := osm.Tag{Key: "type", Value: "boundary"}
	route := osm.Tag{Key: "type", Value: "route"}

	fn := KeyValue("type", "multipolygon", "boundary")
	if !fn(boundary) {
		t.Error("expected boundary to match")
	}
	if fn(route) {
		t.Error("expected route not to match")
	}
	if !KeyValue("type", "*")(route) {
		t.Error("wildcard should match any value")
	}
	if !KeyValue("type")(route) {
		t.Error("no values should behave like HasKey")
	}
	if Not(fn)(boundary) {
		t.Error("Not should invert")
	}
	if !Or(fn, KeyValue("type", "route"))(route) {
		t.Error("Or should match second predicate")
	}
	if And(HasKey("type"), KeyValue("type", "route"))(boundary) {
		t.Error("And should require both")
	}
}
