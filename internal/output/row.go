// Package output turns assembled relations into rows and writes them to
// Parquet, PostgreSQL and the incomplete-relation report.
package output

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/osm"
	"github.com/wegman-software/osmrel-go/internal/geom"
	"github.com/wegman-software/osmrel-go/internal/parquet"
	"github.com/wegman-software/osmrel-go/internal/wkb"
)

// Row is one relation ready for writing.
type Row = parquet.Record

// Member is the JSON shape of a relation member.
type Member struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// MembersToJSON encodes the member list with single-letter type codes.
func MembersToJSON(members osm.Members) string {
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = Member{Type: typeCode(m.Type), Ref: m.Ref, Role: m.Role}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func typeCode(t osm.Type) string {
	switch t {
	case osm.TypeNode:
		return "n"
	case osm.TypeWay:
		return "w"
	case osm.TypeRelation:
		return "r"
	}
	return string(t)
}

// Converter builds rows from relations carrying resolved member data.
type Converter struct {
	geom *geom.Builder
	enc  *wkb.Encoder
}

// NewConverter creates a converter. A nil builder produces rows without
// geometry.
func NewConverter(b *geom.Builder) *Converter {
	c := &Converter{geom: b}
	if b != nil {
		c.enc = wkb.NewEncoder(1024, b.SRID())
	}
	return c
}

// Convert returns the row for r. It fails with geom.ErrOutside when the
// relation lies outside the bounding box; a relation without usable
// geometry gets a nil Geometry.
func (c *Converter) Convert(r *osm.Relation) (Row, error) {
	row := Row{
		ID:      int64(r.ID),
		Version: int32(r.Version),
		Kind:    r.Tags.Find("type"),
		Tags:    parquet.TagsToJSON(r.Tags),
		Members: MembersToJSON(r.Members),
	}
	if c.geom == nil {
		return row, nil
	}

	g, err := c.geom.Build(r)
	switch {
	case errors.Is(err, geom.ErrNoGeometry):
		return row, nil
	case err != nil:
		return row, err
	}

	b, err := c.enc.Encode(g)
	if err != nil {
		return row, fmt.Errorf("relation %d: %w", r.ID, err)
	}
	row.Geometry = append([]byte(nil), b...)
	return row, nil
}
