// Package geom builds geometries for assembled relations from the member
// node locations and way node lists attached by the assembly engine.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmrel-go/internal/config"
	"github.com/wegman-software/osmrel-go/internal/proj"
)

var (
	// ErrNoGeometry means no member carried usable coordinates.
	ErrNoGeometry = errors.New("geom: no member geometry")
	// ErrOutside means the geometry does not touch the configured bbox.
	ErrOutside = errors.New("geom: outside bounding box")
)

// Builder turns relations into orb geometries in the target projection.
type Builder struct {
	proj *proj.Projection
	bbox *config.BBox
}

// NewBuilder creates a builder. A nil projection leaves coordinates in
// WGS84; a nil or unset bbox accepts everything.
func NewBuilder(p *proj.Projection, bbox *config.BBox) *Builder {
	return &Builder{proj: p, bbox: bbox}
}

// SRID of the geometries produced by Build.
func (b *Builder) SRID() int {
	if b.proj == nil {
		return int(proj.WGS84)
	}
	return int(b.proj.Target())
}

// IsArea reports whether the relation describes an area.
func IsArea(r *osm.Relation) bool {
	switch r.Tags.Find("type") {
	case "multipolygon", "boundary":
		return true
	}
	return false
}

// Build returns the geometry for r. Area relations become a MultiPolygon
// when at least one ring closes; everything else, and areas whose rings
// don't close, fall back to the plain member geometry.
func (b *Builder) Build(r *osm.Relation) (orb.Geometry, error) {
	var g orb.Geometry
	if IsArea(r) {
		if mp := Areas(r); len(mp) > 0 {
			g = mp
		}
	}
	if g == nil {
		g = Members(r)
	}
	if g == nil {
		return nil, ErrNoGeometry
	}

	if b.bbox != nil && b.bbox.IsSet {
		box := orb.Bound{
			Min: orb.Point{b.bbox.MinLon, b.bbox.MinLat},
			Max: orb.Point{b.bbox.MaxLon, b.bbox.MaxLat},
		}
		if !box.Intersects(g.Bound()) {
			return nil, ErrOutside
		}
	}

	if b.proj == nil || !b.proj.NeedsTransform() {
		return g, nil
	}
	if p, ok := g.(orb.Point); ok {
		q, err := b.projectPoint(p)
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", r.ID, err)
		}
		return q, nil
	}
	if err := b.project(g); err != nil {
		return nil, fmt.Errorf("relation %d: %w", r.ID, err)
	}
	return g, nil
}

// Members collects node members as points and way members as lines.
// Ways with an unlocated node are skipped. It returns nil when nothing
// usable remains.
func Members(r *osm.Relation) orb.Geometry {
	var points orb.MultiPoint
	var lines orb.MultiLineString
	for _, m := range r.Members {
		switch m.Type {
		case osm.TypeNode:
			if located(m.Lat, m.Lon) {
				points = append(points, orb.Point{m.Lon, m.Lat})
			}
		case osm.TypeWay:
			if ls, ok := lineOf(m.Nodes); ok && len(ls) >= 2 {
				lines = append(lines, ls)
			}
		}
	}

	switch {
	case len(points) == 0 && len(lines) == 0:
		return nil
	case len(lines) == 0:
		if len(points) == 1 {
			return points[0]
		}
		return points
	case len(points) == 0:
		return lines
	}
	return orb.Collection{points, lines}
}

func lineOf(nodes osm.WayNodes) (orb.LineString, bool) {
	if len(nodes) == 0 {
		return nil, false
	}
	ls := make(orb.LineString, len(nodes))
	for i, wn := range nodes {
		if !located(wn.Lat, wn.Lon) {
			return nil, false
		}
		ls[i] = orb.Point{wn.Lon, wn.Lat}
	}
	return ls, true
}

// located reports whether a coordinate pair is known. The assembly engine
// marks unknown node locations with NaN; 0,0 is a real position.
func located(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon)
}

// project rewrites every point of g in place. Bare points are handled by
// the caller since they are values.
func (b *Builder) project(g orb.Geometry) error {
	switch g := g.(type) {
	case orb.MultiPoint:
		return b.projectPoints(g)
	case orb.LineString:
		return b.projectPoints(g)
	case orb.Ring:
		return b.projectPoints(g)
	case orb.MultiLineString:
		for _, ls := range g {
			if err := b.projectPoints(ls); err != nil {
				return err
			}
		}
	case orb.Polygon:
		for _, r := range g {
			if err := b.projectPoints(r); err != nil {
				return err
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if err := b.project(p); err != nil {
				return err
			}
		}
	case orb.Collection:
		for i, c := range g {
			if p, ok := c.(orb.Point); ok {
				q, err := b.projectPoint(p)
				if err != nil {
					return err
				}
				g[i] = q
				continue
			}
			if err := b.project(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) projectPoints(pts []orb.Point) error {
	for i, p := range pts {
		q, err := b.projectPoint(p)
		if err != nil {
			return err
		}
		pts[i] = q
	}
	return nil
}

func (b *Builder) projectPoint(p orb.Point) (orb.Point, error) {
	c, err := b.proj.Project(p[0], p[1])
	if err != nil {
		return p, err
	}
	return orb.Point{c.X, c.Y}, nil
}
