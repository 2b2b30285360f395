package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
)

// Areas assembles the way members of a multipolygon or boundary relation
// into polygons. Members with role "inner" form holes; "outer" and empty
// roles form shells. Open rings are dropped, as are holes that fall
// outside every shell.
func Areas(r *osm.Relation) orb.MultiPolygon {
	var outer, inner []osm.WayNodes
	for _, m := range r.Members {
		if m.Type != osm.TypeWay || len(m.Nodes) < 2 {
			continue
		}
		switch m.Role {
		case "inner":
			inner = append(inner, m.Nodes)
		case "outer", "":
			outer = append(outer, m.Nodes)
		}
	}

	shells := closeRings(outer)
	if len(shells) == 0 {
		return nil
	}
	holes := closeRings(inner)

	// Largest first so each hole lands in the smallest shell containing it.
	areas := make([]float64, len(shells))
	for i, s := range shells {
		areas[i] = math.Abs(planar.Area(s))
	}
	order := make([]int, len(shells))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return areas[order[a]] > areas[order[b]] })

	mp := make(orb.MultiPolygon, len(shells))
	for i, idx := range order {
		s := shells[idx]
		if s.Orientation() != orb.CCW {
			s.Reverse()
		}
		mp[i] = orb.Polygon{s}
	}

	for _, h := range holes {
		owner := -1
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				owner = i
			}
		}
		if owner < 0 {
			continue
		}
		if h.Orientation() != orb.CW {
			h.Reverse()
		}
		mp[owner] = append(mp[owner], h)
	}
	return mp
}

// closeRings joins way segments end to end into closed rings, reversing
// segments where needed. Segments are matched by node id. A way with an
// unlocated node is ignored.
func closeRings(ways []osm.WayNodes) []orb.Ring {
	segs := make([]osm.WayNodes, 0, len(ways))
	for _, w := range ways {
		if _, ok := lineOf(w); ok {
			segs = append(segs, w)
		}
	}

	var rings []orb.Ring
	used := make([]bool, len(segs))
	for start := range segs {
		if used[start] {
			continue
		}
		used[start] = true
		ring := append(osm.WayNodes(nil), segs[start]...)

		for !closed(ring) {
			end := ring[len(ring)-1].ID
			found := false
			for i, s := range segs {
				if used[i] {
					continue
				}
				if s[0].ID == end {
					ring = append(ring, s[1:]...)
				} else if s[len(s)-1].ID == end {
					for j := len(s) - 2; j >= 0; j-- {
						ring = append(ring, s[j])
					}
				} else {
					continue
				}
				used[i] = true
				found = true
				break
			}
			if !found {
				break
			}
		}

		if closed(ring) && len(ring) >= 4 {
			r, _ := lineOf(ring)
			rings = append(rings, orb.Ring(r))
		}
	}
	return rings
}

func closed(ring osm.WayNodes) bool {
	return len(ring) >= 2 && ring[0].ID == ring[len(ring)-1].ID
}
