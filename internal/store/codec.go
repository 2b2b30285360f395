package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/osm"
)

// Coordinates are stored as scaled integers (degrees × 10^7), the precision
// OSM itself uses.
const coordScale = 1e7

func scale(c float64) int64 {
	return int64(math.Round(c * coordScale))
}

func unscale(v int64) float64 {
	return float64(v) / coordScale
}

// builder accumulates a record payload and frames it with a header.
type builder struct {
	buf []byte
}

func (b *builder) uvarint(v uint64) { b.buf = binary.AppendUvarint(b.buf, v) }
func (b *builder) varint(v int64)   { b.buf = binary.AppendVarint(b.buf, v) }

func (b *builder) string(s string) {
	b.uvarint(uint64(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *builder) tags(tags osm.Tags) {
	b.uvarint(uint64(len(tags)))
	for _, t := range tags {
		b.string(t.Key)
		b.string(t.Value)
	}
}

// frame returns kind, payload length and payload as one record.
func (b *builder) frame(k Kind) []byte {
	rec := make([]byte, 0, 1+binary.MaxVarintLen64+len(b.buf))
	rec = append(rec, byte(k))
	rec = binary.AppendUvarint(rec, uint64(len(b.buf)))
	return append(rec, b.buf...)
}

// EncodeNode serializes id, version, location and tags of n.
func EncodeNode(n *osm.Node) []byte {
	var b builder
	b.varint(int64(n.ID))
	b.uvarint(uint64(n.Version))
	b.varint(scale(n.Lat))
	b.varint(scale(n.Lon))
	b.tags(n.Tags)
	return b.frame(KindNode)
}

// Way node location modes.
const (
	wayUnlocated = iota
	wayLocated
	wayMixed
)

// Unlocated reports whether lat, lon mark an unknown location. Way nodes
// and node members without a known position carry NaN coordinates.
func Unlocated(lat, lon float64) bool {
	return math.IsNaN(lat) || math.IsNaN(lon)
}

// EncodeWay serializes id, version, node refs and tags of w. Node
// locations are kept for every node that is not Unlocated.
func EncodeWay(w *osm.Way) []byte {
	var b builder
	b.varint(int64(w.ID))
	b.uvarint(uint64(w.Version))

	known := 0
	for _, wn := range w.Nodes {
		if !Unlocated(wn.Lat, wn.Lon) {
			known++
		}
	}
	mode := wayMixed
	switch known {
	case len(w.Nodes):
		mode = wayLocated
	case 0:
		mode = wayUnlocated
	}

	b.uvarint(uint64(len(w.Nodes)))
	b.uvarint(uint64(mode))

	var prevID, prevLat, prevLon int64
	for _, wn := range w.Nodes {
		b.varint(int64(wn.ID) - prevID)
		prevID = int64(wn.ID)

		has := !Unlocated(wn.Lat, wn.Lon)
		if mode == wayMixed {
			if has {
				b.uvarint(1)
			} else {
				b.uvarint(0)
			}
		}
		if has && mode != wayUnlocated {
			lat, lon := scale(wn.Lat), scale(wn.Lon)
			b.varint(lat - prevLat)
			b.varint(lon - prevLon)
			prevLat, prevLon = lat, lon
		}
	}

	b.tags(w.Tags)
	return b.frame(KindWay)
}

// EncodeRelation serializes id, version, members and tags of r. Member
// geometry (lat/lon, way nodes) is not stored.
func EncodeRelation(r *osm.Relation) []byte {
	var b builder
	b.varint(int64(r.ID))
	b.uvarint(uint64(r.Version))

	b.uvarint(uint64(len(r.Members)))
	for _, m := range r.Members {
		b.buf = append(b.buf, memberCode(m.Type))
		b.varint(m.Ref)
		b.string(m.Role)
	}

	b.tags(r.Tags)
	return b.frame(KindRelation)
}

// Encode serializes any node, way or relation.
func Encode(obj osm.Object) ([]byte, error) {
	switch o := obj.(type) {
	case *osm.Node:
		return EncodeNode(o), nil
	case *osm.Way:
		return EncodeWay(o), nil
	case *osm.Relation:
		return EncodeRelation(o), nil
	default:
		return nil, fmt.Errorf("cannot store %T", obj)
	}
}

func memberCode(t osm.Type) byte {
	switch t {
	case osm.TypeNode:
		return 'n'
	case osm.TypeWay:
		return 'w'
	case osm.TypeRelation:
		return 'r'
	default:
		return '?'
	}
}

func memberType(c byte) (osm.Type, error) {
	switch c {
	case 'n':
		return osm.TypeNode, nil
	case 'w':
		return osm.TypeWay, nil
	case 'r':
		return osm.TypeRelation, nil
	default:
		return "", fmt.Errorf("%w: member type %q", ErrMalformed, c)
	}
}

// reader decodes a payload. The first error sticks.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		r.err = ErrMalformed
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.data[r.pos:])
	if n <= 0 {
		r.err = ErrMalformed
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.data) {
		r.err = ErrMalformed
		return 0
	}
	c := r.data[r.pos]
	r.pos++
	return c
}

func (r *reader) string() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if uint64(len(r.data)-r.pos) < n {
		r.err = ErrMalformed
		return ""
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

// count reads a length prefix and rejects values that cannot fit in the
// remaining payload.
func (r *reader) count() int {
	n := r.uvarint()
	if r.err == nil && n > uint64(len(r.data)-r.pos) {
		r.err = ErrMalformed
		return 0
	}
	return int(n)
}

func (r *reader) tags() osm.Tags {
	n := r.count()
	if n == 0 {
		return nil
	}
	tags := make(osm.Tags, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		k := r.string()
		v := r.string()
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	return tags
}

func (rec Record) expect(k Kind) error {
	if rec.Kind != k {
		return fmt.Errorf("record is a %s, not a %s", rec.Kind, k)
	}
	return nil
}

// Node decodes a node record.
func (rec Record) Node() (*osm.Node, error) {
	if err := rec.expect(KindNode); err != nil {
		return nil, err
	}
	r := &reader{data: rec.Payload}
	n := &osm.Node{
		ID:      osm.NodeID(r.varint()),
		Version: int(r.uvarint()),
		Lat:     unscale(r.varint()),
		Lon:     unscale(r.varint()),
	}
	n.Tags = r.tags()
	if r.err != nil {
		return nil, fmt.Errorf("node record: %w", r.err)
	}
	return n, nil
}

// Way decodes a way record.
func (rec Record) Way() (*osm.Way, error) {
	if err := rec.expect(KindWay); err != nil {
		return nil, err
	}
	r := &reader{data: rec.Payload}
	w := &osm.Way{
		ID:      osm.WayID(r.varint()),
		Version: int(r.uvarint()),
	}

	n := r.count()
	mode := r.uvarint()
	if r.err == nil && mode > wayMixed {
		r.err = ErrMalformed
	}
	if n > 0 {
		w.Nodes = make(osm.WayNodes, n)
	}

	var id, lat, lon int64
	for i := 0; i < n && r.err == nil; i++ {
		id += r.varint()
		w.Nodes[i].ID = osm.NodeID(id)

		has := mode == wayLocated
		if mode == wayMixed {
			has = r.uvarint() == 1
		}
		if !has {
			w.Nodes[i].Lat, w.Nodes[i].Lon = math.NaN(), math.NaN()
			continue
		}
		lat += r.varint()
		lon += r.varint()
		w.Nodes[i].Lat = unscale(lat)
		w.Nodes[i].Lon = unscale(lon)
	}

	w.Tags = r.tags()
	if r.err != nil {
		return nil, fmt.Errorf("way record: %w", r.err)
	}
	return w, nil
}

// Relation decodes a relation record.
func (rec Record) Relation() (*osm.Relation, error) {
	if err := rec.expect(KindRelation); err != nil {
		return nil, err
	}
	r := &reader{data: rec.Payload}
	rel := &osm.Relation{
		ID:      osm.RelationID(r.varint()),
		Version: int(r.uvarint()),
	}

	n := r.count()
	if n > 0 {
		rel.Members = make(osm.Members, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		t, err := memberType(r.byte())
		if err != nil && r.err == nil {
			r.err = err
		}
		rel.Members[i] = osm.Member{
			Type: t,
			Ref:  r.varint(),
			Role: r.string(),
		}
	}

	rel.Tags = r.tags()
	if r.err != nil {
		return nil, fmt.Errorf("relation record: %w", r.err)
	}
	return rel, nil
}

// Object decodes the record into the matching osm type.
func (rec Record) Object() (osm.Object, error) {
	switch rec.Kind {
	case KindNode:
		return rec.Node()
	case KindWay:
		return rec.Way()
	case KindRelation:
		return rec.Relation()
	default:
		return nil, fmt.Errorf("%w: %s", ErrMalformed, rec.Kind)
	}
}
