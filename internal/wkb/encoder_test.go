package wkb

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestEncodePoint(t *testing.T) {
	e := NewEncoder(64, 4326)
	b, err := e.Encode(orb.Point{7.4246, 43.7384})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(b) != 25 {
		t.Fatalf("len = %d, want 25", len(b))
	}
	if b[0] != 0x01 {
		t.Errorf("byte order = %x, want 01", b[0])
	}
	if typ := binary.LittleEndian.Uint32(b[1:]); typ != wkbPoint|wkbSRIDFlag {
		t.Errorf("type = %x, want %x", typ, wkbPoint|wkbSRIDFlag)
	}
	if srid := binary.LittleEndian.Uint32(b[5:]); srid != 4326 {
		t.Errorf("srid = %d, want 4326", srid)
	}
	if x := math.Float64frombits(binary.LittleEndian.Uint64(b[9:])); x != 7.4246 {
		t.Errorf("x = %v, want 7.4246", x)
	}
	if y := math.Float64frombits(binary.LittleEndian.Uint64(b[17:])); y != 43.7384 {
		t.Errorf("y = %v, want 43.7384", y)
	}
}

func TestEncodeSizes(t *testing.T) {
	square := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	hole := orb.Ring{{0.2, 0.2}, {0.2, 0.4}, {0.4, 0.4}, {0.2, 0.2}}

	tests := []struct {
		name string
		geom orb.Geometry
		typ  uint32
		size int
	}{
		// header 9, count 4, points 16 each
		{"linestring", orb.LineString{{0, 0}, {1, 1}}, wkbLineString, 9 + 4 + 2*16},
		// header 9, ring count 4, each ring: count 4 + points
		{"polygon", orb.Polygon{square, hole}, wkbPolygon, 9 + 4 + (4 + 5*16) + (4 + 4*16)},
		// header 9, count 4, each point: 5 + 16
		{"multipoint", orb.MultiPoint{{0, 0}, {1, 1}}, wkbMultiPoint, 9 + 4 + 2*21},
		{"multilinestring", orb.MultiLineString{{{0, 0}, {1, 1}}}, wkbMultiLineString, 9 + 4 + (5 + 4 + 2*16)},
		{"multipolygon", orb.MultiPolygon{{square}}, wkbMultiPolygon, 9 + 4 + (5 + 4 + 4 + 5*16)},
		{"collection", orb.Collection{orb.Point{1, 2}}, wkbGeometryCollection, 9 + 4 + 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEncoder(0, 3857)
			b, err := e.Encode(tt.geom)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(b) != tt.size {
				t.Errorf("len = %d, want %d", len(b), tt.size)
			}
			if typ := binary.LittleEndian.Uint32(b[1:]); typ != tt.typ|wkbSRIDFlag {
				t.Errorf("type = %x, want %x", typ, tt.typ|wkbSRIDFlag)
			}
			if srid := binary.LittleEndian.Uint32(b[5:]); srid != 3857 {
				t.Errorf("srid = %d, want 3857", srid)
			}
		})
	}
}

func TestEncodeEmbeddedHasNoSRID(t *testing.T) {
	e := NewEncoder(0, 4326)
	b, err := e.Encode(orb.MultiPoint{{1, 2}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// header 9 + count 4, then the embedded point header
	if typ := binary.LittleEndian.Uint32(b[14:]); typ != wkbPoint {
		t.Errorf("embedded type = %x, want %x", typ, wkbPoint)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	e := NewEncoder(0, 4326)
	if _, err := e.Encode(orb.Bound{}); err == nil {
		t.Error("Encode(Bound) succeeded, want error")
	}
}
