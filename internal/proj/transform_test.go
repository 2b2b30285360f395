package proj

import (
	"errors"
	"math"
	"testing"
)

func near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestTransformFastPaths(t *testing.T) {
	tests := []struct {
		name     string
		src, dst CRS
		in, want Coordinates
	}{
		{"identity", WGS84, WGS84, Coordinates{13.4, 52.5}, Coordinates{13.4, 52.5}},
		{"mercator origin", WGS84, WebMercator, Coordinates{0, 0}, Coordinates{0, 0}},
		{"mercator east edge", WGS84, WebMercator, Coordinates{180, 0}, Coordinates{maxExtent, 0}},
		{"mercator max lat", WGS84, WebMercator, Coordinates{0, maxLat}, Coordinates{0, maxExtent}},
		{"mercator clamps poles", WGS84, WebMercator, Coordinates{0, 90}, Coordinates{0, maxExtent}},
		{"inverse mercator", WebMercator, WGS84, Coordinates{maxExtent, 0}, Coordinates{180, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transform(tt.src, tt.dst, tt.in)
			if err != nil {
				t.Fatalf("Transform() error: %v", err)
			}
			if !near(got.X, tt.want.X, 1e-4) || !near(got.Y, tt.want.Y, 1e-4) {
				t.Errorf("Transform() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransformRoundTrip(t *testing.T) {
	in := Coordinates{X: 13.404954, Y: 52.5200066}
	m, err := Transform(WGS84, WebMercator, in)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Transform(WebMercator, WGS84, m)
	if err != nil {
		t.Fatal(err)
	}
	if !near(back.X, in.X, 1e-9) || !near(back.Y, in.Y, 1e-9) {
		t.Errorf("round trip = %v, want %v", back, in)
	}
}

func TestTransformErrors(t *testing.T) {
	tests := []struct {
		name     string
		src, dst CRS
		in       Coordinates
	}{
		{"unsupported pair", WGS84, CRS(25832), Coordinates{10, 50}},
		{"latitude out of range", WGS84, WebMercator, Coordinates{0, 91}},
		{"nan", WGS84, WebMercator, Coordinates{math.NaN(), 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.src, tt.dst, tt.in)
			if !errors.Is(err, ErrProjection) {
				t.Fatalf("Transform() = %v, want ErrProjection", err)
			}
			var pe *ProjectionError
			if !errors.As(err, &pe) || pe.Src != tt.src || pe.Dst != tt.dst {
				t.Errorf("Transform() error = %#v, want *ProjectionError for %s -> %s", err, tt.src, tt.dst)
			}
		})
	}
}

type shiftGeneral struct{}

func (shiftGeneral) Transform(src, dst CRS, c Coordinates) (Coordinates, error) {
	return Coordinates{X: c.X + 1, Y: c.Y + 1}, nil
}

func TestProjectionGeneral(t *testing.T) {
	p := NewProjection(CRS(25832), shiftGeneral{})
	coords := []float64{1, 2, 3, 4}
	if err := p.ProjectCoords(coords); err != nil {
		t.Fatalf("ProjectCoords: %v", err)
	}
	want := []float64{2, 3, 4, 5}
	for i := range want {
		if coords[i] != want[i] {
			t.Errorf("coords = %v, want %v", coords, want)
			break
		}
	}

	// Fast paths never reach the general transformer.
	m := NewProjection(WebMercator, shiftGeneral{})
	got, err := m.Project(0, 0)
	if err != nil || got != (Coordinates{}) {
		t.Errorf("Project(0, 0) = %v, %v, want origin", got, err)
	}
}

func TestParseCRS(t *testing.T) {
	tests := []struct {
		in      string
		want    CRS
		wantErr bool
	}{
		{"4326", WGS84, false},
		{"EPSG:3857", WebMercator, false},
		{"epsg:3857", WebMercator, false},
		{"900913", WebMercator, false},
		{"25832", CRS(25832), false},
		{"mercator", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCRS(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCRS(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCRS(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
