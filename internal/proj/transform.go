// Package proj converts coordinates between the projections osmrel writes.
package proj

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CRS is a coordinate reference system identified by its EPSG code.
type CRS int

// SRID constants for common projections
const (
	WGS84       CRS = 4326 // lat/lon
	WebMercator CRS = 3857
)

func (c CRS) String() string {
	return "EPSG:" + strconv.Itoa(int(c))
}

// ParseCRS parses a projection string.
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857" and other EPSG codes,
// which need a General transformer that knows them.
func ParseCRS(s string) (CRS, error) {
	code := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "EPSG:")
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported projection: %s (want an EPSG code such as 4326 or 3857)", s)
	}
	if n == 900913 {
		return WebMercator, nil
	}
	return CRS(n), nil
}

// Coordinates is an x/y pair. For WGS84, X is longitude and Y latitude.
type Coordinates struct {
	X, Y float64
}

// ErrProjection is matched by every *ProjectionError.
var ErrProjection = errors.New("projection failed")

// ProjectionError reports a transform that could not be computed.
type ProjectionError struct {
	Src, Dst CRS
	Msg      string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection %s -> %s failed: %s", e.Src, e.Dst, e.Msg)
}

func (e *ProjectionError) Is(target error) bool {
	return target == ErrProjection
}

// General transforms between any pair of CRS it supports.
type General interface {
	Transform(src, dst CRS, c Coordinates) (Coordinates, error)
}

// Builtin is the General transformer used when none is configured. It only
// knows the inverse spherical Mercator.
type Builtin struct{}

func (Builtin) Transform(src, dst CRS, c Coordinates) (Coordinates, error) {
	if src == WebMercator && dst == WGS84 {
		if !finite(c) {
			return Coordinates{}, &ProjectionError{Src: src, Dst: dst, Msg: "non-finite input"}
		}
		lon, lat := webMercatorToLonLat(c.X, c.Y)
		return Coordinates{X: lon, Y: lat}, nil
	}
	return Coordinates{}, &ProjectionError{Src: src, Dst: dst, Msg: "no transformation available"}
}

// Transform converts c from src to dst. Identity and WGS84 to Web Mercator
// are computed directly; everything else goes through the Builtin
// transformer.
func Transform(src, dst CRS, c Coordinates) (Coordinates, error) {
	return transform(Builtin{}, src, dst, c)
}

func transform(g General, src, dst CRS, c Coordinates) (Coordinates, error) {
	if src == dst {
		return c, nil
	}
	if src == WGS84 && dst == WebMercator {
		if !finite(c) || math.Abs(c.X) > 180 || math.Abs(c.Y) > 90 {
			return Coordinates{}, &ProjectionError{Src: src, Dst: dst,
				Msg: fmt.Sprintf("location %g,%g out of range", c.Y, c.X)}
		}
		x, y := lonLatToWebMercator(c.X, c.Y)
		return Coordinates{X: x, Y: y}, nil
	}
	return g.Transform(src, dst, c)
}

// Projection maps WGS84 node locations into a target CRS.
type Projection struct {
	target  CRS
	general General
}

// NewProjection creates a projection into target. A nil general falls back
// to Builtin.
func NewProjection(target CRS, general General) *Projection {
	if general == nil {
		general = Builtin{}
	}
	return &Projection{target: target, general: general}
}

// Target returns the CRS coordinates are projected into.
func (p *Projection) Target() CRS {
	return p.target
}

// NeedsTransform returns true if transformation is required
func (p *Projection) NeedsTransform() bool {
	return p.target != WGS84
}

// Project converts a WGS84 location.
func (p *Projection) Project(lon, lat float64) (Coordinates, error) {
	return transform(p.general, WGS84, p.target, Coordinates{X: lon, Y: lat})
}

// ProjectCoords transforms a flat coordinate array in place
// coords format: [lon1, lat1, lon2, lat2, ...]
func (p *Projection) ProjectCoords(coords []float64) error {
	if !p.NeedsTransform() {
		return nil
	}
	for i := 0; i+1 < len(coords); i += 2 {
		c, err := p.Project(coords[i], coords[i+1])
		if err != nil {
			return err
		}
		coords[i], coords[i+1] = c.X, c.Y
	}
	return nil
}

func finite(c Coordinates) bool {
	return !math.IsNaN(c.X) && !math.IsNaN(c.Y) && !math.IsInf(c.X, 0) && !math.IsInf(c.Y, 0)
}

// Web Mercator constants
const (
	// Semi-major axis of WGS84 ellipsoid in meters
	earthRadius = 6378137.0
	// Maximum extent of Web Mercator
	maxExtent = 20037508.342789244
	// Latitude at which the projection is square
	maxLat = 85.0511287798066
)

// lonLatToWebMercator converts WGS84 (lon, lat) to Web Mercator (x, y)
func lonLatToWebMercator(lon, lat float64) (x, y float64) {
	// Clamp latitude to avoid infinity at poles
	if lat > maxLat {
		lat = maxLat
	} else if lat < -maxLat {
		lat = -maxLat
	}

	x = lon * maxExtent / 180.0

	// y = R * ln(tan(π/4 + φ/2))
	latRad := lat * math.Pi / 180.0
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * earthRadius

	return x, y
}

func webMercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x * 180.0 / maxExtent
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180.0 / math.Pi
	return lon, lat
}
