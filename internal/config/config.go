package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	// Validate
	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Store backends for the relation and member records
const (
	StoreMemory = "memory"
	StoreMmap   = "mmap"
)

// Location index backends. LocationsNone keeps whatever coordinates the
// input already carries on way nodes.
const (
	LocationsMemory = "memory"
	LocationsMmap   = "mmap"
	LocationsNone   = "none"
)

// Config holds the global configuration for an assembly run
type Config struct {
	// Input settings
	InputFile string
	BBox      *BBox // Geographic bounding box filter

	// Output settings
	OutputDir  string
	Projection int // Target SRID (4326 or 3857)

	// Relation selection
	FilterFile string // YAML rules
	LuaFile    string // Lua predicates, combined with FilterFile

	// Assembly settings
	Store          string // memory or mmap
	Locations      string // memory, mmap or none
	MaxNodeID      int64  // Sizing for the mmap location index
	Incomplete     string // drop, emit or fail
	SkipDuplicates bool
	KeepTemp       bool // Keep mmap backing files after the run

	// Database settings
	UseDB        bool
	DBHost       string
	DBPort       int
	DBName       string
	DBUser       string
	DBPassword   string
	DBSchema     string
	DBTable      string
	DropExisting bool

	// Processing settings
	Workers   int
	BatchSize int

	// Logging and metrics
	Verbose          bool
	LogFile          string        // Path to log file (empty = no file logging)
	MetricsInterval  time.Duration // Interval for system metrics logging
	ProgressInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BBox:             &BBox{},
		OutputDir:        "./osm_data",
		Projection:       4326, // WGS84 by default
		Store:            StoreMemory,
		Locations:        LocationsMemory,
		MaxNodeID:        10_000_000_000,
		Incomplete:       "drop",
		DBHost:           "localhost",
		DBPort:           5432,
		DBName:           "osm",
		DBUser:           "postgres",
		DBSchema:         "public",
		DBTable:          "osm_relations",
		Workers:          runtime.NumCPU(),
		BatchSize:        10000,
		MetricsInterval:  30 * time.Second, // Log system metrics every 30 seconds
		ProgressInterval: 10 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.Projection != 4326 && c.Projection != 3857 {
		return fmt.Errorf("unsupported projection %d (use 4326 or 3857)", c.Projection)
	}
	switch c.Store {
	case StoreMemory, StoreMmap:
	default:
		return fmt.Errorf("unknown store %q (use memory or mmap)", c.Store)
	}
	switch c.Locations {
	case LocationsMemory, LocationsNone:
	case LocationsMmap:
		if c.MaxNodeID < 1 {
			return fmt.Errorf("max node id must be positive for the mmap location index")
		}
	default:
		return fmt.Errorf("unknown location index %q (use memory, mmap or none)", c.Locations)
	}
	switch c.Incomplete {
	case "drop", "emit", "fail":
	default:
		return fmt.Errorf("unknown incomplete policy %q (use drop, emit or fail)", c.Incomplete)
	}
	if c.UseDB && c.DBTable == "" {
		return fmt.Errorf("database table name is required")
	}
	return nil
}
