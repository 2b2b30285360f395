package pipeline

import (
	"time"

	"github.com/wegman-software/osmrel-go/internal/assemble"
	"github.com/wegman-software/osmrel-go/internal/handler"
	"github.com/wegman-software/osmrel-go/internal/output"
)

// PassStats describes one pass over the input.
type PassStats struct {
	Counts    handler.Counts
	BytesRead int64
	Duration  time.Duration
}

// Stats holds the results of an assembly run
type Stats struct {
	Relations PassStats // pass 1
	Members   PassStats // pass 2

	Assembly   assemble.Stats
	Output     output.SinkStats
	Locations  int64 // node locations recorded
	Incomplete int   // relations still missing members at the end
	StoreBytes int64
	Duration   time.Duration
}
