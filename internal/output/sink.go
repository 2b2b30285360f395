package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/osm"
	"github.com/wegman-software/osmrel-go/internal/geom"
	"github.com/wegman-software/osmrel-go/internal/handler"
	"go.uber.org/zap"
)

// Writer receives rows. Close flushes anything buffered.
type Writer interface {
	Write(Row) error
	Close() error
}

// SinkStats counts what a Sink did with the relations it received.
type SinkStats struct {
	Written    int64
	NoGeometry int64
	Outside    int64
}

// Sink is the downstream handler of the assembly engine. Each completed
// relation is converted once and handed to every writer.
type Sink struct {
	handler.Base
	conv    *Converter
	writers []Writer
	log     *zap.Logger
	stats   SinkStats
}

// NewSink creates a sink writing to writers.
func NewSink(conv *Converter, log *zap.Logger, writers ...Writer) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{conv: conv, writers: writers, log: log}
}

func (s *Sink) Relation(_ context.Context, r *osm.Relation) error {
	row, err := s.conv.Convert(r)
	if errors.Is(err, geom.ErrOutside) {
		s.stats.Outside++
		return nil
	}
	if err != nil {
		return err
	}
	if row.Geometry == nil {
		s.stats.NoGeometry++
	}

	for _, w := range s.writers {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write relation %d: %w", r.ID, err)
		}
	}
	s.stats.Written++
	return nil
}

func (s *Sink) Done(context.Context) error {
	s.log.Info("Relations written",
		zap.Int64("written", s.stats.Written),
		zap.Int64("without_geometry", s.stats.NoGeometry),
		zap.Int64("outside_bbox", s.stats.Outside))
	return nil
}

// Stats returns the counts so far.
func (s *Sink) Stats() SinkStats {
	return s.stats
}

// Close closes every writer and reports all failures.
func (s *Sink) Close() error {
	var errs []error
	for _, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
