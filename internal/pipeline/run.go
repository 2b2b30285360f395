// Package pipeline runs the two passes of a relation assembly over an
// input file and wires the engine to its stores, filters and outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmrel-go/internal/assemble"
	"github.com/wegman-software/osmrel-go/internal/config"
	"github.com/wegman-software/osmrel-go/internal/filter"
	"github.com/wegman-software/osmrel-go/internal/geom"
	"github.com/wegman-software/osmrel-go/internal/handler"
	"github.com/wegman-software/osmrel-go/internal/metrics"
	"github.com/wegman-software/osmrel-go/internal/nodeindex"
	"github.com/wegman-software/osmrel-go/internal/output"
	"github.com/wegman-software/osmrel-go/internal/parquet"
	"github.com/wegman-software/osmrel-go/internal/proj"
	"github.com/wegman-software/osmrel-go/internal/source"
	"github.com/wegman-software/osmrel-go/internal/store"
)

// Output file names inside Config.OutputDir
const (
	RelationsFile  = "relations.parquet"
	IncompleteFile = "incomplete.yaml"
	arenaFile      = "relations.arena"
	locationsFile  = "locations.idx"
)

// Runner assembles the relations of one input file
type Runner struct {
	cfg *config.Config
	log *zap.Logger

	src       *source.Source
	arena     store.Arena
	locations nodeindex.Index
	lua       *filter.LuaFilter
	sink      *output.Sink
	engine    *assemble.Engine
	policy    assemble.IncompletePolicy
	progress  *progressReporter
	closers   []func() error
}

// NewRunner opens the input and every store and writer the run needs.
// Close releases them.
func NewRunner(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, log: log}
	if err := r.open(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) open(ctx context.Context) error {
	cfg := r.cfg

	src, err := source.Open(cfg.InputFile, cfg.Workers)
	if err != nil {
		return err
	}
	r.src = src

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	policy, err := assemble.ParseIncompletePolicy(cfg.Incomplete)
	if err != nil {
		return err
	}
	r.policy = policy

	acfg := assemble.Config{Incomplete: policy}
	if cfg.SkipDuplicates {
		acfg.Duplicates = assemble.DuplicateSkip
	}

	var sources []filter.Source
	if cfg.FilterFile != "" {
		rules, err := filter.LoadRules(cfg.FilterFile)
		if err != nil {
			return err
		}
		sources = append(sources, rules)
	}
	if cfg.LuaFile != "" {
		r.lua = filter.NewLuaFilter(r.log)
		r.closers = append(r.closers, func() error { r.lua.Close(); return nil })
		if err := r.lua.LoadFile(cfg.LuaFile); err != nil {
			return err
		}
		sources = append(sources, r.lua)
	}
	acfg.Interest = filter.Interest(sources...)
	acfg.MemberRelevant = filter.MemberRelevant(sources...)

	switch cfg.Store {
	case config.StoreMmap:
		a, err := store.NewMmapArena(filepath.Join(cfg.OutputDir, arenaFile), 0, cfg.KeepTemp)
		if err != nil {
			return err
		}
		r.arena = a
	default:
		r.arena = store.NewMemoryArena(0)
	}
	r.closers = append(r.closers, r.arena.Close)

	switch cfg.Locations {
	case config.LocationsMemory:
		r.locations = nodeindex.NewMemoryIndex()
	case config.LocationsMmap:
		idx, err := nodeindex.NewMmapIndex(filepath.Join(cfg.OutputDir, locationsFile), cfg.MaxNodeID, cfg.KeepTemp)
		if err != nil {
			return err
		}
		r.locations = idx
	}
	if r.locations != nil {
		r.closers = append(r.closers, r.locations.Close)
		acfg.Locations = r.locations
	}

	builder := geom.NewBuilder(proj.NewProjection(proj.CRS(cfg.Projection), nil), cfg.BBox)

	pw, err := parquet.NewRelationWriter(filepath.Join(cfg.OutputDir, RelationsFile), cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to create relation writer: %w", err)
	}
	writers := []output.Writer{pw}
	if cfg.UseDB {
		dbw, err := output.NewPostgresWriter(ctx, cfg, builder.SRID(), r.log)
		if err != nil {
			pw.Close()
			return err
		}
		writers = append(writers, dbw)
	}
	r.sink = output.NewSink(output.NewConverter(builder), r.log, writers...)
	r.closers = append(r.closers, r.sink.Close)

	r.engine = assemble.New(acfg, r.arena, r.sink, r.log)
	r.progress = &progressReporter{interval: cfg.ProgressInterval, bytes: src.BytesRead, log: r.log}
	return nil
}

// Close releases stores and writers in reverse order of opening.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Run executes both passes. The metrics collector and the progress
// reporter run alongside and stop when the passes end.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)
	bgctx, stopBackground := context.WithCancel(gctx)

	if r.cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(r.cfg.MetricsInterval, r.log)
		collector.AddProbe(func() []zap.Field {
			return []zap.Field{zap.String("input_read", FormatBytes(r.src.BytesRead()))}
		})
		g.Go(func() error { return collector.Start(bgctx) })
		r.log.Info("System metrics collection started",
			zap.Duration("interval", r.cfg.MetricsInterval))
	}
	g.Go(func() error { return r.progress.run(bgctx) })

	g.Go(func() error {
		defer stopBackground()
		return r.passes(gctx, stats)
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

func (r *Runner) passes(ctx context.Context, stats *Stats) error {
	cfg := r.cfg

	r.log.Info("Pass 1: collecting relations", zap.String("input", cfg.InputFile))
	counter := handler.NewCounter()
	p := r.progress.begin("relations", r.src.Size())
	ps, err := r.pass(ctx, source.Kinds{Relations: true}, counter, &p.objects, r.engine.RelationsPass())
	if err != nil {
		return fmt.Errorf("pass 1: %w", err)
	}
	ps.Counts = counter.Counts()
	stats.Relations = ps
	r.log.Info("Pass 1 complete",
		zap.Int64("relations", ps.Counts.Relations),
		zap.Int("tracked", r.engine.Pending()),
		zap.Duration("duration", ps.Duration.Round(time.Millisecond)))

	r.log.Info("Pass 2: resolving members")
	counter = handler.NewCounter()
	p = r.progress.begin("members", r.src.Size())
	handlers := []handler.Handler{counter, &p.objects}
	var recorder *nodeindex.Recorder
	if r.locations != nil {
		recorder = nodeindex.NewRecorder(r.locations)
		handlers = append(handlers, recorder)
	}
	handlers = append(handlers, r.engine.MembersPass())
	ps, err = r.pass(ctx, source.Kinds{Nodes: true, Ways: true, Relations: true}, handlers...)
	if err != nil {
		return fmt.Errorf("pass 2: %w", err)
	}
	ps.Counts = counter.Counts()
	stats.Members = ps
	if recorder != nil {
		stats.Locations = recorder.Count()
	}

	incomplete := r.engine.Incomplete()
	stats.Incomplete = len(incomplete)
	finishErr := r.engine.Finish(ctx)

	if err := output.WriteReport(filepath.Join(cfg.OutputDir, IncompleteFile), output.NewReport(r.policy, incomplete)); err != nil {
		return err
	}

	stats.Assembly = r.engine.Stats()
	stats.Output = r.sink.Stats()
	stats.StoreBytes = r.arena.Size()

	if r.lua != nil {
		if err := r.lua.Err(); err != nil {
			r.log.Warn("Lua filter errors treated as false", zap.Error(err))
		}
	}

	if finishErr != nil {
		return finishErr
	}

	r.log.Info("Assembly complete",
		zap.Int64("emitted", stats.Assembly.Emitted),
		zap.Int64("partial", stats.Assembly.Partial),
		zap.Int("incomplete", stats.Incomplete),
		zap.String("store", FormatBytes(stats.StoreBytes)))
	return nil
}

// pass runs handlers over one scan of the input. Handlers see shared
// objects; none of them mutates what it receives.
func (r *Runner) pass(ctx context.Context, kinds source.Kinds, handlers ...handler.Handler) (PassStats, error) {
	start := time.Now()
	sc, err := r.src.Scanner(ctx, kinds)
	if err != nil {
		return PassStats{}, err
	}
	defer sc.Close()

	d := handler.New(handlers...)
	d.ShareObjects = true
	if err := d.Apply(ctx, sc); err != nil {
		return PassStats{}, err
	}
	return PassStats{BytesRead: r.src.BytesRead(), Duration: time.Since(start)}, nil
}

// Run is a convenience wrapper opening a Runner, running it and closing it.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stats, error) {
	r, err := NewRunner(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	stats, err := r.Run(ctx)
	if cerr := r.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return stats, err
}
