package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/wegman-software/osmrel-go/internal/handler"
	"github.com/wegman-software/osmrel-go/internal/source"
)

// phaseLogger logs every phase transition.
type phaseLogger struct {
	handler.Base
	log *zap.Logger
}

func (p *phaseLogger) phase(name string) error {
	p.log.Info("Phase", zap.String("hook", name))
	return nil
}

func (p *phaseLogger) Init(context.Context) error             { return p.phase("init") }
func (p *phaseLogger) BeforeNodes(context.Context) error      { return p.phase("before_nodes") }
func (p *phaseLogger) AfterNodes(context.Context) error       { return p.phase("after_nodes") }
func (p *phaseLogger) BeforeWays(context.Context) error       { return p.phase("before_ways") }
func (p *phaseLogger) AfterWays(context.Context) error        { return p.phase("after_ways") }
func (p *phaseLogger) BeforeRelations(context.Context) error  { return p.phase("before_relations") }
func (p *phaseLogger) AfterRelations(context.Context) error   { return p.phase("after_relations") }
func (p *phaseLogger) BeforeChangesets(context.Context) error { return p.phase("before_changesets") }
func (p *phaseLogger) AfterChangesets(context.Context) error  { return p.phase("after_changesets") }
func (p *phaseLogger) Done(context.Context) error             { return p.phase("done") }

// Phases dispatches every object of the input through a counter and logs
// the phase transitions. More phases than object types means the input is
// not grouped by type.
func Phases(ctx context.Context, path string, workers int, log *zap.Logger) (handler.Counts, error) {
	src, err := source.Open(path, workers)
	if err != nil {
		return handler.Counts{}, err
	}
	sc, err := src.Scanner(ctx, source.All)
	if err != nil {
		return handler.Counts{}, err
	}
	defer sc.Close()

	counter := handler.NewCounter()
	if err := handler.Apply(ctx, sc, &phaseLogger{log: log}, counter); err != nil {
		return counter.Counts(), err
	}

	c := counter.Counts()
	log.Info("Dispatch complete",
		zap.Int64("nodes", c.Nodes),
		zap.Int64("ways", c.Ways),
		zap.Int64("relations", c.Relations),
		zap.Int64("changesets", c.Changesets),
		zap.Int("phases", c.Phases))
	return c, nil
}
