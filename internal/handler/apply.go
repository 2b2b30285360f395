package handler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/osm"
)

// typeNone marks the position before the first and after the last object.
const typeNone osm.Type = ""

var (
	// ErrUnknownType is returned when the scanner yields an object that is
	// not a node, way, relation or changeset. It aborts the stream at once.
	ErrUnknownType = errors.New("unknown object type")

	// ErrStop can be returned (or wrapped) by any hook to stop pulling
	// objects. The closing After hook and Done still fire and Apply
	// returns nil.
	ErrStop = errors.New("stop requested")
)

// Dispatcher fans a stream of objects out to a fixed list of handlers.
type Dispatcher struct {
	handlers []Handler

	// ShareObjects passes the same object to every handler. By default each
	// handler after the first gets its own copy so mutations made by one
	// handler are never seen by another.
	ShareObjects bool
}

// New creates a dispatcher calling handlers in the given order.
func New(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Apply runs every handler over the scanner once. See Dispatcher.Apply.
func Apply(ctx context.Context, s osm.Scanner, handlers ...Handler) error {
	return New(handlers...).Apply(ctx, s)
}

// Apply consumes s front to back. It does not close the scanner.
//
// When ctx is cancelled the loop stops, the closing hooks fire with a
// context that is no longer cancelled, and ctx.Err() is returned.
func (d *Dispatcher) Apply(ctx context.Context, s osm.Scanner) error {
	last := typeNone

	for s.Scan() {
		if err := ctx.Err(); err != nil {
			if cerr := d.close(ctx, last); cerr != nil {
				return cerr
			}
			return err
		}

		obj := s.Object()
		cur, err := typeOf(obj)
		if err != nil {
			return err
		}

		stop := false
		if cur != last {
			stop, err = d.transition(ctx, last, cur)
			if err != nil {
				return err
			}
			last = cur
		}

		if !stop {
			stop, err = d.dispatch(ctx, obj)
			if err != nil {
				return err
			}
		}

		if stop {
			return d.close(ctx, last)
		}
	}

	// Scanners that watch ctx themselves end the loop with ctx.Err().
	if err := ctx.Err(); err != nil {
		if cerr := d.close(ctx, last); cerr != nil {
			return cerr
		}
		return err
	}

	if err := s.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read objects: %w", err)
	}

	return d.close(ctx, last)
}

// close fires the transition into "no type": After for the last type, then Done.
func (d *Dispatcher) close(ctx context.Context, last osm.Type) error {
	_, err := d.transition(context.WithoutCancel(ctx), last, typeNone)
	return err
}

// transition fires the leave hook of from and the enter hook of to on every
// handler, handler by handler.
func (d *Dispatcher) transition(ctx context.Context, from, to osm.Type) (bool, error) {
	stop := false
	for i, h := range d.handlers {
		hook, err := leave(ctx, h, from)
		if s, err := check(i, hook, err); err != nil {
			return false, err
		} else if s {
			stop = true
		}

		hook, err = enter(ctx, h, to)
		if s, err := check(i, hook, err); err != nil {
			return false, err
		} else if s {
			stop = true
		}
	}
	return stop, nil
}

// dispatch hands obj to every handler. A stop request from one handler
// still lets the remaining handlers see the object.
func (d *Dispatcher) dispatch(ctx context.Context, obj osm.Object) (bool, error) {
	objs := d.fanout(obj)

	stop := false
	for i, h := range d.handlers {
		hook, err := call(ctx, h, objs[i])
		s, err := check(i, hook, err)
		if err != nil {
			return false, err
		}
		if s {
			stop = true
		}
	}
	return stop, nil
}

// fanout returns one object per handler. Copies are taken before any
// handler runs so that all handlers start from the same state.
func (d *Dispatcher) fanout(obj osm.Object) []osm.Object {
	objs := make([]osm.Object, len(d.handlers))
	for i := range objs {
		if i == 0 || d.ShareObjects {
			objs[i] = obj
			continue
		}
		objs[i] = Clone(obj)
	}
	return objs
}

func check(i int, hook string, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrStop) {
		return true, nil
	}
	return false, fmt.Errorf("handler %d: %s: %w", i, hook, err)
}

func typeOf(obj osm.Object) (osm.Type, error) {
	switch obj.(type) {
	case *osm.Node:
		return osm.TypeNode, nil
	case *osm.Way:
		return osm.TypeWay, nil
	case *osm.Relation:
		return osm.TypeRelation, nil
	case *osm.Changeset:
		return osm.TypeChangeset, nil
	default:
		return typeNone, fmt.Errorf("%w: %T", ErrUnknownType, obj)
	}
}

func call(ctx context.Context, h Handler, obj osm.Object) (string, error) {
	switch o := obj.(type) {
	case *osm.Node:
		return "node", h.Node(ctx, o)
	case *osm.Way:
		return "way", h.Way(ctx, o)
	case *osm.Relation:
		return "relation", h.Relation(ctx, o)
	case *osm.Changeset:
		return "changeset", h.Changeset(ctx, o)
	default:
		// typeOf already rejected anything else
		panic(fmt.Sprintf("handler: unexpected object %T", obj))
	}
}

func leave(ctx context.Context, h Handler, t osm.Type) (string, error) {
	switch t {
	case typeNone:
		return "init", h.Init(ctx)
	case osm.TypeNode:
		return "after_nodes", h.AfterNodes(ctx)
	case osm.TypeWay:
		return "after_ways", h.AfterWays(ctx)
	case osm.TypeRelation:
		return "after_relations", h.AfterRelations(ctx)
	case osm.TypeChangeset:
		return "after_changesets", h.AfterChangesets(ctx)
	}
	return "", nil
}

func enter(ctx context.Context, h Handler, t osm.Type) (string, error) {
	switch t {
	case typeNone:
		return "done", h.Done(ctx)
	case osm.TypeNode:
		return "before_nodes", h.BeforeNodes(ctx)
	case osm.TypeWay:
		return "before_ways", h.BeforeWays(ctx)
	case osm.TypeRelation:
		return "before_relations", h.BeforeRelations(ctx)
	case osm.TypeChangeset:
		return "before_changesets", h.BeforeChangesets(ctx)
	}
	return "", nil
}
