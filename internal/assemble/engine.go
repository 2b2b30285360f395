package assemble

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmrel-go/internal/handler"
	"github.com/wegman-software/osmrel-go/internal/store"
)

type stage int

const (
	stageRelations stage = iota
	stageMembers
	stageFinished
)

func (s stage) String() string {
	switch s {
	case stageRelations:
		return "relations"
	case stageMembers:
		return "members"
	default:
		return "finished"
	}
}

// Engine assembles relations. It is not safe for concurrent use; passes run
// one after another, each driven by a handler.Dispatcher.
type Engine struct {
	cfg   Config
	arena store.Arena
	down  handler.Handler
	log   *zap.Logger

	stage stage
	table slotTable
	// byID maps tracked relation ids to their slot, or emittedSlot.
	byID map[osm.RelationID]int32

	opened bool
	stats  Stats
}

// New creates an engine that stores entities in arena and sends completed
// relations to downstream. The arena stays owned by the caller.
func New(cfg Config, arena store.Arena, downstream handler.Handler, log *zap.Logger) *Engine {
	if downstream == nil {
		downstream = handler.Base{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:   cfg,
		arena: arena,
		down:  downstream,
		log:   log,
		table: newSlotTable(),
		byID:  make(map[osm.RelationID]int32),
	}
}

// RelationsPass returns the handler for pass 1. Only relations are looked at.
func (e *Engine) RelationsPass() handler.Handler {
	return &relationsPass{e: e}
}

// MembersPass returns the handler for pass 2. Nodes, ways and relations
// that tracked relations wait for are resolved. Running it more than once
// is allowed.
func (e *Engine) MembersPass() handler.Handler {
	return &membersPass{e: e}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Pending returns the number of tracked relations not yet emitted.
func (e *Engine) Pending() int {
	return e.table.pending()
}

func (e *Engine) enter(s stage) error {
	if e.stage > s {
		return fmt.Errorf("%w: %s pass after %s", ErrPassOrder, s, e.stage)
	}
	e.stage = s
	return nil
}

// register tracks r when it is of interest.
func (e *Engine) register(ctx context.Context, r *osm.Relation) error {
	e.stats.Seen++

	if _, dup := e.byID[r.ID]; dup {
		if e.cfg.Duplicates == DuplicateSkip {
			e.stats.Duplicates++
			e.log.Debug("Skipping duplicate relation", zap.Int64("id", int64(r.ID)))
			return nil
		}
		return fmt.Errorf("%w: %d", ErrDuplicateRelation, r.ID)
	}

	if !e.cfg.interested(r) {
		e.stats.Skipped++
		return nil
	}

	h, err := e.arena.Commit(store.EncodeRelation(r))
	if err != nil {
		return fmt.Errorf("failed to store relation %d: %w", r.ID, err)
	}

	idx := e.table.add(r.ID, h, len(r.Members))
	e.byID[r.ID] = idx
	e.stats.Tracked++

	sl := e.table.at(idx)
	seen := make(map[MemberKey]struct{}, len(r.Members))
	for pos, m := range r.Members {
		if !e.cfg.relevant(r, m) {
			continue
		}
		key := MemberKey{Type: m.Type, Ref: m.Ref}
		e.table.wait(key, idx, pos)
		e.stats.Indexed++
		if _, ok := seen[key]; ok {
			e.stats.DuplicateMembers++
			continue
		}
		seen[key] = struct{}{}
		sl.meta.Needed++
	}

	if sl.meta.Needed == 0 {
		e.stats.Degenerate++
		return e.emit(ctx, idx)
	}
	return nil
}

// resolve matches obj against the member index.
func (e *Engine) resolve(ctx context.Context, obj osm.Object) error {
	key, ok := keyOf(obj)
	if !ok {
		return nil
	}
	edges := e.table.waiting(key)
	if len(edges) == 0 {
		return nil
	}

	h, err := e.arena.Commit(e.encodeMember(obj))
	if err != nil {
		return fmt.Errorf("failed to store member %s: %w", key, err)
	}
	e.table.drop(key)
	e.stats.Resolved++

	// Edges of one slot are adjacent: they are added in a single register
	// call and keep their order through compaction.
	for i := 0; i < len(edges); {
		idx := edges[i].slot
		sl := e.table.at(idx)
		for ; i < len(edges) && edges[i].slot == idx; i++ {
			sl.fill(int(edges[i].pos), h)
		}
		if sl.state != slotPending {
			continue
		}
		sl.meta.Needed--
		if sl.meta.Needed == 0 {
			if err := e.emit(ctx, idx); err != nil {
				return err
			}
		}
	}
	return nil
}

func keyOf(obj osm.Object) (MemberKey, bool) {
	switch o := obj.(type) {
	case *osm.Node:
		return MemberKey{Type: osm.TypeNode, Ref: int64(o.ID)}, true
	case *osm.Way:
		return MemberKey{Type: osm.TypeWay, Ref: int64(o.ID)}, true
	case *osm.Relation:
		return MemberKey{Type: osm.TypeRelation, Ref: int64(o.ID)}, true
	default:
		return MemberKey{}, false
	}
}

// encodeMember serializes a member entity. Ways keep the node locations
// the input carries; otherwise each node is looked up in the configured
// lookup, and nodes it does not know are stored unlocated.
func (e *Engine) encodeMember(obj osm.Object) []byte {
	switch o := obj.(type) {
	case *osm.Node:
		return store.EncodeNode(o)
	case *osm.Way:
		if carriesLocations(o.Nodes) {
			return store.EncodeWay(o)
		}
		w := *o
		w.Nodes = make(osm.WayNodes, len(o.Nodes))
		for i, wn := range o.Nodes {
			wn.Lat, wn.Lon = math.NaN(), math.NaN()
			if e.cfg.Locations != nil {
				if lat, lon, ok := e.cfg.Locations.Get(int64(wn.ID)); ok {
					wn.Lat, wn.Lon = lat, lon
				}
			}
			w.Nodes[i] = wn
		}
		return store.EncodeWay(&w)
	default:
		return store.EncodeRelation(obj.(*osm.Relation))
	}
}

// carriesLocations reports whether the input way has node locations, as
// PBF files written with locations on ways do. osm.WayNode has no flag for
// this, so a way reading all zeros is taken to have none.
func carriesLocations(nodes osm.WayNodes) bool {
	for _, wn := range nodes {
		if wn.Lat != 0 || wn.Lon != 0 {
			return true
		}
	}
	return false
}

// emit sends the relation in slot idx downstream and clears the slot.
func (e *Engine) emit(ctx context.Context, idx int32) error {
	sl := e.table.at(idx)
	rel, err := e.load(sl)
	if err != nil {
		return err
	}

	partial := sl.meta.Needed > 0
	e.byID[sl.id] = emittedSlot
	e.table.clear(idx)

	if err := e.open(ctx); err != nil {
		return err
	}
	if err := e.down.Relation(ctx, rel); err != nil {
		return fmt.Errorf("downstream relation %d: %w", rel.ID, err)
	}

	e.stats.Emitted++
	if partial {
		e.stats.Partial++
	}
	return nil
}

// load decodes the stored relation and attaches resolved member data.
// Node members that did not resolve carry NaN coordinates.
func (e *Engine) load(sl *slot) (*osm.Relation, error) {
	rec, err := e.arena.Get(sl.meta.Handle)
	if err != nil {
		return nil, fmt.Errorf("relation %d: %w", sl.id, err)
	}
	rel, err := rec.Relation()
	if err != nil {
		return nil, fmt.Errorf("relation %d: %w", sl.id, err)
	}

	for pos := range rel.Members {
		if rel.Members[pos].Type == osm.TypeNode {
			rel.Members[pos].Lat, rel.Members[pos].Lon = math.NaN(), math.NaN()
		}
		if pos >= len(sl.members) || !sl.members[pos].ok {
			continue
		}
		ref := sl.members[pos]
		mrec, err := e.arena.Get(ref.h)
		if err != nil {
			return nil, fmt.Errorf("relation %d member %d: %w", sl.id, pos, err)
		}
		m := &rel.Members[pos]
		switch mrec.Kind {
		case store.KindNode:
			n, err := mrec.Node()
			if err != nil {
				return nil, err
			}
			m.Lat, m.Lon, m.Version = n.Lat, n.Lon, n.Version
		case store.KindWay:
			w, err := mrec.Way()
			if err != nil {
				return nil, err
			}
			m.Nodes, m.Version = w.Nodes, w.Version
		case store.KindRelation:
			r, err := mrec.Relation()
			if err != nil {
				return nil, err
			}
			m.Version = r.Version
		}
	}
	return rel, nil
}

func (e *Engine) open(ctx context.Context) error {
	if e.opened {
		return nil
	}
	e.opened = true
	if err := e.down.Init(ctx); err != nil {
		return fmt.Errorf("downstream init: %w", err)
	}
	if err := e.down.BeforeRelations(ctx); err != nil {
		return fmt.Errorf("downstream before_relations: %w", err)
	}
	return nil
}

// Incomplete lists the tracked relations that still wait for members,
// ordered by relation id, each with its sorted missing member keys.
func (e *Engine) Incomplete() []Incomplete {
	missing := make(map[int32][]MemberKey)
	e.table.eachWaiting(func(key MemberKey, idx int32) {
		keys := missing[idx]
		if n := len(keys); n > 0 && keys[n-1] == key {
			return
		}
		missing[idx] = append(keys, key)
	})

	out := make([]Incomplete, 0, len(missing))
	for idx, keys := range missing {
		sl := e.table.at(idx)
		sortKeys(keys)
		out = append(out, Incomplete{ID: sl.id, Meta: sl.meta, Missing: keys})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Finish ends assembly. Relations still missing members are handled by the
// configured IncompletePolicy, then the downstream handler is closed. No
// pass may run afterwards.
func (e *Engine) Finish(ctx context.Context) error {
	if e.stage == stageFinished {
		return fmt.Errorf("%w: finish called twice", ErrPassOrder)
	}
	e.stage = stageFinished

	pending := e.Incomplete()
	var result error

	switch e.cfg.Incomplete {
	case IncompleteEmit:
		for _, inc := range pending {
			if err := e.emit(ctx, e.byID[inc.ID]); err != nil {
				return err
			}
		}
		if len(pending) > 0 {
			e.log.Info("Emitted incomplete relations", zap.Int("count", len(pending)))
		}
	case IncompleteFail:
		if len(pending) > 0 {
			result = &IncompleteError{Relations: pending}
		}
	default:
		if len(pending) > 0 {
			e.log.Info("Dropping incomplete relations", zap.Int("count", len(pending)))
		}
	}

	if err := e.close(ctx); err != nil {
		return err
	}
	return result
}

func (e *Engine) close(ctx context.Context) error {
	if !e.opened {
		e.opened = true
		if err := e.down.Init(ctx); err != nil {
			return fmt.Errorf("downstream init: %w", err)
		}
	} else if err := e.down.AfterRelations(ctx); err != nil {
		return fmt.Errorf("downstream after_relations: %w", err)
	}
	if err := e.down.Done(ctx); err != nil {
		return fmt.Errorf("downstream done: %w", err)
	}
	return nil
}

// endPass compacts the slot table once most slots are cleared.
func (e *Engine) endPass() {
	if e.table.compact(e.byID) {
		e.stats.Compactions++
		e.log.Debug("Compacted relation slots", zap.Int("pending", e.table.pending()))
	}
}

type relationsPass struct {
	handler.Base
	e *Engine
}

func (p *relationsPass) Init(ctx context.Context) error {
	return p.e.enter(stageRelations)
}

func (p *relationsPass) Relation(ctx context.Context, r *osm.Relation) error {
	if err := p.e.enter(stageRelations); err != nil {
		return err
	}
	return p.e.register(ctx, r)
}

func (p *relationsPass) Done(ctx context.Context) error {
	p.e.endPass()
	return nil
}

type membersPass struct {
	handler.Base
	e *Engine
}

func (p *membersPass) Init(ctx context.Context) error {
	return p.e.enter(stageMembers)
}

func (p *membersPass) Node(ctx context.Context, n *osm.Node) error {
	return p.resolve(ctx, n)
}

func (p *membersPass) Way(ctx context.Context, w *osm.Way) error {
	return p.resolve(ctx, w)
}

func (p *membersPass) Relation(ctx context.Context, r *osm.Relation) error {
	return p.resolve(ctx, r)
}

func (p *membersPass) resolve(ctx context.Context, obj osm.Object) error {
	if err := p.e.enter(stageMembers); err != nil {
		return err
	}
	return p.e.resolve(ctx, obj)
}

func (p *membersPass) Done(ctx context.Context) error {
	p.e.endPass()
	return nil
}
