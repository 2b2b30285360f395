package filter

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// LuaFilter runs relation predicates written in Lua.
//
// A script defines either or both of
//
//	function osmrel.relation_of_interest(object) ... end
//	function osmrel.member_relevant(object, member) ... end
//
// object carries id, version, tags and members; member carries type, ref
// and role. Missing functions accept everything.
type LuaFilter struct {
	L   *lua.LState
	log *zap.Logger

	interest lua.LValue
	relevant lua.LValue

	// The member predicate runs once per member of the same relation.
	lastRel *osm.Relation
	lastTbl *lua.LTable

	err error
}

// NewLuaFilter creates a Lua state with the osmrel API registered.
func NewLuaFilter(log *zap.Logger) *LuaFilter {
	if log == nil {
		log = zap.NewNop()
	}
	f := &LuaFilter{
		L:   lua.NewState(),
		log: log,
	}
	f.registerAPI()
	return f
}

// Close releases Lua resources
func (f *LuaFilter) Close() {
	f.L.Close()
}

func (f *LuaFilter) registerAPI() {
	osmrel := f.L.NewTable()
	osmrel.RawSetString("version", lua.LString("1.0.0"))
	f.L.SetGlobal("osmrel", osmrel)

	registerHelpers(f.L, osmrel)
	f.L.SetGlobal("print", f.L.NewFunction(f.luaPrint))
}

// LoadFile loads and executes a Lua filter script
func (f *LuaFilter) LoadFile(path string) error {
	if err := f.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	return f.extractCallbacks()
}

// LoadString loads and executes Lua code from a string
func (f *LuaFilter) LoadString(code string) error {
	if err := f.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	return f.extractCallbacks()
}

func (f *LuaFilter) extractCallbacks() error {
	tbl, ok := f.L.GetGlobal("osmrel").(*lua.LTable)
	if !ok {
		return fmt.Errorf("lua script replaced the osmrel table")
	}
	f.interest = callback(tbl, "relation_of_interest")
	f.relevant = callback(tbl, "member_relevant")
	return nil
}

func callback(tbl *lua.LTable, name string) lua.LValue {
	if fn := tbl.RawGetString(name); fn.Type() == lua.LTFunction {
		return fn
	}
	return nil
}

// Err returns the first error raised by a Lua predicate. Predicates that
// fail evaluate to false.
func (f *LuaFilter) Err() error {
	return f.err
}

// Interest returns the relation predicate, or nil when the script defines
// none.
func (f *LuaFilter) Interest() func(*osm.Relation) bool {
	if f.interest == nil {
		return nil
	}
	return func(r *osm.Relation) bool {
		f.lastRel, f.lastTbl = nil, nil
		return f.call(f.interest, "relation_of_interest", f.relationTable(r))
	}
}

// MemberRelevant returns the member predicate, or nil when the script
// defines none.
func (f *LuaFilter) MemberRelevant() func(*osm.Relation, osm.Member) bool {
	if f.relevant == nil {
		return nil
	}
	return func(r *osm.Relation, m osm.Member) bool {
		mt := f.L.NewTable()
		mt.RawSetString("type", lua.LString(m.Type))
		mt.RawSetString("ref", lua.LNumber(m.Ref))
		mt.RawSetString("role", lua.LString(m.Role))
		return f.call(f.relevant, "member_relevant", f.relationTable(r), mt)
	}
}

func (f *LuaFilter) call(fn lua.LValue, name string, args ...lua.LValue) bool {
	if f.err != nil {
		return false
	}
	if err := f.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		f.err = fmt.Errorf("lua %s: %w", name, err)
		return false
	}
	ret := f.L.Get(-1)
	f.L.Pop(1)
	return lua.LVAsBool(ret)
}

// relationTable converts a relation to a Lua table
func (f *LuaFilter) relationTable(r *osm.Relation) *lua.LTable {
	if r == f.lastRel && f.lastTbl != nil {
		return f.lastTbl
	}
	L := f.L
	tbl := L.NewTable()

	tbl.RawSetString("id", lua.LNumber(r.ID))
	tbl.RawSetString("type", lua.LString(osm.TypeRelation))
	tbl.RawSetString("version", lua.LNumber(r.Version))

	tags := L.NewTable()
	for _, t := range r.Tags {
		tags.RawSetString(t.Key, lua.LString(t.Value))
	}
	tbl.RawSetString("tags", tags)

	members := L.NewTable()
	for i, m := range r.Members {
		mt := L.NewTable()
		mt.RawSetString("type", lua.LString(m.Type))
		mt.RawSetString("ref", lua.LNumber(m.Ref))
		mt.RawSetString("role", lua.LString(m.Role))
		members.RawSetInt(i+1, mt)
	}
	tbl.RawSetString("members", members)

	f.lastRel, f.lastTbl = r, tbl
	return tbl
}

// luaPrint sends script output to the logger
func (f *LuaFilter) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	f.log.Info("lua", zap.String("message", strings.Join(parts, "\t")))
	return 0
}
