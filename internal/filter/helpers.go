package filter

import (
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Tag helper functions for Lua filter scripts

var whitespaceRegex = regexp.MustCompile(`\s+`)

// registerHelpers adds osmrel.helpers and the common ones as globals.
func registerHelpers(L *lua.LState, osmrel *lua.LTable) {
	helpers := L.NewTable()

	L.SetField(helpers, "trim", L.NewFunction(luaTrim))
	L.SetField(helpers, "lower", L.NewFunction(luaLower))
	L.SetField(helpers, "clean_spaces", L.NewFunction(luaCleanSpaces))
	L.SetField(helpers, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(helpers, "parse_bool", L.NewFunction(luaParseBool))
	L.SetField(helpers, "get_name", L.NewFunction(luaGetName))
	L.SetField(helpers, "has_tag", L.NewFunction(luaHasTag))
	L.SetField(helpers, "count_members", L.NewFunction(luaCountMembers))

	L.SetField(osmrel, "helpers", helpers)

	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("parse_bool", L.NewFunction(luaParseBool))
	L.SetGlobal("has_tag", L.NewFunction(luaHasTag))
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

// luaCleanSpaces normalizes whitespace (collapse multiple spaces, trim)
func luaCleanSpaces(L *lua.LState) int {
	s := whitespaceRegex.ReplaceAllString(L.CheckString(1), " ")
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaParseInt parses string to integer with optional default
func luaParseInt(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))
	defaultVal := int64(0)
	if L.GetTop() >= 2 {
		defaultVal = L.CheckInt64(2)
	}

	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else if fval, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(int64(fval)))
	} else {
		L.Push(lua.LNumber(defaultVal))
	}
	return 1
}

// luaParseBool parses various boolean representations
// Any other non-empty value counts as true, as it usually does in OSM.
func luaParseBool(L *lua.LState) int {
	switch strings.ToLower(strings.TrimSpace(L.CheckString(1))) {
	case "no", "false", "0", "off", "":
		L.Push(lua.LFalse)
	default:
		L.Push(lua.LTrue)
	}
	return 1
}

// luaGetName gets the best name from tags
// Priority: name, then int_name, then name:en
func luaGetName(L *lua.LState) int {
	tags := L.CheckTable(1)
	for _, key := range []string{"name", "int_name", "name:en"} {
		if s := lua.LVAsString(L.GetField(tags, key)); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

// luaHasTag implements has_tag(tags, key [, value...]).
func luaHasTag(L *lua.LState) int {
	tags := L.CheckTable(1)
	key := L.CheckString(2)

	v := L.GetField(tags, key)
	if v == lua.LNil {
		L.Push(lua.LFalse)
		return 1
	}
	if L.GetTop() < 3 {
		L.Push(lua.LTrue)
		return 1
	}
	val := lua.LVAsString(v)
	for i := 3; i <= L.GetTop(); i++ {
		if want := L.CheckString(i); want == val || want == "*" {
			L.Push(lua.LTrue)
			return 1
		}
	}
	L.Push(lua.LFalse)
	return 1
}

// luaCountMembers implements count_members(object [, type [, role]]).
func luaCountMembers(L *lua.LState) int {
	obj := L.CheckTable(1)
	typ := L.OptString(2, "")
	role, filterRole := "", L.GetTop() >= 3
	if filterRole {
		role = L.CheckString(3)
	}

	members, ok := L.GetField(obj, "members").(*lua.LTable)
	if !ok {
		L.Push(lua.LNumber(0))
		return 1
	}

	n := 0
	members.ForEach(func(_, v lua.LValue) {
		m, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		if typ != "" && lua.LVAsString(m.RawGetString("type")) != typ {
			return
		}
		if filterRole && lua.LVAsString(m.RawGetString("role")) != role {
			return
		}
		n++
	})
	L.Push(lua.LNumber(n))
	return 1
}
