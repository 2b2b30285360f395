package assemble

import (
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmrel-go/internal/store"
)

// emittedSlot marks a relation id in Engine.byID that has been sent
// downstream and no longer owns a slot.
const emittedSlot int32 = -1

type slotState uint8

const (
	slotPending slotState = iota + 1
	slotCleared
)

// memberRef is the resolved entity for one member position.
type memberRef struct {
	h  store.Handle
	ok bool
}

type slot struct {
	state   slotState
	id      osm.RelationID
	meta    RelationMeta
	members []memberRef
}

func (s *slot) fill(pos int, h store.Handle) {
	if pos < len(s.members) {
		s.members[pos] = memberRef{h: h, ok: true}
	}
}

// edge points from a member key to one member position of a waiting slot.
type edge struct {
	slot int32
	pos  int32
}

// slotTable owns the relation slots and the member index. Slots are never
// reused while a pass runs; compact drops cleared ones between passes.
type slotTable struct {
	slots   []slot
	index   map[MemberKey][]edge
	cleared int
}

func newSlotTable() slotTable {
	return slotTable{index: make(map[MemberKey][]edge)}
}

func (t *slotTable) add(id osm.RelationID, h store.Handle, members int) int32 {
	t.slots = append(t.slots, slot{
		state:   slotPending,
		id:      id,
		meta:    RelationMeta{Handle: h},
		members: make([]memberRef, members),
	})
	return int32(len(t.slots) - 1)
}

func (t *slotTable) at(idx int32) *slot {
	return &t.slots[idx]
}

func (t *slotTable) wait(key MemberKey, idx int32, pos int) {
	t.index[key] = append(t.index[key], edge{slot: idx, pos: int32(pos)})
}

// waiting returns the edges of key without removing them.
func (t *slotTable) waiting(key MemberKey) []edge {
	return t.index[key]
}

// drop removes key from the index once its member is stored.
func (t *slotTable) drop(key MemberKey) {
	delete(t.index, key)
}

func (t *slotTable) clear(idx int32) {
	s := &t.slots[idx]
	if s.state == slotCleared {
		return
	}
	*s = slot{state: slotCleared, id: s.id}
	t.cleared++
}

func (t *slotTable) pending() int {
	return len(t.slots) - t.cleared
}

// eachWaiting calls fn for every index edge of a pending slot.
func (t *slotTable) eachWaiting(fn func(key MemberKey, idx int32)) {
	for key, edges := range t.index {
		for _, e := range edges {
			if t.slots[e.slot].state == slotPending {
				fn(key, e.slot)
			}
		}
	}
}

// compact removes cleared slots when they make up more than half of the
// table, rewriting slot numbers in the index and in byID.
func (t *slotTable) compact(byID map[osm.RelationID]int32) bool {
	if t.cleared == 0 || t.cleared*2 <= len(t.slots) {
		return false
	}

	remap := make([]int32, len(t.slots))
	n := 0
	for i := range t.slots {
		if t.slots[i].state != slotPending {
			remap[i] = emittedSlot
			continue
		}
		remap[i] = int32(n)
		t.slots[n] = t.slots[i]
		n++
	}
	for i := n; i < len(t.slots); i++ {
		t.slots[i] = slot{}
	}
	t.slots = t.slots[:n]
	t.cleared = 0

	for key, edges := range t.index {
		kept := edges[:0]
		for _, e := range edges {
			if s := remap[e.slot]; s != emittedSlot {
				kept = append(kept, edge{slot: s, pos: e.pos})
			}
		}
		if len(kept) == 0 {
			delete(t.index, key)
			continue
		}
		t.index[key] = kept
	}
	for id, s := range byID {
		if s != emittedSlot {
			byID[id] = remap[s]
		}
	}
	return true
}
