package rsp

// slotTable tracks the two hardware breakpoint slots the OCD layer exposes.
// used marks an occupied slot and addr holds the address armed there, so any
// address, including 0, can occupy a slot.
type slotTable struct {
	addr [2]uint32
	used [2]bool
}

// alloc reserves the first free slot for addr, returning its id. ok is
// false when both slots are occupied (reported to the client as E04, HW
// breakpoint exhaustion).
func (t *slotTable) alloc(addr uint32) (id int, ok bool) {
	for i := range t.used {
		if !t.used[i] {
			t.used[i] = true
			t.addr[i] = addr
			return i, true
		}
	}
	return 0, false
}

// free releases the slot holding addr, returning its id. ok is false when
// no slot matches (reported to the client as E05).
func (t *slotTable) free(addr uint32) (id int, ok bool) {
	for i := range t.used {
		if t.used[i] && t.addr[i] == addr {
			t.used[i] = false
			return i, true
		}
	}
	return 0, false
}
