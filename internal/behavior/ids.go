package behavior

import (
	"math/bits"
	"strings"
)

// ID is the stable identifier of a unit.
type ID string

// None is the sentinel "no unit" identifier. Choosers return it when nothing
// scores above zero, and it marks an empty current or resume slot.
const None ID = ""

// IsNone reports whether id is the None sentinel.
func (id ID) IsNone() bool { return id == None }

func (id ID) String() string {
	if id == None {
		return "None"
	}
	return string(id)
}

// Class is the implementation tag of a unit. Several units may share a class.
type Class string

func (c Class) String() string {
	if c == "" {
		return "None"
	}
	return string(c)
}

// TriggerKind names a class of externally detected event that competes to
// preempt the current unit.
type TriggerKind string

// NoTrigger is the sentinel kind recorded while the current unit was not
// started by a reaction.
const NoTrigger TriggerKind = ""

func (k TriggerKind) String() string {
	if k == NoTrigger {
		return "None"
	}
	return string(k)
}

// Group is a capability bit index, allocated by a [Registry].
type Group uint8

// MaxGroups is the number of distinct groups a registry can allocate.
const MaxGroups = 64

// GroupSet is a bitset of groups.
type GroupSet uint64

// Has reports whether g is in the set.
func (s GroupSet) Has(g Group) bool { return s&(1<<g) != 0 }

// With returns the set with g added.
func (s GroupSet) With(g Group) GroupSet { return s | 1<<g }

// Intersects reports whether the sets share any group.
func (s GroupSet) Intersects(o GroupSet) bool { return s&o != 0 }

// Len returns the number of groups in the set.
func (s GroupSet) Len() int { return bits.OnesCount64(uint64(s)) }

// Groups returns the members in ascending bit order.
func (s GroupSet) Groups() []Group {
	var out []Group
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, Group(bits.TrailingZeros64(v)))
	}
	return out
}

func joinIDs(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
