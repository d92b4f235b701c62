package set

import (
	"golang.org/x/exp/constraints"

	"github.com/poorlydefinedbehaviour/netcode-go/src/mapx"
)

// T is an unordered collection of unique values. Members are returned
// in ascending order so callers iterating a set (e.g. to fan out a message
// to every connected client) behave deterministically.
type T[Type constraints.Ordered] struct {
	members map[Type]struct{}
}

func New[Type constraints.Ordered](values ...Type) *T[Type] {
	set := &T[Type]{
		members: make(map[Type]struct{}, len(values)),
	}

	for _, value := range values {
		set.Insert(value)
	}

	return set
}

func (set *T[Type]) Insert(value Type) {
	set.members[value] = struct{}{}
}

func (set *T[Type]) Remove(value Type) bool {
	removed := set.Contains(value)
	delete(set.members, value)
	return removed
}

func (set *T[Type]) Contains(value Type) bool {
	_, ok := set.members[value]
	return ok
}

func (set *T[Type]) Size() int {
	return len(set.members)
}

// Returns the smallest member that matches the predicate.
func (set *T[Type]) Find(predicate func(*Type) bool) (Type, bool) {
	for _, member := range set.Members() {
		if predicate(&member) {
			return member, true
		}
	}

	var zeroValue Type
	return zeroValue, false
}

// Removes every member that does not match the predicate.
func (set *T[Type]) Retain(predicate func(*Type) bool) {
	for _, member := range mapx.Keys(set.members) {
		if !predicate(&member) {
			delete(set.members, member)
		}
	}
}

// Returns the members in ascending order.
func (set *T[Type]) Members() []Type {
	return mapx.SortedKeys(set.members)
}
