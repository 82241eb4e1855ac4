// Package table implements the open-addressed, linear-probing hash table used
// throughout the interpreter for globals, class methods, instance fields, and
// the string intern pool. Keys are always interned strings, so key comparison
// is pointer identity, never byte comparison.
package table

import "github.com/mna/embervm/lang/bytecode"

const (
	initialCapacity = 8
	maxLoad         = 0.75
)

type entry struct {
	key       *bytecode.String
	value     bytecode.Value
	tombstone bool // key == nil && tombstone: a deleted slot that must not stop probing
}

// Table is a map from interned string to Value. The zero Table is ready to
// use (capacity grows lazily on first insert).
type Table struct {
	entries []entry
	live    int // number of live (non-tombstone) entries
	used    int // live + tombstones, what drives the load-factor resize check
}

var _ bytecode.Table = (*Table)(nil)

// New returns an empty Table.
func New() *Table { return &Table{} }

// Len returns the number of live key/value pairs.
func (t *Table) Len() int { return t.live }

// Get returns the value for key, or !ok if key is absent.
func (t *Table) Get(key *bytecode.String) (bytecode.Value, bool) {
	if len(t.entries) == 0 {
		return bytecode.Nil, false
	}
	e := t.find(key)
	if e.key == nil {
		return bytecode.Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key's value. It reports whether key is new (was
// not already present).
func (t *Table) Set(key *bytecode.String, val bytecode.Value) bool {
	if t.used+1 > int(float64(len(t.entries))*maxLoad) {
		t.grow(growCapacity(len(t.entries)))
	}

	e := t.find(key)
	isNew := e.key == nil
	if isNew && !e.tombstone {
		t.used++
	}
	if isNew {
		t.live++
	}
	e.key = key
	e.value = val
	e.tombstone = false
	return isNew
}

// Delete removes key, leaving a tombstone so that linear probing past this
// slot keeps working for other keys. It reports whether key was present.
func (t *Table) Delete(key *bytecode.String) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = bytecode.True // spec-documented tombstone marker payload
	e.tombstone = true
	t.live--
	return true
}

// Each calls fn for every live entry, in table order. fn must not mutate t.
// Iteration stops early if fn returns false.
func (t *Table) Each(fn func(key *bytecode.String, val bytecode.Value) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		if !fn(e.key, e.value) {
			return
		}
	}
}

// FindString returns the interned String with the given content and
// precomputed hash, or nil if no such string is present. This is how the
// intern pool achieves string identity: it is consulted before allocating a
// new String object for a literal or concatenation result.
func (t *Table) FindString(chars string, hash uint32) *bytecode.String {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	idx := hash % uint32(capacity)
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if !e.tombstone {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) % uint32(capacity)
	}
}

// find returns the entry where key is stored, or the first tombstone/empty
// slot where it could be inserted, per linear probing from key's hash bucket.
func (t *Table) find(key *bytecode.String) *entry {
	capacity := uint32(len(t.entries))
	idx := key.Hash % capacity
	var tombstone *entry
	for {
		e := &t.entries[idx]
		switch {
		case e.key == nil:
			if e.tombstone {
				if tombstone == nil {
					tombstone = e
				}
			} else {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
		case e.key == key:
			return e
		}
		idx = (idx + 1) % capacity
	}
}

func growCapacity(capacity int) int {
	if capacity < initialCapacity {
		return initialCapacity
	}
	return capacity * 2
}

// grow reallocates the backing array at the new capacity and re-inserts every
// live entry, discarding tombstones — this is the only place tombstones are
// actually reclaimed.
func (t *Table) grow(capacity int) {
	old := t.entries
	t.entries = make([]entry, capacity)
	t.live = 0
	t.used = 0
	for i := range old {
		e := &old[i]
		if e.key == nil {
			continue
		}
		dst := t.find(e.key)
		dst.key = e.key
		dst.value = e.value
		t.live++
		t.used++
	}
}
