package live

import "sort"

type entry[R any] struct {
	record R
	seq    uint64
}

type parentEntry struct {
	row ParentRow
	seq uint64
}

// State is the canonical collection state. It is owned by one Reconciler and
// is not safe for concurrent use; readers get copies through the accessors.
type State[R any] struct {
	items     map[string]entry[R]
	parents   map[string]parentEntry
	aggregate Aggregate
	version   uint64
	nextSeq   uint64
}

func newState[R any]() *State[R] {
	return &State[R]{
		items:   make(map[string]entry[R]),
		parents: make(map[string]parentEntry),
	}
}

// Version is the generation counter, bumped on every applied mutation.
func (s *State[R]) Version() uint64 { return s.version }

func (s *State[R]) Len() int { return len(s.items) }

func (s *State[R]) Aggregate() Aggregate { return s.aggregate }

// Get returns the record stored under key.
func (s *State[R]) Get(key string) (R, bool) {
	e, ok := s.items[key]
	return e.record, ok
}

// Has reports whether key is present.
func (s *State[R]) Has(key string) bool {
	_, ok := s.items[key]
	return ok
}

// Keys returns item keys in insertion order.
func (s *State[R]) Keys() []string {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return s.items[keys[i]].seq < s.items[keys[j]].seq })
	return keys
}

// Items returns records in insertion order. A key keeps its position across
// updates; a key deleted and created again moves to the end.
func (s *State[R]) Items() []R {
	keys := s.Keys()
	out := make([]R, len(keys))
	for i, k := range keys {
		out[i] = s.items[k].record
	}
	return out
}

// Parents returns parent rows in insertion order.
func (s *State[R]) Parents() []ParentRow {
	rows := make([]parentEntry, 0, len(s.parents))
	for _, p := range s.parents {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]ParentRow, len(rows))
	for i, p := range rows {
		out[i] = p.row
	}
	return out
}

// Parent returns one parent row.
func (s *State[R]) Parent(key string) (ParentRow, bool) {
	p, ok := s.parents[key]
	return p.row, ok
}

func (s *State[R]) seq() uint64 {
	s.nextSeq++
	return s.nextSeq
}

func (s *State[R]) put(key string, record R) {
	if e, ok := s.items[key]; ok {
		s.items[key] = entry[R]{record: record, seq: e.seq}
		return
	}
	s.items[key] = entry[R]{record: record, seq: s.seq()}
}

func (s *State[R]) remove(key string) bool {
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

func (s *State[R]) putParent(row ParentRow) {
	if p, ok := s.parents[row.Key]; ok {
		s.parents[row.Key] = parentEntry{row: row, seq: p.seq}
		return
	}
	s.parents[row.Key] = parentEntry{row: row, seq: s.seq()}
}

func (s *State[R]) removeParent(key string) bool {
	if _, ok := s.parents[key]; !ok {
		return false
	}
	delete(s.parents, key)
	return true
}

// replace swaps in a snapshot, keeping nothing from the previous items.
func (s *State[R]) replace(records []R, keyOf func(R) string, parents []ParentRow) {
	s.items = make(map[string]entry[R], len(records))
	for _, r := range records {
		s.put(keyOf(r), r)
	}
	s.parents = make(map[string]parentEntry, len(parents))
	for _, p := range parents {
		s.putParent(p)
	}
}

// recompute derives the aggregate and tracked parent counts from items.
func (s *State[R]) recompute(size func(R) int64, parentOf func(R) string) {
	agg := Aggregate{Count: len(s.items)}
	var children map[string]int
	if parentOf != nil && len(s.parents) > 0 {
		children = make(map[string]int, len(s.parents))
	}
	for _, e := range s.items {
		if size != nil {
			agg.TotalSize += size(e.record)
		}
		if children != nil {
			children[parentOf(e.record)]++
		}
	}
	s.aggregate = agg

	for key, p := range s.parents {
		if p.row.Tracked {
			p.row.Count = children[key]
			s.parents[key] = p
		}
	}
}
