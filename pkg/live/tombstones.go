package live

// keySet is a bounded insertion-ordered set. When full, the oldest key is evicted.
type keySet struct {
	limit int
	keys  map[string]struct{}
	order []string
}

func newKeySet(limit int) *keySet {
	return &keySet{limit: limit, keys: make(map[string]struct{})}
}

func (s *keySet) has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func (s *keySet) add(key string) {
	if s.has(key) {
		return
	}
	if s.limit > 0 && len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
}

func (s *keySet) remove(key string) {
	if !s.has(key) {
		return
	}
	delete(s.keys, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *keySet) reset() {
	s.keys = make(map[string]struct{})
	s.order = nil
}

// childLedger remembers which uncached children of untracked parents have
// been seen created or deleted, so duplicate deliveries do not move counters.
type childLedger struct {
	live       *keySet
	tombstones *keySet
}

func newChildLedger(limit int) *childLedger {
	return &childLedger{live: newKeySet(limit), tombstones: newKeySet(limit)}
}

// created records a child creation and reports whether it is new.
func (l *childLedger) created(key string) bool {
	if l.live.has(key) {
		return false
	}
	l.tombstones.remove(key)
	l.live.add(key)
	return true
}

// deleted records a child deletion and reports whether it is new.
func (l *childLedger) deleted(key string) bool {
	if l.tombstones.has(key) {
		return false
	}
	l.live.remove(key)
	l.tombstones.add(key)
	return true
}

func (l *childLedger) reset() {
	l.live.reset()
	l.tombstones.reset()
}
