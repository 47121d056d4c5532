package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Channel is a per-category publish/subscribe source of notifications.
type Channel interface {
	Subscribe(category string) Subscription
}

// Subscription delivers one category's messages in arrival order. C is
// closed after Close.
type Subscription interface {
	ID() string
	C() <-chan Message
	Close()
}

// subscriber is a Subscription backed by an unbounded queue drained by a
// pump goroutine.
type subscriber struct {
	id       string
	category string
	onClose  func(*subscriber)

	mu      sync.Mutex
	pending []Message
	closed  bool

	signal    chan struct{}
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(category string, onClose func(*subscriber)) *subscriber {
	s := &subscriber{
		id:       uuid.NewString(),
		category: category,
		onClose:  onClose,
		signal:   make(chan struct{}, 1),
		out:      make(chan Message),
		done:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscriber) ID() string { return s.id }

func (s *subscriber) C() <-chan Message { return s.out }

func (s *subscriber) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// push enqueues msg. It never blocks.
func (s *subscriber) push(msg Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		msg := s.pending[0]
		s.pending[0] = Message{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}

// registry tracks subscribers by category.
type registry struct {
	mu   sync.RWMutex
	subs map[string]map[string]*subscriber
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[string]*subscriber)}
}

func (r *registry) subscribe(category string) *subscriber {
	s := newSubscriber(category, r.remove)
	r.mu.Lock()
	if r.subs[category] == nil {
		r.subs[category] = make(map[string]*subscriber)
	}
	r.subs[category][s.id] = s
	r.mu.Unlock()
	return s
}

func (r *registry) remove(s *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byID, ok := r.subs[s.category]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(r.subs, s.category)
		}
	}
}

// dispatch delivers msg to every subscriber of its category.
func (r *registry) dispatch(msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs[msg.Category] {
		s.push(msg)
	}
	return len(r.subs[msg.Category])
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, byID := range r.subs {
		n += len(byID)
	}
	return n
}

func (r *registry) closeAll() {
	r.mu.RLock()
	var all []*subscriber
	for _, byID := range r.subs {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}
