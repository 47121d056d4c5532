package notify

// Hub is an in-process Channel. The development server fans notifications
// out through one, and tests publish into one directly.
type Hub struct {
	reg *registry
}

func NewHub() *Hub {
	return &Hub{reg: newRegistry()}
}

func (h *Hub) Subscribe(category string) Subscription {
	return h.reg.subscribe(category)
}

// Publish encodes payload and delivers it to subscribers of category. It
// returns the number of subscribers reached.
func (h *Hub) Publish(category string, payload interface{}) (int, error) {
	msg, err := NewMessage(category, payload)
	if err != nil {
		return 0, err
	}
	return h.reg.dispatch(msg), nil
}

// Deliver hands an already built message to subscribers.
func (h *Hub) Deliver(msg Message) int {
	return h.reg.dispatch(msg)
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	return h.reg.count()
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.reg.closeAll()
}

var _ Channel = (*Hub)(nil)
