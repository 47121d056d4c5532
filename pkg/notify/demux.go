package notify

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/live"
)

// Parser turns one message into zero or more typed events. Returning no
// events with a nil error means the message is not relevant to this view
// (for example, a recording of another target).
type Parser[R any] func(Message) ([]live.Event[R], error)

// DemuxOption configures a Demux.
type DemuxOption func(*demuxOptions)

type demuxOptions struct {
	validator *Validator
	logger    *logrus.Entry
	metrics   *live.Metrics
}

func WithValidator(v *Validator) DemuxOption { return func(o *demuxOptions) { o.validator = v } }

func WithLogger(l *logrus.Entry) DemuxOption { return func(o *demuxOptions) { o.logger = l } }

func WithMetrics(m *live.Metrics) DemuxOption { return func(o *demuxOptions) { o.metrics = m } }

// Demux subscribes to a fixed set of categories, validates and parses each
// message, and forwards typed events. Order is preserved within a category;
// nothing is promised across categories.
//
// Consume either Events or Streams, not both.
type Demux[R any] struct {
	channel Channel
	parsers map[string]Parser[R]
	opts    demuxOptions
	logger  *logrus.Entry

	streams map[string]chan live.Event[R]
	resync  chan struct{}

	mu       sync.Mutex
	subs     []Subscription
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	events   chan live.Event[R]
	mergeWG  sync.WaitGroup
	mergeRun sync.Once
	merging  atomic.Bool
}

// NewDemux creates a demux for parsers keyed by category.
func NewDemux[R any](channel Channel, parsers map[string]Parser[R], opts ...DemuxOption) *Demux[R] {
	o := demuxOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.logger = logrus.NewEntry(l)
	}
	d := &Demux[R]{
		channel: channel,
		parsers: parsers,
		opts:    o,
		logger:  o.logger,
		streams: make(map[string]chan live.Event[R], len(parsers)),
		resync:  make(chan struct{}, 1),
		events:  make(chan live.Event[R]),
	}
	for category := range parsers {
		d.streams[category] = make(chan live.Event[R])
	}
	return d
}

// Categories lists the subscribed categories, sorted.
func (d *Demux[R]) Categories() []string {
	out := make([]string, 0, len(d.parsers))
	for c := range d.parsers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Streams returns one event stream per category. Streams close after Stop.
func (d *Demux[R]) Streams() map[string]<-chan live.Event[R] {
	out := make(map[string]<-chan live.Event[R], len(d.streams))
	for c, ch := range d.streams {
		out[c] = ch
	}
	return out
}

// Events merges every category stream into one. It closes after Stop.
func (d *Demux[R]) Events() <-chan live.Event[R] {
	d.mergeRun.Do(func() {
		d.merging.Store(true)
		for _, ch := range d.streams {
			d.mergeWG.Add(1)
			go func(ch chan live.Event[R]) {
				defer d.mergeWG.Done()
				for ev := range ch {
					d.events <- ev
				}
			}(ch)
		}
		go func() {
			d.mergeWG.Wait()
			close(d.events)
		}()
	})
	return d.events
}

// Resync signals that the transport reconnected and events may have been
// missed. Signals coalesce.
func (d *Demux[R]) Resync() <-chan struct{} { return d.resync }

// Start subscribes to every category. It is a no-op after the first call.
func (d *Demux[R]) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	ctx, d.cancel = context.WithCancel(ctx)

	for category, parse := range d.parsers {
		sub := d.channel.Subscribe(category)
		d.subs = append(d.subs, sub)
		d.wg.Add(1)
		go d.forward(ctx, category, parse, sub, d.streams[category])
	}

	reconnect := d.channel.Subscribe(CategoryReconnected)
	d.subs = append(d.subs, reconnect)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case _, ok := <-reconnect.C():
				if !ok {
					return
				}
				select {
				case d.resync <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop unsubscribes, waits for forwarding goroutines and closes the streams.
// Events not yet consumed are discarded.
func (d *Demux[R]) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, s := range subs {
		s.Close()
	}
	d.wg.Wait()
	for _, ch := range d.streams {
		close(ch)
	}
	if d.merging.Load() {
		// Unblock merge goroutines if nobody drains Events any more.
		go func() {
			for range d.events {
			}
		}()
	}
}

func (d *Demux[R]) forward(ctx context.Context, category string, parse Parser[R], sub Subscription, out chan<- live.Event[R]) {
	defer d.wg.Done()
	for {
		var msg Message
		var ok bool
		select {
		case msg, ok = <-sub.C():
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		events, err := d.decode(category, parse, msg)
		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"category": category,
				"code":     errors.GetCode(err),
			}).WithError(err).Warn("Dropping malformed notification")
			d.opts.metrics.Malformed(category)
			continue
		}
		for _, ev := range events {
			if ev.Category == "" {
				ev.Category = category
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Demux[R]) decode(category string, parse Parser[R], msg Message) (events []live.Event[R], err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.ErrCodeMalformedEvent, "parser panicked").WithDetail("panic", p)
		}
	}()
	if err := d.opts.validator.Validate(msg); err != nil {
		return nil, err
	}
	events, err = parse(msg)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.MalformedEvent(category, err)
		}
		return nil, err
	}
	return events, nil
}
