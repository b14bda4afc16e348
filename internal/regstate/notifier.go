package regstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/internal/observability"
	"github.com/signalsfoundry/regchan/model"
)

// Queue names, also used as metric labels.
const (
	QueueNorth = "north"
	QueueSouth = "south"
)

var (
	// ErrTooManySubscribers indicates the subscriber set is full.
	ErrTooManySubscribers = errors.New("subscriber limit reached")
	// ErrNotifierClosed indicates a publish after Close.
	ErrNotifierClosed = errors.New("notifier closed")
)

// ListChanged reports a new current channel list for one radio.
type ListChanged struct {
	PhyID      uint8
	Generation uint64
	Trigger    Trigger
	TriggerID  string
	Current    model.ChannelList
	Secondary  model.ChannelList
	// AvoidDelta lists the center frequencies a frequency-avoidance
	// update narrowed or disabled. It is nil for other triggers.
	AvoidDelta []uint16
}

// SouthKind distinguishes southbound payloads.
type SouthKind uint8

const (
	SouthCTL SouthKind = iota
	SouthChannelList
)

func (k SouthKind) String() string {
	if k == SouthCTL {
		return "ctl"
	}
	return "channel_list"
}

// SouthMessage is delivered to the firmware side.
type SouthMessage struct {
	PhyID      uint8
	Kind       SouthKind
	Generation uint64
	// CTL is the CBOR-encoded CTL summary for SouthCTL messages.
	CTL      []byte
	Channels model.ChannelList
}

// SouthboundSender delivers southbound messages.
type SouthboundSender interface {
	Deliver(ctx context.Context, msg SouthMessage) error
}

// NotifierMetrics receives queue statistics.
type NotifierMetrics interface {
	SetQueueDepth(queue string, depth int)
	ObserveDelivered(queue string, d time.Duration)
	IncSuperseded(queue string)
	SetSubscribers(n int)
}

type genKey struct {
	queue string
	phy   uint8
	kind  SouthKind
}

// queued is one pending item of a coalescing queue.
type queued[T any] struct {
	item     T
	gen      uint64
	enqueued time.Time
}

// coalescingQueue holds at most one pending item per key, in first-queued
// order. Pushing never blocks: a newer item replaces the pending one of its
// key, and a new key arriving at capacity evicts the oldest pending item.
type coalescingQueue[T any] struct {
	mu       sync.Mutex
	items    map[genKey]queued[T]
	order    []genKey
	capacity int
	closed   bool
	wake     chan struct{}
}

func newCoalescingQueue[T any](capacity int) *coalescingQueue[T] {
	return &coalescingQueue[T]{
		items:    make(map[genKey]queued[T]),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

type pushResult struct {
	replaced bool
	evicted  bool
	depth    int
}

func (q *coalescingQueue[T]) push(k genKey, it queued[T]) (pushResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return pushResult{}, ErrNotifierClosed
	}

	var res pushResult
	if old, ok := q.items[k]; ok {
		res.replaced = true
		if old.gen > it.gen {
			res.depth = len(q.order)
			return res, nil
		}
	} else {
		if len(q.order) >= q.capacity {
			delete(q.items, q.order[0])
			q.order = q.order[1:]
			res.evicted = true
		}
		q.order = append(q.order, k)
	}
	q.items[k] = it
	res.depth = len(q.order)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return res, nil
}

// pop waits for the next pending item. It returns false once the queue is
// closed and drained.
func (q *coalescingQueue[T]) pop() (queued[T], int, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			k := q.order[0]
			q.order = q.order[1:]
			it := q.items[k]
			delete(q.items, k)
			depth := len(q.order)
			q.mu.Unlock()
			return it, depth, true
		}
		if q.closed {
			q.mu.Unlock()
			return queued[T]{}, 0, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *coalescingQueue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
}

type subscriber struct {
	id string
	fn func(ListChanged)
}

// Notifier fans recompute results out on two queues, each drained by a
// single goroutine. Publishing never blocks the caller. Every published
// item carries a generation; a newer item replaces a still-queued older one
// for the same radio and kind, and an item whose generation is older than
// the latest one published is skipped at dispatch.
type Notifier struct {
	mu      sync.Mutex
	subs    []subscriber
	maxSubs int
	latest  map[genKey]uint64

	closeMu sync.RWMutex
	closed  bool

	north  *coalescingQueue[ListChanged]
	south  *coalescingQueue[SouthMessage]
	sender SouthboundSender

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics NotifierMetrics
	log     logging.Logger
}

// NotifierOption customises Notifier construction.
type NotifierOption func(*Notifier)

// WithSouthboundSender attaches the southbound transport. Without one,
// southbound messages are dropped after generation bookkeeping.
func WithSouthboundSender(s SouthboundSender) NotifierOption {
	return func(n *Notifier) {
		n.sender = s
	}
}

// WithNotifierMetrics attaches queue metrics.
func WithNotifierMetrics(m NotifierMetrics) NotifierOption {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// WithNotifierLogger attaches a structured logger.
func WithNotifierLogger(l logging.Logger) NotifierOption {
	return func(n *Notifier) {
		n.log = logging.OrNoop(l)
	}
}

// NewNotifier starts the north and south workers. queueDepth bounds the
// number of distinct radio and kind keys pending on each queue.
func NewNotifier(maxSubs, queueDepth int, opts ...NotifierOption) *Notifier {
	if maxSubs < 1 {
		maxSubs = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		maxSubs: maxSubs,
		latest:  make(map[genKey]uint64),
		north:   newCoalescingQueue[ListChanged](queueDepth),
		south:   newCoalescingQueue[SouthMessage](queueDepth),
		ctx:     ctx,
		cancel:  cancel,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.wg.Add(2)
	go n.runNorth()
	go n.runSouth()
	return n
}

// Subscribe registers fn for ListChanged events and returns its handle
// and an unsubscribe function. Callbacks run on the north worker, one at
// a time, in registration order.
func (n *Notifier) Subscribe(fn func(ListChanged)) (string, func(), error) {
	if fn == nil {
		return "", func() {}, fmt.Errorf("%w: nil subscriber", model.ErrInternal)
	}
	n.mu.Lock()
	if len(n.subs) >= n.maxSubs {
		n.mu.Unlock()
		return "", func() {}, fmt.Errorf("%w: %d subscribers", ErrTooManySubscribers, n.maxSubs)
	}
	id := uuid.NewString()
	n.subs = append(n.subs, subscriber{id: id, fn: fn})
	count := len(n.subs)
	n.mu.Unlock()

	n.setSubscribers(count)
	return id, func() { n.Unsubscribe(id) }, nil
}

// Unsubscribe removes a subscriber by handle. Unknown handles are ignored.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	for i := range n.subs {
		if n.subs[i].id == id {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	count := len(n.subs)
	n.mu.Unlock()

	n.setSubscribers(count)
}

// Subscribers returns the number of registered subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// PublishList stamps ev with the next north generation for its radio and
// queues it, replacing an undelivered older list for the same radio.
func (n *Notifier) PublishList(ctx context.Context, ev ListChanged) (uint64, error) {
	n.closeMu.RLock()
	defer n.closeMu.RUnlock()
	if n.closed {
		return 0, ErrNotifierClosed
	}

	k := genKey{queue: QueueNorth, phy: ev.PhyID}
	ev.Generation = n.stamp(k)
	res, err := n.north.push(k, queued[ListChanged]{item: ev, gen: ev.Generation, enqueued: time.Now()})
	if err != nil {
		return 0, err
	}
	n.afterPush(ctx, QueueNorth, res)
	return ev.Generation, nil
}

// PublishSouth stamps msg with the next south generation for its radio
// and kind and queues it, replacing an undelivered older message of the
// same kind.
func (n *Notifier) PublishSouth(ctx context.Context, msg SouthMessage) (uint64, error) {
	n.closeMu.RLock()
	defer n.closeMu.RUnlock()
	if n.closed {
		return 0, ErrNotifierClosed
	}

	k := genKey{queue: QueueSouth, phy: msg.PhyID, kind: msg.Kind}
	msg.Generation = n.stamp(k)
	res, err := n.south.push(k, queued[SouthMessage]{item: msg, gen: msg.Generation, enqueued: time.Now()})
	if err != nil {
		return 0, err
	}
	n.afterPush(ctx, QueueSouth, res)
	return msg.Generation, nil
}

func (n *Notifier) afterPush(ctx context.Context, queue string, res pushResult) {
	n.setQueueDepth(queue, res.depth)
	if res.replaced {
		n.incSuperseded(queue)
	}
	if res.evicted {
		n.log.Warn(ctx, "notification queue full, oldest pending item dropped",
			logging.String("queue", queue))
	}
}

// Generation returns the latest north generation published for a radio.
func (n *Notifier) Generation(phy uint8) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latest[genKey{queue: QueueNorth, phy: phy}]
}

// Close stops accepting items, drains both queues and waits for the
// workers to exit.
func (n *Notifier) Close() {
	n.closeMu.Lock()
	if n.closed {
		n.closeMu.Unlock()
		return
	}
	n.closed = true
	n.north.close()
	n.south.close()
	n.closeMu.Unlock()

	n.wg.Wait()
	n.cancel()
}

func (n *Notifier) stamp(k genKey) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latest[k]++
	return n.latest[k]
}

func (n *Notifier) superseded(k genKey, gen uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return gen < n.latest[k]
}

func (n *Notifier) snapshotSubs() []subscriber {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]subscriber(nil), n.subs...)
}

func (n *Notifier) runNorth() {
	defer n.wg.Done()
	for {
		it, depth, ok := n.north.pop()
		if !ok {
			return
		}
		n.setQueueDepth(QueueNorth, depth)
		if n.superseded(genKey{queue: QueueNorth, phy: it.item.PhyID}, it.gen) {
			n.incSuperseded(QueueNorth)
			continue
		}
		for _, s := range n.snapshotSubs() {
			s.fn(it.item)
		}
		n.observeDelivered(QueueNorth, time.Since(it.enqueued))
	}
}

func (n *Notifier) runSouth() {
	defer n.wg.Done()
	for {
		it, depth, ok := n.south.pop()
		if !ok {
			return
		}
		n.setQueueDepth(QueueSouth, depth)
		msg := it.item
		if n.superseded(genKey{queue: QueueSouth, phy: msg.PhyID, kind: msg.Kind}, it.gen) {
			n.incSuperseded(QueueSouth)
			continue
		}
		if n.sender == nil {
			continue
		}
		ctx, span := observability.StartDelivery(n.ctx, msg.PhyID, msg.Kind.String(), msg.Generation)
		err := n.sender.Deliver(ctx, msg)
		observability.EndSpan(span, err)
		if err != nil {
			n.log.Warn(ctx, "southbound delivery failed",
				logging.Phy(msg.PhyID),
				logging.String("kind", msg.Kind.String()),
				logging.Err(err),
			)
			continue
		}
		n.observeDelivered(QueueSouth, time.Since(it.enqueued))
	}
}

func (n *Notifier) setQueueDepth(queue string, depth int) {
	if n.metrics != nil {
		n.metrics.SetQueueDepth(queue, depth)
	}
}

func (n *Notifier) observeDelivered(queue string, d time.Duration) {
	if n.metrics != nil {
		n.metrics.ObserveDelivered(queue, d)
	}
}

func (n *Notifier) incSuperseded(queue string) {
	if n.metrics != nil {
		n.metrics.IncSuperseded(queue)
	}
}

func (n *Notifier) setSubscribers(count int) {
	if n.metrics != nil {
		n.metrics.SetSubscribers(count)
	}
}
