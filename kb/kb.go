package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/regchan/model"
)

// EventType indicates what kind of change happened in the cache.
type EventType int

const (
	EventRulesUpdated EventType = iota
	EventRulesRemoved
)

func (e EventType) String() string {
	switch e {
	case EventRulesUpdated:
		return "rules_updated"
	case EventRulesRemoved:
		return "rules_removed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the active rule set of a radio
// changes.
type Event struct {
	Type   EventType
	PhyID  uint8
	Alpha2 string
}

type cacheKey struct {
	phy    uint8
	alpha2 string
}

// RuleCache is an in-memory, thread-safe store of accepted rule sets. It
// remembers every country seen per radio so a later switch back can be
// served without another round trip to the rule source.
type RuleCache struct {
	mu sync.RWMutex

	active map[uint8]*model.RuleSet
	seen   map[cacheKey]*model.RuleSet

	nextSub int
	subs    map[int]func(Event)
}

// NewRuleCache constructs an empty cache.
func NewRuleCache() *RuleCache {
	return &RuleCache{
		active: make(map[uint8]*model.RuleSet),
		seen:   make(map[cacheKey]*model.RuleSet),
		subs:   make(map[int]func(Event)),
	}
}

// Put stores a copy of rs as the active rule set of its radio.
func (c *RuleCache) Put(rs *model.RuleSet) error {
	if rs == nil {
		return fmt.Errorf("nil rule set")
	}
	alpha2 := model.NormalizeAlpha2(rs.Alpha2)
	if alpha2 == "" {
		return fmt.Errorf("rule set for phy %d has no country", rs.PhyID)
	}
	cp := rs.Clone()
	cp.Alpha2 = alpha2

	c.mu.Lock()
	c.active[cp.PhyID] = cp
	c.seen[cacheKey{cp.PhyID, alpha2}] = cp
	subs := c.snapshotSubsLocked()
	c.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, Event{Type: EventRulesUpdated, PhyID: cp.PhyID, Alpha2: alpha2})
	return nil
}

// Active returns a copy of the active rule set of a radio, or nil.
func (c *RuleCache) Active(phy uint8) *model.RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active[phy].Clone()
}

// Lookup returns a copy of the rule set previously stored for a radio and
// country, or nil.
func (c *RuleCache) Lookup(phy uint8, alpha2 string) *model.RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seen[cacheKey{phy, model.NormalizeAlpha2(alpha2)}].Clone()
}

// Remove forgets everything cached for a radio.
func (c *RuleCache) Remove(phy uint8) error {
	c.mu.Lock()
	rs, ok := c.active[phy]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: phy %d", model.ErrUnknownRadio, phy)
	}
	delete(c.active, phy)
	for k := range c.seen {
		if k.phy == phy {
			delete(c.seen, k)
		}
	}
	subs := c.snapshotSubsLocked()
	c.mu.Unlock()

	notify(subs, Event{Type: EventRulesRemoved, PhyID: phy, Alpha2: rs.Alpha2})
	return nil
}

// Phys returns the radios with an active rule set, in ascending order.
func (c *RuleCache) Phys() []uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]uint8, 0, len(c.active))
	for phy := range c.active {
		res = append(res, phy)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Countries returns the countries cached for a radio, sorted.
func (c *RuleCache) Countries(phy uint8) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []string
	for k := range c.seen {
		if k.phy == phy {
			res = append(res, k.alpha2)
		}
	}
	sort.Strings(res)
	return res
}

// Subscribe registers a callback for cache events. It returns an
// unsubscribe function; calling it more than once is harmless.
func (c *RuleCache) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *RuleCache) snapshotSubsLocked() []func(Event) {
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
