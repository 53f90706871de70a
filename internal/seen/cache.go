// Package seen implements the bounded change-detection cache that remembers
// which feed entries have already been observed.
package seen

import (
	"container/list"

	"feed_notifier/internal/model"
)

// DefaultCapacity is the number of identifiers kept when no capacity is set.
const DefaultCapacity = 500

type record struct {
	id    string
	title string
}

// Cache maps entry identifiers to their last known title. Eviction follows
// insertion order: updating a title or re-observing an entry does not move
// it. A Cache is owned by a single poller and is not safe for concurrent use.
type Cache struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// New creates an empty Cache holding at most capacity identifiers after each
// Prune. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Observe records an entry and reports how it differs from the previous
// observation. The boolean is false when the entry is unchanged.
func (c *Cache) Observe(id, title string) (model.ChangeKind, bool) {
	el, ok := c.index[id]
	if !ok {
		c.index[id] = c.order.PushBack(&record{id: id, title: title})
		return model.ChangeNew, true
	}

	rec := el.Value.(*record)
	if rec.title == title {
		return "", false
	}
	rec.title = title
	return model.ChangeEdited, true
}

// Prune evicts the oldest-inserted identifiers until the cache fits its
// capacity and returns how many were removed.
func (c *Cache) Prune() int {
	removed := 0
	for c.order.Len() > c.capacity {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.index, front.Value.(*record).id)
		removed++
	}
	return removed
}

// Detect observes entries in order and returns those that are new or edited,
// then prunes the cache.
func (c *Cache) Detect(entries []model.Entry) []model.Change {
	var changes []model.Change
	for _, e := range entries {
		if kind, changed := c.Observe(e.ID, e.Title); changed {
			changes = append(changes, model.Change{Entry: e, Kind: kind})
		}
	}
	c.Prune()
	return changes
}

// Baseline records entries without reporting any change, then prunes the
// cache. It returns the resulting cache size.
func (c *Cache) Baseline(entries []model.Entry) int {
	for _, e := range entries {
		c.Observe(e.ID, e.Title)
	}
	c.Prune()
	return c.Len()
}

// Len returns the number of identifiers currently held.
func (c *Cache) Len() int {
	return c.order.Len()
}

// Capacity returns the configured bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Title returns the stored title for id.
func (c *Cache) Title(id string) (string, bool) {
	el, ok := c.index[id]
	if !ok {
		return "", false
	}
	return el.Value.(*record).title, true
}

// IDs returns the stored identifiers from oldest to newest.
func (c *Cache) IDs() []string {
	ids := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*record).id)
	}
	return ids
}
