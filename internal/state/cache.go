// Package state holds the last known state of the four sockets.
//
// The cache publishes an immutable snapshot through an atomic pointer. Readers
// load the current snapshot and never block; writers build a copy, publish it
// in one step and then notify observers of the sockets whose power or name
// actually changed. A reader therefore never sees half of a poll result.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/logging"
)

// Change describes one socket whose observable value changed.
type Change struct {
	ID  device.SocketID
	Old device.SocketRecord
	New device.SocketRecord
}

// PowerChanged reports whether the power field differs.
func (c Change) PowerChanged() bool {
	return c.Old.Power != c.New.Power
}

// NameChanged reports whether the name field differs.
func (c Change) NameChanged() bool {
	return c.Old.Name != c.New.Name
}

// Observer is called once per changed socket.
type Observer func(Change)

type snapshot [device.NumSockets]device.SocketRecord

func defaultSnapshot() *snapshot {
	var s snapshot
	for i, id := range device.AllSockets() {
		s[i] = device.NewSocketRecord(id)
	}
	return &s
}

type subscription struct {
	id int
	fn Observer
}

// Cache owns the four socket records.
// Cache instances are safe for concurrent use.
type Cache struct {
	current atomic.Pointer[snapshot]

	// mu serializes writers and guards the observer list
	mu        sync.Mutex
	observers []subscription
	nextID    int
}

// New creates a cache with every socket Unset and carrying its default name.
func New() *Cache {
	c := &Cache{}
	c.current.Store(defaultSnapshot())
	return c
}

// Get returns the record for one socket.
func (c *Cache) Get(id device.SocketID) (device.SocketRecord, error) {
	if !id.Valid() {
		return device.SocketRecord{}, device.NewInvalidArgumentError("socket id out of range 1-4")
	}
	return c.current.Load()[id-1], nil
}

// GetAll returns all four records, ordered by id.
func (c *Cache) GetAll() [device.NumSockets]device.SocketRecord {
	return *c.current.Load()
}

// Apply merges delta into the cache. Fields absent from the delta are left
// as they are and ids outside 1-4 are ignored. Observers are notified once
// per socket that changed, after the new snapshot is visible to readers.
func (c *Cache) Apply(delta device.Delta) []Change {
	if len(delta) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current.Load()
	next := *old
	for id, upd := range delta {
		if !id.Valid() {
			continue
		}
		rec := &next[id-1]
		if upd.Power != device.PowerUnset {
			rec.Power = upd.Power
		}
		if upd.Name != "" {
			rec.Name = upd.Name
		}
	}

	return c.publish(old, &next)
}

// Reset puts every socket back to Unset with its default name.
func (c *Cache) Reset() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.publish(c.current.Load(), defaultSnapshot())
}

// Subscribe registers fn for change notifications. Observers run synchronously
// on the writing goroutine, in registration order. They may read the cache but
// must not call Apply, Reset, Subscribe or a cancel function from inside the
// callback. The returned function removes the registration.
func (c *Cache) Subscribe(fn Observer) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.observers = append(c.observers, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, sub := range c.observers {
				if sub.id == id {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// publish must be called with mu held.
func (c *Cache) publish(old, next *snapshot) []Change {
	var changes []Change
	for i := range next {
		if old[i] != next[i] {
			changes = append(changes, Change{ID: next[i].ID, Old: old[i], New: next[i]})
		}
	}
	if len(changes) == 0 {
		return nil
	}

	c.current.Store(next)

	for _, ch := range changes {
		logging.LogStateChange(int(ch.ID), ch.New.Name, ch.Old.Power.String(), ch.New.Power.String())
		for _, sub := range c.observers {
			sub.fn(ch)
		}
	}
	return changes
}
