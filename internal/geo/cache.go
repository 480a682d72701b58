package geo

import "sync"

// zoneLRU is a thread-safe LRU cache mapping UGC zone codes to ZIP lists.
// It sits in front of the persistent zone cache so repeated zone codes within
// a process lifetime never touch the database.
type zoneLRU struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*zoneEntry
	head       *zoneEntry // most recently used
	tail       *zoneEntry // least recently used
}

type zoneEntry struct {
	key  string
	zips []string
	prev *zoneEntry
	next *zoneEntry
}

func newZoneLRU(maxEntries int) *zoneLRU {
	return &zoneLRU{
		maxEntries: maxEntries,
		entries:    make(map[string]*zoneEntry),
	}
}

func (c *zoneLRU) get(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.zips, true
}

func (c *zoneLRU) put(key string, zips []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.zips = zips
		c.moveToFront(e)
		return
	}

	e := &zoneEntry{key: key, zips: zips}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *zoneLRU) moveToFront(e *zoneEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *zoneLRU) addToFront(e *zoneEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *zoneLRU) remove(e *zoneEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *zoneLRU) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
