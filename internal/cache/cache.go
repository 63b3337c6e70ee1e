// Package cache implements the bounded LRU cache of in-memory raster
// tiles: read-through loading on a miss, write-back of dirty tiles on
// eviction, and a prefetch handoff from the background decompression
// assistant.
package cache

import (
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/assistant"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

// Named byte capacities, converted to a tile count against the standard
// (uncompressed) tile size.
const (
	CacheSizeSmall  int64 = 2 * 1024 * 1024
	CacheSizeMedium int64 = 12 * 1024 * 1024
	CacheSizeLarge  int64 = 256 * 1024 * 1024
)

// CacheSizeCustom returns an arbitrary byte capacity.
func CacheSizeCustom(bytes int64) int64 { return bytes }

// Loader reads and decodes a tile synchronously on a cache miss the
// assistant hasn't already resolved.
type Loader interface {
	// LoadTile reads tileIndex's record and decodes it. ok is false if no
	// record exists for tileIndex (never written).
	LoadTile(tileIndex int) (tile *raster.Tile, ok bool, err error)
	// TileByteSize returns the in-memory footprint charged against
	// capacity for one standard-size tile.
	TileByteSize() int64
	// Evict is called once per tile removed from the cache so the owner
	// can write back dirty, non-fill tiles or free all-fill ones.
	Evict(tile *raster.Tile) error
}

type node struct {
	tile *raster.Tile
	prev *node
	next *node
}

// Cache is a single-writer, byte-capacity-bounded LRU of raster
// tiles keyed by tileIndex.
type Cache struct {
	loader     Loader
	assistant  *assistant.Assistant
	capacity   int64
	bytesUsed  int64
	byIndex    map[int]*node
	head, tail *node // head = most-recently-used, tail = least-recently-used
}

// New creates a cache bounded to capacityBytes, converted to a tile count
// via loader.TileByteSize().
func New(loader Loader, asst *assistant.Assistant, capacityBytes int64) *Cache {
	return &Cache{
		loader:    loader,
		assistant: asst,
		capacity:  capacityBytes,
		byIndex:   make(map[int]*node),
	}
}

// Len returns the number of tiles currently cached.
func (c *Cache) Len() int { return len(c.byIndex) }

// Contains reports whether tileIndex is currently held in the cache, without
// affecting LRU order. Used by callers that pin a tile reference across
// calls and must detect that it was since evicted.
func (c *Cache) Contains(tileIndex int) bool {
	_, ok := c.byIndex[tileIndex]
	return ok
}

// BytesUsed returns the current estimated byte footprint of cached tiles.
func (c *Cache) BytesUsed() int64 { return c.bytesUsed }

// GetOrLoad returns the tile for tileIndex, promoting it to
// most-recently-used. On a miss, it first consults the background
// assistant for already-decoded tiles (inserting any returned, target
// last so it stays MRU), then falls back to a synchronous load.
// ok is false only if tileIndex has never been written (pure miss).
func (c *Cache) GetOrLoad(tileIndex int) (tile *raster.Tile, ok bool, err error) {
	if n, found := c.byIndex[tileIndex]; found {
		c.promote(n)
		return n.tile, true, nil
	}

	if c.assistant != nil {
		results := c.assistant.Drain()
		var target *raster.Tile
		var targetErr error
		for _, r := range results {
			if r.TileIndex == tileIndex {
				target = r.Tile
				targetErr = r.Err
				continue // insert target last, below
			}
			// A tile already resident stays authoritative: it may carry
			// dirty writes newer than the prefetched decode.
			if r.Err == nil && !c.Contains(r.TileIndex) {
				c.insert(r.Tile)
				if evErr := c.evictToCapacity(); evErr != nil {
					return nil, false, evErr
				}
			}
		}
		if target != nil {
			c.insert(target)
			if evErr := c.evictToCapacity(); evErr != nil {
				return nil, false, evErr
			}
			return target, true, nil
		}
		if targetErr != nil {
			return nil, false, targetErr
		}
	}

	t, found, err := c.loader.LoadTile(tileIndex)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	c.insert(t)
	if evErr := c.evictToCapacity(); evErr != nil {
		return nil, false, evErr
	}
	return t, true, nil
}

// Put inserts or replaces a newly created/written tile (first write) and
// evicts if the cache is now over capacity.
func (c *Cache) Put(tile *raster.Tile) error {
	c.insert(tile)
	return c.evictToCapacity()
}

func (c *Cache) insert(tile *raster.Tile) {
	if n, found := c.byIndex[tile.TileIndex]; found {
		n.tile = tile
		c.promote(n)
		return
	}
	n := &node{tile: tile}
	c.byIndex[tile.TileIndex] = n
	c.pushFront(n)
	c.bytesUsed += c.loader.TileByteSize()
}

func (c *Cache) evictToCapacity() error {
	for c.bytesUsed > c.capacity && c.tail != nil {
		victim := c.tail
		c.removeNode(victim)
		delete(c.byIndex, victim.tile.TileIndex)
		c.bytesUsed -= c.loader.TileByteSize()
		if err := c.loader.Evict(victim.tile); err != nil {
			return fmt.Errorf("cache: evicting tile %d: %w", victim.tile.TileIndex, err)
		}
	}
	return nil
}

// Remove drops tileIndex from the cache without writeback, for a tile the
// owner has already persisted or no longer needs.
func (c *Cache) Remove(tileIndex int) {
	n, ok := c.byIndex[tileIndex]
	if !ok {
		return
	}
	c.removeNode(n)
	delete(c.byIndex, tileIndex)
	c.bytesUsed -= c.loader.TileByteSize()
}

// All returns every cached tile, in no particular order. Used by Flush.
func (c *Cache) All() []*raster.Tile {
	out := make([]*raster.Tile, 0, len(c.byIndex))
	for n := c.head; n != nil; n = n.next {
		out = append(out, n.tile)
	}
	return out
}

func (c *Cache) promote(n *node) {
	if c.head == n {
		return
	}
	c.removeNode(n)
	c.pushFront(n)
}

func (c *Cache) pushFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
