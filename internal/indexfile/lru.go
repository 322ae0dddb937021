package indexfile

import (
	"container/list"
	"log"

	"github.com/ngina/bplusindex/internal/btree"
	"github.com/ngina/bplusindex/internal/pager"
)

// minCacheFloor is the smallest page-object cache the driver runs with
// (§4.6): below this floor a cursor re-descending the tree on every
// mark/rewind would thrash against the pager's own buffer pool instead of
// this one.
const minCacheFloor = 5

type cacheKey struct {
	tree subtreeKey
	pid  pager.PageID
}

type cacheEntry struct {
	key     cacheKey
	page    *btree.Page
	release func()
}

// pageCache is a bounded least-recently-used cache of attached page
// objects (attachPage, §4.6), evicting the least-recently-used unpinned
// entry once it holds more than floor pages. No ecosystem library in the
// retrieved corpus addresses a bounded-LRU concern, so this is hand-rolled
// over the standard library's container/list rather than an invented
// third-party dependency.
type pageCache struct {
	floor  int
	order  *list.List
	index  map[cacheKey]*list.Element
	pinned map[cacheKey]int
}

func newPageCache(floor int) *pageCache {
	if floor < minCacheFloor {
		floor = minCacheFloor
	}
	return &pageCache{
		floor:  floor,
		order:  list.New(),
		index:  make(map[cacheKey]*list.Element),
		pinned: make(map[cacheKey]int),
	}
}

// attachPage returns the cached page object for key, loading it through
// load on a miss and registering release to be called when the entry is
// eventually evicted.
func (c *pageCache) attachPage(key cacheKey, load func() (*btree.Page, error), release func()) (*btree.Page, error) {
	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).page, nil
	}
	page, err := load()
	if err != nil {
		return nil, err
	}
	el := c.order.PushFront(&cacheEntry{key: key, page: page, release: release})
	c.index[key] = el
	c.evictIfOver()
	return page, nil
}

// pin marks key as referenced by a cursor's mark() snapshot, excluding it
// from eviction until the matching unpin.
func (c *pageCache) pin(key cacheKey) { c.pinned[key]++ }

func (c *pageCache) unpin(key cacheKey) {
	if c.pinned[key] > 0 {
		c.pinned[key]--
		if c.pinned[key] == 0 {
			delete(c.pinned, key)
		}
	}
}

func (c *pageCache) evictIfOver() {
	for c.order.Len() > c.floor {
		el := c.order.Back()
		for el != nil && c.pinned[el.Value.(*cacheEntry).key] > 0 {
			el = el.Prev()
		}
		if el == nil {
			log.Printf("indexfile: page cache over floor (%d entries, floor %d) but every entry is pinned", c.order.Len(), c.floor)
			return
		}
		ce := el.Value.(*cacheEntry)
		c.order.Remove(el)
		delete(c.index, ce.key)
		ce.release()
	}
}

// clear evicts every entry unconditionally, releasing each one — used by
// File.Close.
func (c *pageCache) clear() {
	for el := c.order.Front(); el != nil; el = el.Next() {
		el.Value.(*cacheEntry).release()
	}
	c.order.Init()
	c.index = make(map[cacheKey]*list.Element)
	c.pinned = make(map[cacheKey]int)
}
