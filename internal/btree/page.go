// Package btree implements the page object (C4) and tree object (C5): a
// generic entry-model B+tree built on the pager's slotted-page primitive,
// parameterized by an entry.Schema and a collate.Comparator so the same
// machinery serves the Array, B-tree, and Bitmap index flavors.
package btree

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/collate"
	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/pager"
)

// prevPIDOff/nextPIDOff place the leaf sibling chain inside the common page
// header's reserved Pad bytes (offsets 20..32), since the generic pager
// page header has no flavor-specific fields of its own.
const (
	prevPIDOff = 20
	nextPIDOff = 24
)

// Page wraps a pager slotted page with the entry model's ordering
// invariant: after every mutation, slot i holds the i-th entry in
// ascending key order (mutations achieve this by tombstoning and
// reinserting in sorted order, which the underlying slot allocator hands
// back starting at index 0 — see rewrite).
type Page struct {
	sp     *pager.SlottedPage
	schema entry.Schema
	keyCmp *collate.Comparator
}

// Wrap adapts an existing page buffer.
func Wrap(buf []byte, schema entry.Schema, keyCmp *collate.Comparator) *Page {
	return &Page{sp: pager.WrapSlottedPage(buf), schema: schema, keyCmp: keyCmp}
}

// Init formats buf as an empty leaf or internal page.
func Init(buf []byte, leaf bool, id pager.PageID, schema entry.Schema, keyCmp *collate.Comparator) *Page {
	pt := pager.PageTypeBTreeInternal
	if leaf {
		pt = pager.PageTypeBTreeLeaf
	}
	sp := pager.InitSlottedPage(buf, pt, id)
	p := &Page{sp: sp, schema: schema, keyCmp: keyCmp}
	p.SetPrevPID(pager.InvalidPageID)
	p.SetNextPID(pager.InvalidPageID)
	return p
}

func (p *Page) Bytes() []byte { return p.sp.Bytes() }

func (p *Page) IsLeaf() bool {
	h := pager.UnmarshalHeader(p.sp.Bytes())
	return h.Type == pager.PageTypeBTreeLeaf
}

func (p *Page) ID() pager.PageID {
	return pager.UnmarshalHeader(p.sp.Bytes()).ID
}

func (p *Page) PrevPID() pager.PageID {
	return pager.PageID(le32(p.sp.Bytes()[prevPIDOff:]))
}

func (p *Page) SetPrevPID(id pager.PageID) {
	putLe32(p.sp.Bytes()[prevPIDOff:], uint32(id))
}

func (p *Page) NextPID() pager.PageID {
	return pager.PageID(le32(p.sp.Bytes()[nextPIDOff:]))
}

func (p *Page) SetNextPID(id pager.PageID) {
	putLe32(p.sp.Bytes()[nextPIDOff:], uint32(id))
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Count returns the number of live (non-tombstone) entries.
func (p *Page) Count() int { return p.sp.LiveRecords() }

// FreeSpace returns the page's available byte budget for new entries.
func (p *Page) FreeSpace() int { return p.sp.FreeSpace() }

// UsedSpace approximates bytes consumed by live entry payloads (not
// counting the slot directory), used by expand/reduce's half/third/mean
// thresholds.
func (p *Page) UsedSpace() int {
	used := 0
	for _, e := range p.Entries() {
		used += len(e)
	}
	return used
}

// Entries returns every live entry in ascending key order.
func (p *Page) Entries() [][]byte {
	n := p.sp.SlotCount()
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if p.sp.IsDeleted(i) {
			continue
		}
		out = append(out, p.sp.GetRecord(i))
	}
	return out
}

// keyOf extracts the comparator-visible key bytes of an entry: the leaf
// field prefix for leaf entries (header stripped), or the node-entry key
// bytes (child_pid stripped) for internal entries.
func (p *Page) keyOf(e []byte) ([]byte, error) {
	if p.IsLeaf() {
		return entry.LeafKeyBytes(p.schema, e)
	}
	return entry.NodeEntryKeyBytes(e), nil
}

// LowerBound returns the index of the least entry whose key is >= probeKey.
// probeKey may encode only a leading subset of the comparator's fields — a
// single-column search condition (§4.6/§4.7) never carries the trailing
// rowid/array_index fields a multi-field node key also orders by — in which
// case every key sharing that leading prefix compares equal to it (see
// collate.Comparator.ComparePartial). Returns Count() if every entry is
// smaller. On an internal page the result instead names the child to
// descend into: the entry before that least entry, unless that entry's key
// is probeKey itself (the first key of its own child).
func (p *Page) LowerBound(probeKey []byte) (int, error) {
	entries := p.Entries()
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := p.keyOf(entries[mid])
		if err != nil {
			return 0, err
		}
		cmp, err := p.keyCmp.ComparePartial(k, probeKey)
		if err != nil {
			return 0, err
		}
		if cmp < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if !p.IsLeaf() && lo > 0 {
		// Nodes store a lower key covering the smallest-equal-or-greater
		// child: step back one so descent routes into the right subtree,
		// except when the entry at lo is probeKey itself, the first key of
		// child lo.
		stepBack := true
		if lo < len(entries) {
			k, err := p.keyOf(entries[lo])
			if err != nil {
				return 0, err
			}
			stepBack = !bytesEqual(k, probeKey)
		}
		if stepBack {
			lo--
		}
	}
	return lo, nil
}

// UpperBound returns the index of the least entry whose key is > probeKey;
// UpperBoundComparePartial treats an entry equal to probeKey as smaller, so
// equal entries are always skipped. On an internal page the index is
// stepped back one entry (when there is one before it) to name the child
// to descend into. probeKey may be a leading-field-only partial probe; see
// LowerBound.
func (p *Page) UpperBound(probeKey []byte) (int, error) {
	entries := p.Entries()
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := p.keyOf(entries[mid])
		if err != nil {
			return 0, err
		}
		cmp, err := p.keyCmp.UpperBoundComparePartial(k, probeKey)
		if err != nil {
			return 0, err
		}
		if cmp <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if !p.IsLeaf() && lo > 0 {
		lo--
	}
	return lo, nil
}

// FindUnique returns the entry exactly matching probeKey, or ok=false.
func (p *Page) FindUnique(probeKey []byte) (e []byte, idx int, ok bool, err error) {
	idx, err = p.LowerBound(probeKey)
	if err != nil {
		return nil, 0, false, err
	}
	entries := p.Entries()
	if idx >= len(entries) {
		return nil, idx, false, nil
	}
	k, err := p.keyOf(entries[idx])
	if err != nil {
		return nil, 0, false, err
	}
	cmp, err := p.keyCmp.Compare(k, probeKey)
	if err != nil {
		return nil, 0, false, err
	}
	if cmp != 0 {
		return nil, idx, false, nil
	}
	return entries[idx], idx, true, nil
}

// ErrPageFull signals that an insert could not fit and the caller (the tree
// object) must run expand (split or redistribute) and retry.
var ErrPageFull = fmt.Errorf("btree: page full")

// Insert adds e to the page in sorted position. Returns ErrPageFull if e
// does not fit; the caller must split/redistribute and retry.
func (p *Page) Insert(e []byte) error {
	if p.sp.FreeSpace() < len(e)+4 {
		return ErrPageFull
	}
	entries := p.Entries()
	key, err := p.keyOf(e)
	if err != nil {
		return err
	}
	pos := len(entries)
	for i, existing := range entries {
		k, err := p.keyOf(existing)
		if err != nil {
			return err
		}
		cmp, err := p.keyCmp.Compare(k, key)
		if err != nil {
			return err
		}
		if cmp > 0 {
			pos = i
			break
		}
	}
	newEntries := make([][]byte, 0, len(entries)+1)
	newEntries = append(newEntries, entries[:pos]...)
	newEntries = append(newEntries, e)
	newEntries = append(newEntries, entries[pos:]...)
	return p.rewrite(newEntries)
}

// Expunge removes the entry exactly matching probeKey. Returns ok=false if
// no such entry exists.
func (p *Page) Expunge(probeKey []byte) (ok bool, err error) {
	entries := p.Entries()
	pos := -1
	for i, e := range entries {
		k, err := p.keyOf(e)
		if err != nil {
			return false, err
		}
		cmp, err := p.keyCmp.Compare(k, probeKey)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			pos = i
			break
		}
	}
	if pos == -1 {
		return false, nil
	}
	newEntries := append(append([][]byte{}, entries[:pos]...), entries[pos+1:]...)
	if err := p.rewrite(newEntries); err != nil {
		return false, err
	}
	return true, nil
}

// rewrite replaces every live slot with entries, in order, so slot i again
// equals entries[i] (the ordering invariant Entries()/LowerBound rely on).
func (p *Page) rewrite(entries [][]byte) error {
	sc := p.sp.SlotCount()
	for i := 0; i < sc; i++ {
		if !p.sp.IsDeleted(i) {
			_ = p.sp.DeleteRecord(i)
		}
	}
	p.sp.Compact()
	for _, e := range entries {
		if _, err := p.sp.InsertRecord(e); err != nil {
			return fmt.Errorf("btree: rewrite: %w", err)
		}
	}
	return nil
}

// ReplaceAll is the exported form of rewrite, used by the tree object when
// redistributing or concatenating entries across a page boundary.
func (p *Page) ReplaceAll(entries [][]byte) error { return p.rewrite(entries) }

// FirstKey returns the key bytes of the page's first live entry.
func (p *Page) FirstKey() ([]byte, error) {
	entries := p.Entries()
	if len(entries) == 0 {
		return nil, fmt.Errorf("btree: page has no entries")
	}
	return p.keyOf(entries[0])
}
