package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Free page list
// ───────────────────────────────────────────────────────────────────────────
//
// Freed pages are tracked as a singly-linked chain of directory pages, each
// holding a flat array of reclaimable PageIDs:
//
//   [0:32]   Common PageHeader (Type=FreeList)
//   [32:36]  Next     (uint32 LE) — next directory page, 0 = end of chain
//   [36:40]  Count    (uint32 LE) — number of PageID slots used
//   [40:40+4*Count]   PageID slots (uint32 LE each)
//
// AllocPage always prefers a page off this list before extending the file;
// FreePage always pushes onto it. The list itself only exists on disk
// between a Flush and the next reopen — while the pager is live it keeps
// the full free set in memory and rewrites the chain from scratch on
// Flush, rather than maintaining per-operation disk mutations.

const (
	freeDirNextOff  = PageHeaderSize       // 32
	freeDirCountOff = freeDirNextOff + 4   // 36
	freeDirSlotsOff = freeDirCountOff + 4  // 40
	freeDirSlotSize = 4
)

// freeDirCapacity returns how many PageID slots fit in one directory page.
func freeDirCapacity(pageSize int) int {
	return (pageSize - freeDirSlotsOff) / freeDirSlotSize
}

// freeListDir wraps a page buffer as one free-list directory page.
type freeListDir struct {
	buf []byte
}

// WrapFreeListPage wraps an existing free-list directory buffer.
func WrapFreeListPage(buf []byte) *freeListDir {
	return &freeListDir{buf: buf}
}

// InitFreeListPage initializes buf as a fresh, empty directory page.
func InitFreeListPage(buf []byte, id PageID) *freeListDir {
	MarshalHeader(&PageHeader{Type: PageTypeFreeList, ID: id}, buf)
	binary.LittleEndian.PutUint32(buf[freeDirNextOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[freeDirCountOff:], 0)
	return &freeListDir{buf: buf}
}

func (d *freeListDir) NextFreeList() PageID {
	return PageID(binary.LittleEndian.Uint32(d.buf[freeDirNextOff:]))
}

func (d *freeListDir) SetNextFreeList(pid PageID) {
	binary.LittleEndian.PutUint32(d.buf[freeDirNextOff:], uint32(pid))
}

func (d *freeListDir) EntryCount() int {
	return int(binary.LittleEndian.Uint32(d.buf[freeDirCountOff:]))
}

func (d *freeListDir) GetEntry(i int) PageID {
	off := freeDirSlotsOff + i*freeDirSlotSize
	return PageID(binary.LittleEndian.Uint32(d.buf[off:]))
}

// AddEntry appends a PageID slot, reporting false once the page is full.
func (d *freeListDir) AddEntry(pid PageID) bool {
	n := d.EntryCount()
	if n >= freeDirCapacity(len(d.buf)) {
		return false
	}
	off := freeDirSlotsOff + n*freeDirSlotSize
	binary.LittleEndian.PutUint32(d.buf[off:], uint32(pid))
	binary.LittleEndian.PutUint32(d.buf[freeDirCountOff:], uint32(n+1))
	return true
}

func (d *freeListDir) allEntries() []PageID {
	n := d.EntryCount()
	ids := make([]PageID, n)
	for i := 0; i < n; i++ {
		ids[i] = d.GetEntry(i)
	}
	return ids
}

func (d *freeListDir) Bytes() []byte { return d.buf }

// ───────────────────────────────────────────────────────────────────────────
// FreeManager — the in-memory reclaimable-page set
// ───────────────────────────────────────────────────────────────────────────

// FreeManager holds every page id currently available for reuse. The set
// lives in memory for the lifetime of an open Pager; LoadFromDisk seeds it
// from the directory chain on open, FlushToDisk rewrites that chain (there
// is no incremental on-disk update — the whole set is small compared to
// the tree pages it tracks).
type FreeManager struct {
	set map[PageID]struct{}
}

// NewFreeManager creates an empty FreeManager. Call LoadFromDisk to seed it
// from an existing database.
func NewFreeManager() *FreeManager {
	return &FreeManager{set: map[PageID]struct{}{}}
}

// LoadFromDisk walks the directory chain rooted at head, adding every
// listed PageID to the set. readPage fetches one page's bytes by id.
func (fm *FreeManager) LoadFromDisk(head PageID, readPage func(PageID) ([]byte, error)) error {
	for pid := head; pid != InvalidPageID; {
		buf, err := readPage(pid)
		if err != nil {
			return err
		}
		dir := WrapFreeListPage(buf)
		for _, id := range dir.allEntries() {
			fm.set[id] = struct{}{}
		}
		pid = dir.NextFreeList()
	}
	return nil
}

// Alloc removes and returns an arbitrary free page id, or InvalidPageID if
// the set is empty.
func (fm *FreeManager) Alloc() PageID {
	for pid := range fm.set {
		delete(fm.set, pid)
		return pid
	}
	return InvalidPageID
}

// Free adds pid to the reclaimable set.
func (fm *FreeManager) Free(pid PageID) {
	fm.set[pid] = struct{}{}
}

// Count reports how many pages are currently reclaimable.
func (fm *FreeManager) Count() int { return len(fm.set) }

// AllFree returns every reclaimable page id, order unspecified.
func (fm *FreeManager) AllFree() []PageID {
	ids := make([]PageID, 0, len(fm.set))
	for pid := range fm.set {
		ids = append(ids, pid)
	}
	return ids
}

// FlushToDisk serializes the current free set into freshly allocated
// directory pages (via allocPage, which returns a zeroed buffer with a new
// id) and returns the head of the new chain plus the page buffers to
// persist. An empty set flushes to InvalidPageID and no pages.
func (fm *FreeManager) FlushToDisk(pageSize int, allocPage func() (PageID, []byte)) (PageID, [][]byte) {
	ids := fm.AllFree()
	if len(ids) == 0 {
		return InvalidPageID, nil
	}

	capacity := freeDirCapacity(pageSize)
	var pages [][]byte
	var head PageID
	var prev *freeListDir

	for start := 0; start < len(ids); start += capacity {
		end := start + capacity
		if end > len(ids) {
			end = len(ids)
		}
		pid, buf := allocPage()
		dir := InitFreeListPage(buf, pid)
		for _, id := range ids[start:end] {
			dir.AddEntry(id)
		}
		SetPageCRC(buf)
		pages = append(pages, buf)

		if prev == nil {
			head = pid
		} else {
			prev.SetNextFreeList(pid)
			SetPageCRC(prev.Bytes())
		}
		prev = dir
	}

	return head, pages
}
