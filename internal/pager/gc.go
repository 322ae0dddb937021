package pager

import (
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Garbage collection (VACUUM)
// ───────────────────────────────────────────────────────────────────────────
//
// GC performs a reachability scan over every allocated page, starting from
// the superblock, the free list's own directory chain, and whatever tree
// roots the caller supplies. Any allocated page that isn't visited and
// isn't already free is an orphan and gets added to the free list.
//
// Pager has no notion of what a tree entry looks like — that schema
// knowledge belongs to internal/btree, the only layer that can decode a
// page's children. GC is therefore parameterized over two small interfaces
// the caller injects, rather than reaching into a fixed tree layout itself.

// RootProvider supplies the page IDs of every tree root that must be
// considered reachable for a GC pass.
type RootProvider interface {
	Roots() ([]PageID, error)
}

// NodeWalker decodes one tree page far enough to report the child page IDs
// it references. It returns ok=false for a page it doesn't recognize (e.g.
// a page of a different type reached by a bad root).
type NodeWalker interface {
	Walk(buf []byte) (children []PageID, ok bool)
}

// GCResult holds statistics about a garbage collection run.
type GCResult struct {
	TotalPages     int      // total allocated pages in the file
	ReachablePages int      // pages reachable from roots
	FreeBefore     int      // free pages before GC
	FreeAfter      int      // free pages after GC
	Reclaimed      int      // newly freed orphan pages
	Errors         []string // non-fatal issues found during the scan
}

// GC performs a full reachability-based garbage collection pass. It must be
// called with no other writers active. GC never shrinks the file — orphans
// are added to the free list for later reuse.
func (p *Pager) GC(roots RootProvider, walker NodeWalker) (*GCResult, error) {
	p.mu.Lock()

	sb := p.sb
	totalPages := int(sb.NextPageID) // NextPageID is the high-water mark
	if totalPages < 1 {
		p.mu.Unlock()
		return &GCResult{}, nil
	}

	result := &GCResult{
		TotalPages: totalPages,
		FreeBefore: p.freeMgr.Count(),
	}

	reachable := make(map[PageID]struct{}, totalPages)
	reachable[0] = struct{}{} // the superblock

	treeRoots, err := roots.Roots()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("root scan: %v", err))
	}
	for _, rootID := range treeRoots {
		p.walkTree(rootID, reachable, walker, result)
	}
	p.walkFreeListChain(sb.FreeListRoot, reachable)

	result.ReachablePages = len(reachable)

	freeSet := make(map[PageID]struct{}, p.freeMgr.Count())
	for _, pid := range p.freeMgr.AllFree() {
		freeSet[pid] = struct{}{}
	}

	var reclaimed int
	for pid := PageID(0); pid < PageID(totalPages); pid++ {
		if _, ok := reachable[pid]; ok {
			continue
		}
		if _, ok := freeSet[pid]; ok {
			continue
		}
		p.freeMgr.Free(pid)
		reclaimed++
	}

	result.Reclaimed = reclaimed
	result.FreeAfter = p.freeMgr.Count()
	p.mu.Unlock()

	// Checkpoint takes its own lock, so it must run after ours is released.
	if reclaimed > 0 {
		if err := p.Checkpoint(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("checkpoint: %v", err))
		}
	}

	return result, nil
}

// walkTree recursively marks all pages of one tree as reachable.
func (p *Pager) walkTree(pid PageID, reachable map[PageID]struct{}, walker NodeWalker, result *GCResult) {
	if pid == InvalidPageID {
		return
	}
	if _, seen := reachable[pid]; seen {
		return // cycle guard
	}
	reachable[pid] = struct{}{}

	buf, err := p.readPageCached(pid)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read page %d: %v", pid, err))
		return
	}
	defer p.UnpinPage(pid)

	children, ok := walker.Walk(buf)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("page %d: not a recognized tree page", pid))
		return
	}
	for _, child := range children {
		p.walkTree(child, reachable, walker, result)
	}
}

func (p *Pager) walkFreeListChain(headID PageID, reachable map[PageID]struct{}) {
	pid := headID
	for pid != InvalidPageID {
		if _, seen := reachable[pid]; seen {
			break
		}
		reachable[pid] = struct{}{}

		buf, err := p.readPageCached(pid)
		if err != nil {
			break
		}
		dir := WrapFreeListPage(buf)
		next := dir.NextFreeList()
		p.UnpinPage(pid)
		pid = next
	}
}
