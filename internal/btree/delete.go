package btree

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/pager"
)

// Delete removes the first entry whose key prefix matches probeKey,
// reducing pages that drop below half-full and collapsing the root when
// it becomes a single-child internal page; a root leaf emptied by the
// delete stays in place as the empty tree. Returns ok=false if no matching
// entry exists.
func (t *Tree) Delete(probeKey []byte) (ok bool, err error) {
	path, err := t.descend(probeKey)
	if err != nil {
		return false, err
	}
	leafLevel := len(path) - 1
	leafPID := path[leafLevel].pid

	p, err := t.loadPage(leafPID)
	if err != nil {
		return false, err
	}
	oldFirstKey, hadEntries, err := firstKeyOf(p)
	if err != nil {
		return false, err
	}

	removed, err := p.Expunge(probeKey)
	if err != nil {
		return false, err
	}
	if !removed {
		t.pgr.UnpinPage(leafPID)
		return false, nil
	}
	if err := t.savePage(p); err != nil {
		return false, err
	}

	t.hdr.Count--

	if leafPID == t.hdr.RootPID {
		// Root leaf: nothing to merge with; an empty root leaf is a valid
		// empty tree.
		if err := t.saveHeader(); err != nil {
			return false, err
		}
		return true, nil
	}

	newFirstKey, stillHasEntries, err := t.pageFirstKeyOrNil(leafPID)
	if err != nil {
		return false, err
	}
	if hadEntries && stillHasEntries && !bytesEqual(oldFirstKey, newFirstKey) {
		if err := t.propagateKeyChange(path, newFirstKey); err != nil {
			return false, err
		}
	}

	if err := t.reduceIfNeeded(path, leafLevel); err != nil {
		return false, err
	}

	if err := t.collapseRootIfNeeded(); err != nil {
		return false, err
	}

	return true, t.saveHeader()
}

func firstKeyOf(p *Page) ([]byte, bool, error) {
	entries := p.Entries()
	if len(entries) == 0 {
		return nil, false, nil
	}
	k, err := p.keyOf(entries[0])
	if err != nil {
		return nil, false, err
	}
	return k, true, nil
}

// reduceIfNeeded checks the page at path[level] and, if it has fallen
// below half its used-space budget, merges it with an immediate sibling
// under the same parent (concatenate) or rebalances with one
// (redistribute), per the expand/reduce pairing (§4.4.2's counterpart to
// 4.4.1). Sibling search is restricted to siblings sharing the page's
// direct parent — a deliberate scope simplification, see DESIGN.md.
func (t *Tree) reduceIfNeeded(path []pathEntry, level int) error {
	if level == 0 {
		return nil // root has no siblings to merge with
	}
	pid := path[level].pid
	p, err := t.loadPage(pid)
	if err != nil {
		return err
	}
	pageSize := t.pgr.PageSize()
	if p.FreeSpace() < pageSize/2 {
		t.pgr.UnpinPage(pid)
		return nil
	}

	parentPID := path[level-1].pid
	parent, err := t.loadPage(parentPID)
	if err != nil {
		return err
	}
	entries := parent.Entries()
	idx := -1
	for i, e := range entries {
		cpid, gerr := t.getPageID(e)
		if gerr != nil {
			t.pgr.UnpinPage(parentPID)
			return gerr
		}
		if cpid == pid {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.pgr.UnpinPage(parentPID)
		return fmt.Errorf("btree: reduceIfNeeded: child %d not found in parent %d", pid, parentPID)
	}

	var leftPID, rightPID pager.PageID = pager.InvalidPageID, pager.InvalidPageID
	if idx > 0 {
		leftPID, _ = t.getPageID(entries[idx-1])
	}
	if idx < len(entries)-1 {
		rightPID, _ = t.getPageID(entries[idx+1])
	}
	if leftPID == pager.InvalidPageID && rightPID == pager.InvalidPageID {
		// Only child of its parent: nothing to merge or redistribute with.
		return nil
	}

	if leftPID != pager.InvalidPageID {
		left, err := t.loadPage(leftPID)
		if err != nil {
			return err
		}
		if left.FreeSpace() > pageSize/2 {
			return t.concatenate(path, level, idx, left, p)
		}
		return t.redistribute(left, p, parentPID, idx)
	}

	right, err := t.loadPage(rightPID)
	if err != nil {
		return err
	}
	if right.FreeSpace() > pageSize/2 {
		return t.concatenate(path, level, idx+1, p, right)
	}
	return t.redistribute(p, right, parentPID, idx+1)
}

// concatenate moves all of right's entries into left, fixes up leaf
// sibling pointers and the tree's right_leaf_pid bookkeeping, removes
// right's node entry (at rightIdx in the parent) from the parent, frees
// right's page, and recurses one level up in case the parent itself now
// needs reducing.
func (t *Tree) concatenate(path []pathEntry, level, rightIdx int, left, right *Page) error {
	merged := append(append([][]byte{}, left.Entries()...), right.Entries()...)
	if err := left.ReplaceAll(merged); err != nil {
		return err
	}
	if left.IsLeaf() {
		left.SetNextPID(right.NextPID())
		if right.NextPID() != pager.InvalidPageID {
			nextPage, err := t.loadPage(right.NextPID())
			if err != nil {
				return err
			}
			nextPage.SetPrevPID(left.ID())
			if err := t.savePage(nextPage); err != nil {
				return err
			}
		}
		if t.hdr.RightLeafPID == right.ID() {
			t.hdr.RightLeafPID = left.ID()
		}
		if t.hdr.LeftLeafPID == right.ID() {
			t.hdr.LeftLeafPID = left.ID()
		}
	}
	freedPID := right.ID()
	if err := t.savePage(left); err != nil {
		return err
	}
	t.pgr.UnpinPage(right.ID())
	t.pgr.FreePage(freedPID)

	parentPID := path[level-1].pid
	parent, err := t.loadPage(parentPID)
	if err != nil {
		return err
	}
	entries := parent.Entries()
	if rightIdx < 0 || rightIdx >= len(entries) {
		t.pgr.UnpinPage(parentPID)
		return fmt.Errorf("btree: concatenate: stale parent index %d", rightIdx)
	}
	newEntries := append(append([][]byte{}, entries[:rightIdx]...), entries[rightIdx+1:]...)
	if err := parent.ReplaceAll(newEntries); err != nil {
		return err
	}
	if err := t.savePage(parent); err != nil {
		return err
	}

	return t.reduceIfNeeded(path, level-1)
}

// redistribute moves entries between two sibling pages until their used
// space is balanced, then rewrites the parent's separator entry for the
// right page to reflect its new first key.
func (t *Tree) redistribute(left, right *Page, parentPID pager.PageID, rightIdx int) error {
	all := append(append([][]byte{}, left.Entries()...), right.Entries()...)
	if len(all) == 0 {
		return nil
	}
	mid := len(all) / 2
	if err := left.ReplaceAll(all[:mid]); err != nil {
		return err
	}
	if err := right.ReplaceAll(all[mid:]); err != nil {
		return err
	}
	if err := t.savePage(left); err != nil {
		return err
	}

	newSep, err := right.FirstKey()
	if err != nil {
		return err
	}
	if err := t.savePage(right); err != nil {
		return err
	}

	parent, err := t.loadPage(parentPID)
	if err != nil {
		return err
	}
	entries := parent.Entries()
	if rightIdx < 0 || rightIdx >= len(entries) {
		t.pgr.UnpinPage(parentPID)
		return fmt.Errorf("btree: redistribute: stale parent index %d", rightIdx)
	}
	newEntry, err := entry.MakeNodeEntryFromKey(newSep, uint32(right.ID()))
	if err != nil {
		t.pgr.UnpinPage(parentPID)
		return err
	}
	entries[rightIdx] = newEntry
	if err := parent.ReplaceAll(entries); err != nil {
		return err
	}
	return t.savePage(parent)
}

// collapseRootIfNeeded drops the root when it is a non-leaf with a
// single child, promoting that child and decrementing the tree's step.
func (t *Tree) collapseRootIfNeeded() error {
	root, err := t.loadPage(t.hdr.RootPID)
	if err != nil {
		return err
	}
	if root.IsLeaf() {
		t.pgr.UnpinPage(root.ID())
		return nil
	}
	entries := root.Entries()
	if len(entries) != 1 {
		t.pgr.UnpinPage(root.ID())
		return nil
	}
	childPID, err := t.getPageID(entries[0])
	if err != nil {
		return err
	}
	oldRootPID := root.ID()
	t.pgr.UnpinPage(oldRootPID)
	t.pgr.FreePage(oldRootPID)
	t.hdr.RootPID = childPID
	if t.hdr.Step > 0 {
		t.hdr.Step--
	}
	return nil
}
