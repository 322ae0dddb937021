package btree

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/pager"
)

// pathEntry records, for one level visited during a descent, the page and
// the index within it that routed to the next level down. The last
// pathEntry (the leaf) carries idx -1. This is the alternative to a
// strong parent back-pointer (§9): a fresh path is walked
// for every mutating operation instead of caching parent handles.
type pathEntry struct {
	pid pager.PageID
	idx int
}

// ErrUniquenessViolation is returned by Insert when the entry's declared
// key prefix collides with an existing entry in a unique index (P5); the
// tree is left unmodified.
var ErrUniquenessViolation = fmt.Errorf("btree: uniqueness violation")

func (t *Tree) descend(probeKey []byte) ([]pathEntry, error) {
	var path []pathEntry
	pid := t.hdr.RootPID
	for {
		p, err := t.loadPage(pid)
		if err != nil {
			return nil, err
		}
		if p.IsLeaf() {
			t.pgr.UnpinPage(pid)
			path = append(path, pathEntry{pid: pid, idx: -1})
			return path, nil
		}
		entries := p.Entries()
		idx, err := p.LowerBound(probeKey)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return nil, err
		}
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		if idx < 0 {
			t.pgr.UnpinPage(pid)
			return nil, fmt.Errorf("btree: internal page %d has no entries", pid)
		}
		childPID, err := t.getPageID(entries[idx])
		t.pgr.UnpinPage(pid)
		if err != nil {
			return nil, err
		}
		path = append(path, pathEntry{pid: pid, idx: idx})
		pid = childPID
	}
}

// find_parent re-descends from the root to locate the parent of a page
// known to begin with beginKey, per §9's weak-handle redesign note.
// Nothing in this package calls it: Insert and Delete use the path that
// descend records.
func (t *Tree) findParent(beginKey []byte, childPID pager.PageID) (parentPID pager.PageID, idx int, err error) {
	if t.hdr.RootPID == childPID {
		return pager.InvalidPageID, -1, nil
	}
	pid := t.hdr.RootPID
	for {
		p, err := t.loadPage(pid)
		if err != nil {
			return 0, 0, err
		}
		if p.IsLeaf() {
			t.pgr.UnpinPage(pid)
			return 0, 0, fmt.Errorf("btree: find_parent: child %d not found", childPID)
		}
		entries := p.Entries()
		lbIdx, err := p.LowerBound(beginKey)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, 0, err
		}
		if lbIdx >= len(entries) {
			lbIdx = len(entries) - 1
		}
		cpid, err := t.getPageID(entries[lbIdx])
		t.pgr.UnpinPage(pid)
		if err != nil {
			return 0, 0, err
		}
		if cpid == childPID {
			return pid, lbIdx, nil
		}
		pid = cpid
	}
}

func splitPage(t *Tree, p *Page) (rightPID pager.PageID, right *Page, separator []byte, err error) {
	entries := p.Entries()
	mid := len(entries) / 2
	leftEntries, rightEntries := entries[:mid], entries[mid:]

	pid, buf := t.pgr.AllocPage()
	right = Init(buf, p.IsLeaf(), pid, t.schema, t.keyCmp)

	if p.IsLeaf() {
		right.SetNextPID(p.NextPID())
		right.SetPrevPID(p.ID())
		oldNext := p.NextPID()
		p.SetNextPID(pid)
		if oldNext != pager.InvalidPageID {
			nextPage, err := t.loadPage(oldNext)
			if err != nil {
				return 0, nil, nil, err
			}
			nextPage.SetPrevPID(pid)
			if err := t.savePage(nextPage); err != nil {
				return 0, nil, nil, err
			}
		} else if t.hdr.RightLeafPID == p.ID() {
			t.hdr.RightLeafPID = pid
		}
	}

	if err := p.ReplaceAll(leftEntries); err != nil {
		return 0, nil, nil, err
	}
	if err := right.ReplaceAll(rightEntries); err != nil {
		return 0, nil, nil, err
	}
	sep, err := right.keyOf(rightEntries[0])
	if err != nil {
		return 0, nil, nil, err
	}
	return pid, right, sep, nil
}

// checkUniqueness reports whether any live entry on the leaf page pid
// already shares the new entry's declared unique-key prefix (P5). Only the
// descended-to leaf is examined: entries sharing a unique-key prefix sort
// contiguously, and a unique index holds at most one row per such prefix,
// so any existing collision must live on this leaf.
func (t *Tree) checkUniqueness(pid pager.PageID, newEntry []byte) (bool, error) {
	p, err := t.loadPage(pid)
	if err != nil {
		return false, err
	}
	defer t.pgr.UnpinPage(pid)

	newPrefix, err := entry.FieldPrefixBytes(t.schema, newEntry, t.schema.UniqueKeyFields)
	if err != nil {
		return false, err
	}
	for _, e := range p.Entries() {
		prefix, err := entry.FieldPrefixBytes(t.schema, e, t.schema.UniqueKeyFields)
		if err != nil {
			return false, err
		}
		cmp, err := t.uniqueCmp.Compare(prefix, newPrefix)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

// insertIntoPage inserts e into the page pid, splitting it (and returning
// the new right sibling + separator) if it doesn't fit.
func (t *Tree) insertIntoPage(pid pager.PageID, e []byte) (split bool, rightPID pager.PageID, separator []byte, err error) {
	p, err := t.loadPage(pid)
	if err != nil {
		return false, 0, nil, err
	}
	if ierr := p.Insert(e); ierr == ErrPageFull {
		newPID, right, sep, serr := splitPage(t, p)
		if serr != nil {
			return false, 0, nil, serr
		}
		key, kerr := p.keyOf(e)
		if kerr != nil {
			return false, 0, nil, kerr
		}
		cmp, cerr := t.keyCmp.Compare(sep, key)
		if cerr != nil {
			return false, 0, nil, cerr
		}
		var target *Page
		if cmp <= 0 {
			target = right
		} else {
			target = p
		}
		if terr := target.Insert(e); terr != nil {
			return false, 0, nil, fmt.Errorf("btree: insert after split still failed: %w", terr)
		}
		if err := t.savePage(p); err != nil {
			return false, 0, nil, err
		}
		if err := t.savePage(right); err != nil {
			return false, 0, nil, err
		}
		return true, newPID, sep, nil
	} else if ierr != nil {
		t.pgr.UnpinPage(pid)
		return false, 0, nil, ierr
	}
	if err := t.savePage(p); err != nil {
		return false, 0, nil, err
	}
	return false, 0, nil, nil
}

// propagateKeyChange rewrites the node entry(ies) along path that must now
// reflect a changed first-key for the page at the bottom of path, climbing
// only as long as the change is itself the first entry of its parent (the
// chain of "this is also my parent's first child" links).
func (t *Tree) propagateKeyChange(path []pathEntry, newKey []byte) error {
	for level := len(path) - 2; level >= 0; level-- {
		parentPID := path[level].pid
		idx := path[level].idx
		parent, err := t.loadPage(parentPID)
		if err != nil {
			return err
		}
		entries := parent.Entries()
		if idx >= len(entries) {
			t.pgr.UnpinPage(parentPID)
			return fmt.Errorf("btree: propagateKeyChange: stale index %d", idx)
		}
		childPID, err := t.getPageID(entries[idx])
		if err != nil {
			t.pgr.UnpinPage(parentPID)
			return err
		}
		newEntry, err := entry.MakeNodeEntryFromKey(newKey, uint32(childPID))
		if err != nil {
			t.pgr.UnpinPage(parentPID)
			return err
		}
		entries[idx] = newEntry
		if err := parent.ReplaceAll(entries); err != nil {
			return err
		}
		if err := t.savePage(parent); err != nil {
			return err
		}
		if idx != 0 {
			return nil
		}
	}
	return nil
}

// Insert adds one tuple's values (packed according to the tree's schema)
// to the tree, splitting pages and propagating new separators up to the
// root as needed.
func (t *Tree) Insert(values []any) error {
	leafEntry, err := t.makeLeafEntry(values)
	if err != nil {
		return err
	}
	key, err := entry.LeafKeyBytes(t.schema, leafEntry)
	if err != nil {
		return err
	}

	path, err := t.descend(key)
	if err != nil {
		return err
	}
	leafPID := path[len(path)-1].pid

	if t.uniqueCmp != nil {
		violated, err := t.checkUniqueness(leafPID, leafEntry)
		if err != nil {
			return err
		}
		if violated {
			return ErrUniquenessViolation
		}
	}

	oldFirstKey, hadEntries, err := t.pageFirstKeyOrNil(leafPID)
	if err != nil {
		return err
	}

	split, rightPID, separator, err := t.insertIntoPage(leafPID, leafEntry)
	if err != nil {
		return err
	}

	if split {
		if err := t.bubbleSplit(path, rightPID, separator); err != nil {
			return err
		}
	}

	newFirstKey, _, err := t.pageFirstKeyOrNil(leafPID)
	if err != nil {
		return err
	}
	if hadEntries && !bytesEqual(oldFirstKey, newFirstKey) {
		if err := t.propagateKeyChange(path, newFirstKey); err != nil {
			return err
		}
	}
	t.hdr.Count++
	return t.saveHeader()
}

// bubbleSplit climbs path from the leaf's parent upward, inserting a node
// entry (separator -> rightPID) into each ancestor in turn; if an ancestor
// also splits, the new separator/rightPID propagate one level further. If
// the root itself splits, a fresh root is created and the tree grows by
// one step.
func (t *Tree) bubbleSplit(path []pathEntry, rightPID pager.PageID, separator []byte) error {
	curRight := rightPID
	curSep := append([]byte(nil), separator...)
	for level := len(path) - 2; level >= 0; level-- {
		parentPID := path[level].pid
		nodeEntry, err := entry.MakeNodeEntryFromKey(curSep, uint32(curRight))
		if err != nil {
			return err
		}
		split, newRightPID, newSep, err := t.insertIntoPage(parentPID, nodeEntry)
		if err != nil {
			return err
		}
		if !split {
			return nil
		}
		curRight = newRightPID
		curSep = newSep
	}
	// The root split: build a fresh root with two node entries, one
	// routing to the old root and one to curRight.
	oldRootPID := t.hdr.RootPID
	oldRootFirstKey, _, err := t.pageFirstKeyOrNil(oldRootPID)
	if err != nil {
		return err
	}
	newRootPID, newRootBuf := t.pgr.AllocPage()
	newRoot := Init(newRootBuf, false, newRootPID, t.schema, t.keyCmp)
	leftEntry, err := entry.MakeNodeEntryFromKey(oldRootFirstKey, uint32(oldRootPID))
	if err != nil {
		return err
	}
	rightEntry, err := entry.MakeNodeEntryFromKey(curSep, uint32(curRight))
	if err != nil {
		return err
	}
	if err := newRoot.Insert(leftEntry); err != nil {
		return err
	}
	if err := newRoot.Insert(rightEntry); err != nil {
		return err
	}
	if err := t.savePage(newRoot); err != nil {
		return err
	}
	t.hdr.RootPID = newRootPID
	t.hdr.Step++
	return nil
}

func (t *Tree) pageFirstKeyOrNil(pid pager.PageID) ([]byte, bool, error) {
	p, err := t.loadPage(pid)
	if err != nil {
		return nil, false, err
	}
	defer t.pgr.UnpinPage(pid)
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

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
