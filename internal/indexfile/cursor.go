package indexfile

import (
	"errors"
	"fmt"

	"github.com/ngina/bplusindex/internal/btree"
	"github.com/ngina/bplusindex/internal/collate"
	"github.com/ngina/bplusindex/internal/condition"
	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/pager"
)

// evaluateCond tests one compiled Cond against a candidate field, given
// whether the entry header marked that field absent (null). A field's
// null-ness lives in the header, not in the field's own dumped bytes (see
// internal/condition's Cond.Satisfies doc comment), so this is the one
// place that resolves an IsNull-flagged Cond against the header directly
// instead of calling Cond.Satisfies.
func evaluateCond(c condition.Cond, fieldBuf []byte, isNull bool) (bool, error) {
	switch c.Op {
	case condition.OpUndefined:
		return true, nil
	case condition.OpUnknown:
		return false, nil
	}
	if c.IsNull {
		if isNull {
			return c.Op == condition.OpEquals, nil
		}
		return c.Op == condition.OpNotEquals, nil
	}
	if isNull {
		return false, nil
	}
	ok, err := c.Satisfies(fieldBuf)
	if err != nil {
		var ie *collate.InvalidEscape
		if errors.As(err, &ie) {
			return false, fmt.Errorf("indexfile: %w: %w", ErrInvalidEscape, err)
		}
		return false, err
	}
	return ok, nil
}

// Cursor is the search state machine (§4.6): Search positions it at the
// first candidate entry; Next advances, testing the remaining plan
// conditions against each candidate in turn; Mark/Rewind snapshot and
// restore position for a caller that revisits a scan point mid-iteration
// (the nested-loop join collaborator of §5).
type Cursor struct {
	file *File
	key  subtreeKey
	tree *btree.Tree
	plan *condition.Plan

	pid  pager.PageID
	page *btree.Page
	slot int
	done bool

	marked   bool
	markPID  pager.PageID
	markSlot int
	markDone bool
}

// Search opens a cursor over the named sub-tree, positioned by plan's
// lower bound. A nil plan, or one whose bounds are both Undefined, scans
// the whole tree from its leftmost leaf.
func (f *File) Search(key string, plan *condition.Plan) (*Cursor, error) {
	t, ok := f.Tree(key)
	if !ok {
		return nil, fmt.Errorf("indexfile: no such tree %q: %w", key, ErrBadArgument)
	}
	c := &Cursor{file: f, key: subtreeKey(key), tree: t, plan: plan}
	if plan != nil && plan.IsUnknown() {
		c.done = true
		return c, nil
	}
	if err := c.seekLower(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cursor) loadPage(pid pager.PageID) (*btree.Page, error) {
	key := cacheKey{tree: c.key, pid: pid}
	return c.file.cache.attachPage(key,
		func() (*btree.Page, error) { return c.tree.LoadPage(pid) },
		func() { c.tree.UnpinPage(pid) })
}

// seekLower positions the cursor on the leaf and slot the plan's lower
// bound (or a NULL-equality search) descends to (§4.6 step 1).
func (c *Cursor) seekLower() error {
	var pid pager.PageID
	var err error
	var startSlot int

	switch {
	case c.plan == nil || c.plan.Lower.Op == condition.OpUndefined:
		pid = c.tree.LeftLeafPID()
	case c.plan.Lower.IsNull && c.plan.Lower.Op == condition.OpEquals:
		// Nulls have no comparable byte encoding to descend against, so a
		// NULL-equality search always starts a forward scan from the
		// leftmost leaf; the schema's TopNull trait only changes how early
		// evaluate() can stop (see below) when nulls sort first.
		pid = c.tree.LeftLeafPID()
	default:
		useUpperBound := c.plan.Lower.Op == condition.OpGreaterThan
		pid, err = c.tree.DescendLeaf(c.plan.Lower.Buffer, useUpperBound)
		if err != nil {
			return err
		}
	}

	page, err := c.loadPage(pid)
	if err != nil {
		return err
	}
	c.pid, c.page, c.slot = pid, page, startSlot

	if c.plan != nil && !c.plan.Lower.IsNull && c.plan.Lower.Op != condition.OpUndefined {
		bound := page.LowerBound
		if c.plan.Lower.Op == condition.OpGreaterThan {
			bound = page.UpperBound
		}
		idx, err := bound(c.plan.Lower.Buffer)
		if err != nil {
			return err
		}
		c.slot = idx
	}
	return nil
}

// evaluate tests a candidate's leading field against the plan, returning
// whether it passes, and whether the scan should stop entirely (the
// candidate is past the upper bound, or past the contiguous run of nulls a
// TopNull NULL-equality search relies on).
func (c *Cursor) evaluate(fieldBuf []byte, isNull bool) (pass bool, stop bool, err error) {
	if c.plan == nil {
		return true, false, nil
	}
	if c.plan.Lower.IsNull && c.plan.Lower.Op == condition.OpEquals {
		if !isNull {
			return false, c.tree.Schema().TopNull, nil
		}
		return true, false, nil
	}
	ok, err := evaluateCond(c.plan.Upper, fieldBuf, isNull)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, true, nil
	}
	for _, oc := range c.plan.Other {
		ok, err := evaluateCond(oc, fieldBuf, isNull)
		if err != nil {
			return false, false, err
		}
		if !ok {
			return false, false, nil
		}
	}
	return true, false, nil
}

// Next advances the cursor and returns the next satisfying entry's raw
// leaf bytes, or (nil, false, nil) once the scan is exhausted (§4.6 step
// 2).
func (c *Cursor) Next() ([]byte, bool, error) {
	for {
		if c.done {
			return nil, false, nil
		}
		entries := c.page.Entries()
		if c.slot >= len(entries) {
			next := c.page.NextPID()
			if next == 0 {
				c.done = true
				return nil, false, nil
			}
			page, err := c.loadPage(next)
			if err != nil {
				return nil, false, err
			}
			c.pid, c.page, c.slot = next, page, 0
			continue
		}
		candidate := entries[c.slot]
		c.slot++
		if entry.IsDeleted(c.tree.Schema(), candidate) {
			continue
		}
		fieldBuf, isNull, err := entry.FieldBytes(c.tree.Schema(), candidate, 0)
		if err != nil {
			return nil, false, err
		}
		pass, stop, err := c.evaluate(fieldBuf, isNull)
		if err != nil {
			return nil, false, err
		}
		if stop {
			c.done = true
			return nil, false, nil
		}
		if !pass {
			continue
		}
		return candidate, true, nil
	}
}

// Mark snapshots the cursor's current position and pins its page against
// eviction until Rewind releases it (§4.6 step 3).
func (c *Cursor) Mark() {
	c.marked = true
	c.markPID = c.pid
	c.markSlot = c.slot
	c.markDone = c.done
	c.file.cache.pin(cacheKey{tree: c.key, pid: c.pid})
}

// Rewind restores the cursor to its last Mark, re-descending to the marked
// page if it's no longer in cache (§4.6 step 3's "re-find it" fallback is
// subsumed here: loadPage always re-reads through the pager on a cache
// miss, so the page id alone is sufficient to reposition).
func (c *Cursor) Rewind() error {
	if !c.marked {
		return fmt.Errorf("indexfile: rewind without a prior mark: %w", ErrBadArgument)
	}
	if c.pid != c.markPID {
		page, err := c.loadPage(c.markPID)
		if err != nil {
			return err
		}
		c.pid, c.page = c.markPID, page
	}
	c.slot = c.markSlot
	c.done = c.markDone
	c.file.cache.unpin(cacheKey{tree: c.key, pid: c.markPID})
	c.marked = false
	return nil
}
