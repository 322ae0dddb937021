package btree

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/pager"
)

// VerifyReport collects the issues a Verify pass finds; an empty Issues
// slice means the tree is internally consistent. Aborted is set only by
// VerifyStreaming, when the progress callback asks the walk to stop early.
type VerifyReport struct {
	Issues  []string
	Aborted bool
}

func (r *VerifyReport) fail(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

func (r *VerifyReport) OK() bool { return len(r.Issues) == 0 }

// errVerifyAborted unwinds verifyPage's recursion once the progress
// callback asks VerifyStreaming to stop; it never escapes VerifyStreaming
// itself.
var errVerifyAborted = fmt.Errorf("btree: verify aborted")

// Verify walks the whole tree checking the sort invariant on every leaf
// (P1), the delegation invariant between every node entry and its child's
// first key (P2), the leaf count against the header count (P3), and the
// left/right leaf chain endpoints (P4).
func (t *Tree) Verify() (*VerifyReport, error) {
	return t.VerifyStreaming(nil)
}

// VerifyStreaming is Verify with an optional page-visited callback invoked
// after every page the walk touches, passing the running pages-visited and
// issues-found counts; a caller streaming progress over the verifypb
// service wires this to a channel send and an incoming Cancel check. cb
// returning false aborts the walk early (report.Aborted is set, and the
// count/endpoint invariants below are skipped since a partial leaf count
// would always look wrong).
func (t *Tree) VerifyStreaming(cb func(pagesVisited, issuesFound int) bool) (*VerifyReport, error) {
	w := &verifyWalk{report: &VerifyReport{}, cb: cb}
	leafCount, err := t.verifyPage(t.hdr.RootPID, w)
	if err == errVerifyAborted {
		w.report.Aborted = true
		return w.report, nil
	}
	if err != nil {
		return nil, err
	}
	if uint64(leafCount) != t.hdr.Count {
		w.report.fail("count invariant: leaves hold %d entries, tree header says %d", leafCount, t.hdr.Count)
	}
	if err := t.verifyEndpoints(w.report); err != nil {
		return nil, err
	}
	return w.report, nil
}

// verifyWalk carries VerifyStreaming's running state through the
// recursive page walk.
type verifyWalk struct {
	report  *VerifyReport
	visited int
	cb      func(pagesVisited, issuesFound int) bool
}

// verifyPage recurses into a subtree, checking P1 on leaves and P2 on
// every node entry, and returns the number of leaf entries found.
func (t *Tree) verifyPage(pid pager.PageID, w *verifyWalk) (int, error) {
	report := w.report
	p, err := t.loadPage(pid)
	if err != nil {
		return 0, err
	}
	entries := p.Entries()
	w.visited++
	if w.cb != nil && !w.cb(w.visited, len(report.Issues)) {
		t.pgr.UnpinPage(pid)
		return 0, errVerifyAborted
	}

	for i := 1; i < len(entries); i++ {
		prevKey, err := p.keyOf(entries[i-1])
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		curKey, err := p.keyOf(entries[i])
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		cmp, err := t.keyCmp.Compare(prevKey, curKey)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		if cmp >= 0 {
			report.fail("page %d: entries %d and %d are not strictly ascending", pid, i-1, i)
		}
	}

	if p.IsLeaf() {
		t.pgr.UnpinPage(pid)
		return len(entries), nil
	}

	total := 0
	for _, e := range entries {
		childPID, err := t.getPageID(e)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		nodeKey, err := p.keyOf(e)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		childFirstKey, hasEntries, err := t.pageFirstKeyOrNil(childPID)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		if hasEntries {
			cmp, err := t.keyCmp.Compare(nodeKey, childFirstKey)
			if err != nil {
				t.pgr.UnpinPage(pid)
				return 0, err
			}
			if cmp != 0 {
				report.fail("page %d entry for child %d: key does not match child's first key", pid, childPID)
			}
		}
		n, err := t.verifyPage(childPID, w)
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		total += n
	}
	t.pgr.UnpinPage(pid)
	return total, nil
}

// verifyEndpoints checks that walking next_pid from left_leaf_pid reaches
// right_leaf_pid, and prev_pid walks back the same distance (P4).
func (t *Tree) verifyEndpoints(report *VerifyReport) error {
	pid := t.hdr.LeftLeafPID
	hops := 0
	seen := map[pager.PageID]bool{}
	for {
		if seen[pid] {
			report.fail("endpoint invariant: next_pid chain cycles at page %d", pid)
			return nil
		}
		seen[pid] = true
		if pid == t.hdr.RightLeafPID {
			break
		}
		p, err := t.loadPage(pid)
		if err != nil {
			return err
		}
		next := p.NextPID()
		t.pgr.UnpinPage(pid)
		if next == pager.InvalidPageID {
			report.fail("endpoint invariant: next_pid chain from left_leaf_pid %d never reaches right_leaf_pid %d", t.hdr.LeftLeafPID, t.hdr.RightLeafPID)
			return nil
		}
		pid = next
		hops++
	}

	pid = t.hdr.RightLeafPID
	backHops := 0
	for pid != t.hdr.LeftLeafPID {
		p, err := t.loadPage(pid)
		if err != nil {
			return err
		}
		prev := p.PrevPID()
		t.pgr.UnpinPage(pid)
		if prev == pager.InvalidPageID {
			report.fail("endpoint invariant: prev_pid chain from right_leaf_pid %d never reaches left_leaf_pid %d", t.hdr.RightLeafPID, t.hdr.LeftLeafPID)
			return nil
		}
		pid = prev
		backHops++
	}
	if backHops != hops {
		report.fail("endpoint invariant: forward chain took %d hops, reverse took %d", hops, backHops)
	}
	return nil
}
