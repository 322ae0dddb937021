package pager

import (
	"path/filepath"
	"testing"
)

// fakeRoots and fakeWalker let these tests exercise GC's reachability scan
// without depending on the entry-schema-aware btree package: tests build a
// tiny in-memory "tree" directly out of slotted pages, with an explicit
// parent->children map, and hand it to GC via the two injected interfaces.

type fakeRoots struct{ roots []PageID }

func (f fakeRoots) Roots() ([]PageID, error) { return f.roots, nil }

type fakeWalker struct{ children map[PageID][]PageID }

func (w fakeWalker) Walk(buf []byte) ([]PageID, bool) {
	hdr := UnmarshalHeader(buf)
	kids := w.children[hdr.ID]
	return kids, true
}

func tmpPager(t *testing.T) *Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := OpenPager(PagerConfig{DBPath: filepath.Join(dir, "gc_test.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// makeTreePage allocates and writes one leaf page belonging to the fake tree.
func makeTreePage(t *testing.T, p *Pager, txID TxID) PageID {
	t.Helper()
	pid, buf := p.AllocPage()
	InitSlottedPage(buf, PageTypeBTreeLeaf, pid)
	SetPageCRC(buf)
	if err := p.WritePage(txID, pid, buf); err != nil {
		t.Fatal(err)
	}
	p.UnpinPage(pid)
	return pid
}

func TestGC_NoOrphans(t *testing.T) {
	p := tmpPager(t)

	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	root := makeTreePage(t, p, txID)
	child := makeTreePage(t, p, txID)
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	roots := fakeRoots{roots: []PageID{root}}
	walker := fakeWalker{children: map[PageID][]PageID{root: {child}}}

	result, err := p.GC(roots, walker)
	if err != nil {
		t.Fatal(err)
	}
	if result.Reclaimed != 0 {
		t.Errorf("expected 0 reclaimed, got %d", result.Reclaimed)
	}
	// superblock (page 0) + root + child = 3 reachable pages.
	if result.ReachablePages < 3 {
		t.Errorf("expected at least 3 reachable pages, got %d", result.ReachablePages)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestGC_SimulatedOrphans(t *testing.T) {
	p := tmpPager(t)

	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	root := makeTreePage(t, p, txID)

	// Allocate pages without linking them into the tree — these simulate
	// pages leaked by a crashed transaction.
	var orphans []PageID
	for i := 0; i < 5; i++ {
		orphans = append(orphans, makeTreePage(t, p, txID))
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	roots := fakeRoots{roots: []PageID{root}}
	walker := fakeWalker{children: map[PageID][]PageID{}}

	result, err := p.GC(roots, walker)
	if err != nil {
		t.Fatal(err)
	}
	if result.Reclaimed < len(orphans) {
		t.Errorf("expected at least %d reclaimed orphans, got %d", len(orphans), result.Reclaimed)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestGC_Idempotent(t *testing.T) {
	p := tmpPager(t)

	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	root := makeTreePage(t, p, txID)
	for i := 0; i < 3; i++ {
		makeTreePage(t, p, txID)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	roots := fakeRoots{roots: []PageID{root}}
	walker := fakeWalker{children: map[PageID][]PageID{}}

	r1, err := p.GC(roots, walker)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Reclaimed < 3 {
		t.Errorf("first GC: expected >=3 reclaimed, got %d", r1.Reclaimed)
	}

	r2, err := p.GC(roots, walker)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Reclaimed != 0 {
		t.Errorf("second GC: expected 0 reclaimed, got %d", r2.Reclaimed)
	}
}

func TestGC_EmptyDB(t *testing.T) {
	p := tmpPager(t)

	result, err := p.GC(fakeRoots{}, fakeWalker{children: map[PageID][]PageID{}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Reclaimed != 0 {
		t.Errorf("expected 0 reclaimed on empty DB, got %d", result.Reclaimed)
	}
}

func TestGC_Stats(t *testing.T) {
	p := tmpPager(t)

	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	root := makeTreePage(t, p, txID)
	for i := 0; i < 4; i++ {
		makeTreePage(t, p, txID)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	result, err := p.GC(fakeRoots{roots: []PageID{root}}, fakeWalker{children: map[PageID][]PageID{}})
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalPages <= 0 {
		t.Errorf("TotalPages should be > 0, got %d", result.TotalPages)
	}
	if result.ReachablePages <= 0 {
		t.Errorf("ReachablePages should be > 0, got %d", result.ReachablePages)
	}
	if result.ReachablePages > result.TotalPages {
		t.Errorf("ReachablePages (%d) > TotalPages (%d)", result.ReachablePages, result.TotalPages)
	}
	accounted := result.ReachablePages + result.FreeAfter
	if accounted < result.TotalPages {
		t.Errorf("accounting gap: reachable(%d) + freeAfter(%d) = %d < totalPages(%d)",
			result.ReachablePages, result.FreeAfter, accounted, result.TotalPages)
	}
}
