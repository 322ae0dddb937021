package indexfile

import (
	"path/filepath"
	"testing"

	"github.com/ngina/bplusindex/internal/btree"
	"github.com/ngina/bplusindex/internal/condition"
	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/field"
	"github.com/ngina/bplusindex/internal/pager"
	"github.com/ngina/bplusindex/internal/predicate"
)

func tmpPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.OpenPager(pager.PagerConfig{
		DBPath:   filepath.Join(dir, "indexfile_test.db"),
		PageSize: pager.MinPageSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func keySpec() field.Spec { return field.Spec{Kind: field.Int32} }
func rowSpec() field.Spec { return field.Spec{Kind: field.Int32} }

func int32BTreeSchema() entry.Schema {
	return entry.NewBTreeSchema([]field.Spec{keySpec()}, rowSpec(), false, false)
}

func newTestFile(t *testing.T, pgr *pager.Pager, schema entry.Schema) *File {
	t.Helper()
	txID, err := pgr.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	tr, err := btree.Create(pgr, txID, schema, false)
	if err != nil {
		t.Fatal(err)
	}
	return &File{
		cfg:        IndexConfig{TreeType: "btree"},
		trees:      map[subtreeKey]*btree.Tree{subtreeMain: tr},
		cache:      newPageCache(minCacheFloor),
		pgr:        pgr,
		txID:       txID,
		counterPID: pager.InvalidPageID,
	}
}

func equalsPlan(t *testing.T, spec field.Spec, v int32) *condition.Plan {
	t.Helper()
	pred := predicate.Leaf(predicate.Equals, 0, v)
	s, err := condition.Compile(pred, spec, "BTree")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	plan, err := condition.Parse(s, spec)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return plan
}

func drain(t *testing.T, c *Cursor) []int32 {
	t.Helper()
	var got []int32
	for {
		e, ok, err := c.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return got
		}
		_, values, _, err := entry.UnpackLeaf(c.tree.Schema(), e)
		if err != nil {
			t.Fatalf("UnpackLeaf: %v", err)
		}
		got = append(got, values[0].(int32))
	}
}

func TestCursorFullScanReturnsEveryEntryInOrder(t *testing.T) {
	pgr := tmpPager(t)
	schema := int32BTreeSchema()
	f := newTestFile(t, pgr, schema)
	tr := f.trees[subtreeMain]

	for _, v := range []int32{5, 1, 9, 3, 7} {
		if err := tr.Insert([]any{v, v}); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	c, err := f.Search("main", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := drain(t, c)
	want := []int32{1, 3, 5, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCursorEqualityPlanReturnsOnlyMatch(t *testing.T) {
	pgr := tmpPager(t)
	schema := int32BTreeSchema()
	f := newTestFile(t, pgr, schema)
	tr := f.trees[subtreeMain]
	for _, v := range []int32{5, 1, 9, 3, 7} {
		if err := tr.Insert([]any{v, v}); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	plan := equalsPlan(t, keySpec(), 7)
	c, err := f.Search("main", plan)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := drain(t, c)
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("got %v, want [7]", got)
	}
}

func TestCursorMarkAndRewindResumesPosition(t *testing.T) {
	pgr := tmpPager(t)
	schema := int32BTreeSchema()
	f := newTestFile(t, pgr, schema)
	tr := f.trees[subtreeMain]
	for _, v := range []int32{1, 2, 3, 4, 5} {
		if err := tr.Insert([]any{v, v}); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	c, err := f.Search("main", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, ok, err := c.Next(); err != nil || !ok {
		t.Fatalf("Next 1: ok=%v err=%v", ok, err)
	}
	if _, ok, err := c.Next(); err != nil || !ok {
		t.Fatalf("Next 2: ok=%v err=%v", ok, err)
	}
	c.Mark()

	if _, ok, err := c.Next(); err != nil || !ok {
		t.Fatalf("Next 3: ok=%v err=%v", ok, err)
	}
	if err := c.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	rest := drain(t, c)
	want := []int32{3, 4, 5}
	if len(rest) != len(want) {
		t.Fatalf("after rewind got %v, want %v", rest, want)
	}
	for i := range want {
		if rest[i] != want[i] {
			t.Fatalf("after rewind got %v, want %v", rest, want)
		}
	}
}

func TestRewindWithoutMarkFails(t *testing.T) {
	pgr := tmpPager(t)
	f := newTestFile(t, pgr, int32BTreeSchema())
	c, err := f.Search("main", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := c.Rewind(); err == nil {
		t.Fatalf("expected error rewinding without a mark")
	}
}

func arraySchemas() map[string]entry.Schema {
	rowid := field.Spec{Kind: field.UInt32}
	idx := field.Spec{Kind: field.Int32}
	val := field.Spec{Kind: field.Int32}
	return map[string]entry.Schema{
		"data":      entry.NewArrayDataSchema(val, rowid, idx),
		"nulldata":  entry.NewArrayNullDataSchema(rowid, idx),
		"nullarray": entry.NewArrayNullArraySchema(rowid),
	}
}

func newArrayTestFile(t *testing.T, pgr *pager.Pager) *File {
	t.Helper()
	schemas := arraySchemas()
	txID, err := pgr.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	f := &File{
		cfg: IndexConfig{TreeType: "array"}, trees: make(map[subtreeKey]*btree.Tree), cache: newPageCache(minCacheFloor),
		pgr: pgr, txID: txID,
	}
	for key, schemaKey := range map[subtreeKey]string{subtreeData: "data", subtreeNullData: "nulldata", subtreeNullArray: "nullarray"} {
		tr, err := btree.Create(pgr, txID, schemas[schemaKey], false)
		if err != nil {
			t.Fatal(err)
		}
		f.trees[key] = tr
	}
	counterPID, err := createCounterPage(pgr, txID)
	if err != nil {
		t.Fatal(err)
	}
	f.counterPID = counterPID
	return f
}

func TestInsertArrayRoutesElementsToDataAndNullData(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	if err := f.InsertArray(uint32(1), []any{int32(10), nil, int32(30)}); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}

	dataTree := f.trees[subtreeData]
	nullDataTree := f.trees[subtreeNullData]
	nullArrayTree := f.trees[subtreeNullArray]

	if dataTree.Count() != 2 {
		t.Fatalf("data tree count = %d, want 2", dataTree.Count())
	}
	if nullDataTree.Count() != 1 {
		t.Fatalf("nulldata tree count = %d, want 1", nullDataTree.Count())
	}
	if nullArrayTree.Count() != 0 {
		t.Fatalf("nullarray tree count = %d, want 0", nullArrayTree.Count())
	}
}

func TestInsertArrayNilArrayRoutesToNullArrayOnly(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	if err := f.InsertArray(uint32(2), nil); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}
	if f.trees[subtreeNullArray].Count() != 1 {
		t.Fatalf("nullarray count = %d, want 1", f.trees[subtreeNullArray].Count())
	}
	if f.trees[subtreeData].Count() != 0 || f.trees[subtreeNullData].Count() != 0 {
		t.Fatalf("expected no Data/NullData entries for a null array")
	}
}

func TestExpungeArrayRemovesWhatInsertArrayAdded(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	array := []any{int32(10), nil, int32(30)}
	if err := f.InsertArray(uint32(3), array); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}
	if err := f.ExpungeArray(uint32(3), array); err != nil {
		t.Fatalf("ExpungeArray: %v", err)
	}
	if f.trees[subtreeData].Count() != 0 || f.trees[subtreeNullData].Count() != 0 {
		t.Fatalf("expected Data/NullData empty after expunge, got data=%d nulldata=%d",
			f.trees[subtreeData].Count(), f.trees[subtreeNullData].Count())
	}
}

// treeContains probes tr for an exact leaf entry built from values,
// descending to the candidate leaf and checking it with Page.FindUnique.
func treeContains(t *testing.T, tr *btree.Tree, values []any) bool {
	t.Helper()
	probe, err := entry.PackFields(tr.Schema().LeafFields, values)
	if err != nil {
		t.Fatalf("pack probe: %v", err)
	}
	pid, err := tr.DescendLeaf(probe, false)
	if err != nil {
		t.Fatalf("DescendLeaf: %v", err)
	}
	page, err := tr.LoadPage(pid)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	defer tr.UnpinPage(pid)
	_, _, ok, err := page.FindUnique(probe)
	if err != nil {
		t.Fatalf("FindUnique: %v", err)
	}
	return ok
}

func TestTupleCounterTracksWholeTuplesNotEntries(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	// One multi-element tuple produces three Data entries but should
	// still count as exactly one tuple.
	if err := f.InsertArray(uint32(1), []any{int32(10), int32(20), int32(30)}); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}
	if err := f.InsertArray(uint32(2), nil); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}
	total, oneEntry, err := f.TupleCount()
	if err != nil {
		t.Fatalf("TupleCount: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if oneEntry != 1 {
		t.Fatalf("oneEntry = %d, want 1 (the nil-array tuple)", oneEntry)
	}

	if err := f.ExpungeArray(uint32(2), nil); err != nil {
		t.Fatalf("ExpungeArray: %v", err)
	}
	total, oneEntry, err = f.TupleCount()
	if err != nil {
		t.Fatalf("TupleCount: %v", err)
	}
	if total != 1 || oneEntry != 0 {
		t.Fatalf("after expunge: (%d, %d), want (1, 0)", total, oneEntry)
	}
}

func TestUpdateArrayOnlyTouchesChangedIndex(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	oldArray := []any{nil, int32(20), int32(30)}
	if err := f.InsertArray(uint32(1), oldArray); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}

	newArray := []any{nil, int32(20), int32(40)}
	if err := f.UpdateArray(uint32(1), oldArray, newArray); err != nil {
		t.Fatalf("UpdateArray: %v", err)
	}

	if got := f.trees[subtreeNullData].Count(); got != 1 {
		t.Fatalf("nulldata count = %d, want 1 (index 0 untouched)", got)
	}
	if got := f.trees[subtreeData].Count(); got != 2 {
		t.Fatalf("data count = %d, want 2 (20@1 untouched, 40@2 replacing 30@2)", got)
	}

	dataTree := f.trees[subtreeData]
	if treeContains(t, dataTree, []any{int32(30), uint32(1), int32(2)}) {
		t.Fatalf("old value 30@2 should have been expunged")
	}
	if !treeContains(t, dataTree, []any{int32(40), uint32(1), int32(2)}) {
		t.Fatalf("new value 40@2 should have been inserted")
	}
	if !treeContains(t, dataTree, []any{int32(20), uint32(1), int32(1)}) {
		t.Fatalf("unchanged value 20@1 should still be present")
	}

	// The whole-tuple counter is untouched by an element-level update.
	total, _, err := f.TupleCount()
	if err != nil {
		t.Fatalf("TupleCount: %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1 (unchanged by UpdateArray)", total)
	}
}

func TestUpdateArrayGrowingArrayInsertsNewIndices(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	oldArray := []any{int32(1)}
	if err := f.InsertArray(uint32(5), oldArray); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}
	newArray := []any{int32(1), int32(2), int32(3)}
	if err := f.UpdateArray(uint32(5), oldArray, newArray); err != nil {
		t.Fatalf("UpdateArray: %v", err)
	}
	if got := f.trees[subtreeData].Count(); got != 3 {
		t.Fatalf("data count = %d, want 3", got)
	}
}

func TestUpdateArrayNilToNonNilSwapsSubtree(t *testing.T) {
	pgr := tmpPager(t)
	f := newArrayTestFile(t, pgr)

	if err := f.InsertArray(uint32(7), nil); err != nil {
		t.Fatalf("InsertArray: %v", err)
	}
	newArray := []any{int32(9)}
	if err := f.UpdateArray(uint32(7), nil, newArray); err != nil {
		t.Fatalf("UpdateArray: %v", err)
	}
	if got := f.trees[subtreeNullArray].Count(); got != 0 {
		t.Fatalf("nullarray count = %d, want 0", got)
	}
	if got := f.trees[subtreeData].Count(); got != 1 {
		t.Fatalf("data count = %d, want 1", got)
	}
}

func TestEstimateSearchEqualityIsTight(t *testing.T) {
	pgr := tmpPager(t)
	schema := int32BTreeSchema()
	f := newTestFile(t, pgr, schema)
	tr := f.trees[subtreeMain]
	for _, v := range []int32{1, 2, 3, 4, 5} {
		if err := tr.Insert([]any{v, v}); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	report, err := f.EstimateSearch("main", equalsPlan(t, keySpec(), 3))
	if err != nil {
		t.Fatalf("EstimateSearch: %v", err)
	}
	if report.Tuples != 1 {
		t.Fatalf("Tuples = %d, want 1", report.Tuples)
	}

	full, err := f.EstimateSearch("main", nil)
	if err != nil {
		t.Fatalf("EstimateSearch(nil): %v", err)
	}
	if full.Tuples != 5 {
		t.Fatalf("Tuples = %d, want 5", full.Tuples)
	}
}
