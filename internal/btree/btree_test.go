package btree

import (
	"path/filepath"
	"testing"

	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/field"
	"github.com/ngina/bplusindex/internal/pager"
)

func tmpPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.OpenPager(pager.PagerConfig{
		DBPath:   filepath.Join(dir, "btree_test.db"),
		PageSize: pager.MinPageSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func int32Schema() entry.Schema {
	return entry.NewBTreeSchema(
		[]field.Spec{{Kind: field.Int32}},
		field.Spec{Kind: field.Int32},
		false,
		false,
	)
}

func openTree(t *testing.T, p *pager.Pager, schema entry.Schema, unique bool) (*Tree, pager.TxID) {
	t.Helper()
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	tr, err := Create(p, txID, schema, unique)
	if err != nil {
		t.Fatal(err)
	}
	return tr, txID
}

func TestInsertAndVerifySmall(t *testing.T) {
	p := tmpPager(t)
	schema := int32Schema()
	tr, _ := openTree(t, p, schema, true)

	for _, v := range []int32{5, 1, 9, 3, 7} {
		if err := tr.Insert([]any{v, v}); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}
	if tr.Count() != 5 {
		t.Fatalf("count = %d, want 5", tr.Count())
	}
	report, err := tr.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("verify issues: %v", report.Issues)
	}
}

func TestInsertCausesSplitAndStaysSorted(t *testing.T) {
	p := tmpPager(t)
	schema := int32Schema()
	tr, _ := openTree(t, p, schema, true)

	const n = 400
	for i := int32(0); i < n; i++ {
		v := (i * 37) % n // scramble insertion order
		if err := tr.Insert([]any{v, v}); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}
	if tr.Count() != n {
		t.Fatalf("count = %d, want %d", tr.Count(), n)
	}
	if tr.Step() <= 1 {
		t.Fatalf("expected tree to have grown past a single leaf, step=%d", tr.Step())
	}
	report, err := tr.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("verify issues after splits: %v", report.Issues)
	}
}

func TestUniquenessViolation(t *testing.T) {
	p := tmpPager(t)
	schema := int32Schema()
	tr, _ := openTree(t, p, schema, true)

	if err := tr.Insert([]any{int32(1), int32(100)}); err != nil {
		t.Fatal(err)
	}
	err := tr.Insert([]any{int32(1), int32(200)})
	if err != ErrUniquenessViolation {
		t.Fatalf("err = %v, want ErrUniquenessViolation", err)
	}
	if tr.Count() != 1 {
		t.Fatalf("count = %d after rejected insert, want 1", tr.Count())
	}
}

func TestDeleteShrinksTree(t *testing.T) {
	p := tmpPager(t)
	schema := int32Schema()
	tr, _ := openTree(t, p, schema, true)

	const n = 300
	for i := int32(0); i < n; i++ {
		if err := tr.Insert([]any{i, i}); err != nil {
			t.Fatal(err)
		}
	}

	for i := int32(0); i < n; i += 2 {
		key, err := entry.FieldPrefixBytes(schema, mustLeafEntry(t, tr, []any{i, i}), schema.NodeKeyFields)
		if err != nil {
			t.Fatal(err)
		}
		ok, err := tr.Delete(key)
		if err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("delete %d: not found", i)
		}
	}
	if tr.Count() != n/2 {
		t.Fatalf("count = %d, want %d", tr.Count(), n/2)
	}
	report, err := tr.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("verify issues after deletes: %v", report.Issues)
	}
}

func TestDeleteMissingKeyReturnsFalse(t *testing.T) {
	p := tmpPager(t)
	schema := int32Schema()
	tr, _ := openTree(t, p, schema, true)

	if err := tr.Insert([]any{int32(1), int32(1)}); err != nil {
		t.Fatal(err)
	}
	key, err := entry.FieldPrefixBytes(schema, mustLeafEntry(t, tr, []any{int32(2), int32(2)}), schema.NodeKeyFields)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := tr.Delete(key)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("delete of missing key reported success")
	}
}

func mustLeafEntry(t *testing.T, tr *Tree, values []any) []byte {
	t.Helper()
	e, err := tr.makeLeafEntry(values)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestWalkerRecognizesTreePages(t *testing.T) {
	p := tmpPager(t)
	schema := int32Schema()
	tr, _ := openTree(t, p, schema, true)
	for i := int32(0); i < 200; i++ {
		if err := tr.Insert([]any{i, i}); err != nil {
			t.Fatal(err)
		}
	}

	reg := NewRegistry(tr.HeaderPID())
	roots, err := reg.Roots()
	if err != nil || len(roots) != 1 {
		t.Fatalf("roots = %v, err = %v", roots, err)
	}

	result, err := p.GC(reg, Walker{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("GC reported errors against a live tree: %v", result.Errors)
	}
}
