package indexfile

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/field"
)

// InsertArray routes one tuple's array-valued column into the
// Data/NullData/NullArray sub-trees per §4.6's Array insert algorithm: a
// nil array inserts only into NullArray; a non-nil array inserts one Data
// or NullData entry per element, keyed by (value, rowid, array_index) or
// (rowid, array_index) respectively. Bumps the persisted whole-tuple
// counter exactly once for the call, regardless of how many element
// entries it produced.
func (f *File) InsertArray(rowid any, array []any) error {
	if err := f.insertArrayElements(rowid, array); err != nil {
		return err
	}
	return f.bumpTupleCount(array)
}

func (f *File) insertArrayElements(rowid any, array []any) error {
	if array == nil {
		t, ok := f.Tree(string(subtreeNullArray))
		if !ok {
			return fmt.Errorf("indexfile: file has no NullArray tree: %w", ErrUnexpected)
		}
		return t.Insert([]any{rowid})
	}
	for idx, v := range array {
		if v == nil {
			t, ok := f.Tree(string(subtreeNullData))
			if !ok {
				return fmt.Errorf("indexfile: file has no NullData tree: %w", ErrUnexpected)
			}
			if err := t.Insert([]any{rowid, int32(idx)}); err != nil {
				return err
			}
			continue
		}
		t, ok := f.Tree(string(subtreeData))
		if !ok {
			return fmt.Errorf("indexfile: file has no Data tree: %w", ErrUnexpected)
		}
		if err := t.Insert([]any{v, rowid, int32(idx)}); err != nil {
			return err
		}
	}
	return nil
}

// ExpungeArray removes every entry InsertArray would have produced for
// this rowid/array pair — the reciprocal walk, one probe-and-delete per
// element (or the single NullArray entry). Unbumps the persisted
// whole-tuple counter exactly once for the call.
func (f *File) ExpungeArray(rowid any, array []any) error {
	if err := f.expungeArrayElements(rowid, array); err != nil {
		return err
	}
	return f.unbumpTupleCount(array)
}

func (f *File) expungeArrayElements(rowid any, array []any) error {
	if array == nil {
		t, ok := f.Tree(string(subtreeNullArray))
		if !ok {
			return fmt.Errorf("indexfile: file has no NullArray tree: %w", ErrUnexpected)
		}
		return deleteKey(t.Schema().LeafFields, t.Delete, []any{rowid})
	}
	for idx, v := range array {
		if err := f.expungeElement(rowid, idx, v); err != nil {
			return err
		}
	}
	return nil
}

// expungeElement removes the single Data or NullData entry one array
// index would have produced.
func (f *File) expungeElement(rowid any, idx int, v any) error {
	if v == nil {
		t, ok := f.Tree(string(subtreeNullData))
		if !ok {
			return fmt.Errorf("indexfile: file has no NullData tree: %w", ErrUnexpected)
		}
		return deleteKey(t.Schema().LeafFields, t.Delete, []any{rowid, int32(idx)})
	}
	t, ok := f.Tree(string(subtreeData))
	if !ok {
		return fmt.Errorf("indexfile: file has no Data tree: %w", ErrUnexpected)
	}
	return deleteKey(t.Schema().LeafFields, t.Delete, []any{v, rowid, int32(idx)})
}

// insertElement inserts the single Data or NullData entry one array index
// produces.
func (f *File) insertElement(rowid any, idx int, v any) error {
	if v == nil {
		t, ok := f.Tree(string(subtreeNullData))
		if !ok {
			return fmt.Errorf("indexfile: file has no NullData tree: %w", ErrUnexpected)
		}
		return t.Insert([]any{rowid, int32(idx)})
	}
	t, ok := f.Tree(string(subtreeData))
	if !ok {
		return fmt.Errorf("indexfile: file has no Data tree: %w", ErrUnexpected)
	}
	return t.Insert([]any{v, rowid, int32(idx)})
}

func deleteKey(specs []field.Spec, del func([]byte) (bool, error), values []any) error {
	probe, err := entry.PackFields(specs, values)
	if err != nil {
		return err
	}
	_, err = del(probe)
	return err
}

// sameElement reports whether two array elements at the same index are
// equal enough that UpdateArray can leave that index's entry untouched:
// both nil, or both non-nil and comparing equal via ==. A field value
// that isn't comparable with == (a slice/map-typed field) always reports
// unequal, which just means that index goes through the conservative
// expunge+insert path instead of being skipped — still correct, just not
// the fast path.
func sameElement(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// UpdateArray replaces an old array value with a new one for the same
// rowid by diffing the two arrays index by index (§4.6's Array update
// algorithm) and only re-keying the indices that actually changed: an
// index present in both arrays with an unchanged value (including two
// nils, which both route to NullData) is left untouched; an index whose
// value changed is expunged at its old value and inserted at its new
// one; an index that only exists in the longer array is a pure insert or
// expunge. The whole-tuple counter is untouched — the tuple itself still
// exists either way, so neither InsertArray's nor ExpungeArray's bump
// applies here. A transition between a nil array and a non-nil array (or
// vice versa) is handled as a full NullArray-entry swap, since that's a
// change of which sub-tree the tuple lives in entirely, not an
// element-wise one.
func (f *File) UpdateArray(rowid any, oldArray, newArray []any) error {
	if oldArray == nil || newArray == nil {
		if oldArray == nil && newArray == nil {
			return nil
		}
		if err := f.expungeArrayElements(rowid, oldArray); err != nil {
			return err
		}
		return f.insertArrayElements(rowid, newArray)
	}

	n := len(oldArray)
	if len(newArray) > n {
		n = len(newArray)
	}
	for idx := 0; idx < n; idx++ {
		var oldV, newV any
		if idx < len(oldArray) {
			oldV = oldArray[idx]
		}
		if idx < len(newArray) {
			newV = newArray[idx]
		}
		switch {
		case idx >= len(oldArray):
			if err := f.insertElement(rowid, idx, newV); err != nil {
				return err
			}
		case idx >= len(newArray):
			if err := f.expungeElement(rowid, idx, oldV); err != nil {
				return err
			}
		case sameElement(oldV, newV):
			continue
		default:
			if err := f.expungeElement(rowid, idx, oldV); err != nil {
				return err
			}
			if err := f.insertElement(rowid, idx, newV); err != nil {
				return err
			}
		}
	}
	return nil
}
