package indexfile

import (
	"encoding/binary"
	"fmt"

	"github.com/ngina/bplusindex/internal/pager"
)

// counterPayloadOff/Size place the tuple counter's two fields right after
// the common page header, the same layout idiom internal/btree's tree
// header uses.
const (
	counterPayloadOff  = pager.PageHeaderSize
	counterPayloadSize = 8 /*tupleCount*/ + 8 /*oneEntryTupleCount*/
)

// tupleCounter is the Array flavor's whole-tuple bookkeeping: the number
// of tuples InsertArray/ExpungeArray have routed (regardless of how many
// Data/NullData entries a given array produced), and how many of those
// tuples had zero or one element and so never reached the Data tree.
// Neither count is derivable from the sub-trees' own Tree.Count(), since
// one tuple's array can fan out into many Data-tree entries.
type tupleCounter struct {
	TupleCount         uint64
	OneEntryTupleCount uint64
}

func marshalTupleCounter(c tupleCounter, buf []byte) {
	binary.LittleEndian.PutUint64(buf[counterPayloadOff:], c.TupleCount)
	binary.LittleEndian.PutUint64(buf[counterPayloadOff+8:], c.OneEntryTupleCount)
}

func unmarshalTupleCounter(buf []byte) tupleCounter {
	return tupleCounter{
		TupleCount:         binary.LittleEndian.Uint64(buf[counterPayloadOff:]),
		OneEntryTupleCount: binary.LittleEndian.Uint64(buf[counterPayloadOff+8:]),
	}
}

// createCounterPage allocates and writes a fresh, zeroed counter page.
func createCounterPage(pgr *pager.Pager, txID pager.TxID) (pager.PageID, error) {
	pid, buf := pgr.AllocPage()
	h := pager.PageHeader{Type: pager.PageTypeCounter, ID: pid}
	pager.MarshalHeader(&h, buf)
	marshalTupleCounter(tupleCounter{}, buf)
	pager.SetPageCRC(buf)
	if err := pgr.WritePage(txID, pid, buf); err != nil {
		return pager.InvalidPageID, err
	}
	pgr.UnpinPage(pid)
	return pid, nil
}

// loadCounterPage reads a previously created counter page.
func loadCounterPage(pgr *pager.Pager, pid pager.PageID) (tupleCounter, error) {
	buf, err := pgr.ReadPage(pid)
	if err != nil {
		return tupleCounter{}, err
	}
	defer pgr.UnpinPage(pid)
	return unmarshalTupleCounter(buf), nil
}

// saveCounter persists f's in-memory counter to its page.
func (f *File) saveCounter() error {
	buf, err := f.pgr.ReadPage(f.counterPID)
	if err != nil {
		return err
	}
	marshalTupleCounter(f.counter, buf)
	pager.SetPageCRC(buf)
	err = f.pgr.WritePage(f.txID, f.counterPID, buf)
	f.pgr.UnpinPage(f.counterPID)
	return err
}

// oneEntryArray reports whether array counts as a "single entry" tuple for
// duplication-factor purposes: nil, empty, or one-element arrays never
// produce more than one Data/NullData entry, so they're excluded from
// the denominator ArrayFanoutEstimate (estimate.go) divides by.
func oneEntryArray(array []any) bool {
	return len(array) <= 1
}

// bumpTupleCount records one whole-tuple InsertArray call.
func (f *File) bumpTupleCount(array []any) error {
	if f.counterPID == pager.InvalidPageID {
		return nil
	}
	f.counter.TupleCount++
	if oneEntryArray(array) {
		f.counter.OneEntryTupleCount++
	}
	return f.saveCounter()
}

// unbumpTupleCount records one whole-tuple ExpungeArray call, reversing a
// prior bumpTupleCount for the same array shape.
func (f *File) unbumpTupleCount(array []any) error {
	if f.counterPID == pager.InvalidPageID {
		return nil
	}
	if f.counter.TupleCount > 0 {
		f.counter.TupleCount--
	}
	if oneEntryArray(array) && f.counter.OneEntryTupleCount > 0 {
		f.counter.OneEntryTupleCount--
	}
	return f.saveCounter()
}

// TupleCount returns the Array flavor's persisted whole-tuple count and
// the count of those tuples with zero or one array element, for a caller
// estimating duplication factor (estimate.go's ArrayFanoutEstimate) or
// reporting file-level statistics. Returns ErrNotSupported for a
// non-Array file, which never allocates a counter page.
func (f *File) TupleCount() (total, oneEntry uint64, err error) {
	if f.counterPID == pager.InvalidPageID {
		return 0, 0, fmt.Errorf("indexfile: %s flavor has no tuple counter: %w", f.cfg.TreeType, ErrNotSupported)
	}
	return f.counter.TupleCount, f.counter.OneEntryTupleCount, nil
}
