package indexfile

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ngina/bplusindex/internal/btree"
	"github.com/ngina/bplusindex/internal/condition"
	"github.com/ngina/bplusindex/internal/entry"
)

// entriesPerLeafEstimate is the assumed average fan-out of a leaf page,
// used only to translate a tuple estimate into a page-count estimate when
// no live page is actually read (§4.6's estimation algorithms operate on
// node entry counts per level rather than byte sizes).
const entriesPerLeafEstimate = 64

// EstimateReport summarizes a search/fetch cost estimate in both raw
// counts and the humanized form an operator-facing report prints.
// SeekDepth is the number of internal-node page reads a single descend
// costs (the tree's current height) — the fixed per-search overhead on
// top of Pages leaf reads.
type EstimateReport struct {
	Tuples     uint64
	Pages      uint64
	SeekDepth  uint32
	TuplesText string
	PagesText  string
}

func newEstimateReport(tuples, pages uint64, seekDepth uint32) EstimateReport {
	return EstimateReport{
		Tuples:     tuples,
		Pages:      pages,
		SeekDepth:  seekDepth,
		TuplesText: humanize.Comma(int64(tuples)),
		PagesText:  humanize.Comma(int64(pages)),
	}
}

func estimatePages(tuples uint64) uint64 {
	if tuples == 0 {
		return 0
	}
	pages := tuples / entriesPerLeafEstimate
	if pages == 0 {
		pages = 1
	}
	return pages
}

// rangeSelectivity is the coarse halving heuristic §4.6 falls back to when
// no histogram collaborator is wired in: each bound present narrows the
// estimate by half, independently.
func rangeSelectivity(plan *condition.Plan) float64 {
	sel := 1.0
	if plan.Lower.Op != condition.OpUndefined {
		sel *= 0.5
	}
	if plan.Upper.Op != condition.OpUndefined {
		sel *= 0.5
	}
	return sel
}

// EstimateSearch approximates how many tuples and leaf pages a search over
// plan will touch without performing the scan (§4.6's search estimation
// algorithm): an equality bound collapses to a single matching key, an
// open range is scaled by rangeSelectivity, and an Unknown plan (a
// collapsed-to-empty condition, e.g. an unrepresentable numeric Equals)
// reports zero. SeekDepth is read directly off the tree's persisted
// height counter rather than computed by walking the tree, so this never
// performs an unbounded descend just to answer a cost question.
func (f *File) EstimateSearch(key string, plan *condition.Plan) (EstimateReport, error) {
	t, ok := f.Tree(key)
	if !ok {
		return EstimateReport{}, fmt.Errorf("indexfile: no such tree %q: %w", key, ErrBadArgument)
	}
	total := t.Count()
	height := t.Height()
	switch {
	case plan == nil || (plan.Lower.Op == condition.OpUndefined && plan.Upper.Op == condition.OpUndefined):
		return newEstimateReport(total, estimatePages(total), height), nil
	case plan.IsUnknown():
		return newEstimateReport(0, 0, 0), nil
	case plan.Lower.Op == condition.OpEquals:
		if total == 0 {
			return newEstimateReport(0, 0, 0), nil
		}
		return newEstimateReport(1, 1, height), nil
	default:
		tuples := uint64(float64(total) * rangeSelectivity(plan))
		return newEstimateReport(tuples, estimatePages(tuples), height), nil
	}
}

// EstimateFetch approximates the number of distinct key prefixes a full
// scan of the named tree would surface (§4.6's fetch estimation
// algorithm), degrading to the tree's raw tuple count — one distinct key
// per tuple — when no duplication factor is available from the flavor
// alone.
func (f *File) EstimateFetch(key string) (EstimateReport, error) {
	t, ok := f.Tree(key)
	if !ok {
		return EstimateReport{}, fmt.Errorf("indexfile: no such tree %q: %w", key, ErrBadArgument)
	}
	total := t.Count()
	return newEstimateReport(total, estimatePages(total), t.Height()), nil
}

// ArrayFanoutEstimate reports C5's AverageEntriesPerTuple duplication
// factor for an Array-flavor file's Data sub-tree: how many Data-tree
// entries a typical multi-element tuple contributes. totalTuples and
// singleEntryTuples (the count of tuples that own the indexed array
// column, and how many of those have zero or one element and so never
// reach the Data tree at all; see array.go's InsertArray routing) come
// from this file's own persisted tuple counter (counter.go) rather than
// a caller-supplied row-store estimate, since InsertArray/ExpungeArray
// already maintain it on every whole-tuple mutation.
func (f *File) ArrayFanoutEstimate() (float64, error) {
	t, ok := f.Tree(string(subtreeData))
	if !ok {
		return 0, fmt.Errorf("indexfile: file has no Data tree: %w", ErrNotSupported)
	}
	totalTuples, singleEntryTuples, err := f.TupleCount()
	if err != nil {
		return 0, err
	}
	return btree.AverageEntriesPerTuple(entry.ArrayData, t.Count(), totalTuples, singleEntryTuples), nil
}
