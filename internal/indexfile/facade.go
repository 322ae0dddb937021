package indexfile

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/condition"
	"github.com/ngina/bplusindex/internal/field"
	"github.com/ngina/bplusindex/internal/predicate"
)

// OpenMode is the mode a logical-file façade negotiates for a cursor: a
// plan narrower than a full scan opens for Search, a bare full-table walk
// opens for Read (§4.8).
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeSearch
)

// SearchParameter is the result of GetSearchParameter: the compiled plan
// string for one field plus the open mode the cursor should use.
type SearchParameter struct {
	PlanString string
	Mode       OpenMode
}

// ProjectionParameter names the fields a caller may request back from a
// cursor.
type ProjectionParameter struct{ Fields []string }

// UpdateParameter names the fields a caller may re-key in place.
type UpdateParameter struct{ Fields []string }

// LogicalFile is the logical-file façade (C8): it negotiates the
// (search-param, projection-param, update-param) triple with the upper
// module before handing back a cursor, so a caller never opens a scan the
// underlying tree flavor can't actually serve.
type LogicalFile struct {
	file     *File
	flavor   string // "array", "btree" or "bitmap"
	rowField string // the single projectable field name for the array flavor
}

func NewLogicalFile(f *File, flavor, rowField string) *LogicalFile {
	return &LogicalFile{file: f, flavor: flavor, rowField: rowField}
}

// GetSearchParameter delegates to the condition compiler (C7) and reports
// Search mode for a non-trivial predicate, Read mode for a full scan
// (§4.8).
func (lf *LogicalFile) GetSearchParameter(pred *predicate.Node, spec field.Spec) (SearchParameter, error) {
	planStr, err := condition.Compile(pred, spec, lf.flavor)
	if err != nil {
		return SearchParameter{}, err
	}
	mode := ModeRead
	if pred != nil {
		mode = ModeSearch
	}
	return SearchParameter{PlanString: planStr, Mode: mode}, nil
}

// GetProjectionParameter accepts only {rowid} for the Array flavor, or an
// explicit subset of the B-tree/Bitmap tree's declared leaf fields;
// anything else is refused (§4.8).
func (lf *LogicalFile) GetProjectionParameter(fields []string) (ProjectionParameter, error) {
	if lf.flavor == "array" {
		if len(fields) != 1 || fields[0] != lf.rowField {
			return ProjectionParameter{}, fmt.Errorf("indexfile: array flavor only projects %q: %w", lf.rowField, ErrNotSupported)
		}
		return ProjectionParameter{Fields: fields}, nil
	}
	allowed := lf.projectableFields()
	for _, want := range fields {
		if !contains(allowed, want) {
			return ProjectionParameter{}, fmt.Errorf("indexfile: field %q is not projectable from this index: %w", want, ErrNotSupported)
		}
	}
	return ProjectionParameter{Fields: fields}, nil
}

func (lf *LogicalFile) projectableFields() []string {
	t := lf.file.mainTree()
	if t == nil {
		return nil
	}
	schema := t.Schema()
	names := make([]string, len(schema.LeafFields))
	for i := range schema.LeafFields {
		names[i] = fmt.Sprintf("field%d", i)
	}
	return names
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// GetUpdateParameter accepts only the column(s) that can be re-keyed in
// place without an expunge/insert cycle: the trailing, non-key payload
// fields of a leaf entry — the key fields themselves require a full
// re-insert to preserve ordering (§4.8).
func (lf *LogicalFile) GetUpdateParameter(fields []string) (UpdateParameter, error) {
	t := lf.file.mainTree()
	if t == nil {
		return UpdateParameter{}, fmt.Errorf("indexfile: no updatable tree in this flavor: %w", ErrNotSupported)
	}
	schema := t.Schema()
	for _, name := range fields {
		trailing := false
		for i := schema.NodeKeyFields; i < len(schema.LeafFields); i++ {
			trailing = trailing || name == fmt.Sprintf("field%d", i)
		}
		if !trailing {
			return UpdateParameter{}, fmt.Errorf("indexfile: only trailing non-key fields are updatable in place: %w", ErrNotSupported)
		}
	}
	return UpdateParameter{Fields: fields}, nil
}

// GetSortParameter always refuses: the core returns rowids in index order,
// never tuple order (§4.8).
func (lf *LogicalFile) GetSortParameter() error {
	return fmt.Errorf("indexfile: sort is not supported by the index core, only index order: %w", ErrNotSupported)
}

// Open allocates a cursor for one OR-branch of a compiled plan; Or is not
// compiled into a single plan (internal/condition.Compile rejects it), so
// the upper module calls Open once per branch when a predicate was split
// across multiple scans.
func (lf *LogicalFile) Open(treeKey string, plan *condition.Plan) (*Cursor, error) {
	return lf.file.Search(treeKey, plan)
}
