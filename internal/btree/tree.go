package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/ngina/bplusindex/internal/collate"
	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/field"
	"github.com/ngina/bplusindex/internal/pager"
)

// headerPayloadOff/Size place the tree object's persisted header fields
// right after the common 32-byte page header.
const (
	headerPayloadOff  = pager.PageHeaderSize
	headerPayloadSize = 8 /*count*/ + 4 /*step*/ + 4*3 /*root,left,right*/
)

// Header is the tree object's page-resident bookkeeping: entry count, tree
// height ("step"), the root page, and the two end leaves a full forward or
// backward scan starts from.
type Header struct {
	Count        uint64
	Step         uint32
	RootPID      pager.PageID
	LeftLeafPID  pager.PageID
	RightLeafPID pager.PageID
}

func marshalTreeHeader(h Header, buf []byte) {
	binary.LittleEndian.PutUint64(buf[headerPayloadOff:], h.Count)
	binary.LittleEndian.PutUint32(buf[headerPayloadOff+8:], h.Step)
	binary.LittleEndian.PutUint32(buf[headerPayloadOff+12:], uint32(h.RootPID))
	binary.LittleEndian.PutUint32(buf[headerPayloadOff+16:], uint32(h.LeftLeafPID))
	binary.LittleEndian.PutUint32(buf[headerPayloadOff+20:], uint32(h.RightLeafPID))
}

func unmarshalTreeHeader(buf []byte) Header {
	return Header{
		Count:        binary.LittleEndian.Uint64(buf[headerPayloadOff:]),
		Step:         binary.LittleEndian.Uint32(buf[headerPayloadOff+8:]),
		RootPID:      pager.PageID(binary.LittleEndian.Uint32(buf[headerPayloadOff+12:])),
		LeftLeafPID:  pager.PageID(binary.LittleEndian.Uint32(buf[headerPayloadOff+16:])),
		RightLeafPID: pager.PageID(binary.LittleEndian.Uint32(buf[headerPayloadOff+20:])),
	}
}

// Tree is the tree object (C5): the entry-codec pair bound to a schema, and
// the page-resident header, operating against a pager-managed file.
type Tree struct {
	pgr       *pager.Pager
	schema    entry.Schema
	keyCmp    *collate.Comparator
	leafCmp   *collate.Comparator
	uniqueCmp *collate.Comparator // non-nil only for a unique index with a declared key prefix narrower than the full leaf key
	unique    bool
	headerPID pager.PageID
	hdr       Header
	txID      pager.TxID
}

// keyFields returns the field vector over just the node-key-prefix fields.
func keyFields(schema entry.Schema) []field.Spec {
	return schema.LeafFields[:schema.NodeKeyFields]
}

// Create allocates a fresh header page and an empty root leaf, returning a
// Tree ready for use within txID.
func Create(pgr *pager.Pager, txID pager.TxID, schema entry.Schema, unique bool) (*Tree, error) {
	keyCmp := collate.New(keyFields(schema), unique)
	leafCmp := collate.New(schema.LeafFields, unique)
	uniqueCmp := uniqueComparator(schema, unique)

	headerPID, headerBuf := pgr.AllocPage()
	rootPID, rootBuf := pgr.AllocPage()

	Init(rootBuf, true, rootPID, schema, keyCmp)
	pager.SetPageCRC(rootBuf)
	if err := pgr.WritePage(txID, rootPID, rootBuf); err != nil {
		return nil, err
	}
	pgr.UnpinPage(rootPID)

	t := &Tree{
		pgr: pgr, schema: schema, keyCmp: keyCmp, leafCmp: leafCmp,
		uniqueCmp: uniqueCmp, unique: unique,
		headerPID: headerPID, txID: txID,
		hdr: Header{RootPID: rootPID, LeftLeafPID: rootPID, RightLeafPID: rootPID, Step: 1},
	}
	h := pager.PageHeader{Type: pager.PageTypeTreeHeader, ID: headerPID}
	pager.MarshalHeader(&h, headerBuf)
	marshalTreeHeader(t.hdr, headerBuf)
	pager.SetPageCRC(headerBuf)
	if err := pgr.WritePage(txID, headerPID, headerBuf); err != nil {
		return nil, err
	}
	pgr.UnpinPage(headerPID)
	return t, nil
}

// Open loads a previously created tree from its header page.
func Open(pgr *pager.Pager, txID pager.TxID, headerPID pager.PageID, schema entry.Schema, unique bool) (*Tree, error) {
	buf, err := pgr.ReadPage(headerPID)
	if err != nil {
		return nil, fmt.Errorf("btree: read header page: %w", err)
	}
	defer pgr.UnpinPage(headerPID)
	keyCmp := collate.New(keyFields(schema), unique)
	leafCmp := collate.New(schema.LeafFields, unique)
	uniqueCmp := uniqueComparator(schema, unique)
	return &Tree{
		pgr: pgr, schema: schema, keyCmp: keyCmp, leafCmp: leafCmp,
		uniqueCmp: uniqueCmp, unique: unique,
		headerPID: headerPID, txID: txID, hdr: unmarshalTreeHeader(buf),
	}, nil
}

// uniqueComparator builds a comparator over just the declared unique-key
// prefix (entry.Schema.UniqueKeyFields) when the index is unique and that
// prefix is narrower than the full node-key comparator, so a pre-insert
// existence check (P5) doesn't also compare the trailing rowid that makes
// every entry distinct regardless of a real collision.
func uniqueComparator(schema entry.Schema, unique bool) *collate.Comparator {
	if !unique || schema.UniqueKeyFields <= 0 || schema.UniqueKeyFields >= schema.NodeKeyFields {
		return nil
	}
	return collate.New(schema.LeafFields[:schema.UniqueKeyFields], true)
}

// HeaderPID returns the page id holding the tree's persisted header, the
// externally-visible handle a file-id map (C6) stores for this tree.
func (t *Tree) HeaderPID() pager.PageID    { return t.headerPID }
func (t *Tree) Count() uint64              { return t.hdr.Count }
func (t *Tree) Step() uint32               { return t.hdr.Step }
func (t *Tree) Height() uint32             { return t.hdr.Step }
func (t *Tree) RootPID() pager.PageID      { return t.hdr.RootPID }
func (t *Tree) LeftLeafPID() pager.PageID  { return t.hdr.LeftLeafPID }
func (t *Tree) RightLeafPID() pager.PageID { return t.hdr.RightLeafPID }

func (t *Tree) saveHeader() error {
	buf, err := t.pgr.ReadPage(t.headerPID)
	if err != nil {
		return err
	}
	marshalTreeHeader(t.hdr, buf)
	pager.SetPageCRC(buf)
	err = t.pgr.WritePage(t.txID, t.headerPID, buf)
	t.pgr.UnpinPage(t.headerPID)
	return err
}

// makeLeafEntry dumps a tuple's field values into a packed leaf entry.
func (t *Tree) makeLeafEntry(values []any) ([]byte, error) {
	return entry.PackLeaf(t.schema, entry.Header{}, values)
}

// makeNodeEntry builds a node entry routing to childPID, with the key
// prefix copied from a leaf or node entry already known to begin that
// child's range.
func (t *Tree) makeNodeEntry(keyedEntry []byte, childPID pager.PageID) ([]byte, error) {
	return entry.MakeNodeEntry(t.schema, keyedEntry, uint32(childPID))
}

// getPageID extracts the child pointer from a node entry.
func (t *Tree) getPageID(nodeEntry []byte) (pager.PageID, error) {
	pid, err := entry.GetPageID(nodeEntry)
	return pager.PageID(pid), err
}

func (t *Tree) loadPage(pid pager.PageID) (*Page, error) {
	buf, err := t.pgr.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	return Wrap(buf, t.schema, t.keyCmp), nil
}

// LoadPage and UnpinPage expose page attach/detach to the file driver (C6),
// which walks leaf pages directly for its search cursor rather than going
// through a mutating Tree method.
func (t *Tree) LoadPage(pid pager.PageID) (*Page, error) { return t.loadPage(pid) }
func (t *Tree) UnpinPage(pid pager.PageID)                { t.pgr.UnpinPage(pid) }

// Schema, KeyComparator and LeafComparator expose the tree's codec/compare
// wiring so a caller outside this package (the condition compiler, the file
// driver) can build probe keys and evaluate conditions against entries
// this tree produces without duplicating that wiring.
func (t *Tree) Schema() entry.Schema                { return t.schema }
func (t *Tree) KeyComparator() *collate.Comparator  { return t.keyCmp }
func (t *Tree) LeafComparator() *collate.Comparator { return t.leafCmp }

// DescendLeaf walks from the root to the leaf that would hold probeKey,
// using upper_bound instead of lower_bound at every internal level when
// useUpperBound is set — the form a unique-key search or a GreaterThan
// bound uses (§4.6) so that an internal separator equal to the probe key
// still routes into the child holding strictly-greater entries.
func (t *Tree) DescendLeaf(probeKey []byte, useUpperBound bool) (pager.PageID, error) {
	pid := t.hdr.RootPID
	for {
		p, err := t.loadPage(pid)
		if err != nil {
			return 0, err
		}
		if p.IsLeaf() {
			t.pgr.UnpinPage(pid)
			return pid, nil
		}
		entries := p.Entries()
		var idx int
		if useUpperBound {
			idx, err = p.UpperBound(probeKey)
		} else {
			idx, err = p.LowerBound(probeKey)
		}
		if err != nil {
			t.pgr.UnpinPage(pid)
			return 0, err
		}
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		if idx < 0 {
			t.pgr.UnpinPage(pid)
			return 0, fmt.Errorf("btree: internal page %d has no entries", pid)
		}
		childPID, err := t.getPageID(entries[idx])
		t.pgr.UnpinPage(pid)
		if err != nil {
			return 0, err
		}
		pid = childPID
	}
}

func (t *Tree) savePage(p *Page) error {
	pager.SetPageCRC(p.Bytes())
	err := t.pgr.WritePage(t.txID, p.ID(), p.Bytes())
	t.pgr.UnpinPage(p.ID())
	return err
}

// AverageEntriesPerTuple implements C5's estimation helper: the Array
// index's NullArray sub-tree always has exactly one entry per tuple;
// Data/NullData sub-trees vary with how many array elements each tuple
// has, so the caller (file driver, C6) supplies the tuple counts.
func AverageEntriesPerTuple(flavor entry.Flavor, totalEntries, totalTuples, singleEntryTuples uint64) float64 {
	if flavor == entry.ArrayNullArray {
		return 1
	}
	denom := totalTuples - singleEntryTuples
	if denom == 0 {
		return 0
	}
	return float64(totalEntries) / float64(denom)
}
