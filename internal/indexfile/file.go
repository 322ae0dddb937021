// Package indexfile implements the file driver (C6) and the logical-file
// façade (C8): the pager-backed tree(s) behind one open index, the bounded
// page-object cache a search cursor walks, and the negotiation the upper
// module goes through before it is handed a cursor.
package indexfile

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/btree"
	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/pager"
)

// subtreeKey names the (at most three) trees a single logical index keeps,
// per the Array flavor's three-sub-tree split (§3.2); a B-tree or Bitmap
// index keeps exactly one, under the "main" key.
type subtreeKey string

const (
	subtreeMain      subtreeKey = "main"
	subtreeData      subtreeKey = "data"
	subtreeNullData  subtreeKey = "nulldata"
	subtreeNullArray subtreeKey = "nullarray"
)

// IndexConfig is the struct-literal configuration for a logical index
// file, mirroring pager.PagerConfig's zero-value-default style.
type IndexConfig struct {
	// TreeType names the index flavor this file drives: "array", "btree"
	// or "bitmap" — the value that prefixes the condition compiler's
	// packed grammar string (§4.7) and selects which tree(s) Create/Open
	// build.
	TreeType string
	// CacheFloor is the minimum number of page objects the driver's LRU
	// cache holds onto regardless of memory pressure (§4.6); zero
	// resolves to the spec's floor of 5.
	CacheFloor int
	// FileID identifies this file to a VerifyRegistry (verify.go), so a
	// remote administration tool can name it in a VerifyRequest/
	// CancelRequest. Left empty for a file that is never registered.
	FileID string
}

func (c IndexConfig) resolve() IndexConfig {
	if c.CacheFloor <= 0 {
		c.CacheFloor = minCacheFloor
	}
	return c
}

// File is the file driver (C6): the pager-backed tree(s) behind one
// logical index, plus the bounded page-object cache a search cursor walks
// through.
type File struct {
	cfg   IndexConfig
	trees map[subtreeKey]*btree.Tree
	cache *pageCache

	// pgr/txID/counterPID/counter back the Array flavor's persisted
	// whole-tuple counter (counter.go). counterPID is pager.InvalidPageID
	// for a btree/bitmap file, which never allocates a counter page.
	pgr        *pager.Pager
	txID       pager.TxID
	counterPID pager.PageID
	counter    tupleCounter
}

// schemaKeys maps a config's tree type to the sub-tree keys it needs and
// the schema-map key each one is looked up under.
func schemaKeys(treeType string) (map[subtreeKey]string, error) {
	switch treeType {
	case "array":
		return map[subtreeKey]string{
			subtreeData:      "data",
			subtreeNullData:  "nulldata",
			subtreeNullArray: "nullarray",
		}, nil
	case "btree", "bitmap":
		return map[subtreeKey]string{subtreeMain: "main"}, nil
	default:
		return nil, fmt.Errorf("indexfile: unknown tree type %q: %w", treeType, ErrNotSupported)
	}
}

// Create builds a brand new index file of the flavor named by cfg.TreeType.
// For "array" it allocates all three sub-trees (Data/NullData/NullArray);
// for "btree" and "bitmap" it allocates the single tree schemas["main"]
// describes.
func Create(pgr *pager.Pager, txID pager.TxID, cfg IndexConfig, schemas map[string]entry.Schema, unique bool) (*File, error) {
	cfg = cfg.resolve()
	keys, err := schemaKeys(cfg.TreeType)
	if err != nil {
		return nil, err
	}
	f := &File{
		cfg: cfg, trees: make(map[subtreeKey]*btree.Tree), cache: newPageCache(cfg.CacheFloor),
		pgr: pgr, txID: txID, counterPID: pager.InvalidPageID,
	}
	for key, schemaKey := range keys {
		schema, ok := schemas[schemaKey]
		if !ok {
			return nil, fmt.Errorf("indexfile: %s flavor requires a %q schema: %w", cfg.TreeType, schemaKey, ErrBadArgument)
		}
		t, err := btree.Create(pgr, txID, schema, unique)
		if err != nil {
			return nil, err
		}
		f.trees[key] = t
	}
	if cfg.TreeType == "array" {
		counterPID, err := createCounterPage(pgr, txID)
		if err != nil {
			return nil, err
		}
		f.counterPID = counterPID
	}
	return f, nil
}

// Open reattaches to a previously created index file from its persisted
// tree header page ids. Resolving those ids from the file-id map (§6) is
// the caller's job; this package only knows how to reopen a tree once
// handed its header page id.
func Open(pgr *pager.Pager, txID pager.TxID, cfg IndexConfig, schemas map[string]entry.Schema, headers map[string]pager.PageID, unique bool) (*File, error) {
	cfg = cfg.resolve()
	keys, err := schemaKeys(cfg.TreeType)
	if err != nil {
		return nil, err
	}
	f := &File{
		cfg: cfg, trees: make(map[subtreeKey]*btree.Tree), cache: newPageCache(cfg.CacheFloor),
		pgr: pgr, txID: txID, counterPID: pager.InvalidPageID,
	}
	for key, schemaKey := range keys {
		schema, ok := schemas[schemaKey]
		if !ok {
			return nil, fmt.Errorf("indexfile: missing schema %q: %w", schemaKey, ErrBadArgument)
		}
		headerPID, ok := headers[schemaKey]
		if !ok {
			return nil, fmt.Errorf("indexfile: missing header page id for %q: %w", schemaKey, ErrBadArgument)
		}
		t, err := btree.Open(pgr, txID, headerPID, schema, unique)
		if err != nil {
			return nil, err
		}
		f.trees[key] = t
	}
	if cfg.TreeType == "array" {
		counterPID, ok := headers["counter"]
		if !ok {
			return nil, fmt.Errorf("indexfile: array flavor requires a %q header page id: %w", "counter", ErrBadArgument)
		}
		counter, err := loadCounterPage(pgr, counterPID)
		if err != nil {
			return nil, err
		}
		f.counterPID = counterPID
		f.counter = counter
	}
	return f, nil
}

// Tree returns the sub-tree named by key ("main", "data", "nulldata" or
// "nullarray"), for a caller that needs to drive it directly (array.go,
// cursor.go, estimate.go all do).
func (f *File) Tree(key string) (*btree.Tree, bool) {
	t, ok := f.trees[subtreeKey(key)]
	return t, ok
}

func (f *File) mainTree() *btree.Tree { return f.trees[subtreeMain] }

// CounterPID returns the page id of the Array flavor's persisted tuple
// counter (counter.go), the handle a file-id map stores alongside each
// sub-tree's HeaderPID so a later Open can find it again. Returns
// pager.InvalidPageID for a btree/bitmap file.
func (f *File) CounterPID() pager.PageID { return f.counterPID }

// ID returns the file's configured FileID, for a caller registering it
// with a VerifyRegistry.
func (f *File) ID() string { return f.cfg.FileID }

// Close releases the page-object cache; the pager and trees are owned by
// the caller and outlive the File.
func (f *File) Close() {
	f.cache.clear()
}
