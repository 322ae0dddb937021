package btree

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/entry"
	"github.com/ngina/bplusindex/internal/pager"
)

// Walker implements pager.NodeWalker and pager.PageWalker without needing
// a tree's entry schema: a node entry's trailing child_pid word is
// schema-independent (entry.GetPageID only looks at the last word), so
// the walker can recurse through internal pages generically, and the
// tree header page's root_pid is read directly off its known layout.
type Walker struct{}

// Walk decodes one page far enough to report the pages it references, for
// GC's reachability scan.
func (Walker) Walk(buf []byte) (children []pager.PageID, ok bool) {
	h := pager.UnmarshalHeader(buf)
	switch h.Type {
	case pager.PageTypeTreeHeader:
		hdr := unmarshalTreeHeader(buf)
		return []pager.PageID{hdr.RootPID}, true
	case pager.PageTypeBTreeLeaf:
		return nil, true
	case pager.PageTypeBTreeInternal:
		kids, err := nodePageChildren(buf)
		if err != nil {
			return nil, false
		}
		return kids, true
	default:
		return nil, false
	}
}

// Describe renders one page for DumpTree's human-readable output.
func (Walker) Describe(buf []byte) (line string, children []pager.PageID) {
	h := pager.UnmarshalHeader(buf)
	switch h.Type {
	case pager.PageTypeTreeHeader:
		hdr := unmarshalTreeHeader(buf)
		return fmt.Sprintf("tree header: count=%d step=%d root=%d", hdr.Count, hdr.Step, hdr.RootPID),
			[]pager.PageID{hdr.RootPID}
	case pager.PageTypeBTreeLeaf:
		sp := pager.WrapSlottedPage(buf)
		return fmt.Sprintf("leaf: %d live entries", sp.LiveRecords()), nil
	case pager.PageTypeBTreeInternal:
		kids, err := nodePageChildren(buf)
		if err != nil {
			return fmt.Sprintf("internal: decode error: %v", err), nil
		}
		return fmt.Sprintf("internal: %d children", len(kids)), kids
	default:
		return fmt.Sprintf("unrecognized page type %v", h.Type), nil
	}
}

func nodePageChildren(buf []byte) ([]pager.PageID, error) {
	sp := pager.WrapSlottedPage(buf)
	n := sp.SlotCount()
	children := make([]pager.PageID, 0, n)
	for i := 0; i < n; i++ {
		if sp.IsDeleted(i) {
			continue
		}
		pid, err := entry.GetPageID(sp.GetRecord(i))
		if err != nil {
			return nil, err
		}
		children = append(children, pager.PageID(pid))
	}
	return children, nil
}

// Registry is a minimal RootProvider listing the header pages of every
// tree a logical file (C6/C8) currently has open, so a GC pass can treat
// each tree's header (and, transitively via Walker, its root and every
// descendant) as reachable.
type Registry struct {
	headerPIDs []pager.PageID
}

// NewRegistry builds a Registry over the given tree header pages.
func NewRegistry(headerPIDs ...pager.PageID) *Registry {
	return &Registry{headerPIDs: append([]pager.PageID(nil), headerPIDs...)}
}

// Roots implements pager.RootProvider.
func (r *Registry) Roots() ([]pager.PageID, error) {
	return append([]pager.PageID(nil), r.headerPIDs...), nil
}
