package indexfile

import (
	"context"
	"fmt"
	"sync"

	"github.com/ngina/bplusindex/internal/verifypb"
)

// verifyStreamInterval is how many pages a Verify pass visits between
// progress sends; a pending Cancel is checked on every page (a single map
// lookup), so cancellation itself is not throttled by this constant —
// only the volume of streamed progress messages is.
const verifyStreamInterval = 64

// VerifyRegistry implements verifypb.VerifyServiceServer over whichever
// Files are currently open, keyed by the FileID each was configured
// with: it is the thing a remote administration tool's gRPC client
// actually talks to (§7's VerifyAborted/Cancel contract, §5's
// cancellation token).
type VerifyRegistry struct {
	mu        sync.Mutex
	files     map[string]*File
	cancelled map[string]bool
}

func NewVerifyRegistry() *VerifyRegistry {
	return &VerifyRegistry{files: make(map[string]*File), cancelled: make(map[string]bool)}
}

// Register makes f visible to Verify/Cancel requests under f.ID(). The
// caller must have set IndexConfig.FileID before opening f.
func (r *VerifyRegistry) Register(f *File) error {
	id := f.ID()
	if id == "" {
		return fmt.Errorf("indexfile: file has no FileID to register under: %w", ErrBadArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[id] = f
	return nil
}

// Unregister removes fileID, refusing any further Verify/Cancel request
// against it.
func (r *VerifyRegistry) Unregister(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, fileID)
	delete(r.cancelled, fileID)
}

func (r *VerifyRegistry) isCancelled(fileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[fileID]
}

// Cancel flags a running Verify against fileID to stop at its next
// progress checkpoint. Acknowledged is false only when fileID names no
// currently-open file — it is true even if no Verify is actually running
// against it, since a Cancel racing a Verify's own completion is not an
// error.
func (r *VerifyRegistry) Cancel(ctx context.Context, req *verifypb.CancelRequest) (*verifypb.CancelResponse, error) {
	r.mu.Lock()
	_, known := r.files[req.FileID]
	if known {
		r.cancelled[req.FileID] = true
	}
	r.mu.Unlock()
	return &verifypb.CancelResponse{Acknowledged: known}, nil
}

// Verify runs a verify() pass over every sub-tree of the named file in
// turn, streaming a VerifyProgress every verifyStreamInterval pages and
// checking for a pending Cancel on every page; the final sent
// message always has Done set, with Aborted set instead of an error if a
// Cancel landed mid-pass (§7: VerifyAborted is a reported outcome, not a
// transport failure).
func (r *VerifyRegistry) Verify(req *verifypb.VerifyRequest, stream verifypb.VerifyService_VerifyServer) error {
	r.mu.Lock()
	f, ok := r.files[req.FileID]
	if ok {
		r.cancelled[req.FileID] = false
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("indexfile: no open file %q: %w", req.FileID, ErrBadArgument)
	}

	var issues []string
	var totalVisited int64
	aborted := false

	for _, t := range f.trees {
		var lastVisited int
		var sendErr error
		cb := func(pagesVisited, issuesFound int) bool {
			lastVisited = pagesVisited
			if r.isCancelled(req.FileID) {
				return false
			}
			if pagesVisited%verifyStreamInterval != 0 {
				return true
			}
			if err := stream.Send(&verifypb.VerifyProgress{
				PagesVisited: totalVisited + int64(pagesVisited),
				IssuesFound:  int64(len(issues) + issuesFound),
			}); err != nil {
				sendErr = err
				return false
			}
			return true
		}

		report, err := t.VerifyStreaming(cb)
		if err != nil {
			return err
		}
		if sendErr != nil {
			return sendErr
		}
		issues = append(issues, report.Issues...)
		totalVisited += int64(lastVisited)
		if report.Aborted {
			aborted = true
			break
		}
	}

	return stream.Send(&verifypb.VerifyProgress{
		PagesVisited: totalVisited,
		IssuesFound:  int64(len(issues)),
		Issues:       issues,
		Done:         true,
		Aborted:      aborted,
	})
}

// Verify runs a synchronous, non-streaming verify() pass over every
// sub-tree of f, for a caller with no use for VerifyRegistry's gRPC
// progress surface. ctx cancellation aborts the walk at its next page
// checkpoint and returns ErrCancel; any inconsistency the walk finds
// returns ErrVerifyAborted wrapping the collected issue count.
func (f *File) Verify(ctx context.Context) error {
	var issues []string
	for _, t := range f.trees {
		report, err := t.VerifyStreaming(func(pagesVisited, issuesFound int) bool {
			return ctx.Err() == nil
		})
		if err != nil {
			return err
		}
		if report.Aborted {
			return ErrCancel
		}
		issues = append(issues, report.Issues...)
	}
	if len(issues) > 0 {
		return fmt.Errorf("indexfile: %d issue(s) found: %w", len(issues), ErrVerifyAborted)
	}
	return nil
}
