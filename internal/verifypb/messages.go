// Package verifypb defines the message and service types for the
// VerifyService gRPC-style streaming API: a remote administration tool
// subscribes to a running verify() pass and can request it cancel early,
// per §5's cancellation-token / §7's VerifyAborted and Cancel contract.
//
// Following the same approach as the teacher's own cmd/server gRPC
// service, these are hand-written message structs registered against a
// manual grpc.ServiceDesc rather than protoc-generated types — there is
// no .proto source and no protobuf wire codec involved, just grpc's
// transport and stream plumbing with a JSON payload codec.
package verifypb

// VerifyRequest names the tree to verify by its header page id's
// persisted file identity, as negotiated by the logical-file façade
// (C8) that owns the open file.
type VerifyRequest struct {
	FileID string `json:"file_id"`
}

// VerifyProgress is one update streamed back for an in-flight verify
// pass.
type VerifyProgress struct {
	PagesVisited int64    `json:"pages_visited"`
	IssuesFound  int64    `json:"issues_found"`
	Issues       []string `json:"issues,omitempty"`
	Done         bool     `json:"done"`
	Aborted      bool     `json:"aborted"`
}

// CancelRequest asks a running verify pass (identified by the same
// FileID it was started with) to stop at its next poll point.
type CancelRequest struct {
	FileID string `json:"file_id"`
}

// CancelResponse reports whether the server knows the requested FileID; a
// known file is acknowledged whether or not a verify pass is running on it.
type CancelResponse struct {
	Acknowledged bool `json:"acknowledged"`
}
