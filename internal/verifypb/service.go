package verifypb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

// JSONCodec is the same wire codec the teacher's own gRPC service
// registers: these messages are plain JSON-tagged structs, not
// protobuf-generated ones, so the codec just delegates to encoding/json.
type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// VerifyServiceServer is implemented by whatever owns the open index
// files (C8's logical-file façade) and can run a verify() pass against
// one, streaming VerifyProgress updates until Done or Aborted.
type VerifyServiceServer interface {
	Verify(req *VerifyRequest, stream VerifyService_VerifyServer) error
	Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error)
}

// VerifyService_VerifyServer is the server-side handle for the streaming
// Verify RPC, mirroring the subset of grpc.ServerStream a hand-written
// streaming service needs.
type VerifyService_VerifyServer interface {
	Send(*VerifyProgress) error
	Context() context.Context
}

type verifyServiceVerifyServer struct {
	grpc.ServerStream
}

func (s *verifyServiceVerifyServer) Send(p *VerifyProgress) error {
	return s.ServerStream.SendMsg(p)
}

// RegisterVerifyServiceServer wires srv into s under the VerifyService
// name, the same manual grpc.ServiceDesc approach the teacher's gRPC
// server uses for its own (non-streaming) service.
func RegisterVerifyServiceServer(s *grpc.Server, srv VerifyServiceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "bplusindex.VerifyService",
		HandlerType: (*VerifyServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Cancel", Handler: _VerifyService_Cancel_Handler},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Verify",
				Handler:       _VerifyService_Verify_Handler,
				ServerStreams: true,
			},
		},
		Metadata: "verifypb",
	}, srv)
}

func _VerifyService_Cancel_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerifyServiceServer).Cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bplusindex.VerifyService/Cancel"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerifyServiceServer).Cancel(ctx, req.(*CancelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _VerifyService_Verify_Handler(srv any, stream grpc.ServerStream) error {
	in := new(VerifyRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(VerifyServiceServer).Verify(in, &verifyServiceVerifyServer{ServerStream: stream})
}

// VerifyServiceClient is the client-side stub a remote administration
// tool uses to watch and cancel a verify pass.
type VerifyServiceClient interface {
	Verify(ctx context.Context, req *VerifyRequest, opts ...grpc.CallOption) (VerifyService_VerifyClient, error)
	Cancel(ctx context.Context, req *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error)
}

// VerifyService_VerifyClient is the client-side handle for the streaming
// Verify RPC.
type VerifyService_VerifyClient interface {
	Recv() (*VerifyProgress, error)
	Context() context.Context
}

type verifyServiceClient struct {
	cc *grpc.ClientConn
}

// NewVerifyServiceClient builds a client stub over an established
// connection; callers should dial with
// grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})) as the teacher
// does for its own gRPC client helper.
func NewVerifyServiceClient(cc *grpc.ClientConn) VerifyServiceClient {
	return &verifyServiceClient{cc: cc}
}

func (c *verifyServiceClient) Cancel(ctx context.Context, req *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	resp := new(CancelResponse)
	if err := c.cc.Invoke(ctx, "/bplusindex.VerifyService/Cancel", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *verifyServiceClient) Verify(ctx context.Context, req *VerifyRequest, opts ...grpc.CallOption) (VerifyService_VerifyClient, error) {
	desc := &grpc.StreamDesc{StreamName: "Verify", ServerStreams: true}
	stream, err := c.cc.NewStream(ctx, desc, "/bplusindex.VerifyService/Verify", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &verifyServiceVerifyClient{stream}, nil
}

type verifyServiceVerifyClient struct {
	grpc.ClientStream
}

func (c *verifyServiceVerifyClient) Recv() (*VerifyProgress, error) {
	p := new(VerifyProgress)
	if err := c.ClientStream.RecvMsg(p); err != nil {
		return nil, err
	}
	return p, nil
}
