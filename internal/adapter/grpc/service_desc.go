package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "kiosk.v1.KioskService"

const (
	methodDispatch         = "/" + ServiceName + "/Dispatch"
	methodGetView          = "/" + ServiceName + "/GetView"
	methodGetQuote         = "/" + ServiceName + "/GetQuote"
	methodListTransactions = "/" + ServiceName + "/ListTransactions"
)

// KioskServiceServer is the server API for KioskService.
// Every request and response is a google.protobuf.Struct.
type KioskServiceServer interface {
	Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetQuote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// KioskServiceDesc describes KioskService for grpc.Server registration
var KioskServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KioskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: unaryHandler(methodDispatch, KioskServiceServer.Dispatch)},
		{MethodName: "GetView", Handler: unaryHandler(methodGetView, KioskServiceServer.GetView)},
		{MethodName: "GetQuote", Handler: unaryHandler(methodGetQuote, KioskServiceServer.GetQuote)},
		{MethodName: "ListTransactions", Handler: unaryHandler(methodListTransactions, KioskServiceServer.ListTransactions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kiosk/v1/kiosk.proto",
}

// RegisterKioskServiceServer registers srv on s
func RegisterKioskServiceServer(s grpc.ServiceRegistrar, srv KioskServiceServer) {
	s.RegisterService(&KioskServiceDesc, srv)
}

type unaryMethod func(KioskServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler decodes a Struct request and runs call through the server's interceptor chain
func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(KioskServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(KioskServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client is the client API for KioskService
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a new KioskService client on cc
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Dispatch sends one flow action
func (c *Client) Dispatch(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDispatch, req, opts...)
}

// GetView returns the terminal's current view
func (c *Client) GetView(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetView, req, opts...)
}

// GetQuote returns a quote and, when an amount is given, its fee breakdown
func (c *Client) GetQuote(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetQuote, req, opts...)
}

// ListTransactions returns a page of completed transactions
func (c *Client) ListTransactions(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListTransactions, req, opts...)
}
