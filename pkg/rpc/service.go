package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "skein.Master"

// MasterServer is the Master service (§4.G). Implemented by
// pkg/rpc.Server, which adapts it onto a *master.Master.
type MasterServer interface {
	KeyValueGet(ctx context.Context, req *KVGetRequest) (*KVGetResponse, error)
	KeyValueSet(ctx context.Context, req *KVSetRequest) (*Empty, error)
	KeyValueDel(ctx context.Context, req *KVDelRequest) (*Empty, error)
	KeyValueGetAll(ctx context.Context, req *Empty) (*KVGetAllResponse, error)
	GetApplicationSpec(ctx context.Context, req *Empty) (*ApplicationSpecResponse, error)
	GetService(ctx context.Context, req *GetServiceRequest) (*GetServiceResponse, error)
	GetContainers(ctx context.Context, req *GetContainersRequest) (*GetContainersResponse, error)
	GetApplicationReport(ctx context.Context, req *Empty) (*ApplicationReportResponse, error)
	Scale(ctx context.Context, req *ScaleRequest) (*Empty, error)
	KillContainer(ctx context.Context, req *KillContainerRequest) (*Empty, error)
	Shutdown(ctx context.Context, req *ShutdownRequest) (*Empty, error)
}

// RegisterMasterServer registers srv's implementation on s.
func RegisterMasterServer(s grpc.ServiceRegistrar, srv MasterServer) {
	s.RegisterService(&masterServiceDesc, srv)
}

func handlerFor[Req any](method func(MasterServer, context.Context, *Req) (interface{}, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(MasterServer), ctx, req)
		}
		fullMethod, _ := grpc.Method(ctx)
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(MasterServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var masterServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MasterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "KeyValueGet",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *KVGetRequest) (interface{}, error) {
				return s.KeyValueGet(ctx, r)
			}),
		},
		{
			MethodName: "KeyValueSet",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *KVSetRequest) (interface{}, error) {
				return s.KeyValueSet(ctx, r)
			}),
		},
		{
			MethodName: "KeyValueDel",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *KVDelRequest) (interface{}, error) {
				return s.KeyValueDel(ctx, r)
			}),
		},
		{
			MethodName: "KeyValueGetAll",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *Empty) (interface{}, error) {
				return s.KeyValueGetAll(ctx, r)
			}),
		},
		{
			MethodName: "GetApplicationSpec",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *Empty) (interface{}, error) {
				return s.GetApplicationSpec(ctx, r)
			}),
		},
		{
			MethodName: "GetService",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *GetServiceRequest) (interface{}, error) {
				return s.GetService(ctx, r)
			}),
		},
		{
			MethodName: "GetContainers",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *GetContainersRequest) (interface{}, error) {
				return s.GetContainers(ctx, r)
			}),
		},
		{
			MethodName: "GetApplicationReport",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *Empty) (interface{}, error) {
				return s.GetApplicationReport(ctx, r)
			}),
		},
		{
			MethodName: "Scale",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *ScaleRequest) (interface{}, error) {
				return s.Scale(ctx, r)
			}),
		},
		{
			MethodName: "KillContainer",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *KillContainerRequest) (interface{}, error) {
				return s.KillContainer(ctx, r)
			}),
		},
		{
			MethodName: "Shutdown",
			Handler: handlerFor(func(s MasterServer, ctx context.Context, r *ShutdownRequest) (interface{}, error) {
				return s.Shutdown(ctx, r)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skein/master.proto",
}
