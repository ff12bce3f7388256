package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const daemonServiceName = "skein.Daemon"

// DaemonServer is the Daemon service (§4.H): submit/status/kill plus
// convenience proxies for the Master-level container/KV operations, so a
// CLI only needs one connection (to the Daemon) rather than one per AM.
type DaemonServer interface {
	Ping(ctx context.Context, req *Empty) (*Empty, error)
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
	GetStatus(ctx context.Context, req *GetStatusRequest) (*ApplicationReportResponse, error)
	GetApplications(ctx context.Context, req *GetApplicationsRequest) (*GetApplicationsResponse, error)
	WaitForStart(ctx context.Context, req *GetStatusRequest) (*ApplicationReportResponse, error)
	Kill(ctx context.Context, req *KillRequest) (*Empty, error)
	GetContainers(ctx context.Context, req *AppContainersRequest) (*GetContainersResponse, error)
	KillContainer(ctx context.Context, req *AppKillContainerRequest) (*Empty, error)
	Scale(ctx context.Context, req *AppScaleRequest) (*Empty, error)
	KeyValueGet(ctx context.Context, req *AppKVGetRequest) (*KVGetResponse, error)
	KeyValueSet(ctx context.Context, req *AppKVSetRequest) (*Empty, error)
	KeyValueDel(ctx context.Context, req *AppKVDelRequest) (*Empty, error)
	KeyValueGetAll(ctx context.Context, req *AppKVGetAllRequest) (*KVGetAllResponse, error)
}

// RegisterDaemonServer registers srv's implementation on s.
func RegisterDaemonServer(s grpc.ServiceRegistrar, srv DaemonServer) {
	s.RegisterService(&daemonServiceDesc, srv)
}

func daemonHandlerFor[Req any](method func(DaemonServer, context.Context, *Req) (interface{}, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(DaemonServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: daemonServiceName}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(DaemonServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var daemonServiceDesc = grpc.ServiceDesc{
	ServiceName: daemonServiceName,
	HandlerType: (*DaemonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *Empty) (interface{}, error) {
			return s.Ping(ctx, r)
		})},
		{MethodName: "Submit", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *SubmitRequest) (interface{}, error) {
			return s.Submit(ctx, r)
		})},
		{MethodName: "GetStatus", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *GetStatusRequest) (interface{}, error) {
			return s.GetStatus(ctx, r)
		})},
		{MethodName: "GetApplications", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *GetApplicationsRequest) (interface{}, error) {
			return s.GetApplications(ctx, r)
		})},
		{MethodName: "WaitForStart", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *GetStatusRequest) (interface{}, error) {
			return s.WaitForStart(ctx, r)
		})},
		{MethodName: "Kill", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *KillRequest) (interface{}, error) {
			return s.Kill(ctx, r)
		})},
		{MethodName: "GetContainers", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppContainersRequest) (interface{}, error) {
			return s.GetContainers(ctx, r)
		})},
		{MethodName: "KillContainer", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppKillContainerRequest) (interface{}, error) {
			return s.KillContainer(ctx, r)
		})},
		{MethodName: "Scale", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppScaleRequest) (interface{}, error) {
			return s.Scale(ctx, r)
		})},
		{MethodName: "KeyValueGet", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppKVGetRequest) (interface{}, error) {
			return s.KeyValueGet(ctx, r)
		})},
		{MethodName: "KeyValueSet", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppKVSetRequest) (interface{}, error) {
			return s.KeyValueSet(ctx, r)
		})},
		{MethodName: "KeyValueDel", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppKVDelRequest) (interface{}, error) {
			return s.KeyValueDel(ctx, r)
		})},
		{MethodName: "KeyValueGetAll", Handler: daemonHandlerFor(func(s DaemonServer, ctx context.Context, r *AppKVGetAllRequest) (interface{}, error) {
			return s.KeyValueGetAll(ctx, r)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skein/daemon.proto",
}
