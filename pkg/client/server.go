package client

import (
	"context"

	"github.com/skein-project/skein/pkg/rpc"
)

// Server adapts a *Daemon onto rpc.DaemonServer. Container/KV/Scale
// operations are served directly off the in-process master.Master rather
// than round-tripping through that AM's own mTLS Master RPC: the Master
// RPC's purpose is to be reachable by containers via
// SKEIN_APPMASTER_ADDRESS, not to be the CLI's only path to the same
// state the Daemon already holds a reference to.
type Server struct {
	d *Daemon
}

// NewServer adapts d onto the Daemon RPC surface.
func NewServer(d *Daemon) *Server { return &Server{d: d} }

func (s *Server) Ping(ctx context.Context, req *rpc.Empty) (*rpc.Empty, error) {
	return &rpc.Empty{}, s.d.Ping()
}

func (s *Server) Submit(ctx context.Context, req *rpc.SubmitRequest) (*rpc.SubmitResponse, error) {
	id, err := s.d.Submit(ctx, req.Spec)
	if err != nil {
		return nil, err
	}
	return &rpc.SubmitResponse{ID: id}, nil
}

func (s *Server) GetStatus(ctx context.Context, req *rpc.GetStatusRequest) (*rpc.ApplicationReportResponse, error) {
	r, err := s.d.GetStatus(req.ID)
	if err != nil {
		return nil, err
	}
	return &rpc.ApplicationReportResponse{Report: r}, nil
}

func (s *Server) GetApplications(ctx context.Context, req *rpc.GetApplicationsRequest) (*rpc.GetApplicationsResponse, error) {
	return &rpc.GetApplicationsResponse{Reports: s.d.GetApplications(req.States)}, nil
}

func (s *Server) WaitForStart(ctx context.Context, req *rpc.GetStatusRequest) (*rpc.ApplicationReportResponse, error) {
	r, err := s.d.WaitForStart(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &rpc.ApplicationReportResponse{Report: r}, nil
}

func (s *Server) Kill(ctx context.Context, req *rpc.KillRequest) (*rpc.Empty, error) {
	return &rpc.Empty{}, s.d.Kill(ctx, req.ID)
}

func (s *Server) GetContainers(ctx context.Context, req *rpc.AppContainersRequest) (*rpc.GetContainersResponse, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return &rpc.GetContainersResponse{Containers: app.master.GetContainers(req.States, req.Services)}, nil
}

func (s *Server) KillContainer(ctx context.Context, req *rpc.AppKillContainerRequest) (*rpc.Empty, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return &rpc.Empty{}, app.master.KillContainer(req.Service, req.Instance)
}

func (s *Server) Scale(ctx context.Context, req *rpc.AppScaleRequest) (*rpc.Empty, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return &rpc.Empty{}, app.master.Scale(req.Service, req.Instances)
}

func (s *Server) KeyValueGet(ctx context.Context, req *rpc.AppKVGetRequest) (*rpc.KVGetResponse, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	v, err := app.master.KV.Get(ctx, req.Key, req.Wait)
	if err != nil {
		return nil, err
	}
	return &rpc.KVGetResponse{Value: v}, nil
}

func (s *Server) KeyValueSet(ctx context.Context, req *rpc.AppKVSetRequest) (*rpc.Empty, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	app.master.KV.Set(req.Key, req.Value)
	app.master.Scheduler.Rescan(ctx)
	return &rpc.Empty{}, nil
}

func (s *Server) KeyValueDel(ctx context.Context, req *rpc.AppKVDelRequest) (*rpc.Empty, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	app.master.KV.Del(req.Key)
	return &rpc.Empty{}, nil
}

func (s *Server) KeyValueGetAll(ctx context.Context, req *rpc.AppKVGetAllRequest) (*rpc.KVGetAllResponse, error) {
	app, err := s.d.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return &rpc.KVGetAllResponse{Values: app.master.KV.GetAll()}, nil
}
