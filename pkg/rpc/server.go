package rpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/skein-project/skein/pkg/master"
	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/types"
)

// Server adapts a *master.Master onto the MasterServer interface and
// hosts it behind a grpc.Server, optionally with mutual TLS (§6).
type Server struct {
	m    *master.Master
	grpc *grpc.Server
	log  zerolog.Logger
}

// NewServer builds a Server. If tlsConfig is nil the listener is plain
// TCP; otherwise every connection must present a client certificate
// verified by tlsConfig's ClientCAs.
func NewServer(m *master.Master, tlsConfig *tls.Config, log zerolog.Logger) *Server {
	var opts []grpc.ServerOption
	opts = append(opts, grpc.ChainUnaryInterceptor(metricsInterceptor, recoveryInterceptor(log)))
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	s := &Server{
		m:    m,
		grpc: grpc.NewServer(opts...),
		log:  log.With().Str("component", "rpc").Logger(),
	}
	RegisterMasterServer(s.grpc, s)
	return s
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("master rpc listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the grpc server.
func (s *Server) Stop() { s.grpc.GracefulStop() }

func metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	timer := metrics.NewTimer()
	resp, err := handler(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(info.FullMethod, outcome).Inc()
	timer.ObserveDurationVec(metrics.RPCRequestDuration, info.FullMethod)
	return resp, err
}

func recoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("rpc handler panicked")
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// toStatus maps the master's sentinel error kinds onto §7's grpc codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, master.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, master.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, master.ErrFailedPrecondition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, master.ErrResourceExhausted):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, master.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.Cancelled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// --- MasterServer implementation ---

func (s *Server) KeyValueGet(ctx context.Context, req *KVGetRequest) (*KVGetResponse, error) {
	if req.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "key must not be empty")
	}
	v, err := s.m.KV.Get(ctx, req.Key, req.Wait)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.Error(codes.Cancelled, err.Error())
		}
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &KVGetResponse{Value: v}, nil
}

func (s *Server) KeyValueSet(ctx context.Context, req *KVSetRequest) (*Empty, error) {
	if req.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "key must not be empty")
	}
	s.m.KV.Set(req.Key, req.Value)
	s.m.Scheduler.Rescan(ctx)
	return &Empty{}, nil
}

func (s *Server) KeyValueDel(ctx context.Context, req *KVDelRequest) (*Empty, error) {
	s.m.KV.Del(req.Key)
	return &Empty{}, nil
}

func (s *Server) KeyValueGetAll(ctx context.Context, req *Empty) (*KVGetAllResponse, error) {
	return &KVGetAllResponse{Values: s.m.KV.GetAll()}, nil
}

func (s *Server) GetApplicationSpec(ctx context.Context, req *Empty) (*ApplicationSpecResponse, error) {
	return &ApplicationSpecResponse{Spec: s.m.GetApplicationSpec()}, nil
}

func (s *Server) GetService(ctx context.Context, req *GetServiceRequest) (*GetServiceResponse, error) {
	rt, err := s.m.GetService(req.Service)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetServiceResponse{Runtime: rt}, nil
}

func (s *Server) GetContainers(ctx context.Context, req *GetContainersRequest) (*GetContainersResponse, error) {
	return &GetContainersResponse{Containers: s.m.GetContainers(req.States, req.Services)}, nil
}

func (s *Server) GetApplicationReport(ctx context.Context, req *Empty) (*ApplicationReportResponse, error) {
	return &ApplicationReportResponse{Report: s.m.Report()}, nil
}

func (s *Server) Scale(ctx context.Context, req *ScaleRequest) (*Empty, error) {
	if err := s.m.Scale(req.Service, req.Instances); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) KillContainer(ctx context.Context, req *KillContainerRequest) (*Empty, error) {
	if err := s.m.KillContainer(req.Service, req.Instance); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) Shutdown(ctx context.Context, req *ShutdownRequest) (*Empty, error) {
	final := req.FinalStatus
	if final == types.FinalUndefined {
		final = types.FinalKilled
	}
	if err := s.m.Shutdown(ctx, final, req.Diagnostics); err != nil {
		return nil, toStatus(fmt.Errorf("shutdown: %w", err))
	}
	return &Empty{}, nil
}
