package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/skein-project/skein/pkg/types"
)

// DaemonClient is a thin typed wrapper over a grpc.ClientConn speaking the
// Daemon service, for use by the CLI.
type DaemonClient struct {
	cc      *grpc.ClientConn
	timeout time.Duration
}

// NewDaemonClient wraps an established connection. timeout defaults to
// 10s if zero; it does not bound WaitForStart or KeyValueGet, whose
// caller-supplied ctx governs how long to block.
func NewDaemonClient(cc *grpc.ClientConn, timeout time.Duration) *DaemonClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DaemonClient{cc: cc, timeout: timeout}
}

func (c *DaemonClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.cc.Invoke(ctx, "/"+daemonServiceName+"/"+method, req, resp, jsonCallOption)
}

func (c *DaemonClient) Ping(ctx context.Context) error {
	return c.invoke(ctx, "Ping", &Empty{}, &Empty{})
}

func (c *DaemonClient) Submit(ctx context.Context, spec types.ApplicationSpec) (string, error) {
	resp := &SubmitResponse{}
	if err := c.invoke(ctx, "Submit", &SubmitRequest{Spec: spec}, resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *DaemonClient) GetStatus(ctx context.Context, id string) (types.ApplicationReport, error) {
	resp := &ApplicationReportResponse{}
	if err := c.invoke(ctx, "GetStatus", &GetStatusRequest{ID: id}, resp); err != nil {
		return types.ApplicationReport{}, err
	}
	return resp.Report, nil
}

func (c *DaemonClient) GetApplications(ctx context.Context, states []types.ApplicationState) ([]types.ApplicationReport, error) {
	resp := &GetApplicationsResponse{}
	if err := c.invoke(ctx, "GetApplications", &GetApplicationsRequest{States: states}, resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// WaitForStart blocks until id's AM reports a bound endpoint or ctx is
// cancelled; callers should pass a context with an appropriate deadline.
func (c *DaemonClient) WaitForStart(ctx context.Context, id string) (types.ApplicationReport, error) {
	resp := &ApplicationReportResponse{}
	if err := c.cc.Invoke(ctx, "/"+daemonServiceName+"/WaitForStart", &GetStatusRequest{ID: id}, resp, jsonCallOption); err != nil {
		return types.ApplicationReport{}, err
	}
	return resp.Report, nil
}

func (c *DaemonClient) Kill(ctx context.Context, id string) error {
	return c.invoke(ctx, "Kill", &KillRequest{ID: id}, &Empty{})
}

func (c *DaemonClient) GetContainers(ctx context.Context, id string, states []types.ContainerState, services []string) ([]types.Container, error) {
	resp := &GetContainersResponse{}
	req := &AppContainersRequest{ID: id, States: states, Services: services}
	if err := c.invoke(ctx, "GetContainers", req, resp); err != nil {
		return nil, err
	}
	return resp.Containers, nil
}

func (c *DaemonClient) KillContainer(ctx context.Context, id, service string, instance int) error {
	return c.invoke(ctx, "KillContainer", &AppKillContainerRequest{ID: id, Service: service, Instance: instance}, &Empty{})
}

func (c *DaemonClient) Scale(ctx context.Context, id, service string, instances int) error {
	return c.invoke(ctx, "Scale", &AppScaleRequest{ID: id, Service: service, Instances: instances}, &Empty{})
}

func (c *DaemonClient) KeyValueGet(ctx context.Context, id, key string, wait bool) (string, error) {
	resp := &KVGetResponse{}
	req := &AppKVGetRequest{ID: id, Key: key, Wait: wait}
	if err := c.cc.Invoke(ctx, "/"+daemonServiceName+"/KeyValueGet", req, resp, jsonCallOption); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (c *DaemonClient) KeyValueSet(ctx context.Context, id, key, value string) error {
	return c.invoke(ctx, "KeyValueSet", &AppKVSetRequest{ID: id, Key: key, Value: value}, &Empty{})
}

func (c *DaemonClient) KeyValueDel(ctx context.Context, id, key string) error {
	return c.invoke(ctx, "KeyValueDel", &AppKVDelRequest{ID: id, Key: key}, &Empty{})
}

func (c *DaemonClient) KeyValueGetAll(ctx context.Context, id string) (map[string]string, error) {
	resp := &KVGetAllResponse{}
	if err := c.invoke(ctx, "KeyValueGetAll", &AppKVGetAllRequest{ID: id}, resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}
