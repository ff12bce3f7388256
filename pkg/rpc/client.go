package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/skein-project/skein/pkg/types"
)

func finalStatusOf(s string) types.FinalStatus { return types.FinalStatus(s) }

// jsonCallOption is the default call option every client invocation uses
// so the server's codec negotiation selects the JSON codec instead of
// protobuf's default.
var jsonCallOption = grpc.CallContentSubtype(codecName)

// MasterClient is a thin typed wrapper over a grpc.ClientConn speaking
// the Master service. Every call carries a bounded timeout by default.
type MasterClient struct {
	cc      *grpc.ClientConn
	timeout time.Duration
}

// NewMasterClient wraps an established connection. timeout defaults to
// 10s if zero.
func NewMasterClient(cc *grpc.ClientConn, timeout time.Duration) *MasterClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MasterClient{cc: cc, timeout: timeout}
}

func (c *MasterClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, jsonCallOption)
}

// KeyValueGet calls KeyValueGet. wait=true may block up to ctx's deadline
// (callers doing a blocking rendezvous wait should pass a long-lived or
// cancellable ctx rather than rely on the client's default timeout).
func (c *MasterClient) KeyValueGet(ctx context.Context, key string, wait bool) (string, error) {
	req := &KVGetRequest{Key: key, Wait: wait}
	resp := &KVGetResponse{}
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/KeyValueGet", req, resp, jsonCallOption); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (c *MasterClient) KeyValueSet(ctx context.Context, key, value string) error {
	return c.invoke(ctx, "KeyValueSet", &KVSetRequest{Key: key, Value: value}, &Empty{})
}

func (c *MasterClient) KeyValueDel(ctx context.Context, key string) error {
	return c.invoke(ctx, "KeyValueDel", &KVDelRequest{Key: key}, &Empty{})
}

func (c *MasterClient) KeyValueGetAll(ctx context.Context) (map[string]string, error) {
	resp := &KVGetAllResponse{}
	if err := c.invoke(ctx, "KeyValueGetAll", &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *MasterClient) GetApplicationSpec(ctx context.Context) (*ApplicationSpecResponse, error) {
	resp := &ApplicationSpecResponse{}
	if err := c.invoke(ctx, "GetApplicationSpec", &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MasterClient) GetService(ctx context.Context, service string) (*GetServiceResponse, error) {
	resp := &GetServiceResponse{}
	if err := c.invoke(ctx, "GetService", &GetServiceRequest{Service: service}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MasterClient) GetContainers(ctx context.Context, req *GetContainersRequest) (*GetContainersResponse, error) {
	resp := &GetContainersResponse{}
	if err := c.invoke(ctx, "GetContainers", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MasterClient) GetApplicationReport(ctx context.Context) (*ApplicationReportResponse, error) {
	resp := &ApplicationReportResponse{}
	if err := c.invoke(ctx, "GetApplicationReport", &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MasterClient) Scale(ctx context.Context, service string, instances int) error {
	return c.invoke(ctx, "Scale", &ScaleRequest{Service: service, Instances: instances}, &Empty{})
}

func (c *MasterClient) KillContainer(ctx context.Context, service string, instance int) error {
	return c.invoke(ctx, "KillContainer", &KillContainerRequest{Service: service, Instance: instance}, &Empty{})
}

func (c *MasterClient) Shutdown(ctx context.Context, finalStatus string, diagnostics string) error {
	return c.invoke(ctx, "Shutdown", &ShutdownRequest{FinalStatus: finalStatusOf(finalStatus), Diagnostics: diagnostics}, &Empty{})
}
