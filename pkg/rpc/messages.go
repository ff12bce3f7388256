package rpc

import "github.com/skein-project/skein/pkg/types"

// Empty is used for requests/responses that carry no data.
type Empty struct{}

type KVGetRequest struct {
	Key  string `json:"key"`
	Wait bool   `json:"wait"`
}

type KVGetResponse struct {
	Value string `json:"value"`
}

type KVSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type KVDelRequest struct {
	Key string `json:"key"`
}

type KVGetAllResponse struct {
	Values map[string]string `json:"values"`
}

type ApplicationSpecResponse struct {
	Spec types.ApplicationSpec `json:"spec"`
}

type GetServiceRequest struct {
	Service string `json:"service"`
}

type GetServiceResponse struct {
	Runtime types.ServiceRuntime `json:"runtime"`
}

type GetContainersRequest struct {
	States   []types.ContainerState `json:"states,omitempty"`
	Services []string                `json:"services,omitempty"`
}

type GetContainersResponse struct {
	Containers []types.Container `json:"containers"`
}

type ScaleRequest struct {
	Service   string `json:"service"`
	Instances int    `json:"instances"`
}

type KillContainerRequest struct {
	Service  string `json:"service"`
	Instance int    `json:"instance"`
}

type ShutdownRequest struct {
	FinalStatus types.FinalStatus `json:"final_status"`
	Diagnostics string            `json:"diagnostics,omitempty"`
}

type ApplicationReportResponse struct {
	Report types.ApplicationReport `json:"report"`
}
