package rpc

import "github.com/skein-project/skein/pkg/types"

// Daemon-level wire messages (§4.H). Apart from SubmitRequest and
// GetApplicationsRequest, each request below is scoped to one application
// by its ID field, since a single Daemon process proxies operations for
// every application it has submitted.

type SubmitRequest struct {
	Spec types.ApplicationSpec `json:"spec"`
}

type SubmitResponse struct {
	ID string `json:"id"`
}

type GetStatusRequest struct {
	ID string `json:"id"`
}

type GetApplicationsRequest struct {
	States []types.ApplicationState `json:"states,omitempty"`
}

type GetApplicationsResponse struct {
	Reports []types.ApplicationReport `json:"reports"`
}

type KillRequest struct {
	ID string `json:"id"`
}

type AppContainersRequest struct {
	ID       string                  `json:"id"`
	States   []types.ContainerState `json:"states,omitempty"`
	Services []string                `json:"services,omitempty"`
}

type AppKillContainerRequest struct {
	ID       string `json:"id"`
	Service  string `json:"service"`
	Instance int    `json:"instance"`
}

type AppScaleRequest struct {
	ID        string `json:"id"`
	Service   string `json:"service"`
	Instances int    `json:"instances"`
}

type AppKVGetRequest struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Wait bool   `json:"wait"`
}

type AppKVSetRequest struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type AppKVDelRequest struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type AppKVGetAllRequest struct {
	ID string `json:"id"`
}
