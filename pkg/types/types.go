// Package types holds the canonical in-memory representation of an
// application submitted to Skein: its spec, the runtime state of its
// services, and the container records the Application Master supervises.
package types

import "time"

// ContainerState is the state of a single container instance.
type ContainerState string

const (
	ContainerWaiting   ContainerState = "WAITING"
	ContainerRequested ContainerState = "REQUESTED"
	ContainerRunning   ContainerState = "RUNNING"
	ContainerSucceeded ContainerState = "SUCCEEDED"
	ContainerFailed    ContainerState = "FAILED"
	ContainerKilled    ContainerState = "KILLED"
)

// Terminal reports whether s is one of SUCCEEDED, FAILED, KILLED.
func (s ContainerState) Terminal() bool {
	switch s {
	case ContainerSucceeded, ContainerFailed, ContainerKilled:
		return true
	default:
		return false
	}
}

// FinalStatus is the application's terminal outcome.
type FinalStatus string

const (
	FinalUndefined FinalStatus = ""
	FinalSucceeded FinalStatus = "SUCCEEDED"
	FinalFailed    FinalStatus = "FAILED"
	FinalKilled    FinalStatus = "KILLED"
)

// ApplicationState mirrors the coarse lifecycle a Daemon client observes.
type ApplicationState string

const (
	ApplicationNew       ApplicationState = "NEW"
	ApplicationSubmitted ApplicationState = "SUBMITTED"
	ApplicationAccepted  ApplicationState = "ACCEPTED"
	ApplicationRunning   ApplicationState = "RUNNING"
	ApplicationFinished  ApplicationState = "FINISHED"
	ApplicationFailed    ApplicationState = "FAILED"
	ApplicationKilled    ApplicationState = "KILLED"
)

// FileVisibility controls how the cluster interface caches a localized file.
type FileVisibility string

const (
	VisibilityPublic      FileVisibility = "public"
	VisibilityPrivate     FileVisibility = "private"
	VisibilityApplication FileVisibility = "application"
)

// FileKind distinguishes a plain file from an archive to be unpacked.
type FileKind string

const (
	FileKindFile    FileKind = "file"
	FileKindArchive FileKind = "archive"
)

// File describes one localized resource a container needs before it starts.
type File struct {
	Source     string         `json:"source" yaml:"source"`
	Kind       FileKind       `json:"kind" yaml:"kind"`
	Visibility FileVisibility `json:"visibility" yaml:"visibility"`
	Size       int64          `json:"size,omitempty" yaml:"size,omitempty"`
	Timestamp  int64          `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Resources is a container's resource footprint.
type Resources struct {
	MemoryMiB int `json:"memory" yaml:"memory"`
	VCores    int `json:"vcores" yaml:"vcores"`
}

// ServiceSpec is the immutable description of one named service.
type ServiceSpec struct {
	Instances   int               `json:"instances" yaml:"instances"`
	MaxRestarts int               `json:"max_restarts" yaml:"max_restarts"`
	Resources   Resources         `json:"resources" yaml:"resources"`
	Files       map[string]File   `json:"files,omitempty" yaml:"files,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Commands    []string          `json:"commands" yaml:"commands"`
	Depends     []string          `json:"depends,omitempty" yaml:"depends,omitempty"`
}

// Unbounded reports whether the service's restart budget is unlimited.
func (s ServiceSpec) Unbounded() bool { return s.MaxRestarts < 0 }

// ApplicationSpec is the immutable, validated description of a submission.
type ApplicationSpec struct {
	Name        string                 `json:"name" yaml:"name"`
	Queue       string                 `json:"queue,omitempty" yaml:"queue,omitempty"`
	MaxAttempts int                    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Tags        []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	Services    map[string]ServiceSpec `json:"services" yaml:"services"`
}

// Container is one instance of a service, tracked by the registry.
type Container struct {
	ServiceName     string
	Instance        int
	State           ContainerState
	YarnContainerID string
	StartTime       time.Time
	FinishTime      time.Time
	ExitStatus      int
	Diagnostics     string
}

// ServiceRuntime is the mutable per-service bookkeeping the registry and
// scheduler maintain alongside the immutable ServiceSpec.
type ServiceRuntime struct {
	Desired      int
	NextInstance int
	Containers   []*Container
	Eligible     bool
	FailureCount int
	Failed       bool
}

// ApplicationReport is the projection of AM state a Daemon client consumes.
type ApplicationReport struct {
	ID          string
	Name        string
	User        string
	Queue       string
	Tags        []string
	Host        string
	Port        int
	TrackingURL string
	State       ApplicationState
	FinalStatus FinalStatus
	Progress    float64
	Diagnostics string
	StartTime   time.Time
	FinishTime  time.Time
}

// Enqueuer hands a freshly created container instance to whatever
// component is responsible for turning it into an allocation request.
// Implemented by the YARN reconciler; used by the scheduler (on a
// service becoming eligible) and the restart policy (on a restart).
type Enqueuer interface {
	Enqueue(service string, c *Container)
}

// Diagnostics builds the human-readable diagnostics string recorded when
// a service or cluster operation terminates the application. String
// renders "service <name>: <detail>" (only Detail when Service is empty);
// the Instance and ExitStatus fields are not included in the string.
type Diagnostics struct {
	Service    string
	Instance   int
	ExitStatus int
	Detail     string
}

func (d Diagnostics) String() string {
	if d.Service == "" {
		return d.Detail
	}
	s := "service " + d.Service
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}
