// Package spec validates an ApplicationSpec before it is accepted by the
// Application Master: name uniqueness, resource bounds, dependency
// acyclicity, and command-list non-emptiness (§4.A).
package spec

import (
	"fmt"
	"strings"

	"github.com/skein-project/skein/pkg/types"
)

// ValidationError aggregates every violation found in one spec so the
// caller sees the whole picture instead of the first failure only.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid application spec: %s", strings.Join(e.Violations, "; "))
}

// Limits is the cluster-reported resource ceiling validation is checked
// against (§4.A: "resource exceeding cluster-reported maximum").
type Limits struct {
	MaxMemoryMiB int
	MaxVCores    int
}

// Validate checks app in full and returns every violation found, or nil.
// Validation is total: the whole spec is accepted or rejected atomically,
// before any container is requested.
func Validate(app types.ApplicationSpec, limits Limits) error {
	var errs []string

	if strings.TrimSpace(app.Name) == "" {
		errs = append(errs, "application name must not be empty")
	}
	if len(app.Services) == 0 {
		errs = append(errs, "application must define at least one service")
	}

	for name, svc := range app.Services {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "service name must not be empty")
			continue
		}
		prefix := fmt.Sprintf("service %q", name)

		if svc.Instances < 0 {
			errs = append(errs, fmt.Sprintf("%s: instances must be >= 0, got %d", prefix, svc.Instances))
		}
		if svc.MaxRestarts < -1 {
			errs = append(errs, fmt.Sprintf("%s: max_restarts must be -1 (unlimited) or >= 0, got %d", prefix, svc.MaxRestarts))
		}
		if svc.Resources.MemoryMiB <= 0 {
			errs = append(errs, fmt.Sprintf("%s: memory must be > 0, got %d", prefix, svc.Resources.MemoryMiB))
		} else if limits.MaxMemoryMiB > 0 && svc.Resources.MemoryMiB > limits.MaxMemoryMiB {
			errs = append(errs, fmt.Sprintf("%s: memory %d MiB exceeds cluster maximum %d MiB", prefix, svc.Resources.MemoryMiB, limits.MaxMemoryMiB))
		}
		if svc.Resources.VCores <= 0 {
			errs = append(errs, fmt.Sprintf("%s: vcores must be > 0, got %d", prefix, svc.Resources.VCores))
		} else if limits.MaxVCores > 0 && svc.Resources.VCores > limits.MaxVCores {
			errs = append(errs, fmt.Sprintf("%s: vcores %d exceeds cluster maximum %d", prefix, svc.Resources.VCores, limits.MaxVCores))
		}
		if len(svc.Commands) == 0 {
			errs = append(errs, fmt.Sprintf("%s: commands must not be empty", prefix))
		}
		for _, dep := range svc.Depends {
			if _, ok := app.Services[dep]; !ok {
				errs = append(errs, fmt.Sprintf("%s: depends on unknown service %q", prefix, dep))
			}
		}
	}

	if cyc := findCycle(app.Services); cyc != "" {
		errs = append(errs, fmt.Sprintf("dependency cycle detected: %s", cyc))
	}

	if len(errs) > 0 {
		return &ValidationError{Violations: errs}
	}
	return nil
}

// findCycle runs DFS over the depends adjacency map and returns a
// human-readable description of the first cycle found, or "" if acyclic.
func findCycle(services map[string]types.ServiceSpec) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(services))
	var path []string

	var visit func(name string) string
	visit = func(name string) string {
		color[name] = gray
		path = append(path, name)

		for _, dep := range services[name].Depends {
			switch color[dep] {
			case gray:
				return strings.Join(append(path, dep), " -> ")
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		return ""
	}

	for name := range services {
		if color[name] == white {
			if c := visit(name); c != "" {
				return c
			}
		}
	}
	return ""
}
