// Package restart implements the Application Master's per-service bounded
// restart policy and the propagation of service failure to application
// failure (§4.F).
package restart

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/events"
	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/registry"
	"github.com/skein-project/skein/pkg/types"
)

// Policy decides, for each terminal container completion, whether the
// owning service gets a fresh restart or is marked permanently failed.
type Policy struct {
	reg    *registry.Registry
	broker *events.Broker
	log    zerolog.Logger
}

// New returns a restart policy backed by reg.
func New(reg *registry.Registry, broker *events.Broker, log zerolog.Logger) *Policy {
	return &Policy{reg: reg, broker: broker, log: log}
}

// OnTerminal handles one container's terminal transition. For SUCCEEDED
// and KILLED there is nothing to do (KILLED is user-intended and never
// counts as a failure). For FAILED, it either hands a fresh WAITING
// instance to enq or marks the service permanently failed once the
// restart budget is exhausted.
func (p *Policy) OnTerminal(spec types.ServiceSpec, c *types.Container, enq types.Enqueuer) {
	switch c.State {
	case types.ContainerSucceeded:
		p.broker.Publish(&events.Event{
			Type:     events.EventContainerCompleted,
			Message:  "container succeeded",
			Metadata: map[string]string{"service": c.ServiceName, "instance": strconv.Itoa(c.Instance)},
		})

	case types.ContainerKilled:
		p.broker.Publish(&events.Event{
			Type:     events.EventContainerKilled,
			Message:  "container killed",
			Metadata: map[string]string{"service": c.ServiceName, "instance": strconv.Itoa(c.Instance)},
		})

	case types.ContainerFailed:
		n := p.reg.IncrementFailureCount(c.ServiceName)
		if spec.Unbounded() || n <= spec.MaxRestarts {
			nc, err := p.reg.RequestInstance(c.ServiceName)
			if err != nil {
				p.log.Error().Err(err).Str("service", c.ServiceName).Msg("failed to create restart instance")
				return
			}
			metrics.RestartsTotal.WithLabelValues(c.ServiceName).Inc()
			p.broker.Publish(&events.Event{
				Type:    events.EventServiceRestarted,
				Message: "container failed, restarting",
				Metadata: map[string]string{
					"service":      c.ServiceName,
					"failed_count": strconv.Itoa(n),
				},
			})
			enq.Enqueue(c.ServiceName, nc)
			return
		}

		p.reg.MarkFailed(c.ServiceName)
		metrics.ServiceFailuresTotal.WithLabelValues(c.ServiceName).Inc()
		p.log.Error().Str("service", c.ServiceName).Int("failure_count", n).
			Int("max_restarts", spec.MaxRestarts).Msg("restart budget exhausted, service failed")
		p.broker.Publish(&events.Event{
			Type:    events.EventServiceFailed,
			Message: "restart budget exhausted",
			Metadata: map[string]string{
				"service": c.ServiceName,
			},
		})
	}
}

