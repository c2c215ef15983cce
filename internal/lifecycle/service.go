// Package lifecycle defines the start/stop contract the long-running
// components of the pipeline (the Enumeration Manager, the query HTTP
// server, the graph cache refresher) implement, so a single top-level
// runner can bring the system up and down deterministically. The progress
// sinks do not implement it.
package lifecycle

import "context"

// Service is a lifecycle-managed component.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Layer describes the architectural slice a service belongs to.
type Layer string

const (
	LayerIngress Layer = "ingress"
	LayerEngine  Layer = "engine"
	LayerData    Layer = "data"
	LayerQuery   Layer = "query"
)

// Descriptor advertises a service's placement and capabilities for
// diagnostics; it does not change runtime behavior.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// DescriptorProvider is implemented by services that want to advertise a Descriptor.
type DescriptorProvider interface {
	Descriptor() Descriptor
}

// Runner starts a set of Services in order and stops them in reverse order.
type Runner struct {
	services []Service
}

// NewRunner builds a Runner over the given services, in start order.
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// Start starts every service in order, stopping any already-started service
// and returning the first error encountered.
func (r *Runner) Start(ctx context.Context) error {
	started := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		if err := svc.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop(ctx)
			}
			return err
		}
		started = append(started, svc)
	}
	return nil
}

// Stop stops every service in reverse start order, collecting the first
// error but attempting to stop all of them regardless.
func (r *Runner) Stop(ctx context.Context) error {
	var first error
	for i := len(r.services) - 1; i >= 0; i-- {
		if err := r.services[i].Stop(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
