package resource

import (
	"context"
)

// PortalAdvertiser is a resource provider of class_type "portal". It
// instantiates nothing functional: a running instance of it is purely a
// signal the orchestrator's domain aggregation reads off the node's
// resource provider list, carrying which domains this node's domain can
// reach (Configuration["reachable_domains"], comma-separated) so the
// controller's portal candidate search (pkg/controller/portal) can find
// bridge domains (§4.4 portal reachability advertisement).
type PortalAdvertiser struct{}

func NewPortalAdvertiser() *PortalAdvertiser { return &PortalAdvertiser{} }

func (p *PortalAdvertiser) ClassType() string { return "portal" }
func (p *PortalAdvertiser) Outputs() []string  { return nil }

func (p *PortalAdvertiser) Start(ctx context.Context, configuration map[string]string, out runtimeOutputFunc) (Instance, error) {
	return &portalInstance{}, nil
}

func (p *PortalAdvertiser) Cast(ctx context.Context, inst Instance, channel string, payload []byte) error {
	return nil
}

func (p *PortalAdvertiser) Call(ctx context.Context, inst Instance, channel string, payload []byte) ([]byte, error) {
	return []byte("ok"), nil
}

type portalInstance struct{}

func (i *portalInstance) Patch(ctx context.Context, out runtimeOutputFunc) error { return nil }
func (i *portalInstance) Stop(ctx context.Context) error                        { return nil }

var _ Provider = (*PortalAdvertiser)(nil)
