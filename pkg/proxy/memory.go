package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// MemoryProxy is the in-process Proxy implementation: a single-writer
// locked snapshot plus an intent queue, adequate for a single orchestrator
// process with no external subscribers.
type MemoryProxy struct {
	mu sync.RWMutex

	nodes     map[api.NodeID]*api.NodeDescriptor
	resources []api.ResourceProviderRecord
	instances map[api.ComponentID]*api.ActiveInstance
	graph     api.DependencyGraph
	domain    api.DomainSummary
	health    map[api.NodeID]api.NodeHealth
	samples   map[api.NodeID][]api.PerformanceSample
	intents   []api.Intent

	subscriber Subscriber
}

func NewMemoryProxy() *MemoryProxy {
	return &MemoryProxy{
		nodes:     make(map[api.NodeID]*api.NodeDescriptor),
		instances: make(map[api.ComponentID]*api.ActiveInstance),
		graph:     make(api.DependencyGraph),
		health:    make(map[api.NodeID]api.NodeHealth),
		samples:   make(map[api.NodeID][]api.PerformanceSample),
	}
}

// SetSubscriber attaches a live-feed publisher; nil disables it.
func (p *MemoryProxy) SetSubscriber(s Subscriber) { p.subscriber = s }

func (p *MemoryProxy) notify(kind api.ProxyEntityKind, key string) {
	if p.subscriber == nil {
		return
	}
	p.subscriber.Publish(context.Background(), api.ProxyEvent{Kind: kind, Key: key, Timestamp: time.Now()})
}

func (p *MemoryProxy) UpdateNodes(ctx context.Context, nodes []*api.NodeDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = make(map[api.NodeID]*api.NodeDescriptor, len(nodes))
	for _, n := range nodes {
		p.nodes[n.NodeID] = n
	}
	p.notify(api.ProxyEntityNode, "*")
	return nil
}

func (p *MemoryProxy) UpdateResourceProviders(ctx context.Context, providers []api.ResourceProviderRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = providers
	p.notify(api.ProxyEntityResource, "*")
	return nil
}

func (p *MemoryProxy) UpdateActiveInstances(ctx context.Context, instances []*api.ActiveInstance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances = make(map[api.ComponentID]*api.ActiveInstance, len(instances))
	for _, i := range instances {
		p.instances[i.LID] = i
	}
	p.notify(api.ProxyEntityInstance, "*")
	return nil
}

func (p *MemoryProxy) UpdateDependencyGraph(ctx context.Context, graph api.DependencyGraph) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph = graph
	return nil
}

func (p *MemoryProxy) UpdateDomainInfo(ctx context.Context, info api.DomainSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domain = info
	return nil
}

func (p *MemoryProxy) PushNodeHealth(ctx context.Context, nodeID api.NodeID, health api.NodeHealth) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health[nodeID] = health
	return nil
}

func (p *MemoryProxy) PushPerformanceSamples(ctx context.Context, nodeID api.NodeID, samples []api.PerformanceSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[nodeID] = append(p.samples[nodeID], samples...)
	return nil
}

func (p *MemoryProxy) FetchNodes(ctx context.Context) ([]*api.NodeDescriptor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*api.NodeDescriptor, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (p *MemoryProxy) FetchResourceProviders(ctx context.Context) ([]api.ResourceProviderRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]api.ResourceProviderRecord(nil), p.resources...), nil
}

func (p *MemoryProxy) FetchActiveInstances(ctx context.Context) ([]*api.ActiveInstance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*api.ActiveInstance, 0, len(p.instances))
	for _, i := range p.instances {
		out = append(out, i)
	}
	return out, nil
}

func (p *MemoryProxy) FetchDependencyGraph(ctx context.Context) (api.DependencyGraph, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph, nil
}

func (p *MemoryProxy) FetchDomainInfo(ctx context.Context) (api.DomainSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.domain, nil
}

func (p *MemoryProxy) AddDeployIntents(ctx context.Context, intents []api.Intent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, intents...)
	return nil
}

// RetrieveDeployIntents drains the queue: all intents are consumed
// atomically during one refresh pass (§4.3).
func (p *MemoryProxy) RetrieveDeployIntents(ctx context.Context) ([]api.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intents := p.intents
	p.intents = nil
	return intents, nil
}

func (p *MemoryProxy) Close() error { return nil }

var _ Proxy = (*MemoryProxy)(nil)
