// Package proxy implements the pluggable external proxy surface (§6): it
// exposes the orchestrator's live snapshot to outside tools and accepts
// deploy intents back. Two implementations are provided: Memory (default,
// no external dependency) and Redis-backed (pkg/proxy redis.go), selected
// by config.ProxyConfig.Backend.
package proxy

import (
	"context"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Proxy is write-only from the orchestrator and read-only/intent-write
// from external tools; both sides are serialized by the implementation
// (§5 shared-resource policy).
type Proxy interface {
	UpdateNodes(ctx context.Context, nodes []*api.NodeDescriptor) error
	UpdateResourceProviders(ctx context.Context, providers []api.ResourceProviderRecord) error
	UpdateActiveInstances(ctx context.Context, instances []*api.ActiveInstance) error
	UpdateDependencyGraph(ctx context.Context, graph api.DependencyGraph) error
	UpdateDomainInfo(ctx context.Context, info api.DomainSummary) error
	PushNodeHealth(ctx context.Context, nodeID api.NodeID, health api.NodeHealth) error
	PushPerformanceSamples(ctx context.Context, nodeID api.NodeID, samples []api.PerformanceSample) error

	FetchNodes(ctx context.Context) ([]*api.NodeDescriptor, error)
	FetchResourceProviders(ctx context.Context) ([]api.ResourceProviderRecord, error)
	FetchActiveInstances(ctx context.Context) ([]*api.ActiveInstance, error)
	FetchDependencyGraph(ctx context.Context) (api.DependencyGraph, error)
	FetchDomainInfo(ctx context.Context) (api.DomainSummary, error)

	AddDeployIntents(ctx context.Context, intents []api.Intent) error
	RetrieveDeployIntents(ctx context.Context) ([]api.Intent, error)

	Close() error
}

// Subscriber is the optional live-feed side channel a Proxy may offer, a
// push of api.ProxyEvent to connected watchers whenever the snapshot
// changes. Not every backend implements it.
type Subscriber interface {
	Publish(ctx context.Context, event api.ProxyEvent)
}
