package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	edgelessredis "github.com/edgeless-project/edgeless/common/redis"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// Redis proxy key layout. Every field of the snapshot lives under its own
// hash so fetch_* calls never have to deserialize the whole snapshot.
const (
	keyNodes     = "edgeless:proxy:nodes"
	keyResources = "edgeless:proxy:resources"
	keyInstances = "edgeless:proxy:instances"
	keyGraph     = "edgeless:proxy:graph"
	keyDomain    = "edgeless:proxy:domain"
	keyIntents   = "edgeless:proxy:intents"
	channelFeed  = "edgeless:proxy:feed"
)

// RedisProxy is the Redis-backed Proxy implementation, for deployments
// where the proxy must be reachable from outside the orchestrator's own
// process (a CLI, a dashboard) without a direct RPC to it.
type RedisProxy struct {
	client *edgelessredis.Client
}

func NewRedisProxy(client *edgelessredis.Client) *RedisProxy {
	return &RedisProxy{client: client}
}

func (p *RedisProxy) putJSON(ctx context.Context, hashKey, field string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	return p.client.SetHash(ctx, hashKey, field, string(data))
}

func (p *RedisProxy) UpdateNodes(ctx context.Context, nodes []*api.NodeDescriptor) error {
	if err := p.client.Delete(ctx, keyNodes); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := p.putJSON(ctx, keyNodes, n.NodeID.String(), n); err != nil {
			return err
		}
	}
	return p.publish(ctx, api.ProxyEntityNode, "*")
}

func (p *RedisProxy) UpdateResourceProviders(ctx context.Context, providers []api.ResourceProviderRecord) error {
	if err := p.client.Delete(ctx, keyResources); err != nil {
		return err
	}
	for _, r := range providers {
		if err := p.putJSON(ctx, keyResources, r.ProviderID, r); err != nil {
			return err
		}
	}
	return p.publish(ctx, api.ProxyEntityResource, "*")
}

func (p *RedisProxy) UpdateActiveInstances(ctx context.Context, instances []*api.ActiveInstance) error {
	if err := p.client.Delete(ctx, keyInstances); err != nil {
		return err
	}
	for _, i := range instances {
		if err := p.putJSON(ctx, keyInstances, i.LID.String(), i); err != nil {
			return err
		}
	}
	return p.publish(ctx, api.ProxyEntityInstance, "*")
}

func (p *RedisProxy) UpdateDependencyGraph(ctx context.Context, graph api.DependencyGraph) error {
	return p.putJSON(ctx, keyGraph, "current", graph)
}

func (p *RedisProxy) UpdateDomainInfo(ctx context.Context, info api.DomainSummary) error {
	return p.putJSON(ctx, keyDomain, "current", info)
}

func (p *RedisProxy) PushNodeHealth(ctx context.Context, nodeID api.NodeID, health api.NodeHealth) error {
	return p.putJSON(ctx, keyNodes, "health:"+nodeID.String(), health)
}

func (p *RedisProxy) PushPerformanceSamples(ctx context.Context, nodeID api.NodeID, samples []api.PerformanceSample) error {
	return p.putJSON(ctx, keyNodes, "samples:"+nodeID.String(), samples)
}

func (p *RedisProxy) FetchNodes(ctx context.Context) ([]*api.NodeDescriptor, error) {
	fields, err := p.client.GetAllHash(ctx, keyNodes)
	if err != nil {
		return nil, err
	}
	var out []*api.NodeDescriptor
	for field, raw := range fields {
		if strings.HasPrefix(field, "health:") || strings.HasPrefix(field, "samples:") {
			continue
		}
		var n api.NodeDescriptor
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("decode node %s: %w", field, err)
		}
		out = append(out, &n)
	}
	return out, nil
}

func (p *RedisProxy) FetchResourceProviders(ctx context.Context) ([]api.ResourceProviderRecord, error) {
	fields, err := p.client.GetAllHash(ctx, keyResources)
	if err != nil {
		return nil, err
	}
	out := make([]api.ResourceProviderRecord, 0, len(fields))
	for _, raw := range fields {
		var r api.ResourceProviderRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *RedisProxy) FetchActiveInstances(ctx context.Context) ([]*api.ActiveInstance, error) {
	fields, err := p.client.GetAllHash(ctx, keyInstances)
	if err != nil {
		return nil, err
	}
	out := make([]*api.ActiveInstance, 0, len(fields))
	for _, raw := range fields {
		var i api.ActiveInstance
		if err := json.Unmarshal([]byte(raw), &i); err != nil {
			return nil, err
		}
		out = append(out, &i)
	}
	return out, nil
}

func (p *RedisProxy) FetchDependencyGraph(ctx context.Context) (api.DependencyGraph, error) {
	val, ok, err := p.hashField(ctx, keyGraph, "current")
	if err != nil || !ok {
		return api.DependencyGraph{}, err
	}
	var graph api.DependencyGraph
	if err := json.Unmarshal([]byte(val), &graph); err != nil {
		return nil, err
	}
	return graph, nil
}

func (p *RedisProxy) FetchDomainInfo(ctx context.Context) (api.DomainSummary, error) {
	val, ok, err := p.hashField(ctx, keyDomain, "current")
	if err != nil || !ok {
		return api.DomainSummary{}, err
	}
	var info api.DomainSummary
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return api.DomainSummary{}, err
	}
	return info, nil
}

func (p *RedisProxy) hashField(ctx context.Context, hashKey, field string) (string, bool, error) {
	fields, err := p.client.GetAllHash(ctx, hashKey)
	if err != nil {
		return "", false, err
	}
	val, ok := fields[field]
	return val, ok, nil
}

func (p *RedisProxy) AddDeployIntents(ctx context.Context, intents []api.Intent) error {
	existing, _ := p.retrieveIntentsNoClear(ctx)
	combined := append(existing, intents...)
	return p.putJSON(ctx, keyIntents, "queue", combined)
}

func (p *RedisProxy) retrieveIntentsNoClear(ctx context.Context) ([]api.Intent, error) {
	val, ok, err := p.hashField(ctx, keyIntents, "queue")
	if err != nil || !ok {
		return nil, err
	}
	var intents []api.Intent
	if err := json.Unmarshal([]byte(val), &intents); err != nil {
		return nil, err
	}
	return intents, nil
}

func (p *RedisProxy) RetrieveDeployIntents(ctx context.Context) ([]api.Intent, error) {
	intents, err := p.retrieveIntentsNoClear(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.client.DeleteHashField(ctx, keyIntents, "queue"); err != nil {
		return nil, err
	}
	return intents, nil
}

func (p *RedisProxy) publish(ctx context.Context, kind api.ProxyEntityKind, key string) error {
	event := api.ProxyEvent{Kind: kind, Key: key}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.PublishEvent(ctx, channelFeed, string(data))
}

func (p *RedisProxy) Close() error { return nil }

var _ Proxy = (*RedisProxy)(nil)
