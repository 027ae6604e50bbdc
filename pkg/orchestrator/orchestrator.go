// Package orchestrator implements the domain orchestrator (§4.3): node
// registry, resource provider registry, LID -> ActiveInstance map,
// dependency graph, proxy snapshot, and placement policy, all serialized
// through a single actor.Loop per §5.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeless-project/edgeless/common/actor"
	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/common/cache"
	"github.com/edgeless-project/edgeless/common/clients"
	"github.com/edgeless-project/edgeless/common/config"
	"github.com/edgeless-project/edgeless/common/logger"
	"github.com/edgeless-project/edgeless/common/telemetry"
	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/placement"
	"github.com/edgeless-project/edgeless/pkg/proxy"
)

// nodeRecord is the orchestrator's registry entry for one node agent,
// carrying the nonce/counter state the registration handshake needs
// (§4.3 Registration handling).
type nodeRecord struct {
	desc     api.NodeDescriptor
	nonce    string
	counter  uint64
	cordoned bool
}

// activeRecord is the orchestrator's bookkeeping for one LID: enough of
// the original spawn request to re-spawn on node loss, plus where it
// currently lives.
type activeRecord struct {
	lid         api.ComponentID
	kind        api.ComponentKind
	annotations map[string]string

	spawnFunc *api.StartFunctionRequest
	spawnRes  *api.StartResourceRequest

	nodeID     api.NodeID
	instanceID api.InstanceID
	mapping    map[string]api.LIDLink
}

// Orchestrator is the domain orchestrator's single-consumer core.
type Orchestrator struct {
	domainID api.DomainID

	loop *actor.Loop

	nodes     map[api.NodeID]*nodeRecord
	resources map[string]api.ResourceProviderRecord // keyed by provider_id
	active    map[api.ComponentID]*activeRecord
	graph     api.DependencyGraph

	proxy  proxy.Proxy
	policy *placement.Policy

	httpClient *clients.HTTPClient
	cfg        *config.OrchestratorConfig
	log        *logger.Logger
	tel        *telemetry.Telemetry
	cache      cache.Cache

	domainNonce   string
	domainCounter uint64

	mu sync.RWMutex // guards domainNonce/domainCounter read from the registration-push goroutine
}

// New builds a domain orchestrator. tel and c may both be nil (e.g. in
// tests); a nil tel means lifecycle events are simply not recorded, and a
// nil c means every domain-push tick posts to the controller, with no
// skipping of pushes whose fingerprint is unchanged.
func New(domainID api.DomainID, cfg *config.OrchestratorConfig, log *logger.Logger, httpClient *clients.HTTPClient, px proxy.Proxy, policy *placement.Policy, tel *telemetry.Telemetry, c cache.Cache) *Orchestrator {
	return &Orchestrator{
		domainID:    domainID,
		loop:        actor.NewLoop("orchestrator", 4096, log),
		nodes:       make(map[api.NodeID]*nodeRecord),
		resources:   make(map[string]api.ResourceProviderRecord),
		active:      make(map[api.ComponentID]*activeRecord),
		graph:       make(api.DependencyGraph),
		proxy:       px,
		policy:      policy,
		httpClient:  httpClient,
		cfg:         cfg,
		log:         log,
		tel:         tel,
		cache:       c,
		domainNonce: api.NewID().String(),
	}
}

// recordEvent forwards to tel.RecordEvent when telemetry is configured.
func (o *Orchestrator) recordEvent(event string, attrs map[string]any) {
	if o.tel != nil {
		o.tel.RecordEvent(event, attrs)
	}
}

// Run starts the orchestrator's task loop. Call once at process startup.
func (o *Orchestrator) Run(ctx context.Context) { o.loop.Run(ctx) }

// ---- Node registration (§4.3 Registration handling) ----

// RegisterNode implements the UpdateNode registration handshake (§4.3):
// unknown (node_id, nonce) -> admit and reply Reset (Accepted=false); known node_id with
// a different nonce -> supersede and reply Reset (Accepted=false) so the
// stale agent resets itself; same nonce with a newer counter -> update
// capabilities; same nonce and counter -> extend the refresh deadline only.
func (o *Orchestrator) RegisterNode(ctx context.Context, req api.UpdateNodeRequest) (api.UpdateNodeResponse, error) {
	var resp api.UpdateNodeResponse
	o.loop.Do(ctx, func() {
		rec, known := o.nodes[req.NodeID]
		switch {
		case !known:
			// Brand new (node_id, nonce): record it, but reply Reset so the
			// agent normalizes any local state before the pair is trusted.
			o.admitNode(req)
			resp = api.UpdateNodeResponse{Accepted: false, RefreshEvery: o.cfg.RefreshEvery}

		case rec.nonce != req.Nonce:
			// Identity superseded: treat as a brand new node and ask the
			// stale instance to reset.
			o.removeNodeLocked(req.NodeID)
			o.admitNode(req)
			resp = api.UpdateNodeResponse{Accepted: false, RefreshEvery: o.cfg.RefreshEvery}

		default:
			rec.desc.LastSeen = time.Now()
			if req.Counter > rec.counter {
				rec.counter = req.Counter
				rec.desc.AgentURL = req.AgentURL
				rec.desc.InvocationURL = req.InvocationURL
				rec.desc.Runtimes = req.Runtimes
				rec.desc.Labels = req.Labels
				rec.desc.Capacity = req.Capacity
				o.updateResourcesLocked(req.NodeID, req.Resources)
				o.syncProxyLocked(ctx)
			}
			resp = api.UpdateNodeResponse{Accepted: true, RefreshEvery: o.cfg.RefreshEvery}
		}
	})
	return resp, nil
}

// admitNode must be called from inside the loop. It broadcasts
// UpdatePeers::Add to existing nodes and catches the new node up with
// every existing invocation_url (§4.3 AddNode).
func (o *Orchestrator) admitNode(req api.UpdateNodeRequest) {
	desc := api.NodeDescriptor{
		NodeID:        req.NodeID,
		AgentURL:      req.AgentURL,
		InvocationURL: req.InvocationURL,
		Runtimes:      req.Runtimes,
		Labels:        req.Labels,
		Capacity:      req.Capacity,
		LastSeen:      time.Now(),
	}
	rec := &nodeRecord{desc: desc, nonce: req.Nonce, counter: req.Counter}
	o.nodes[req.NodeID] = rec
	o.updateResourcesLocked(req.NodeID, req.Resources)
	o.recordEvent("node_joined", map[string]any{"node": req.NodeID.String(), "runtimes": req.Runtimes})
	peers := o.snapshotPeers(req.NodeID)

	go func() {
		// Broadcast to survivors, then catch the new node up. Failures are
		// counted and logged, never abort admission (§4.3).
		failures := 0
		for id, n := range peers {
			if err := o.pushPeers(id, n.AgentURL, map[api.NodeID]string{req.NodeID: req.InvocationURL}, nil); err != nil {
				failures++
				o.log.Warn("peer broadcast failed", "node", id, "error", err)
			}
		}
		add := make(map[api.NodeID]string)
		for id, n := range peers {
			add[id] = n.InvocationURL
		}
		if err := o.pushPeers(req.NodeID, desc.AgentURL, add, nil); err != nil {
			failures++
			o.log.Warn("peer catch-up failed", "node", req.NodeID, "error", err)
		}
		if failures > 0 {
			o.log.Warn("node admission completed with peer broadcast failures", "node", req.NodeID, "failures", failures)
		}
	}()
}

type peerInfo struct {
	AgentURL      string
	InvocationURL string
}

func (o *Orchestrator) snapshotPeers(exclude api.NodeID) map[api.NodeID]peerInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[api.NodeID]peerInfo)
	for id, n := range o.nodes {
		if id == exclude {
			continue
		}
		out[id] = peerInfo{AgentURL: n.desc.AgentURL, InvocationURL: n.desc.InvocationURL}
	}
	return out
}

func (o *Orchestrator) pushPeers(nodeID api.NodeID, agentURL string, add map[api.NodeID]string, del []api.NodeID) error {
	req := updatePeersWire{Add: stringifyPeers(add), Del: stringifyNodeIDs(del)}
	return o.httpClient.PostJSON(context.Background(), agentURL+"/peers", req, nil)
}

type updatePeersWire struct {
	Add map[string]string `json:"add,omitempty"`
	Del []string          `json:"del,omitempty"`
}

func stringifyPeers(m map[api.NodeID]string) map[string]string {
	out := make(map[string]string, len(m))
	for id, url := range m {
		out[id.String()] = url
	}
	return out
}

func stringifyNodeIDs(ids []api.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (o *Orchestrator) updateResourcesLocked(nodeID api.NodeID, resources []api.ResourceProviderRecord) {
	// Drop this node's old advertisements before re-adding its current set.
	for id, r := range o.resources {
		if r.NodeID == nodeID {
			delete(o.resources, id)
		}
	}
	for _, r := range resources {
		if existing, ok := o.resources[r.ProviderID]; ok && existing.NodeID != nodeID {
			// §9 Open Questions: first winner keeps the identifier.
			o.log.Warn("duplicate provider_id ignored", "provider_id", r.ProviderID, "incumbent_node", existing.NodeID, "node", nodeID)
			continue
		}
		o.resources[r.ProviderID] = r
	}
}

// DelNode removes a node and broadcasts UpdatePeers::Del to survivors
// (§4.3 DelNode). Does not restart instances; the refresh loop does.
func (o *Orchestrator) DelNode(ctx context.Context, nodeID api.NodeID) {
	o.loop.Do(ctx, func() {
		o.removeNodeLocked(nodeID)
		o.syncProxyLocked(ctx)
	})
}

func (o *Orchestrator) removeNodeLocked(nodeID api.NodeID) {
	if _, ok := o.nodes[nodeID]; !ok {
		return
	}
	delete(o.nodes, nodeID)
	for id, r := range o.resources {
		if r.NodeID == nodeID {
			delete(o.resources, id)
		}
	}
	o.recordEvent("node_removed", map[string]any{"node": nodeID.String()})
	survivors := o.snapshotPeers(nodeID)
	go func() {
		for id, n := range survivors {
			if err := o.pushPeers(id, n.AgentURL, nil, []api.NodeID{nodeID}); err != nil {
				o.log.Warn("peer removal broadcast failed", "node", id, "error", err)
			}
		}
	}()
}

// ---- Cordon / Uncordon (§4.3 Intents) ----

func (o *Orchestrator) setCordoned(nodeID api.NodeID, cordoned bool) {
	if rec, ok := o.nodes[nodeID]; ok {
		rec.cordoned = cordoned
	}
}

// ---- Placement ----

func (o *Orchestrator) availableNodesLocked() []*api.NodeDescriptor {
	out := make([]*api.NodeDescriptor, 0, len(o.nodes))
	for _, n := range o.nodes {
		if n.cordoned {
			continue
		}
		d := n.desc
		out = append(out, &d)
	}
	return out
}

// ---- Start / Stop / Patch (§4.3) ----

// StartFunction allocates a LID, places it on a feasible node, and
// dispatches the spawn. On agent error the instance is never recorded.
func (o *Orchestrator) StartFunction(ctx context.Context, req api.StartFunctionRequest) (api.ComponentID, error) {
	var lid api.ComponentID
	var retErr error
	ok := o.loop.Do(ctx, func() {
		node, err := o.policy.Select(placement.Request{Runtime: req.Class.Format, Annotations: req.Annotations}, o.availableNodesLocked())
		if err != nil {
			retErr = err
			return
		}
		lid = api.NewID()
		spawnReq := api.SpawnFunctionRequest{
			LID:           lid,
			Class:         req.Class,
			Annotations:   req.Annotations,
			State:         req.State,
			OutputMapping: map[string]api.Link{},
		}
		var spawnResp api.StartComponentResponse
		if err := o.httpClient.PostJSON(ctx, node.AgentURL+"/functions", spawnReq, &spawnResp); err != nil {
			retErr = err
			return
		}
		o.active[lid] = &activeRecord{
			lid:         lid,
			kind:        api.ComponentFunction,
			annotations: req.Annotations,
			spawnFunc:   &req,
			nodeID:      node.NodeID,
			instanceID:  spawnResp.Instance,
		}
		o.syncProxyLocked(ctx)
	})
	if !ok {
		return lid, apierr.NewInternal("orchestrator loop closed", nil)
	}
	return lid, retErr
}

// StartResource mirrors StartFunction for resource objects, placed by
// class_type against the resource provider registry instead of runtime tag.
func (o *Orchestrator) StartResource(ctx context.Context, req api.StartResourceRequest) (api.ComponentID, error) {
	var lid api.ComponentID
	var retErr error
	ok := o.loop.Do(ctx, func() {
		node, err := o.selectResourceNodeLocked(req.ClassType, req.Annotations)
		if err != nil {
			retErr = err
			return
		}
		lid = api.NewID()
		spawnReq := api.SpawnResourceRequest{
			LID:           lid,
			ClassType:     req.ClassType,
			Configuration: req.Configuration,
			Annotations:   req.Annotations,
			OutputMapping: map[string]api.Link{},
		}
		var spawnResp api.StartComponentResponse
		if err := o.httpClient.PostJSON(ctx, node.desc.AgentURL+"/resources", spawnReq, &spawnResp); err != nil {
			retErr = err
			return
		}
		o.active[lid] = &activeRecord{
			lid:         lid,
			kind:        api.ComponentResource,
			annotations: req.Annotations,
			spawnRes:    &req,
			nodeID:      node.desc.NodeID,
			instanceID:  spawnResp.Instance,
		}
		o.syncProxyLocked(ctx)
	})
	if !ok {
		return lid, apierr.NewInternal("orchestrator loop closed", nil)
	}
	return lid, retErr
}

func (o *Orchestrator) selectResourceNodeLocked(classType string, annotations map[string]string) (*nodeRecord, error) {
	for _, r := range o.resources {
		if r.ClassType != classType {
			continue
		}
		if n, ok := o.nodes[r.NodeID]; ok && !n.cordoned {
			return n, nil
		}
	}
	return nil, apierr.NewCapacity("no provider for class type", classType)
}

// StopFunction and StopResource share the same teardown: remove the LID,
// ask the agent to stop the physical instance, re-patch every upstream
// LID that referenced it, then drop its own outgoing edges (§4.3 Stop).
func (o *Orchestrator) StopFunction(ctx context.Context, lid api.ComponentID) error {
	return o.stopComponent(ctx, lid, "/functions/")
}

func (o *Orchestrator) StopResource(ctx context.Context, lid api.ComponentID) error {
	return o.stopComponent(ctx, lid, "/resources/")
}

func (o *Orchestrator) stopComponent(ctx context.Context, lid api.ComponentID, path string) error {
	var retErr error
	o.loop.Do(ctx, func() {
		rec, ok := o.active[lid]
		if !ok {
			return // idempotent: stop of unknown LID succeeds
		}
		if node, ok := o.nodes[rec.nodeID]; ok {
			if err := o.httpClient.DeleteJSON(ctx, node.desc.AgentURL+path+rec.instanceID.Component.String(), nil); err != nil {
				o.log.Warn("agent stop failed", "lid", lid, "error", err)
			}
		}
		delete(o.active, lid)
		delete(o.graph, lid)
		upstream := o.upstreamOfLocked(lid)
		o.dropTargetLocked(lid)
		if err := o.repatchLocked(ctx, upstream); err != nil {
			o.log.Warn("repatch after stop failed", "lid", lid, "error", err)
		}
		o.recordEvent("instance_stopped", map[string]any{"lid": lid.String(), "kind": rec.kind})
		o.syncProxyLocked(ctx)
	})
	return retErr
}

// upstreamOfLocked returns every LID whose logical output mapping
// references target. Matched against each active record's own mapping
// (LID-to-LID) rather than the resolved graph, since a target's
// physical InstanceID changes across respawns while its LID does not.
func (o *Orchestrator) upstreamOfLocked(target api.ComponentID) []api.ComponentID {
	var out []api.ComponentID
	for lid, rec := range o.active {
		for _, link := range rec.mapping {
			if link.Direct != nil && *link.Direct == target {
				out = append(out, lid)
				break
			}
			if link.IsAllOf() {
				for _, t := range link.AllOf {
					if t == target {
						out = append(out, lid)
						break
					}
				}
			}
		}
	}
	return out
}

// dropTargetLocked removes every reference to target from every active
// record's logical output mapping (§4.3 Stop: upstream LIDs drop the
// stale target; §8 invariant 4), so the next repatch resolves cleanly
// instead of failing on a LID that no longer exists.
func (o *Orchestrator) dropTargetLocked(target api.ComponentID) {
	for _, rec := range o.active {
		for ch, link := range rec.mapping {
			if link.Direct != nil && *link.Direct == target {
				delete(rec.mapping, ch)
				continue
			}
			if link.IsAllOf() {
				filtered := link.AllOf[:0]
				for _, t := range link.AllOf {
					if t != target {
						filtered = append(filtered, t)
					}
				}
				if len(filtered) == 0 {
					delete(rec.mapping, ch)
				} else {
					link.AllOf = filtered
					rec.mapping[ch] = link
				}
			}
		}
	}
}

// snapshotGraph returns a copy of g whose outer and inner maps are
// independent of g's, suitable as the "before" side of a patchdiff.
func snapshotGraph(g api.DependencyGraph) api.DependencyGraph {
	out := make(api.DependencyGraph, len(g))
	for lid, mapping := range g {
		m := make(map[string]api.Link, len(mapping))
		for ch, link := range mapping {
			m[ch] = link
		}
		out[lid] = m
	}
	return out
}

// Patch resolves a logical mapping to InstanceIds and dispatches it to
// the origin node's agent, saving the logical mapping to the dependency
// graph (§4.3 Patch).
func (o *Orchestrator) Patch(ctx context.Context, req api.LIDPatchRequest) error {
	var retErr error
	o.loop.Do(ctx, func() {
		retErr = o.patchLocked(ctx, req)
	})
	return retErr
}

func (o *Orchestrator) patchLocked(ctx context.Context, req api.LIDPatchRequest) error {
	origin, ok := o.active[req.LID]
	if !ok {
		return apierr.NewNotFound("unknown origin lid")
	}
	resolved := make(map[string]api.Link, len(req.OutputMapping))
	for channel, link := range req.OutputMapping {
		if link.IsAllOf() {
			var instances []api.InstanceID
			for _, target := range link.AllOf {
				t, ok := o.active[target]
				if !ok {
					return apierr.NewNotFound(fmt.Sprintf("unknown target lid for channel %q", channel))
				}
				instances = append(instances, t.instanceID)
			}
			resolved[channel] = api.Link{AllOf: instances}
			continue
		}
		if link.Direct == nil {
			continue
		}
		t, ok := o.active[*link.Direct]
		if !ok {
			return apierr.NewNotFound(fmt.Sprintf("unknown target lid for channel %q", channel))
		}
		instance := t.instanceID
		resolved[channel] = api.Link{Direct: &instance}
	}

	node, ok := o.nodes[origin.nodeID]
	if !ok {
		return apierr.NewTransport("origin node no longer registered", nil)
	}
	path := "/functions/"
	if origin.kind == api.ComponentResource {
		path = "/resources/"
	}
	patchWire := api.PatchRequest{LID: origin.instanceID.Component, OutputMapping: resolved}
	if err := o.httpClient.PatchJSON(ctx, node.desc.AgentURL+path+origin.instanceID.Component.String(), patchWire, nil); err != nil {
		return err
	}
	origin.mapping = req.OutputMapping
	o.graph[req.LID] = resolved
	return nil
}

// repatchLocked re-derives and re-sends the resolved mapping for every
// LID in lids, skipping LIDs that no longer exist (already stopped).
func (o *Orchestrator) repatchLocked(ctx context.Context, lids []api.ComponentID) error {
	var firstErr error
	for _, lid := range lids {
		rec, ok := o.active[lid]
		if !ok {
			continue
		}
		if err := o.patchLocked(ctx, api.LIDPatchRequest{LID: lid, OutputMapping: rec.mapping}); err != nil {
			o.log.Warn("repatch failed", "lid", lid, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ---- Proxy snapshot sync ----

func (o *Orchestrator) syncProxyLocked(ctx context.Context) {
	if o.proxy == nil {
		return
	}
	nodes := make([]*api.NodeDescriptor, 0, len(o.nodes))
	for _, n := range o.nodes {
		d := n.desc
		nodes = append(nodes, &d)
	}
	resources := make([]api.ResourceProviderRecord, 0, len(o.resources))
	for _, r := range o.resources {
		resources = append(resources, r)
	}
	instances := make([]*api.ActiveInstance, 0, len(o.active))
	for _, rec := range o.active {
		deps := make(map[string]api.ComponentID, len(rec.mapping))
		for ch, link := range rec.mapping {
			if link.Direct != nil {
				deps[ch] = *link.Direct
			}
		}
		instances = append(instances, &api.ActiveInstance{
			LID:         rec.lid,
			Kind:        rec.kind,
			Instance:    rec.instanceID,
			Annotations: rec.annotations,
			Dependencies: deps,
		})
	}
	if err := o.proxy.UpdateNodes(ctx, nodes); err != nil {
		o.log.Warn("proxy update_nodes failed", "error", err)
	}
	if err := o.proxy.UpdateResourceProviders(ctx, resources); err != nil {
		o.log.Warn("proxy update_resource_providers failed", "error", err)
	}
	if err := o.proxy.UpdateActiveInstances(ctx, instances); err != nil {
		o.log.Warn("proxy update_active_instances failed", "error", err)
	}
	if err := o.proxy.UpdateDependencyGraph(ctx, o.graph); err != nil {
		o.log.Warn("proxy update_dependency_graph failed", "error", err)
	}
}
