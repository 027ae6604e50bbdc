package orchestrator

import (
	"context"
	"time"

	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/patchdiff"
	"github.com/edgeless-project/edgeless/pkg/placement"
)

// RefreshLoop runs the periodic reconciliation pass (§4.3 Refresh loop)
// until ctx is cancelled.
func (o *Orchestrator) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.refreshOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// refreshOnce evicts stale nodes, respawns orphaned instances, applies
// queued intents, and re-patches every LID whose resolved mapping changed
// as a result. The resolved dependency graph is snapshotted before the
// pass and diffed against its post-repatch state with patchdiff, so a
// respawn that only shows up as changed at the second hop (A depends on
// B depends on the respawned C) still gets A re-patched, not just B.
func (o *Orchestrator) refreshOnce(ctx context.Context) {
	o.loop.Do(ctx, func() {
		now := time.Now()
		var staleNodes []api.NodeID
		for id, n := range o.nodes {
			if n.desc.IsStale(now, o.cfg.NodeStaleAfter) {
				staleNodes = append(staleNodes, id)
			}
		}
		for _, id := range staleNodes {
			o.removeNodeLocked(id)
		}

		before := snapshotGraph(o.graph)

		moved := make(map[api.ComponentID]bool)
		for lid, rec := range o.active {
			if _, alive := o.nodes[rec.nodeID]; alive {
				continue
			}
			if o.respawnLocked(ctx, rec) {
				moved[lid] = true
			}
		}

		o.applyIntentsLocked(ctx, moved)

		var toRepatch []api.ComponentID
		for lid := range moved {
			toRepatch = append(toRepatch, lid)
			toRepatch = append(toRepatch, o.upstreamOfLocked(lid)...)
		}
		if err := o.repatchLocked(ctx, dedupeIDs(toRepatch)); err != nil {
			o.log.Warn("refresh repatch failed", "error", err)
		}

		changedLIDs, err := patchdiff.ChangedLIDs(before, o.graph)
		if err != nil {
			o.log.Warn("refresh dependency graph diff failed", "error", err)
		} else if len(changedLIDs) > 0 {
			var cascade []api.ComponentID
			for _, lid := range changedLIDs {
				cascade = append(cascade, o.upstreamOfLocked(lid)...)
			}
			if cascade = dedupeIDs(cascade); len(cascade) > 0 {
				if err := o.repatchLocked(ctx, cascade); err != nil {
					o.log.Warn("refresh cascade repatch failed", "error", err)
				}
			}
			o.log.Info("refresh dependency graph changed", "lids", len(changedLIDs))
		}

		o.syncProxyLocked(ctx)
	})
}

// respawnLocked replaces rec's physical instance on a fresh node,
// preserving its LID and current logical mapping (§4.3 refresh loop,
// state machine Running -> Running'). Returns false when no feasible
// node exists; the LID stays orphaned until the next refresh pass.
func (o *Orchestrator) respawnLocked(ctx context.Context, rec *activeRecord) bool {
	switch rec.kind {
	case api.ComponentFunction:
		node, err := o.policy.Select(placement.Request{Runtime: rec.spawnFunc.Class.Format, Annotations: rec.annotations}, o.availableNodesLocked())
		if err != nil {
			return false
		}
		spawnReq := api.SpawnFunctionRequest{
			LID:         rec.lid,
			Class:       rec.spawnFunc.Class,
			Annotations: rec.spawnFunc.Annotations,
			State:       rec.spawnFunc.State,
		}
		var resp api.StartComponentResponse
		if err := o.httpClient.PostJSON(ctx, node.AgentURL+"/functions", spawnReq, &resp); err != nil {
			o.log.Warn("respawn failed", "lid", rec.lid, "error", err)
			return false
		}
		rec.nodeID = node.NodeID
		rec.instanceID = resp.Instance
		if rec.spawnFunc.State.Policy == api.StatePolicyTransfer {
			o.log.Warn("state transfer not supported; respawned instance starts without its previous state", "lid", rec.lid)
		}
		o.recordEvent("instance_restarted", map[string]any{"lid": rec.lid.String(), "node": node.NodeID.String()})
		return true

	case api.ComponentResource:
		node, err := o.selectResourceNodeLocked(rec.spawnRes.ClassType, rec.annotations)
		if err != nil {
			return false
		}
		spawnReq := api.SpawnResourceRequest{
			LID:           rec.lid,
			ClassType:     rec.spawnRes.ClassType,
			Configuration: rec.spawnRes.Configuration,
			Annotations:   rec.spawnRes.Annotations,
		}
		var resp api.StartComponentResponse
		if err := o.httpClient.PostJSON(ctx, node.desc.AgentURL+"/resources", spawnReq, &resp); err != nil {
			o.log.Warn("respawn failed", "lid", rec.lid, "error", err)
			return false
		}
		rec.nodeID = node.desc.NodeID
		rec.instanceID = resp.Instance
		o.recordEvent("instance_restarted", map[string]any{"lid": rec.lid.String(), "node": node.desc.NodeID.String()})
		return true
	}
	return false
}

// applyIntentsLocked drains the proxy's intent queue and acts on each
// (§4.3 Intents). All intents are consumed atomically in one pass.
func (o *Orchestrator) applyIntentsLocked(ctx context.Context, changed map[api.ComponentID]bool) {
	if o.proxy == nil {
		return
	}
	intents, err := o.proxy.RetrieveDeployIntents(ctx)
	if err != nil {
		o.log.Warn("retrieve deploy intents failed", "error", err)
		return
	}
	for _, intent := range intents {
		switch intent.Kind {
		case api.IntentCordon:
			o.setCordoned(intent.NodeID, true)
		case api.IntentUncordon:
			o.setCordoned(intent.NodeID, false)
		case api.IntentMigrate:
			if o.migrateLocked(ctx, intent.LID, intent.Candidates) {
				changed[intent.LID] = true
			}
		}
	}
}

// migrateLocked implements one Migrate intent: stop the current physical
// instance, start on one of the candidate nodes, keep the LID.
func (o *Orchestrator) migrateLocked(ctx context.Context, lid api.ComponentID, candidates []api.NodeID) bool {
	rec, ok := o.active[lid]
	if !ok {
		return false
	}
	allowed := make(map[api.NodeID]bool, len(candidates))
	for _, id := range candidates {
		allowed[id] = true
	}
	var pool []*api.NodeDescriptor
	for _, n := range o.availableNodesLocked() {
		if allowed[n.NodeID] {
			pool = append(pool, n)
		}
	}
	if len(pool) == 0 {
		o.log.Warn("migrate intent has no feasible candidate", "lid", lid)
		return false
	}

	if oldNode, ok := o.nodes[rec.nodeID]; ok {
		path := "/functions/"
		if rec.kind == api.ComponentResource {
			path = "/resources/"
		}
		if err := o.httpClient.DeleteJSON(ctx, oldNode.desc.AgentURL+path+rec.instanceID.Component.String(), nil); err != nil {
			o.log.Warn("migrate: stop on source node failed", "lid", lid, "error", err)
		}
	}

	switch rec.kind {
	case api.ComponentFunction:
		node := pool[0]
		spawnReq := api.SpawnFunctionRequest{LID: rec.lid, Class: rec.spawnFunc.Class, Annotations: rec.spawnFunc.Annotations, State: rec.spawnFunc.State}
		var resp api.StartComponentResponse
		if err := o.httpClient.PostJSON(ctx, node.AgentURL+"/functions", spawnReq, &resp); err != nil {
			o.log.Warn("migrate: start on target node failed", "lid", lid, "error", err)
			return false
		}
		rec.nodeID = node.NodeID
		rec.instanceID = resp.Instance
		return true
	case api.ComponentResource:
		for _, n := range pool {
			for _, r := range o.resources {
				if r.ClassType == rec.spawnRes.ClassType && r.NodeID == n.NodeID {
					spawnReq := api.SpawnResourceRequest{LID: rec.lid, ClassType: rec.spawnRes.ClassType, Configuration: rec.spawnRes.Configuration, Annotations: rec.spawnRes.Annotations}
					var resp api.StartComponentResponse
					if err := o.httpClient.PostJSON(ctx, n.AgentURL+"/resources", spawnReq, &resp); err != nil {
						continue
					}
					rec.nodeID = n.NodeID
					rec.instanceID = resp.Instance
					return true
				}
			}
		}
		o.log.Warn("migrate: no candidate advertises this resource class", "lid", lid)
		return false
	}
	return false
}

func dedupeIDs(ids []api.ComponentID) []api.ComponentID {
	seen := make(map[api.ComponentID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
