package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// domainPushFingerprint holds the subset of an UpdateDomainRequest that
// determines whether a push is worth sending; Nonce/Counter are excluded
// since they change on every call regardless of capability drift.
type domainPushFingerprint struct {
	Runtimes         []string
	ResourceClasses  []string
	ReachableDomains []api.DomainID
	NodeCount        int
	Capacity         api.ResourceCapacity
}

// DomainPushLoop periodically reports this domain's aggregate capability
// snapshot to the controller (§4.3 UpdateDomain subscription). Runs until
// ctx is cancelled. The fingerprint of the last successful push is
// memoized in o.cache so repeated ticks with no capability drift skip the
// network round trip instead of recomputing an in-memory comparison.
func (o *Orchestrator) DomainPushLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.DomainPushEvery)
	defer ticker.Stop()

	cacheKey := "orchestrator:domain_push:" + string(o.domainID)

	push := func() {
		req := o.aggregate()
		fingerprint, err := json.Marshal(domainPushFingerprint{
			Runtimes:         req.Runtimes,
			ResourceClasses:  req.ResourceClasses,
			ReachableDomains: req.ReachableDomains,
			NodeCount:        req.NodeCount,
			Capacity:         req.Capacity,
		})
		if err != nil {
			o.log.Warn("domain push fingerprint encode failed", "error", err)
			return
		}
		if o.cache != nil {
			if cached, ok, err := o.cache.Get(ctx, cacheKey); err == nil && ok && bytes.Equal(cached, fingerprint) {
				return // unchanged since the last push, per "push when changed"
			}
		}
		var resp api.UpdateDomainResponse
		if err := o.httpClient.PostJSON(ctx, o.cfg.ControllerURL+"/domains/register", req, &resp); err != nil {
			o.log.Warn("domain push failed", "error", err)
			return
		}
		o.mu.Lock()
		o.domainCounter++
		o.mu.Unlock()
		if o.cache != nil {
			if err := o.cache.Set(ctx, cacheKey, fingerprint, 2*o.cfg.DomainPushEvery); err != nil {
				o.log.Warn("domain push cache set failed", "error", err)
			}
		}
	}

	push()
	for {
		select {
		case <-ticker.C:
			push()
		case <-ctx.Done():
			return
		}
	}
}

// aggregate must be called outside the loop; it takes its own snapshot
// lock-free by using the loop for a synchronous read.
func (o *Orchestrator) aggregate() api.UpdateDomainRequest {
	var req api.UpdateDomainRequest
	o.loop.Do(context.Background(), func() {
		runtimeSet := make(map[string]bool)
		classSet := make(map[string]bool)
		var capacity api.ResourceCapacity
		for _, n := range o.nodes {
			for _, r := range n.desc.Runtimes {
				runtimeSet[r] = true
			}
			capacity.CPU += n.desc.Capacity.CPU
			capacity.Memory += n.desc.Capacity.Memory
		}
		reachableSet := make(map[api.DomainID]bool)
		for _, r := range o.resources {
			classSet[r.ClassType] = true
			if r.ClassType == "portal" {
				for _, d := range splitDomains(r.Configuration["reachable_domains"]) {
					reachableSet[d] = true
				}
			}
		}
		o.mu.RLock()
		nonce, counter := o.domainNonce, o.domainCounter
		o.mu.RUnlock()
		req = api.UpdateDomainRequest{
			DomainID:         o.domainID,
			Nonce:            nonce,
			Counter:          counter,
			OrchestratorURL:  o.cfg.OrchestratorURL,
			Runtimes:         setToSlice(runtimeSet),
			ResourceClasses:  setToSlice(classSet),
			ReachableDomains: domainSetToSlice(reachableSet),
			NodeCount:       len(o.nodes),
			Capacity:        capacity,
		}
	})
	return req
}

func setToSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func domainSetToSlice(m map[api.DomainID]bool) []api.DomainID {
	out := make([]api.DomainID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// splitDomains parses a resource provider's comma-separated
// reachable_domains configuration value into domain ids (§4.4 portal
// reachability advertisement).
func splitDomains(raw string) []api.DomainID {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]api.DomainID, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, api.DomainID(p))
		}
	}
	return out
}
