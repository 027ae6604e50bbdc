package controller

import (
	"context"
	"time"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// RefreshLoop runs the periodic reconciliation pass (§4.4 refresh loop)
// until ctx is cancelled.
func (c *Controller) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.refreshOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// refreshOnce evicts stale domains, flags the workflows they strand as
// orphan, recomputes the portal descriptor, and attempts to re-place
// every orphan workflow (§4.4 refresh loop).
func (c *Controller) refreshOnce(ctx context.Context) {
	c.loop.Do(ctx, func() {
		now := time.Now()
		var stale []api.DomainID
		for id, rec := range c.domains {
			if now.Sub(rec.lastSeen) > c.cfg.DomainStaleAfter {
				stale = append(stale, id)
			}
		}
		for _, id := range stale {
			delete(c.domains, id)
			c.orphanWorkflowsInDomainLocked(id)
			c.recordEvent("domain_removed", map[string]any{"domain": string(id)})
		}
		c.recomputePortalLocked()

		changed := false
		for id, w := range c.workflows {
			if !w.IsOrphan() {
				continue
			}
			if c.tryPlaceOrphanLocked(ctx, id, w) {
				changed = true
			}
		}
		if changed {
			c.persistLocked(ctx)
		}
	})
}

// orphanWorkflowsInDomainLocked clears the domain_mapping entries of
// every active workflow that had a component in domainID, after that
// domain was just removed as stale (§4.4 Domain registration: "every
// workflow that has an instance in it is flagged orphan"). LastDomainID
// remembers where the entry used to run so a reappearing original domain
// can be preferred during re-placement.
func (c *Controller) orphanWorkflowsInDomainLocked(domainID api.DomainID) {
	for id, w := range c.workflows {
		for _, entry := range w.DomainMapping {
			if entry.DomainID == domainID {
				entry.LastDomainID = domainID
				entry.DomainID = ""
				entry.LID = api.ComponentID{}
				c.recordEvent("workflow_orphaned", map[string]any{"workflow": id.String(), "domain": string(domainID)})
			}
		}
	}
}

// tryPlaceOrphanLocked attempts to re-place an orphan workflow. Per the
// original Rust controller's orphan reconciliation
// (original_source/edgeless_con's controller_task.rs), a domain that
// reappears and still matches the orphan's last known placement is
// preferred over a fresh single-domain or portal search.
func (c *Controller) tryPlaceOrphanLocked(ctx context.Context, id api.WorkflowID, w *api.ActiveWorkflow) bool {
	if c.tryOriginalDomainLocked(ctx, id, w) {
		return true
	}

	assignment, augmented, err := c.planPlacementLocked(w.DesiredState)
	if err != nil {
		return false
	}
	mapping, err := c.deployLocked(ctx, &augmented, assignment)
	if err != nil {
		c.log.Warn("orphan re-placement failed during deploy", "workflow", id, "error", err)
		return false
	}
	w.AugmentedSpec = augmented
	w.DomainMapping = mapping
	c.recordEvent("workflow_replaced", map[string]any{"workflow": id.String()})
	return true
}

// tryOriginalDomainLocked checks whether any domain this workflow last
// ran in (recorded as LastDomainID when it was orphaned) has re-registered
// and still satisfies the whole workflow single-domain; if so, redeploys
// entirely into that domain instead of running full candidate search.
func (c *Controller) tryOriginalDomainLocked(ctx context.Context, id api.WorkflowID, w *api.ActiveWorkflow) bool {
	var original api.DomainID
	for _, entry := range w.DomainMapping {
		if entry.LastDomainID == "" {
			continue
		}
		if rec, ok := c.domains[entry.LastDomainID]; ok && satisfiesDomain(rec.summary, &w.DesiredState) {
			original = entry.LastDomainID
			break
		}
	}
	if original == "" {
		return false
	}

	assignment := make(map[string]api.DomainID, len(w.DesiredState.Functions)+len(w.DesiredState.Resources))
	for _, f := range w.DesiredState.Functions {
		assignment[f.Name] = original
	}
	for _, r := range w.DesiredState.Resources {
		assignment[r.Name] = original
	}
	augmented := deepCopyWorkflowRequest(w.DesiredState)
	mapping, err := c.deployLocked(ctx, &augmented, assignment)
	if err != nil {
		c.log.Warn("orphan re-placement into original domain failed", "workflow", id, "error", err)
		return false
	}
	w.AugmentedSpec = augmented
	w.DomainMapping = mapping
	c.recordEvent("workflow_reclaimed", map[string]any{"workflow": id.String(), "domain": string(original)})
	return true
}
