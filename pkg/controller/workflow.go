package controller

import (
	"context"
	"math/rand"
	"sort"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/common/validation"
	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/controller/portal"
)

var validator = validation.NewWorkflowValidator()

// StartWorkflow validates, places (single-domain, falling back to portal
// multi-domain), splices, and deploys a new workflow (§4.4 StartWorkflow).
func (c *Controller) StartWorkflow(ctx context.Context, req api.WorkflowRequest) (api.SpawnWorkflowResponse, error) {
	if err := validator.Validate(&req); err != nil {
		return api.SpawnWorkflowResponse{}, apierr.NewBadRequest("invalid workflow request", err.Error())
	}
	var resp api.SpawnWorkflowResponse
	var retErr error
	c.loop.Do(ctx, func() {
		resp, retErr = c.startWorkflowLocked(ctx, req)
	})
	return resp, retErr
}

func (c *Controller) startWorkflowLocked(ctx context.Context, req api.WorkflowRequest) (api.SpawnWorkflowResponse, error) {
	assignment, augmented, err := c.planPlacementLocked(req)
	if err != nil {
		return api.SpawnWorkflowResponse{}, err
	}

	mapping, err := c.deployLocked(ctx, &augmented, assignment)
	if err != nil {
		return api.SpawnWorkflowResponse{}, err
	}

	workflowID := api.NewID()
	c.workflows[workflowID] = &api.ActiveWorkflow{
		WorkflowID:    workflowID,
		DesiredState:  req,
		AugmentedSpec: augmented,
		DomainMapping: mapping,
	}
	c.persistLocked(ctx)
	c.recordEvent("workflow_started", map[string]any{"workflow": workflowID.String()})
	return api.SpawnWorkflowResponse{WorkflowID: workflowID, Mapping: mapping}, nil
}

// planPlacementLocked picks domains for every entry of req: single-domain
// placement first, falling back to portal multi-domain placement plus
// splicing when no single domain satisfies the whole workflow (§4.4
// StartWorkflow, Portal splicing).
func (c *Controller) planPlacementLocked(req api.WorkflowRequest) (map[string]api.DomainID, api.WorkflowRequest, error) {
	snapshot := make(map[api.DomainID]api.DomainSummary, len(c.domains))
	for id, rec := range c.domains {
		snapshot[id] = rec.summary
	}

	if domainID, ok := pickSingleDomain(snapshot, &req); ok {
		assignment := make(map[string]api.DomainID, len(req.Functions)+len(req.Resources))
		for _, f := range req.Functions {
			assignment[f.Name] = domainID
		}
		for _, r := range req.Resources {
			assignment[r.Name] = domainID
		}
		return assignment, deepCopyWorkflowRequest(req), nil
	}

	if c.portal == nil {
		return nil, api.WorkflowRequest{}, apierr.NewCapacity("no domain satisfies every function and resource", "")
	}

	assignment, err := assignAcrossMembers(snapshot, c.portal.Members, &req)
	if err != nil {
		return nil, api.WorkflowRequest{}, err
	}
	augmented := deepCopyWorkflowRequest(req)
	next, err := portal.Splice(&augmented, assignment, c.portal.DomainBal, c.nextPair)
	if err != nil {
		return nil, api.WorkflowRequest{}, apierr.NewInternal("portal splicing failed", err)
	}
	c.nextPair = next
	return assignment, augmented, nil
}

func satisfiesDomain(d api.DomainSummary, req *api.WorkflowRequest) bool {
	for _, f := range req.Functions {
		if !containsString(d.Runtimes, f.Class.Format) {
			return false
		}
	}
	for _, r := range req.Resources {
		if !containsString(d.ResourceClasses, r.ClassType) {
			return false
		}
	}
	return true
}

func pickSingleDomain(domains map[api.DomainID]api.DomainSummary, req *api.WorkflowRequest) (api.DomainID, bool) {
	var candidates []api.DomainID
	for id, d := range domains {
		if satisfiesDomain(d, req) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[rand.Intn(len(candidates))], true
}

// assignAcrossMembers assigns each function/resource independently to a
// compatible domain drawn from the portal's member set (§4.4 StartWorkflow
// "multi-domain placement").
func assignAcrossMembers(domains map[api.DomainID]api.DomainSummary, members []api.DomainID, req *api.WorkflowRequest) (map[string]api.DomainID, error) {
	assignment := make(map[string]api.DomainID, len(req.Functions)+len(req.Resources))
	for _, f := range req.Functions {
		var candidates []api.DomainID
		for _, m := range members {
			if d, ok := domains[m]; ok && containsString(d.Runtimes, f.Class.Format) {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			return nil, apierr.NewCapacity("no portal member domain satisfies function", f.Name)
		}
		sort.Strings(candidates)
		assignment[f.Name] = candidates[rand.Intn(len(candidates))]
	}
	for _, r := range req.Resources {
		var candidates []api.DomainID
		for _, m := range members {
			if d, ok := domains[m]; ok && containsString(d.ResourceClasses, r.ClassType) {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			return nil, apierr.NewCapacity("no portal member domain satisfies resource", r.Name)
		}
		sort.Strings(candidates)
		assignment[r.Name] = candidates[rand.Intn(len(candidates))]
	}
	return assignment, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// placedEntry records one component started during deployLocked, enough
// to stop it again on rollback.
type placedEntry struct {
	name     string
	kind     api.ComponentKind
	domainID api.DomainID
	lid      api.ComponentID
}

// deployLocked implements the two-pass deployment (§4.4): Pass 1 starts
// every component and records its LID; Pass 2 resolves every outgoing
// edge to a same-domain LID and patches it. Any failure in either pass
// stops everything already started and returns the error.
func (c *Controller) deployLocked(ctx context.Context, augmented *api.WorkflowRequest, assignment map[string]api.DomainID) (map[string]*api.DomainMappingEntry, error) {
	var placed []placedEntry
	rollback := func() {
		for _, p := range placed {
			c.stopPlacedLocked(ctx, p)
		}
	}

	for _, f := range augmented.Functions {
		domainID := assignment[f.Name]
		url, ok := c.orchestratorURLLocked(domainID)
		if !ok {
			rollback()
			return nil, apierr.NewCapacity("assigned domain not registered", string(domainID))
		}
		var resp api.StartLIDResponse
		startReq := api.StartFunctionRequest{Class: f.Class, Annotations: f.Annotations, State: f.State}
		if err := c.httpClient.PostJSON(ctx, url+"/start/function", startReq, &resp); err != nil {
			rollback()
			return nil, err
		}
		placed = append(placed, placedEntry{name: f.Name, kind: api.ComponentFunction, domainID: domainID, lid: resp.LID})
	}
	for _, r := range augmented.Resources {
		domainID := assignment[r.Name]
		url, ok := c.orchestratorURLLocked(domainID)
		if !ok {
			rollback()
			return nil, apierr.NewCapacity("assigned domain not registered", string(domainID))
		}
		var resp api.StartLIDResponse
		startReq := api.StartResourceRequest{ClassType: r.ClassType, Configuration: r.Configuration, Annotations: r.Annotations}
		if err := c.httpClient.PostJSON(ctx, url+"/start/resource", startReq, &resp); err != nil {
			rollback()
			return nil, err
		}
		placed = append(placed, placedEntry{name: r.Name, kind: api.ComponentResource, domainID: domainID, lid: resp.LID})
	}

	lidOf := make(map[string]api.ComponentID, len(placed))
	for _, p := range placed {
		lidOf[p.name] = p.lid
	}

	patchEntry := func(name string, outputs map[string]string) error {
		if len(outputs) == 0 {
			return nil
		}
		originDomain := assignment[name]
		url, _ := c.orchestratorURLLocked(originDomain)
		resolved := make(map[string]api.LIDLink, len(outputs))
		for channel, targetName := range outputs {
			if assignment[targetName] != originDomain {
				return apierr.NewInternal("cross-domain patch after splicing", nil)
			}
			targetLID, ok := lidOf[targetName]
			if !ok {
				return apierr.NewInternal("patch target was never started", nil)
			}
			resolved[channel] = api.LIDLink{Direct: &targetLID}
		}
		return c.httpClient.PatchJSON(ctx, url+"/patch", api.LIDPatchRequest{LID: lidOf[name], OutputMapping: resolved}, nil)
	}

	for _, f := range augmented.Functions {
		if err := patchEntry(f.Name, f.OutputMapping); err != nil {
			rollback()
			return nil, err
		}
	}
	for _, r := range augmented.Resources {
		if err := patchEntry(r.Name, r.OutputMapping); err != nil {
			rollback()
			return nil, err
		}
	}

	mapping := make(map[string]*api.DomainMappingEntry, len(placed))
	for _, p := range placed {
		mapping[p.name] = &api.DomainMappingEntry{Name: p.name, ComponentType: p.kind, DomainID: p.domainID, LID: p.lid}
	}
	return mapping, nil
}

func (c *Controller) orchestratorURLLocked(domainID api.DomainID) (string, bool) {
	rec, ok := c.domains[domainID]
	if !ok {
		return "", false
	}
	return rec.summary.OrchestratorURL, true
}

func (c *Controller) stopPlacedLocked(ctx context.Context, p placedEntry) {
	url, ok := c.orchestratorURLLocked(p.domainID)
	if !ok {
		return
	}
	path := "/stop/function/"
	if p.kind == api.ComponentResource {
		path = "/stop/resource/"
	}
	if err := c.httpClient.DeleteJSON(ctx, url+path+p.lid.String(), nil); err != nil {
		c.log.Warn("stop component failed", "name", p.name, "lid", p.lid, "error", err)
	}
}

// StopWorkflow tells every owning orchestrator to stop each of a
// workflow's components, then forgets the workflow (§4.4 StopWorkflow).
// Stopping an unknown workflow succeeds (§8 boundary: idempotent).
func (c *Controller) StopWorkflow(ctx context.Context, id api.WorkflowID) (api.WorkflowRequest, error) {
	var desired api.WorkflowRequest
	c.loop.Do(ctx, func() {
		w, ok := c.workflows[id]
		if !ok {
			return
		}
		desired = w.DesiredState
		for _, entry := range w.DomainMapping {
			if entry.DomainID == "" {
				continue
			}
			c.stopPlacedLocked(ctx, placedEntry{name: entry.Name, kind: entry.ComponentType, domainID: entry.DomainID, lid: entry.LID})
		}
		delete(c.workflows, id)
		c.persistLocked(ctx)
		c.recordEvent("workflow_stopped", map[string]any{"workflow": id.String()})
	})
	return desired, nil
}

// Migrate moves one component (or, with an empty entry name, every
// component) of a workflow to a different domain (§4.4 Migrate). Migrating
// to the component's current domain is a boundary no-op rejected with a
// descriptive ResponseError (§8 boundary behaviours).
func (c *Controller) Migrate(ctx context.Context, req api.MigrateWorkflowRequest) (api.SpawnWorkflowResponse, error) {
	var resp api.SpawnWorkflowResponse
	var retErr error
	c.loop.Do(ctx, func() {
		resp, retErr = c.migrateLocked(ctx, req)
	})
	return resp, retErr
}

func (c *Controller) migrateLocked(ctx context.Context, req api.MigrateWorkflowRequest) (api.SpawnWorkflowResponse, error) {
	w, ok := c.workflows[req.WorkflowID]
	if !ok {
		return api.SpawnWorkflowResponse{}, apierr.NewNotFound("unknown workflow")
	}

	if req.TargetDomain != "" {
		if req.EntryName != "" {
			entry, ok := w.DomainMapping[req.EntryName]
			if !ok {
				return api.SpawnWorkflowResponse{}, apierr.NewNotFound("unknown workflow entry")
			}
			if entry.DomainID == req.TargetDomain {
				return api.SpawnWorkflowResponse{}, apierr.NewBadRequest("Ignoring", "component already runs in the requested domain")
			}
		} else {
			allSame := true
			for _, entry := range w.DomainMapping {
				if entry.DomainID != req.TargetDomain {
					allSame = false
					break
				}
			}
			if allSame {
				return api.SpawnWorkflowResponse{}, apierr.NewBadRequest("Ignoring", "workflow already runs entirely in the requested domain")
			}
		}
	}

	desired := w.DesiredState
	if req.TargetDomain != "" && !c.domainSatisfiesEntryLocked(req.TargetDomain, desired, req.EntryName) {
		return api.SpawnWorkflowResponse{}, apierr.NewBadRequest("target domain is not compatible", string(req.TargetDomain))
	}

	assignment, augmented, err := c.planMigrationPlacementLocked(desired, req)
	if err != nil {
		return api.SpawnWorkflowResponse{}, err
	}

	for _, entry := range w.DomainMapping {
		if entry.DomainID == "" {
			continue
		}
		c.stopPlacedLocked(ctx, placedEntry{name: entry.Name, kind: entry.ComponentType, domainID: entry.DomainID, lid: entry.LID})
	}
	delete(c.workflows, req.WorkflowID)

	mapping, err := c.deployLocked(ctx, &augmented, assignment)
	if err != nil {
		return api.SpawnWorkflowResponse{}, err
	}
	c.workflows[req.WorkflowID] = &api.ActiveWorkflow{
		WorkflowID:    req.WorkflowID,
		DesiredState:  desired,
		AugmentedSpec: augmented,
		DomainMapping: mapping,
	}
	c.persistLocked(ctx)
	c.recordEvent("workflow_migrated", map[string]any{"workflow": req.WorkflowID.String(), "target_domain": string(req.TargetDomain)})
	return api.SpawnWorkflowResponse{WorkflowID: req.WorkflowID, Mapping: mapping}, nil
}

// domainSatisfiesEntryLocked checks req.TargetDomain can host entryName
// (or, when entryName is empty, the whole workflow).
func (c *Controller) domainSatisfiesEntryLocked(domainID api.DomainID, desired api.WorkflowRequest, entryName string) bool {
	rec, ok := c.domains[domainID]
	if !ok {
		return false
	}
	if entryName == "" {
		return satisfiesDomain(rec.summary, &desired)
	}
	for _, f := range desired.Functions {
		if f.Name == entryName {
			return containsString(rec.summary.Runtimes, f.Class.Format)
		}
	}
	for _, r := range desired.Resources {
		if r.Name == entryName {
			return containsString(rec.summary.ResourceClasses, r.ClassType)
		}
	}
	return false
}

// planMigrationPlacementLocked re-runs placement for desired, pinning the
// migrating entry (or every entry, for a whole-workflow migration) to
// req.TargetDomain when given.
func (c *Controller) planMigrationPlacementLocked(desired api.WorkflowRequest, req api.MigrateWorkflowRequest) (map[string]api.DomainID, api.WorkflowRequest, error) {
	if req.TargetDomain == "" {
		return c.planPlacementLocked(desired)
	}
	if req.EntryName == "" {
		assignment := make(map[string]api.DomainID, len(desired.Functions)+len(desired.Resources))
		for _, f := range desired.Functions {
			assignment[f.Name] = req.TargetDomain
		}
		for _, r := range desired.Resources {
			assignment[r.Name] = req.TargetDomain
		}
		return assignment, deepCopyWorkflowRequest(desired), nil
	}

	// Single-entry migration: keep every other entry's current domain,
	// move only the named entry, then re-splice for the new cross-domain
	// shape.
	snapshot := make(map[api.DomainID]api.DomainSummary, len(c.domains))
	for id, rec := range c.domains {
		snapshot[id] = rec.summary
	}
	w, ok := c.workflows[req.WorkflowID]
	assignment := make(map[string]api.DomainID, len(desired.Functions)+len(desired.Resources))
	if ok {
		for name, entry := range w.DomainMapping {
			if entry.DomainID != "" {
				assignment[name] = entry.DomainID
			}
		}
	}
	assignment[req.EntryName] = req.TargetDomain
	if c.portal == nil {
		augmented := deepCopyWorkflowRequest(desired)
		return assignment, augmented, nil
	}
	augmented := deepCopyWorkflowRequest(desired)
	next, err := portal.Splice(&augmented, assignment, c.portal.DomainBal, c.nextPair)
	if err != nil {
		return nil, api.WorkflowRequest{}, apierr.NewInternal("portal splicing failed", err)
	}
	c.nextPair = next
	return assignment, augmented, nil
}

// deepCopyWorkflowRequest clones req's functions/resources and their
// output_mapping so placement (and portal splicing in particular) never
// mutates the caller's desired_state (§3: augmented_spec is desired_state
// plus bridges, never a replacement for it).
func deepCopyWorkflowRequest(req api.WorkflowRequest) api.WorkflowRequest {
	out := api.WorkflowRequest{
		Functions:   make([]api.WorkflowFunction, len(req.Functions)),
		Resources:   make([]api.WorkflowResource, len(req.Resources)),
		Annotations: req.Annotations,
	}
	for i, f := range req.Functions {
		out.Functions[i] = f
		out.Functions[i].OutputMapping = cloneStringMap(f.OutputMapping)
	}
	for i, r := range req.Resources {
		out.Resources[i] = r
		out.Resources[i].OutputMapping = cloneStringMap(r.OutputMapping)
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
