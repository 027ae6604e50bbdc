// Package controller implements the federation layer (§4.4): a registry
// of orchestrator domains keyed by domain_id, an active-workflows map, an
// orphans recovery path, and the portal bridge between domains, all
// serialized through a single actor.Loop per §5.
package controller

import (
	"context"
	"time"

	"github.com/edgeless-project/edgeless/common/actor"
	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/common/clients"
	"github.com/edgeless-project/edgeless/common/config"
	"github.com/edgeless-project/edgeless/common/logger"
	"github.com/edgeless-project/edgeless/common/telemetry"
	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/controller/portal"
	"github.com/edgeless-project/edgeless/pkg/persistence"
)

// domainRecord is the controller's registry entry for one orchestrator
// domain, carrying the nonce/counter state the registration handshake
// needs (§4.4 mirrors §4.3's registration semantics).
type domainRecord struct {
	summary  api.DomainSummary
	nonce    string
	counter  uint64
	lastSeen time.Time
}

// Controller is the federation layer's single-consumer core.
type Controller struct {
	loop *actor.Loop

	domains   map[api.DomainID]*domainRecord
	workflows map[api.WorkflowID]*api.ActiveWorkflow
	portal    *portal.Descriptor
	nextPair  uint64

	store      persistence.Store
	httpClient *clients.HTTPClient
	cfg        *config.ControllerConfig
	log        *logger.Logger
	tel        *telemetry.Telemetry
}

// New builds a federation controller. tel may be nil (e.g. in tests), in
// which case lifecycle events are simply not recorded.
func New(cfg *config.ControllerConfig, log *logger.Logger, httpClient *clients.HTTPClient, store persistence.Store, tel *telemetry.Telemetry) *Controller {
	return &Controller{
		loop:       actor.NewLoop("controller", 4096, log),
		domains:    make(map[api.DomainID]*domainRecord),
		workflows:  make(map[api.WorkflowID]*api.ActiveWorkflow),
		store:      store,
		httpClient: httpClient,
		cfg:        cfg,
		log:        log,
		tel:        tel,
		nextPair:   1,
	}
}

func (c *Controller) recordEvent(event string, attrs map[string]any) {
	if c.tel != nil {
		c.tel.RecordEvent(event, attrs)
	}
}

// Run starts the controller's task loop. Call once at process startup.
func (c *Controller) Run(ctx context.Context) { c.loop.Run(ctx) }

// LoadPersisted restores the orphans map from the persistence store at
// startup (§4.4 Persistence, §8 scenario F): every persisted entry becomes
// an all-orphan ActiveWorkflow, re-placed by the refresh loop once a
// compatible domain registers.
func (c *Controller) LoadPersisted(ctx context.Context) error {
	entries, err := c.store.Load(ctx)
	if err != nil {
		return apierr.NewInternal("load persisted workflows", err)
	}
	ok := c.loop.Do(ctx, func() {
		for _, e := range entries {
			mapping := make(map[string]*api.DomainMappingEntry, len(e.Request.Functions)+len(e.Request.Resources))
			for _, f := range e.Request.Functions {
				mapping[f.Name] = &api.DomainMappingEntry{Name: f.Name, ComponentType: api.ComponentFunction}
			}
			for _, r := range e.Request.Resources {
				mapping[r.Name] = &api.DomainMappingEntry{Name: r.Name, ComponentType: api.ComponentResource}
			}
			c.workflows[e.WorkflowID] = &api.ActiveWorkflow{
				WorkflowID:    e.WorkflowID,
				DesiredState:  e.Request,
				AugmentedSpec: e.Request,
				DomainMapping: mapping,
			}
		}
	})
	if !ok {
		return apierr.NewInternal("controller loop closed during startup", nil)
	}
	return nil
}

// persistLocked must be called from inside the loop. It serializes the
// desired state of every known workflow (placed or orphan) so a restart
// can recover via LoadPersisted (§4.4 Persistence, §8 invariant 6).
func (c *Controller) persistLocked(ctx context.Context) {
	entries := make([]persistence.Entry, 0, len(c.workflows))
	for id, w := range c.workflows {
		entries = append(entries, persistence.Entry{WorkflowID: id, Request: w.DesiredState})
	}
	if err := c.store.Save(ctx, entries); err != nil {
		c.log.Warn("persist workflows failed", "error", err)
	}
}

// ---- Domain registration (§4.4 mirrors §4.3's registration semantics) ----

// RegisterDomain implements the UpdateDomain registration handshake:
// unknown domain_id -> admit and reply Reset; known domain_id with a
// different nonce -> supersede and reply Reset; same nonce with a newer
// counter -> update capabilities; same nonce and counter -> extend the
// refresh deadline only.
func (c *Controller) RegisterDomain(ctx context.Context, req api.UpdateDomainRequest) (api.UpdateDomainResponse, error) {
	var resp api.UpdateDomainResponse
	c.loop.Do(ctx, func() {
		rec, known := c.domains[req.DomainID]
		switch {
		case !known:
			c.admitDomainLocked(req)
			resp = api.UpdateDomainResponse{Accepted: false}

		case rec.nonce != req.Nonce:
			c.admitDomainLocked(req)
			resp = api.UpdateDomainResponse{Accepted: false}

		default:
			rec.lastSeen = time.Now()
			if req.Counter > rec.counter {
				rec.counter = req.Counter
				rec.summary = summaryOf(req)
			}
			resp = api.UpdateDomainResponse{Accepted: true}
		}
	})
	return resp, nil
}

func (c *Controller) admitDomainLocked(req api.UpdateDomainRequest) {
	c.domains[req.DomainID] = &domainRecord{
		summary:  summaryOf(req),
		nonce:    req.Nonce,
		counter:  req.Counter,
		lastSeen: time.Now(),
	}
	c.recomputePortalLocked()
	c.recordEvent("domain_registered", map[string]any{"domain": string(req.DomainID)})
}

func summaryOf(req api.UpdateDomainRequest) api.DomainSummary {
	return api.DomainSummary{
		DomainID:         req.DomainID,
		OrchestratorURL:  req.OrchestratorURL,
		Runtimes:         req.Runtimes,
		ResourceClasses:  req.ResourceClasses,
		ReachableDomains: req.ReachableDomains,
		NodeCount:        req.NodeCount,
		Capacity:         req.Capacity,
	}
}

// recomputePortalLocked must be called from inside the loop whenever the
// domain registry changes (§4.4 refresh loop: "recompute the portal
// descriptor").
func (c *Controller) recomputePortalLocked() {
	snapshot := make(map[api.DomainID]api.DomainSummary, len(c.domains))
	for id, rec := range c.domains {
		snapshot[id] = rec.summary
	}
	c.portal = portal.Compute(snapshot)
}

// ---- Read-only surface (§4.4 Inspect, List, Domains) ----

func (c *Controller) List(ctx context.Context) []api.WorkflowID {
	var out []api.WorkflowID
	c.loop.Do(ctx, func() {
		out = make([]api.WorkflowID, 0, len(c.workflows))
		for id := range c.workflows {
			out = append(out, id)
		}
	})
	return out
}

func (c *Controller) Inspect(ctx context.Context, id api.WorkflowID) (api.WorkflowInfo, error) {
	var info api.WorkflowInfo
	var retErr error
	c.loop.Do(ctx, func() {
		w, ok := c.workflows[id]
		if !ok {
			retErr = apierr.NewNotFound("unknown workflow")
			return
		}
		status := api.WorkflowStatusActive
		if w.IsOrphan() {
			status = api.WorkflowStatusOrphan
		}
		info = api.WorkflowInfo{WorkflowID: id, Status: status, Mapping: w.DomainMapping}
	})
	return info, retErr
}

// Domains returns the controller's cached capability view, filtered to
// domainID when non-empty (§6 domains(domain_id="")).
func (c *Controller) Domains(ctx context.Context, domainID api.DomainID) []api.DomainSummary {
	var out []api.DomainSummary
	c.loop.Do(ctx, func() {
		for id, rec := range c.domains {
			if domainID != "" && id != domainID {
				continue
			}
			out = append(out, rec.summary)
		}
	})
	return out
}
