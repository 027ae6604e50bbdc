// Package agent implements the node agent: Function Instance API, Resource
// Configuration API, Node Management, and the Node Registration loop
// (§4.2). The start, stop, patch and reset methods are dispatched through a
// single actor.Loop so the agent's instance tables are never changed from
// two goroutines at once, per §5. UpdatePeers and the registration loop do
// not go through the loop.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeless-project/edgeless/common/actor"
	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/common/clients"
	"github.com/edgeless-project/edgeless/common/config"
	"github.com/edgeless-project/edgeless/common/logger"
	"github.com/edgeless-project/edgeless/common/metrics"
	"github.com/edgeless-project/edgeless/common/telemetry"
	"github.com/edgeless-project/edgeless/pkg/agent/resource"
	"github.com/edgeless-project/edgeless/pkg/agent/runtime"
	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/dataplane"
	"github.com/edgeless-project/edgeless/pkg/dataplane/transport"
)

type functionRecord struct {
	handle  *dataplane.Handle
	inst    runtime.Instance
	mapping map[string]api.Link
	cancel  context.CancelFunc
}

type resourceRecord struct {
	handle  *dataplane.Handle
	inst    resource.Instance
	mapping map[string]api.Link
	class   string
	cancel  context.CancelFunc
}

// Agent is the node agent's single-consumer core.
type Agent struct {
	id api.NodeID

	loop      *actor.Loop
	registry  *dataplane.Registry
	peers     *dataplane.PeerTable
	runtimes  *runtime.Registry
	resources *resource.Registry

	functions map[api.ComponentID]*functionRecord
	resMap    map[api.ComponentID]*resourceRecord
	mu        sync.RWMutex // guards functions/resMap for reads outside the loop (proxy-style inspection)

	httpClient *clients.HTTPClient
	cfg        *config.NodeConfig
	log        *logger.Logger
	tel        *telemetry.Telemetry

	nonce   string
	counter uint64
}

// New builds a node agent bound to id, with the given runtimes and
// resource providers available. tel may be nil (e.g. in tests), in which
// case lifecycle events are simply not recorded.
func New(id api.NodeID, cfg *config.NodeConfig, log *logger.Logger, httpClient *clients.HTTPClient, runtimes *runtime.Registry, resources *resource.Registry, tel *telemetry.Telemetry) *Agent {
	return &Agent{
		id:         id,
		loop:       actor.NewLoop("node-agent", 1024, log),
		registry:   dataplane.NewRegistry(),
		peers:      dataplane.NewPeerTable(),
		runtimes:   runtimes,
		resources:  resources,
		functions:  make(map[api.ComponentID]*functionRecord),
		resMap:     make(map[api.ComponentID]*resourceRecord),
		httpClient: httpClient,
		cfg:        cfg,
		log:        log,
		tel:        tel,
		nonce:      api.NewID().String(),
	}
}

// recordEvent forwards to tel.RecordEvent when telemetry is configured.
func (a *Agent) recordEvent(event string, attrs map[string]any) {
	if a.tel != nil {
		a.tel.RecordEvent(event, attrs)
	}
}

// Run starts the agent's task loop. Call once at process startup.
func (a *Agent) Run(ctx context.Context) { a.loop.Run(ctx) }

func (a *Agent) linkChain() []dataplane.Link {
	return []dataplane.Link{
		dataplane.NewLocalLink(a.registry),
		dataplane.NewRemoteLink(a.peers),
	}
}

// StartFunction instantiates a function instance (§4.2 Start(function)).
func (a *Agent) StartFunction(ctx context.Context, req api.SpawnFunctionRequest) (api.StartComponentResponse, error) {
	var resp api.StartComponentResponse
	var retErr error
	ok := a.loop.Do(ctx, func() {
		rt, found := a.runtimes.Lookup(req.Class.Format)
		if !found {
			retErr = apierr.NewRuntime("no runtime for format", req.Class.Format)
			return
		}
		component := api.NewID()
		instanceID := api.InstanceID{Node: a.id, Component: component}
		handle := dataplane.NewHandle(instanceID, a.linkChain(), a.log)

		rec := &functionRecord{mapping: req.OutputMapping}
		outFn := func(ctx context.Context, channel string, payload []byte) error {
			return a.emit(ctx, handle, rec, channel, payload)
		}
		inst, err := rt.Instantiate(ctx, req.Class, outFn)
		if err != nil {
			retErr = err
			return
		}
		rec.handle = handle
		rec.inst = inst

		a.registry.Register(handle)
		a.mu.Lock()
		a.functions[component] = rec
		a.mu.Unlock()

		runCtx, cancel := context.WithCancel(context.Background())
		rec.cancel = cancel
		go a.pumpFunction(runCtx, component, rec)

		resp = api.StartComponentResponse{Instance: instanceID}
		a.recordEvent("function_started", map[string]any{"lid": component.String(), "class_format": req.Class.Format})
	})
	if !ok {
		return resp, apierr.NewInternal("agent loop closed", nil)
	}
	return resp, retErr
}

// pumpFunction is the per-instance delivery loop: every cast/call the
// data plane hands to this instance's handle is dispatched into the
// runtime, and call replies are sent back through the handle.
func (a *Agent) pumpFunction(ctx context.Context, lid api.ComponentID, rec *functionRecord) {
	for {
		delivery, ok := rec.handle.ReceiveNext(ctx)
		if !ok {
			return
		}
		switch delivery.Kind {
		case dataplane.KindCast:
			if err := rec.inst.Cast(ctx, "", delivery.Payload); err != nil {
				a.log.Warn("function cast rejected", "lid", lid, "error", err)
			}
		case dataplane.KindCall:
			reply, err := rec.inst.Call(ctx, "", delivery.Payload)
			if err != nil {
				rec.handle.Reply(delivery.Source, delivery.ChannelID, dataplane.Err())
				continue
			}
			rec.handle.Reply(delivery.Source, delivery.ChannelID, dataplane.Reply(reply))
		}
	}
}

// emit resolves a function's own cast(channel, payload) against its
// current output_mapping and pushes it onto the data plane (§4.2 Patch).
func (a *Agent) emit(ctx context.Context, handle *dataplane.Handle, rec *functionRecord, channel string, payload []byte) error {
	link, ok := rec.mapping[channel]
	if !ok {
		return apierr.NewNotFound(fmt.Sprintf("no output mapping for channel %q", channel))
	}
	if link.IsAllOf() {
		for _, target := range link.AllOf {
			handle.Send(ctx, target, payload)
		}
		return nil
	}
	if link.Direct == nil {
		return apierr.NewInternal("output link has neither direct nor all-of target", nil)
	}
	handle.Send(ctx, *link.Direct, payload)
	return nil
}

// StopFunction asks the runtime to drain and destroy an instance (§4.2
// Stop(instance)). Stopping an unknown instance is a warning, not error.
func (a *Agent) StopFunction(ctx context.Context, lid api.ComponentID) error {
	a.loop.Do(ctx, func() {
		a.mu.Lock()
		rec, ok := a.functions[lid]
		if ok {
			delete(a.functions, lid)
		}
		a.mu.Unlock()
		if !ok {
			a.log.Warn("stop of unknown function instance", "lid", lid)
			return
		}
		rec.cancel()
		a.registry.Unregister(lid)
		if err := rec.inst.Stop(ctx); err != nil {
			a.log.Warn("function stop error", "lid", lid, "error", err)
		}
		a.recordEvent("function_stopped", map[string]any{"lid": lid.String()})
	})
	return nil
}

// PatchFunction replaces a function instance's output_mapping atomically
// (§4.2 Patch). Patching an unknown instance fails.
func (a *Agent) PatchFunction(ctx context.Context, lid api.ComponentID, mapping map[string]api.Link) error {
	var retErr error
	a.loop.Do(ctx, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		rec, ok := a.functions[lid]
		if !ok {
			retErr = apierr.NewNotFound("unknown function instance")
			return
		}
		rec.mapping = mapping
	})
	return retErr
}

// StartResource instantiates a resource object (§4.2 resource lifecycle).
func (a *Agent) StartResource(ctx context.Context, req api.SpawnResourceRequest) (api.StartComponentResponse, error) {
	var resp api.StartComponentResponse
	var retErr error
	a.loop.Do(ctx, func() {
		provider, found := a.resources.Lookup(req.ClassType)
		if !found {
			retErr = apierr.NewRuntime("no provider for class type", req.ClassType)
			return
		}
		component := api.NewID()
		instanceID := api.InstanceID{Node: a.id, Component: component}
		handle := dataplane.NewHandle(instanceID, a.linkChain(), a.log)

		rec := &resourceRecord{mapping: req.OutputMapping, class: req.ClassType}
		outFn := func(ctx context.Context, channel string, payload []byte) error {
			return a.emitResource(ctx, handle, rec, channel, payload)
		}
		inst, err := provider.Start(ctx, req.Configuration, outFn)
		if err != nil {
			retErr = err
			return
		}
		rec.handle = handle
		rec.inst = inst

		a.registry.Register(handle)
		a.mu.Lock()
		a.resMap[component] = rec
		a.mu.Unlock()

		runCtx, cancel := context.WithCancel(context.Background())
		rec.cancel = cancel
		go a.pumpResource(runCtx, provider, rec)

		resp = api.StartComponentResponse{Instance: instanceID}
		a.recordEvent("resource_started", map[string]any{"lid": component.String(), "class_type": req.ClassType})
	})
	return resp, retErr
}

func (a *Agent) pumpResource(ctx context.Context, provider resource.Provider, rec *resourceRecord) {
	for {
		delivery, ok := rec.handle.ReceiveNext(ctx)
		if !ok {
			return
		}
		switch delivery.Kind {
		case dataplane.KindCast:
			_ = provider.Cast(ctx, rec.inst, "", delivery.Payload)
		case dataplane.KindCall:
			reply, err := provider.Call(ctx, rec.inst, "", delivery.Payload)
			if err != nil {
				rec.handle.Reply(delivery.Source, delivery.ChannelID, dataplane.Err())
				continue
			}
			rec.handle.Reply(delivery.Source, delivery.ChannelID, dataplane.Reply(reply))
		}
	}
}

func (a *Agent) emitResource(ctx context.Context, handle *dataplane.Handle, rec *resourceRecord, channel string, payload []byte) error {
	link, ok := rec.mapping[channel]
	if !ok {
		return apierr.NewNotFound(fmt.Sprintf("no output mapping for channel %q", channel))
	}
	if link.IsAllOf() {
		for _, target := range link.AllOf {
			handle.Send(ctx, target, payload)
		}
		return nil
	}
	if link.Direct != nil {
		handle.Send(ctx, *link.Direct, payload)
	}
	return nil
}

// StopResource mirrors StopFunction for resource instances.
func (a *Agent) StopResource(ctx context.Context, lid api.ComponentID) error {
	a.loop.Do(ctx, func() {
		a.mu.Lock()
		rec, ok := a.resMap[lid]
		if ok {
			delete(a.resMap, lid)
		}
		a.mu.Unlock()
		if !ok {
			a.log.Warn("stop of unknown resource instance", "lid", lid)
			return
		}
		rec.cancel()
		a.registry.Unregister(lid)
		if err := rec.inst.Stop(ctx); err != nil {
			a.log.Warn("resource stop error", "lid", lid, "error", err)
		}
		a.recordEvent("resource_stopped", map[string]any{"lid": lid.String()})
	})
	return nil
}

// PatchResource mirrors PatchFunction for resource instances.
func (a *Agent) PatchResource(ctx context.Context, lid api.ComponentID, mapping map[string]api.Link) error {
	var retErr error
	a.loop.Do(ctx, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		rec, ok := a.resMap[lid]
		if !ok {
			retErr = apierr.NewNotFound("unknown resource instance")
			return
		}
		rec.mapping = mapping
	})
	return retErr
}

// UpdatePeers mutates the data-plane peer table (§4.2 Node Management).
func (a *Agent) UpdatePeers(add map[api.NodeID]string, del []api.NodeID) {
	for nodeID, invocationURL := range add {
		a.peers.AddPeer(nodeID, transport.NewClient(a.httpClient, invocationURL))
	}
	for _, nodeID := range del {
		a.peers.DelPeer(nodeID)
	}
}

// Reset stops every instance and clears the peer table (§4.2 Reset), used
// when the orchestrator discovers this node's identity was superseded.
func (a *Agent) Reset(ctx context.Context) {
	a.loop.Do(ctx, func() {
		a.mu.Lock()
		functions := a.functions
		resources := a.resMap
		a.functions = make(map[api.ComponentID]*functionRecord)
		a.resMap = make(map[api.ComponentID]*resourceRecord)
		a.mu.Unlock()

		for lid, rec := range functions {
			rec.cancel()
			a.registry.Unregister(lid)
			_ = rec.inst.Stop(ctx)
		}
		for lid, rec := range resources {
			rec.cancel()
			a.registry.Unregister(lid)
			_ = rec.inst.Stop(ctx)
		}
		for _, nodeID := range a.peers.Snapshot() {
			a.peers.DelPeer(nodeID)
		}
		a.counter = 0
	})
}

// RegistrationLoop periodically pushes UpdateNode to the orchestrator
// (§4.2 Registration loop). Runs until ctx is cancelled.
func (a *Agent) RegistrationLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.RegistrationEvery)
	defer ticker.Stop()
	for {
		a.register(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) register(ctx context.Context) {
	a.mu.Lock()
	a.counter++
	counter := a.counter
	nonce := a.nonce
	a.mu.Unlock()

	req := api.UpdateNodeRequest{
		NodeID:        a.id,
		Nonce:         nonce,
		Counter:       counter,
		AgentURL:      a.cfg.AgentURL,
		InvocationURL: a.cfg.InvocationURL,
		Runtimes:      a.runtimes.Formats(),
		Labels:        metrics.DetectLabels(),
		Capacity:      metrics.DetectCapacity(),
		Resources:     a.resources.Records(a.id),
		Health:        a.health(),
	}

	var resp api.UpdateNodeResponse
	if err := a.httpClient.PostJSON(ctx, a.cfg.OrchestratorURL+"/nodes/register", req, &resp); err != nil {
		a.log.Warn("node registration failed", "error", err)
		return
	}
	if !resp.Accepted {
		a.log.Warn("node registration rejected, resetting")
		a.Reset(ctx)
	}
}

func (a *Agent) health() api.NodeHealth {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return api.NodeHealth{RunningInstances: len(a.functions) + len(a.resMap)}
}
