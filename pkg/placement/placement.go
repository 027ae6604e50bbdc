// Package placement implements the orchestrator's candidate filtering and
// node-selection strategy (§4.3 Placement). Label/annotation predicates are
// evaluated with CEL through a compiled-program cache keyed by expression
// text, repurposed here from gating workflow branch conditions to gating
// node eligibility.
package placement

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// Strategy picks one feasible node among several.
type Strategy string

const (
	StrategyRandom      Strategy = "random"
	StrategyRoundRobin  Strategy = "round_robin"
)

// Request describes what a spawn needs from a node.
type Request struct {
	Runtime     string            // "" for resource spawns, which match by class type instead
	ClassType   string            // "" for function spawns
	Annotations map[string]string // may include "label_predicate" (CEL expr over node.labels), "cpu", "memory"
}

// Policy filters and selects a node for one spawn request.
type Policy struct {
	strategy Strategy

	mu     sync.Mutex
	cel    *celCache
	rrNext int
}

func NewPolicy(strategy Strategy) *Policy {
	return &Policy{strategy: strategy, cel: newCELCache()}
}

// Select returns the chosen node, or a Capacity error if none is feasible
// (§4.3: "Failure to find any feasible node yields a ResponseError").
func (p *Policy) Select(req Request, nodes []*api.NodeDescriptor) (*api.NodeDescriptor, error) {
	candidates, err := p.filter(req, nodes)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apierr.NewCapacity("no compatible node found", describeRequest(req))
	}
	return p.choose(candidates), nil
}

func (p *Policy) filter(req Request, nodes []*api.NodeDescriptor) ([]*api.NodeDescriptor, error) {
	var predicate cel.Program
	if expr := req.Annotations["label_predicate"]; expr != "" {
		prog, err := p.cel.compile(expr)
		if err != nil {
			return nil, apierr.NewBadRequest("invalid label predicate", err.Error())
		}
		predicate = prog
	}

	var candidates []*api.NodeDescriptor
	for _, n := range nodes {
		if req.Runtime != "" && !hasRuntime(n.Runtimes, req.Runtime) {
			continue
		}
		if predicate != nil {
			ok, err := evalPredicate(predicate, n.Labels)
			if err != nil || !ok {
				continue
			}
		}
		if !withinCapacity(req.Annotations, n.Capacity) {
			continue
		}
		candidates = append(candidates, n)
	}
	return candidates, nil
}

func (p *Policy) choose(candidates []*api.NodeDescriptor) *api.NodeDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.strategy {
	case StrategyRoundRobin:
		idx := p.rrNext % len(candidates)
		p.rrNext++
		return candidates[idx]
	default:
		return candidates[rand.Intn(len(candidates))]
	}
}

func hasRuntime(runtimes []string, want string) bool {
	for _, r := range runtimes {
		if r == want {
			return true
		}
	}
	return false
}

func withinCapacity(annotations map[string]string, capacity api.ResourceCapacity) bool {
	if v, ok := annotations["cpu"]; ok {
		var want int64
		if _, err := fmt.Sscanf(v, "%d", &want); err == nil && want > capacity.CPU {
			return false
		}
	}
	if v, ok := annotations["memory"]; ok {
		var want int64
		if _, err := fmt.Sscanf(v, "%d", &want); err == nil && want > capacity.Memory {
			return false
		}
	}
	return true
}

func describeRequest(req Request) string {
	parts := []string{}
	if req.Runtime != "" {
		parts = append(parts, "runtime="+req.Runtime)
	}
	if req.ClassType != "" {
		parts = append(parts, "class_type="+req.ClassType)
	}
	return strings.Join(parts, ", ")
}

// celCache compiles and memoizes CEL programs over a node's label map,
// keyed by expression text.
type celCache struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
	env   *cel.Env
}

func newCELCache() *celCache {
	env, err := cel.NewEnv(cel.Variable("labels", cel.DynType))
	if err != nil {
		panic(fmt.Sprintf("placement: failed to build CEL env: %v", err))
	}
	return &celCache{cache: make(map[string]cel.Program), env: env}
}

func (c *celCache) compile(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.cache[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile label predicate: %w", issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build label predicate program: %w", err)
	}

	c.mu.Lock()
	c.cache[expr] = prg
	c.mu.Unlock()
	return prg, nil
}

func evalPredicate(prg cel.Program, labels map[string]string) (bool, error) {
	vars := make(map[string]interface{}, len(labels))
	for k, v := range labels {
		vars[k] = v
	}
	out, _, err := prg.Eval(map[string]interface{}{"labels": vars})
	if err != nil {
		return false, err
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("label predicate did not return a bool")
	}
	return result, nil
}
