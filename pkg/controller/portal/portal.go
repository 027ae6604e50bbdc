// Package portal implements the controller's cross-domain bridging logic
// (§4.4 Portal splicing): recomputing the active portal descriptor from
// domain capability summaries, and rewriting a workflow's cross-domain
// edges into chains of intra-domain synthetic "portal" resources.
package portal

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Descriptor is the controller's recomputed view of the active portal: the
// domain that bridges (domain_bal) and the set of domains it can reach.
type Descriptor struct {
	DomainBal api.DomainID
	Members   []api.DomainID
}

func advertisesPortal(d api.DomainSummary) bool {
	for _, c := range d.ResourceClasses {
		if c == "portal" {
			return true
		}
	}
	return false
}

// Compute recomputes the active portal descriptor (§4.4 refresh loop): a
// portal candidate is a domain that advertises a "portal" resource class
// and claims reachability to >=2 other domains that also advertise
// "portal". Ties between candidates are broken by largest member set,
// then lexicographically smallest domain id, for a deterministic result.
func Compute(domains map[api.DomainID]api.DomainSummary) *Descriptor {
	var best *Descriptor
	for id, d := range domains {
		if !advertisesPortal(d) {
			continue
		}
		var members []api.DomainID
		for _, reachable := range d.ReachableDomains {
			peer, ok := domains[reachable]
			if ok && advertisesPortal(peer) {
				members = append(members, reachable)
			}
		}
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		if best == nil || len(members) > len(best.Members) || (len(members) == len(best.Members) && id < best.DomainBal) {
			best = &Descriptor{DomainBal: id, Members: members}
		}
	}
	return best
}

// crossDomainEdge is one output_mapping entry whose origin and target
// entries were assigned to different domains.
type crossDomainEdge struct {
	originName string
	channel    string
	targetName string
	origin     api.DomainID
	target     api.DomainID
}

// Splice rewrites every cross-domain edge of req into a chain of four
// intra-domain synthetic "portal" resources bridged through domainBal
// (§4.4 Portal splicing steps 1-3). assignment maps every entry name
// (including the synthetic resources Splice appends) to its domain; it is
// mutated in place so the caller can place the new resources. nextPairID
// is the next free monotonically increasing pair id; Splice returns the
// updated next free id. Returns an error if an edge targets an unassigned
// entry, which would indicate an incomplete placement upstream.
func Splice(req *api.WorkflowRequest, assignment map[string]api.DomainID, domainBal api.DomainID, nextPairID uint64) (uint64, error) {
	edges, err := crossDomainEdges(req, assignment)
	if err != nil {
		return nextPairID, err
	}

	for _, e := range edges {
		id := nextPairID
		nextPairID += 2

		sinkLocal := fmt.Sprintf("portal-%d-sink-local", id)
		sinkPortal := fmt.Sprintf("portal-%d-sink-portal", id)
		sourcePortal := fmt.Sprintf("portal-%d-source-portal", id+1)
		sourceLocal := fmt.Sprintf("portal-%d-source-local", id+1)

		req.Resources = append(req.Resources,
			api.WorkflowResource{
				Name:      sinkLocal,
				ClassType: "portal",
				Configuration: map[string]string{
					"role":   "sink",
					"domain": "local",
					"id":     strconv.FormatUint(id, 10),
				},
			},
			api.WorkflowResource{
				Name:      sinkPortal,
				ClassType: "portal",
				Configuration: map[string]string{
					"role":        "sink",
					"domain":      "portal",
					"domain_name": string(e.origin),
					"id":          strconv.FormatUint(id, 10),
				},
				OutputMapping: map[string]string{"out": sourcePortal},
			},
			api.WorkflowResource{
				Name:      sourcePortal,
				ClassType: "portal",
				Configuration: map[string]string{
					"role":        "source",
					"domain":      "portal",
					"domain_name": string(e.target),
					"id":          strconv.FormatUint(id+1, 10),
				},
			},
			api.WorkflowResource{
				Name:      sourceLocal,
				ClassType: "portal",
				Configuration: map[string]string{
					"role":   "source",
					"domain": "local",
					"id":     strconv.FormatUint(id+1, 10),
				},
				OutputMapping: map[string]string{"out": e.targetName},
			},
		)
		assignment[sinkLocal] = e.origin
		assignment[sinkPortal] = domainBal
		assignment[sourcePortal] = domainBal
		assignment[sourceLocal] = e.target

		rewriteOutput(req, e.originName, e.channel, sinkLocal)
	}
	return nextPairID, nil
}

// crossDomainEdges scans every function and resource output_mapping entry
// and returns those whose origin and target were assigned to different
// domains, in a stable order (by origin name, then channel name) so pair
// id allocation is deterministic.
func crossDomainEdges(req *api.WorkflowRequest, assignment map[string]api.DomainID) ([]crossDomainEdge, error) {
	var edges []crossDomainEdge
	collect := func(originName string, mapping map[string]string) error {
		channels := make([]string, 0, len(mapping))
		for ch := range mapping {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		origin, ok := assignment[originName]
		if !ok {
			return fmt.Errorf("entry %q has no domain assignment", originName)
		}
		for _, ch := range channels {
			targetName := mapping[ch]
			target, ok := assignment[targetName]
			if !ok {
				return fmt.Errorf("entry %q targets unassigned entry %q", originName, targetName)
			}
			if origin != target {
				edges = append(edges, crossDomainEdge{
					originName: originName,
					channel:    ch,
					targetName: targetName,
					origin:     origin,
					target:     target,
				})
			}
		}
		return nil
	}

	names := make([]string, 0, len(req.Functions)+len(req.Resources))
	mappings := make(map[string]map[string]string, len(req.Functions)+len(req.Resources))
	for _, f := range req.Functions {
		names = append(names, f.Name)
		mappings[f.Name] = f.OutputMapping
	}
	for _, r := range req.Resources {
		names = append(names, r.Name)
		mappings[r.Name] = r.OutputMapping
	}
	sort.Strings(names)
	for _, name := range names {
		if err := collect(name, mappings[name]); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// rewriteOutput repoints originName's channel output from its old target
// to newTarget, mutating req in place (§4.4 step 3: "rewrite the origin's
// channel to point at portal-ID-sink-local").
func rewriteOutput(req *api.WorkflowRequest, originName, channel, newTarget string) {
	for i := range req.Functions {
		if req.Functions[i].Name == originName {
			req.Functions[i].OutputMapping[channel] = newTarget
			return
		}
	}
	for i := range req.Resources {
		if req.Resources[i].Name == originName {
			req.Resources[i].OutputMapping[channel] = newTarget
			return
		}
	}
}
