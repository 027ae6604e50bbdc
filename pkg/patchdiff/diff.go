// Package patchdiff diffs the orchestrator's dependency graph across a
// refresh or patch cycle, so only LIDs whose effective output_mapping
// actually changed are re-patched (§4.3 refresh loop, §9 dependency
// graph). Uses the same json-patch library a base+patch-chain materializer
// would apply patches with, but here only to detect the diff between two
// dependency-graph snapshots rather than to apply one.
package patchdiff

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// ChangedLIDs compares two dependency-graph snapshots and returns the LIDs
// whose output_mapping differs between them, including LIDs present in
// only one side.
func ChangedLIDs(before, after api.DependencyGraph) ([]api.ComponentID, error) {
	seen := make(map[api.ComponentID]bool)
	for lid := range before {
		seen[lid] = true
	}
	for lid := range after {
		seen[lid] = true
	}

	var changed []api.ComponentID
	for lid := range seen {
		b, bok := before[lid]
		a, aok := after[lid]
		if bok != aok {
			changed = append(changed, lid)
			continue
		}
		diff, err := mappingDiff(b, a)
		if err != nil {
			return nil, fmt.Errorf("diff mapping for %s: %w", lid, err)
		}
		if len(diff) > len("{}") || string(diff) != "{}" {
			changed = append(changed, lid)
		}
	}
	return changed, nil
}

// mappingDiff returns the RFC 7396 JSON merge patch that transforms
// before into after.
func mappingDiff(before, after map[string]api.Link) ([]byte, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
}

// ApplyRFC6902 applies an explicit RFC 6902 JSON Patch document to a JSON
// document (for example a workflow request's encoding) and returns the
// patched document. Deploy intents carry no patch document, so the
// orchestrator does not call it.
func ApplyRFC6902(base []byte, patch []byte) ([]byte, error) {
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("decode json patch: %w", err)
	}
	result, err := decoded.Apply(base)
	if err != nil {
		return nil, fmt.Errorf("apply json patch: %w", err)
	}
	return result, nil
}
