package apfc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nerdstack/apfc/internal/logging"

	"github.com/google/uuid"
)

// PlannerConfig bounds the Planner's cycle-retry behavior (§4.5 step 4).
type PlannerConfig struct {
	MaxCycleRetries int // default 3
}

// Planner converts a clarified request into an atom list with dependency
// edges (§4.5).
type Planner struct {
	llm    LLMClient
	cfg    PlannerConfig
	layers map[string]LayerPolicy
}

// NewPlanner constructs a Planner against the given layer policy.
func NewPlanner(llm LLMClient, layers map[string]LayerPolicy, cfg PlannerConfig) *Planner {
	if cfg.MaxCycleRetries <= 0 {
		cfg.MaxCycleRetries = 3
	}
	return &Planner{llm: llm, cfg: cfg, layers: layers}
}

// plannerAtom is the LLM-facing schema for one planned atom, before
// identifiers and file paths are assigned.
type plannerAtom struct {
	Name             string   `json:"name"`
	Kind             AtomKind `json:"kind"`
	Layer            string   `json:"layer"`
	Dependencies     []string `json:"dependencies"` // by name, resolved to IDs after parsing
	RequiredPackages []string `json:"required_packages"`
}

// Plan runs the full planning algorithm of §4.5 and returns atoms ready for
// the Blackboard, with file paths assigned.
func (p *Planner) Plan(ctx context.Context, workspaceRoot, clarifiedRequest string) ([]*Atom, error) {
	if strings.TrimSpace(clarifiedRequest) == "" {
		return nil, newErr(ErrKindPlanning, "Planner.Plan", fmt.Errorf("empty request"))
	}

	var atoms []*Atom
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxCycleRetries; attempt++ {
		raw, err := p.queryLLM(ctx, clarifiedRequest, attempt)
		if err != nil {
			return nil, newErr(ErrKindPlanning, "Planner.Plan", err)
		}
		parsed, err := parsePlannerAtoms(raw)
		if err != nil {
			lastErr = err
			continue
		}
		resolved, err := p.resolveAtoms(workspaceRoot, parsed)
		if err != nil {
			lastErr = err
			continue
		}

		if err := checkAbstractionsFirst(resolved); err != nil {
			lastErr = err
			continue
		}
		resolved, err = layerRepair(resolved, p.layers)
		if err != nil {
			return nil, newErr(ErrKindLayerPolicy, "Planner.Plan", err)
		}

		order, err := topologicalSort(resolved)
		if err != nil {
			lastErr = err
			logging.APFCLog(logging.CategoryPlanner).Warnw("cycle detected, retrying plan", "attempt", attempt, "error", err)
			continue
		}
		atoms = order
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, newErr(ErrKindPlanning, "Planner.Plan", lastErr)
	}
	if atoms == nil {
		return nil, newErr(ErrKindPlanning, "Planner.Plan", fmt.Errorf("planner exhausted %d retries", p.cfg.MaxCycleRetries))
	}
	return assignFilePaths(workspaceRoot, atoms), nil
}

func (p *Planner) queryLLM(ctx context.Context, request string, attempt int) (string, error) {
	system := "Decompose the request into a JSON array of atoms. Each atom has: name, kind (abstraction|interface|data-shape|implementation|test), layer, dependencies (array of atom names), required_packages (array of strings). Respond with ONLY the JSON array."
	user := request
	if attempt > 0 {
		user = fmt.Sprintf("%s\n\nThe previous plan was rejected (cycle or invalid reference). Produce a strictly acyclic dependency graph.", request)
	}
	text, _, err := p.llm.Complete(ctx, system, user, "")
	if err != nil {
		return "", newErr(ErrKindExternalCall, "Planner.queryLLM", err)
	}
	return text, nil
}

// extractFence strips Markdown fenced-code markers if present, else returns
// the trimmed input (the same extraction rule the Worker uses on generated
// source, §4.6 step 3).
func extractFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			first := s[:idx]
			if !strings.Contains(first, "{") && !strings.Contains(first, "[") {
				s = s[idx+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func parsePlannerAtoms(raw string) ([]plannerAtom, error) {
	clean := extractFence(raw)
	var atoms []plannerAtom
	if err := json.Unmarshal([]byte(clean), &atoms); err != nil {
		return nil, fmt.Errorf("unparseable plan: %w", err)
	}
	if len(atoms) == 0 {
		return nil, fmt.Errorf("planner returned zero atoms")
	}
	return atoms, nil
}

// resolveAtoms assigns stable IDs, rejects duplicate names within a layer,
// self-dependencies, and unknown dependency references (§4.5 "Tie-breaking
// and edge cases").
func (p *Planner) resolveAtoms(workspaceRoot string, parsed []plannerAtom) ([]*Atom, error) {
	byLayerName := make(map[string]bool)
	nameToID := make(map[string]string)
	atoms := make([]*Atom, 0, len(parsed))

	for _, pa := range parsed {
		key := pa.Layer + "/" + pa.Name
		if byLayerName[key] {
			return nil, fmt.Errorf("duplicate atom name %q in layer %q", pa.Name, pa.Layer)
		}
		byLayerName[key] = true
		id := uuid.NewString()
		nameToID[pa.Name] = id
		atoms = append(atoms, &Atom{
			ID:               id,
			Name:             pa.Name,
			Kind:             pa.Kind,
			Layer:            pa.Layer,
			RequiredPackages: pa.RequiredPackages,
			Status:           StatusPending,
		})
	}

	for i, pa := range parsed {
		for _, depName := range pa.Dependencies {
			if depName == pa.Name {
				return nil, fmt.Errorf("atom %q depends on itself", pa.Name)
			}
			depID, ok := nameToID[depName]
			if !ok {
				return nil, fmt.Errorf("atom %q references unknown dependency %q", pa.Name, depName)
			}
			atoms[i].Dependencies = append(atoms[i].Dependencies, depID)
		}
	}
	return atoms, nil
}

// checkAbstractionsFirst enforces that every implementation atom depends on
// at least one abstraction/interface atom whenever the plan contains any
// abstraction/interface atom at all (§4.5 step 2). A plan with no
// abstractions anywhere (e.g. a single data-shape-only request) has nothing
// to enforce.
func checkAbstractionsFirst(atoms []*Atom) error {
	byID := make(map[string]*Atom, len(atoms))
	anyAbstraction := false
	for _, a := range atoms {
		byID[a.ID] = a
		if a.Kind == KindAbstraction || a.Kind == KindInterface {
			anyAbstraction = true
		}
	}
	if !anyAbstraction {
		return nil
	}
	for _, a := range atoms {
		if a.Kind != KindImplementation {
			continue
		}
		hasAbstractionDep := false
		for _, depID := range a.Dependencies {
			dep, ok := byID[depID]
			if ok && (dep.Kind == KindAbstraction || dep.Kind == KindInterface) {
				hasAbstractionDep = true
				break
			}
		}
		if !hasAbstractionDep {
			return fmt.Errorf("implementation atom %q has no abstraction/interface dependency", a.Name)
		}
	}
	return nil
}

// layerRepair reassigns an atom tagged Core (or any layer whose policy
// forbids dependencies) that nonetheless has dependencies, to the next-inner
// layer permitted by policy that admits its dependencies (§4.5 step 3).
func layerRepair(atoms []*Atom, layers map[string]LayerPolicy) ([]*Atom, error) {
	byID := make(map[string]*Atom, len(atoms))
	for _, a := range atoms {
		byID[a.ID] = a
	}

	orderedLayers := orderedLayerNames(layers)

	for _, a := range atoms {
		policy, ok := layers[a.Layer]
		if !ok {
			return nil, fmt.Errorf("atom %q tagged unknown layer %q", a.Name, a.Layer)
		}
		if len(policy.AllowedDependencies) > 0 || len(a.Dependencies) == 0 {
			continue
		}
		// This atom has dependencies but its layer allows none: find the
		// next-inner layer (by declared order) that permits every
		// dependency's layer. A dependency in the candidate layer itself is
		// permitted, as in Blackboard.ValidateLayerDependencies.
		reassigned := false
		for _, candidate := range orderedLayers {
			if candidate == a.Layer {
				continue
			}
			cp, ok := layers[candidate]
			if !ok {
				continue
			}
			cp.AllowedDependencies = append(append([]string(nil), cp.AllowedDependencies...), candidate)
			if admitsAll(cp, a.Dependencies, byID) {
				logging.APFCLog(logging.CategoryPlanner).Infow("layer repair", "atom", a.Name, "from", a.Layer, "to", candidate)
				a.Layer = candidate
				reassigned = true
				break
			}
		}
		if !reassigned {
			return nil, fmt.Errorf("no layer admits dependencies of atom %q (layer %q)", a.Name, a.Layer)
		}
	}
	return atoms, nil
}

func admitsAll(policy LayerPolicy, deps []string, byID map[string]*Atom) bool {
	allowed := make(map[string]bool, len(policy.AllowedDependencies))
	for _, l := range policy.AllowedDependencies {
		allowed[l] = true
	}
	for _, depID := range deps {
		dep, ok := byID[depID]
		if !ok {
			return false
		}
		if !allowed[dep.Layer] {
			return false
		}
	}
	return true
}

// orderedLayerNames returns layer names sorted by ascending dependency-set
// size (fewer allowed dependencies = more "core"), a deterministic proxy for
// layer ordering used by layerRepair to pick the "next-inner" layer.
func orderedLayerNames(layers map[string]LayerPolicy) []string {
	names := make([]string, 0, len(layers))
	for n := range layers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := len(layers[names[i]].AllowedDependencies), len(layers[names[j]].AllowedDependencies)
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	return names
}

// topologicalSort runs Kahn's algorithm with deterministic tie-break by
// atom identifier (§4.5 step 4).
func topologicalSort(atoms []*Atom) ([]*Atom, error) {
	byID := make(map[string]*Atom, len(atoms))
	indegree := make(map[string]int, len(atoms))
	for _, a := range atoms {
		byID[a.ID] = a
		indegree[a.ID] = 0
	}
	// adjacency: dep -> dependents
	adj := make(map[string][]string)
	for _, a := range atoms {
		for _, depID := range a.Dependencies {
			adj[depID] = append(adj[depID], a.ID)
			indegree[a.ID]++
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []*Atom
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(atoms) {
		return nil, fmt.Errorf("dependency cycle detected among %d unresolved atoms", len(atoms)-len(order))
	}
	return order, nil
}

// assignFilePaths computes each atom's target file path from (root, layer,
// kind, name) — deterministic per §3.
func assignFilePaths(root string, atoms []*Atom) []*Atom {
	for _, a := range atoms {
		a.FilePath = AtomFilePath(a.Layer, a.Kind, a.Name)
	}
	return atoms
}

// AtomFilePath computes the deterministic workspace-relative path for an
// atom: src/<layer>/<kind>s/<Name>.<ext> (§6 "Workspace layout").
func AtomFilePath(layer string, kind AtomKind, name string) string {
	return fmt.Sprintf("src/%s/%ss/%s.go", layer, kind, name)
}
