package apfc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nerdstack/apfc/internal/logging"
)

// ContextAssembler builds the tiered prompt context (Global/Local/Target)
// from the Blackboard, fronted by a HotCache for dependency signature
// lookups (§4.4). Modeled on the teacher's internal/context budget-tiered
// assembly, simplified to APFC's three fixed tiers instead of
// activation-scored facts: full bodies of other atoms must never appear in
// any tier (§4.4, §8 "Context minimality").
type ContextAssembler struct {
	bb    *Blackboard
	cache *HotCache
}

// NewContextAssembler wires a ContextAssembler to a Blackboard and cache.
func NewContextAssembler(bb *Blackboard, cache *HotCache) *ContextAssembler {
	if cache == nil {
		cache = NewHotCache(0)
	}
	return &ContextAssembler{bb: bb, cache: cache}
}

// PromptContext is the assembled three-tier context handed to the Worker.
type PromptContext struct {
	Global string
	Local  string
	Target string
}

// String concatenates the tiers in order, as the spec's "prompt context"
// contract requires.
func (p PromptContext) String() string {
	return p.Global + "\n\n" + p.Local + "\n\n" + p.Target
}

// Assemble builds the full tiered context for atom.
func (c *ContextAssembler) Assemble(atom *Atom) (PromptContext, error) {
	global := c.buildGlobalTier()
	local, err := c.buildLocalTier(atom)
	if err != nil {
		return PromptContext{}, err
	}
	target := c.buildTargetTier(atom)
	return PromptContext{Global: global, Local: local, Target: target}, nil
}

// buildGlobalTier renders project metadata, layer policy, completed files,
// and a rules block derived from the layer policy ("The Map").
func (c *ContextAssembler) buildGlobalTier() string {
	m := c.bb.Manifest()
	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s (%s)\n", m.Metadata.Name, m.Metadata.TargetFramework)
	fmt.Fprintf(&b, "Root namespace: %s\n\n", m.Metadata.RootNamespace)

	b.WriteString("## Layer policy\n")
	names := make([]string, 0, len(m.Layers))
	for n := range m.Layers {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		policy := m.Layers[name]
		if len(policy.AllowedDependencies) == 0 {
			fmt.Fprintf(&b, "- %s has zero external dependencies. %s\n", name, policy.Description)
		} else {
			fmt.Fprintf(&b, "- %s depends only on %s. %s\n", name, strings.Join(policy.AllowedDependencies, ", "), policy.Description)
		}
	}

	b.WriteString("\n## Completed files\n")
	files := append([]string(nil), m.CompletedFiles...)
	sort.Strings(files)
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

// buildLocalTier renders, for each direct dependency, its signature only
// (never its body), fetched through the hot cache.
func (c *ContextAssembler) buildLocalTier(atom *Atom) (string, error) {
	var b strings.Builder
	b.WriteString("## Dependency contracts (signatures only)\n")
	deps := append([]string(nil), atom.Dependencies...)
	sort.Strings(deps)
	for _, depID := range deps {
		dep, ok := c.bb.GetAtom(depID)
		if !ok {
			continue
		}
		sigs, err := c.cache.GetOrLoad(depID, func() ([]TypeSignature, error) {
			return c.bb.SSTLookup(dep.Name), nil
		})
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n### %s (%s)\n", dep.Name, dep.Kind)
		for _, sig := range sigs {
			if sig.OwningAtom != depID {
				continue
			}
			for _, member := range sig.Members {
				fmt.Fprintf(&b, "  %s\n", member)
			}
		}
	}
	logging.APFCLog(logging.CategoryAssembler).Debugw("assembled local tier", "atom", atom.ID, "deps", len(deps))
	return b.String(), nil
}

// buildTargetTier renders the atom identifier, kind, name, layer, path, the
// kind-specific instruction set, and the required namespace.
func (c *ContextAssembler) buildTargetTier(atom *Atom) string {
	m := c.bb.Manifest()
	ns := m.Metadata.RootNamespace + "." + atom.Layer

	var instructions string
	switch atom.Kind {
	case KindDataShape:
		instructions = "Generate a pure-data type: fields only, no behavior."
	case KindInterface, KindAbstraction:
		instructions = "Generate a contract only: member signatures, no bodies."
	case KindImplementation:
		instructions = "Generate a concrete implementation. Take all dependencies by constructor injection."
	case KindTest:
		instructions = "Generate tests covering all public members of the target."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Task\n")
	fmt.Fprintf(&b, "Atom: %s\nKind: %s\nName: %s\nLayer: %s\nFile: %s\nNamespace: %s\n\n%s\n",
		atom.ID, atom.Kind, atom.Name, atom.Layer, atom.FilePath, ns, instructions)
	return b.String()
}
