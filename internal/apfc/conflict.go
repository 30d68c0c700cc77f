package apfc

import (
	"fmt"
	"sort"

	"github.com/nerdstack/apfc/internal/logging"
)

// ConflictPolicy names the resolution strategy chosen for a conflict (§4.7).
type ConflictPolicy string

const (
	PolicyKeepFirst       ConflictPolicy = "keep-first"
	PolicyMergeAsPartial   ConflictPolicy = "merge-as-partial"
	PolicyRemoveDuplicate  ConflictPolicy = "remove-duplicate"
	PolicyFailFast         ConflictPolicy = "fail-fast"
	PolicyUseFullyQualified ConflictPolicy = "use-fully-qualified-name"
)

// Conflict describes one detected duplicate-type or ambiguous-name issue
// and the policy chosen to resolve it.
type Conflict struct {
	Kind       string // "duplicate-type" | "ambiguous-name"
	SimpleName string
	Policy     ConflictPolicy
	// WinningAtom is the atom whose definition is kept (duplicate-type) or
	// unused (ambiguous-name, where every reference must qualify instead).
	WinningAtom string
	// LosingAtoms are the atoms whose generation needs a targeted repair.
	LosingAtoms []string
	Reason      string
}

// RegenerationHint renders the instruction the Worker's repair path (§4.6
// step 2) attaches to a targeted atom.
func (c Conflict) RegenerationHint() string {
	switch c.Policy {
	case PolicyKeepFirst:
		return fmt.Sprintf("Type %q is already defined by atom %s. Reuse it; do not redefine it.", c.SimpleName, c.WinningAtom)
	case PolicyMergeAsPartial:
		return fmt.Sprintf("Type %q is defined in multiple atoms with disjoint members. Declare it as a partial/extension of the definition in atom %s.", c.SimpleName, c.WinningAtom)
	case PolicyRemoveDuplicate:
		return fmt.Sprintf("Type %q conflicts with an incompatible definition in atom %s. Remove this atom's definition and depend on the existing one instead.", c.SimpleName, c.WinningAtom)
	case PolicyUseFullyQualified:
		return fmt.Sprintf("The simple name %q is ambiguous across multiple fully-qualified types. Qualify every reference to it with its full namespace.", c.SimpleName)
	default:
		return fmt.Sprintf("Unresolvable conflict on %q; manual intervention required.", c.SimpleName)
	}
}

// ConflictResolver detects duplicate/ambiguous types across atoms and
// proposes resolutions (§4.7).
type ConflictResolver struct {
	bb *Blackboard
}

// NewConflictResolver wires a resolver to a Blackboard.
func NewConflictResolver(bb *Blackboard) *ConflictResolver {
	return &ConflictResolver{bb: bb}
}

// DetectDuplicateTypes finds simple names with more than one distinct
// fully-qualified definition owned by different atoms and classifies each
// by the policy table of §4.7.
func (r *ConflictResolver) DetectDuplicateTypes() []Conflict {
	log := logging.APFCLog(logging.CategoryConflict)
	var conflicts []Conflict

	bySimpleName := make(map[string][]TypeSignature)
	for _, atom := range r.bb.ListAllAtoms() {
		for _, sig := range atom.ExtractedContract {
			bySimpleName[sig.SimpleName] = append(bySimpleName[sig.SimpleName], sig)
		}
	}

	for name, sigs := range bySimpleName {
		byFQN := make(map[string][]TypeSignature)
		for _, s := range sigs {
			byFQN[s.FullyQualifiedName] = append(byFQN[s.FullyQualifiedName], s)
		}
		for fqn, defs := range byFQN {
			if len(defs) < 2 {
				continue
			}
			conflicts = append(conflicts, r.classifyDuplicate(name, fqn, defs))
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].SimpleName < conflicts[j].SimpleName })
	log.Infow("duplicate type scan complete", "conflicts", len(conflicts))
	return conflicts
}

func (r *ConflictResolver) classifyDuplicate(simpleName, fqn string, defs []TypeSignature) Conflict {
	winner := earliestAtom(r.bb, defs)
	var losers []string
	for _, d := range defs {
		if d.OwningAtom != winner {
			losers = append(losers, d.OwningAtom)
		}
	}
	sort.Strings(losers)

	kind := defs[0].Kind
	switch kind {
	case KindInterface:
		return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyKeepFirst, WinningAtom: winner, LosingAtoms: losers,
			Reason: "interface/enum kinds always keep-first"}
	case KindDataShape:
		if membersDisjoint(defs) {
			return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyMergeAsPartial, WinningAtom: winner, LosingAtoms: losers,
				Reason: "disjoint data-shape members can merge as partial"}
		}
		return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyRemoveDuplicate, WinningAtom: winner, LosingAtoms: losers,
			Reason: "overlapping data-shape members"}
	case KindImplementation:
		if membersDisjoint(defs) {
			return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyMergeAsPartial, WinningAtom: winner, LosingAtoms: losers,
				Reason: "disjoint class members can merge as partial"}
		}
		if overlappingCompatible(defs) {
			return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyMergeAsPartial, WinningAtom: winner, LosingAtoms: losers,
				Reason: "overlapping but compatible class members"}
		}
		return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyRemoveDuplicate, WinningAtom: winner, LosingAtoms: losers,
			Reason: "overlapping class members with incompatible signatures"}
	default:
		return Conflict{Kind: "duplicate-type", SimpleName: simpleName, Policy: PolicyFailFast, WinningAtom: winner, LosingAtoms: losers,
			Reason: "no resolution policy for kind " + string(kind)}
	}
}

// DetectAmbiguousNames finds simple names that resolve to more than one
// distinct fully-qualified name across all atoms (§4.7 "Ambiguous simple
// name").
func (r *ConflictResolver) DetectAmbiguousNames() []Conflict {
	bySimpleName := make(map[string]map[string]bool)
	for _, atom := range r.bb.ListAllAtoms() {
		for _, sig := range atom.ExtractedContract {
			if bySimpleName[sig.SimpleName] == nil {
				bySimpleName[sig.SimpleName] = make(map[string]bool)
			}
			bySimpleName[sig.SimpleName][sig.FullyQualifiedName] = true
		}
	}

	var conflicts []Conflict
	for name, fqns := range bySimpleName {
		if len(fqns) < 2 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Kind:       "ambiguous-name",
			SimpleName: name,
			Policy:     PolicyUseFullyQualified,
			Reason:     fmt.Sprintf("%d distinct fully-qualified types share the simple name %q", len(fqns), name),
		})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].SimpleName < conflicts[j].SimpleName })
	return conflicts
}

// earliestAtom picks the owning atom whose successful-completion timestamp
// is earliest, tie-broken lexicographically by atom ID (§4.7).
func earliestAtom(bb *Blackboard, defs []TypeSignature) string {
	if hist := bb.History(); hist != nil {
		if winner, ok := hist.EarliestCompletion(defs[0].FullyQualifiedName); ok {
			return winner
		}
	}
	// Fallback: use the Blackboard's own CompletedAt timestamps.
	var winner *Atom
	for _, d := range defs {
		a, ok := bb.GetAtom(d.OwningAtom)
		if !ok {
			continue
		}
		if winner == nil || a.CompletedAt.Before(winner.CompletedAt) ||
			(a.CompletedAt.Equal(winner.CompletedAt) && a.ID < winner.ID) {
			winner = a
		}
	}
	if winner == nil {
		return defs[0].OwningAtom
	}
	return winner.ID
}

// memberKey returns the member's identifying prefix (name up to its first
// '(' or whitespace), used to detect whether two atoms declared "the same"
// member rather than comparing full signature text.
func memberKey(member string) string {
	for i, r := range member {
		if r == '(' || r == ' ' || r == '\t' {
			return member[:i]
		}
	}
	return member
}

// membersDisjoint reports whether no member name is shared across defs.
func membersDisjoint(defs []TypeSignature) bool {
	seen := make(map[string]bool)
	for _, d := range defs {
		for _, m := range d.Members {
			if seen[memberKey(m)] {
				return false
			}
		}
		for _, m := range d.Members {
			seen[memberKey(m)] = true
		}
	}
	return true
}

// overlappingCompatible reports whether every member shared by name across
// defs has identical full signature text wherever it overlaps.
func overlappingCompatible(defs []TypeSignature) bool {
	first := make(map[string]string) // member name -> full signature text
	for _, m := range defs[0].Members {
		first[memberKey(m)] = m
	}
	for _, d := range defs[1:] {
		for _, m := range d.Members {
			key := memberKey(m)
			if existing, ok := first[key]; ok && existing != m {
				return false
			}
			first[key] = m
		}
	}
	return true
}
