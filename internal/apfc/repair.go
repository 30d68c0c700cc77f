package apfc

import (
	"context"
	"sort"
	"time"

	"github.com/nerdstack/apfc/internal/logging"
)

// RepairConfig bounds the Repair Controller's progressive build loop
// (§4.8).
type RepairConfig struct {
	MaxRounds int // default 3
}

// RepairOutcome is the final state of a progressive repair run.
type RepairOutcome struct {
	Success          bool
	RoundsRun        int
	ResidualErrors   []Diagnostic
	FailedAtoms      []string
}

// RepairController runs the bounded iterative whole-project build loop:
// build, bucket diagnostics by atom, prioritize, regenerate, rebuild
// (§4.8). Modeled on the teacher's internal/core/tdd_loop.go state machine,
// generalized from a single-project TDD loop to whole-project, multi-atom
// diagnostic bucketing.
type RepairController struct {
	bb        *Blackboard
	workspace *Workspace
	worker    *Worker
	resolver  *ConflictResolver
	cfg       RepairConfig
	solution  string
}

// NewRepairController wires a RepairController to its collaborators.
func NewRepairController(bb *Blackboard, ws *Workspace, worker *Worker, resolver *ConflictResolver, solution string, cfg RepairConfig) *RepairController {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	return &RepairController{bb: bb, workspace: ws, worker: worker, resolver: resolver, solution: solution, cfg: cfg}
}

// Run executes the progressive repair loop until the build succeeds or the
// round budget is exhausted (§4.8).
func (rc *RepairController) Run(ctx context.Context) (RepairOutcome, error) {
	log := logging.APFCLog(logging.CategoryRepair)

	for round := 1; round <= rc.cfg.MaxRounds; round++ {
		result, err := rc.workspace.BuildProject(ctx, rc.solution+".sln")
		if err != nil {
			return RepairOutcome{}, err
		}

		if result.Success() {
			log.Infow("whole-project build succeeded", "round", round)
			return RepairOutcome{Success: true, RoundsRun: round}, nil
		}

		buckets := rc.bucketDiagnostics(result.Diagnostics)

		if round == 1 {
			buckets = dropExpectedFirstRoundDiagnostics(buckets)
		}

		if len(buckets) == 0 {
			// Errors exist but none attribute to any atom and none were
			// expected-first-round noise: nothing left to regenerate.
			return RepairOutcome{Success: false, RoundsRun: round, ResidualErrors: result.Diagnostics}, nil
		}

		hints := rc.conflictHints()

		prioritized := rc.prioritize(buckets)
		for _, atomID := range prioritized {
			atom, ok := rc.bb.GetAtom(atomID)
			if !ok {
				continue
			}
			if atom.Status == StatusCompleted {
				if err := rc.bb.SetStatus(ctx, atomID, StatusPending); err != nil {
					return RepairOutcome{}, err
				}
			}
			atom, _ = rc.bb.GetAtom(atomID)
			atom.LastDiagnostics = buckets[atomID]
			if err := rc.bb.UpsertAtom(ctx, atom); err != nil {
				return RepairOutcome{}, err
			}

			if err := rc.recordHistory(round, atomID, buckets[atomID]); err != nil {
				log.Warnw("failed to record repair history", "error", err)
			}

			if err := rc.worker.RunAtom(ctx, atomID, hints[atomID]); err != nil {
				return RepairOutcome{}, err
			}
		}

		if round == rc.cfg.MaxRounds {
			final, err := rc.workspace.BuildProject(ctx, rc.solution+".sln")
			if err != nil {
				return RepairOutcome{}, err
			}
			return RepairOutcome{
				Success:        final.Success(),
				RoundsRun:      round,
				ResidualErrors: final.Diagnostics,
				FailedAtoms:    rc.bb.failedAtomIDs(),
			}, nil
		}
	}
	return RepairOutcome{Success: false, RoundsRun: rc.cfg.MaxRounds, FailedAtoms: rc.bb.failedAtomIDs()}, nil
}

// bucketDiagnostics maps each diagnostic to the atom whose file path it
// names; diagnostics whose file is not owned by any atom are attributed to
// the atom whose generated source references the offending symbol, or — if
// ambiguous — the most recently modified candidate atom (§4.8 step 3).
func (rc *RepairController) bucketDiagnostics(diags []Diagnostic) map[string][]Diagnostic {
	byPath := make(map[string]string) // file path -> atom ID
	atoms := rc.bb.ListAllAtoms()
	for _, a := range atoms {
		byPath[a.FilePath] = a.ID
	}

	buckets := make(map[string][]Diagnostic)
	for _, d := range diags {
		atomID, ok := resolveOwningAtom(d, byPath, atoms)
		if !ok {
			continue
		}
		buckets[atomID] = append(buckets[atomID], d)
	}
	return buckets
}

func resolveOwningAtom(d Diagnostic, byPath map[string]string, atoms []*Atom) (string, bool) {
	if id, ok := byPath[d.File]; ok {
		return id, true
	}
	// Path not directly owned: attribute via symbol reference, falling
	// back to the most recently modified candidate on ambiguity.
	var candidates []*Atom
	for _, a := range atoms {
		for _, ref := range referencedSymbols(a) {
			if symbolAppearsIn(d.Message, ref) {
				candidates = append(candidates, a)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CompletedAt.After(candidates[j].CompletedAt) })
	return candidates[0].ID, true
}

func referencedSymbols(a *Atom) []string {
	var out []string
	for _, sig := range a.ExtractedContract {
		out = append(out, sig.References...)
	}
	return out
}

func symbolAppearsIn(message, symbol string) bool {
	if symbol == "" {
		return false
	}
	return containsWord(message, symbol)
}

func containsWord(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// dropExpectedFirstRoundDiagnostics removes "symbol not found" diagnostics
// in round 1: expected cross-atom references that haven't compiled yet
// (§4.8 step 6, "Diagnostics with codes indicating symbol not found").
func dropExpectedFirstRoundDiagnostics(buckets map[string][]Diagnostic) map[string][]Diagnostic {
	out := make(map[string][]Diagnostic)
	for atomID, diags := range buckets {
		var kept []Diagnostic
		for _, d := range diags {
			if isSymbolNotFound(d) {
				continue
			}
			kept = append(kept, d)
		}
		if len(kept) > 0 {
			out[atomID] = kept
		}
	}
	return out
}

func isSymbolNotFound(d Diagnostic) bool {
	return d.Code == "UNDEFINED" || d.Code == "SYMBOL_NOT_FOUND"
}

// prioritize orders errored atoms in dependency order (dependencies first),
// then by error count descending, then by identifier (§4.8 step 4).
func (rc *RepairController) prioritize(buckets map[string][]Diagnostic) []string {
	atoms := rc.bb.ListAllAtoms()
	depth := computeDependencyDepth(atoms)

	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := depth[ids[i]], depth[ids[j]]
		if di != dj {
			return di < dj
		}
		ci, cj := len(buckets[ids[i]]), len(buckets[ids[j]])
		if ci != cj {
			return ci > cj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func computeDependencyDepth(atoms []*Atom) map[string]int {
	byID := make(map[string]*Atom, len(atoms))
	for _, a := range atoms {
		byID[a.ID] = a
	}
	depth := make(map[string]int, len(atoms))
	var resolve func(id string) int
	visiting := make(map[string]bool)
	resolve = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		if visiting[id] {
			return 0 // cycle guard; Planner guarantees acyclicity upstream
		}
		visiting[id] = true
		a, ok := byID[id]
		if !ok || len(a.Dependencies) == 0 {
			depth[id] = 0
			return 0
		}
		max := 0
		for _, dep := range a.Dependencies {
			if d := resolve(dep); d+1 > max {
				max = d + 1
			}
		}
		depth[id] = max
		return max
	}
	for _, a := range atoms {
		resolve(a.ID)
	}
	return depth
}

// conflictHints runs the Conflict Resolver and returns, per atom, the
// regeneration hints the Worker attaches during repair (§4.8 step 5).
func (rc *RepairController) conflictHints() map[string][]string {
	if rc.resolver == nil {
		return nil
	}
	hints := make(map[string][]string)
	for _, c := range rc.resolver.DetectDuplicateTypes() {
		for _, atomID := range c.LosingAtoms {
			hints[atomID] = append(hints[atomID], c.RegenerationHint())
		}
	}
	for _, c := range rc.resolver.DetectAmbiguousNames() {
		for _, a := range rc.bb.ListAllAtoms() {
			if referencesSimpleName(a, c.SimpleName) {
				hints[a.ID] = append(hints[a.ID], c.RegenerationHint())
			}
		}
	}
	return hints
}

func referencesSimpleName(a *Atom, name string) bool {
	for _, sig := range a.ExtractedContract {
		for _, ref := range sig.References {
			if ref == name {
				return true
			}
		}
	}
	return false
}

func (rc *RepairController) recordHistory(round int, atomID string, diags []Diagnostic) error {
	hist := rc.bb.History()
	if hist == nil {
		return nil
	}
	now := time.Now()
	for _, d := range diags {
		if err := hist.RecordRepairRound(round, atomID, d, now); err != nil {
			return err
		}
	}
	return nil
}

// failedAtomIDs lists every atom currently in the `failed` state.
func (b *Blackboard) failedAtomIDs() []string {
	var out []string
	for _, a := range b.ListAtomsByStatus(StatusFailed) {
		out = append(out, a.ID)
	}
	return out
}
