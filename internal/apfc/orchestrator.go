package apfc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nerdstack/apfc/internal/logging"

	"golang.org/x/sync/errgroup"
)

// OrchestratorConfig bounds the run-level behavior of §4.9: concurrency,
// scaffold behavior, and the round/attempt budgets handed down to the
// Repair Controller and Worker.
type OrchestratorConfig struct {
	MaxConcurrentAtoms int // default 4, bounds errgroup.SetLimit during scheduling
	Scaffold           bool
	Repair             RepairConfig
	Worker             WorkerConfig
	Planner            PlannerConfig
}

// RunResult is the structured outcome of one end-to-end orchestrated run
// (§4.9 step 7, "final report").
type RunResult struct {
	Success        bool
	WorkspaceRoot  string
	AtomCount      int
	CompletedCount int
	FailedAtoms    []string
	ResidualErrors []Diagnostic
	RepairRounds   int
}

// Orchestrator drives the full pipeline end to end: plan, schedule and
// execute atoms, repair, and report. Modeled on the teacher's
// internal/session.TaskExecutor's phase-driven run loop, generalized from a
// single task to a DAG of atoms scheduled by dependency readiness.
type Orchestrator struct {
	bb        *Blackboard
	workspace *Workspace
	planner   *Planner
	extractor *SymbolExtractor
	llm       LLMClient
	resolver  *ConflictResolver
	cache     *HotCache
	cfg       OrchestratorConfig
	solution  string
}

// NewOrchestrator wires every component of APFC together for one run.
func NewOrchestrator(bb *Blackboard, ws *Workspace, planner *Planner, extractor *SymbolExtractor, llm LLMClient, solution string, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxConcurrentAtoms <= 0 {
		cfg.MaxConcurrentAtoms = 4
	}
	return &Orchestrator{
		bb:        bb,
		workspace: ws,
		planner:   planner,
		extractor: extractor,
		llm:       llm,
		resolver:  NewConflictResolver(bb),
		cache:     NewHotCache(0),
		cfg:       cfg,
		solution:  solution,
	}
}

// ClarificationFn resolves a raw user request into a clarified request
// ready for planning. It is an external collaborator (§1, "out of scope");
// a trivial identity implementation is acceptable when no clarification
// step is configured.
type ClarificationFn func(ctx context.Context, rawRequest string) (string, error)

// Run executes the full §4.9 pipeline: clarify, plan, validate layers,
// optionally scaffold, schedule and execute atoms to a fixed point, repair,
// and report.
func (o *Orchestrator) Run(ctx context.Context, rawRequest string, clarify ClarificationFn) (RunResult, error) {
	log := logging.APFCLog(logging.CategoryOrchestrator)

	if clarify == nil {
		clarify = func(_ context.Context, r string) (string, error) { return r, nil }
	}
	clarified, err := clarify(ctx, rawRequest)
	if err != nil {
		return RunResult{}, newErr(ErrKindPlanning, "Orchestrator.Run", err)
	}

	atoms, err := o.planner.Plan(ctx, o.workspace.Root(), clarified)
	if err != nil {
		return RunResult{}, err
	}
	for _, a := range atoms {
		if err := o.bb.UpsertAtom(ctx, a); err != nil {
			return RunResult{}, err
		}
	}
	log.Infow("plan persisted", "atoms", len(atoms))

	for _, a := range atoms {
		if !o.bb.ValidateLayerDependencies(a) {
			return RunResult{}, newErr(ErrKindLayerPolicy, "Orchestrator.Run",
				fmt.Errorf("atom %q violates layer policy after planning", a.Name))
		}
	}

	if o.cfg.Scaffold {
		if err := o.scaffold(ctx, atoms); err != nil {
			return RunResult{}, err
		}
	}

	watcher, err := NewFileWatcher(o.workspace)
	if err != nil {
		log.Warnw("file watcher unavailable, continuing without external-edit detection", "error", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			log.Warnw("file watcher failed to start", "error", err)
		} else {
			go o.reportExternalEdits(watcher)
			defer watcher.Stop()
		}
	}

	assembler := NewContextAssembler(o.bb, o.cache)
	worker := NewWorker(o.bb, assembler, o.workspace, o.extractor, o.llm, o.cfg.Worker)

	if err := o.schedule(ctx, worker); err != nil {
		return RunResult{}, err
	}

	rc := NewRepairController(o.bb, o.workspace, worker, o.resolver, o.solution, o.cfg.Repair)
	outcome, err := rc.Run(ctx)
	if err != nil {
		return RunResult{}, err
	}

	all := o.bb.ListAllAtoms()
	completed := 0
	for _, a := range all {
		if a.Status == StatusCompleted {
			completed++
		}
	}

	result := RunResult{
		Success:        outcome.Success,
		WorkspaceRoot:  o.workspace.Root(),
		AtomCount:      len(all),
		CompletedCount: completed,
		FailedAtoms:    outcome.FailedAtoms,
		ResidualErrors: outcome.ResidualErrors,
		RepairRounds:   outcome.RoundsRun,
	}
	log.Infow("run complete", "success", result.Success, "atoms", result.AtomCount, "completed", result.CompletedCount, "repair_rounds", result.RepairRounds)
	return result, nil
}

// scaffold creates the solution file and one library project per layer
// named in the plan, attaching each to the solution (§4.9 step 3, optional).
func (o *Orchestrator) scaffold(ctx context.Context, atoms []*Atom) error {
	if err := o.workspace.ScaffoldSolution(ctx, o.solution); err != nil {
		return err
	}
	layers := make(map[string]bool)
	for _, a := range atoms {
		layers[a.Layer] = true
	}
	names := make([]string, 0, len(layers))
	for l := range layers {
		names = append(names, l)
	}
	sort.Strings(names)
	for _, layer := range names {
		relPath := "src/" + layer
		if err := o.workspace.ScaffoldLibrary(ctx, layer, relPath); err != nil {
			return err
		}
		if err := o.workspace.AttachLibrary(ctx, o.solution, relPath+"/"+layer+".proj"); err != nil {
			return err
		}
	}
	return nil
}

// schedule repeatedly selects atoms whose dependencies are satisfied and
// runs them, up to cfg.MaxConcurrentAtoms at a time, until every atom is
// completed or failed, or a deadlock is detected (no ready atom and pending
// work remains) (§4.9 step 4-5).
func (o *Orchestrator) schedule(ctx context.Context, worker *Worker) error {
	log := logging.APFCLog(logging.CategoryOrchestrator)

	for {
		pending := o.bb.ListAtomsByStatus(StatusPending)
		if len(pending) == 0 {
			return nil
		}

		var ready []*Atom
		for _, a := range pending {
			if o.bb.AreDependenciesSatisfied(a) {
				ready = append(ready, a)
			}
		}
		if len(ready) == 0 {
			return newErr(ErrKindPlanning, "Orchestrator.schedule",
				fmt.Errorf("deadlock: %d atoms pending but none have satisfied dependencies (%s)", len(pending), pendingNames(pending)))
		}

		sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.MaxConcurrentAtoms)
		for _, a := range ready {
			atomID := a.ID
			g.Go(func() error {
				return worker.RunAtom(gctx, atomID, nil)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		log.Infow("scheduling round complete", "dispatched", len(ready))
	}
}

// reportExternalEdits drains a FileWatcher's edit channel for the lifetime
// of a run, logging a warning for every out-of-band change to a generated
// file (§8 defensive fidelity check).
func (o *Orchestrator) reportExternalEdits(watcher *FileWatcher) {
	log := logging.APFCLog(logging.CategoryOrchestrator)
	for edit := range watcher.Edits() {
		log.Warnw("generated file changed outside the Worker", "path", edit.Path, "op", edit.Op)
	}
}

func pendingNames(atoms []*Atom) string {
	names := make([]string, len(atoms))
	for i, a := range atoms {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
