package apfc

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerdstack/apfc/internal/logging"
)

// WorkerConfig bounds a Worker's per-atom attempt budget (§4.6).
type WorkerConfig struct {
	MaxAttempts int // default 3
}

// Worker executes one atom end-to-end: build context, call the LLM,
// extract code, compile in isolation, register signatures on success, or
// record diagnostics and retry (§4.6).
type Worker struct {
	bb        *Blackboard
	assembler *ContextAssembler
	workspace *Workspace
	extractor *SymbolExtractor
	llm       LLMClient
	cfg       WorkerConfig
}

// NewWorker wires a Worker to its collaborators.
func NewWorker(bb *Blackboard, assembler *ContextAssembler, ws *Workspace, extractor *SymbolExtractor, llm LLMClient, cfg WorkerConfig) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{bb: bb, assembler: assembler, workspace: ws, extractor: extractor, llm: llm, cfg: cfg}
}

// RunAtom executes the attempt loop of §4.6 for one atom. It never returns
// an error for an exhausted-retries outcome — that is represented by the
// atom's final `failed` status, per §4.6 step 7 ("do not block the rest of
// the DAG"). It returns an error for a cancellation, an unknown atom, a
// rejected status transition, or a failure of the Blackboard, the context
// assembler, the Workspace or the toolchain invocation.
func (w *Worker) RunAtom(ctx context.Context, atomID string, hints []string) error {
	log := logging.APFCLog(logging.CategoryWorker)

	atom, ok := w.bb.GetAtom(atomID)
	if !ok {
		return newErr(ErrKindConfiguration, "Worker.RunAtom", fmt.Errorf("unknown atom %q", atomID))
	}

	if err := w.bb.SetStatus(ctx, atomID, StatusInProgress); err != nil {
		return err
	}
	atom.Status = StatusInProgress

	for attempt := 0; attempt < w.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		promptCtx, err := w.assembler.Assemble(atom)
		if err != nil {
			return err
		}

		// A retry, or a call from the Repair Controller (which attaches
		// diagnostics and hints), takes the repair path.
		repairing := attempt > 0 || len(atom.LastDiagnostics) > 0 || len(hints) > 0

		userPrompt := promptCtx.String()
		if repairing {
			userPrompt = repairPrompt(promptCtx, atom, hints)
		}

		prevResponseID := w.lastDependencyResponseID(atom)
		if repairing {
			prevResponseID = atom.ResponseID
		}

		text, responseID, err := w.llm.Complete(ctx, systemPromptFor(atom), userPrompt, prevResponseID)
		if err != nil {
			log.Warnw("llm call failed", "atom", atomID, "attempt", attempt, "error", err)
			atom.RetryCount++
			continue
		}

		source := extractFence(text)
		atom.GeneratedSource = source
		atom.ResponseID = responseID

		if err := w.bb.UpsertAtom(ctx, atom); err != nil {
			return err
		}
		if err := w.bb.SetStatus(ctx, atomID, StatusAwaitingReview); err != nil {
			return err
		}
		atom.Status = StatusAwaitingReview

		result, err := w.compile(ctx, atom)
		if err != nil {
			return err
		}

		if result.Success() {
			sigs, err := w.extractor.Extract(ctx, atomID, source, atom.Kind)
			if err != nil {
				log.Warnw("extraction failed on a compiling atom", "atom", atomID, "error", err)
			} else {
				atom.ExtractedContract = sigs
				w.bb.SSTRegister(atomID, sigs)
			}
			if err := w.workspace.Write(atom.FilePath, []byte(source)); err != nil {
				return err
			}
			if err := w.bb.UpsertAtom(ctx, atom); err != nil {
				return err
			}
			return w.bb.SetStatus(ctx, atomID, StatusCompleted)
		}

		atom.LastDiagnostics = result.Diagnostics
		atom.RetryCount++
		if err := w.bb.UpsertAtom(ctx, atom); err != nil {
			return err
		}
		log.Infow("atom compile failed, retrying", "atom", atomID, "attempt", attempt, "diagnostics", len(result.Diagnostics))
		// re-fetch the canonical copy in case concurrent Blackboard
		// mutation occurred between our local retries.
		atom, _ = w.bb.GetAtom(atomID)
	}

	return w.bb.SetStatus(ctx, atomID, StatusFailed)
}

// compile writes the source to the atom's own target path in the Workspace
// and runs the toolchain on that single file (§4.6 step 5). The file is
// written before the compile result is known, so a failed attempt's source
// stays on disk until a later attempt overwrites it. The toolchain resolves
// cross-atom references against the files on disk, not against the SST.
func (w *Worker) compile(ctx context.Context, atom *Atom) (BuildResult, error) {
	if err := w.workspace.Write(atom.FilePath, []byte(atom.GeneratedSource)); err != nil {
		return BuildResult{}, err
	}
	return w.workspace.CompileAtom(ctx, atom.FilePath)
}

// lastDependencyResponseID returns the response id of the atom's last
// (lexicographically greatest ID) completed dependency, used to seed the
// chain for an atom's first generation (§6).
func (w *Worker) lastDependencyResponseID(atom *Atom) string {
	var last, lastID string
	for _, depID := range atom.Dependencies {
		dep, ok := w.bb.GetAtom(depID)
		if !ok {
			continue
		}
		if dep.ResponseID != "" && dep.ID > lastID {
			lastID = dep.ID
			last = dep.ResponseID
		}
	}
	return last
}

func systemPromptFor(atom *Atom) string {
	return fmt.Sprintf("You are generating the %s atom %q for layer %s. Produce complete, compilable source for exactly one file. Respond with only the code, optionally fenced.", atom.Kind, atom.Name, atom.Layer)
}

// repairPrompt builds the surgical-repair instruction of §4.6 step 2:
// prior diagnostics + prior source, with an instruction to repair minimally
// rather than rewrite.
func repairPrompt(promptCtx PromptContext, atom *Atom, hints []string) string {
	var b strings.Builder
	b.WriteString(promptCtx.String())
	b.WriteString("\n\n## Prior generation (repair this, do not rewrite from scratch)\n")
	b.WriteString(atom.GeneratedSource)
	b.WriteString("\n\n## Diagnostics to fix\n")
	for _, d := range atom.LastDiagnostics {
		fmt.Fprintf(&b, "- [%s] %s:%d:%d %s (%s)\n", d.Severity, d.File, d.Line, d.Column, d.Message, d.Code)
	}
	if len(hints) > 0 {
		b.WriteString("\n## Conflict resolution hints\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	b.WriteString("\nMake the smallest change that resolves every diagnostic above. Do not restructure unrelated code.")
	return b.String()
}
