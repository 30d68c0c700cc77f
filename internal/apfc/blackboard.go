package apfc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nerdstack/apfc/internal/logging"

	"github.com/google/uuid"
)

// Blackboard is the durable shared state: project manifest, atom table, and
// semantic symbol table (SST). It is the exclusive owner of all three; every
// other component holds a borrowed reference and mutates only through the
// operations below (§3 "Ownership").
type Blackboard struct {
	mu sync.RWMutex

	runID         string
	manifestPath  string
	manifest      ProjectManifest
	atoms         map[string]*Atom
	sst           map[string][]TypeSignature // simple name -> records
	history       *HistoryStore
}

// NewBlackboard opens (or initializes) a Blackboard rooted at workspaceRoot.
// A missing manifest file is treated as an empty run per §6.
func NewBlackboard(workspaceRoot string, metadata ProjectMetadata, layers map[string]LayerPolicy) (*Blackboard, error) {
	path := filepath.Join(workspaceRoot, "solution_manifest.json")
	bb := &Blackboard{
		runID:        uuid.NewString(),
		manifestPath: path,
		manifest: ProjectManifest{
			Metadata: metadata,
			Layers:   layers,
		},
		atoms: make(map[string]*Atom),
		sst:   make(map[string][]TypeSignature),
	}

	hist, err := NewHistoryStore(filepath.Join(workspaceRoot, ".apfc", "history.db"))
	if err != nil {
		logging.APFCLog(logging.CategoryBlackboard).Warnw("history store unavailable, continuing without it", "error", err)
	} else {
		bb.history = hist
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := bb.loadFromJSON(data); err != nil {
			return nil, newErr(ErrKindConfiguration, "NewBlackboard", fmt.Errorf("corrupt manifest: %w", err))
		}
	}
	return bb, nil
}

type manifestDoc struct {
	ProjectMetadata  ProjectMetadata        `json:"project_metadata"`
	ProjectHierarchy struct {
		Layers map[string]LayerPolicy `json:"layers"`
	} `json:"project_hierarchy"`
	SemanticSymbolTable struct {
		Interfaces []TypeSignature `json:"interfaces"`
		DataShapes []TypeSignature `json:"data_shapes"`
	} `json:"semantic_symbol_table"`
	Atoms []*Atom `json:"atoms"`
}

func (b *Blackboard) loadFromJSON(data []byte) error {
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	b.manifest.Metadata = doc.ProjectMetadata
	b.manifest.Layers = doc.ProjectHierarchy.Layers
	for _, a := range doc.Atoms {
		b.atoms[a.ID] = a
		if a.Status == StatusCompleted {
			b.manifest.CompletedFiles = append(b.manifest.CompletedFiles, a.FilePath)
		}
	}
	for _, sig := range doc.SemanticSymbolTable.Interfaces {
		b.sst[sig.SimpleName] = append(b.sst[sig.SimpleName], sig)
	}
	for _, sig := range doc.SemanticSymbolTable.DataShapes {
		b.sst[sig.SimpleName] = append(b.sst[sig.SimpleName], sig)
	}
	return nil
}

// UpsertAtom inserts or replaces an atom by ID.
func (b *Blackboard) UpsertAtom(ctx context.Context, a *Atom) error {
	b.mu.Lock()
	b.atoms[a.ID] = a.clone()
	b.mu.Unlock()
	return b.SaveManifest(ctx)
}

// GetAtom returns a copy of the atom, or (nil, false) if unknown.
func (b *Blackboard) GetAtom(id string) (*Atom, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.atoms[id]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// ListAtomsByStatus returns copies of every atom in the given status,
// ordered deterministically by ID.
func (b *Blackboard) ListAtomsByStatus(status AtomStatus) []*Atom {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Atom, 0)
	for _, a := range b.atoms {
		if a.Status == status {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAllAtoms returns copies of every atom, ordered by ID.
func (b *Blackboard) ListAllAtoms() []*Atom {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Atom, 0, len(b.atoms))
	for _, a := range b.atoms {
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus transitions an atom's status, enforcing the transitions that
// validTransition allows: pending -> in-progress; in-progress ->
// (awaiting-review | failed); awaiting-review -> (completed | failed |
// awaiting-review); completed -> pending (the Repair Controller reopening an
// atom); failed -> pending. An atom with any other status may only move to
// pending. Every other transition is rejected.
func (b *Blackboard) SetStatus(ctx context.Context, id string, status AtomStatus) error {
	b.mu.Lock()
	a, ok := b.atoms[id]
	if !ok {
		b.mu.Unlock()
		return newErr(ErrKindConfiguration, "Blackboard.SetStatus", fmt.Errorf("unknown atom %q", id))
	}
	if !validTransition(a.Status, status) {
		b.mu.Unlock()
		return newErr(ErrKindConfiguration, "Blackboard.SetStatus", fmt.Errorf("invalid transition %s -> %s for atom %q", a.Status, status, id))
	}
	wasCompleted := a.Status == StatusCompleted
	a.Status = status
	if status == StatusCompleted {
		a.CompletedAt = time.Now()
		b.manifest.CompletedFiles = append(b.manifest.CompletedFiles, a.FilePath)
	}
	if status == StatusPending && wasCompleted {
		a.RegenCount++
	}
	b.mu.Unlock()
	return b.SaveManifest(ctx)
}

func validTransition(from, to AtomStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusAwaitingReview || to == StatusFailed
	case StatusAwaitingReview:
		// to == StatusAwaitingReview covers the Worker resubmitting a repaired
		// generation for review after a failed compile within the same
		// RunAtom attempt loop.
		return to == StatusCompleted || to == StatusFailed || to == StatusAwaitingReview
	case StatusCompleted:
		return to == StatusPending
	case StatusFailed:
		return to == StatusPending // allowed so the Repair Controller can retry a failed atom with a fresh budget window, if the caller chooses to
	default:
		return to == StatusPending
	}
}

// ValidateLayerDependencies returns false if the atom's layer or one of its
// dependencies is unknown, or if a dependency in another layer is not in the
// allowed set for the atom's layer (§4.1). A dependency in the atom's own
// layer is always allowed.
func (b *Blackboard) ValidateLayerDependencies(a *Atom) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	policy, ok := b.manifest.Layers[a.Layer]
	if !ok {
		return false
	}
	allowed := make(map[string]bool, len(policy.AllowedDependencies))
	for _, l := range policy.AllowedDependencies {
		allowed[l] = true
	}
	for _, depID := range a.Dependencies {
		dep, ok := b.atoms[depID]
		if !ok {
			return false
		}
		if dep.Layer != a.Layer && !allowed[dep.Layer] {
			return false
		}
	}
	return true
}

// AreDependenciesSatisfied returns true iff every upstream atom is completed.
func (b *Blackboard) AreDependenciesSatisfied(a *Atom) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, depID := range a.Dependencies {
		dep, ok := b.atoms[depID]
		if !ok || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// SaveManifest persists the manifest + atom table + SST summary atomically
// (write-temp-then-rename), per §6. Repeated saves are idempotent.
func (b *Blackboard) SaveManifest(_ context.Context) error {
	b.mu.RLock()
	doc := b.renderDoc()
	b.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return newErr(ErrKindConfiguration, "Blackboard.SaveManifest", err)
	}

	dir := filepath.Dir(b.manifestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newErr(ErrKindWorkspaceSecurity, "Blackboard.SaveManifest", err)
	}
	tmp, err := os.CreateTemp(dir, "solution_manifest-*.json.tmp")
	if err != nil {
		return newErr(ErrKindConfiguration, "Blackboard.SaveManifest", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return newErr(ErrKindConfiguration, "Blackboard.SaveManifest", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return newErr(ErrKindConfiguration, "Blackboard.SaveManifest", err)
	}
	if err := os.Rename(tmpPath, b.manifestPath); err != nil {
		os.Remove(tmpPath)
		return newErr(ErrKindConfiguration, "Blackboard.SaveManifest", err)
	}
	return nil
}

func (b *Blackboard) renderDoc() manifestDoc {
	var doc manifestDoc
	doc.ProjectMetadata = b.manifest.Metadata
	doc.ProjectHierarchy.Layers = b.manifest.Layers
	for _, a := range b.atoms {
		doc.Atoms = append(doc.Atoms, a.clone())
	}
	sort.Slice(doc.Atoms, func(i, j int) bool { return doc.Atoms[i].ID < doc.Atoms[j].ID })
	for _, sigs := range b.sst {
		for _, s := range sigs {
			if s.Kind == KindInterface || s.Kind == KindAbstraction {
				doc.SemanticSymbolTable.Interfaces = append(doc.SemanticSymbolTable.Interfaces, s)
			} else if s.Kind == KindDataShape {
				doc.SemanticSymbolTable.DataShapes = append(doc.SemanticSymbolTable.DataShapes, s)
			}
		}
	}
	return doc
}

// SSTRegister appends-or-replaces the tuple (owning-atom, type-name) in the
// SST (§4.1).
func (b *Blackboard) SSTRegister(atomID string, signatures []TypeSignature) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sig := range signatures {
		sig.OwningAtom = atomID
		existing := b.sst[sig.SimpleName]
		replaced := false
		for i, e := range existing {
			if e.OwningAtom == atomID {
				existing[i] = sig
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, sig)
		}
		b.sst[sig.SimpleName] = existing
	}
	if b.history != nil {
		for _, sig := range signatures {
			_ = b.history.RecordSSTEvent(atomID, sig.SimpleName, sig.FullyQualifiedName, time.Now())
		}
	}
}

// SSTLookup returns every record registered under a simple type name.
func (b *Blackboard) SSTLookup(simpleName string) []TypeSignature {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]TypeSignature(nil), b.sst[simpleName]...)
}

// SSTPurgeLayer drops every SST entry owned by atomID, for use when an atom
// that has already registered signatures is moved to another layer. The
// Planner's layer repair runs before any atom is generated and does not
// call it.
func (b *Blackboard) SSTPurgeLayer(atomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, sigs := range b.sst {
		filtered := sigs[:0]
		for _, s := range sigs {
			if s.OwningAtom != atomID {
				filtered = append(filtered, s)
			}
		}
		b.sst[name] = filtered
	}
}

// Manifest returns a copy of the manifest.
func (b *Blackboard) Manifest() ProjectManifest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.manifest
	m.CompletedFiles = append([]string(nil), b.manifest.CompletedFiles...)
	return m
}

// History exposes the diagnostic/SST-revision history store (nil if it
// failed to open; callers must tolerate that).
func (b *Blackboard) History() *HistoryStore { return b.history }

// Close releases the history store's handle, if any.
func (b *Blackboard) Close() error {
	if b.history != nil {
		return b.history.Close()
	}
	return nil
}
