package apfc

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingNames(t *testing.T) {
	atoms := []*Atom{{Name: "A"}, {Name: "B"}}
	require.Equal(t, "A, B", pendingNames(atoms))
	require.Equal(t, "", pendingNames(nil))
}

// scriptedPlanLLM returns the same fixed planner JSON document for every
// prompt, letting tests avoid depending on the
// Planner's exact prompt-assembly wording.
type scriptedPlanLLM struct{ plan string }

func (s *scriptedPlanLLM) Complete(_ context.Context, _, _, _ string) (string, string, error) {
	return s.plan, "", nil
}

func newOrchestratorForTest(t *testing.T, llm LLMClient, cfg OrchestratorConfig) (*Orchestrator, *Workspace) {
	t.Helper()
	root := t.TempDir()
	layers := testLayers()
	bb, err := NewBlackboard(root, ProjectMetadata{Name: "demo", RootNamespace: "Demo", TargetFramework: "go1.24"}, layers)
	require.NoError(t, err)
	t.Cleanup(func() { bb.Close() })

	ws, err := NewWorkspace(root, nil)
	require.NoError(t, err)

	extractor := NewSymbolExtractor()
	t.Cleanup(extractor.Close)

	planner := NewPlanner(llm, layers, PlannerConfig{})
	orch := NewOrchestrator(bb, ws, planner, extractor, llm, "Demo", cfg)
	return orch, ws
}

func TestOrchestratorRunEndToEndSuccess(t *testing.T) {
	installFakeToolchain(t, 0, "", "")

	plan := `[
		{"name": "IWidget", "kind": "interface", "layer": "Core", "dependencies": [], "required_packages": []},
		{"name": "Widget", "kind": "implementation", "layer": "Infrastructure", "dependencies": ["IWidget"], "required_packages": []}
	]`
	llm := &planThenSourceLLM{plan: plan, source: "package core\n\ntype X struct{}\n"}

	orch, ws := newOrchestratorForTest(t, llm, OrchestratorConfig{
		MaxConcurrentAtoms: 2,
		Scaffold:           true,
		Repair:             RepairConfig{MaxRounds: 1},
		Worker:             WorkerConfig{MaxAttempts: 1},
	})

	result, err := orch.Run(context.Background(), "build a widget", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.AtomCount)
	require.Equal(t, 2, result.CompletedCount)
	require.True(t, ws.Exists("Demo.sln"))
}

// planThenSourceLLM answers the Planner's decomposition call with a fixed
// plan document, and every subsequent Worker generation call with a fixed
// compilable source body, discriminated by whether the prompt asks for a
// plan (system prompt mentions "Decompose") or a generation.
type planThenSourceLLM struct {
	plan   string
	source string
}

func (p *planThenSourceLLM) Complete(_ context.Context, systemPrompt, _, _ string) (string, string, error) {
	if systemPrompt == "" {
		return "", "", fmt.Errorf("planThenSourceLLM: unexpected empty system prompt")
	}
	if len(systemPrompt) > 10 && systemPrompt[:10] == "Decompose " {
		return p.plan, "", nil
	}
	return p.source, "resp", nil
}

func TestOrchestratorRunSingleDependencyFreeAtom(t *testing.T) {
	installFakeToolchain(t, 0, "", "")
	plan := `[{"name": "Widget", "kind": "data-shape", "layer": "Core", "dependencies": [], "required_packages": []}]`
	llm := &scriptedPlanLLM{plan: plan}
	orch, _ := newOrchestratorForTest(t, llm, OrchestratorConfig{Scaffold: false, Repair: RepairConfig{MaxRounds: 1}, Worker: WorkerConfig{MaxAttempts: 1}})

	result, err := orch.Run(context.Background(), "anything", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.AtomCount)
}

func TestOrchestratorClarificationFnIsApplied(t *testing.T) {
	plan := `[{"name": "Widget", "kind": "data-shape", "layer": "Core", "dependencies": [], "required_packages": []}]`
	llm := &scriptedPlanLLM{plan: plan}
	orch, _ := newOrchestratorForTest(t, llm, OrchestratorConfig{Scaffold: false})

	var seenRaw string
	clarify := func(_ context.Context, raw string) (string, error) {
		seenRaw = raw
		return "clarified: " + raw, nil
	}

	installFakeToolchain(t, 0, "", "")
	_, err := orch.Run(context.Background(), "raw request", clarify)
	require.NoError(t, err)
	require.Equal(t, "raw request", seenRaw)
}
