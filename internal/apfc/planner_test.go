package apfc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopologicalSortDeterministicTieBreak(t *testing.T) {
	atoms := []*Atom{
		{ID: "c", Name: "C", Dependencies: []string{"a", "b"}},
		{ID: "b", Name: "B"},
		{ID: "a", Name: "A"},
	}
	order, err := topologicalSort(atoms)
	require.NoError(t, err)
	ids := make([]string, len(order))
	for i, a := range order {
		ids[i] = a.ID
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	atoms := []*Atom{
		{ID: "a", Name: "A", Dependencies: []string{"b"}},
		{ID: "b", Name: "B", Dependencies: []string{"a"}},
	}
	_, err := topologicalSort(atoms)
	require.Error(t, err)
}

func TestCheckAbstractionsFirst(t *testing.T) {
	iface := &Atom{ID: "i1", Name: "IWidget", Kind: KindInterface}
	goodImpl := &Atom{ID: "impl1", Name: "Widget", Kind: KindImplementation, Dependencies: []string{"i1"}}
	badImpl := &Atom{ID: "impl2", Name: "Gadget", Kind: KindImplementation}

	require.NoError(t, checkAbstractionsFirst([]*Atom{iface, goodImpl}))
	require.Error(t, checkAbstractionsFirst([]*Atom{iface, goodImpl, badImpl}))

	// No abstractions anywhere in the plan: nothing to enforce.
	dataOnly := &Atom{ID: "d1", Name: "Data", Kind: KindDataShape}
	require.NoError(t, checkAbstractionsFirst([]*Atom{dataOnly}))
}

func TestLayerRepairReassignsToNextInnerLayer(t *testing.T) {
	layers := testLayers()
	core := &Atom{ID: "core1", Name: "Helper", Layer: "Core", Dependencies: []string{"infra1"}}
	infra := &Atom{ID: "infra1", Name: "Dep", Layer: "Infrastructure"}

	repaired, err := layerRepair([]*Atom{core, infra}, layers)
	require.NoError(t, err)

	var fixed *Atom
	for _, a := range repaired {
		if a.ID == "core1" {
			fixed = a
		}
	}
	require.NotNil(t, fixed)
	require.Equal(t, "Infrastructure", fixed.Layer)
}

func TestLayerRepairFailsWhenNoLayerAdmits(t *testing.T) {
	layers := map[string]LayerPolicy{
		"Core": {AllowedDependencies: nil},
	}
	core := &Atom{ID: "core1", Name: "Helper", Layer: "Core", Dependencies: []string{"missing"}}
	_, err := layerRepair([]*Atom{core}, layers)
	require.Error(t, err)
}

func TestAssignFilePathsDeterministic(t *testing.T) {
	atoms := []*Atom{{ID: "a1", Name: "Widget", Kind: KindDataShape, Layer: "Core"}}
	out := assignFilePaths("/root", atoms)
	require.Equal(t, "src/Core/data-shapes/Widget.go", out[0].FilePath)
}

func TestAtomFilePath(t *testing.T) {
	require.Equal(t, "src/Core/interfaces/IWidget.go", AtomFilePath("Core", KindInterface, "IWidget"))
}

func TestExtractFenceStripsMarkdownFence(t *testing.T) {
	require.Equal(t, "package core\n\nfunc X() {}", extractFence("```go\npackage core\n\nfunc X() {}\n```"))
	require.Equal(t, "package core", extractFence("package core"))
	require.Equal(t, `[{"name":"A"}]`, extractFence("```\n[{\"name\":\"A\"}]\n```"))
}

func TestPlannerPlanHappyPath(t *testing.T) {
	layers := testLayers()
	planJSON := `[
		{"name": "IWidget", "kind": "interface", "layer": "Core", "dependencies": [], "required_packages": []},
		{"name": "Widget", "kind": "implementation", "layer": "Infrastructure", "dependencies": ["IWidget"], "required_packages": []}
	]`
	llm := &NullLLMClient{Responses: map[string]string{"build a widget": planJSON}}
	p := NewPlanner(llm, layers, PlannerConfig{})

	atoms, err := p.Plan(context.Background(), "/workspace", "build a widget")
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	require.Equal(t, "IWidget", atoms[0].Name) // interface has no deps, sorts first
	require.Equal(t, "Widget", atoms[1].Name)
	require.Equal(t, []string{atoms[0].ID}, atoms[1].Dependencies)
	require.Equal(t, "src/Core/interfaces/IWidget.go", atoms[0].FilePath)
}

func TestPlannerPlanRejectsEmptyRequest(t *testing.T) {
	p := NewPlanner(&NullLLMClient{}, testLayers(), PlannerConfig{})
	_, err := p.Plan(context.Background(), "/workspace", "   ")
	require.Error(t, err)
	require.Equal(t, ErrKindPlanning, KindOf(err))
}

func TestPlannerPlanRejectsSelfDependency(t *testing.T) {
	layers := testLayers()
	planJSON := `[{"name": "A", "kind": "data-shape", "layer": "Core", "dependencies": ["A"], "required_packages": []}]`
	llm := &NullLLMClient{Responses: map[string]string{"self dep": planJSON}}
	p := NewPlanner(llm, layers, PlannerConfig{MaxCycleRetries: 0})

	_, err := p.Plan(context.Background(), "/workspace", "self dep")
	require.Error(t, err)
}
