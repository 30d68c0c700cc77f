package apfc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketDiagnosticsByFilePath(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()
	require.NoError(t, bb.UpsertAtom(ctx, &Atom{ID: "a1", Name: "Widget", Layer: "Core", Status: StatusPending, FilePath: "src/Core/data-shapes/Widget.go"}))

	rc := NewRepairController(bb, nil, nil, NewConflictResolver(bb), "Demo", RepairConfig{})
	diags := []Diagnostic{
		{File: "src/Core/data-shapes/Widget.go", Code: "BUILD", Message: "oops"},
		{File: "unowned/file.go", Code: "BUILD", Message: "nothing references this"},
	}
	buckets := rc.bucketDiagnostics(diags)
	require.Len(t, buckets, 1)
	require.Len(t, buckets["a1"], 1)
}

func TestResolveOwningAtomFallsBackToSymbolReference(t *testing.T) {
	now := time.Now()
	older := &Atom{ID: "old", FilePath: "src/Core/a.go", CompletedAt: now.Add(-time.Hour),
		ExtractedContract: []TypeSignature{{References: []string{"Widget"}}}}
	newer := &Atom{ID: "new", FilePath: "src/Core/b.go", CompletedAt: now,
		ExtractedContract: []TypeSignature{{References: []string{"Widget"}}}}
	byPath := map[string]string{"src/Core/a.go": "old", "src/Core/b.go": "new"}

	d := Diagnostic{File: "generated/unowned.go", Message: "undefined: Widget"}
	id, ok := resolveOwningAtom(d, byPath, []*Atom{older, newer})
	require.True(t, ok)
	require.Equal(t, "new", id) // most recently completed candidate wins ties
}

func TestResolveOwningAtomNoCandidates(t *testing.T) {
	d := Diagnostic{File: "generated/unowned.go", Message: "undefined: Nothing"}
	_, ok := resolveOwningAtom(d, map[string]string{}, nil)
	require.False(t, ok)
}

func TestDropExpectedFirstRoundDiagnostics(t *testing.T) {
	buckets := map[string][]Diagnostic{
		"a1": {{Code: "UNDEFINED", Message: "not yet generated"}, {Code: "BUILD", Message: "real error"}},
		"a2": {{Code: "SYMBOL_NOT_FOUND", Message: "not yet generated"}},
	}
	out := dropExpectedFirstRoundDiagnostics(buckets)
	require.Len(t, out, 1)
	require.Len(t, out["a1"], 1)
	require.Equal(t, "real error", out["a1"][0].Message)
}

func TestComputeDependencyDepth(t *testing.T) {
	atoms := []*Atom{
		{ID: "a", Dependencies: nil},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
	}
	depth := computeDependencyDepth(atoms)
	require.Equal(t, 0, depth["a"])
	require.Equal(t, 1, depth["b"])
	require.Equal(t, 2, depth["c"])
}

func TestPrioritizeOrdersByDepthThenCountThenID(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()
	require.NoError(t, bb.UpsertAtom(ctx, &Atom{ID: "a", Name: "A", Layer: "Core", Status: StatusPending}))
	require.NoError(t, bb.UpsertAtom(ctx, &Atom{ID: "b", Name: "B", Layer: "Core", Dependencies: []string{"a"}, Status: StatusPending}))

	rc := NewRepairController(bb, nil, nil, NewConflictResolver(bb), "Demo", RepairConfig{})
	buckets := map[string][]Diagnostic{
		"b": {{Message: "e1"}},
		"a": {{Message: "e1"}, {Message: "e2"}},
	}
	ids := rc.prioritize(buckets)
	require.Equal(t, []string{"a", "b"}, ids) // a has depth 0, b depends on a (depth 1)
}

func TestConflictHintsAttachesRegenerationHints(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()
	a1 := &Atom{ID: "a1", Name: "IWidget", Kind: KindInterface, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.IWidget", SimpleName: "IWidget", Kind: KindInterface, OwningAtom: "a1"}},
	}
	a2 := &Atom{ID: "a2", Name: "IWidgetDup", Kind: KindInterface, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.IWidget", SimpleName: "IWidget", Kind: KindInterface, OwningAtom: "a2"}},
	}
	require.NoError(t, bb.UpsertAtom(ctx, a1))
	require.NoError(t, bb.UpsertAtom(ctx, a2))

	rc := NewRepairController(bb, nil, nil, NewConflictResolver(bb), "Demo", RepairConfig{})
	hints := rc.conflictHints()
	require.NotEmpty(t, hints["a2"])
	require.Contains(t, hints["a2"][0], "IWidget")
}

func TestFailedAtomIDs(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()
	require.NoError(t, bb.UpsertAtom(ctx, &Atom{ID: "a1", Name: "A", Layer: "Core", Status: StatusPending}))
	require.NoError(t, bb.SetStatus(ctx, "a1", StatusInProgress))
	require.NoError(t, bb.SetStatus(ctx, "a1", StatusFailed))

	require.Equal(t, []string{"a1"}, bb.failedAtomIDs())
}

// installStatefulFakeToolchain scripts a toolchain that fails exactly once
// for .sln build targets (emitting one diagnostic against failFile) and
// succeeds on every other invocation, including every atom-level compile.
// This lets a RepairController.Run test exercise a genuine
// fail-then-repair-then-succeed round without a real compiler.
func installStatefulFakeToolchain(t *testing.T, failFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain script is POSIX-shell only")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "failed-once")
	script := fmt.Sprintf(`#!/bin/sh
target="$2"
case "$target" in
  *.sln)
    if [ ! -f %q ]; then
      touch %q
      printf '%%s:1:1: undefined: Foo\n' %q
      exit 1
    fi
    ;;
esac
exit 0
`, marker, marker, failFile)
	path := filepath.Join(dir, "toolchain")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRepairControllerRunSucceedsImmediately(t *testing.T) {
	installFakeToolchain(t, 0, "", "")
	bb := newTestBlackboard(t)
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, ws.ScaffoldSolution(context.Background(), "Demo"))

	assembler := NewContextAssembler(bb, nil)
	extractor := NewSymbolExtractor()
	defer extractor.Close()
	worker := NewWorker(bb, assembler, ws, extractor, &NullLLMClient{}, WorkerConfig{})

	rc := NewRepairController(bb, ws, worker, NewConflictResolver(bb), "Demo", RepairConfig{MaxRounds: 3})
	outcome, err := rc.Run(context.Background())
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, 1, outcome.RoundsRun)
}

func TestRepairControllerRunRepairsThenSucceeds(t *testing.T) {
	bb := newTestBlackboard(t)
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, ws.ScaffoldSolution(ctx, "Demo"))

	atom := &Atom{ID: "a1", Name: "Widget", Kind: KindDataShape, Layer: "Core", Status: StatusCompleted, FilePath: "src/Core/data-shapes/Widget.go"}
	require.NoError(t, bb.UpsertAtom(ctx, atom))
	installStatefulFakeToolchain(t, atom.FilePath)

	assembler := NewContextAssembler(bb, nil)
	extractor := NewSymbolExtractor()
	defer extractor.Close()
	worker := NewWorker(bb, assembler, ws, extractor, &alwaysSourceLLM{source: "package core\n\ntype Widget struct{}\n"}, WorkerConfig{MaxAttempts: 1})

	rc := NewRepairController(bb, ws, worker, NewConflictResolver(bb), "Demo", RepairConfig{MaxRounds: 3})
	outcome, err := rc.Run(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, 2, outcome.RoundsRun)

	got, ok := bb.GetAtom("a1")
	require.True(t, ok)
	require.Equal(t, StatusCompleted, got.Status)
}
