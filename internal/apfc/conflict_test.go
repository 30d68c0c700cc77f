package apfc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConflictResolverDetectDuplicateTypesKeepFirstForInterface(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()

	a1 := &Atom{ID: "a1", Name: "IWidget", Kind: KindInterface, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.IWidget", SimpleName: "IWidget", Kind: KindInterface, OwningAtom: "a1"}},
		CompletedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	a2 := &Atom{ID: "a2", Name: "IWidgetDup", Kind: KindInterface, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.IWidget", SimpleName: "IWidget", Kind: KindInterface, OwningAtom: "a2"}},
		CompletedAt:        time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bb.UpsertAtom(ctx, a1))
	require.NoError(t, bb.UpsertAtom(ctx, a2))

	r := NewConflictResolver(bb)
	conflicts := r.DetectDuplicateTypes()
	require.Len(t, conflicts, 1)
	require.Equal(t, PolicyKeepFirst, conflicts[0].Policy)
	require.Equal(t, "a1", conflicts[0].WinningAtom)
	require.Equal(t, []string{"a2"}, conflicts[0].LosingAtoms)
	require.Contains(t, conflicts[0].RegenerationHint(), "Reuse it")
}

func TestConflictResolverDataShapeDisjointMergesAsPartial(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()

	a1 := &Atom{ID: "a1", Name: "Widget", Kind: KindDataShape, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.Widget", SimpleName: "Widget", Kind: KindDataShape, OwningAtom: "a1", Members: []string{"Name string"}}},
	}
	a2 := &Atom{ID: "a2", Name: "WidgetDup", Kind: KindDataShape, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.Widget", SimpleName: "Widget", Kind: KindDataShape, OwningAtom: "a2", Members: []string{"Price float64"}}},
	}
	require.NoError(t, bb.UpsertAtom(ctx, a1))
	require.NoError(t, bb.UpsertAtom(ctx, a2))

	conflicts := NewConflictResolver(bb).DetectDuplicateTypes()
	require.Len(t, conflicts, 1)
	require.Equal(t, PolicyMergeAsPartial, conflicts[0].Policy)
}

func TestConflictResolverDataShapeIncompatibleRemovesDuplicate(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()

	a1 := &Atom{ID: "a1", Name: "Widget", Kind: KindDataShape, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.Widget", SimpleName: "Widget", Kind: KindDataShape, OwningAtom: "a1", Members: []string{"Name string"}}},
	}
	a2 := &Atom{ID: "a2", Name: "WidgetDup", Kind: KindDataShape, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.Widget", SimpleName: "Widget", Kind: KindDataShape, OwningAtom: "a2", Members: []string{"Name int"}}},
	}
	require.NoError(t, bb.UpsertAtom(ctx, a1))
	require.NoError(t, bb.UpsertAtom(ctx, a2))

	conflicts := NewConflictResolver(bb).DetectDuplicateTypes()
	require.Len(t, conflicts, 1)
	require.Equal(t, PolicyRemoveDuplicate, conflicts[0].Policy)
	require.Contains(t, conflicts[0].RegenerationHint(), "Remove this atom's definition")
}

func TestConflictResolverDetectAmbiguousNames(t *testing.T) {
	bb := newTestBlackboard(t)
	ctx := context.Background()

	a1 := &Atom{ID: "a1", Name: "Parser", Kind: KindDataShape, Layer: "Core", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Core.Parser", SimpleName: "Parser", Kind: KindDataShape, OwningAtom: "a1"}},
	}
	a2 := &Atom{ID: "a2", Name: "OtherParser", Kind: KindDataShape, Layer: "Infrastructure", Status: StatusCompleted,
		ExtractedContract: []TypeSignature{{FullyQualifiedName: "Demo.Infrastructure.Parser", SimpleName: "Parser", Kind: KindDataShape, OwningAtom: "a2"}},
	}
	require.NoError(t, bb.UpsertAtom(ctx, a1))
	require.NoError(t, bb.UpsertAtom(ctx, a2))

	conflicts := NewConflictResolver(bb).DetectAmbiguousNames()
	require.Len(t, conflicts, 1)
	require.Equal(t, "Parser", conflicts[0].SimpleName)
	require.Equal(t, PolicyUseFullyQualified, conflicts[0].Policy)
	require.Contains(t, conflicts[0].RegenerationHint(), "Qualify every reference")
}

func TestMembersDisjointAndOverlappingCompatible(t *testing.T) {
	disjoint := []TypeSignature{
		{Members: []string{"Name string"}},
		{Members: []string{"Price float64"}},
	}
	require.True(t, membersDisjoint(disjoint))

	overlappingSame := []TypeSignature{
		{Members: []string{"Name string"}},
		{Members: []string{"Name string"}},
	}
	require.False(t, membersDisjoint(overlappingSame))
	require.True(t, overlappingCompatible(overlappingSame))

	overlappingDiff := []TypeSignature{
		{Members: []string{"Name string"}},
		{Members: []string{"Name int"}},
	}
	require.False(t, overlappingCompatible(overlappingDiff))
}

func TestMemberKey(t *testing.T) {
	require.Equal(t, "Render", memberKey("Render() string"))
	require.Equal(t, "Name", memberKey("Name string"))
	require.Equal(t, "Solo", memberKey("Solo"))
}
