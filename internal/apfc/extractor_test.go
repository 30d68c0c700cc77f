package apfc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymbolExtractorInterface(t *testing.T) {
	e := NewSymbolExtractor()
	defer e.Close()

	source := "package core\n\ntype IWidget interface {\n\tRender() string\n\tPrice() float64\n}\n"
	sigs, err := e.Extract(context.Background(), "a1", source, KindInterface)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, "IWidget", sigs[0].SimpleName)
	require.Equal(t, "a1", sigs[0].OwningAtom)
	require.Len(t, sigs[0].Members, 2)
}

func TestSymbolExtractorDataShape(t *testing.T) {
	e := NewSymbolExtractor()
	defer e.Close()

	source := "package core\n\ntype Widget struct {\n\tName string\n\tPrice float64\n}\n"
	sigs, err := e.Extract(context.Background(), "a1", source, KindDataShape)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, "Widget", sigs[0].SimpleName)
	require.Len(t, sigs[0].Members, 2)
}

func TestSymbolExtractorImplementationCollectsReferences(t *testing.T) {
	e := NewSymbolExtractor()
	defer e.Close()

	source := "package infra\n\ntype WidgetRepo struct {\n\tstore Store\n}\n\nfunc (r *WidgetRepo) Find(id Identifier) (Widget, error) {\n\treturn Widget{}, nil\n}\n"
	sigs, err := e.Extract(context.Background(), "impl1", source, KindImplementation)
	require.NoError(t, err)

	var implSummary *TypeSignature
	for i := range sigs {
		if sigs[i].FullyQualifiedName == "impl1" {
			implSummary = &sigs[i]
		}
	}
	require.NotNil(t, implSummary)
	require.Contains(t, implSummary.References, "Store")
	require.Contains(t, implSummary.References, "Identifier")
	require.Contains(t, implSummary.References, "Widget")
}

func TestSymbolExtractorNeverIncludesMemberBodies(t *testing.T) {
	e := NewSymbolExtractor()
	defer e.Close()

	source := "package core\n\ntype IWidget interface {\n\tRender() string\n}\n"
	sigs, err := e.Extract(context.Background(), "a1", source, KindInterface)
	require.NoError(t, err)
	for _, m := range sigs[0].Members {
		require.NotContains(t, m, "{")
	}
}

func TestExtractionErrorWrapping(t *testing.T) {
	base := assertErr{"parse failed"}
	e := &ExtractionError{AtomID: "a1", Err: base}
	require.Contains(t, e.Error(), "a1")
	require.Equal(t, base, e.Unwrap())
}
