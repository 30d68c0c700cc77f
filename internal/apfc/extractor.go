package apfc

import (
	"context"
	"fmt"

	"github.com/nerdstack/apfc/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// SymbolExtractor is the Tier-3 "source parser" collaborator (§4.3): it
// parses generated source text into a syntax tree and shapes the result
// into the SST schema. The design notes (§9) explicitly forbid extracting
// types via regex over source; this extractor always walks a real tree
// produced by go-tree-sitter, the grammar library the teacher uses
// throughout internal/world for the same purpose.
type SymbolExtractor struct {
	parser *sitter.Parser
}

// NewSymbolExtractor constructs an extractor for the Go target-language
// variant. (A different target language would swap the grammar import the
// way internal/world selects python/rust/typescript parsers per file.)
func NewSymbolExtractor() *SymbolExtractor {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &SymbolExtractor{parser: p}
}

// Close releases the underlying tree-sitter parser.
func (e *SymbolExtractor) Close() { e.parser.Close() }

// Extract parses source and returns signature-only summaries appropriate to
// the atom's kind: interface/abstraction capture every member signature,
// data-shape captures every field and its type, and implementation captures
// defined types plus external type names referenced (§4.3).
func (e *SymbolExtractor) Extract(ctx context.Context, atomID, source string, kind AtomKind) ([]TypeSignature, error) {
	tree, err := e.parser.ParseCtx(ctx, nil, []byte(source))
	if err != nil {
		return nil, newErr(ErrKindToolchain, "SymbolExtractor.Extract", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	content := []byte(source)
	log := logging.APFCLog(logging.CategoryExtractor)

	var sigs []TypeSignature
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "type_spec":
			sigs = append(sigs, extractTypeSpec(n, content, atomID, kind)...)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	if kind == KindImplementation {
		sigs = append(sigs, TypeSignature{
			FullyQualifiedName: atomID,
			SimpleName:         atomID,
			Kind:               kind,
			OwningAtom:         atomID,
			References:         collectTypeIdentifiers(root, content),
		})
	}

	log.Debugw("extracted signatures", "atom", atomID, "count", len(sigs))
	return sigs, nil
}

func extractTypeSpec(n *sitter.Node, content []byte, atomID string, kind AtomKind) []TypeSignature {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(content)

	var typeNode *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nameNode && c.Type() != "type_parameter_list" {
			typeNode = c
		}
	}
	if typeNode == nil {
		return nil
	}

	sig := TypeSignature{
		FullyQualifiedName: name,
		SimpleName:         name,
		Kind:               kind,
		OwningAtom:         atomID,
	}

	switch typeNode.Type() {
	case "interface_type":
		sig.Members = interfaceMembers(typeNode, content)
	case "struct_type":
		sig.Members = structFields(typeNode, content)
	default:
		sig.Members = []string{typeNode.Content(content)}
	}
	return []TypeSignature{sig}
}

func interfaceMembers(n *sitter.Node, content []byte) []string {
	var members []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "method_spec" {
			members = append(members, c.Content(content))
		}
	}
	return members
}

func structFields(n *sitter.Node, content []byte) []string {
	var fields []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "field_declaration" {
			fields = append(fields, c.Content(content))
		}
	}
	return fields
}

// collectTypeIdentifiers returns the set of type_identifier node texts in
// the tree, used to summarize the external types an implementation atom
// references (§4.3 "implementation" kind).
func collectTypeIdentifiers(n *sitter.Node, content []byte) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "type_identifier" {
			name := n.Content(content)
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return out
}

// ExtractionError wraps a parser failure with the offending atom for the
// caller to attach to the atom's diagnostics.
type ExtractionError struct {
	AtomID string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for atom %s: %v", e.AtomID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
