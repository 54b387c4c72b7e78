// Package scan finds module references in JavaScript and TypeScript sources
// using tree-sitter.
package scan

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var ErrScan = errors.New("edgezip: scan failed")

// Dialect selects the grammar used to parse a module.
type Dialect int

const (
	TypeScript Dialect = iota
	TSX
)

func (d Dialect) String() string {
	if d == TSX {
		return "tsx"
	}
	return "typescript"
}

// Kind classifies how a reference appears in source.
type Kind int

const (
	Import Kind = iota
	ReExport
	DynamicImport
)

func (k Kind) String() string {
	switch k {
	case ReExport:
		return "re-export"
	case DynamicImport:
		return "dynamic-import"
	default:
		return "import"
	}
}

// Reference is one module reference as written in source.
type Reference struct {
	Specifier string
	Kind      Kind
	Line      int
}

var scriptTypes = map[string]bool{
	"application/typescript":   true,
	"application/x-typescript": true,
	"text/typescript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"application/ecmascript":   true,
	"text/javascript":          true,
	"text/ecmascript":          true,
	"text/jsx":                 true,
	"text/tsx":                 true,
	"video/mp2t":               true, // .ts served by static file hosts
}

var scriptExts = map[string]Dialect{
	".ts":  TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,
	".js":  TypeScript,
	".mjs": TypeScript,
	".cjs": TypeScript,
	".tsx": TSX,
	".jsx": TSX,
}

// DialectFor reports whether a module should be scanned and with which grammar.
// The content type decides scannability when it names a known type; otherwise
// the specifier's extension does. JSON, text and other data are not scanned.
func DialectFor(spec, contentType string) (Dialect, bool) {
	ext := strings.ToLower(path.Ext(trimQuery(spec)))
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil && mt != "" {
		mt = strings.ToLower(mt)
		if !scriptTypes[mt] {
			if mt != "application/octet-stream" && mt != "text/plain" {
				return 0, false
			}
			d, ok := scriptExts[ext]
			return d, ok
		}
		if mt == "text/jsx" || mt == "text/tsx" || ext == ".tsx" || ext == ".jsx" {
			return TSX, true
		}
		return TypeScript, true
	}
	d, ok := scriptExts[ext]
	return d, ok
}

func trimQuery(spec string) string {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		return spec[:i]
	}
	return spec
}

// Scan parses src and returns its static imports, re-exports and
// string-literal dynamic imports in source order. Syntax errors are tolerated;
// references in unparsable regions are skipped.
func Scan(src []byte, dialect Dialect) ([]Reference, error) {
	lang := typescript.LanguageTypescript()
	if dialect == TSX {
		lang = typescript.LanguageTSX()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(lang)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScan, err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: parser returned no tree", ErrScan)
	}
	defer tree.Close()

	var refs []Reference
	walk(tree.RootNode(), src, &refs)
	return refs, nil
}

func walk(node *sitter.Node, src []byte, refs *[]Reference) {
	switch node.Kind() {
	case "import_statement":
		if s := node.ChildByFieldName("source"); s != nil {
			add(refs, s, src, Import)
		}
		return
	case "export_statement":
		if s := node.ChildByFieldName("source"); s != nil {
			add(refs, s, src, ReExport)
			return
		}
	case "call_expression":
		if fn := node.Child(0); fn != nil && fn.Kind() == "import" {
			if args := findChildByKind(node, "arguments"); args != nil {
				if s := literalArg(args); s != nil {
					add(refs, s, src, DynamicImport)
				}
			}
		}
	}
	for i := range node.ChildCount() {
		walk(node.Child(i), src, refs)
	}
}

// literalArg returns the first argument when it is a plain string or a
// template string without substitutions.
func literalArg(args *sitter.Node) *sitter.Node {
	if args.NamedChildCount() == 0 {
		return nil
	}
	first := args.NamedChild(0)
	switch first.Kind() {
	case "string":
		return first
	case "template_string":
		if findChildByKind(first, "template_substitution") == nil {
			return first
		}
	}
	return nil
}

func add(refs *[]Reference, lit *sitter.Node, src []byte, kind Kind) {
	spec := strings.Trim(nodeText(lit, src), "\"'`")
	if spec == "" {
		return
	}
	*refs = append(*refs, Reference{
		Specifier: spec,
		Kind:      kind,
		Line:      int(lit.StartPosition().Row) + 1,
	})
}

func findChildByKind(node *sitter.Node, kind string) *sitter.Node {
	for i := range node.ChildCount() {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

func nodeText(node *sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}
