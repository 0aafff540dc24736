//go:build cgo

package hints

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func grammar(l language) *sitter.Language {
	switch l {
	case langPython:
		return python.GetLanguage()
	case langGo:
		return golang.GetLanguage()
	case langJavaScript:
		return javascript.GetLanguage()
	case langTypeScript:
		return typescript.GetLanguage()
	}
	return nil
}

// Extract parses text as the language implied by p. Unsupported languages,
// parser failures and snippets with syntax errors all give an empty Result.
func Extract(p, text string) Result {
	lang := languageFor(p)
	g := grammar(lang)
	if g == nil || strings.TrimSpace(text) == "" {
		return Result{}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g)
	src := []byte(text)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return Result{}
	}
	defer tree.Close()
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return Result{}
	}

	w := &walker{src: src, lang: lang, seenSym: map[Symbol]bool{}, seenImp: map[Link]bool{}, seenCall: map[Link]bool{}}
	w.walk(root)

	res := Result{Symbols: w.symbols}
	res.Links = append(w.imports, w.calls...)
	return res
}

type walker struct {
	src  []byte
	lang language

	symbols []Symbol
	imports []Link
	calls   []Link

	seenSym  map[Symbol]bool
	seenImp  map[Link]bool
	seenCall map[Link]bool
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *walker) symbol(kind string, name *sitter.Node) {
	if s := w.text(name); s != "" {
		w.symbols = appendUnique(w.symbols, w.seenSym, Symbol{Kind: kind, Name: s})
	}
}

func (w *walker) imported(name string) {
	name = strings.Trim(name, "\"'`")
	if name != "" {
		w.imports = appendUnique(w.imports, w.seenImp, Link{Kind: KindImports, Name: name})
	}
}

func (w *walker) called(name string, attr bool) {
	if name == "" || noiseCalls[name] || (attr && noiseAttrs[name]) {
		return
	}
	w.calls = appendUnique(w.calls, w.seenCall, Link{Kind: KindCalls, Name: name})
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch w.lang {
	case langPython:
		w.python(n)
	case langGo:
		w.golang(n)
	case langJavaScript, langTypeScript:
		w.javascript(n)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
}

func (w *walker) python(n *sitter.Node) {
	switch n.Type() {
	case "function_definition":
		w.symbol("function", n.ChildByFieldName("name"))
	case "class_definition":
		w.symbol("class", n.ChildByFieldName("name"))
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.imported(w.pythonImportName(n.NamedChild(i)))
		}
	case "import_from_statement":
		mod := n.ChildByFieldName("module_name")
		prefix := w.text(mod)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if mod != nil && c.StartByte() == mod.StartByte() {
				continue
			}
			name := w.pythonImportName(c)
			if name == "" {
				continue
			}
			if prefix != "" {
				name = prefix + "." + name
			}
			w.imported(name)
		}
	case "call":
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			w.called(w.text(fn), false)
		case "attribute":
			w.called(w.text(fn.ChildByFieldName("attribute")), true)
		}
	}
}

func (w *walker) pythonImportName(c *sitter.Node) string {
	switch c.Type() {
	case "dotted_name":
		return w.text(c)
	case "aliased_import":
		return w.text(c.ChildByFieldName("name"))
	case "wildcard_import":
		return "*"
	}
	return ""
}

func (w *walker) golang(n *sitter.Node) {
	switch n.Type() {
	case "function_declaration":
		w.symbol("function", n.ChildByFieldName("name"))
	case "method_declaration":
		w.symbol("method", n.ChildByFieldName("name"))
	case "type_spec":
		w.symbol("type", n.ChildByFieldName("name"))
	case "import_spec":
		w.imported(w.text(n.ChildByFieldName("path")))
	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			w.called(w.text(fn), false)
		case "selector_expression":
			w.called(w.text(fn.ChildByFieldName("field")), true)
		}
	}
}

func (w *walker) javascript(n *sitter.Node) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		w.symbol("function", n.ChildByFieldName("name"))
	case "class_declaration":
		w.symbol("class", n.ChildByFieldName("name"))
	case "method_definition":
		w.symbol("method", n.ChildByFieldName("name"))
	case "interface_declaration", "type_alias_declaration":
		w.symbol("type", n.ChildByFieldName("name"))
	case "import_statement":
		w.imported(w.text(n.ChildByFieldName("source")))
	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			w.called(w.text(fn), false)
		case "member_expression":
			w.called(w.text(fn.ChildByFieldName("property")), true)
		}
	}
}
