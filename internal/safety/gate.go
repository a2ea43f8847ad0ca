// Package safety statically inspects Oracle-generated remediation code before
// it can be stored as an executable action. Only unparseable code is blocked;
// denylisted imports are reported to the operator as warnings.
package safety

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"

	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

// EntryPoint is the function every remediation script must define.
const EntryPoint = "Remediate"

// Classification summarises a verdict for display.
type Classification string

const (
	Safe    Classification = "safe"
	Warned  Classification = "warned"
	Blocked Classification = "blocked"
)

// Verdict is the outcome of a safety check.
type Verdict struct {
	Blocked  bool     `json:"blocked"`
	Findings []string `json:"findings"`

	categories []Category
}

// Classification returns safe, warned or blocked.
func (v Verdict) Classification() Classification {
	switch {
	case v.Blocked:
		return Blocked
	case len(v.Findings) > 0:
		return Warned
	default:
		return Safe
	}
}

func (v *Verdict) add(c Category, format string, args ...any) {
	v.Findings = append(v.Findings, fmt.Sprintf(format, args...))
	v.categories = append(v.categories, c)
}

func (v Verdict) record() {
	for _, c := range v.categories {
		metrics.SafetyFindingsTotal.WithLabelValues(string(c)).Inc()
	}
}

// NormalizeScript returns code with a "package main" clause prepended when it
// has no package clause of its own.
func NormalizeScript(code string) string {
	code = strings.TrimSpace(code)
	if hasPackageClause(code) {
		return code + "\n"
	}
	return "package main\n\n" + code + "\n"
}

func hasPackageClause(code string) bool {
	var s scanner.Scanner
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(code))
	s.Init(file, []byte(code), nil, 0)
	for {
		_, tok, _ := s.Scan()
		switch tok {
		case token.COMMENT:
			continue
		case token.PACKAGE:
			return true
		default:
			return false
		}
	}
}

// Check inspects a remediation script. Parse failure blocks; every other
// finding is a warning. All findings are returned either way.
func Check(code string) Verdict {
	var v Verdict
	src := NormalizeScript(code)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "remediation.go", src, parser.AllErrors)
	if err != nil {
		v.Blocked = true
		v.add(CategorySyntax, "invalid syntax: %s", syntaxMessage(err))
	}

	if file != nil {
		checkImports(&v, file)
		if !v.Blocked {
			checkStructure(&v, file)
		}
	}

	v.record()
	return v
}

func syntaxMessage(err error) string {
	if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
		if len(list) == 1 {
			return list[0].Error()
		}
		return fmt.Sprintf("%s (and %d more errors)", list[0].Error(), len(list)-1)
	}
	return err.Error()
}

func checkImports(v *Verdict, file *ast.File) {
	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		if c, denied := DeniedImports[path]; denied {
			v.add(c, "import %q grants %s", path, categoryLabels[c])
		}
	}
}

func checkStructure(v *Verdict, file *ast.File) {
	if file.Name.Name != "main" {
		v.add(CategoryStructure, "package %s: scripts must be package main", file.Name.Name)
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Name.Name != EntryPoint {
			continue
		}
		if fn.Type.Params.NumFields() != 0 || !returnsOnlyError(fn.Type) {
			v.add(CategoryStructure, "%s must have signature func %s() error", EntryPoint, EntryPoint)
		}
		return
	}
	v.add(CategoryStructure, "no %s function defined; the script cannot be run", EntryPoint)
}

func returnsOnlyError(ft *ast.FuncType) bool {
	if ft.Results == nil || ft.Results.NumFields() != 1 {
		return false
	}
	ident, ok := ft.Results.List[0].Type.(*ast.Ident)
	return ok && ident.Name == "error"
}

// CheckPatch applies the patch policy: structural checks on the substitution
// only. Patches get no import gate; the file path is confined to the project
// root separately.
func CheckPatch(p remediation.PatchAction) Verdict {
	var v Verdict
	switch {
	case strings.TrimSpace(p.FilePath) == "":
		v.Blocked = true
		v.add(CategoryStructure, "patch has no file path")
	case p.OriginalCode == "":
		v.Blocked = true
		v.add(CategoryStructure, "patch has no original code to match")
	}
	if !v.Blocked {
		if p.OriginalCode == p.FixedCode {
			v.add(CategoryStructure, "patch does not change anything")
		} else if strings.TrimSpace(p.FixedCode) == "" {
			v.add(CategoryStructure, "patch deletes the matched code without replacement")
		}
	}
	v.record()
	return v
}
