// Package evolution implements the self-patching pipeline: propose a new
// skill body, red-team it with static AST analysis, verify it executes
// inside a sandboxed Yaegi interpreter, then apply or roll back — with a
// protected-skill/Sovereign-Key override and a dead-end index so rejected
// patches are never proposed twice.
package evolution

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// RedTeamResult is the static verdict on a proposed patch body.
type RedTeamResult struct {
	Valid            bool
	ParseError       string
	Errors           []string
	Warnings         []string
	PackageName      string
	Imports          []string
	HasMainFunction  bool
	HasErrorHandling bool
}

var dangerousImports = []string{"unsafe", "syscall", "runtime/cgo", "plugin", "os/exec", "net"}

// RedTeamReview parses candidate Go source and flags anything the
// sovereignty firewall should never let through: dangerous imports, unused
// imports, panic without recover, os.Exit, or log.Fatal in a long-running
// skill.
func RedTeamReview(code string) RedTeamResult {
	result := RedTeamResult{Valid: true}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "patch.go", code, parser.ParseComments)
	if err != nil {
		result.Valid = false
		result.ParseError = err.Error()
		return result
	}

	if file.Name == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "missing package declaration")
		return result
	}
	result.PackageName = file.Name.Name

	usedImports := map[string]bool{}
	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if ident, ok := sel.X.(*ast.Ident); ok {
				usedImports[ident.Name] = true
			}
		}
		return true
	})

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		result.Imports = append(result.Imports, path)

		for _, dangerous := range dangerousImports {
			if path == dangerous || strings.HasPrefix(path, dangerous+"/") {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("forbidden import: %s", path))
			}
		}

		alias := importLocalName(imp)
		if alias != "_" && !usedImports[alias] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unused import: %s", path))
		}
	}

	hasRecover := false
	hasPanic := false
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			if fn.Name == "recover" {
				hasRecover = true
			}
			if fn.Name == "panic" {
				hasPanic = true
			}
		case *ast.SelectorExpr:
			if ident, ok := fn.X.(*ast.Ident); ok {
				if ident.Name == "os" && fn.Sel.Name == "Exit" {
					result.Errors = append(result.Errors, "os.Exit in a skill would kill the whole kernel process")
					result.Valid = false
				}
				if ident.Name == "log" && fn.Sel.Name == "Fatal" {
					result.Errors = append(result.Errors, "log.Fatal in a skill would kill the whole kernel process")
					result.Valid = false
				}
			}
		}
		return true
	})
	if hasPanic && !hasRecover {
		result.Warnings = append(result.Warnings, "panic without a matching recover; the runtime dispatcher will catch it, but prefer returning an error")
	}

	ast.Inspect(file, func(n ast.Node) bool {
		if fn, ok := n.(*ast.FuncDecl); ok && fn.Name.Name == "main" {
			result.HasMainFunction = true
		}
		return true
	})

	result.HasErrorHandling = containsErrorReturn(file)

	return result
}

func importLocalName(imp *ast.ImportSpec) string {
	if imp.Name != nil {
		return imp.Name.Name
	}
	path := strings.Trim(imp.Path.Value, `"`)
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

func containsErrorReturn(file *ast.File) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		fn, ok := n.(*ast.FuncType)
		if !ok || fn.Results == nil {
			return true
		}
		for _, field := range fn.Results.List {
			if ident, ok := field.Type.(*ast.Ident); ok && ident.Name == "error" {
				found = true
			}
		}
		return true
	})
	return found
}
