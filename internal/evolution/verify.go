package evolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// allowedPackages is the stdlib whitelist a generated skill may import.
// Anything touching the filesystem, network, or process control is
// excluded outright; the red team pass also rejects these, and
// validateImports refuses any import outside this list before evaluation.
// The interpreter itself is loaded with the full stdlib symbol table.
var allowedPackages = map[string]bool{
	"strings":        true,
	"strconv":        true,
	"fmt":            true,
	"math":           true,
	"regexp":         true,
	"encoding/json":  true,
	"encoding/base64": true,
	"time":           true,
	"sort":           true,
	"bytes":          true,
	"path":           true,
	"path/filepath":  true,
	"errors":         true,
	"unicode":        true,
}

// VerifyRunner executes a candidate skill body in a sandboxed Yaegi
// interpreter. The body must define func RunSkill(input string) (string, error).
type VerifyRunner struct{}

func NewVerifyRunner() *VerifyRunner { return &VerifyRunner{} }

// Verify compiles and runs code against sample input, returning the
// skill's output or an error describing why verification failed.
func (v *VerifyRunner) Verify(ctx context.Context, code, sampleInput string) (string, error) {
	if err := v.validateImports(code); err != nil {
		return "", fmt.Errorf("invalid imports: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("failed to load stdlib: %w", err)
	}

	full := wrapCode(code)
	if _, err := i.Eval(full); err != nil {
		return "", fmt.Errorf("code evaluation failed: %w", err)
	}

	fn, err := i.Eval("main.RunSkill")
	if err != nil {
		return "", fmt.Errorf("RunSkill function not found: %w", err)
	}
	runSkill, ok := fn.Interface().(func(string) (string, error))
	if !ok {
		return "", fmt.Errorf("RunSkill has incorrect signature (expected func(string) (string, error))")
	}

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panicked: %v", r)}
			}
		}()
		res, runErr := runSkill(sampleInput)
		done <- outcome{result: res, err: runErr}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("verification timed out: %w", ctx.Err())
	}
}

func (v *VerifyRunner) validateImports(code string) error {
	lines := strings.Split(code, "\n")
	inBlock := false
	var forbidden []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, ")") {
			inBlock = false
			continue
		}
		var pkg string
		switch {
		case inBlock:
			pkg = strings.Trim(trimmed, `"`)
		case strings.HasPrefix(trimmed, "import "):
			pkg = strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
		default:
			continue
		}
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		if !allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("non-whitelisted imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

func wrapCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "package ") {
		return trimmed
	}
	return "package main\n\n" + trimmed
}
