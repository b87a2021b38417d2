package core

import (
	"fmt"
	"go/ast"
	"go/types"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestServiceStructContract(t *testing.T) {
	pkg := loadCorePackage(t)

	obj := pkg.Types.Scope().Lookup("Service")
	if obj == nil {
		t.Fatalf("Service type not found in package")
	}
	named, ok := obj.Type().(*types.Named)
	if !ok {
		t.Fatalf("Service is not a named type")
	}
	structType, ok := named.Underlying().(*types.Struct)
	if !ok {
		t.Fatalf("Service is not a struct")
	}

	qualifier := func(p *types.Package) string {
		if p == nil {
			return ""
		}
		return p.Path()
	}

	fields := make(map[string]string, structType.NumFields())
	for i := 0; i < structType.NumFields(); i++ {
		field := structType.Field(i)
		// The package aliases several domain types; compare against the
		// type they resolve to, not the alias name.
		fields[field.Name()] = types.TypeString(types.Unalias(field.Type()), qualifier)
	}

	required := map[string]string{
		"store":   "pharmacore/pkg/domain.PersistentStore",
		"images":  "pharmacore/internal/blob/core.Store",
		"logger":  "pharmacore/internal/core.Logger",
		"metrics": "pharmacore/internal/core.MetricsRecorder",
		"tracer":  "pharmacore/internal/core.Tracer",
		"clock":   "pharmacore/internal/core.Clock",
	}

	var problems []string
	for name, want := range required {
		got, ok := fields[name]
		if !ok {
			problems = append(problems, "missing field "+name)
			continue
		}
		if got != want {
			problems = append(problems, fmt.Sprintf("%s: want %s, got %s", name, want, got))
		}
	}
	if len(problems) > 0 {
		t.Fatalf("service struct contract violated: %s", strings.Join(problems, "; "))
	}
}

// Every exported Service method that returns a Result must go through the
// run helper, directly or via one unexported helper, so tracing, metrics,
// and failure logging cover all mutations.
func TestServiceTransactionalMethodsUseRun(t *testing.T) {
	pkg := loadCorePackage(t)

	runners := make(map[string]bool) // unexported methods that call run themselves
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Body == nil {
				continue
			}
			recvName, isService := serviceReceiverName(fn)
			if !isService || ast.IsExported(fn.Name.Name) {
				continue
			}
			if methodCalls(fn, recvName, map[string]bool{"run": true}) {
				runners[fn.Name.Name] = true
			}
		}
	}
	allowed := map[string]bool{"run": true}
	for name := range runners {
		allowed[name] = true
	}

	var violations []string
	for _, file := range pkg.Syntax {
		pos := pkg.Fset.Position(file.Pos())
		if strings.HasSuffix(pos.Filename, "_test.go") {
			continue
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Body == nil {
				continue
			}
			recvName, isService := serviceReceiverName(fn)
			if !isService || !ast.IsExported(fn.Name.Name) {
				continue
			}
			if !methodReturnsResult(fn) {
				continue
			}
			if methodCalls(fn, recvName, allowed) {
				continue
			}
			declPos := pkg.Fset.Position(fn.Pos())
			violations = append(violations, fmt.Sprintf("%s:%d %s", filepath.Base(declPos.Filename), declPos.Line, fn.Name.Name))
		}
	}

	if len(violations) > 0 {
		t.Fatalf("service methods returning Result must delegate to run:\n%s", strings.Join(violations, "\n"))
	}
}

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()

	corePkgOnce.Do(func() {
		cfg := &packages.Config{
			Mode:  packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedCompiledGoFiles | packages.NeedFiles,
			Tests: true,
		}
		pkgs, err := packages.Load(cfg, "pharmacore/internal/core")
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		if len(pkgs) == 0 {
			corePkgErr = fmt.Errorf("no packages returned when loading core")
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == "pharmacore/internal/core" {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not found in load results")
	})

	if corePkgErr != nil {
		t.Fatalf("core package load: %v", corePkgErr)
	}
	return corePkg
}

func serviceReceiverName(fn *ast.FuncDecl) (string, bool) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return "", false
	}
	recv := fn.Recv.List[0]
	var ident *ast.Ident
	switch expr := recv.Type.(type) {
	case *ast.StarExpr:
		switch inner := expr.X.(type) {
		case *ast.Ident:
			ident = inner
		case *ast.SelectorExpr:
			ident = inner.Sel
		}
	case *ast.Ident:
		ident = expr
	case *ast.SelectorExpr:
		ident = expr.Sel
	}
	if ident == nil || ident.Name != "Service" {
		return "", false
	}
	if len(recv.Names) == 0 {
		return "", false
	}
	return recv.Names[0].Name, true
}

func methodReturnsResult(fn *ast.FuncDecl) bool {
	if fn.Type.Results == nil {
		return false
	}
	for _, res := range fn.Type.Results.List {
		switch expr := res.Type.(type) {
		case *ast.Ident:
			if expr.Name == "Result" {
				return true
			}
		case *ast.SelectorExpr:
			if expr.Sel.Name == "Result" {
				return true
			}
		}
	}
	return false
}

func methodCalls(fn *ast.FuncDecl, receiver string, callees map[string]bool) bool {
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		if ident.Name == receiver && callees[sel.Sel.Name] {
			found = true
			return false
		}
		return true
	})
	return found
}
