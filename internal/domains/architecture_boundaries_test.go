package domains

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const modulePath = "walletbridge/go-backend"

// importViolations parses every non-test file under dir and reports imports
// that fall under one of the forbidden prefixes.
func importViolations(t *testing.T, dir string, forbidden []string) []string {
	t.Helper()
	fset := token.NewFileSet()
	var violations []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return fmt.Errorf("parse file %s: %w", path, err)
		}
		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			for _, prefix := range forbidden {
				if !hasPrefixImport(importPath, prefix) {
					continue
				}
				pos := fset.Position(imp.Path.Pos())
				relPath, relErr := filepath.Rel(dir, path)
				if relErr != nil {
					relPath = path
				}
				violations = append(violations, fmt.Sprintf("%s:%d imports %q", relPath, pos.Line, importPath))
				break
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk %s: %v", dir, walkErr)
	}
	return violations
}

func domainsDir(t *testing.T) string {
	t.Helper()
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve current test file path")
	}
	return filepath.Dir(currentFile)
}

func TestArchitecture_DomainPackagesDisallowAdapterCompositionInfraImports(t *testing.T) {
	forbidden := []string{
		modulePath + "/internal/adapters",
		modulePath + "/internal/composition",
		modulePath + "/internal/bootstrap",
		modulePath + "/internal/platform",
		modulePath + "/internal/securestore",
		modulePath + "/internal/walletcore",
	}
	if v := importViolations(t, domainsDir(t), forbidden); len(v) > 0 {
		t.Fatalf("domain boundary violations detected:\n- %s", strings.Join(v, "\n- "))
	}
}

// The bundled engine implements the contracts ports and must not reach back
// into the session or its dispatcher.
func TestArchitecture_EngineStaysBehindContracts(t *testing.T) {
	engineDir := filepath.Join(filepath.Dir(domainsDir(t)), "walletcore")
	forbidden := []string{
		modulePath + "/internal/domains/wallet/usecase",
		modulePath + "/internal/domains/wallet/adapters",
		modulePath + "/internal/adapters",
		modulePath + "/internal/composition",
	}
	if v := importViolations(t, engineDir, forbidden); len(v) > 0 {
		t.Fatalf("engine boundary violations detected:\n- %s", strings.Join(v, "\n- "))
	}
}

func hasPrefixImport(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
