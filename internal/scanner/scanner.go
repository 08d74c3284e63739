// Package scanner extracts architectural facts from Go source trees.
//
// The scanner is dumb by design: it observes code and reports facts, it
// never makes architectural decisions. Which module a file belongs to,
// whether an import is allowed, whether a boundary is violated — all of
// that is decided downstream against the policy, never here.
package scanner

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ─── Output types ────────────────────────────────────────────────────────────

// Declaration is one named top-level declaration.
type Declaration struct {
	Type string `json:"type"` // "func", "method", "type", "interface"
	Name string `json:"name"`
}

// Import is one import statement with its optional local alias.
type Import struct {
	From  string `json:"from"`
	Type  string `json:"type"` // always "import" for Go
	Alias string `json:"alias,omitempty"`
}

// FileFacts holds everything the scanner observed in a single file.
type FileFacts struct {
	Path         string        `json:"path"`
	Declarations []Declaration `json:"declarations"`
	Imports      []Import      `json:"imports"`
	FeatureFlags []string      `json:"feature_flags"`
	Permissions  []string      `json:"permissions"`
	Warnings     []string      `json:"warnings"`
}

// Output is the scanner's full report for one source tree.
type Output struct {
	Language string      `json:"language"`
	Files    []FileFacts `json:"files"`
}

// ─── Detection patterns ──────────────────────────────────────────────────────

// Feature-flag call shapes: featureflags.IsEnabled("x"), flags.Enabled("x"),
// Features["x"].
var featureFlagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`featureflags\.IsEnabled\("(\w+)"\)`),
	regexp.MustCompile(`flags\.Enabled\("(\w+)"\)`),
	regexp.MustCompile(`Features\["(\w+)"\]`),
}

// Permission-check call shapes: .HasPermission("x"), CheckPermission("x"),
// RequirePermission("x").
var permissionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.HasPermission\("(\w+)"\)`),
	regexp.MustCompile(`CheckPermission\("(\w+)"\)`),
	regexp.MustCompile(`RequirePermission\("(\w+)"\)`),
}

// ─── Scanning ────────────────────────────────────────────────────────────────

// Scan walks a directory tree and extracts facts from every Go file.
// Vendor trees, testdata, hidden directories, and generated underscore
// prefixes are skipped. Unparseable files are skipped silently, matching
// the report-facts-only contract.
func Scan(root string) (*Output, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanner: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanner: %s is not a directory", root)
	}

	out := &Output{Language: "go", Files: []FileFacts{}}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != absRoot && skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, "_") {
			return nil
		}

		facts, ok := scanFile(absRoot, path)
		if ok {
			out.Files = append(out.Files, facts)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: walk %s: %w", root, err)
	}

	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
	return out, nil
}

func skipDir(name string) bool {
	return name == "vendor" || name == "testdata" || name == "node_modules" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// scanFile extracts facts from a single Go file. The bool is false when the
// file could not be read or parsed.
func scanFile(root, path string) (FileFacts, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileFacts{}, false
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if err != nil {
		return FileFacts{}, false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	return FileFacts{
		Path:         filepath.ToSlash(rel),
		Declarations: extractDeclarations(file),
		Imports:      extractImports(file),
		FeatureFlags: matchAll(featureFlagPatterns, string(content)),
		Permissions:  matchAll(permissionPatterns, string(content)),
		Warnings:     []string{},
	}, true
}

// extractDeclarations walks the file's top-level declarations.
func extractDeclarations(file *ast.File) []Declaration {
	decls := []Declaration{}

	for _, d := range file.Decls {
		switch decl := d.(type) {
		case *ast.FuncDecl:
			kind := "func"
			if decl.Recv != nil {
				kind = "method"
			}
			decls = append(decls, Declaration{Type: kind, Name: decl.Name.Name})

		case *ast.GenDecl:
			if decl.Tok != token.TYPE {
				continue
			}
			for _, spec := range decl.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				kind := "type"
				if _, isInterface := ts.Type.(*ast.InterfaceType); isInterface {
					kind = "interface"
				}
				decls = append(decls, Declaration{Type: kind, Name: ts.Name.Name})
			}
		}
	}

	return decls
}

func extractImports(file *ast.File) []Import {
	imports := []Import{}
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		entry := Import{From: path, Type: "import"}
		if imp.Name != nil {
			entry.Alias = imp.Name.Name
		}
		imports = append(imports, entry)
	}
	return imports
}

// matchAll collects the first capture group of every pattern match, deduped
// and sorted.
func matchAll(patterns []*regexp.Regexp, content string) []string {
	seen := make(map[string]bool)
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
