package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScanExtractsFacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "auth/service.go", `package auth

import (
	"fmt"
	store "example.com/app/userstore"
)

type Service struct{}

type TokenSource interface {
	Token() string
}

func New() *Service { return &Service{} }

func (s *Service) Login(user string) error {
	if !featureflags.IsEnabled("new_login") {
		return fmt.Errorf("disabled")
	}
	if !CheckPermission("auth_login") {
		return fmt.Errorf("denied")
	}
	_ = store.Lookup(user)
	return nil
}
`)

	out, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out.Language != "go" {
		t.Errorf("Language = %q, want %q", out.Language, "go")
	}
	if len(out.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(out.Files))
	}

	f := out.Files[0]
	if f.Path != "auth/service.go" {
		t.Errorf("Path = %q, want %q", f.Path, "auth/service.go")
	}

	wantDecls := []Declaration{
		{Type: "type", Name: "Service"},
		{Type: "interface", Name: "TokenSource"},
		{Type: "func", Name: "New"},
		{Type: "method", Name: "Login"},
	}
	if !reflect.DeepEqual(f.Declarations, wantDecls) {
		t.Errorf("Declarations = %v, want %v", f.Declarations, wantDecls)
	}

	if len(f.Imports) != 2 {
		t.Fatalf("len(Imports) = %d, want 2", len(f.Imports))
	}
	if f.Imports[1].From != "example.com/app/userstore" || f.Imports[1].Alias != "store" {
		t.Errorf("aliased import = %+v", f.Imports[1])
	}

	if !reflect.DeepEqual(f.FeatureFlags, []string{"new_login"}) {
		t.Errorf("FeatureFlags = %v", f.FeatureFlags)
	}
	if !reflect.DeepEqual(f.Permissions, []string{"auth_login"}) {
		t.Errorf("Permissions = %v", f.Permissions)
	}
}

func TestScanSkipsVendorHiddenAndBroken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package ok\n")
	writeFile(t, dir, "vendor/dep/dep.go", "package dep\n")
	writeFile(t, dir, "testdata/fixture.go", "package fixture\n")
	writeFile(t, dir, ".hidden/h.go", "package h\n")
	writeFile(t, dir, "broken.go", "package {{{\n")
	writeFile(t, dir, "notes.txt", "not go\n")

	out, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out.Files) != 1 || out.Files[0].Path != "ok.go" {
		t.Errorf("Files = %v, want just ok.go", out.Files)
	}
}

func TestScanRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.go", "package p\n")
	if _, err := Scan(filepath.Join(dir, "file.go")); err == nil {
		t.Error("Scan of a file succeeded, want error")
	}
	if _, err := Scan(filepath.Join(dir, "missing")); err == nil {
		t.Error("Scan of a missing path succeeded, want error")
	}
}

func TestScanDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b/b.go", "package b\n")
	writeFile(t, dir, "a/a.go", "package a\n")

	out, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(out.Files))
	}
	if out.Files[0].Path != "a/a.go" || out.Files[1].Path != "b/b.go" {
		t.Errorf("order = [%s, %s], want sorted", out.Files[0].Path, out.Files[1].Path)
	}
}
