package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGGUFScanner_ScanFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.GGUF", // case-insensitive
		"not-model.txt",
		"model.bin",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := NewGGUFScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	for _, m := range models {
		if !strings.HasSuffix(strings.ToLower(m.ID), ".gguf") {
			t.Fatalf("id not gguf: %s", m.ID)
		}
	}
}

func TestScanner_DefaultExtensionsAndSizes(t *testing.T) {
	dir := t.TempDir()
	for name, size := range map[string]int{"z.task": 3, "a.bin": 5, "m.gguf": 7, "readme.md": 1} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.gguf"), 0o755); err != nil {
		t.Fatal(err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %+v", models)
	}
	if models[0].ID != "a.bin" || models[0].Name != "a" || models[0].SizeBytes != 5 {
		t.Fatalf("unexpected first model: %+v", models[0])
	}
	if !filepath.IsAbs(models[2].Path) {
		t.Fatalf("path not absolute: %s", models[2].Path)
	}
}

func TestScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "sessiond-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := NewGGUFScanner().Scan(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gemma.gguf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(dir, nil)
	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	want := filepath.Join(dir, "gemma.gguf")
	for _, ref := range []string{"gemma.gguf", "gemma"} {
		got, err := r.Resolve(ref)
		if err != nil || got != want {
			t.Fatalf("resolve %q: %q %v", ref, got, err)
		}
	}
	if got, err := r.Resolve("/tmp/other.gguf"); err != nil || got != "/tmp/other.gguf" {
		t.Fatalf("explicit path: %q %v", got, err)
	}
	if _, err := r.Resolve("unknown"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(r.List()) != 1 {
		t.Fatalf("list: %+v", r.List())
	}
}

func TestRegistry_EmptyDir(t *testing.T) {
	r := New("", nil)
	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatal("expected no models")
	}
	if err := New(filepath.Join(t.TempDir(), "missing"), nil).Refresh(); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
