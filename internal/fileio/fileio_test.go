package fileio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolve_RejectsRelative(t *testing.T) {
	v := NewValidator("")
	for _, p := range []string{"relative/path.go", "./here.go", ""} {
		if _, err := v.Resolve(p); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q) = %v, want ErrUnsafePath", p, err)
		}
	}
}

func TestResolve_RejectsTraversalAndEncoding(t *testing.T) {
	v := NewValidator("")
	cases := []string{
		"/tmp/../etc/passwd",
		"/tmp/%2e%2e/secret",
		"/tmp/a%2fb",
		"/tmp/a\\x2fb",
		"/tmp/a\x00b",
	}
	for _, p := range cases {
		if _, err := v.Resolve(p); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q) = %v, want ErrUnsafePath", p, err)
		}
	}
}

func TestResolve_DenyList(t *testing.T) {
	v := NewValidator("")
	for _, p := range []string{"/etc/passwd", "/proc/self/environ", "/sys/kernel"} {
		if _, err := v.Resolve(p); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q) = %v, want ErrUnsafePath", p, err)
		}
	}
}

func TestResolve_ServerDirDenied(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(dir)
	if _, err := v.Resolve(filepath.Join(dir, "server.go")); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("server's own directory must be denied, got %v", err)
	}
}

func TestResolve_AcceptsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewValidator("")
	got, err := v.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(%q) error: %v", path, err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("resolved path not absolute: %q", got)
	}
}

func TestReadFile_FramedOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.go")
	if err := os.WriteFile(path, []byte("package main\r\nfunc main() {}\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewValidator("")
	out, ok := v.ReadFile(path, ReadOptions{})
	if !ok {
		t.Fatalf("read failed: %s", out)
	}
	if !strings.HasPrefix(out, "--- BEGIN FILE: ") || !strings.Contains(out, "--- END FILE: ") {
		t.Errorf("missing framing: %q", out)
	}
	if strings.Contains(out, "\r") {
		t.Error("CRLF not normalised")
	}
}

func TestReadFile_ErrorBlock(t *testing.T) {
	v := NewValidator("")
	out, ok := v.ReadFile("/tmp/definitely-missing-94834.txt", ReadOptions{})
	if ok {
		t.Fatal("expected failure for missing file")
	}
	if !strings.HasPrefix(out, "--- ERROR READING FILE: ") {
		t.Errorf("missing error framing: %q", out)
	}
}

func TestNumberLines_WidthFloor(t *testing.T) {
	got := numberLines("a\nb")
	want := "   1│ a\n   2│ b"
	if got != want {
		t.Errorf("numberLines = %q, want %q", got, want)
	}
}

func TestExpandPaths_SkipsExcluded(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("src/main.go")
	mustWrite("src/util.go")
	mustWrite("node_modules/pkg/index.js")
	mustWrite(".git/config")
	mustWrite(".hidden-file")

	v := NewValidator("")
	got := v.ExpandPaths([]string{dir})

	want := []string{
		filepath.Join(dir, "src/main.go"),
		filepath.Join(dir, "src/util.go"),
	}
	if len(got) != len(want) {
		t.Fatalf("ExpandPaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExpandPaths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandPaths_DropsInvalidKeepsValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewValidator("")
	got := v.ExpandPaths([]string{"relative.txt", "/etc/passwd", path})
	if len(got) != 1 || got[0] != path {
		t.Errorf("ExpandPaths = %v, want [%s]", got, path)
	}
}
