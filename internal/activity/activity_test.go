package activity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogger_AppendsCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.md")
	l, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Call("debug", "gemini-2.5-pro", "pause_for_debug", 120*time.Millisecond)
	l.Call("chat", "", "success", 40*time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"Tool Activity Log", "debug", "`gemini-2.5-pro`", "pause_for_debug", "chat", "success"} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	l, err := New("")
	if err != nil || l != nil {
		t.Fatalf("New(\"\") = %v, %v", l, err)
	}
	l.Call("chat", "", "success", time.Millisecond)
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}
