package conversation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
)

func modelContext(window int) ModelContext {
	return ModelContext{
		Model:      "test-model",
		Allocation: tokens.NewAllocation(window),
		Estimator:  tokens.NewEstimator(),
		Files:      fileio.NewValidator(""),
	}
}

func threadWith(turns ...Turn) *ThreadContext {
	return &ThreadContext{ID: "t-1", ToolName: "chat", Turns: turns}
}

func TestBuildHistory_Chronological(t *testing.T) {
	ctx := threadWith(
		Turn{Role: "user", Content: "first question"},
		Turn{Role: "assistant", Content: "first answer", ModelName: "o3"},
		Turn{Role: "user", Content: "second question"},
	)

	text, used := BuildHistory(ctx, modelContext(200_000))
	if used <= 0 {
		t.Error("expected non-zero token usage")
	}
	i1 := strings.Index(text, "first question")
	i2 := strings.Index(text, "first answer")
	i3 := strings.Index(text, "second question")
	if i1 < 0 || i2 < 0 || i3 < 0 || !(i1 < i2 && i2 < i3) {
		t.Errorf("history not chronological: %d %d %d\n%s", i1, i2, i3, text)
	}
	if !strings.Contains(text, "via o3") {
		t.Error("assistant turn should carry its model")
	}
}

func TestBuildHistory_BudgetDropsOldest(t *testing.T) {
	big := strings.Repeat("word ", 2000) // ~2500 ratio tokens each
	ctx := threadWith(
		Turn{Role: "user", Content: "OLDEST " + big},
		Turn{Role: "assistant", Content: "MIDDLE " + big},
		Turn{Role: "user", Content: "NEWEST tail"},
	)

	// History budget = 0.4 * 0.75 * 10_000 = 3000 tokens: room for the
	// newest and middle turns but not the oldest.
	text, _ := BuildHistory(ctx, modelContext(10_000))
	if strings.Contains(text, "OLDEST") {
		t.Error("oldest turn should be dropped by the budget")
	}
	if !strings.Contains(text, "NEWEST tail") {
		t.Error("newest turn must always survive")
	}
	if !strings.Contains(text, "omitted to fit the context budget") {
		t.Error("omission note missing")
	}
}

func TestBuildHistory_NewestTurnAlwaysIncluded(t *testing.T) {
	huge := strings.Repeat("x", 100_000)
	ctx := threadWith(Turn{Role: "user", Content: huge})

	text, _ := BuildHistory(ctx, modelContext(10_000))
	if !strings.Contains(text, "Turn 1") {
		t.Error("the single newest turn must be included even over budget")
	}
}

func TestBuildHistory_FileDedupNewestWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	if err := os.WriteFile(path, []byte("print('current')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := threadWith(
		Turn{Role: "user", Content: "look at a.py", Files: []string{path}},
		Turn{Role: "assistant", Content: "saw it"},
		Turn{Role: "user", Content: "re-read a.py", Files: []string{path}},
	)

	text, _ := BuildHistory(ctx, modelContext(200_000))
	if got := strings.Count(text, "--- BEGIN FILE: "+path); got != 1 {
		t.Errorf("file embedded %d times, want exactly 1", got)
	}
	// The older turn loses the reference annotation; the newest keeps it.
	turn1 := text[strings.Index(text, "--- Turn 1"):strings.Index(text, "--- Turn 2")]
	turn3 := text[strings.Index(text, "--- Turn 3"):]
	if strings.Contains(turn1, "[Files referenced") {
		t.Error("older duplicate reference should be dropped")
	}
	if !strings.Contains(turn3, "[Files referenced") {
		t.Error("newest reference should be kept")
	}
}

func TestBuildHistory_AddTurnRoundTrip(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	id := s.Create("chat", nil, "")
	s.AddTurn(id, Turn{Role: "user", Content: "alpha"})
	mc := modelContext(200_000)

	before, _ := BuildHistory(s.Get(id), mc)
	s.AddTurn(id, Turn{Role: "assistant", Content: "bravo-unique-token"})
	after, _ := BuildHistory(s.Get(id), mc)

	if strings.Contains(before, "bravo-unique-token") {
		t.Error("turn appeared before it was added")
	}
	if got := strings.Count(after, "bravo-unique-token"); got != 1 {
		t.Errorf("added turn appears %d times, want exactly once", got)
	}
}

func TestBuildHistory_Empty(t *testing.T) {
	if text, used := BuildHistory(nil, modelContext(1000)); text != "" || used != 0 {
		t.Errorf("nil context: (%q, %d)", text, used)
	}
	if text, used := BuildHistory(threadWith(), modelContext(1000)); text != "" || used != 0 {
		t.Errorf("empty thread: (%q, %d)", text, used)
	}
}
