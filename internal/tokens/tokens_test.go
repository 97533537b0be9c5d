package tokens

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// ratioOnly forces the ratio path regardless of model family, keeping tests
// independent of tiktoken BPE data availability.
type ratioOnly struct{}

func (ratioOnly) CountTokens(text, _ string) (int, bool) { return len(text) / 4, true }

func TestEstimateText_Monotone(t *testing.T) {
	e := NewEstimator()
	a := strings.Repeat("alpha ", 100)
	b := strings.Repeat("beta ", 50)

	ea := e.EstimateText(a, "unknown-model", nil)
	eb := e.EstimateText(b, "unknown-model", nil)
	eab := e.EstimateText(a+b, "unknown-model", nil)
	if eab < ea || eab < eb {
		t.Errorf("monotonicity violated: est(a+b)=%d, est(a)=%d, est(b)=%d", eab, ea, eb)
	}
}

func TestEstimateText_CacheHit(t *testing.T) {
	e := NewEstimator()
	text := "the same text twice"

	first := e.EstimateText(text, "grok-3", nil)
	hitsBefore := e.cache.Stats().Hits
	second := e.EstimateText(text, "grok-3", nil)

	if first != second {
		t.Errorf("cached estimate differs: %d vs %d", first, second)
	}
	if e.cache.Stats().Hits != hitsBefore+1 {
		t.Error("expected a cache hit on repeat estimate")
	}
}

func TestEstimateText_ModelKeysDistinct(t *testing.T) {
	if cacheKey("abc", "o3") == cacheKey("abc", "grok-3") {
		t.Error("cache keys must include the model")
	}
}

func TestEstimateText_ProviderCounterWins(t *testing.T) {
	e := NewEstimator()
	got := e.EstimateText("12345678", "whatever", ratioOnly{})
	if got != 2 {
		t.Errorf("provider counter ignored: got %d, want 2", got)
	}
}

func TestAllocation_Slices(t *testing.T) {
	a := NewAllocation(100_000)
	if a.ContentTokens != 75_000 || a.ResponseTokens != 25_000 {
		t.Errorf("content/response split wrong: %+v", a)
	}
	if a.FileTokens != 30_000 || a.HistoryTokens != 30_000 {
		t.Errorf("file/history bounds wrong: %+v", a)
	}
	if a.ContentTokens+a.ResponseTokens != a.ContextWindow {
		t.Error("slices must partition the window")
	}
}

func TestPreflight_Thresholds(t *testing.T) {
	cases := []struct {
		window   int
		fraction float64
	}{
		{1_048_576, 0.8},
		{600_000, 0.7},
		{200_000, 0.6},
	}
	for _, c := range cases {
		limit := int(float64(NewAllocation(c.window).FileTokens) * c.fraction)

		if err := Preflight("m", c.window, []int{limit}); err != nil {
			t.Errorf("window %d: at-limit request rejected: %v", c.window, err)
		}
		err := Preflight("m", c.window, []int{limit + 1})
		var tooLarge *CodeTooLargeError
		if !errors.As(err, &tooLarge) {
			t.Fatalf("window %d: expected CodeTooLargeError, got %v", c.window, err)
		}
		if tooLarge.Limit != limit || tooLarge.ContextWindow != c.window {
			t.Errorf("window %d: bad payload %+v", c.window, tooLarge)
		}
	}
}

func TestEstimateFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.go")
	body := strings.Repeat("package main\n", 50)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEstimator()
	got, err := e.EstimateFile(path, provider.ModelCapabilities{ModelName: "grok-3"}, nil)
	if err != nil {
		t.Fatalf("EstimateFile: %v", err)
	}
	want := len(body)/4 + fileDelimiterOverhead
	if got != want {
		t.Errorf("EstimateFile = %d, want %d", got, want)
	}
}

func TestEstimateFile_ImageFallback(t *testing.T) {
	e := NewEstimator()
	caps := provider.ModelCapabilities{ModelName: "gemini-2.5-pro", SupportsImages: true}
	got, err := e.EstimateFile("/img/shot.png", caps, nil)
	if err != nil {
		t.Fatalf("EstimateFile: %v", err)
	}
	if got != defaultVisionTokens {
		t.Errorf("image fallback = %d, want %d", got, defaultVisionTokens)
	}

	// Vision-less model must refuse rather than guess.
	_, err = e.EstimateFile("/img/shot.png", provider.ModelCapabilities{ModelName: "grok-3"}, nil)
	if !errors.Is(err, ErrUnsupportedContentType) {
		t.Errorf("expected ErrUnsupportedContentType, got %v", err)
	}
}

func TestEstimateFile_UnsupportedTypes(t *testing.T) {
	e := NewEstimator()
	caps := provider.ModelCapabilities{ModelName: "gemini-2.5-pro", SupportsImages: true}
	for _, p := range []string{"/a/track.mp3", "/a/clip.mp4", "/a/blob.bin"} {
		if _, err := e.EstimateFile(p, caps, nil); !errors.Is(err, ErrUnsupportedContentType) {
			t.Errorf("%s: expected ErrUnsupportedContentType, got %v", p, err)
		}
	}
}

func TestParsePDFPages(t *testing.T) {
	raw := []byte(`1 0 obj << /Type /Page /MediaBox [0 0 612 792] /Rotate 90 >> endobj
2 0 obj << /Type /Page /MediaBox [0 0 595 842] >> endobj
3 0 obj << /Type /Pages /Count 2 >> endobj`)

	pages := parsePDFPages(raw)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages (the /Pages node must not count), got %d", len(pages))
	}
	if pages[0].width != 792 || pages[0].height != 612 {
		t.Errorf("rotation not applied: %+v", pages[0])
	}
	if pages[1].width != 595 || pages[1].height != 842 {
		t.Errorf("second page geometry wrong: %+v", pages[1])
	}
}

func TestVisionTilesTokens(t *testing.T) {
	o200k := provider.ModelCapabilities{Tokenizer: provider.TokenizerO200K}
	if got := visionTilesTokens(612, 792, o200k); got != 85+170*2*2 {
		t.Errorf("o200k tile formula: got %d", got)
	}
	flat := provider.ModelCapabilities{Tokenizer: provider.TokenizerProviderSpecific}
	if got := visionTilesTokens(612, 792, flat); got != 258 {
		t.Errorf("flat per-page cost: got %d", got)
	}
}
