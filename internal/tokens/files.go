package tokens

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// ErrUnsupportedContentType marks file types token estimation refuses to
// guess at (audio, video, unknown binaries). Callers must decide; there is
// deliberately no fallback constant for these.
var ErrUnsupportedContentType = errors.New("tokens: unsupported content type")

// fileReadCap bounds how much of a text file is read for estimation.
const fileReadCap = 1 << 20 // 1 MiB

// fileDelimiterOverhead covers the BEGIN/END framing the file reader adds
// around each embedded file.
const fileDelimiterOverhead = 50

// defaultVisionTokens is the flat image cost for providers with no declared
// vision formula.
const defaultVisionTokens = 765

var textExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".rb": true, ".rs": true, ".php": true, ".swift": true, ".kt": true, ".scala": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true, ".sql": true, ".r": true,
	".md": true, ".txt": true, ".rst": true, ".tex": true, ".log": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true,
	".html": true, ".css": true, ".scss": true, ".ini": true, ".cfg": true,
	".conf": true, ".env": true, ".properties": true, ".gradle": true,
	".dockerfile": true, ".makefile": true, ".cmake": true, ".proto": true,
	".vue": true, ".svelte": true, ".dart": true, ".lua": true, ".pl": true,
	".ex": true, ".exs": true, ".erl": true, ".zig": true, ".nim": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true,
}

var unsupportedExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true,
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

// EstimateFile estimates the token cost of embedding path for a model with
// the given capabilities. Returns ErrUnsupportedContentType for file types
// the model cannot process.
func (e *Estimator) EstimateFile(path string, caps provider.ModelCapabilities, counter Counter) (int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))

	switch {
	case textExtensions[ext] || base == "makefile" || base == "dockerfile" || ext == "":
		return e.estimateTextFile(path, caps.ModelName, counter)
	case imageExtensions[ext]:
		return e.estimateImage(caps)
	case ext == ".pdf":
		return e.estimatePDF(path, caps, counter)
	case unsupportedExtensions[ext]:
		return 0, fmt.Errorf("%w: %s files (%s)", ErrUnsupportedContentType, ext, path)
	default:
		return 0, fmt.Errorf("%w: %s (%s)", ErrUnsupportedContentType, ext, path)
	}
}

func (e *Estimator) estimateTextFile(path, model string, counter Counter) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("tokens: open %s: %w", path, err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, fileReadCap))
	if err != nil {
		return 0, fmt.Errorf("tokens: read %s: %w", path, err)
	}
	return e.EstimateText(string(body), model, counter) + fileDelimiterOverhead, nil
}

func (e *Estimator) estimateImage(caps provider.ModelCapabilities) (int, error) {
	if !caps.SupportsImages {
		return 0, fmt.Errorf("%w: model %s does not accept images", ErrUnsupportedContentType, caps.ModelName)
	}
	if caps.Tokenizer == provider.TokenizerO200K {
		// OpenAI high-detail formula for an image of unknown dimensions,
		// assumed one 512px tile plus the base cost.
		return 85 + 170, nil
	}
	return defaultVisionTokens, nil
}

// pdfPage holds the per-page geometry read from the PDF object stream.
type pdfPage struct {
	width, height float64 // points, after rotation
}

var (
	pdfPageRe     = regexp.MustCompile(`/Type\s*/Page[^s]`)
	pdfMediaBoxRe = regexp.MustCompile(`/MediaBox\s*\[\s*([\d.+-]+)\s+([\d.+-]+)\s+([\d.+-]+)\s+([\d.+-]+)\s*\]`)
	pdfRotateRe   = regexp.MustCompile(`/Rotate\s+(\d+)`)
	pdfLiteralRe  = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*T[jJ]`)
)

// estimatePDF costs a PDF as rendered page images plus extracted text.
// Geometry is read directly from the object stream (media boxes, rotation);
// text extraction covers uncompressed Tj literals, an approximation that
// is fine since the result only feeds the budgeter.
func (e *Estimator) estimatePDF(path string, caps provider.ModelCapabilities, counter Counter) (int, error) {
	if !caps.SupportsImages {
		return 0, fmt.Errorf("%w: model %s cannot view PDF pages", ErrUnsupportedContentType, caps.ModelName)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("tokens: read %s: %w", path, err)
	}
	pages := parsePDFPages(raw)
	if len(pages) == 0 {
		// Malformed or fully compressed structure; assume one default page.
		pages = []pdfPage{{width: 612, height: 792}}
	}

	total := 0
	for _, p := range pages {
		total += visionTilesTokens(p.width, p.height, caps)
	}

	var sb strings.Builder
	for _, m := range pdfLiteralRe.FindAllSubmatch(raw, -1) {
		sb.Write(m[1])
		sb.WriteByte('\n')
	}
	if sb.Len() > 0 {
		total += e.EstimateText(sb.String(), caps.ModelName, counter)
	}
	return total + fileDelimiterOverhead, nil
}

// parsePDFPages extracts page dimensions, applying /Rotate to swap axes.
// Media boxes and rotations are matched positionally against page objects;
// when counts disagree the last seen box is reused (inherited attributes).
func parsePDFPages(raw []byte) []pdfPage {
	pageCount := len(pdfPageRe.FindAll(raw, -1))
	if pageCount == 0 {
		return nil
	}
	boxes := pdfMediaBoxRe.FindAllSubmatch(raw, -1)
	rotations := pdfRotateRe.FindAllSubmatch(raw, -1)

	pages := make([]pdfPage, 0, pageCount)
	lastW, lastH := 612.0, 792.0 // US Letter default
	for i := 0; i < pageCount; i++ {
		if i < len(boxes) {
			x0, _ := strconv.ParseFloat(string(boxes[i][1]), 64)
			y0, _ := strconv.ParseFloat(string(boxes[i][2]), 64)
			x1, _ := strconv.ParseFloat(string(boxes[i][3]), 64)
			y1, _ := strconv.ParseFloat(string(boxes[i][4]), 64)
			lastW, lastH = math.Abs(x1-x0), math.Abs(y1-y0)
		}
		w, h := lastW, lastH
		if i < len(rotations) {
			if deg, err := strconv.Atoi(string(rotations[i][1])); err == nil && deg%180 == 90 {
				w, h = h, w
			}
		}
		pages = append(pages, pdfPage{width: w, height: h})
	}
	return pages
}

// visionTilesTokens applies the provider's tile formula to a page of the
// given size in points (rendered at 1px per point).
func visionTilesTokens(w, h float64, caps provider.ModelCapabilities) int {
	if caps.Tokenizer == provider.TokenizerO200K {
		tilesX := int(math.Ceil(w / 512))
		tilesY := int(math.Ceil(h / 512))
		if tilesX < 1 {
			tilesX = 1
		}
		if tilesY < 1 {
			tilesY = 1
		}
		return 85 + 170*tilesX*tilesY
	}
	// Gemini-style flat per-image cost.
	return 258
}
