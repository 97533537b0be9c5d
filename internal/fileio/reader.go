package fileio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// chunkSize is the streaming read unit for large files.
	chunkSize = 8 * 1024
	// maxFileBytes caps any single read.
	maxFileBytes = 100 << 20 // 100 MiB
	// streamThreshold switches from whole-file to chunked reading.
	streamThreshold = 1 << 20 // 1 MiB
)

// ReadOptions controls formatting of a read.
type ReadOptions struct {
	LineNumbers bool // prefix each line with "NNNN│ "
}

// ReadFile reads path (already validated) and returns a framed block:
//
//	--- BEGIN FILE: /abs/path ---
//	<body>
//	--- END FILE: /abs/path ---
//
// Errors come back as a framed ERROR block instead of a Go error so the
// model sees why content is missing; the bool reports success for callers
// that need to distinguish.
func (v *Validator) ReadFile(raw string, opts ReadOptions) (string, bool) {
	path, err := v.Resolve(raw)
	if err != nil {
		return errorBlock(raw, err), false
	}

	info, err := os.Stat(path)
	if err != nil {
		return errorBlock(raw, fmt.Errorf("stat: %w", err)), false
	}
	if info.IsDir() {
		return errorBlock(raw, fmt.Errorf("is a directory; list it or pass individual files")), false
	}
	if info.Size() > maxFileBytes {
		return errorBlock(raw, fmt.Errorf("file is %d bytes, above the %d-byte cap", info.Size(), maxFileBytes)), false
	}

	body, err := readBody(path, info.Size())
	if err != nil {
		return errorBlock(raw, err), false
	}

	body = normalizeNewlines(body)
	if opts.LineNumbers {
		body = numberLines(body)
	}
	return fmt.Sprintf("--- BEGIN FILE: %s ---\n%s\n--- END FILE: %s ---", path, strings.TrimSuffix(body, "\n"), path), true
}

// readBody picks the read strategy by size: one call for small files,
// buffered chunked streaming for large ones so a slow disk never holds a
// whole scheduler thread with a single giant read.
func readBody(path string, size int64) (string, error) {
	if size <= streamThreshold {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		return string(data), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	sb.Grow(int(size))
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}
	return sb.String(), nil
}

// normalizeNewlines converts CRLF and bare CR line endings to LF so line
// numbering is stable across platforms.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// numberLines prefixes each line with "NNNN│ ". Width grows with the line
// count but never drops below 4 digits.
func numberLines(s string) string {
	lines := strings.Split(s, "\n")
	width := len(fmt.Sprintf("%d", len(lines)))
	if width < 4 {
		width = 4
	}

	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	for i, line := range lines {
		fmt.Fprintf(w, "%*d│ %s\n", width, i+1, line)
	}
	w.Flush()
	return strings.TrimSuffix(sb.String(), "\n")
}

func errorBlock(path string, err error) string {
	return fmt.Sprintf("--- ERROR READING FILE: %s: %v ---", path, err)
}

// ReadFiles reads every path and concatenates the framed blocks, errors
// included, separated by blank lines.
func (v *Validator) ReadFiles(paths []string, opts ReadOptions) string {
	blocks := make([]string, 0, len(paths))
	for _, p := range paths {
		block, _ := v.ReadFile(p, opts)
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}
