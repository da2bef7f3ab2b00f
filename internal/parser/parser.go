package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Converter turns an uploaded document into markdown for the chunker.
type Converter interface {
	Convert(r io.Reader, filename string) (string, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes converters that shell out or fall back.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the appropriate converter for a filename.
func ForFile(filename string, opts Options) (Converter, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextConverter{}, nil
	case ".md", ".markdown":
		return &MarkdownConverter{}, nil
	case ".csv":
		return &CSVConverter{}, nil
	case ".html", ".htm":
		return &HTMLConverter{}, nil
	case ".pdf":
		return &PDFConverter{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXConverter{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// TitleFromFilename strips directories and the extension.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// escapeCell keeps user text from breaking a generated markdown table.
func escapeCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func markdownTable(header []string, rows [][]string) string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for _, c := range cells {
			if c = escapeCell(c); c == "" {
				sb.WriteString(" |")
				continue
			}
			sb.WriteString(" " + c + " |")
		}
		sb.WriteString("\n")
	}
	writeRow(header)
	sb.WriteString("|" + strings.Repeat(" --- |", max(len(header), 1)) + "\n")
	for _, r := range rows {
		// GFM drops cells beyond the header width.
		if len(r) > len(header) {
			r = r[:len(header)]
		}
		writeRow(r)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
