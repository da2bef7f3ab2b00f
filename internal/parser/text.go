package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextConverter turns plain text into markdown paragraphs.
type TextConverter struct{}

func (c *TextConverter) Convert(r io.Reader, filename string) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			// Two trailing spaces keep the line break as a markdown hard break.
			current.WriteString("  \n")
		}
		current.WriteString(escapeMarkdownLine(line))
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return strings.Join(paragraphs, "\n\n"), nil
}

// escapeMarkdownLine stops plain text that happens to look like a heading
// or a fence from being parsed as one.
func escapeMarkdownLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	switch {
	case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "```"), strings.HasPrefix(trimmed, ">"):
		return `\` + trimmed
	}
	return line
}
