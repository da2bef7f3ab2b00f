package doctree

import (
	"fmt"
	"strconv"
	"strings"
)

// Markdown serializes nodes back to GitHub-flavored markdown. Sibling blocks
// are separated by a blank line. Tables always carry a delimiter row after
// the header so every fragment of a split table stays a valid table.
func Markdown(nodes ...Node) (string, error) {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		s, err := renderBlock(n)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func renderBlock(n Node) (string, error) {
	switch n := n.(type) {
	case *Document:
		return Markdown(n.Children...)
	case *Blockquote:
		inner, err := Markdown(n.Children...)
		if err != nil {
			return "", err
		}
		return prefixLines(inner, "> ", ">"), nil
	case *Heading:
		text, err := renderInline(n.Children)
		if err != nil {
			return "", err
		}
		level := min(max(n.Level, 1), 6)
		return strings.Repeat("#", level) + " " + text, nil
	case *Paragraph:
		return renderInline(n.Children)
	case *Text:
		return n.Value, nil
	case *Code:
		return "```" + n.Lang + "\n" + strings.TrimRight(n.Value, "\n") + "\n```", nil
	case *List:
		return renderList(n)
	case *ListItem:
		return renderItem(n, "-")
	case *Table:
		return renderTable(n)
	case *TableRow:
		return renderRow(n)
	case *TableCell:
		return renderCell(n)
	case nil:
		return "", fmt.Errorf("render: nil node")
	default:
		return "", fmt.Errorf("render: unsupported node %T", n)
	}
}

func renderInline(children []Node) (string, error) {
	var sb strings.Builder
	for _, c := range children {
		switch c := c.(type) {
		case *Text:
			sb.WriteString(c.Value)
		default:
			s, err := renderBlock(c)
			if err != nil {
				return "", err
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(s)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func renderList(l *List) (string, error) {
	start := l.Start
	if start <= 0 {
		start = 1
	}
	items := make([]string, 0, len(l.Children))
	for i, item := range l.Children {
		marker := "-"
		if l.Ordered {
			marker = strconv.Itoa(start+i) + "."
		}
		s, err := renderItem(item, marker)
		if err != nil {
			return "", err
		}
		items = append(items, s)
	}
	return strings.Join(items, "\n"), nil
}

func renderItem(item *ListItem, marker string) (string, error) {
	if item == nil {
		return "", fmt.Errorf("render: nil list item")
	}
	body := make([]string, 0, len(item.Children))
	for _, c := range item.Children {
		s, err := renderBlock(c)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(s) != "" {
			body = append(body, s)
		}
	}
	prefix := marker + " "
	if item.Checked != nil {
		if *item.Checked {
			prefix += "[x] "
		} else {
			prefix += "[ ] "
		}
	}
	indent := strings.Repeat(" ", len(marker)+1)
	text := prefixLines(strings.Join(body, "\n"), indent, "")
	return prefix + strings.TrimPrefix(text, indent), nil
}

func renderTable(t *Table) (string, error) {
	if len(t.Rows) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(t.Rows)+1)
	for i, row := range t.Rows {
		s, err := renderRow(row)
		if err != nil {
			return "", err
		}
		lines = append(lines, s)
		if i == 0 {
			lines = append(lines, delimiterRow(len(row.Cells)))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func delimiterRow(columns int) string {
	columns = max(columns, 1)
	return "|" + strings.Repeat(" --- |", columns)
}

func renderRow(r *TableRow) (string, error) {
	if r == nil {
		return "", fmt.Errorf("render: nil table row")
	}
	var sb strings.Builder
	sb.WriteString("|")
	for _, c := range r.Cells {
		s, err := renderCell(c)
		if err != nil {
			return "", err
		}
		if s == "" {
			sb.WriteString(" |")
			continue
		}
		sb.WriteString(" " + s + " |")
	}
	return sb.String(), nil
}

func renderCell(c *TableCell) (string, error) {
	if c == nil {
		return "", fmt.Errorf("render: nil table cell")
	}
	s, err := renderInline(c.Children)
	if err != nil {
		return "", err
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`), nil
}

func prefixLines(s, prefix, emptyPrefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = emptyPrefix
			continue
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// PlainText returns the textual content of a node without markdown syntax.
// Inline content is concatenated; blocks, rows and cells are separated by
// whitespace so words from adjacent blocks never merge.
func PlainText(n Node) string {
	switch n := n.(type) {
	case *Text:
		return n.Value
	case *Code:
		return n.Value
	case *Heading:
		return inlineText(n.Children)
	case *Paragraph:
		return inlineText(n.Children)
	case *TableCell:
		if n == nil {
			return ""
		}
		return inlineText(n.Children)
	case *TableRow:
		if n == nil {
			return ""
		}
		cells := make([]string, 0, len(n.Cells))
		for _, c := range n.Cells {
			cells = append(cells, PlainText(c))
		}
		return strings.Join(cells, " ")
	case *Table:
		rows := make([]string, 0, len(n.Rows))
		for _, r := range n.Rows {
			rows = append(rows, PlainText(r))
		}
		return strings.Join(rows, "\n")
	case *List:
		items := make([]string, 0, len(n.Children))
		for _, it := range n.Children {
			items = append(items, PlainText(it))
		}
		return strings.Join(items, "\n")
	case *ListItem:
		if n == nil {
			return ""
		}
		return blockText(n.Children)
	case *Blockquote:
		return blockText(n.Children)
	case *Document:
		return blockText(n.Children)
	default:
		return ""
	}
}

func inlineText(children []Node) string {
	var sb strings.Builder
	for _, c := range children {
		sb.WriteString(PlainText(c))
	}
	return strings.TrimSpace(sb.String())
}

func blockText(children []Node) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		if s := PlainText(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
