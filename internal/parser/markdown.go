package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/talentvec/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var gfm = goldmark.New(goldmark.WithExtensions(
	extension.Table,
	extension.Strikethrough,
	extension.TaskList,
	extension.Linkify,
))

// ParseMarkdown parses GitHub-flavored markdown into a document tree.
func ParseMarkdown(src []byte) *doctree.Document {
	root := gfm.Parser().Parse(text.NewReader(src))
	return &doctree.Document{Children: convertBlocks(root, src)}
}

// MarkdownConverter passes markdown uploads through unchanged.
type MarkdownConverter struct{}

func (c *MarkdownConverter) Convert(r io.Reader, filename string) (string, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(src), nil
}

func convertBlocks(parent ast.Node, src []byte) []doctree.Node {
	var out []doctree.Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if node := convertBlock(n, src); node != nil {
			out = append(out, node)
		}
	}
	return out
}

func convertBlock(n ast.Node, src []byte) doctree.Node {
	switch n := n.(type) {
	case *ast.Heading:
		return &doctree.Heading{Level: n.Level, Children: convertInline(n, src)}
	case *ast.Paragraph, *ast.TextBlock:
		children := convertInline(n, src)
		if len(children) == 0 {
			return nil
		}
		return &doctree.Paragraph{Children: children}
	case *ast.List:
		list := &doctree.List{Ordered: n.IsOrdered(), Start: n.Start}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if li, ok := c.(*ast.ListItem); ok {
				list.Children = append(list.Children, convertListItem(li, src))
			}
		}
		return list
	case *ast.FencedCodeBlock:
		return &doctree.Code{Lang: string(n.Language(src)), Value: blockLines(n, src)}
	case *ast.CodeBlock:
		return &doctree.Code{Value: blockLines(n, src)}
	case *ast.Blockquote:
		return &doctree.Blockquote{Children: convertBlocks(n, src)}
	case *ast.HTMLBlock:
		raw := strings.TrimSpace(blockLines(n, src))
		if raw == "" {
			return nil
		}
		return &doctree.Paragraph{Children: doctree.NewText(raw)}
	case *extast.Table:
		return convertTable(n, src)
	case *ast.ThematicBreak:
		return nil
	default:
		if n.Type() == ast.TypeBlock && n.HasChildren() {
			return &doctree.Blockquote{Children: convertBlocks(n, src)}
		}
		return nil
	}
}

func convertListItem(li *ast.ListItem, src []byte) *doctree.ListItem {
	item := &doctree.ListItem{Children: convertBlocks(li, src)}
	// A task checkbox is the first inline of the item's first text block.
	if first := li.FirstChild(); first != nil {
		if cb, ok := first.FirstChild().(*extast.TaskCheckBox); ok {
			checked := cb.IsChecked
			item.Checked = &checked
		}
	}
	return item
}

func convertTable(t *extast.Table, src []byte) *doctree.Table {
	table := &doctree.Table{}
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		row := &doctree.TableRow{}
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			if _, ok := c.(*extast.TableCell); !ok {
				continue
			}
			row.Cells = append(row.Cells, &doctree.TableCell{Children: convertInline(c, src)})
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// convertInline flattens inline children into a single text node, keeping
// the light markdown syntax that carries meaning for retrieval.
func convertInline(n ast.Node, src []byte) []doctree.Node {
	var buf bytes.Buffer
	writeInline(&buf, n, src)
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return doctree.NewText(s)
}

func writeInline(buf *bytes.Buffer, parent ast.Node, src []byte) {
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(src))
			if c.HardLineBreak() {
				buf.WriteByte('\n')
			} else if c.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(c.Value)
		case *ast.CodeSpan:
			buf.WriteByte('`')
			writeInline(buf, c, src)
			buf.WriteByte('`')
		case *ast.Emphasis:
			mark := "_"
			if c.Level >= 2 {
				mark = "**"
			}
			buf.WriteString(mark)
			writeInline(buf, c, src)
			buf.WriteString(mark)
		case *extast.Strikethrough:
			buf.WriteString("~~")
			writeInline(buf, c, src)
			buf.WriteString("~~")
		case *ast.Link:
			buf.WriteByte('[')
			writeInline(buf, c, src)
			buf.WriteString("](")
			buf.Write(c.Destination)
			buf.WriteByte(')')
		case *ast.AutoLink:
			buf.Write(c.URL(src))
		case *ast.Image:
			writeInline(buf, c, src)
		case *extast.TaskCheckBox, *ast.RawHTML:
			// Checkbox state lives on the list item; inline html is dropped.
		default:
			writeInline(buf, c, src)
		}
	}
}

func blockLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.String()
}
