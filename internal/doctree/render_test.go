package doctree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(s string) *TableCell { return &TableCell{Children: NewText(s)} }

func TestMarkdown_Blocks(t *testing.T) {
	t.Run("Should separate paragraphs with a blank line", func(t *testing.T) {
		out, err := Markdown(
			&Paragraph{Children: NewText("First.")},
			&Paragraph{Children: NewText("Second.")},
		)
		require.NoError(t, err)
		assert.Equal(t, "First.\n\nSecond.", out)
	})

	t.Run("Should render a table with a delimiter row after the header", func(t *testing.T) {
		tbl := &Table{Rows: []*TableRow{
			{Cells: []*TableCell{cell("Name"), cell("Role")}},
			{Cells: []*TableCell{cell("Ada"), cell("Engineer")}},
		}}
		out, err := Markdown(tbl)
		require.NoError(t, err)
		assert.Equal(t, "| Name | Role |\n| --- | --- |\n| Ada | Engineer |", out)
	})

	t.Run("Should escape pipes inside cells", func(t *testing.T) {
		out, err := Markdown(&TableRow{Cells: []*TableCell{cell("a|b")}})
		require.NoError(t, err)
		assert.Equal(t, `| a\|b |`, out)
	})

	t.Run("Should number ordered lists from Start", func(t *testing.T) {
		l := &List{Ordered: true, Start: 3, Children: []*ListItem{
			{Children: []Node{&Paragraph{Children: NewText("three")}}},
			{Children: []Node{&Paragraph{Children: NewText("four")}}},
		}}
		out, err := Markdown(l)
		require.NoError(t, err)
		assert.Equal(t, "3. three\n4. four", out)
	})

	t.Run("Should indent nested list content under its item", func(t *testing.T) {
		checked := true
		l := &List{Children: []*ListItem{{
			Checked: &checked,
			Children: []Node{
				&Paragraph{Children: NewText("parent")},
				&List{Children: []*ListItem{{Children: []Node{&Paragraph{Children: NewText("child")}}}}},
			},
		}}}
		out, err := Markdown(l)
		require.NoError(t, err)
		assert.Equal(t, "- [x] parent\n  - child", out)
	})

	t.Run("Should fence code blocks with their language", func(t *testing.T) {
		out, err := Markdown(&Code{Lang: "go", Value: "fmt.Println(1)\n"})
		require.NoError(t, err)
		assert.Equal(t, "```go\nfmt.Println(1)\n```", out)
	})

	t.Run("Should prefix blockquote lines", func(t *testing.T) {
		out, err := Markdown(&Blockquote{Children: []Node{
			&Paragraph{Children: NewText("one")},
			&Paragraph{Children: NewText("two")},
		}})
		require.NoError(t, err)
		assert.Equal(t, "> one\n>\n> two", out)
	})

	t.Run("Should fail on nil nodes", func(t *testing.T) {
		_, err := Markdown(&Table{Rows: []*TableRow{nil}})
		assert.Error(t, err)
	})
}

func TestPlainText(t *testing.T) {
	tbl := &Table{Rows: []*TableRow{
		{Cells: []*TableCell{cell("Name"), cell("Role")}},
		{Cells: []*TableCell{cell("Ada"), cell("Engineer")}},
	}}
	assert.Equal(t, "Name Role\nAda Engineer", PlainText(tbl))
	assert.Equal(t, "Skills", PlainText(&Heading{Level: 2, Children: NewText(" Skills ")}))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "listItem", KindListItem.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
