package doctree

// Kind discriminates block and inline nodes of a parsed document.
type Kind int

const (
	KindDocument Kind = iota
	KindHeading
	KindParagraph
	KindList
	KindListItem
	KindTable
	KindTableRow
	KindTableCell
	KindCode
	KindText
	KindBlockquote
)

var kindNames = [...]string{
	KindDocument:   "document",
	KindHeading:    "heading",
	KindParagraph:  "paragraph",
	KindList:       "list",
	KindListItem:   "listItem",
	KindTable:      "table",
	KindTableRow:   "tableRow",
	KindTableCell:  "tableCell",
	KindCode:       "code",
	KindText:       "text",
	KindBlockquote: "blockquote",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is implemented only by the types in this package. Consumers switch
// on the concrete type; the unexported method keeps the set closed.
type Node interface {
	Kind() Kind
	node()
}

// Document is the immutable root handed to the chunker.
type Document struct {
	Children []Node
}

// Heading is an ATX or setext heading. Level is 1-6.
type Heading struct {
	Level    int
	Children []Node
}

type Paragraph struct {
	Children []Node
}

// List holds its items in source order. Start is the first number of an
// ordered list and is ignored otherwise.
type List struct {
	Ordered  bool
	Start    int
	Children []*ListItem
}

// ListItem may contain paragraphs, nested lists, code and so on. Checked is
// non-nil for GFM task list items.
type ListItem struct {
	Checked  *bool
	Children []Node
}

// Table keeps the header as Rows[0].
type Table struct {
	Rows []*TableRow
}

type TableRow struct {
	Cells []*TableCell
}

type TableCell struct {
	Children []Node
}

// Code is a fenced or indented code block.
type Code struct {
	Lang  string
	Value string
}

// Text is inline content already flattened to its markdown form.
type Text struct {
	Value string
}

type Blockquote struct {
	Children []Node
}

func (*Document) Kind() Kind   { return KindDocument }
func (*Heading) Kind() Kind    { return KindHeading }
func (*Paragraph) Kind() Kind  { return KindParagraph }
func (*List) Kind() Kind       { return KindList }
func (*ListItem) Kind() Kind   { return KindListItem }
func (*Table) Kind() Kind      { return KindTable }
func (*TableRow) Kind() Kind   { return KindTableRow }
func (*TableCell) Kind() Kind  { return KindTableCell }
func (*Code) Kind() Kind       { return KindCode }
func (*Text) Kind() Kind       { return KindText }
func (*Blockquote) Kind() Kind { return KindBlockquote }

func (*Document) node()   {}
func (*Heading) node()    {}
func (*Paragraph) node()  {}
func (*List) node()       {}
func (*ListItem) node()   {}
func (*Table) node()      {}
func (*TableRow) node()   {}
func (*TableCell) node()  {}
func (*Code) node()       {}
func (*Text) node()       {}
func (*Blockquote) node() {}

// NewText builds a cell or paragraph body from a plain string.
func NewText(s string) []Node {
	return []Node{&Text{Value: s}}
}

// Header returns the header row of a table, or nil for an empty table.
func (t *Table) Header() *TableRow {
	if t == nil || len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

// IsEmpty reports whether the document has no block content.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.Children) == 0
}
