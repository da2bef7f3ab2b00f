package chunker

import (
	"github.com/dgallion1/talentvec/internal/doctree"
)

const (
	continuedMarker = "(Continued from previous section)"
	elisionMarker   = "..."
)

// handleTable keeps a table whole when it fits. Otherwise rows are packed
// into groups that each repeat the header row, and a row that cannot fit
// even alone is split into column groups.
func (c *Chunker) handleTable(t *doctree.Table, st state) (state, error) {
	if len(t.Rows) == 0 {
		return st, nil
	}
	_, words, err := c.render(t)
	if err != nil {
		return st, err
	}
	capacity := c.capacity(st)
	if words <= capacity || len(t.Rows) == 1 {
		return c.handleBlock(t, words, st), nil
	}

	header := t.Header()
	_, headerWords, err := c.render(&doctree.Table{Rows: []*doctree.TableRow{header}})
	if err != nil {
		return st, err
	}

	st = c.flush(st)

	var group []*doctree.TableRow
	groupWords := headerWords
	emitGroup := func() {
		if len(group) == 0 {
			return
		}
		rows := append([]*doctree.TableRow{header}, group...)
		st = c.emit(&doctree.Table{Rows: rows}, groupWords, st)
		group = nil
		groupWords = headerWords
	}

	for _, row := range t.Rows[1:] {
		_, rowWords, err := c.render(row)
		if err != nil {
			return st, err
		}
		if len(group) > 0 && groupWords+rowWords > capacity {
			emitGroup()
		}
		if headerWords+rowWords > capacity {
			st, err = c.splitRowColumns(header, row, capacity, st)
			if err != nil {
				return st, err
			}
			continue
		}
		group = append(group, row)
		groupWords += rowWords
	}
	emitGroup()
	return st, nil
}

// splitRowColumns emits one header+row table per contiguous column range.
// Every range after the first is prefixed with a continuation marker.
func (c *Chunker) splitRowColumns(header, row *doctree.TableRow, capacity int, st state) (state, error) {
	columns := max(len(header.Cells), len(row.Cells))
	maxCells := max(2, columns/2)

	for start := 0; start < columns; {
		end := start + 1
		table := columnSlice(header, row, start, end)
		_, words, err := c.render(table)
		if err != nil {
			return st, err
		}
		for end < columns && end-start < maxCells {
			wider := columnSlice(header, row, start, end+1)
			_, w, err := c.render(wider)
			if err != nil {
				return st, err
			}
			if w > capacity {
				break
			}
			table, words = wider, w
			end++
		}
		st = c.emit(table, words, st)
		start = end
	}
	return st, nil
}

func columnSlice(header, row *doctree.TableRow, start, end int) *doctree.Table {
	h := &doctree.TableRow{Cells: cellRange(header, start, end)}
	r := &doctree.TableRow{Cells: cellRange(row, start, end)}
	if start > 0 {
		h.Cells = append([]*doctree.TableCell{noteCell(continuedMarker)}, h.Cells...)
		r.Cells = append([]*doctree.TableCell{noteCell(elisionMarker)}, r.Cells...)
	}
	return &doctree.Table{Rows: []*doctree.TableRow{h, r}}
}

// cellRange pads short rows with empty cells so header and data stay
// aligned on the same column offsets.
func cellRange(row *doctree.TableRow, start, end int) []*doctree.TableCell {
	cells := make([]*doctree.TableCell, 0, end-start)
	for i := start; i < end; i++ {
		if i < len(row.Cells) && row.Cells[i] != nil {
			cells = append(cells, row.Cells[i])
			continue
		}
		cells = append(cells, &doctree.TableCell{})
	}
	return cells
}

func noteCell(text string) *doctree.TableCell {
	return &doctree.TableCell{Children: doctree.NewText(text)}
}
