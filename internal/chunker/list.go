package chunker

import (
	"github.com/dgallion1/talentvec/internal/doctree"
)

// handleList keeps a list whole when it fits. Otherwise adjacent items are
// packed greedily into sub-lists; ordered sub-lists keep their original
// numbering. A single item over budget is emitted alone and split later.
func (c *Chunker) handleList(l *doctree.List, st state) (state, error) {
	if len(l.Children) == 0 {
		return st, nil
	}
	_, words, err := c.render(l)
	if err != nil {
		return st, err
	}
	capacity := c.capacity(st)
	if words <= capacity {
		return c.handleBlock(l, words, st), nil
	}

	st = c.flush(st)

	start := max(l.Start, 1)
	var group []*doctree.ListItem
	groupStart := start
	groupWords := 0
	emitGroup := func() {
		if len(group) == 0 {
			return
		}
		sub := &doctree.List{Ordered: l.Ordered, Start: groupStart, Children: group}
		st = c.emit(sub, groupWords, st)
		group = nil
		groupWords = 0
	}

	for i, item := range l.Children {
		single := &doctree.List{Ordered: l.Ordered, Start: start + i, Children: []*doctree.ListItem{item}}
		_, itemWords, err := c.render(single)
		if err != nil {
			return st, err
		}
		if len(group) > 0 && groupWords+itemWords > capacity {
			emitGroup()
		}
		if len(group) == 0 {
			groupStart = start + i
		}
		group = append(group, item)
		groupWords += itemWords
	}
	emitGroup()
	return st, nil
}
