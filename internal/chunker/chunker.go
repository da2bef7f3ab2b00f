package chunker

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/dgallion1/talentvec/internal/doctree"
	"github.com/dgallion1/talentvec/internal/parser"
)

// Options controls chunking behavior.
type Options struct {
	MaxTokensPerChunk int // Estimated-token ceiling for one chunk, header path included.
	MaxWordsPerChunk  int // Word ceiling; zero derives it from MaxTokensPerChunk.
	MaxWordsHeader    int // Header paths longer than this are abbreviated.
	PathSeparator     string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokensPerChunk: 600,
		MaxWordsPerChunk:  120,
		MaxWordsHeader:    45,
		PathSeparator:     " > ",
	}
}

// Chunker splits a document tree into header-prefixed chunks that each
// stay within the configured word and token budgets.
type Chunker struct {
	opts      Options
	wordLimit int
	log       *slog.Logger
}

// New builds a Chunker. Zero-valued options fall back to the defaults,
// except MaxWordsPerChunk where zero means "derive from the token limit".
func New(opts Options, log *slog.Logger) *Chunker {
	def := DefaultOptions()
	if opts.MaxTokensPerChunk <= 0 {
		opts.MaxTokensPerChunk = def.MaxTokensPerChunk
	}
	if opts.MaxWordsHeader <= 0 {
		opts.MaxWordsHeader = def.MaxWordsHeader
	}
	if opts.PathSeparator == "" {
		opts.PathSeparator = def.PathSeparator
	}
	if log == nil {
		log = slog.Default()
	}

	limit := WordsForTokens(opts.MaxTokensPerChunk)
	if opts.MaxWordsPerChunk > 0 {
		limit = min(limit, opts.MaxWordsPerChunk)
	}
	return &Chunker{opts: opts, wordLimit: max(limit, 1), log: log}
}

// Options returns the effective options.
func (c *Chunker) Options() Options { return c.opts }

// WordLimit is the effective per-chunk word ceiling.
func (c *Chunker) WordLimit() int { return c.wordLimit }

// WithTokenLimit returns a copy of c whose per-chunk token ceiling is tokens.
func (c *Chunker) WithTokenLimit(tokens int) *Chunker {
	opts := c.opts
	opts.MaxTokensPerChunk = tokens
	return New(opts, c.log)
}

// ChunkMarkdown parses GitHub-flavored markdown and chunks it.
func (c *Chunker) ChunkMarkdown(src, title string) []string {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	return c.Chunk(parser.ParseMarkdown([]byte(src)), title)
}

// Chunk walks doc depth-first and returns its chunks in source order. A
// node that fails to process is logged and dropped; traversal continues.
func (c *Chunker) Chunk(doc *doctree.Document, title string) []string {
	if doc.IsEmpty() {
		return nil
	}

	st := c.initialState(title)
	stack := []doctree.Node{doc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if children := containerChildren(n); children != nil {
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
			continue
		}

		next, err := c.safeStep(n, st)
		if err != nil {
			c.log.Warn("dropping document node", "kind", kindOf(n), "error", err)
			continue
		}
		st = next
	}
	st = c.flush(st)
	st = c.closeEmptySection(st, 0)

	out := st.chunks[:0]
	for _, chunk := range st.chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out
}

// state is threaded through the traversal. Steps return a new value and
// the previous one is kept when a step fails.
type heading struct {
	level int
	text  string
}

type state struct {
	title       string
	headings    []heading
	header      string
	headerWords int
	buffer      []doctree.Node
	words       int
	chunks      []string

	// open is the level of the latest significant heading that has no
	// content yet, or zero. openHeader is the path it introduced.
	open       int
	openHeader string
}

func (c *Chunker) initialState(title string) state {
	st := state{title: strings.TrimSpace(title)}
	return c.withHeadings(st, nil)
}

func (c *Chunker) withHeadings(st state, headings []heading) state {
	st.headings = headings
	var parts []string
	if st.title != "" {
		parts = append(parts, st.title)
	}
	for _, h := range headings {
		parts = append(parts, h.text)
	}
	st.header = c.formatHeaderPath(parts)
	st.headerWords = CountWords(st.header)
	return st
}

func (c *Chunker) formatHeaderPath(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	full := strings.Join(parts, c.opts.PathSeparator)
	if len(parts) > 3 && CountWords(full) > c.opts.MaxWordsHeader {
		short := []string{parts[0], "...", parts[len(parts)-2], parts[len(parts)-1]}
		return strings.Join(short, c.opts.PathSeparator)
	}
	return full
}

// capacity is the word budget left for content once the header path is
// accounted for. A path that eats the whole budget is dropped at flush.
func (c *Chunker) capacity(st state) int {
	if st.headerWords >= c.wordLimit {
		return c.wordLimit
	}
	return c.wordLimit - st.headerWords
}

func containerChildren(n doctree.Node) []doctree.Node {
	switch n := n.(type) {
	case *doctree.Document:
		if n == nil {
			return nil
		}
		return nonNil(n.Children)
	case *doctree.Blockquote:
		if n == nil {
			return nil
		}
		return nonNil(n.Children)
	case *doctree.ListItem:
		if n == nil {
			return nil
		}
		return nonNil(n.Children)
	}
	return nil
}

// nonNil keeps empty containers distinguishable from leaf nodes.
func nonNil(children []doctree.Node) []doctree.Node {
	if children == nil {
		return []doctree.Node{}
	}
	return children
}

func kindOf(n doctree.Node) string {
	if n == nil {
		return "nil"
	}
	return n.Kind().String()
}

func (c *Chunker) safeStep(n doctree.Node, st state) (next state, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.step(n, st)
}

func (c *Chunker) step(n doctree.Node, st state) (state, error) {
	switch n := n.(type) {
	case *doctree.Heading:
		return c.handleHeading(n, st), nil
	case *doctree.Table:
		return c.handleTable(n, st)
	case *doctree.List:
		return c.handleList(n, st)
	case *doctree.Paragraph, *doctree.Code, *doctree.Text, *doctree.TableRow, *doctree.TableCell:
		return c.addToBuffer(n, st)
	case nil:
		return st, fmt.Errorf("nil node")
	default:
		return st, fmt.Errorf("unsupported node %T", n)
	}
}

var numberedHeading = regexp.MustCompile(`^\d+[.)]\s`)

func isSignificantHeading(text string, level int) bool {
	return CountWords(text) >= 4 ||
		level == 1 ||
		strings.Contains(text, "?") ||
		numberedHeading.MatchString(text)
}

// handleHeading closes the current chunk and moves the header path to the
// heading's level: ancestors at the same level or deeper are dropped. The
// heading text lives in the path, not in the content. Insignificant
// headings with no body are absorbed into the path of what follows.
func (c *Chunker) handleHeading(h *doctree.Heading, st state) state {
	text := strings.TrimSpace(doctree.PlainText(h))
	level := min(max(h.Level, 1), 6)

	st = c.closeEmptySection(st, level)
	st = c.flush(st)

	keep := len(st.headings)
	for keep > 0 && st.headings[keep-1].level >= level {
		keep--
	}
	headings := slices.Clone(st.headings[:keep])
	if text != "" {
		headings = append(headings, heading{level: level, text: text})
	}
	st = c.withHeadings(st, headings)
	if text != "" && isSignificantHeading(text, level) {
		st.open = level
		st.openHeader = st.header
	}
	return st
}

// closeEmptySection emits a header-only chunk for a significant heading
// whose section ends, at level or above, before any content arrived. Level
// zero closes whatever is open.
func (c *Chunker) closeEmptySection(st state, level int) state {
	if st.open == 0 || level > st.open || len(st.buffer) > 0 {
		return st
	}
	header := st.openHeader
	st.open = 0
	st.openHeader = ""
	if n := CountWords(header); n == 0 || n > c.wordLimit {
		return st
	}
	st.chunks = append(st.chunks, header)
	return st
}

func (c *Chunker) render(n doctree.Node) (string, int, error) {
	md, err := doctree.Markdown(n)
	if err != nil {
		return "", 0, err
	}
	return md, CountWords(md), nil
}

// addToBuffer appends n to the open chunk, closing it first if n would
// push it over budget.
func (c *Chunker) addToBuffer(n doctree.Node, st state) (state, error) {
	_, words, err := c.render(n)
	if err != nil {
		return st, err
	}
	if words == 0 {
		return st, nil
	}
	if len(st.buffer) > 0 && st.words+words > c.capacity(st) {
		st = c.flush(st)
	}
	st.buffer = append(st.buffer, n)
	st.words += words
	return st, nil
}

// handleBlock keeps n whole when it fits alongside the open chunk.
// Otherwise the open chunk is closed and n is emitted on its own.
func (c *Chunker) handleBlock(n doctree.Node, words int, st state) state {
	if words == 0 {
		return st
	}
	if st.words+words > c.capacity(st) {
		st = c.flush(st)
		return c.emit(n, words, st)
	}
	st.buffer = append(st.buffer, n)
	st.words += words
	return st
}

func (c *Chunker) emit(n doctree.Node, words int, st state) state {
	st.buffer = []doctree.Node{n}
	st.words = words
	return c.flush(st)
}

// flush turns the buffer into one or more chunks. Content that does not
// fit goes through the grapheme splitter.
func (c *Chunker) flush(st state) state {
	if len(st.buffer) == 0 {
		return st
	}
	buffer := st.buffer
	st.buffer = nil
	st.words = 0

	content, err := doctree.Markdown(buffer...)
	if err != nil {
		c.log.Warn("dropping unrenderable chunk", "nodes", len(buffer), "error", err)
		return st
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return st
	}

	st.chunks = append(st.chunks, c.assemble(st.header, st.headerWords, content)...)
	st.open = 0
	st.openHeader = ""
	return st
}

func (c *Chunker) assemble(header string, headerWords int, content string) []string {
	if headerWords+CountWords(content) <= c.wordLimit {
		return []string{joinChunk(header, content)}
	}

	budget := c.wordLimit - headerWords
	if budget <= 0 {
		c.log.Warn("header path exceeds chunk budget, omitting it",
			"header_words", headerWords, "word_limit", c.wordLimit)
		header = ""
		budget = c.wordLimit
	}

	parts := splitOversized(content, budget)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, joinChunk(header, p))
	}
	return out
}

func joinChunk(header, content string) string {
	if header == "" {
		return content
	}
	return header + "\n\n" + content
}
