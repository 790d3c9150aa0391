// Package document turns plain text or markdown into sentences sized for
// one synthesis request each.
package document

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Sentence is one speakable unit of a document.
type Sentence struct {
	Index int    `json:"index" yaml:"index"`
	Text  string `json:"text" yaml:"text"`
}

// Parser extracts sentences from documents.
type Parser struct {
	skipCodeBlocks bool
	maxRunes       int
	md             goldmark.Markdown
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxRunes caps sentence length. Longer sentences are split at a comma
// when there is one, otherwise cut hard. Zero disables the cap.
func WithMaxRunes(n int) Option {
	return func(p *Parser) {
		p.maxRunes = n
	}
}

// WithCodeBlocks includes fenced and indented code blocks in the output.
func WithCodeBlocks(include bool) Option {
	return func(p *Parser) {
		p.skipCodeBlocks = !include
	}
}

// NewParser returns a parser that skips code blocks and caps sentences at
// 200 runes.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		skipCodeBlocks: true,
		maxRunes:       200,
		md:             goldmark.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse splits source into sentences. When markdown is true the source is
// parsed as CommonMark first and only its prose is kept.
func (p *Parser) Parse(source string, markdown bool) []Sentence {
	plain := source
	if markdown {
		plain = p.PlainText(source)
	}

	var out []Sentence
	for _, s := range Split(plain) {
		for _, part := range limit(s, p.maxRunes) {
			out = append(out, Sentence{Index: len(out), Text: part})
		}
	}
	return out
}

// PlainText strips markdown down to its prose, one block per line.
func (p *Parser) PlainText(markdown string) string {
	reader := text.NewReader([]byte(markdown))
	doc := p.md.Parser().Parse(reader)

	var buf strings.Builder
	p.walk(doc, reader.Source(), &buf)
	return buf.String()
}

func (p *Parser) walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if p.skipCodeBlocks {
			return
		}
		lines := n.Lines()
		for i := range lines.Len() {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		newline(buf)
		return

	case *ast.HTMLBlock, *ast.RawHTML, *ast.AutoLink:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		switch {
		case n.HardLineBreak():
			newline(buf)
		case n.SoftLineBreak():
			// Japanese wraps without spaces; only Latin text needs one.
			if r, _ := utf8.DecodeLastRuneInString(buf.String()); r < utf8.RuneSelf {
				buf.WriteByte(' ')
			}
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.Heading, *ast.Paragraph, *ast.TextBlock, *ast.ThematicBreak:
		p.walkChildren(n, source, buf)
		newline(buf)
		return

	case *ast.ListItem:
		p.walkChildren(n, source, buf)
		newline(buf)
		return
	}

	p.walkChildren(node, source, buf)
}

func (p *Parser) walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		p.walk(c, source, buf)
	}
}

func newline(buf *strings.Builder) {
	if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}
}

// closers may follow a terminator and belong to the same sentence.
const closers = "」』）)】〉》\"'’”"

// Split breaks text into sentences at 。！？!? and full stops, and at line
// breaks. Fragments without any letter or digit are dropped.
func Split(s string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		t := strings.TrimSpace(cur.String())
		cur.Reset()
		if speakable(t) {
			out = append(out, t)
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' || r == '\r' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if !terminator(runes, i) {
			continue
		}
		// Keep runs like "！？" and trailing closing brackets together.
		for i+1 < len(runes) && (isStop(runes[i+1]) || strings.ContainsRune(closers, runes[i+1])) {
			i++
			cur.WriteRune(runes[i])
		}
		flush()
	}
	flush()
	return out
}

func isStop(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '．':
		return true
	}
	return false
}

func terminator(runes []rune, i int) bool {
	r := runes[i]
	if isStop(r) {
		return true
	}
	if r != '.' {
		return false
	}
	// A period ends a sentence only before whitespace or the end of input,
	// which leaves 3.14, example.com and "..." inside a sentence.
	if i+1 == len(runes) {
		return true
	}
	next := runes[i+1]
	if next == '.' || (i > 0 && runes[i-1] == '.') {
		return false
	}
	return unicode.IsSpace(next)
}

func speakable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// limit splits s into pieces of at most n runes, preferring the last comma
// in the second half of each window. Pieces that are only punctuation are
// dropped.
func limit(s string, n int) []string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return []string{s}
	}

	var out []string
	for len(runes) > n {
		cut := n
		for j := n - 1; j > n/2; j-- {
			if runes[j] == '、' || runes[j] == ',' || runes[j] == '，' {
				cut = j + 1
				break
			}
		}
		if part := strings.TrimSpace(string(runes[:cut])); speakable(part) {
			out = append(out, part)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); speakable(rest) {
		out = append(out, rest)
	}
	return out
}
