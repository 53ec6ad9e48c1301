// Package scrape turns e-Gov law pages into document.Documents. Pages are
// fetched with colly or a headless Chrome and parsed with goquery.
package scrape

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/law-notes-crawler/internal/document"
)

// ErrNoContent is returned when a page yields no paragraphs.
var ErrNoContent = errors.New("page has no law content")

// Selectors locate the parts of a law page. Each value is a goquery
// selector list.
type Selectors struct {
	Title     string `mapstructure:"title"`
	Block     string `mapstructure:"block"`
	Heading   string `mapstructure:"heading"`
	Paragraph string `mapstructure:"paragraph"`
	Remove    string `mapstructure:"remove"`
}

// DefaultSelectors match the markup of laws.e-gov.go.jp.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:     "#lawTitle, .LawTitle, h1",
		Block:     "div.Article, section.Article",
		Heading:   ".ArticleCaption, .ArticleTitle",
		Paragraph: "div.Paragraph, p.ParagraphSentence, div._div_ParagraphSentence",
		Remove:    "script, style, noscript, .Ruby rt",
	}
}

func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()
	if s.Title == "" {
		s.Title = def.Title
	}
	if s.Block == "" {
		s.Block = def.Block
	}
	if s.Heading == "" {
		s.Heading = def.Heading
	}
	if s.Paragraph == "" {
		s.Paragraph = def.Paragraph
	}
	if s.Remove == "" {
		s.Remove = def.Remove
	}
	return s
}

// Parse extracts the law with the given id from an HTML page. Pages without
// block markup are read as a single block of <p> paragraphs.
func Parse(id, sourceURL string, body []byte, sel Selectors) (document.Document, error) {
	sel = sel.withDefaults()
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return document.Document{}, fmt.Errorf("parse html: %w", err)
	}
	dom.Find(sel.Remove).Remove()

	doc := document.Document{
		ID:        id,
		Title:     collapse(dom.Find(sel.Title).First().Text()),
		SourceURL: sourceURL,
	}

	dom.Find(sel.Block).Each(func(_ int, s *goquery.Selection) {
		if block, ok := parseBlock(s, sel); ok {
			doc.Blocks = append(doc.Blocks, block)
		}
	})
	if len(doc.Blocks) == 0 {
		block, ok := parseBlock(dom.Find("body"), Selectors{Paragraph: "p"})
		if ok {
			doc.Blocks = append(doc.Blocks, block)
		}
	}
	if len(doc.Blocks) == 0 {
		return document.Document{}, fmt.Errorf("%w: %s", ErrNoContent, id)
	}
	return doc, nil
}

func parseBlock(s *goquery.Selection, sel Selectors) (document.Block, bool) {
	block := document.Block{ID: attr(s, "id")}
	if sel.Heading != "" {
		var parts []string
		s.Find(sel.Heading).Each(func(_ int, h *goquery.Selection) {
			if text := collapse(h.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		block.Heading = strings.Join(parts, " ")
	}
	s.Find(sel.Paragraph).Each(func(_ int, p *goquery.Selection) {
		// outermost match only
		if p.ParentsUntilSelection(s).Filter(sel.Paragraph).Length() > 0 {
			return
		}
		para := document.Paragraph{Anchor: attr(p, "id")}
		for _, node := range p.Nodes {
			para.Segments = appendSegments(para.Segments, node)
		}
		if hasText(para.Segments) {
			block.Paragraphs = append(block.Paragraphs, para)
		}
	})
	return block, len(block.Paragraphs) > 0
}

// appendSegments flattens the children of n into text and link segments.
// Nested links are not valid HTML; the outer one wins.
func appendSegments(segs []document.Segment, n *html.Node) []document.Segment {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			segs = appendText(segs, c.Data)
		case html.ElementNode:
			if c.Data == "a" {
				segs = append(segs, document.Link(collapse(nodeText(c)), attrOf(c, "href")))
				continue
			}
			if c.Data == "br" {
				segs = appendText(segs, " ")
				continue
			}
			segs = appendSegments(segs, c)
		}
	}
	return segs
}

func appendText(segs []document.Segment, text string) []document.Segment {
	if text == "" {
		return segs
	}
	if n := len(segs); n > 0 && !segs[n-1].IsLink() {
		segs[n-1].Text += text
		return segs
	}
	return append(segs, document.Text(text))
}

func hasText(segs []document.Segment) bool {
	for _, seg := range segs {
		if strings.TrimSpace(seg.Text) != "" {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func attrOf(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
