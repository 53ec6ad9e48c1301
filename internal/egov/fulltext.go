package egov

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/law-notes-crawler/internal/document"
)

// ErrEmptyFullText is returned when law_full_text carries no paragraphs.
var ErrEmptyFullText = errors.New("law_full_text has no paragraphs")

// node is one element of the law_full_text tree. Children are either nodes
// or plain strings.
type node struct {
	Tag      string            `json:"tag"`
	Attr     map[string]string `json:"attr"`
	Children []json.RawMessage `json:"children"`
}

func decodeChild(raw json.RawMessage) (*node, string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, "", fmt.Errorf("decode text: %w", err)
		}
		return nil, s, nil
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, "", fmt.Errorf("decode element: %w", err)
	}
	return &n, "", nil
}

// children decodes the element children of n, dropping text.
func (n *node) children() ([]*node, error) {
	out := make([]*node, 0, len(n.Children))
	for _, raw := range n.Children {
		child, _, err := decodeChild(raw)
		if err != nil {
			return nil, err
		}
		if child != nil {
			out = append(out, child)
		}
	}
	return out, nil
}

// text concatenates every string below n with runs of whitespace collapsed.
func (n *node) text() (string, error) {
	var b strings.Builder
	if err := n.appendText(&b); err != nil {
		return "", err
	}
	return collapse(b.String()), nil
}

func (n *node) appendText(b *strings.Builder) error {
	for _, raw := range n.Children {
		child, s, err := decodeChild(raw)
		if err != nil {
			return err
		}
		if child == nil {
			b.WriteString(s)
			continue
		}
		if err := child.appendText(b); err != nil {
			return err
		}
		if isBreakTag(child.Tag) {
			b.WriteByte(' ')
		}
	}
	return nil
}

func isBreakTag(tag string) bool {
	switch tag {
	case "ParagraphNum", "ItemTitle", "Subitem1Title", "Subitem2Title", "ArticleCaption", "ArticleTitle", "Sentence", "Column":
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// converter walks the tree and accumulates blocks.
type converter struct {
	doc    document.Document
	loose  map[string]int
	suppls int
}

// ToDocument converts law_full_text into a document. Articles become blocks
// anchored "<prefix>-At_<num>" and their paragraphs "<block>-Pr_<num>", where
// prefix is "Mp" for the main provision and "Sp" for supplementary ones.
func ToDocument(id, sourceURL string, data LawData) (document.Document, error) {
	c := &converter{
		doc: document.Document{
			ID:        id,
			Title:     strings.TrimSpace(data.RevisionInfo.LawTitle),
			SourceURL: sourceURL,
		},
		loose: map[string]int{},
	}
	if len(data.FullText) == 0 || string(data.FullText) == "null" {
		return document.Document{}, fmt.Errorf("%w: %s", ErrEmptyFullText, id)
	}
	var root node
	if err := json.Unmarshal(data.FullText, &root); err != nil {
		return document.Document{}, fmt.Errorf("decode law_full_text: %w", err)
	}
	if err := c.walk(&root, "Mp"); err != nil {
		return document.Document{}, err
	}
	if len(c.doc.Blocks) == 0 {
		return document.Document{}, fmt.Errorf("%w: %s", ErrEmptyFullText, id)
	}
	return c.doc, nil
}

func (c *converter) walk(n *node, prefix string) error {
	switch n.Tag {
	case "LawTitle":
		if c.doc.Title == "" {
			title, err := n.text()
			if err != nil {
				return err
			}
			c.doc.Title = title
		}
		return nil
	case "SupplProvision":
		c.suppls++
		prefix = "Sp"
		if c.suppls > 1 {
			prefix = "Sp_" + strconv.Itoa(c.suppls)
		}
	case "Article":
		return c.article(n, prefix)
	case "Paragraph":
		return c.looseParagraph(n, prefix)
	}
	kids, err := n.children()
	if err != nil {
		return err
	}
	for _, kid := range kids {
		if err := c.walk(kid, prefix); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) article(n *node, prefix string) error {
	num := n.Attr["Num"]
	if num == "" {
		num = strconv.Itoa(len(c.doc.Blocks) + 1)
	}
	block := document.Block{ID: prefix + "-At_" + num}
	kids, err := n.children()
	if err != nil {
		return err
	}
	var heading []string
	paras := 0
	for _, kid := range kids {
		switch kid.Tag {
		case "ArticleCaption", "ArticleTitle":
			text, err := kid.text()
			if err != nil {
				return err
			}
			if text != "" {
				heading = append(heading, text)
			}
		case "Paragraph":
			paras++
			out, err := paragraphs(kid, block.ID, paras)
			if err != nil {
				return err
			}
			block.Paragraphs = append(block.Paragraphs, out...)
		}
	}
	block.Heading = strings.Join(heading, " ")
	if len(block.Paragraphs) > 0 {
		c.doc.Blocks = append(c.doc.Blocks, block)
	}
	return nil
}

// looseParagraph handles paragraphs that sit outside any article, as in
// short supplementary provisions.
func (c *converter) looseParagraph(n *node, prefix string) error {
	c.loose[prefix]++
	out, err := paragraphs(n, prefix, c.loose[prefix])
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	last := len(c.doc.Blocks) - 1
	if last >= 0 && c.doc.Blocks[last].ID == prefix {
		c.doc.Blocks[last].Paragraphs = append(c.doc.Blocks[last].Paragraphs, out...)
		return nil
	}
	c.doc.Blocks = append(c.doc.Blocks, document.Block{ID: prefix, Paragraphs: out})
	return nil
}

// paragraphs returns the paragraph itself followed by one paragraph per item.
func paragraphs(n *node, parent string, index int) ([]document.Paragraph, error) {
	num := n.Attr["Num"]
	if num == "" {
		num = strconv.Itoa(index)
	}
	anchor := parent + "-Pr_" + num
	kids, err := n.children()
	if err != nil {
		return nil, err
	}
	var (
		body  []string
		items []document.Paragraph
	)
	for _, kid := range kids {
		text, err := kid.text()
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		if kid.Tag == "Item" {
			itemNum := kid.Attr["Num"]
			if itemNum == "" {
				itemNum = strconv.Itoa(len(items) + 1)
			}
			items = append(items, document.Paragraph{
				Anchor:   anchor + "-It_" + itemNum,
				Segments: []document.Segment{document.Text(text)},
			})
			continue
		}
		body = append(body, text)
	}
	var out []document.Paragraph
	if len(body) > 0 {
		out = append(out, document.Paragraph{
			Anchor:   anchor,
			Segments: []document.Segment{document.Text(strings.Join(body, " "))},
		})
	}
	return append(out, items...), nil
}
