// Package render turns a scraped law into a Markdown note with wiki links and
// reports the cross-document edges worth following. Rendering is pure: it
// mutates only the registry and run context it is handed and performs no I/O.
package render

import (
	"html"
	"io"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/law-notes-crawler/internal/document"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/unresolved"
)

// Input is everything one render call depends on.
type Input struct {
	Document document.Document
	Registry *registry.Registry
	Run      *RunContext
	Depth    int
	MaxDepth int
	// Now stamps the header, new fallback entries, and unresolved records.
	Now time.Time
}

// Result is the rendered note plus the edges discovered while rendering.
type Result struct {
	Text string
	// Edges lists distinct target IDs within the depth budget, in link order.
	Edges []string
	// Dirty reports whether the render added fallback registry entries.
	Dirty bool
}

// Renderer renders documents for one site.
type Renderer struct {
	classifier *Classifier
}

// New builds a Renderer that treats "/law/<id>" links on siteBase as
// cross-document references.
func New(siteBase string) (*Renderer, error) {
	classifier, err := NewClassifier(siteBase)
	if err != nil {
		return nil, err
	}
	return &Renderer{classifier: classifier}, nil
}

// Classifier exposes the link classifier in use.
func (r *Renderer) Classifier() *Classifier {
	return r.classifier
}

// ReferencedIDs returns the distinct cross-document target IDs of doc in order.
func (r *Renderer) ReferencedIDs(doc document.Document) []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, seg := range doc.Links() {
		link := r.classifier.Classify(seg.Href)
		if link.Kind != LinkDocument {
			continue
		}
		if _, ok := seen[link.TargetID]; ok {
			continue
		}
		seen[link.TargetID] = struct{}{}
		ids = append(ids, link.TargetID)
	}
	return ids
}

// Render produces the note text for in.Document.
func (r *Renderer) Render(in Input) Result {
	if in.Run == nil {
		in.Run = NewRunContext(in.Document.ID, in.Document.Title)
	}
	p := &pass{
		renderer: r,
		in:       in,
		edgeSet:  map[string]struct{}{},
	}
	text := p.document()
	return Result{Text: text, Edges: p.edges, Dirty: p.dirty}
}

type pass struct {
	renderer *Renderer
	in       Input
	edges    []string
	edgeSet  map[string]struct{}
	dirty    bool
}

func (p *pass) document() string {
	doc := p.in.Document
	md := markdown.NewMarkdown(io.Discard)

	md.PlainText("---")
	md.PlainText(`law_id: "` + escapeYAML(doc.ID) + `"`)
	md.PlainText(`title: "` + escapeYAML(doc.Title) + `"`)
	md.PlainText(`source_url: "` + escapeYAML(doc.SourceURL) + `"`)
	md.PlainText(`rendered_at: "` + p.in.Now.UTC().Format(time.RFC3339) + `"`)
	md.PlainText("---")
	md.PlainText("")

	title := collapseWhitespace(doc.Title)
	if title == "" {
		title = doc.ID
	}
	md.H1(title)

	for _, block := range doc.Blocks {
		md.PlainText("")
		heading := collapseWhitespace(block.Heading)
		if heading == "" {
			heading = block.ID
		}
		if heading != "" {
			md.H2(heading)
		}
		if block.ID != "" {
			md.PlainText(anchorMarker(block.ID))
		}
		for _, para := range block.Paragraphs {
			fromAnchor := para.Anchor
			if fromAnchor == "" {
				fromAnchor = block.ID
			}
			text := p.paragraph(para, fromAnchor)
			if text == "" {
				continue
			}
			md.PlainText("")
			if para.Anchor != "" {
				text = anchorMarker(para.Anchor) + text
			}
			md.PlainText(text)
		}
	}
	return md.String() + "\n"
}

func (p *pass) paragraph(para document.Paragraph, fromAnchor string) string {
	var b strings.Builder
	for _, seg := range para.Segments {
		if !seg.IsLink() {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(p.link(seg, fromAnchor))
	}
	return collapseWhitespace(b.String())
}

func (p *pass) link(seg document.Segment, fromAnchor string) string {
	text := collapseWhitespace(seg.Text)
	link := p.renderer.classifier.Classify(seg.Href)
	switch link.Kind {
	case LinkEmpty:
		return seg.Text
	case LinkAnchor:
		if link.Anchor == "" {
			return seg.Text
		}
		return wikiLink("#"+link.Anchor, text)
	case LinkDocument:
		return p.documentLink(link, seg, text, fromAnchor)
	case LinkExternal:
		if text == "" {
			text = link.URL
		}
		return "[" + text + "](" + link.URL + ")"
	default:
		p.record(seg, text, fromAnchor, unresolved.ReasonUnknownFormat)
		return seg.Text
	}
}

func (p *pass) documentLink(link Link, seg document.Segment, text, fromAnchor string) string {
	reg := p.in.Registry
	entry, ok := reg.Get(link.TargetID)
	switch {
	case !ok:
		entry, _ = reg.EnsureFallback(link.TargetID, p.in.Now)
		p.dirty = true
		p.record(seg, text, fromAnchor, unresolved.ReasonTargetNotBuilt)
	case entry.IsFallbackFor(link.TargetID):
		p.record(seg, text, fromAnchor, unresolved.ReasonTargetNotBuilt)
	}

	if p.in.Depth+1 > p.in.MaxDepth {
		p.record(seg, text, fromAnchor, unresolved.ReasonDepthLimit)
	} else if _, seen := p.edgeSet[link.TargetID]; !seen {
		p.edgeSet[link.TargetID] = struct{}{}
		p.edges = append(p.edges, link.TargetID)
	}

	target := entry.FileName
	if link.Anchor != "" {
		target += "#" + link.Anchor
	}
	return wikiLink(target, text)
}

func (p *pass) record(seg document.Segment, text, fromAnchor string, reason unresolved.Reason) {
	p.in.Run.Record(unresolved.Record{
		Timestamp:  p.in.Now.UTC(),
		RootID:     p.in.Run.RootID,
		RootTitle:  p.in.Run.RootTitle,
		SourceID:   p.in.Document.ID,
		FromAnchor: fromAnchor,
		RawText:    text,
		Href:       seg.Href,
		Reason:     reason,
	})
}

func wikiLink(target, text string) string {
	if text == "" {
		return "[[" + target + "]]"
	}
	return "[[" + target + "|" + text + "]]"
}

func anchorMarker(anchor string) string {
	return `<span id="` + html.EscapeString(anchor) + `"></span>`
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func escapeYAML(s string) string {
	s = collapseWhitespace(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
