// Package document defines the structured form of a scraped law page.
package document

// SegmentKind distinguishes plain text from hyperlinks inside a paragraph.
type SegmentKind string

// Supported segment kinds.
const (
	KindText SegmentKind = "text"
	KindLink SegmentKind = "link"
)

// Segment is one run of paragraph content. Href is only meaningful for links;
// an absent href and an empty one are the same value.
type Segment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text"`
	Href string      `json:"href,omitempty"`
}

// Text builds a text segment.
func Text(value string) Segment {
	return Segment{Kind: KindText, Text: value}
}

// Link builds a link segment.
func Link(text, href string) Segment {
	return Segment{Kind: KindLink, Text: text, Href: href}
}

// IsLink reports whether the segment is a hyperlink.
func (s Segment) IsLink() bool {
	return s.Kind == KindLink
}

// Paragraph is an anchored sequence of segments.
type Paragraph struct {
	Anchor   string    `json:"anchor,omitempty"`
	Segments []Segment `json:"segments"`
}

// Block groups paragraphs under an optional heading, typically one article.
type Block struct {
	ID         string      `json:"id,omitempty"`
	Heading    string      `json:"heading,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Document is a scraped law. Scrapers produce it; the crawl core only reads it.
type Document struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	SourceURL string  `json:"source_url"`
	Blocks    []Block `json:"blocks"`
}

// Links returns every link segment in document order.
func (d Document) Links() []Segment {
	var out []Segment
	for _, block := range d.Blocks {
		for _, para := range block.Paragraphs {
			for _, seg := range para.Segments {
				if seg.IsLink() {
					out = append(out, seg)
				}
			}
		}
	}
	return out
}
