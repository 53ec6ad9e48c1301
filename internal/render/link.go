package render

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrMalformedLink is returned for hrefs that match no recognized form.
var ErrMalformedLink = errors.New("malformed link syntax")

// LinkKind is the syntactic class of an href.
type LinkKind int

// Link classes in resolution order.
const (
	LinkEmpty LinkKind = iota
	LinkAnchor
	LinkDocument
	LinkExternal
	LinkUnknown
)

func (k LinkKind) String() string {
	switch k {
	case LinkEmpty:
		return "empty"
	case LinkAnchor:
		return "anchor"
	case LinkDocument:
		return "document"
	case LinkExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Link is a classified href.
type Link struct {
	Kind LinkKind
	// Anchor is the fragment for anchor and document links.
	Anchor string
	// TargetID is set for document links.
	TargetID string
	// URL is set for external links.
	URL string
}

var externalSchemes = []string{"http://", "https://", "mailto:", "ftp://"}

// Classifier sorts hrefs into link kinds for one site.
type Classifier struct {
	document *regexp.Regexp
}

// NewClassifier recognizes cross-document links as "/law/<id>" paths, either
// relative or prefixed with siteBase's host over http or https.
func NewClassifier(siteBase string) (*Classifier, error) {
	prefix := ""
	if strings.TrimSpace(siteBase) != "" {
		u, err := url.Parse(siteBase)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid site base %q", siteBase)
		}
		prefix = `(?:https?://` + regexp.QuoteMeta(u.Host) + `)?`
	}
	pattern := `^` + prefix + `/law/([A-Za-z0-9]+)(?:/[^?#]*)?(?:\?[^#]*)?(?:#(.*))?$`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile document pattern: %w", err)
	}
	return &Classifier{document: re}, nil
}

// Classify decides the link kind with a single ordered match.
func (c *Classifier) Classify(href string) Link {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return Link{Kind: LinkEmpty}
	case strings.HasPrefix(href, "#"):
		return Link{Kind: LinkAnchor, Anchor: href[1:]}
	}
	if id, anchor, err := c.ParseDocumentHref(href); err == nil {
		return Link{Kind: LinkDocument, TargetID: id, Anchor: anchor}
	}
	lower := strings.ToLower(href)
	for _, scheme := range externalSchemes {
		if strings.HasPrefix(lower, scheme) && len(href) > len(scheme) {
			return Link{Kind: LinkExternal, URL: href}
		}
	}
	return Link{Kind: LinkUnknown}
}

// ParseDocumentHref extracts the target ID and optional anchor of a
// cross-document href.
func (c *Classifier) ParseDocumentHref(href string) (id, anchor string, err error) {
	m := c.document.FindStringSubmatch(strings.TrimSpace(href))
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedLink, href)
	}
	return m[1], m[2], nil
}
