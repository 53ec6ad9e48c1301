package egov

import (
	"context"
	"errors"
	"strings"

	"github.com/JakeFAU/law-notes-crawler/internal/backoff"
	"github.com/JakeFAU/law-notes-crawler/internal/document"
)

// Scraper produces documents from the law_data endpoint instead of HTML.
// The full-text tree carries no hyperlinks, so crawls in this mode only
// render the root.
type Scraper struct {
	client   *Client
	siteBase string
}

// NewScraper wraps client. siteBase is used for the documents' source URL.
func NewScraper(client *Client, siteBase string) (*Scraper, error) {
	if client == nil {
		return nil, errors.New("egov scraper: client is required")
	}
	return &Scraper{client: client, siteBase: strings.TrimRight(siteBase, "/")}, nil
}

// Scrape fetches and converts one law. Client errors other than 429 are
// marked permanent so the crawl does not retry them.
func (s *Scraper) Scrape(ctx context.Context, id string) (document.Document, error) {
	data, err := s.client.FetchLawData(ctx, id)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return document.Document{}, backoff.Permanent(err)
		}
		return document.Document{}, err
	}
	doc, err := ToDocument(id, s.siteBase+"/law/"+id, data)
	if err != nil {
		return document.Document{}, backoff.Permanent(err)
	}
	return doc, nil
}
