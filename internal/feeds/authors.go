package feeds

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/store"
)

// AttributionStore persists scraped attributions and knows every page creator
type AttributionStore interface {
	InsertAttributions(ctx context.Context, attrs []store.Attribution) error
	Authors(ctx context.Context) ([]string, error)
}

// Authors returns the fetch function of the author set: every user credited on
// the attribution page plus every page creator known to the store. A nil store
// limits the set to the attribution page.
func Authors(src DocumentSource, url string, st AttributionStore) diff.FetchFunc[string] {
	return func(ctx context.Context) (diff.Set[string], error) {
		doc, err := src.Document(ctx, url)
		if err != nil {
			return nil, err
		}
		attrs := ParseAttributions(doc)

		authors := diff.NewSet[string]()
		if st != nil {
			if err := st.InsertAttributions(ctx, attrs); err != nil {
				return nil, fmt.Errorf("failed to store attributions: %w", err)
			}
			creators, err := st.Authors(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load page creators: %w", err)
			}
			for _, c := range creators {
				if c != "" {
					authors.Add(c)
				}
			}
		}
		for _, a := range attrs {
			authors.Add(a.User)
		}
		return authors, nil
	}
}

// ParseAttributions reads the attribution table. Maintainer credits are
// dropped; users are lowercased.
func ParseAttributions(doc *goquery.Document) []store.Attribution {
	var attrs []store.Attribution
	doc.Find(".wiki-content-table tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 3 {
			return
		}
		a := store.Attribution{
			PageID: cellText(tds.Eq(0)),
			User:   strings.ToLower(cellText(tds.Eq(1))),
			Kind:   cellText(tds.Eq(2)),
		}
		if a.PageID == "" || a.User == "" || a.Kind == "maintainer" {
			return
		}
		attrs = append(attrs, a)
	})
	return attrs
}
