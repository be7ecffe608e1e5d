package feeds

import (
	"context"

	"github.com/dalnet/wikibot/internal/diff"
)

// PageLister lists the fullnames of every page on the wiki
type PageLister interface {
	ListPages(ctx context.Context) ([]string, error)
}

// Pages returns the fetch function of the page list
func Pages(l PageLister) diff.FetchFunc[string] {
	return func(ctx context.Context) (diff.Set[string], error) {
		names, err := l.ListPages(ctx)
		if err != nil {
			return nil, err
		}
		pages := diff.NewSet[string]()
		for _, n := range names {
			if n != "" {
				pages.Add(n)
			}
		}
		return pages, nil
	}
}
