package feeds

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dalnet/wikibot/internal/diff"
)

// AccessDenied is the placeholder the index shows for redacted titles
const AccessDenied = "[ACCESS DENIED]"

// Title maps a lowercased SCP id (e.g. "scp-173") to its display title
type Title struct {
	ID   string
	Name string
}

// TitleSources lists the index pages scanned for titles.
type TitleSources struct {
	// Pages must all load; a failure on any of them fails the fetch
	Pages []string
	// Series is the base of numbered pages <Series>-2 .. <Series>-<MaxSeries>.
	// Scanning stops at the first numbered page that fails or has no entries.
	Series    string
	MaxSeries int
}

// Titles returns the fetch function of the title index. Each id appears at
// most once in a snapshot: the first page listing it wins.
func Titles(src DocumentSource, sources TitleSources) diff.FetchFunc[Title] {
	return func(ctx context.Context) (diff.Set[Title], error) {
		titles := make(map[string]string)
		for _, page := range sources.Pages {
			doc, err := src.Document(ctx, page)
			if err != nil {
				return nil, err
			}
			ParseTitles(doc, titles)
		}

		if sources.Series == "" {
			return titleSet(titles), nil
		}
		for i := 2; i <= sources.MaxSeries; i++ {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			doc, err := src.Document(ctx, fmt.Sprintf("%s-%d", sources.Series, i))
			if err != nil {
				break
			}
			if ParseTitles(doc, titles) == 0 {
				break
			}
		}
		return titleSet(titles), nil
	}
}

func titleSet(titles map[string]string) diff.Set[Title] {
	set := diff.NewSet[Title]()
	for id, name := range titles {
		set.Add(Title{ID: id, Name: name})
	}
	return set
}

// ParseTitles records every title listed under a .series element in titles,
// keyed by id, and returns how many entries were found. Ids already present
// keep their title.
func ParseTitles(doc *goquery.Document, titles map[string]string) int {
	n := 0
	doc.Find(".series li").Each(func(_ int, li *goquery.Selection) {
		t, ok := parseTitle(li)
		if !ok || t.Name == AccessDenied {
			return
		}
		if _, dup := titles[t.ID]; !dup {
			titles[t.ID] = t.Name
		}
		n++
	})
	return n
}

func parseTitle(li *goquery.Selection) (Title, bool) {
	link := li.Find("a").First()
	if link.Length() == 0 {
		return Title{}, false
	}
	id := strings.ToLower(cellText(link))
	if id == "" {
		return Title{}, false
	}

	var name string
	if spans := li.Find("span"); spans.Length() >= 2 {
		name = spans.Eq(1).Text()
	} else {
		name = strings.TrimPrefix(strings.TrimSpace(li.Text()), cellText(link))
	}
	if i := strings.Index(name, "- "); i >= 0 {
		name = name[i+2:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Title{}, false
	}
	return Title{ID: id, Name: name}, true
}
