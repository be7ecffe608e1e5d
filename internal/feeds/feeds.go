// Package feeds holds the fetch functions of every mirrored feed: the ban
// list, the SCP title index, the wiki page list and the author set. Each
// returns a diff.FetchFunc that parses one complete snapshot per call.
package feeds

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentSource fetches an HTML page
type DocumentSource interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// cellText returns the trimmed text of a table cell
func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
