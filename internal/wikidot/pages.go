package wikidot

import (
	"context"
	"fmt"
	"time"
)

// metaBatch is the most pages pages.get_meta accepts per call.
const metaBatch = 10

// Page is the metadata of one wiki page.
type Page struct {
	Fullname  string
	Title     string
	CreatedBy string
	CreatedAt time.Time
	Rating    int
	Tags      []string
}

// ListPages returns the fullname of every page on the site.
func (c *Client) ListPages(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, "pages.select", map[string]interface{}{"site": c.site}, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// PageMeta fetches metadata for the named pages. Pages the API does not
// return (deleted in the meantime, or malformed entries) are left out.
func (c *Client) PageMeta(ctx context.Context, names []string) ([]Page, error) {
	var pages []Page
	for start := 0; start < len(names); start += metaBatch {
		end := start + metaBatch
		if end > len(names) {
			end = len(names)
		}

		batch := make([]interface{}, 0, end-start)
		for _, n := range names[start:end] {
			batch = append(batch, n)
		}

		var reply map[string]interface{}
		err := c.call(ctx, "pages.get_meta", map[string]interface{}{
			"site":  c.site,
			"pages": batch,
		}, &reply)
		if err != nil {
			return pages, fmt.Errorf("page metadata %d-%d: %w", start, end, err)
		}

		for name, v := range reply {
			if p, ok := parsePage(name, v); ok {
				pages = append(pages, p)
			}
		}
	}
	return pages, nil
}

func parsePage(name string, v interface{}) (Page, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return Page{}, false
	}

	p := Page{Fullname: name}
	if s, ok := obj["fullname"].(string); ok && s != "" {
		p.Fullname = s
	}
	p.Title, _ = obj["title"].(string)
	p.CreatedBy, _ = obj["created_by"].(string)
	if s, ok := obj["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			p.CreatedAt = t
		}
	}
	p.Rating = toInt(obj["rating"])
	if tags, ok := obj["tags"].([]interface{}); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				p.Tags = append(p.Tags, s)
			}
		}
	}
	return p, true
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
