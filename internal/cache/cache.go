// Package cache holds the bot's in-memory mirrors of every feed.
//
// A Cache is owned by the IRC callback goroutine. Mirrors change only inside
// Drain, which applies the events the pollers have queued since the last
// call; no other synchronisation is needed.
package cache

import (
	"sort"
	"strings"

	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/feeds"
	"go.uber.org/zap"
)

// PageSink receives page ids that appeared on or vanished from the wiki.
// Submit must not block.
type PageSink interface {
	Submit(added, removed []string)
}

// Stats is the number of entries in each mirror
type Stats struct {
	Titles  int
	Bans    int
	Pages   int
	Authors int
}

// Cache mirrors the titles, bans, pages and authors feeds.
type Cache struct {
	log *zap.Logger

	titles  map[string]string
	bans    diff.Set[feeds.ChannelBan]
	pages   diff.Set[string]
	authors diff.Set[string]

	titlesRx  *diff.Receiver[feeds.Title]
	bansRx    *diff.Receiver[feeds.ChannelBan]
	pagesRx   *diff.Receiver[string]
	authorsRx *diff.Receiver[string]

	sink PageSink
}

// New creates a cache with empty mirrors and no attached feeds.
func New(log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		log:     log,
		titles:  make(map[string]string),
		bans:    diff.NewSet[feeds.ChannelBan](),
		pages:   diff.NewSet[string](),
		authors: diff.NewSet[string](),
	}
}

// AttachTitles seeds the titles mirror from an engine snapshot and follows rx.
func (c *Cache) AttachTitles(snapshot diff.Set[feeds.Title], rx *diff.Receiver[feeds.Title]) {
	c.titles = make(map[string]string, snapshot.Len())
	for t := range snapshot {
		c.addTitle(t)
	}
	c.titlesRx = rx
}

// AttachBans seeds the bans mirror and follows rx.
func (c *Cache) AttachBans(snapshot diff.Set[feeds.ChannelBan], rx *diff.Receiver[feeds.ChannelBan]) {
	c.bans = snapshot.Clone()
	c.bansRx = rx
}

// AttachPages seeds the pages mirror and follows rx. Every page change
// drained afterwards is forwarded to sink, which may be nil.
func (c *Cache) AttachPages(snapshot diff.Set[string], rx *diff.Receiver[string], sink PageSink) {
	c.pages = snapshot.Clone()
	c.pagesRx = rx
	c.sink = sink
}

// AttachAuthors seeds the authors mirror and follows rx.
func (c *Cache) AttachAuthors(snapshot diff.Set[string], rx *diff.Receiver[string]) {
	c.authors = snapshot.Clone()
	c.authorsRx = rx
}

// Drain applies every pending event of every attached feed without blocking.
// Feeds whose poller has gone away are detached.
func (c *Cache) Drain() {
	if c.titlesRx != nil && !diff.Drain(c.titlesRx, c.applyTitle) {
		c.retire("titles")
		c.titlesRx = nil
	}
	if c.bansRx != nil && !diff.Drain(c.bansRx, applySet(c.bans)) {
		c.retire("bans")
		c.bansRx = nil
	}
	if c.authorsRx != nil && !diff.Drain(c.authorsRx, applySet(c.authors)) {
		c.retire("authors")
		c.authorsRx = nil
	}
	if c.pagesRx != nil {
		c.drainPages()
	}
}

func (c *Cache) drainPages() {
	var added, removed []string
	open := diff.Drain(c.pagesRx, func(ev diff.Event[string]) {
		if ev.Added {
			c.pages.Add(ev.Key)
			added = append(added, ev.Key)
		} else {
			c.pages.Remove(ev.Key)
			removed = append(removed, ev.Key)
		}
	})
	if c.sink != nil && (len(added) > 0 || len(removed) > 0) {
		c.sink.Submit(added, removed)
	}
	if !open {
		c.retire("pages")
		c.pagesRx = nil
	}
}

func (c *Cache) retire(feed string) {
	c.log.Warn("Feed disconnected, mirror frozen", zap.String("feed", feed))
}

func applySet[K comparable](s diff.Set[K]) func(diff.Event[K]) {
	return func(ev diff.Event[K]) {
		if ev.Added {
			s.Add(ev.Key)
		} else {
			s.Remove(ev.Key)
		}
	}
}

func (c *Cache) applyTitle(ev diff.Event[feeds.Title]) {
	if ev.Added {
		c.addTitle(ev.Key)
		return
	}
	// A retitled entry arrives as an add and a remove in either order; only
	// drop the entry if it still holds the removed title.
	if cur, ok := c.titles[ev.Key.ID]; ok && cur == ev.Key.Name {
		delete(c.titles, ev.Key.ID)
	}
}

func (c *Cache) addTitle(t feeds.Title) {
	if t.Name == feeds.AccessDenied {
		return
	}
	c.titles[t.ID] = t.Name
}

// Title returns the display title of an SCP id such as "scp-173".
func (c *Cache) Title(id string) (string, bool) {
	name, ok := c.titles[strings.ToLower(id)]
	return name, ok
}

// SearchTitles returns every title whose id or name contains query,
// case-insensitively, sorted by id.
func (c *Cache) SearchTitles(query string) []feeds.Title {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []feeds.Title
	for id, name := range c.titles {
		if strings.Contains(id, q) || strings.Contains(strings.ToLower(name), q) {
			out = append(out, feeds.Title{ID: id, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ban returns the first ban on channel matching nick or host.
func (c *Cache) Ban(channel, nick, host string) (feeds.Ban, bool) {
	channel = strings.ToLower(channel)
	for cb := range c.bans {
		if cb.Channel == channel && cb.Ban.Matches(nick, host) {
			return cb.Ban, true
		}
	}
	return feeds.Ban{}, false
}

// HasAuthor reports whether name is a known author, ignoring case.
func (c *Cache) HasAuthor(name string) bool {
	if c.authors.Has(name) {
		return true
	}
	for a := range c.authors {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// MatchAuthors returns the authors whose name starts with prefix, ignoring
// case, sorted.
func (c *Cache) MatchAuthors(prefix string) []string {
	p := strings.ToLower(prefix)
	var out []string
	for a := range c.authors {
		if strings.HasPrefix(strings.ToLower(a), p) {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// HasPage reports whether the page id exists on the wiki.
func (c *Cache) HasPage(id string) bool {
	return c.pages.Has(id)
}

// Stats returns the current mirror sizes.
func (c *Cache) Stats() Stats {
	return Stats{
		Titles:  len(c.titles),
		Bans:    c.bans.Len(),
		Pages:   c.pages.Len(),
		Authors: c.authors.Len(),
	}
}
