package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/feeds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	added, removed []string
	calls          int
}

func (r *recordingSink) Submit(added, removed []string) {
	r.calls++
	r.added = append(r.added, added...)
	r.removed = append(r.removed, removed...)
}

func send[K comparable](t *testing.T, tx *diff.Sender[K], k K, added bool) {
	t.Helper()
	require.NoError(t, tx.Send(diff.Event[K]{Key: k, Added: added}))
}

func TestTitlesSentinelNeverInserted(t *testing.T) {
	c := New(nil)
	tx, rx := diff.NewChannel[feeds.Title]()
	c.AttachTitles(diff.NewSet(
		feeds.Title{ID: "scp-173", Name: "The Sculpture"},
		feeds.Title{ID: "scp-1730", Name: feeds.AccessDenied},
	), rx)

	_, ok := c.Title("scp-1730")
	assert.False(t, ok)

	send(t, tx, feeds.Title{ID: "scp-2000", Name: feeds.AccessDenied}, true)
	c.Drain()

	_, ok = c.Title("scp-2000")
	assert.False(t, ok)
	name, ok := c.Title("SCP-173")
	assert.True(t, ok)
	assert.Equal(t, "The Sculpture", name)
}

func TestTitleRenameInEitherOrder(t *testing.T) {
	old := feeds.Title{ID: "scp-002", Name: "The Living Room"}
	renamed := feeds.Title{ID: "scp-002", Name: `The "Living" Room`}

	for _, removeFirst := range []bool{true, false} {
		c := New(nil)
		tx, rx := diff.NewChannel[feeds.Title]()
		c.AttachTitles(diff.NewSet(old), rx)

		if removeFirst {
			send(t, tx, old, false)
			send(t, tx, renamed, true)
		} else {
			send(t, tx, renamed, true)
			send(t, tx, old, false)
		}
		c.Drain()

		name, ok := c.Title("scp-002")
		require.True(t, ok, "removeFirst=%v", removeFirst)
		assert.Equal(t, renamed.Name, name)
	}
}

func TestSearchTitles(t *testing.T) {
	c := New(nil)
	_, rx := diff.NewChannel[feeds.Title]()
	c.AttachTitles(diff.NewSet(
		feeds.Title{ID: "scp-173", Name: "The Sculpture"},
		feeds.Title{ID: "scp-1730", Name: "What Happened to Site-13?"},
		feeds.Title{ID: "scp-096", Name: `The "Shy Guy"`},
	), rx)

	got := c.SearchTitles("173")
	require.Len(t, got, 2)
	assert.Equal(t, "scp-173", got[0].ID)
	assert.Equal(t, "scp-1730", got[1].ID)

	assert.Len(t, c.SearchTitles("shy guy"), 1)
	assert.Empty(t, c.SearchTitles("  "))
}

func TestBanLookup(t *testing.T) {
	c := New(nil)
	tx, rx := diff.NewChannel[feeds.ChannelBan]()
	troll := feeds.NewBan([]string{"troll"}, []string{"bad.host"}, feeds.Date{}, "Trolling")
	c.AttachBans(diff.NewSet(feeds.ChannelBan{Channel: "#site19", Ban: troll}), rx)

	ban, ok := c.Ban("#Site19", "TROLL", "fine.host")
	assert.True(t, ok)
	assert.Equal(t, "Trolling", ban.Reason)

	_, ok = c.Ban("#site17", "troll", "bad.host")
	assert.False(t, ok)

	send(t, tx, feeds.ChannelBan{Channel: "#site19", Ban: troll}, false)
	c.Drain()
	_, ok = c.Ban("#site19", "troll", "bad.host")
	assert.False(t, ok)
}

func TestPagesForwardedToSink(t *testing.T) {
	c := New(nil)
	sink := &recordingSink{}
	tx, rx := diff.NewChannel[string]()
	c.AttachPages(diff.NewSet("scp-173", "scp-096"), rx, sink)

	c.Drain()
	assert.Zero(t, sink.calls)

	send(t, tx, "scp-5000", true)
	send(t, tx, "scp-096", false)
	c.Drain()

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, []string{"scp-5000"}, sink.added)
	assert.Equal(t, []string{"scp-096"}, sink.removed)
	assert.True(t, c.HasPage("scp-5000"))
	assert.False(t, c.HasPage("scp-096"))
}

func TestAuthors(t *testing.T) {
	c := New(nil)
	tx, rx := diff.NewChannel[string]()
	c.AttachAuthors(diff.NewSet("Moto42", "Dr Gears", "dr dan"), rx)

	assert.True(t, c.HasAuthor("moto42"))
	assert.False(t, c.HasAuthor("nobody"))
	assert.Equal(t, []string{"Dr Gears", "dr dan"}, c.MatchAuthors("DR"))

	send(t, tx, "djkaktus", true)
	c.Drain()
	assert.True(t, c.HasAuthor("djkaktus"))
}

func TestDisconnectedFeedIsRetired(t *testing.T) {
	c := New(nil)
	tx, rx := diff.NewChannel[string]()
	c.AttachAuthors(diff.NewSet[string](), rx)

	send(t, tx, "last", true)
	tx.Close()
	c.Drain()

	assert.Nil(t, c.authorsRx)
	assert.True(t, c.HasAuthor("last"))

	// later drains skip the feed entirely
	c.Drain()
	assert.Equal(t, 1, c.Stats().Authors)
}

func TestMirrorConvergesWithEngine(t *testing.T) {
	steps := []diff.Set[string]{
		diff.NewSet[string](),
		diff.NewSet("A"),
		diff.NewSet("A", "B"),
		diff.NewSet("B"),
	}
	i := 0
	fetch := func(ctx context.Context) (diff.Set[string], error) {
		s := steps[i]
		i++
		return s, nil
	}

	e, rx, err := diff.Build(context.Background(), "pages", fetch)
	require.NoError(t, err)

	c := New(nil)
	c.AttachPages(e.Snapshot(), rx, nil)
	for _, want := range steps[1:] {
		_, err := e.Diff(context.Background())
		require.NoError(t, err)
		c.Drain()

		assert.Equal(t, want.Len(), c.Stats().Pages)
		for k := range want {
			assert.True(t, c.HasPage(k))
		}
	}
}

// indexPages serves series index HTML by url
type indexPages map[string]string

func (p indexPages) Document(ctx context.Context, url string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p[url]))
}

func TestTitlesMirrorWithRepeatedID(t *testing.T) {
	page := func(items ...string) string {
		return `<div class="series"><ul><li>` + strings.Join(items, "</li><li>") + `</li></ul></div>`
	}
	src := indexPages{"http://wiki/scp-series": page(
		`<a href="/scp-001">SCP-001</a> - The Gate Guardian`,
		`<a href="/scp-001">SCP-001</a> - The Factory`,
	)}
	fetch := feeds.Titles(src, feeds.TitleSources{Pages: []string{"http://wiki/scp-series"}})

	e, rx, err := diff.Build(context.Background(), "titles", fetch)
	require.NoError(t, err)
	c := New(nil)
	c.AttachTitles(e.Snapshot(), rx)

	// The second listing disappears; the first one must survive in the mirror
	src["http://wiki/scp-series"] = page(`<a href="/scp-001">SCP-001</a> - The Gate Guardian`)
	_, err = e.Diff(context.Background())
	require.NoError(t, err)
	c.Drain()

	name, ok := c.Title("scp-001")
	require.True(t, ok)
	assert.Equal(t, "The Gate Guardian", name)
	assert.Equal(t, e.Snapshot().Len(), c.Stats().Titles)
}
