package feeds

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dalnet/wikibot/internal/diff"
)

// genericSuffix marks placeholder nicks on the ban list that never match anyone
const genericSuffix = "-generic"

// dateLayout is the format of the expiry column
const dateLayout = "01/02/2006"

// Date is a calendar day. The zero Date means "no date".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in its own location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses MM/DD/YYYY. Anything else yields the zero Date.
func ParseDate(s string) Date {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}
	}
	return DateOf(t)
}

// IsZero reports whether d is unset
func (d Date) IsZero() bool {
	return d == Date{}
}

// Before reports whether d is strictly earlier than other
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Date) String() string {
	if d.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%02d/%02d/%04d", int(d.Month), d.Day, d.Year)
}

// Ban is one row of the ban list. Nicks and Hosts are stored in canonical
// form (lowercased, sorted, deduplicated, space separated) so that two rows
// describing the same ban compare equal.
type Ban struct {
	Nicks   string
	Hosts   string
	Expires Date
	Reason  string
}

// ChannelBan is a ban applied to one channel; it is the key of the bans feed.
type ChannelBan struct {
	Channel string
	Ban     Ban
}

// NewBan builds a ban from raw nick and host lists. Nicks with the generic
// suffix are dropped and hosts are reduced to the part after the last '@'.
func NewBan(nicks, hosts []string, expires Date, reason string) Ban {
	var n, h []string
	for _, nick := range nicks {
		nick = strings.ToLower(strings.TrimSpace(nick))
		if nick == "" || strings.HasSuffix(nick, genericSuffix) {
			continue
		}
		n = append(n, nick)
	}
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if i := strings.LastIndexByte(host, '@'); i >= 0 {
			host = host[i+1:]
		}
		if host == "" {
			continue
		}
		h = append(h, host)
	}
	return Ban{
		Nicks:   canonical(n),
		Hosts:   canonical(h),
		Expires: expires,
		Reason:  strings.TrimSpace(reason),
	}
}

func canonical(items []string) string {
	sort.Strings(items)
	out := items[:0]
	for i, s := range items {
		if i > 0 && s == items[i-1] {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

// NickList returns the banned nicks
func (b Ban) NickList() []string {
	return strings.Fields(b.Nicks)
}

// HostList returns the banned hosts
func (b Ban) HostList() []string {
	return strings.Fields(b.Hosts)
}

// Active reports whether the ban still applies on the day of now. A ban with
// no expiry is always active; one expiring today still is.
func (b Ban) Active(now time.Time) bool {
	return b.Expires.IsZero() || !b.Expires.Before(DateOf(now))
}

// Matches reports whether the nick or host is covered by the ban
func (b Ban) Matches(nick, host string) bool {
	nick = strings.ToLower(nick)
	host = strings.ToLower(host)
	for _, n := range b.NickList() {
		if n == nick {
			return true
		}
	}
	if host == "" {
		return false
	}
	for _, h := range b.HostList() {
		if h == host {
			return true
		}
	}
	return false
}

// Bans returns the fetch function of the ban list at url. now is consulted on
// every fetch to drop expired bans.
func Bans(src DocumentSource, url string, now func() time.Time) diff.FetchFunc[ChannelBan] {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) (diff.Set[ChannelBan], error) {
		doc, err := src.Document(ctx, url)
		if err != nil {
			return nil, err
		}
		return ParseBans(doc, now()), nil
	}
}

// ParseBans extracts every active ban from the ban list. Each table names its
// channels in its first header cell; rows with fewer than four cells are skipped.
func ParseBans(doc *goquery.Document, now time.Time) diff.Set[ChannelBan] {
	bans := diff.NewSet[ChannelBan]()
	doc.Find(".wiki-content-table").Each(func(_ int, table *goquery.Selection) {
		th := table.Find("th").First()
		if th.Length() == 0 {
			return
		}
		chans := strings.Fields(strings.ToLower(th.Text()))
		if len(chans) == 0 {
			return
		}

		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			ban, ok := parseBanRow(tr)
			if !ok || !ban.Active(now) {
				return
			}
			for _, ch := range chans {
				bans.Add(ChannelBan{Channel: ch, Ban: ban})
			}
		})
	})
	return bans
}

func parseBanRow(tr *goquery.Selection) (Ban, bool) {
	tds := tr.Find("td")
	if tds.Length() < 4 {
		return Ban{}, false
	}
	ban := NewBan(
		strings.Fields(tds.Eq(0).Text()),
		strings.Fields(tds.Eq(1).Text()),
		ParseDate(tds.Eq(2).Text()),
		cellText(tds.Eq(3)),
	)
	if ban.Nicks == "" && ban.Hosts == "" {
		return Ban{}, false
	}
	return ban, true
}
