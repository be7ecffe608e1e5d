package irc

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalnet/wikibot/internal/cache"
	"github.com/dalnet/wikibot/internal/config"
	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/feeds"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records everything the client sends
type fakeConn struct {
	mu    sync.Mutex
	nick  string
	lines []string
}

func (f *fakeConn) record(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeConn) Privmsg(target, message string) error {
	return f.record("PRIVMSG " + target + " :" + message)
}

func (f *fakeConn) Notice(target, message string) error {
	return f.record("NOTICE " + target + " :" + message)
}

func (f *fakeConn) Send(command string, params ...string) error {
	return f.record(strings.Join(append([]string{command}, params...), " "))
}

func (f *fakeConn) SendRaw(message string) error { return f.record(message) }

func (f *fakeConn) Join(channel string) error { return f.record("JOIN " + channel) }

func (f *fakeConn) SetNick(n string) {
	f.mu.Lock()
	f.nick = n
	f.mu.Unlock()
}

func (f *fakeConn) CurrentNick() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nick
}

func (f *fakeConn) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.lines = nil
	f.mu.Unlock()
}

type harness struct {
	client  *Client
	conn    *fakeConn
	titles  *diff.Sender[feeds.Title]
	dataDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Nick = "Helen"
	cfg.Alternate = "Helen_"
	cfg.NickPass = "nspass"
	cfg.AdminPass = "hunter2"
	cfg.Channels = []string{"#site19", "#site17"}
	cfg.DataDir = dir

	c := cache.New(nil)
	titlesTx, titlesRx := diff.NewChannel[feeds.Title]()
	c.AttachTitles(diff.NewSet(
		feeds.Title{ID: "scp-173", Name: "The Sculpture"},
		feeds.Title{ID: "scp-1730", Name: "What Happened to Site-13?"},
		feeds.Title{ID: "scp-096", Name: `The "Shy Guy"`},
	), titlesRx)

	_, bansRx := diff.NewChannel[feeds.ChannelBan]()
	troll := feeds.NewBan([]string{"troll"}, []string{"bad.host"}, feeds.Date{}, "Trolling")
	c.AttachBans(diff.NewSet(feeds.ChannelBan{Channel: "#site19", Ban: troll}), bansRx)

	_, authorsRx := diff.NewChannel[string]()
	c.AttachAuthors(diff.NewSet("Moto42", "Dr Gears", "dr dan"), authorsRx)

	fc := &fakeConn{nick: "Helen"}
	return &harness{
		client:  newClient(cfg, fc, c, nil),
		conn:    fc,
		titles:  titlesTx,
		dataDir: dir,
	}
}

func parse(t *testing.T, line string) ircmsg.Message {
	t.Helper()
	m, err := ircmsg.ParseLine(line)
	require.NoError(t, err)
	return m
}

func (h *harness) privmsg(t *testing.T, from, target, text string) {
	h.client.onPrivMsg(parse(t, ":"+from+" PRIVMSG "+target+" :"+text))
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"!title 173", []string{"title 173"}},
		{".search shy guy", []string{"search shy guy"}},
		{"have you read [173] or [ scp-096 ]?", []string{"173", "scp-096"}},
		{"empty [] and unclosed [173", nil},
		{"just chatting", nil},
		{"!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommands(tt.in))
		})
	}
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "scp-173", normalizeID("173"))
	assert.Equal(t, "scp-002", normalizeID("2"))
	assert.Equal(t, "scp-173", normalizeID("SCP-173"))
	assert.Equal(t, "scp-173-j", normalizeID("scp-173-j"))
	assert.Equal(t, "", normalizeID("hello"))
	assert.Equal(t, "", normalizeID("scp-"))
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, noResults, suggest(nil, 0))
	assert.Equal(t, "Did you mean: (1) a, (2) b", suggest([]string{"a", "b"}, 2))
	assert.Equal(t, "Did you mean: (1) a (5 total)", suggest([]string{"a"}, 5))

	long := strings.Repeat("x", 300)
	s := suggest([]string{long, long}, 2)
	assert.LessOrEqual(t, len(s), maxLine+len(" (2 total)"))
}

func TestOnConnectIdentifiesAndJoins(t *testing.T) {
	h := newHarness(t)
	h.client.onConnect(parse(t, ":irc.example.net 376 Helen :End of /MOTD command."))

	assert.Equal(t, []string{
		"PRIVMSG NickServ :IDENTIFY Helen nspass",
		"JOIN #site19",
		"JOIN #site17",
	}, h.conn.sent())
	assert.True(t, h.client.Ready())
}

func TestTitleInChannel(t *testing.T) {
	h := newHarness(t)
	h.privmsg(t, "reader!~r@reader.host", "#site19", "!title 173")

	assert.Equal(t, []string{
		"PRIVMSG #site19 :reader: \x02SCP-173\x02: The Sculpture - http://scp-wiki.wikidot.com/scp-173",
	}, h.conn.sent())
}

func TestBracketCommandsAndPrivateReply(t *testing.T) {
	h := newHarness(t)
	h.privmsg(t, "reader!~r@reader.host", "Helen", "what are [173] and [999]?")

	sent := h.conn.sent()
	require.Len(t, sent, 2)
	assert.True(t, strings.HasPrefix(sent[0], "PRIVMSG reader :\x02SCP-173\x02"))
	assert.Equal(t, "PRIVMSG reader :"+noResults, sent[1])
}

func TestMessagesToOthersIgnored(t *testing.T) {
	h := newHarness(t)
	h.privmsg(t, "reader!~r@reader.host", "SomeoneElse", "!title 173")
	assert.Empty(t, h.conn.sent())
}

func TestDrainBeforeDispatch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.titles.Send(diff.Event[feeds.Title]{
		Key: feeds.Title{ID: "scp-5000", Name: "Why?"}, Added: true,
	}))

	h.privmsg(t, "reader!~r@reader.host", "#site19", "!scp 5000")
	sent := h.conn.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Why?")
}

func TestSearchAndShowMore(t *testing.T) {
	h := newHarness(t)
	h.privmsg(t, "reader!~r@reader.host", "#site19", "!search 173")

	sent := h.conn.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "PRIVMSG #site19 :reader: Did you mean: (1) SCP-173 The Sculpture, (2) SCP-1730 What Happened to Site-13?", sent[0])

	h.conn.reset()
	h.privmsg(t, "reader!~r@reader.host", "#site19", "!sm 2")
	sent = h.conn.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "SCP-1730")

	h.conn.reset()
	h.privmsg(t, "reader!~r@reader.host", "#site19", "!sm 9")
	assert.Equal(t, []string{"PRIVMSG #site19 :reader: That isn't one of my options."}, h.conn.sent())

	data, err := os.ReadFile(filepath.Join(h.dataDir, "stats.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "reader!~r@reader.host -> sm 2")
	assert.Contains(t, string(data), "reader!~r@reader.host -> sm 9")
}

func TestAuthorLookup(t *testing.T) {
	h := newHarness(t)

	h.privmsg(t, "reader!~r@reader.host", "Helen", "!author moto42")
	h.privmsg(t, "reader!~r@reader.host", "Helen", "!author dr")
	h.privmsg(t, "reader!~r@reader.host", "Helen", "!author nobody")

	assert.Equal(t, []string{
		"PRIVMSG reader :\x02moto42\x02 has written for the wiki.",
		"PRIVMSG reader :Did you mean: (1) Dr Gears, (2) dr dan",
		"PRIVMSG reader :" + noResults,
	}, h.conn.sent())
}

func TestBannedCommand(t *testing.T) {
	h := newHarness(t)

	h.privmsg(t, "op!~o@op.host", "#site19", "!banned Troll")
	h.privmsg(t, "op!~o@op.host", "Helen", "!banned #site19 someone bad.host")
	h.privmsg(t, "op!~o@op.host", "Helen", "!banned #site17 troll")
	h.privmsg(t, "op!~o@op.host", "Helen", "!banned troll")

	assert.Equal(t, []string{
		"PRIVMSG #site19 :op: Troll is banned from #site19 permanently: Trolling",
		"PRIVMSG op :someone is banned from #site19 permanently: Trolling",
		"PRIVMSG op :troll is not banned from #site17.",
		"PRIVMSG op :Usage: !banned [#channel] <nick> [host]",
	}, h.conn.sent())
}

func TestJoinEnforcesBan(t *testing.T) {
	h := newHarness(t)
	h.client.onJoin(parse(t, ":Troll!~t@bad.host JOIN #site19"))

	assert.Equal(t, []string{
		"MODE #site19 +b *!*@bad.host",
		"KICK #site19 Troll Trolling",
	}, h.conn.sent())

	data, err := os.ReadFile(filepath.Join(h.dataDir, "kicks.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "#site19: Troll (*!*@bad.host) - Trolling")
}

func TestJoinIgnoresCleanUsersAndSelf(t *testing.T) {
	h := newHarness(t)
	h.client.onJoin(parse(t, ":reader!~r@reader.host JOIN #site19"))
	h.client.onJoin(parse(t, ":Troll!~t@bad.host JOIN #site17"))
	h.client.onJoin(parse(t, ":Helen!~h@bot.host JOIN #site19"))
	assert.Empty(t, h.conn.sent())
}

func TestAdminSession(t *testing.T) {
	h := newHarness(t)
	shutdown := false
	h.client.OnShutdown = func() { shutdown = true }

	h.privmsg(t, "boss!~b@boss.host", "Helen", "!shutdown")
	assert.False(t, shutdown)

	h.privmsg(t, "boss!~b@boss.host", "#site19", "!login hunter2")
	assert.False(t, h.client.isAdmin("boss"))

	h.privmsg(t, "boss!~b@boss.host", "Helen", "!login wrong")
	assert.False(t, h.client.isAdmin("boss"))

	h.privmsg(t, "boss!~b@boss.host", "Helen", "!login hunter2")
	assert.True(t, h.client.isAdmin("boss"))
	assert.Contains(t, h.conn.sent(), "WATCH +boss")

	h.privmsg(t, "boss!~b@boss.host", "Helen", "!shutdown")
	assert.True(t, shutdown)

	// A WATCH logoff ends the session
	h.client.onWatchLogout(parse(t, ":irc.example.net 601 Helen boss ~b boss.host 0 :logged out"))
	assert.False(t, h.client.isAdmin("boss"))
}

func TestCommandsAreAudited(t *testing.T) {
	h := newHarness(t)
	h.privmsg(t, "reader!~r@reader.host", "#site19", "!stats")

	sent := h.conn.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "PRIVMSG #site19 :reader: I know 3 titles, 0 pages and 3 authors, and enforce 1 channel bans.", sent[0])

	data, err := os.ReadFile(filepath.Join(h.dataDir, "stats.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "reader!~r@reader.host -> stats")
}

func TestNickInUseSwitchesToAlternate(t *testing.T) {
	h := newHarness(t)
	h.client.recoverDelay = 0

	h.client.onNickInUse(parse(t, ":irc.example.net 433 * Helen :Nickname is already in use"))
	assert.Equal(t, "Helen_", h.conn.CurrentNick())

	assert.Eventually(t, func() bool {
		for _, l := range h.conn.sent() {
			if l == "PRIVMSG NickServ :GHOST Helen nspass" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}
