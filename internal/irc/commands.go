package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalnet/wikibot/internal/feeds"
)

const (
	noResults = "I'm sorry, I couldn't find anything."
	// maxLine keeps replies inside one IRC line
	maxLine = 429
	// maxChoices bounds how many ambiguous results are offered
	maxChoices = 20
)

// parseCommands extracts the commands in a message: the whole message after
// a leading '!' or '.', or else every non-empty [bracketed] part.
func parseCommands(message string) []string {
	message = strings.TrimSpace(message)
	if len(message) > 1 && (message[0] == '!' || message[0] == '.') {
		return []string{strings.TrimSpace(message[1:])}
	}

	var cmds []string
	parts := strings.Split(message, "[")
	for _, p := range parts[1:] {
		i := strings.IndexByte(p, ']')
		if i < 0 {
			continue
		}
		if cmd := strings.TrimSpace(p[:i]); cmd != "" {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// handleCommand processes one command, given without its prefix
func (c *Client) handleCommand(req request, command string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help":
		c.cmdHelp(req, command)
	case "title", "scp":
		c.cmdTitle(req, command, args)
	case "search", "s":
		c.cmdSearch(req, command, args)
	case "author", "au":
		c.cmdAuthor(req, command, args)
	case "banned":
		c.cmdBanned(req, command, args)
	case "stats":
		c.cmdStats(req, command)
	case "showmore", "sm":
		c.cmdShowMore(req, command, args)
	case "version":
		c.cmdVersion(req, command)
	case "login", "su":
		c.cmdLogin(req, args)
	case "logout":
		c.cmdLogout(req)
	case "kicks":
		c.cmdKicks(req, command, args)
	case "nick":
		c.cmdNick(req, args)
	case "shutdown":
		c.cmdShutdown(req, command)
	default:
		// A bare SCP number or id in brackets, e.g. [173] or [scp-173]
		if len(args) == 0 && normalizeID(cmd) != "" {
			c.cmdTitle(req, command, fields)
		}
	}
}

func (c *Client) reply(req request, text string) {
	if req.channel != "" {
		c.conn.Privmsg(req.channel, fmt.Sprintf("%s: %s", req.nick, text))
		return
	}
	c.conn.Privmsg(req.nick, text)
}

func (c *Client) cmdHelp(req request, message string) {
	c.logCommand(req.hostmask, message)

	lines := []string{
		"Available commands (prefix with ! or . or wrap in [brackets]):",
		"!title <number|id> - shows the title of an SCP (also !scp, or just [173])",
		"!search <text> - searches SCP ids and titles",
		"!author <name> - checks whether someone has written for the wiki",
		"!banned [#channel] <nick> [host] - checks the ban list",
		"!showmore <n> - picks result n from the last list I offered",
		"!stats - shows how much of the wiki I have mirrored",
		"!version - displays bot version information",
	}
	if c.isAdmin(req.nick) {
		lines = append(lines,
			" ",
			"Admin commands:",
			"!kicks [n] - shows the last ban enforcements",
			"!nick - if you need to change my nick",
			"!shutdown",
			"!logout",
		)
	}
	for _, line := range lines {
		c.conn.Notice(req.nick, line)
	}
}

// normalizeID turns "173", "SCP-173" or "scp-173-j" into a title key.
// It returns "" for anything that isn't an SCP reference.
func normalizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if _, err := strconv.Atoi(s); err == nil {
		if len(s) < 3 {
			s = strings.Repeat("0", 3-len(s)) + s
		}
		return "scp-" + s
	}
	if strings.HasPrefix(s, "scp-") && len(s) > len("scp-") {
		return s
	}
	return ""
}

func (c *Client) pageURL(id string) string {
	return fmt.Sprintf("http://%s.wikidot.com/%s", c.cfg.Wikidot.Site, id)
}

func (c *Client) cmdTitle(req request, message string, args []string) {
	c.logCommand(req.hostmask, message)

	if len(args) != 1 {
		c.reply(req, "Usage: !title <number|id>")
		return
	}
	id := normalizeID(args[0])
	if id == "" {
		id = strings.ToLower(args[0])
	}
	name, ok := c.cache.Title(id)
	if !ok {
		c.reply(req, noResults)
		return
	}
	c.reply(req, fmt.Sprintf("\x02%s\x02: %s - %s", strings.ToUpper(id), name, c.pageURL(id)))
}

func (c *Client) cmdSearch(req request, message string, args []string) {
	c.logCommand(req.hostmask, message)

	if len(args) == 0 {
		c.reply(req, "Usage: !search <text>")
		return
	}
	results := c.cache.SearchTitles(strings.Join(args, " "))
	switch len(results) {
	case 0:
		c.reply(req, noResults)
	case 1:
		t := results[0]
		c.reply(req, fmt.Sprintf("\x02%s\x02: %s - %s", strings.ToUpper(t.ID), t.Name, c.pageURL(t.ID)))
	default:
		c.offer(req, "title", titleChoices(results), len(results))
	}
}

func titleChoices(ts []feeds.Title) [][2]string {
	out := make([][2]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, [2]string{t.ID, fmt.Sprintf("%s %s", strings.ToUpper(t.ID), t.Name)})
	}
	return out
}

// offer replies with a numbered list of choices; each pair is the argument
// replayed by !showmore and its label. total counts every match, listed or not.
func (c *Client) offer(req request, cmd string, choices [][2]string, total int) {
	if len(choices) > maxChoices {
		choices = choices[:maxChoices]
	}

	c.choices = c.choices[:0]
	labels := make([]string, 0, len(choices))
	for _, ch := range choices {
		c.choices = append(c.choices, cmd+" "+ch[0])
		labels = append(labels, ch[1])
	}
	c.reply(req, suggest(labels, total))
}

// suggest formats a "Did you mean" list that fits in one line
func suggest(labels []string, total int) string {
	if len(labels) == 0 {
		return noResults
	}
	var b strings.Builder
	b.WriteString("Did you mean:")
	for i, l := range labels {
		item := fmt.Sprintf(" (%d) %s", i+1, l)
		if i > 0 {
			item = "," + item
		}
		if b.Len()+len(item) > maxLine {
			break
		}
		b.WriteString(item)
	}
	if total > len(labels) {
		fmt.Fprintf(&b, " (%d total)", total)
	}
	return b.String()
}

// cmdShowMore replays choice n of the last list offered. There is one list
// for the whole bot, shared by every channel and private message.
func (c *Client) cmdShowMore(req request, message string, args []string) {
	c.logCommand(req.hostmask, message)

	if len(args) != 1 {
		c.reply(req, "Usage: !showmore <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		c.reply(req, "Usage: !showmore <n>")
		return
	}
	if n > len(c.choices) {
		c.reply(req, "That isn't one of my options.")
		return
	}
	c.handleCommand(req, c.choices[n-1])
}

func (c *Client) cmdAuthor(req request, message string, args []string) {
	c.logCommand(req.hostmask, message)

	if len(args) == 0 {
		c.reply(req, "Usage: !author <name>")
		return
	}
	name := strings.Join(args, " ")
	if c.cache.HasAuthor(name) {
		c.reply(req, fmt.Sprintf("\x02%s\x02 has written for the wiki.", name))
		return
	}

	matches := c.cache.MatchAuthors(name)
	switch len(matches) {
	case 0:
		c.reply(req, noResults)
	case 1:
		c.reply(req, fmt.Sprintf("\x02%s\x02 has written for the wiki.", matches[0]))
	default:
		choices := make([][2]string, 0, len(matches))
		for _, m := range matches {
			choices = append(choices, [2]string{m, m})
		}
		c.offer(req, "author", choices, len(matches))
	}
}

func (c *Client) cmdBanned(req request, message string, args []string) {
	c.logCommand(req.hostmask, message)

	channel := req.channel
	if len(args) > 0 && isChannel(args[0]) {
		channel = args[0]
		args = args[1:]
	}
	if channel == "" || len(args) == 0 || len(args) > 2 {
		c.reply(req, "Usage: !banned [#channel] <nick> [host]")
		return
	}

	nick := args[0]
	host := ""
	if len(args) == 2 {
		host = args[1]
	}

	ban, ok := c.cache.Ban(channel, nick, host)
	if !ok {
		c.reply(req, fmt.Sprintf("%s is not banned from %s.", nick, channel))
		return
	}
	until := "permanently"
	if !ban.Expires.IsZero() {
		until = "until " + ban.Expires.String()
	}
	c.reply(req, fmt.Sprintf("%s is banned from %s %s: %s", nick, channel, until, ban.Reason))
}

func (c *Client) cmdStats(req request, message string) {
	c.logCommand(req.hostmask, message)

	s := c.cache.Stats()
	c.reply(req, fmt.Sprintf("I know %d titles, %d pages and %d authors, and enforce %d channel bans.",
		s.Titles, s.Pages, s.Authors, s.Bans))
}

func (c *Client) cmdVersion(req request, message string) {
	c.logCommand(req.hostmask, message)
	c.reply(req, versionString())
}

func (c *Client) cmdLogin(req request, args []string) {
	// Passwords are never accepted in a channel
	if req.channel != "" {
		c.reply(req, "Please log in by private message.")
		return
	}
	if len(args) < 1 {
		c.conn.Privmsg(req.nick, "Usage: !login <password>")
		return
	}

	if c.cfg.AdminPass != "" && args[0] == c.cfg.AdminPass {
		c.mu.Lock()
		c.admins[req.nick] = true
		c.mu.Unlock()

		c.conn.SendRaw(fmt.Sprintf("WATCH +%s", req.nick))
		c.conn.Privmsg(req.nick, "Password accepted, you are now an admin. Type !help for a list of admin-only commands")
		c.logCommand(req.hostmask, "successful login")
	} else {
		c.conn.Privmsg(req.nick, "Password incorrect")
		c.logCommand(req.hostmask, "INCORRECT LOGIN ATTEMPT")
	}
}

func (c *Client) cmdLogout(req request) {
	c.mu.Lock()
	isAdmin := c.admins[req.nick]
	delete(c.admins, req.nick)
	c.mu.Unlock()

	if isAdmin {
		c.conn.SendRaw(fmt.Sprintf("WATCH -%s", req.nick))
		c.conn.Privmsg(req.nick, "You have been logged out")
		c.logCommand(req.hostmask, "logged out")
	} else {
		c.conn.Privmsg(req.nick, "You're not logged in!")
		c.logCommand(req.hostmask, "tried to log out, but wasn't logged in")
	}
}

func (c *Client) cmdKicks(req request, message string, args []string) {
	if !c.isAdmin(req.nick) {
		c.conn.Privmsg(req.nick, "Sorry, only my admins can see the kick log")
		c.logCommand(req.hostmask, "tried to read the kick log, but wasn't logged in")
		return
	}
	c.logCommand(req.hostmask, message)

	count := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			count = n
		}
	}

	c.mu.RLock()
	kicks := c.kicks
	c.mu.RUnlock()

	c.conn.Privmsg(req.nick, fmt.Sprintf("The last \x02%d\x02 ban enforcements:", count))
	for i := 0; i < count && i < len(kicks); i++ {
		c.conn.Privmsg(req.nick, kicks[i])
	}
}

func (c *Client) cmdNick(req request, args []string) {
	newNick := ""
	if len(args) > 0 {
		newNick = args[0]
	}

	if !c.isAdmin(req.nick) {
		c.conn.Privmsg(req.nick, "Sorry, only my admins can change my nick")
		c.logCommand(req.hostmask, fmt.Sprintf("nick change command to %s, not logged in", newNick))
		return
	}

	if newNick == "" {
		c.conn.Privmsg(req.nick, "Usage: !nick <newnick>")
		return
	}

	c.conn.SetNick(newNick)
	time.AfterFunc(time.Second, func() {
		c.conn.Privmsg(req.nick, fmt.Sprintf("Changed nick to %s", newNick))
	})
	c.logCommand(req.hostmask, fmt.Sprintf("nick change command to %s", newNick))
}

func (c *Client) cmdShutdown(req request, message string) {
	if !c.isAdmin(req.nick) {
		c.conn.Privmsg(req.nick, "Sorry, only my admins can shut me down")
		c.logCommand(req.hostmask, "issued the shutdown command but wasn't logged in")
		return
	}

	c.logCommand(req.hostmask, message)
	c.conn.Privmsg(req.nick, "Shutting down")

	if c.OnShutdown != nil {
		c.OnShutdown()
	}
}
