package irc

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dalnet/wikibot/internal/cache"
	"github.com/dalnet/wikibot/internal/config"
	"github.com/dalnet/wikibot/internal/storage"
	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// conn is the part of *ircevent.Connection the bot talks through
type conn interface {
	Privmsg(target, message string) error
	Notice(target, message string) error
	Send(command string, params ...string) error
	SendRaw(message string) error
	Join(channel string) error
	SetNick(n string)
	CurrentNick() string
}

// Client represents the IRC bot client.
//
// ircevent runs callbacks one at a time on its read goroutine; the cache is
// only ever touched from there.
type Client struct {
	irc   *ircevent.Connection
	conn  conn
	cfg   *config.Config
	log   *zap.Logger
	cache *cache.Cache

	mu     sync.RWMutex
	ready  bool
	closed bool

	stats []string
	kicks []string

	// Admin session tracking: nick -> is admin
	admins map[string]bool

	// Last ambiguous result, replayed by !showmore. Not kept per channel.
	choices []string

	// recoverDelay is how long to wait before reclaiming the primary nick
	recoverDelay time.Duration

	// Shutdown callback
	OnShutdown func()
}

// NewClient creates a new IRC client serving lookups from c.
func NewClient(cfg *config.Config, c *cache.Cache, log *zap.Logger) (*Client, error) {
	conn := &ircevent.Connection{
		Server:      fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
		Nick:        cfg.Nick,
		User:        cfg.Username,
		RealName:    cfg.IRCName,
		Password:    cfg.ServerPass,
		QuitMessage: "Shutting down",
		Debug:       false,
		UseTLS:      cfg.UseTLS,
		TLSConfig:   &tls.Config{ServerName: cfg.Server},
	}

	client := newClient(cfg, conn, c, log)
	client.irc = conn
	client.registerHandlers()
	return client, nil
}

func newClient(cfg *config.Config, conn conn, c *cache.Cache, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	client := &Client{
		conn:         conn,
		cfg:          cfg,
		log:          log,
		cache:        c,
		admins:       make(map[string]bool),
		recoverDelay: 15 * time.Second,
	}

	var err error
	client.stats, err = storage.LoadStats(cfg.DataDir)
	if err != nil {
		log.Warn("Could not load stats", zap.Error(err))
	}
	client.kicks, err = storage.LoadKicks(cfg.DataDir)
	if err != nil {
		log.Warn("Could not load kicks", zap.Error(err))
	}
	return client
}

func (c *Client) registerHandlers() {
	// Connected (end of MOTD)
	c.irc.AddCallback("376", c.onConnect)
	c.irc.AddCallback("422", c.onConnect) // MOTD missing is also "connected"

	c.irc.AddCallback("PRIVMSG", c.onPrivMsg)
	c.irc.AddCallback("JOIN", c.onJoin)

	// Nick issues
	c.irc.AddCallback("432", c.onNickHeld) // ERR_ERRONEUSNICKNAME
	c.irc.AddCallback("433", c.onNickInUse) // ERR_NICKNAMEINUSE

	// WATCH logout notification
	c.irc.AddCallback("601", c.onWatchLogout) // RPL_LOGOFF

	c.irc.AddCallback("CTCP_VERSION", c.onCtcpVersion)
}

// Connect initiates the IRC connection
func (c *Client) Connect() error {
	return c.irc.Connect()
}

// Loop runs the IRC event loop (blocking)
func (c *Client) Loop() {
	c.irc.Loop()
}

// Quit disconnects from IRC
func (c *Client) Quit(message string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.irc != nil {
		c.irc.QuitMessage = message
		c.irc.Quit()
	}
}

// Ready reports whether registration has completed
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Client) onConnect(e ircmsg.Message) {
	c.log.Info("Connected to IRC server")

	// Identify to NickServ
	if c.cfg.NickPass != "" {
		c.conn.Privmsg("NickServ", fmt.Sprintf("IDENTIFY %s %s", c.cfg.Nick, c.cfg.NickPass))
	}

	for _, ch := range c.cfg.Channels {
		if err := c.conn.Join(ch); err != nil {
			c.log.Warn("Failed to join channel", zap.String("channel", ch), zap.Error(err))
		}
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	c.log.Info("Bot initialization complete", zap.Strings("channels", c.cfg.Channels))
}

// request is the origin of one incoming message
type request struct {
	nick     string
	host     string
	hostmask string
	// channel is empty for private messages
	channel string
}

// replyTarget is where answers to r go
func (r request) replyTarget() string {
	if r.channel != "" {
		return r.channel
	}
	return r.nick
}

func isChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}

func (c *Client) onPrivMsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}

	target := e.Params[0]
	message := e.Params[1]
	nuh, err := e.NUH()
	if err != nil {
		return
	}

	req := request{
		nick:     nuh.Name,
		host:     nuh.Host,
		hostmask: nuh.Canonical(),
	}
	if isChannel(target) {
		req.channel = target
	} else if !strings.EqualFold(target, c.conn.CurrentNick()) {
		return
	}

	// Every message brings the mirrors up to date before it is served
	c.cache.Drain()

	for _, cmd := range parseCommands(message) {
		c.handleCommand(req, cmd)
	}
}

func (c *Client) onJoin(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	nuh, err := e.NUH()
	if err != nil {
		return
	}
	if strings.EqualFold(nuh.Name, c.conn.CurrentNick()) {
		return
	}
	channel := e.Params[0]

	c.cache.Drain()

	ban, ok := c.cache.Ban(channel, nuh.Name, nuh.Host)
	if !ok {
		return
	}

	c.log.Warn("Banning user on join",
		zap.String("channel", channel),
		zap.String("nick", nuh.Name),
		zap.String("host", nuh.Host),
		zap.String("reason", ban.Reason))

	mask := "*!*@" + nuh.Host
	c.conn.Send("MODE", channel, "+b", mask)
	c.conn.Send("KICK", channel, nuh.Name, ban.Reason)

	timestamp := time.Now().UTC().Format("Mon Jan 02, 2006 15:04:05 GMT")
	entry := fmt.Sprintf("[%s] %s: %s (%s) - %s", timestamp, channel, nuh.Name, mask, ban.Reason)

	c.mu.Lock()
	c.kicks = storage.AddKick(c.kicks, entry)
	kicks := c.kicks
	c.mu.Unlock()

	if err := storage.SaveKicks(c.cfg.DataDir, kicks); err != nil {
		c.log.Error("Error saving kicks", zap.Error(err))
	}
}

func (c *Client) onNickHeld(e ircmsg.Message) {
	c.switchToAlternate("RELEASE")
}

func (c *Client) onNickInUse(e ircmsg.Message) {
	c.switchToAlternate("GHOST")
}

// switchToAlternate takes the alternate nick and schedules recovery of the
// primary one through NickServ.
func (c *Client) switchToAlternate(verb string) {
	if c.conn.CurrentNick() == c.cfg.Alternate {
		return
	}
	c.log.Warn("Nick unavailable, switching to alternate",
		zap.String("nick", c.cfg.Nick), zap.String("alternate", c.cfg.Alternate))
	c.conn.SetNick(c.cfg.Alternate)

	if c.cfg.NickPass == "" {
		return
	}
	go func() {
		time.Sleep(c.recoverDelay)
		c.conn.Privmsg("NickServ", fmt.Sprintf("%s %s %s", verb, c.cfg.Nick, c.cfg.NickPass))
		time.Sleep(2 * time.Second)
		c.conn.SetNick(c.cfg.Nick)
	}()
}

func (c *Client) onWatchLogout(e ircmsg.Message) {
	// 601 <me> <nick> <user> <host> <timestamp> :logged out
	if len(e.Params) < 2 {
		return
	}
	nick := e.Params[1]

	c.mu.Lock()
	delete(c.admins, nick)
	c.mu.Unlock()

	c.conn.SendRaw(fmt.Sprintf("WATCH -%s", nick))
}

func (c *Client) onCtcpVersion(e ircmsg.Message) {
	nick := e.Nick()
	c.conn.SendRaw(fmt.Sprintf("NOTICE %s :\x01VERSION %s\x01", nick, versionString()))
}

func versionString() string {
	return fmt.Sprintf("wikibot %s (built %s, commit %s)", Version, BuildDate, GitCommit)
}

func (c *Client) isAdmin(nick string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admins[nick]
}

func (c *Client) logCommand(hostmask, command string) {
	timestamp := time.Now().UTC().Format("Mon Jan 02, 2006 at 15:04:05 GMT")
	entry := fmt.Sprintf("%s: %s -> %s", timestamp, hostmask, command)

	c.mu.Lock()
	c.stats = storage.AddStat(c.stats, entry)
	stats := c.stats
	c.mu.Unlock()

	if err := storage.SaveStats(c.cfg.DataDir, stats); err != nil {
		c.log.Error("Error saving stats", zap.Error(err))
	}
}
