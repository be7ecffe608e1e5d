package irc

// This file contains documentation for the IRC event handlers.
// The actual handler implementations are split across:
// - client.go: Connection lifecycle, PRIVMSG, JOIN, nick and WATCH handlers
// - commands.go: Bot command implementations

/*
Handler Summary:

Connection Events:
- 376/422 (onConnect): End of MOTD / MOTD missing - bot is connected
  - Identifies to NickServ
  - Joins the configured channels

Messages:
- PRIVMSG (onPrivMsg): channel and private messages
  - Drains pending feed events into the cache
  - Extracts !cmd, .cmd or [cmd] commands and runs each one
  - Replies in the channel (prefixed with the nick) or by private message

Joins:
- JOIN (onJoin): someone joined a channel we are in
  - Drains pending feed events into the cache
  - If the ban list covers the nick or host: MODE +b *!*@host, KICK with
    the ban reason, and an entry in kicks.txt

Nick Issues:
- 432 (onNickHeld): ERR_ERRONEUSNICKNAME - Nick is held
  - Switches to alternate nick
  - Schedules RELEASE and nick change
- 433 (onNickInUse): ERR_NICKNAMEINUSE - Nick in use
  - Switches to alternate nick
  - Schedules GHOST and nick change

Admin Session:
- 601 (onWatchLogout): RPL_LOGOFF - WATCH notification
  - Auto-logs out admin if they quit/change nick

CTCP:
- CTCP_VERSION: Responds with bot version information
*/
