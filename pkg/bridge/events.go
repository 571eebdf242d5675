// Copyright 2025-2026 Mantene

package bridge

// Event is a tagged variant delivered to the bridge's serialized event
// loop. Transports construct the exported variants; the unexported ones are
// internal continuations posted by the bridge itself.
type Event interface {
	isEvent()
}

// EventSink accepts events for a bridge's serialized loop. Both transports
// and the shadow session timers post through it.
type EventSink interface {
	Queue(evt Event)
}

// --- Slack side ---

// SlackMessage is a message event from the Slack RTM stream.
type SlackMessage struct {
	UserID    string
	ChannelID string
	Text      string
	// Subtype is the Slack message subtype; empty for a plain message.
	// Only plain messages and allowlisted subtypes are relayed.
	Subtype  string
	FileURL  string
	FileName string
}

// SlackUserChange reports a profile or presence change for a Slack user.
type SlackUserChange struct {
	UserID      string
	DisplayName string
	Presence    string
}

// SlackConnected reports a successful RTM connection, carrying the bot's
// own user ID for echo suppression.
type SlackConnected struct {
	BotUserID string
	BotName   string
}

// SlackError reports a Slack transport error. Never fatal.
type SlackError struct {
	Err error
}

// --- IRC side ---

// IRCMessage is a PRIVMSG to a channel or to the bridge itself.
type IRCMessage struct {
	Nick    string
	Channel string
	Text    string
}

// IRCNotice is a NOTICE; relayed like a message but rendered distinctly.
type IRCNotice struct {
	Nick    string
	Channel string
	Text    string
}

// IRCAction is a CTCP ACTION ("/me").
type IRCAction struct {
	Nick    string
	Channel string
	Text    string
}

// IRCJoin reports a user joining an IRC channel.
type IRCJoin struct {
	Nick    string
	Channel string
}

// IRCPart reports a user leaving an IRC channel.
type IRCPart struct {
	Nick    string
	Channel string
	Reason  string
}

// IRCQuit reports a user disconnecting from the IRC network. Channels
// lists the mapped channels the user was seen in.
type IRCQuit struct {
	Nick     string
	Reason   string
	Channels []string
}

// IRCInvite reports the bridge being invited to a channel.
type IRCInvite struct {
	Channel string
}

// IRCNamesReply carries a complete NAMES listing for one channel.
type IRCNamesReply struct {
	Channel string
	Nicks   []string
}

// IRCTopicReply is the response to an explicit topic request.
type IRCTopicReply struct {
	Channel string
	Topic   string
}

// IRCTopicChanged reports a live TOPIC change on a channel.
type IRCTopicChanged struct {
	Nick    string
	Channel string
	Topic   string
}

// IRCRegistered reports a connection (primary or shadow) completing
// registration under the given nick.
type IRCRegistered struct {
	Nick string
}

// IRCError reports a legacy transport error. Fatal is set only when the
// transport has exhausted its reconnect attempts.
type IRCError struct {
	Err   error
	Fatal bool
}

// --- internal continuations ---

// shadowExpired is posted by a shadow session's idle timer. Expiry is
// handled inside the event loop, never as out-of-band preemption.
type shadowExpired struct {
	UserID string
}

// externalized resumes relay of a Slack message once the content
// externalizer resolved (or failed, in which case Text is the original).
type externalized struct {
	msg  SlackMessage
	text string
}

// whoisResolved resumes a private-message command once the legacy
// transport answered whether the target nick is online. The whois round
// trip can take seconds, so it runs off the event loop.
type whoisResolved struct {
	userID    string
	userName  string
	channelID string
	target    string
	text      string
	online    bool
	err       error
}

func (SlackMessage) isEvent()    {}
func (SlackUserChange) isEvent() {}
func (SlackConnected) isEvent()  {}
func (SlackError) isEvent()      {}
func (IRCMessage) isEvent()      {}
func (IRCNotice) isEvent()       {}
func (IRCAction) isEvent()       {}
func (IRCJoin) isEvent()         {}
func (IRCPart) isEvent()         {}
func (IRCQuit) isEvent()         {}
func (IRCInvite) isEvent()       {}
func (IRCNamesReply) isEvent()   {}
func (IRCTopicReply) isEvent()   {}
func (IRCTopicChanged) isEvent() {}
func (IRCRegistered) isEvent()   {}
func (IRCError) isEvent()        {}
func (shadowExpired) isEvent()   {}
func (externalized) isEvent()    {}
func (whoisResolved) isEvent()   {}
