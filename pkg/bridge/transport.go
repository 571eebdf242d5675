// Copyright 2025-2026 Mantene

package bridge

// WorkspaceUser is a read-only Slack user directory entry.
type WorkspaceUser struct {
	ID   string
	Name string
}

// WorkspaceChannel is a read-only Slack channel directory entry. Name is
// the bare channel name (without "#") or, for a direct conversation, the
// counterpart's display name.
type WorkspaceChannel struct {
	ID       string
	Name     string
	IsDirect bool
	IsMember bool
}

// DisplayOverride makes a sent Slack message display under another
// identity instead of the bridge's own.
type DisplayOverride struct {
	Username string
	IconURL  string
}

// WorkspaceTransport is the Slack-side collaborator. Implementations own
// connection establishment and authentication; the bridge only consumes
// this surface.
type WorkspaceTransport interface {
	SendMessage(channelID, text string, override *DisplayOverride) error
	OpenDirectMessage(userID string) (channelID string, err error)
	SetChannelTopic(channelID, text string) error

	UserByID(id string) (*WorkspaceUser, error)
	ChannelByID(id string) (*WorkspaceChannel, error)
	ChannelByName(name string) (*WorkspaceChannel, error)
	ChannelMembers(channelID string) ([]string, error)
}

// WhoisResult is the subset of WHOIS the bridge cares about.
type WhoisResult struct {
	Online bool
}

// LegacyTransport is the IRC-side collaborator for the bridge's primary
// identity. NAMES and TOPIC requests are asynchronous; their replies
// arrive as IRCNamesReply / IRCTopicReply events.
type LegacyTransport interface {
	Say(channel, text string) error
	SetTopic(channel, text string) error
	RequestNames(channel string) error
	RequestTopic(channel string) error
	Join(channel string) error
	ChangeNick(nick string) error
	Whois(nick string) (WhoisResult, error)
}

// ShadowEffects receives the side effects the shadow session manager
// emits: ephemeral per-user IRC identities coming and going. Outbound
// shadow messages go through ShadowSay.
type ShadowEffects interface {
	ConnectShadow(nick string) error
	RenameShadow(oldNick, newNick string) error
	DisconnectShadow(nick string) error
	ShadowSay(nick, target, text string) error
}

// Externalizer converts inline pasted content into a hosted link. Failure
// is recoverable: the bridge relays the original text unmodified.
type Externalizer interface {
	Externalize(content, filename string) (url string, err error)
}
