// Copyright 2025-2026 Mantene

package bridge

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Mantene/slack-irc/pkg/bridge/ircfmt"
	"github.com/Mantene/slack-irc/pkg/bridge/slackfmt"
)

// fencedRe detects an externalizable code block in Slack text.
var fencedRe = regexp.MustCompile("(?s)```\\n?(.+?)\\n?```")

// Bridge relays between one Slack workspace connection and one IRC
// connection. All event handling runs on a single serialized loop; the
// only concurrency is between Bridge instances, which share nothing.
type Bridge struct {
	cfg BridgeConfig
	log zerolog.Logger

	slack WorkspaceTransport
	irc   LegacyTransport
	ext   Externalizer

	ids      *IdentityMapper
	shadows  *ShadowManager
	commands *CommandDispatcher
	requests *requestTable

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	botUserID string
}

// New constructs a Bridge from a validated configuration entry. The
// channel mapping is re-checked here; a malformed mapping fails
// construction with a ConfigurationError.
func New(cfg BridgeConfig, log zerolog.Logger, slack WorkspaceTransport, irc LegacyTransport, effects ShadowEffects, ext Externalizer) (*Bridge, error) {
	ids, err := NewIdentityMapper(cfg.ChannelMapping, cfg.MutedSlackUsers, cfg.MutedIRCNicks)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		cfg:      cfg,
		log:      log.With().Str("component", "bridge").Str("bridge", cfg.Name).Logger(),
		slack:    slack,
		irc:      irc,
		ext:      ext,
		ids:      ids,
		requests: newRequestTable(),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
	}
	b.shadows = NewShadowManager(b.log, effects, b, cfg.NickSuffix, cfg.IRCTimeout)
	b.commands = newCommandDispatcher(b.log, cfg.CommandPrefixes)
	b.registerBuiltins()
	return b, nil
}

// Queue posts an event onto the bridge's serialized loop. Safe to call
// from any goroutine; blocks only while the loop is saturated.
func (b *Bridge) Queue(evt Event) {
	select {
	case b.events <- evt:
	case <-b.done:
	}
}

// Stop shuts the event loop down.
func (b *Bridge) Stop() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// Run consumes events until the context is canceled, Stop is called, or
// the legacy transport reports a fatal error (exhausted reconnects). The
// loop is stopped on the way out so transports blocked in Queue unblock.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case evt := <-b.events:
			if err := b.handleEvent(evt); err != nil {
				return err
			}
		}
	}
}

// handleEvent dispatches one event. A non-nil error is fatal for the
// bridge.
func (b *Bridge) handleEvent(evt Event) error {
	switch ev := evt.(type) {
	case SlackConnected:
		b.botUserID = ev.BotUserID
		b.log.Info().Str("bot_user_id", ev.BotUserID).Str("bot_name", ev.BotName).Msg("Slack connected")
	case SlackMessage:
		b.handleSlackMessage(ev)
	case SlackUserChange:
		b.handlePresenceChange(ev)
	case SlackError:
		b.log.Warn().Err(ev.Err).Msg("Slack transport error")
	case IRCRegistered:
		b.handleIRCRegistered(ev)
	case IRCMessage:
		b.relayIRCText(ev.Nick, ev.Channel, ev.Text, renderPlain)
	case IRCNotice:
		b.relayIRCText(ev.Nick, ev.Channel, ev.Text, renderNotice)
	case IRCAction:
		b.relayIRCText(ev.Nick, ev.Channel, ev.Text, renderAction)
	case IRCJoin:
		b.handleIRCJoin(ev)
	case IRCPart:
		b.handleIRCPart(ev)
	case IRCQuit:
		b.handleIRCQuit(ev)
	case IRCInvite:
		b.handleIRCInvite(ev)
	case IRCNamesReply:
		if n := b.requests.Resolve(kindNames, ev.Channel, ev.Nicks); n == 0 {
			b.log.Debug().Str("channel", ev.Channel).Msg("Unsolicited names reply")
		}
	case IRCTopicReply:
		if n := b.requests.Resolve(kindTopic, ev.Channel, ev.Topic); n == 0 {
			b.log.Debug().Str("channel", ev.Channel).Msg("Unsolicited topic reply")
		}
	case IRCTopicChanged:
		b.handleIRCTopicChanged(ev)
	case IRCError:
		if ev.Fatal {
			b.log.Error().Err(ev.Err).Msg("IRC transport failed permanently")
			return fmt.Errorf("irc transport: %w", ev.Err)
		}
		b.log.Warn().Err(ev.Err).Msg("IRC transport error")
	case shadowExpired:
		b.shadows.HandleExpiry(ev.UserID)
	case externalized:
		b.handleExternalized(ev)
	case whoisResolved:
		b.handleWhoisResolved(ev)
	default:
		b.log.Trace().Type("event_type", evt).Msg("Unhandled event type")
	}
	return nil
}

// allowedSubtypes are the Slack message subtypes the bridge relays besides
// plain messages.
var allowedSubtypes = map[string]bool{
	"":           true,
	"me_message": true,
	"file_share": true,
}

func (b *Bridge) handleSlackMessage(ev SlackMessage) {
	if ev.UserID == "" || ev.UserID == b.botUserID {
		return
	}
	if !allowedSubtypes[ev.Subtype] {
		b.log.Trace().Str("subtype", ev.Subtype).Msg("Dropping message subtype")
		return
	}
	ch, err := b.slack.ChannelByID(ev.ChannelID)
	if err != nil || ch == nil {
		b.log.Debug().Err(err).Str("channel_id", ev.ChannelID).Msg("Dropping message from unknown channel")
		return
	}
	user, err := b.slack.UserByID(ev.UserID)
	if err != nil || user == nil {
		b.log.Debug().Err(err).Str("user_id", ev.UserID).Msg("Dropping message from unknown user")
		return
	}
	// Mute check before any transformation work.
	if b.ids.IsSlackMuted(user.Name) {
		b.log.Debug().Str("user", user.Name).Msg("Dropping muted Slack user")
		return
	}
	b.shadows.Touch(ev.UserID)

	displayName := ch.Name
	if !ch.IsDirect {
		displayName = "#" + ch.Name
	}
	ircChan, mapped := b.ids.ResolveChannel(displayName)

	cmdCtx := CommandContext{
		UserID:     ev.UserID,
		UserName:   user.Name,
		ChannelID:  ev.ChannelID,
		IsDirect:   ch.IsDirect,
		IRCChannel: ircChan,
	}
	if handled, announce := b.commands.Dispatch(cmdCtx, ev.Text); handled {
		if announce && ircChan != "" {
			b.sayIRC(ircChan, fmt.Sprintf("Command sent from Slack by %s:", user.Name))
			b.sayIRC(ircChan, ev.Text)
		}
		return
	}

	// Direct conversations relay only when their display name is a
	// configured mapping key; otherwise they carry commands only.
	if !mapped {
		b.log.Debug().Str("channel", displayName).Msg("Dropping message for unmapped channel")
		return
	}
	if !ch.IsMember {
		b.log.Debug().Str("channel", displayName).Msg("Dropping message for channel the bridge is not in")
		return
	}

	if b.ext != nil && ev.Subtype == "" && fencedRe.MatchString(ev.Text) {
		// Suspend this message pending externalization; the continuation
		// arrives as an internal event and does not block other events.
		go b.externalizeAsync(ev)
		return
	}

	b.relaySlackText(ev, user.Name, ircChan)
}

// externalizeAsync uploads the first fenced code block and posts a
// continuation event with the link substituted. Externalizer failure is
// recovered by relaying the original text unmodified.
func (b *Bridge) externalizeAsync(ev SlackMessage) {
	content := fencedRe.FindStringSubmatch(ev.Text)[1]
	text := ev.Text
	link, err := b.ext.Externalize(content, "snippet.txt")
	if err != nil {
		b.log.Warn().Err(err).Msg("Content externalizer failed, relaying original text")
	} else {
		text = fencedRe.ReplaceAllString(ev.Text, link)
	}
	b.Queue(externalized{msg: ev, text: text})
}

func (b *Bridge) handleExternalized(ev externalized) {
	ch, err := b.slack.ChannelByID(ev.msg.ChannelID)
	if err != nil || ch == nil {
		return
	}
	displayName := ch.Name
	if !ch.IsDirect {
		displayName = "#" + ch.Name
	}
	ircChan, mapped := b.ids.ResolveChannel(displayName)
	// Membership may have changed while the upload ran; re-check before
	// relaying, same as the pre-suspension path.
	if !mapped || !ch.IsMember {
		return
	}
	user, err := b.slack.UserByID(ev.msg.UserID)
	if err != nil || user == nil {
		return
	}
	msg := ev.msg
	msg.Text = ev.text
	b.relaySlackText(msg, user.Name, ircChan)
}

// relaySlackText transforms and sends one Slack message to its mapped IRC
// channel, formatted per subtype.
func (b *Bridge) relaySlackText(ev SlackMessage, userName, ircChan string) {
	text := slackfmt.ToIRC(ev.Text, b.resolvers())
	switch ev.Subtype {
	case "me_message":
		b.sayIRC(ircChan, fmt.Sprintf("* %s %s", userName, text))
	case "file_share":
		line := fmt.Sprintf("<%s> uploaded a file: %s", userName, ev.FileURL)
		if ev.FileName != "" {
			line += fmt.Sprintf(" (%s)", ev.FileName)
		}
		b.sayIRC(ircChan, line)
	default:
		b.sayIRC(ircChan, fmt.Sprintf("<%s> %s", userName, text))
	}
}

// resolvers builds the directory callbacks for the Slack-to-IRC text
// pipeline.
func (b *Bridge) resolvers() slackfmt.Resolvers {
	return slackfmt.Resolvers{
		Channel: func(id string) (string, bool) {
			ch, err := b.slack.ChannelByID(id)
			if err != nil || ch == nil {
				return "", false
			}
			return ch.Name, true
		},
		User: func(id string) (string, bool) {
			user, err := b.slack.UserByID(id)
			if err != nil || user == nil {
				return "", false
			}
			return user.Name, true
		},
		ShadowNick: b.shadows.NickForName,
	}
}

// ircRenderMode selects how an inbound IRC payload is framed on Slack.
type ircRenderMode int

const (
	renderPlain ircRenderMode = iota
	renderNotice
	renderAction
)

// relayIRCText transforms and sends one IRC message to its mapped Slack
// channel, displayed under the IRC author's identity.
func (b *Bridge) relayIRCText(nick, ircChan, text string, mode ircRenderMode) {
	slackName, ok := b.ids.ResolveIRCChannel(ircChan)
	if !ok {
		b.log.Debug().Str("channel", ircChan).Msg("Dropping IRC message for unmapped channel")
		return
	}
	if b.ids.IsIRCMuted(nick) {
		b.log.Debug().Str("nick", nick).Msg("Dropping muted IRC nick")
		return
	}
	// Echo suppression: never relay the bridge's own shadow identities.
	if b.shadows.HasNick(nick) {
		b.log.Debug().Str("nick", nick).Msg("Dropping shadow session echo")
		return
	}
	ch, err := b.slack.ChannelByName(strings.TrimPrefix(slackName, "#"))
	if err != nil || ch == nil {
		b.log.Debug().Err(err).Str("channel", slackName).Msg("Dropping IRC message for unknown Slack channel")
		return
	}
	if !ch.IsMember {
		b.log.Debug().Str("channel", slackName).Msg("Dropping IRC message for channel the bridge is not in")
		return
	}

	text = ircfmt.ToSlack(text)
	text = b.highlightMembers(ch.ID, text)
	for _, shadowNick := range b.shadows.Nicks() {
		if name, ok := b.shadows.SlackNameForNick(shadowNick); ok {
			text = strings.ReplaceAll(text, shadowNick, name)
		}
	}

	switch mode {
	case renderNotice:
		text = fmt.Sprintf("*Notice*: %s", text)
	case renderAction:
		text = fmt.Sprintf("_%s_", text)
	}

	b.sendSlack(ch.ID, text, &DisplayOverride{
		Username: nick,
		IconURL:  avatarURL(nick),
	})
}

// highlightMembers applies mention highlighting once per current member of
// the destination channel. Each pass is idempotent, so members whose names
// already got prefixed are not prefixed again.
func (b *Bridge) highlightMembers(channelID, text string) string {
	members, err := b.slack.ChannelMembers(channelID)
	if err != nil {
		b.log.Debug().Err(err).Str("channel_id", channelID).Msg("Failed to list channel members")
		return text
	}
	for _, memberID := range members {
		user, err := b.slack.UserByID(memberID)
		if err != nil || user == nil {
			continue
		}
		text = HighlightMention(user.Name, text)
	}
	return text
}

func (b *Bridge) handleIRCJoin(ev IRCJoin) {
	if !b.cfg.StatusNotices.Join || b.shadows.HasNick(ev.Nick) || ev.Nick == b.cfg.IRC.Nick {
		return
	}
	b.sendStatusNotice(ev.Channel, fmt.Sprintf("*%s* has joined %s", ev.Nick, ev.Channel))
}

func (b *Bridge) handleIRCPart(ev IRCPart) {
	if !b.cfg.StatusNotices.Leave || b.shadows.HasNick(ev.Nick) || ev.Nick == b.cfg.IRC.Nick {
		return
	}
	b.sendStatusNotice(ev.Channel, fmt.Sprintf("*%s* has left %s", ev.Nick, ev.Channel))
}

func (b *Bridge) handleIRCQuit(ev IRCQuit) {
	if !b.cfg.StatusNotices.Leave || b.shadows.HasNick(ev.Nick) {
		return
	}
	notice := fmt.Sprintf("*%s* has quit", ev.Nick)
	if ev.Reason != "" {
		notice += fmt.Sprintf(" (%s)", ev.Reason)
	}
	for _, ircChan := range ev.Channels {
		b.sendStatusNotice(ircChan, notice)
	}
}

// sendStatusNotice posts a join/leave announcement to the Slack channel
// mapped to an IRC channel.
func (b *Bridge) sendStatusNotice(ircChan, notice string) {
	slackName, ok := b.ids.ResolveIRCChannel(ircChan)
	if !ok {
		return
	}
	ch, err := b.slack.ChannelByName(strings.TrimPrefix(slackName, "#"))
	if err != nil || ch == nil || !ch.IsMember {
		return
	}
	b.sendSlack(ch.ID, notice, nil)
}

func (b *Bridge) handleIRCInvite(ev IRCInvite) {
	if _, mapped := b.ids.ResolveIRCChannel(ev.Channel); !mapped {
		b.log.Debug().Str("channel", ev.Channel).Msg("Ignoring invite to unmapped channel")
		return
	}
	if err := b.irc.Join(ev.Channel); err != nil {
		b.log.Warn().Err(err).Str("channel", ev.Channel).Msg("Failed to join on invite")
	}
}

func (b *Bridge) handleIRCTopicChanged(ev IRCTopicChanged) {
	slackName, ok := b.ids.ResolveIRCChannel(ev.Channel)
	if !ok {
		return
	}
	ch, err := b.slack.ChannelByName(strings.TrimPrefix(slackName, "#"))
	if err != nil || ch == nil || !ch.IsMember {
		return
	}
	b.sendSlack(ch.ID, fmt.Sprintf("*%s* changed the topic of %s to: %s", ev.Nick, ev.Channel, ev.Topic), nil)
}

// handleIRCRegistered routes registration: the primary connection joins
// all mapped channels, a shadow connection flushes its pending queues.
func (b *Bridge) handleIRCRegistered(ev IRCRegistered) {
	if ev.Nick == b.cfg.IRC.Nick {
		for _, ircChan := range b.ids.IRCChannels() {
			if err := b.irc.Join(ircChan); err != nil {
				b.log.Warn().Err(err).Str("channel", ircChan).Msg("Failed to join channel")
			}
		}
		return
	}
	b.shadows.MarkRegistered(ev.Nick)
}

// handlePresenceChange maintains shadow sessions from Slack presence.
// Only the active state acts; everything else is left to the idle timer.
func (b *Bridge) handlePresenceChange(ev SlackUserChange) {
	if ev.Presence != "active" {
		return
	}
	if _, exists := b.shadows.Session(ev.UserID); exists {
		b.shadows.RenameIfActive(ev.UserID, ev.DisplayName)
		b.shadows.Touch(ev.UserID)
		return
	}
	b.shadows.EnsureSession(ev.UserID, ev.DisplayName)
}

// sayIRC sends on the legacy network, logging transport errors without
// retrying; the event counts as delivered-attempted.
func (b *Bridge) sayIRC(channel, text string) {
	if err := b.irc.Say(channel, text); err != nil {
		b.log.Warn().Err(err).Str("channel", channel).Msg("IRC send failed")
	}
}

// sendSlack sends on the workspace network with the same
// delivered-attempted semantics.
func (b *Bridge) sendSlack(channelID, text string, override *DisplayOverride) {
	if err := b.slack.SendMessage(channelID, text, override); err != nil {
		b.log.Warn().Err(err).Str("channel_id", channelID).Msg("Slack send failed")
	}
}

// replyPrivately sends text to the user's direct conversation with the
// bridge. Command failures are reported here, never cross-network.
func (b *Bridge) replyPrivately(userID, text string) {
	dmID, err := b.slack.OpenDirectMessage(userID)
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to open direct conversation")
		return
	}
	b.sendSlack(dmID, text, nil)
}

func avatarURL(nick string) string {
	return fmt.Sprintf("https://robohash.org/%s.png?size=48x48", url.QueryEscape(nick))
}
