// Copyright 2025-2026 Mantene

package bridge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// commandRe splits a prefix-stripped command message into name, optional
// single-token argument, and trailing free text.
var commandRe = regexp.MustCompile(`^(\w+)\s?(\S+)?\s?(.*)$`)

// CommandInvocation is one parsed in-band command.
type CommandInvocation struct {
	Name string
	Arg  string
	Rest string
}

// CommandContext carries the origin of a command invocation. IRCChannel is
// the mapped destination channel, empty when the command came from a
// direct conversation.
type CommandContext struct {
	UserID     string
	UserName   string
	ChannelID  string
	IsDirect   bool
	IRCChannel string
}

// commandHandler consumes one invocation. The returned announce flag tells
// the relay whether to post a "command issued" notice to the destination
// IRC channel.
type commandHandler func(ctx CommandContext, inv CommandInvocation) (announce bool)

// CommandDispatcher parses prefix-triggered command messages and routes
// them to named handlers.
type CommandDispatcher struct {
	log      zerolog.Logger
	prefixes string
	handlers map[string]commandHandler
}

func newCommandDispatcher(log zerolog.Logger, prefixes string) *CommandDispatcher {
	return &CommandDispatcher{
		log:      log.With().Str("component", "commands").Logger(),
		prefixes: prefixes,
		handlers: make(map[string]commandHandler),
	}
}

// Register adds a handler under a command name.
func (d *CommandDispatcher) Register(name string, handler commandHandler) {
	d.handlers[name] = handler
}

// parseCommand strips the trigger prefix and parses the invocation.
// ok is false when the text is not a command and should relay normally.
func (d *CommandDispatcher) parseCommand(text string) (CommandInvocation, bool) {
	if text == "" || !strings.ContainsRune(d.prefixes, rune(text[0])) {
		return CommandInvocation{}, false
	}
	parts := commandRe.FindStringSubmatch(text[1:])
	if parts == nil {
		return CommandInvocation{}, false
	}
	return CommandInvocation{Name: parts[1], Arg: parts[2], Rest: parts[3]}, true
}

// Dispatch handles text if it is a command. handled reports whether the
// message was consumed; announce whether the relay should post a command
// notice. An unknown command name is logged and dropped without any
// user-visible error, so ordinary chat that happens to start with a
// trigger character stays quiet.
func (d *CommandDispatcher) Dispatch(ctx CommandContext, text string) (handled, announce bool) {
	inv, ok := d.parseCommand(text)
	if !ok {
		return false, false
	}
	handler, known := d.handlers[inv.Name]
	if !known {
		d.log.Debug().Str("command", inv.Name).Str("user", ctx.UserName).Msg("Unknown command dropped")
		return true, false
	}
	d.log.Debug().Str("command", inv.Name).Str("user", ctx.UserName).Msg("Dispatching command")
	return true, handler(ctx, inv)
}

// registerBuiltins wires the built-in command set.
func (b *Bridge) registerBuiltins() {
	b.commands.Register("online", b.cmdOnline)
	b.commands.Register("irctopic", b.cmdIRCTopic)
	b.commands.Register("topic", b.cmdTopic)
	b.commands.Register("help", b.cmdHelp)
	b.commands.Register("msg", b.cmdMsg)
}

// cmdOnline requests the IRC channel's member list. The reply arrives as a
// decoupled NAMES event; the completion registered here is scoped to this
// single request.
func (b *Bridge) cmdOnline(ctx CommandContext, inv CommandInvocation) bool {
	if ctx.IRCChannel == "" {
		b.replyPrivately(ctx.UserID, "The online command only works from a bridged channel.")
		return false
	}
	query := inv.Arg
	id := b.requests.Add(kindNames, ctx.IRCChannel, func(payload any) {
		nicks, _ := payload.([]string)
		sorted := append([]string(nil), nicks...)
		sort.Strings(sorted)
		if query == "" {
			b.replyPrivately(ctx.UserID, fmt.Sprintf("Users online in %s: %s", ctx.IRCChannel, strings.Join(sorted, ", ")))
			return
		}
		matches := matchNicks(sorted, query)
		if len(matches) == 0 {
			b.sendSlack(ctx.ChannelID, fmt.Sprintf("No users are online matching '%s'.", query), nil)
			return
		}
		b.sendSlack(ctx.ChannelID, fmt.Sprintf("Users online matching '%s': %s", query, strings.Join(matches, ", ")), nil)
	})
	if err := b.irc.RequestNames(ctx.IRCChannel); err != nil {
		b.log.Warn().Err(err).Str("channel", ctx.IRCChannel).Msg("Failed to request names")
		// Nothing was sent, so no reply is coming for this entry; dropping
		// it keeps a later unsolicited NAMES from delivering a stale answer.
		b.requests.Remove(kindNames, ctx.IRCChannel, id)
	}
	return true
}

// matchNicks filters nicks by a case-insensitive pattern, treating the
// query as a regular expression and falling back to substring matching
// when it does not compile.
func matchNicks(nicks []string, query string) []string {
	var matches []string
	re, err := regexp.Compile("(?i)" + query)
	for _, nick := range nicks {
		if err == nil {
			if re.MatchString(nick) {
				matches = append(matches, nick)
			}
		} else if strings.Contains(strings.ToLower(nick), strings.ToLower(query)) {
			matches = append(matches, nick)
		}
	}
	return matches
}

// cmdIRCTopic requests and relays the IRC channel's current topic.
func (b *Bridge) cmdIRCTopic(ctx CommandContext, _ CommandInvocation) bool {
	if ctx.IRCChannel == "" {
		b.replyPrivately(ctx.UserID, "The irctopic command only works from a bridged channel.")
		return false
	}
	id := b.requests.Add(kindTopic, ctx.IRCChannel, func(payload any) {
		topic, _ := payload.(string)
		if topic == "" {
			topic = "(no topic)"
		}
		b.sendSlack(ctx.ChannelID, fmt.Sprintf("Topic for %s: %s", ctx.IRCChannel, topic), nil)
	})
	if err := b.irc.RequestTopic(ctx.IRCChannel); err != nil {
		b.log.Warn().Err(err).Str("channel", ctx.IRCChannel).Msg("Failed to request topic")
		b.requests.Remove(kindTopic, ctx.IRCChannel, id)
	}
	return true
}

// cmdTopic sets the IRC channel's topic. The resulting TOPIC change event
// relays the confirmation back to the workspace.
func (b *Bridge) cmdTopic(ctx CommandContext, inv CommandInvocation) bool {
	if ctx.IRCChannel == "" {
		b.replyPrivately(ctx.UserID, "The topic command only works from a bridged channel.")
		return false
	}
	topic := strings.TrimSpace(strings.TrimSpace(inv.Arg) + " " + inv.Rest)
	if err := b.irc.SetTopic(ctx.IRCChannel, topic); err != nil {
		b.log.Warn().Err(err).Str("channel", ctx.IRCChannel).Msg("Failed to set topic")
	}
	return true
}

const helpText = "Available commands:\n" +
	"online [query] - list IRC users in the bridged channel, optionally filtered\n" +
	"irctopic - show the IRC channel topic\n" +
	"topic <new text> - set the IRC channel topic\n" +
	"msg <nick> <text> - message an IRC user privately (direct conversations only)\n" +
	"help - this summary"

// cmdHelp returns the usage summary privately.
func (b *Bridge) cmdHelp(ctx CommandContext, _ CommandInvocation) bool {
	b.replyPrivately(ctx.UserID, helpText)
	return false
}

// cmdMsg sends a private IRC message through the sender's shadow identity.
// Only valid from a direct conversation; a shared channel is visible to
// all members, so the bridge refuses and warns the sender instead.
func (b *Bridge) cmdMsg(ctx CommandContext, inv CommandInvocation) bool {
	if !ctx.IsDirect {
		b.replyPrivately(ctx.UserID, "The msg command only works from a direct conversation; your message was not forwarded.")
		return false
	}
	target, text := inv.Arg, inv.Rest
	if target == "" || text == "" {
		b.sendSlack(ctx.ChannelID, "Usage: msg <nick> <text>", nil)
		return false
	}
	// The whois round trip blocks on the IRC server; it runs off the loop
	// and resumes through a continuation event so other events keep flowing.
	go func() {
		res, err := b.irc.Whois(target)
		b.Queue(whoisResolved{
			userID:    ctx.UserID,
			userName:  ctx.UserName,
			channelID: ctx.ChannelID,
			target:    target,
			text:      text,
			online:    res.Online,
			err:       err,
		})
	}()
	return false
}

func (b *Bridge) handleWhoisResolved(ev whoisResolved) {
	if ev.err != nil || !ev.online {
		b.sendSlack(ev.channelID, fmt.Sprintf("%s is not online.", ev.target), nil)
		return
	}
	b.shadows.EnsureSession(ev.userID, ev.userName)
	b.shadows.Enqueue(ev.userID, ev.target, ev.text)
}
