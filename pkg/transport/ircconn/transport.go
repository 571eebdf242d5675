// Copyright 2025-2026 Mantene

// Package ircconn adapts an IRC client connection to the bridge's legacy
// transport interface.
package ircconn

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog"

	"github.com/Mantene/slack-irc/pkg/bridge"
)

const whoisTimeout = 5 * time.Second

// Transport is the primary IRC connection for one bridge. It pumps IRC
// events into the bridge's queue and exposes the send and request
// operations the core consumes. Shadow sessions get their own ephemeral
// connections through the Shadows pool.
type Transport struct {
	log  zerolog.Logger
	cfg  bridge.IRCConfig
	conn *ircevent.Connection

	stopOnce sync.Once
	stopChan chan struct{}

	mu           sync.Mutex
	members      map[string]map[string]bool // channel -> nicks present
	pendingNames map[string][]string        // channel -> accumulating 353 entries
	pendingWhois map[string]chan bool
}

// New creates the primary connection transport. Events start flowing
// after Start.
func New(log zerolog.Logger, cfg bridge.IRCConfig) *Transport {
	t := &Transport{
		log:          log.With().Str("component", "irc_transport").Logger(),
		cfg:          cfg,
		stopChan:     make(chan struct{}),
		members:      make(map[string]map[string]bool),
		pendingNames: make(map[string][]string),
		pendingWhois: make(map[string]chan bool),
	}
	t.conn = &ircevent.Connection{
		Server:        cfg.Server,
		Nick:          cfg.Nick,
		User:          cfg.User,
		RealName:      cfg.RealName,
		Password:      cfg.Password,
		UseTLS:        cfg.UseTLS,
		ReconnectFreq: time.Minute,
		QuitMessage:   "bridge shutting down",
	}
	return t
}

// Start registers callbacks and runs the connection until Stop. Connect
// failures are retried up to cfg.MaxReconnects times; exhausting them is
// reported as a fatal IRCError.
func (t *Transport) Start(sink bridge.EventSink) {
	t.registerCallbacks(sink)
	go t.run(sink)
}

// Stop quits the connection.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.conn.Quit()
}

func (t *Transport) run(sink bridge.EventSink) {
	attempts := 0
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}
		if err := t.conn.Connect(); err != nil {
			attempts++
			if t.cfg.MaxReconnects > 0 && attempts > t.cfg.MaxReconnects {
				sink.Queue(bridge.IRCError{
					Err:   fmt.Errorf("%w after %d attempts: %v", bridge.ErrReconnectExhausted, attempts, err),
					Fatal: true,
				})
				return
			}
			sink.Queue(bridge.IRCError{Err: err})
			select {
			case <-time.After(time.Minute):
			case <-t.stopChan:
				return
			}
			continue
		}
		attempts = 0
		t.conn.Loop()
		select {
		case <-t.stopChan:
			return
		default:
			t.log.Warn().Msg("IRC connection loop exited, reconnecting")
		}
	}
}

func (t *Transport) registerCallbacks(sink bridge.EventSink) {
	t.conn.AddConnectCallback(func(_ ircmsg.Message) {
		sink.Queue(bridge.IRCRegistered{Nick: t.conn.CurrentNick()})
	})

	t.conn.AddCallback("PRIVMSG", func(msg ircmsg.Message) {
		nick := sourceNick(msg)
		if nick == "" || len(msg.Params) < 2 {
			return
		}
		target, text := msg.Params[0], msg.Params[1]
		if action, ok := parseCTCPAction(text); ok {
			sink.Queue(bridge.IRCAction{Nick: nick, Channel: target, Text: action})
			return
		}
		sink.Queue(bridge.IRCMessage{Nick: nick, Channel: target, Text: text})
	})

	t.conn.AddCallback("NOTICE", func(msg ircmsg.Message) {
		nick := sourceNick(msg)
		if nick == "" || len(msg.Params) < 2 {
			return
		}
		sink.Queue(bridge.IRCNotice{Nick: nick, Channel: msg.Params[0], Text: msg.Params[1]})
	})

	t.conn.AddCallback("JOIN", func(msg ircmsg.Message) {
		nick := sourceNick(msg)
		if nick == "" || len(msg.Params) < 1 {
			return
		}
		channel := msg.Params[0]
		t.trackJoin(channel, nick)
		sink.Queue(bridge.IRCJoin{Nick: nick, Channel: channel})
	})

	t.conn.AddCallback("PART", func(msg ircmsg.Message) {
		nick := sourceNick(msg)
		if nick == "" || len(msg.Params) < 1 {
			return
		}
		channel := msg.Params[0]
		reason := ""
		if len(msg.Params) > 1 {
			reason = msg.Params[1]
		}
		t.trackPart(channel, nick)
		sink.Queue(bridge.IRCPart{Nick: nick, Channel: channel, Reason: reason})
	})

	t.conn.AddCallback("QUIT", func(msg ircmsg.Message) {
		nick := sourceNick(msg)
		if nick == "" {
			return
		}
		reason := ""
		if len(msg.Params) > 0 {
			reason = msg.Params[0]
		}
		sink.Queue(bridge.IRCQuit{Nick: nick, Reason: reason, Channels: t.trackQuit(nick)})
	})

	t.conn.AddCallback("INVITE", func(msg ircmsg.Message) {
		if len(msg.Params) < 2 {
			return
		}
		sink.Queue(bridge.IRCInvite{Channel: msg.Params[1]})
	})

	t.conn.AddCallback("NICK", func(msg ircmsg.Message) {
		oldNick := sourceNick(msg)
		if oldNick == "" || len(msg.Params) < 1 {
			return
		}
		t.trackRename(oldNick, msg.Params[0])
	})

	// RPL_NAMREPLY: accumulate until RPL_ENDOFNAMES.
	t.conn.AddCallback("353", func(msg ircmsg.Message) {
		if len(msg.Params) < 4 {
			return
		}
		channel := msg.Params[2]
		nicks := strings.Fields(msg.Params[3])
		t.mu.Lock()
		for _, raw := range nicks {
			nick := strings.TrimLeft(raw, "@+%~&")
			t.pendingNames[channel] = append(t.pendingNames[channel], nick)
			if t.members[channel] == nil {
				t.members[channel] = make(map[string]bool)
			}
			t.members[channel][nick] = true
		}
		t.mu.Unlock()
	})

	t.conn.AddCallback("366", func(msg ircmsg.Message) {
		if len(msg.Params) < 2 {
			return
		}
		channel := msg.Params[1]
		t.mu.Lock()
		nicks := t.pendingNames[channel]
		delete(t.pendingNames, channel)
		t.mu.Unlock()
		sink.Queue(bridge.IRCNamesReply{Channel: channel, Nicks: nicks})
	})

	// RPL_TOPIC and RPL_NOTOPIC.
	t.conn.AddCallback("332", func(msg ircmsg.Message) {
		if len(msg.Params) < 3 {
			return
		}
		sink.Queue(bridge.IRCTopicReply{Channel: msg.Params[1], Topic: msg.Params[2]})
	})
	t.conn.AddCallback("331", func(msg ircmsg.Message) {
		if len(msg.Params) < 2 {
			return
		}
		sink.Queue(bridge.IRCTopicReply{Channel: msg.Params[1], Topic: ""})
	})

	t.conn.AddCallback("TOPIC", func(msg ircmsg.Message) {
		nick := sourceNick(msg)
		if len(msg.Params) < 2 {
			return
		}
		sink.Queue(bridge.IRCTopicChanged{Nick: nick, Channel: msg.Params[0], Topic: msg.Params[1]})
	})

	// WHOIS correlation.
	t.conn.AddCallback("311", func(msg ircmsg.Message) {
		if len(msg.Params) < 2 {
			return
		}
		t.resolveWhois(msg.Params[1], true)
	})
	t.conn.AddCallback("401", func(msg ircmsg.Message) {
		if len(msg.Params) < 2 {
			return
		}
		t.resolveWhois(msg.Params[1], false)
	})

	t.conn.AddCallback("ERROR", func(msg ircmsg.Message) {
		text := "server error"
		if len(msg.Params) > 0 {
			text = msg.Params[0]
		}
		sink.Queue(bridge.IRCError{Err: errors.New(text)})
	})
}

// Say sends a PRIVMSG from the primary identity.
func (t *Transport) Say(channel, text string) error {
	return t.conn.Privmsg(channel, text)
}

// SetTopic changes a channel topic.
func (t *Transport) SetTopic(channel, text string) error {
	return t.conn.Send("TOPIC", channel, text)
}

// RequestNames asks for the channel member list; the reply arrives as an
// IRCNamesReply event.
func (t *Transport) RequestNames(channel string) error {
	return t.conn.Send("NAMES", channel)
}

// RequestTopic asks for the channel topic; the reply arrives as an
// IRCTopicReply event.
func (t *Transport) RequestTopic(channel string) error {
	return t.conn.Send("TOPIC", channel)
}

// Join joins a channel with the primary identity.
func (t *Transport) Join(channel string) error {
	return t.conn.Join(channel)
}

// ChangeNick renames the primary identity.
func (t *Transport) ChangeNick(nick string) error {
	return t.conn.Send("NICK", nick)
}

// Whois checks whether a nick is currently online. Blocks up to
// whoisTimeout waiting for the server's reply.
func (t *Transport) Whois(nick string) (bridge.WhoisResult, error) {
	key := strings.ToLower(nick)
	result := make(chan bool, 1)
	t.mu.Lock()
	t.pendingWhois[key] = result
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pendingWhois, key)
		t.mu.Unlock()
	}()

	if err := t.conn.Send("WHOIS", nick); err != nil {
		return bridge.WhoisResult{}, err
	}
	select {
	case online := <-result:
		return bridge.WhoisResult{Online: online}, nil
	case <-time.After(whoisTimeout):
		return bridge.WhoisResult{}, fmt.Errorf("whois %s timed out", nick)
	}
}

func (t *Transport) resolveWhois(nick string, online bool) {
	t.mu.Lock()
	result, ok := t.pendingWhois[strings.ToLower(nick)]
	t.mu.Unlock()
	if ok {
		select {
		case result <- online:
		default:
		}
	}
}

func (t *Transport) trackJoin(channel, nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.members[channel] == nil {
		t.members[channel] = make(map[string]bool)
	}
	t.members[channel][nick] = true
}

func (t *Transport) trackPart(channel, nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.members[channel], nick)
}

// trackQuit removes the nick everywhere and returns the channels it was
// seen in.
func (t *Transport) trackQuit(nick string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var channels []string
	for channel, nicks := range t.members {
		if nicks[nick] {
			delete(nicks, nick)
			channels = append(channels, channel)
		}
	}
	return channels
}

func (t *Transport) trackRename(oldNick, newNick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, nicks := range t.members {
		if nicks[oldNick] {
			delete(nicks, oldNick)
			nicks[newNick] = true
		}
	}
}

// sourceNick extracts the sender nick from a message source, empty for
// server-originated messages.
func sourceNick(msg ircmsg.Message) string {
	if msg.Source == "" {
		return ""
	}
	nuh, err := ircmsg.ParseNUH(msg.Source)
	if err != nil {
		return ""
	}
	// A bare dotted source with no user part is the server itself.
	if nuh.User == "" && strings.Contains(nuh.Name, ".") {
		return ""
	}
	return nuh.Name
}

// parseCTCPAction unwraps a CTCP ACTION payload ("/me").
func parseCTCPAction(text string) (string, bool) {
	const prefix = "\x01ACTION "
	if strings.HasPrefix(text, prefix) && strings.HasSuffix(text, "\x01") {
		return strings.TrimSuffix(strings.TrimPrefix(text, prefix), "\x01"), true
	}
	return "", false
}
