// Copyright 2025-2026 Mantene

package ircconn

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog"

	"github.com/Mantene/slack-irc/pkg/bridge"
)

// Shadows maintains one ephemeral IRC connection per live shadow session
// and implements the bridge's ShadowEffects interface. The session
// lifecycle itself stays with the bridge's shadow manager; this pool only
// executes its side effects.
type Shadows struct {
	log      zerolog.Logger
	cfg      bridge.IRCConfig
	channels []string

	mu    sync.Mutex
	sink  bridge.EventSink
	conns map[string]*ircevent.Connection // lowercased nick -> connection
}

var _ bridge.ShadowEffects = (*Shadows)(nil)

// NewShadows creates a shadow connection pool. Each new shadow joins the
// given channels after registering; the bound sink learns about it
// through an IRCRegistered event.
func NewShadows(log zerolog.Logger, cfg bridge.IRCConfig, channels []string) *Shadows {
	return &Shadows{
		log:      log.With().Str("component", "irc_shadows").Logger(),
		cfg:      cfg,
		channels: channels,
		conns:    make(map[string]*ircevent.Connection),
	}
}

// Bind wires the pool to its bridge's event sink. The bridge is built
// with the pool as its effects, so binding happens right after
// construction and always before the first ConnectShadow.
func (s *Shadows) Bind(sink bridge.EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// ConnectShadow dials a new ephemeral connection under the given nick.
func (s *Shadows) ConnectShadow(nick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(nick)
	if _, exists := s.conns[key]; exists {
		return fmt.Errorf("shadow %s already connected", nick)
	}
	sink := s.sink
	if sink == nil {
		return fmt.Errorf("shadow pool not bound to a bridge")
	}

	conn := &ircevent.Connection{
		Server:        s.cfg.Server,
		Nick:          nick,
		User:          s.cfg.User,
		RealName:      nick,
		Password:      s.cfg.Password,
		UseTLS:        s.cfg.UseTLS,
		ReconnectFreq: time.Minute,
		QuitMessage:   "idle timeout",
	}
	conn.AddConnectCallback(func(_ ircmsg.Message) {
		for _, channel := range s.channels {
			if err := conn.Join(channel); err != nil {
				s.log.Warn().Err(err).Str("nick", nick).Str("channel", channel).Msg("Shadow failed to join")
			}
		}
		sink.Queue(bridge.IRCRegistered{Nick: conn.CurrentNick()})
	})
	s.conns[key] = conn

	go func() {
		if err := conn.Connect(); err != nil {
			s.log.Warn().Err(err).Str("nick", nick).Msg("Shadow connect failed")
			s.mu.Lock()
			delete(s.conns, key)
			s.mu.Unlock()
			return
		}
		conn.Loop()
	}()
	return nil
}

// RenameShadow changes an ephemeral identity's nickname.
func (s *Shadows) RenameShadow(oldNick, newNick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[strings.ToLower(oldNick)]
	if !ok {
		return fmt.Errorf("no shadow connection for %s", oldNick)
	}
	if err := conn.Send("NICK", newNick); err != nil {
		return err
	}
	delete(s.conns, strings.ToLower(oldNick))
	s.conns[strings.ToLower(newNick)] = conn
	return nil
}

// DisconnectShadow quits an ephemeral connection.
func (s *Shadows) DisconnectShadow(nick string) error {
	s.mu.Lock()
	conn, ok := s.conns[strings.ToLower(nick)]
	delete(s.conns, strings.ToLower(nick))
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no shadow connection for %s", nick)
	}
	conn.Quit()
	return nil
}

// ShadowSay sends a PRIVMSG from an ephemeral identity.
func (s *Shadows) ShadowSay(nick, target, text string) error {
	s.mu.Lock()
	conn, ok := s.conns[strings.ToLower(nick)]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no shadow connection for %s", nick)
	}
	return conn.Privmsg(target, text)
}

// Stop quits every live shadow connection.
func (s *Shadows) Stop() {
	s.mu.Lock()
	conns := make([]*ircevent.Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[string]*ircevent.Connection)
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Quit()
	}
}
