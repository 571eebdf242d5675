// Copyright 2025-2026 Mantene

package bridge

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ShadowSession is one workspace user's ephemeral IRC identity. Sessions
// are owned exclusively by the ShadowManager; other components look them
// up by user ID and never hold a reference across events.
type ShadowSession struct {
	UserID    string
	SlackName string
	Nick      string

	registered bool
	// queue holds outbound messages per target nickname until the shadow
	// connection finishes registering.
	queue      map[string][]string
	timer      *time.Timer
	lastActive time.Time
}

// ShadowManager owns the set of shadow sessions for one bridge: their
// lifecycle (ABSENT -> ACTIVE -> ABSENT), idle timers, and outbound
// queues. All methods are called from the bridge's serialized event loop;
// timers never mutate state directly, they post a shadowExpired event
// through the sink.
type ShadowManager struct {
	log     zerolog.Logger
	effects ShadowEffects
	sink    EventSink

	suffix  string
	timeout time.Duration

	sessions map[string]*ShadowSession
	byNick   map[string]string // lowercased nick -> user ID
	now      func() time.Time
}

// NewShadowManager creates a manager emitting side effects through
// effects and idle-expiry events through sink.
func NewShadowManager(log zerolog.Logger, effects ShadowEffects, sink EventSink, suffix string, timeout time.Duration) *ShadowManager {
	return &ShadowManager{
		log:      log.With().Str("component", "shadow_manager").Logger(),
		effects:  effects,
		sink:     sink,
		suffix:   suffix,
		timeout:  timeout,
		sessions: make(map[string]*ShadowSession),
		byNick:   make(map[string]string),
		now:      time.Now,
	}
}

// EnsureSession returns the user's session, creating one (and connecting
// its shadow identity) if absent. An existing session keeps its nickname
// even if the display name has changed; renames go through RenameIfActive.
func (sm *ShadowManager) EnsureSession(userID, displayName string) *ShadowSession {
	if s, ok := sm.sessions[userID]; ok {
		sm.Touch(userID)
		return s
	}
	nick := DeriveNick(displayName, sm.suffix, maxNickLen)
	s := &ShadowSession{
		UserID:     userID,
		SlackName:  displayName,
		Nick:       nick,
		queue:      make(map[string][]string),
		lastActive: sm.now(),
	}
	s.timer = time.AfterFunc(sm.timeout, func() {
		sm.sink.Queue(shadowExpired{UserID: userID})
	})
	sm.sessions[userID] = s
	sm.byNick[lowerNick(nick)] = userID
	sm.log.Info().Str("user_id", userID).Str("nick", nick).Msg("Shadow session created")
	if err := sm.effects.ConnectShadow(nick); err != nil {
		sm.log.Warn().Err(err).Str("nick", nick).Msg("Failed to connect shadow")
	}
	return s
}

// RenameIfActive emits a rename side effect when the user has a live
// session and their display name now derives a different nickname. The
// session's identity (user ID) is unchanged.
func (sm *ShadowManager) RenameIfActive(userID, newDisplayName string) {
	s, ok := sm.sessions[userID]
	if !ok {
		return
	}
	newNick := DeriveNick(newDisplayName, sm.suffix, maxNickLen)
	if newNick == s.Nick {
		s.SlackName = newDisplayName
		return
	}
	oldNick := s.Nick
	if err := sm.effects.RenameShadow(oldNick, newNick); err != nil {
		sm.log.Warn().Err(err).Str("old", oldNick).Str("new", newNick).Msg("Failed to rename shadow")
		return
	}
	delete(sm.byNick, lowerNick(oldNick))
	s.Nick = newNick
	s.SlackName = newDisplayName
	sm.byNick[lowerNick(newNick)] = userID
	sm.log.Info().Str("user_id", userID).Str("old", oldNick).Str("new", newNick).Msg("Shadow renamed")
}

// Touch restarts the user's idle timer. Called on any outbound activity
// attributable to the user.
func (sm *ShadowManager) Touch(userID string) {
	s, ok := sm.sessions[userID]
	if !ok {
		return
	}
	s.lastActive = sm.now()
	s.timer.Reset(sm.timeout)
}

// HandleExpiry processes an idle-timer event. The timer fires outside the
// event loop, so activity may have happened between firing and processing;
// in that case the timer is rearmed instead of expiring the session.
func (sm *ShadowManager) HandleExpiry(userID string) {
	s, ok := sm.sessions[userID]
	if !ok {
		return
	}
	if idle := sm.now().Sub(s.lastActive); idle < sm.timeout {
		s.timer.Reset(sm.timeout - idle)
		return
	}
	sm.Expire(userID)
}

// Expire tears the session down and emits a disconnect side effect.
// Invoked by the idle timer or by explicit presence departure.
func (sm *ShadowManager) Expire(userID string) {
	s, ok := sm.sessions[userID]
	if !ok {
		return
	}
	s.timer.Stop()
	delete(sm.sessions, userID)
	delete(sm.byNick, lowerNick(s.Nick))
	sm.log.Info().Str("user_id", userID).Str("nick", s.Nick).Msg("Shadow session expired")
	if err := sm.effects.DisconnectShadow(s.Nick); err != nil {
		sm.log.Warn().Err(err).Str("nick", s.Nick).Msg("Failed to disconnect shadow")
	}
}

// MarkRegistered records that the shadow connection for nick completed
// registration and flushes any queued outbound messages in order.
func (sm *ShadowManager) MarkRegistered(nick string) {
	userID, ok := sm.byNick[lowerNick(nick)]
	if !ok {
		return
	}
	s := sm.sessions[userID]
	s.registered = true
	for target, msgs := range s.queue {
		for _, text := range msgs {
			if err := sm.effects.ShadowSay(s.Nick, target, text); err != nil {
				sm.log.Warn().Err(err).Str("nick", s.Nick).Str("target", target).Msg("Failed to flush shadow message")
			}
		}
		delete(s.queue, target)
	}
}

// Enqueue sends text to target as the user's shadow identity, queueing it
// if the shadow connection has not registered yet.
func (sm *ShadowManager) Enqueue(userID, target, text string) {
	s, ok := sm.sessions[userID]
	if !ok {
		return
	}
	if !s.registered {
		s.queue[target] = append(s.queue[target], text)
		return
	}
	if err := sm.effects.ShadowSay(s.Nick, target, text); err != nil {
		sm.log.Warn().Err(err).Str("nick", s.Nick).Str("target", target).Msg("Failed to send shadow message")
	}
}

// Session returns the session for a user ID, if any.
func (sm *ShadowManager) Session(userID string) (*ShadowSession, bool) {
	s, ok := sm.sessions[userID]
	return s, ok
}

// HasNick reports whether nick belongs to a live shadow session. Used for
// echo suppression of the bridge's own ephemeral identities.
func (sm *ShadowManager) HasNick(nick string) bool {
	_, ok := sm.byNick[lowerNick(nick)]
	return ok
}

// NickForName returns the live shadow nickname derived for a Slack display
// name, if that user currently has a session.
func (sm *ShadowManager) NickForName(displayName string) (string, bool) {
	for _, s := range sm.sessions {
		if s.SlackName == displayName {
			return s.Nick, true
		}
	}
	return "", false
}

// SlackNameForNick is the inverse of NickForName.
func (sm *ShadowManager) SlackNameForNick(nick string) (string, bool) {
	userID, ok := sm.byNick[lowerNick(nick)]
	if !ok {
		return "", false
	}
	return sm.sessions[userID].SlackName, true
}

// Nicks enumerates all live shadow nicknames. O(number of active sessions)
// and reflects the state at call time.
func (sm *ShadowManager) Nicks() []string {
	nicks := make([]string, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		nicks = append(nicks, s.Nick)
	}
	return nicks
}

func lowerNick(nick string) string {
	return strings.ToLower(nick)
}
