// Copyright 2025-2026 Mantene

package bridge

import (
	"fmt"
	"strings"
)

// maxNickLen is the classic IRC nickname length limit; derived shadow
// nicknames never exceed it.
const maxNickLen = 16

// IdentityMapper resolves names and channels between the two networks and
// holds the mute lists. One instance per Bridge; never shared.
type IdentityMapper struct {
	slackToIRC map[string]string
	ircToSlack map[string]string
	mutedSlack map[string]struct{}
	mutedIRC   map[string]struct{}
}

// NewIdentityMapper builds a mapper from the configured channel mapping and
// mute lists. Duplicate IRC-side mapping targets are a configuration error.
func NewIdentityMapper(mapping map[string]string, mutedSlack, mutedIRC []string) (*IdentityMapper, error) {
	m := &IdentityMapper{
		slackToIRC: make(map[string]string, len(mapping)),
		ircToSlack: make(map[string]string, len(mapping)),
		mutedSlack: make(map[string]struct{}, len(mutedSlack)),
		mutedIRC:   make(map[string]struct{}, len(mutedIRC)),
	}
	for slackName, ircName := range mapping {
		key := strings.ToLower(ircName)
		if prev, dup := m.ircToSlack[key]; dup {
			return nil, &ConfigurationError{
				Field:  "channel_mapping",
				Reason: fmt.Sprintf("%q and %q both map to %q", prev, slackName, ircName),
			}
		}
		m.slackToIRC[slackName] = ircName
		m.ircToSlack[key] = slackName
	}
	for _, name := range mutedSlack {
		m.mutedSlack[name] = struct{}{}
	}
	for _, nick := range mutedIRC {
		m.mutedIRC[strings.ToLower(nick)] = struct{}{}
	}
	return m, nil
}

// ResolveChannel maps a Slack channel display name ("#name" or a DM
// display name) to its configured IRC channel.
func (m *IdentityMapper) ResolveChannel(slackName string) (string, bool) {
	ircName, ok := m.slackToIRC[slackName]
	return ircName, ok
}

// ResolveIRCChannel is the inverse lookup, case-insensitive on the IRC
// side.
func (m *IdentityMapper) ResolveIRCChannel(ircName string) (string, bool) {
	slackName, ok := m.ircToSlack[strings.ToLower(ircName)]
	return slackName, ok
}

// IRCChannels returns all configured IRC channel names.
func (m *IdentityMapper) IRCChannels() []string {
	channels := make([]string, 0, len(m.slackToIRC))
	for _, ircName := range m.slackToIRC {
		channels = append(channels, ircName)
	}
	return channels
}

// IsSlackMuted reports whether a Slack username is muted.
func (m *IdentityMapper) IsSlackMuted(name string) bool {
	_, muted := m.mutedSlack[name]
	return muted
}

// IsIRCMuted reports whether an IRC nickname is muted. Case-insensitive.
func (m *IdentityMapper) IsIRCMuted(nick string) bool {
	_, muted := m.mutedIRC[strings.ToLower(nick)]
	return muted
}

// DeriveNick generates a shadow nickname from a Slack display name:
// dots become dashes, the name is truncated so the suffix fits within
// maxLen, and the suffix is appended. Deterministic and pure.
func DeriveNick(displayName, suffix string, maxLen int) string {
	nick := strings.ReplaceAll(displayName, ".", "-")
	limit := maxLen - len(suffix)
	if limit < 0 {
		limit = 0
	}
	if runes := []rune(nick); len(runes) > limit {
		nick = string(runes[:limit])
	}
	return nick + suffix
}

// mentionTrailers are the punctuation characters allowed after a bare name
// token that should still be highlighted.
const mentionTrailers = ",.:!?"

// HighlightMention prefixes bare occurrences of name in text with "@" so
// the named Slack member gets notified. Tokens already carrying the prefix
// are left alone, which makes repeated application (once per present
// channel member) idempotent.
func HighlightMention(name, text string) string {
	if name == "" || text == "" {
		return text
	}
	tokens := strings.Split(text, " ")
	for i, tok := range tokens {
		if strings.HasPrefix(tok, "@"+name) {
			continue
		}
		bare := tok
		if len(bare) > 1 && strings.ContainsRune(mentionTrailers, rune(bare[len(bare)-1])) {
			bare = bare[:len(bare)-1]
		}
		if bare == name {
			tokens[i] = "@" + tok
		}
	}
	return strings.Join(tokens, " ")
}
