// Copyright 2025-2026 Mantene

// Package slackfmt converts Slack message text to plain IRC text.
package slackfmt

import (
	"regexp"
	"strings"
)

// Resolvers supplies the directory lookups the pipeline needs. All fields
// are optional; a nil resolver leaves the matching references untouched.
type Resolvers struct {
	// Channel maps a Slack channel ID to its channel name (without "#").
	Channel func(id string) (string, bool)
	// User maps a Slack user ID to a display name.
	User func(id string) (string, bool)
	// ShadowNick maps a Slack display name to a live shadow IRC nickname.
	ShadowNick func(name string) (string, bool)
}

var (
	newlineRe   = regexp.MustCompile(`\r\n|\r|\n`)
	channelRe   = regexp.MustCompile(`<#(\w+)(?:\|([^>]*))?>`)
	userRe      = regexp.MustCompile(`<@(\w+)(?:\|([^>]*))?>`)
	bareLinkRe  = regexp.MustCompile(`(?i)<((?:https?|mailto|ftp)[^|>]+)>`)
	commandRe   = regexp.MustCompile(`<!(\w+)(?:\|([^>]+))?>`)
	emojiRe     = regexp.MustCompile(`:(\w+):`)
	mentionRe   = regexp.MustCompile(`@([\w.-]+)`)
	residualRe  = regexp.MustCompile(`<([^<>|]+)\|([^<>]+)>`)
	entityFixer = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">")
)

// broadcastMentions are Slack-wide mention commands expanded before generic
// command-reference rewriting.
var broadcastMentions = map[string]string{
	"channel":  "@channel",
	"group":    "@group",
	"everyone": "@everyone",
	"here":     "@here",
}

// ToIRC converts raw Slack message text into a single IRC-safe line. It is
// a pure total function: unrecognized or unresolvable markup passes through
// unchanged, and each step is idempotent on already-clean text. The step
// order matters; entity unescaping must run before any matching on angle
// brackets, and residual link collapsing must run last.
func ToIRC(text string, res Resolvers) string {
	// 1. Newline normalization; IRC is line-oriented.
	text = newlineRe.ReplaceAllString(text, " ")

	// 2. HTML entity unescaping. Single-pass, so double-escaped input loses
	// exactly one level of escaping.
	text = entityFixer.Replace(text)

	// 3. Broadcast mentions.
	for cmd, mention := range broadcastMentions {
		text = strings.ReplaceAll(text, "<!"+cmd+">", mention)
	}

	// 4. Channel references.
	text = channelRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := channelRe.FindStringSubmatch(match)
		if parts[2] != "" {
			return parts[2]
		}
		if res.Channel != nil {
			if name, ok := res.Channel(parts[1]); ok {
				return "#" + name
			}
		}
		return match
	})

	// 5. User references.
	text = userRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := userRe.FindStringSubmatch(match)
		if parts[2] != "" {
			return parts[2]
		}
		if res.User != nil {
			if name, ok := res.User(parts[1]); ok {
				return "@" + name
			}
		}
		return match
	})

	// 6. Bare link unwrapping.
	text = bareLinkRe.ReplaceAllString(text, "$1")

	// 7. Command references.
	text = commandRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := commandRe.FindStringSubmatch(match)
		if parts[2] != "" {
			return "<" + parts[2] + ">"
		}
		return "<" + parts[1] + ">"
	})

	// 8. Emoji shortcodes.
	text = emojiRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := emojiRe.FindStringSubmatch(match)
		if glyph, ok := shortcodeToGlyph[parts[1]]; ok {
			return glyph
		}
		return match
	})

	// 9. Shadow mentions. "@name" becomes the live shadow nickname so the
	// target gets highlighted on the IRC side.
	if res.ShadowNick != nil {
		text = mentionRe.ReplaceAllStringFunc(text, func(match string) string {
			parts := mentionRe.FindStringSubmatch(match)
			if nick, ok := res.ShadowNick(parts[1]); ok {
				return nick
			}
			return match
		})
	}

	// 10. Residual <url|label> syntax collapses to the label.
	text = residualRe.ReplaceAllString(text, "$2")

	return text
}
