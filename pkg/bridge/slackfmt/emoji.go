// Copyright 2025-2026 Mantene

package slackfmt

// shortcodeToGlyph maps Slack emoji shortcodes to Unicode glyphs for the
// IRC side. Unknown shortcodes pass through unchanged.
var shortcodeToGlyph = map[string]string{
	"+1":               "\U0001f44d",
	"-1":               "\U0001f44e",
	"heart":            "❤️",
	"smile":            "\U0001f604",
	"smiley":           "\U0001f603",
	"laughing":         "\U0001f606",
	"joy":              "\U0001f602",
	"wink":             "\U0001f609",
	"thumbsup":         "\U0001f44d",
	"thumbsdown":       "\U0001f44e",
	"wave":             "\U0001f44b",
	"clap":             "\U0001f44f",
	"fire":             "\U0001f525",
	"100":              "\U0001f4af",
	"tada":             "\U0001f389",
	"eyes":             "\U0001f440",
	"thinking":         "\U0001f914",
	"white_check_mark": "✅",
	"x":                "❌",
	"warning":          "⚠️",
	"rocket":           "\U0001f680",
	"star":             "⭐",
	"pray":             "\U0001f64f",
	"sob":              "\U0001f62d",
	"cry":              "\U0001f622",
	"heart_eyes":       "\U0001f60d",
	"sunglasses":       "\U0001f60e",
	"shrug":            "\U0001f937",
}
