// Copyright 2025-2026 Mantene

// Package ircfmt converts IRC control-code formatting to Slack markup.
package ircfmt

import "regexp"

// mIRC control codes. A sequence only converts when it has a terminating
// reset marker; unterminated sequences are left as literal text.
const (
	codeBold  = "\x02"
	codeColor = "\x03"
	codeReset = "\x0f"
)

var (
	colorRe = regexp.MustCompile(codeColor + `\d{1,2}(?:,\d{1,2})?([^` + codeColor + codeReset + `]+)[` + codeColor + codeReset + `]`)
	boldRe  = regexp.MustCompile(codeBold + `([^` + codeBold + codeReset + `]+)[` + codeBold + codeReset + `]`)
)

// ToSlack converts IRC text to Slack markup. Colored spans become inline
// code spans and bold spans become Slack bold. Text containing no control
// sequences is returned unchanged; this function never fails.
func ToSlack(text string) string {
	text = colorRe.ReplaceAllString(text, "`$1`")
	text = boldRe.ReplaceAllString(text, "*$1*")
	return text
}
