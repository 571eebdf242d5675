// Copyright 2025-2026 Mantene

// Package bridge implements a bidirectional Slack-IRC relay.
//
// One [Bridge] owns the relay between a single Slack workspace connection
// and a single IRC connection: the channel mapping, the mute lists, the
// in-band command dispatcher, and the set of ephemeral per-user IRC
// identities ("shadow sessions") that reflect Slack presence on the IRC
// side.
//
// # Event model
//
// Both transports translate their network events into the tagged [Event]
// variants of this package and post them through [Bridge.Queue]. A bridge
// processes events one at a time on a single loop, so no component state
// is ever mutated concurrently. Shadow-session idle timers and content
// externalization post continuation events back into the same loop instead
// of touching state out-of-band.
//
// # Echo prevention
//
// Messages from nicknames belonging to live shadow sessions are never
// relayed back into the workspace, and the bridge's own Slack user is
// never relayed to IRC. Without these layers, a single message would loop
// between the networks indefinitely.
//
// # Sub-packages
//
//   - slackfmt converts Slack markup to plain IRC text.
//   - ircfmt converts IRC control codes to Slack markup.
package bridge
