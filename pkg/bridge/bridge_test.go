// Copyright 2025-2026 Mantene

package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSlackToIRCRelay(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)

	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1", Text: "hello from slack"})

	want := ircSend{Channel: "#general-irc", Text: "<alice> hello from slack"}
	if len(irc.said) != 1 || irc.said[0] != want {
		t.Errorf("irc.said: got %v, want [%+v]", irc.said, want)
	}
}

func TestSlackToIRCRelayTransforms(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)

	dispatch(t, b, SlackMessage{
		UserID:    "U1",
		ChannelID: "C1",
		Text:      "see <#C1> &amp; ping <!here>\nsecond line",
	})

	want := "<alice> see #general & ping @here second line"
	if len(irc.said) != 1 || irc.said[0].Text != want {
		t.Errorf("irc.said: got %v, want %q", irc.said, want)
	}
}

func TestSlackSubtypes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  SlackMessage
		want string
	}{
		{"me_message", SlackMessage{UserID: "U1", ChannelID: "C1", Subtype: "me_message", Text: "waves"},
			"* alice waves"},
		{"file_share with name", SlackMessage{UserID: "U1", ChannelID: "C1", Subtype: "file_share",
			FileURL: "https://files.example/f1", FileName: "notes.txt"},
			"<alice> uploaded a file: https://files.example/f1 (notes.txt)"},
		{"file_share bare", SlackMessage{UserID: "U1", ChannelID: "C1", Subtype: "file_share",
			FileURL: "https://files.example/f2"},
			"<alice> uploaded a file: https://files.example/f2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, _, irc, _ := newTestBridge(t, nil)
			dispatch(t, b, tc.msg)
			if len(irc.said) != 1 || irc.said[0].Text != tc.want {
				t.Errorf("irc.said: got %v, want %q", irc.said, tc.want)
			}
		})
	}
}

func TestSlackUnrelayedSubtypeDropped(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)
	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1", Subtype: "channel_join", Text: "joined"})
	if len(irc.said) != 0 {
		t.Errorf("irc.said: got %v, want none", irc.said)
	}
}

func TestSlackOwnMessagesDropped(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)
	dispatch(t, b, SlackConnected{BotUserID: "UBOT", BotName: "bridge"})
	dispatch(t, b, SlackMessage{UserID: "UBOT", ChannelID: "C1", Text: "echo"})
	dispatch(t, b, SlackMessage{UserID: "", ChannelID: "C1", Text: "no author"})
	if len(irc.said) != 0 {
		t.Errorf("irc.said: got %v, want none", irc.said)
	}
}

func TestSlackUnmappedChannelDropped(t *testing.T) {
	t.Parallel()
	b, slack, irc, _ := newTestBridge(t, nil)
	slack.addChannel(&WorkspaceChannel{ID: "C9", Name: "random", IsMember: true})
	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C9", Text: "nobody hears this"})
	if len(irc.said) != 0 {
		t.Errorf("irc.said: got %v, want none", irc.said)
	}
}

func TestSlackNonMemberChannelDropped(t *testing.T) {
	t.Parallel()
	b, slack, irc, _ := newTestBridge(t, func(cfg *BridgeConfig) {
		cfg.ChannelMapping["#lurked"] = "#lurked-irc"
	})
	slack.addChannel(&WorkspaceChannel{ID: "C5", Name: "lurked", IsMember: false})
	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C5", Text: "dropped"})
	if len(irc.said) != 0 {
		t.Errorf("irc.said: got %v, want none", irc.said)
	}
}

func TestMappedDirectConversationRelays(t *testing.T) {
	t.Parallel()
	// A direct conversation whose display name is a mapping key relays
	// like any bridged channel.
	b, _, irc, _ := newTestBridge(t, func(cfg *BridgeConfig) {
		cfg.ChannelMapping["alice"] = "#alice-irc"
	})

	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "D1", Text: "hello from dm"})

	want := ircSend{Channel: "#alice-irc", Text: "<alice> hello from dm"}
	if len(irc.said) != 1 || irc.said[0] != want {
		t.Errorf("irc.said: got %v, want [%+v]", irc.said, want)
	}
}

func TestUnmappedDirectConversationDropped(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)
	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "D1", Text: "plain dm text"})
	if len(irc.said) != 0 {
		t.Errorf("irc.said: got %v, want none", irc.said)
	}
}

func TestMutedSlackUserNeverRelayed(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, func(cfg *BridgeConfig) {
		cfg.MutedSlackUsers = []string{"alice"}
	})
	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1", Text: "muted words"})
	// Even a command from a muted user goes nowhere.
	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1", Text: ".online"})
	if len(irc.said) != 0 || len(irc.namesRequests) != 0 {
		t.Errorf("muted user leaked: said=%v names=%v", irc.said, irc.namesRequests)
	}
}

func TestIRCToSlackRelay(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCMessage{Nick: "carol", Channel: "#general-irc", Text: "hi slack"})

	if len(slack.sent) != 1 {
		t.Fatalf("slack.sent: got %v", slack.sent)
	}
	got := slack.sent[0]
	if got.ChannelID != "C1" || got.Text != "hi slack" {
		t.Errorf("message: got %+v", got)
	}
	if got.Override == nil || got.Override.Username != "carol" {
		t.Fatalf("override: got %+v, want username carol", got.Override)
	}
	if got.Override.IconURL == "" {
		t.Error("override should carry an avatar URL")
	}
}

func TestIRCToSlackHighlighting(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCMessage{Nick: "carol", Channel: "#general-irc", Text: "alice: bob said hi"})

	if len(slack.sent) != 1 {
		t.Fatalf("slack.sent: got %v", slack.sent)
	}
	want := "@alice: @bob said hi"
	if slack.sent[0].Text != want {
		t.Errorf("text: got %q, want %q", slack.sent[0].Text, want)
	}
}

func TestIRCFormattingConverted(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCMessage{Nick: "carol", Channel: "#general-irc", Text: "\x02loud\x0f and \x034red\x0f"})

	want := "*loud* and `red`"
	if len(slack.sent) != 1 || slack.sent[0].Text != want {
		t.Errorf("text: got %v, want %q", slack.sent, want)
	}
}

func TestIRCNoticeAndActionRendering(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCNotice{Nick: "carol", Channel: "#general-irc", Text: "server maintenance"})
	dispatch(t, b, IRCAction{Nick: "carol", Channel: "#general-irc", Text: "waves"})

	if len(slack.sent) != 2 {
		t.Fatalf("slack.sent: got %v", slack.sent)
	}
	if want := "*Notice*: server maintenance"; slack.sent[0].Text != want {
		t.Errorf("notice: got %q, want %q", slack.sent[0].Text, want)
	}
	if want := "_waves_"; slack.sent[1].Text != want {
		t.Errorf("action: got %q, want %q", slack.sent[1].Text, want)
	}
}

func TestIRCUnmappedChannelDropped(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)
	dispatch(t, b, IRCMessage{Nick: "carol", Channel: "#elsewhere", Text: "void"})
	if len(slack.sent) != 0 {
		t.Errorf("slack.sent: got %v, want none", slack.sent)
	}
}

func TestMutedIRCNickNeverRelayed(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, func(cfg *BridgeConfig) {
		cfg.MutedIRCNicks = []string{"troll"}
	})
	dispatch(t, b, IRCMessage{Nick: "Troll", Channel: "#general-irc", Text: "noise"})
	dispatch(t, b, IRCNotice{Nick: "troll", Channel: "#general-irc", Text: "more noise"})
	if len(slack.sent) != 0 {
		t.Errorf("slack.sent: got %v, want none", slack.sent)
	}
}

func TestShadowEchoSuppressed(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	// alice goes active and gets a shadow identity on IRC.
	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})

	// The shadow's own channel traffic must never loop back to Slack.
	dispatch(t, b, IRCMessage{Nick: "alice-sl", Channel: "#general-irc", Text: "relayed text"})
	dispatch(t, b, IRCMessage{Nick: "ALICE-SL", Channel: "#general-irc", Text: "case variant"})

	if len(slack.sent) != 0 {
		t.Errorf("slack.sent: got %v, want none", slack.sent)
	}
}

func TestShadowNickRewrittenInbound(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})
	dispatch(t, b, IRCMessage{Nick: "carol", Channel: "#general-irc", Text: "thanks alice-sl for the fix"})

	if len(slack.sent) != 1 {
		t.Fatalf("slack.sent: got %v", slack.sent)
	}
	// The shadow nickname reads as the real display name on the Slack side.
	want := "thanks alice for the fix"
	if got := slack.sent[0].Text; got != want {
		t.Errorf("text: got %q, want %q", got, want)
	}
}

func TestShadowNickSubstitutionAfterHighlighting(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})
	// Highlighting runs against the raw IRC text, where the token is the
	// shadow nickname; the substituted display name is not re-highlighted.
	dispatch(t, b, IRCMessage{Nick: "carol", Channel: "#general-irc", Text: "alice-sl: hi"})

	if len(slack.sent) != 1 {
		t.Fatalf("slack.sent: got %v", slack.sent)
	}
	want := "alice: hi"
	if got := slack.sent[0].Text; got != want {
		t.Errorf("text: got %q, want %q", got, want)
	}
}

func TestShadowMentionOutbound(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)

	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})
	dispatch(t, b, SlackMessage{UserID: "U2", ChannelID: "C1", Text: "ping @alice about it"})

	want := "<bob> ping alice-sl about it"
	if len(irc.said) != 1 || irc.said[0].Text != want {
		t.Errorf("irc.said: got %v, want %q", irc.said, want)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	t.Parallel()
	b, _, _, effects := newTestBridge(t, nil)

	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})
	if len(effects.connects) != 1 {
		t.Fatalf("connects: got %v", effects.connects)
	}

	// Repeat presence does not reconnect.
	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})
	if len(effects.connects) != 1 {
		t.Errorf("connects after repeat: got %v", effects.connects)
	}

	// Display rename while active renames the shadow.
	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alicia", Presence: "active"})
	if len(effects.renames) != 1 || effects.renames[0] != [2]string{"alice-sl", "alicia-sl"} {
		t.Errorf("renames: got %v", effects.renames)
	}

	// Away presence does not tear the session down; only the idle timer does.
	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alicia", Presence: "away"})
	if len(effects.disconnects) != 0 {
		t.Errorf("disconnects: got %v", effects.disconnects)
	}

	// The expiry continuation does.
	dispatch(t, b, shadowExpired{UserID: "U1"})
	// Fresh activity means rearm, not teardown.
	if len(effects.disconnects) != 0 {
		t.Errorf("disconnects after fresh expiry event: got %v", effects.disconnects)
	}
}

func TestStatusNotices(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCJoin{Nick: "carol", Channel: "#general-irc"})
	dispatch(t, b, IRCPart{Nick: "carol", Channel: "#general-irc"})
	dispatch(t, b, IRCQuit{Nick: "dave", Reason: "gone", Channels: []string{"#general-irc"}})

	if len(slack.sent) != 3 {
		t.Fatalf("slack.sent: got %v", slack.sent)
	}
	if want := "*carol* has joined #general-irc"; slack.sent[0].Text != want {
		t.Errorf("join: got %q, want %q", slack.sent[0].Text, want)
	}
	if want := "*carol* has left #general-irc"; slack.sent[1].Text != want {
		t.Errorf("part: got %q, want %q", slack.sent[1].Text, want)
	}
	if want := "*dave* has quit (gone)"; slack.sent[2].Text != want {
		t.Errorf("quit: got %q, want %q", slack.sent[2].Text, want)
	}
}

func TestStatusNoticesDisabled(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, func(cfg *BridgeConfig) {
		cfg.StatusNotices = StatusNotices{}
	})
	dispatch(t, b, IRCJoin{Nick: "carol", Channel: "#general-irc"})
	dispatch(t, b, IRCQuit{Nick: "carol", Channels: []string{"#general-irc"}})
	if len(slack.sent) != 0 {
		t.Errorf("slack.sent: got %v, want none", slack.sent)
	}
}

func TestStatusNoticesSkipShadowsAndSelf(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, SlackUserChange{UserID: "U1", DisplayName: "alice", Presence: "active"})
	dispatch(t, b, IRCJoin{Nick: "alice-sl", Channel: "#general-irc"})
	dispatch(t, b, IRCJoin{Nick: "bridgebot", Channel: "#general-irc"})

	if len(slack.sent) != 0 {
		t.Errorf("slack.sent: got %v, want none", slack.sent)
	}
}

func TestTopicChangeRelayed(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCTopicChanged{Nick: "carol", Channel: "#general-irc", Topic: "fresh topic"})

	want := "*carol* changed the topic of #general-irc to: fresh topic"
	if len(slack.sent) != 1 || slack.sent[0].Text != want {
		t.Errorf("slack.sent: got %v, want %q", slack.sent, want)
	}
}

func TestInviteJoinsMappedChannel(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCInvite{Channel: "#general-irc"})
	dispatch(t, b, IRCInvite{Channel: "#stranger-danger"})

	if len(irc.joins) != 1 || irc.joins[0] != "#general-irc" {
		t.Errorf("joins: got %v, want [#general-irc]", irc.joins)
	}
}

func TestPrimaryRegistrationJoinsChannels(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCRegistered{Nick: "bridgebot"})

	if len(irc.joins) != 1 || irc.joins[0] != "#general-irc" {
		t.Errorf("joins: got %v, want [#general-irc]", irc.joins)
	}
}

func TestExternalizedCodeBlock(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)
	b.ext = &fakeExternalizer{url: "https://files.example/snip"}

	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1",
		Text: "check this:\n```\nfunc main() {}\n```"})

	// The relay is suspended while the upload runs; the continuation comes
	// back through the event queue.
	if len(irc.said) != 0 {
		t.Fatalf("irc.said before continuation: got %v", irc.said)
	}
	evt := waitForEvent(t, b)
	dispatch(t, b, evt)

	want := "<alice> check this: https://files.example/snip"
	if len(irc.said) != 1 || irc.said[0].Text != want {
		t.Errorf("irc.said: got %v, want %q", irc.said, want)
	}
}

func TestExternalizedRechecksMembership(t *testing.T) {
	t.Parallel()
	b, slack, irc, _ := newTestBridge(t, nil)
	b.ext = &fakeExternalizer{url: "https://files.example/snip"}

	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1", Text: "```code```"})
	evt := waitForEvent(t, b)

	// The bridge left the channel while the upload was in flight.
	slack.channelsByID["C1"].IsMember = false
	dispatch(t, b, evt)

	if len(irc.said) != 0 {
		t.Errorf("irc.said: got %v, want none", irc.said)
	}
}

func TestExternalizerFailureFallsBack(t *testing.T) {
	t.Parallel()
	b, _, irc, _ := newTestBridge(t, nil)
	b.ext = &fakeExternalizer{err: errors.New("upload refused")}

	dispatch(t, b, SlackMessage{UserID: "U1", ChannelID: "C1", Text: "```code```"})

	evt := waitForEvent(t, b)
	dispatch(t, b, evt)

	// On failure the original text relays unmodified.
	if len(irc.said) != 1 || !strings.Contains(irc.said[0].Text, "```code```") {
		t.Errorf("irc.said: got %v, want original text", irc.said)
	}
}

// waitForEvent pulls the next internally queued event off the loop's inbox.
func waitForEvent(t *testing.T, b *Bridge) Event {
	t.Helper()
	select {
	case evt := <-b.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a queued event")
		return nil
	}
}

func TestFatalIRCErrorStopsRun(t *testing.T) {
	t.Parallel()
	b, _, _, _ := newTestBridge(t, nil)

	go b.Queue(IRCError{Err: ErrReconnectExhausted, Fatal: true})

	err := b.Run(context.Background())
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Errorf("Run: got %v, want ErrReconnectExhausted", err)
	}

	// Run stops the loop on the way out, so late transport sends never
	// block on a dead queue.
	select {
	case <-b.done:
	default:
		t.Error("loop should be stopped after Run returns")
	}
	sent := make(chan struct{})
	go func() {
		b.Queue(SlackError{Err: errors.New("late event")})
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Error("Queue blocked after shutdown")
	}
}

func TestNonFatalErrorsKeepRunning(t *testing.T) {
	t.Parallel()
	b, _, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCError{Err: errors.New("blip")})
	dispatch(t, b, SlackError{Err: errors.New("blip")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v, want context.Canceled", err)
	}
}

func TestUnsolicitedRepliesIgnored(t *testing.T) {
	t.Parallel()
	b, slack, _, _ := newTestBridge(t, nil)

	dispatch(t, b, IRCNamesReply{Channel: "#general-irc", Nicks: []string{"a"}})
	dispatch(t, b, IRCTopicReply{Channel: "#general-irc", Topic: "t"})

	if len(slack.sent) != 0 {
		t.Errorf("slack.sent: got %v, want none", slack.sent)
	}
}
