// Copyright 2025-2026 Mantene

package bridge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Fake transports. The bridge only sees interfaces, so tests inject these
// and inspect the recorded calls.
// ---------------------------------------------------------------------------

type sentMessage struct {
	ChannelID string
	Text      string
	Override  *DisplayOverride
}

type fakeSlack struct {
	users          map[string]*WorkspaceUser
	channelsByID   map[string]*WorkspaceChannel
	channelsByName map[string]*WorkspaceChannel
	members        map[string][]string
	dms            map[string]string

	sent   []sentMessage
	topics []sentMessage
}

func newFakeSlack() *fakeSlack {
	return &fakeSlack{
		users:          make(map[string]*WorkspaceUser),
		channelsByID:   make(map[string]*WorkspaceChannel),
		channelsByName: make(map[string]*WorkspaceChannel),
		members:        make(map[string][]string),
		dms:            make(map[string]string),
	}
}

func (f *fakeSlack) addUser(id, name string) {
	f.users[id] = &WorkspaceUser{ID: id, Name: name}
}

func (f *fakeSlack) addChannel(ch *WorkspaceChannel, members ...string) {
	f.channelsByID[ch.ID] = ch
	f.channelsByName[ch.Name] = ch
	f.members[ch.ID] = members
}

func (f *fakeSlack) SendMessage(channelID, text string, override *DisplayOverride) error {
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Text: text, Override: override})
	return nil
}

func (f *fakeSlack) OpenDirectMessage(userID string) (string, error) {
	if dm, ok := f.dms[userID]; ok {
		return dm, nil
	}
	return "", fmt.Errorf("no dm for %s", userID)
}

func (f *fakeSlack) SetChannelTopic(channelID, text string) error {
	f.topics = append(f.topics, sentMessage{ChannelID: channelID, Text: text})
	return nil
}

func (f *fakeSlack) UserByID(id string) (*WorkspaceUser, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("no user %s", id)
}

func (f *fakeSlack) ChannelByID(id string) (*WorkspaceChannel, error) {
	if ch, ok := f.channelsByID[id]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("no channel %s", id)
}

func (f *fakeSlack) ChannelByName(name string) (*WorkspaceChannel, error) {
	if ch, ok := f.channelsByName[name]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("no channel %q", name)
}

func (f *fakeSlack) ChannelMembers(channelID string) ([]string, error) {
	return f.members[channelID], nil
}

type ircSend struct {
	Channel string
	Text    string
}

type fakeIRC struct {
	said          []ircSend
	topicsSet     []ircSend
	namesRequests []string
	topicRequests []string
	joins         []string
	nickChanges   []string

	online   map[string]bool
	whoisErr error
	namesErr error
}

func newFakeIRC() *fakeIRC {
	return &fakeIRC{online: make(map[string]bool)}
}

func (f *fakeIRC) Say(channel, text string) error {
	f.said = append(f.said, ircSend{Channel: channel, Text: text})
	return nil
}

func (f *fakeIRC) SetTopic(channel, text string) error {
	f.topicsSet = append(f.topicsSet, ircSend{Channel: channel, Text: text})
	return nil
}

func (f *fakeIRC) RequestNames(channel string) error {
	if f.namesErr != nil {
		return f.namesErr
	}
	f.namesRequests = append(f.namesRequests, channel)
	return nil
}

func (f *fakeIRC) RequestTopic(channel string) error {
	f.topicRequests = append(f.topicRequests, channel)
	return nil
}

func (f *fakeIRC) Join(channel string) error {
	f.joins = append(f.joins, channel)
	return nil
}

func (f *fakeIRC) ChangeNick(nick string) error {
	f.nickChanges = append(f.nickChanges, nick)
	return nil
}

func (f *fakeIRC) Whois(nick string) (WhoisResult, error) {
	if f.whoisErr != nil {
		return WhoisResult{}, f.whoisErr
	}
	return WhoisResult{Online: f.online[nick]}, nil
}

type shadowSay struct {
	Nick   string
	Target string
	Text   string
}

type fakeEffects struct {
	connects    []string
	disconnects []string
	renames     [][2]string
	says        []shadowSay
}

func (f *fakeEffects) ConnectShadow(nick string) error {
	f.connects = append(f.connects, nick)
	return nil
}

func (f *fakeEffects) RenameShadow(oldNick, newNick string) error {
	f.renames = append(f.renames, [2]string{oldNick, newNick})
	return nil
}

func (f *fakeEffects) DisconnectShadow(nick string) error {
	f.disconnects = append(f.disconnects, nick)
	return nil
}

func (f *fakeEffects) ShadowSay(nick, target, text string) error {
	f.says = append(f.says, shadowSay{Nick: nick, Target: target, Text: text})
	return nil
}

// eventRecorder is an EventSink capturing posted events. Safe for use from
// timer goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Queue(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fakeExternalizer struct {
	url string
	err error
}

func (f *fakeExternalizer) Externalize(_, _ string) (string, error) {
	return f.url, f.err
}

// ---------------------------------------------------------------------------
// Bridge construction helpers.
// ---------------------------------------------------------------------------

func testBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Name:       "test",
		SlackToken: "xoxb-test",
		IRC: IRCConfig{
			Server: "irc.example.org:6667",
			Nick:   "bridgebot",
		},
		ChannelMapping: map[string]string{
			"#general": "#general-irc",
		},
		StatusNotices:   StatusNotices{Join: true, Leave: true},
		NickSuffix:      "-sl",
		CommandPrefixes: ".",
		IRCTimeout:      time.Minute,
	}
}

// newTestBridge builds a bridge wired to fakes, with a default directory:
// users alice (U1) and bob (U2), mapped channel #general (C1) containing
// both, and a direct conversation D1 for alice.
func newTestBridge(t *testing.T, mutate func(cfg *BridgeConfig)) (*Bridge, *fakeSlack, *fakeIRC, *fakeEffects) {
	t.Helper()
	cfg := testBridgeConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	slack := newFakeSlack()
	slack.addUser("U1", "alice")
	slack.addUser("U2", "bob")
	slack.addChannel(&WorkspaceChannel{ID: "C1", Name: "general", IsMember: true}, "U1", "U2")
	slack.addChannel(&WorkspaceChannel{ID: "D1", Name: "alice", IsDirect: true, IsMember: true})
	slack.dms["U1"] = "D1"
	slack.dms["U2"] = "D2"

	irc := newFakeIRC()
	effects := &fakeEffects{}
	b, err := New(cfg, zerolog.Nop(), slack, irc, effects, nil)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	b.botUserID = "UBOT"
	return b, slack, irc, effects
}

// dispatch runs one event through the serialized handler, failing the test
// on a fatal error.
func dispatch(t *testing.T, b *Bridge, evt Event) {
	t.Helper()
	if err := b.handleEvent(evt); err != nil {
		t.Fatalf("handleEvent(%T): unexpected error: %v", evt, err)
	}
}
