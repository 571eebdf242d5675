// Copyright 2025-2026 Mantene

// Package slackrtm adapts the Slack RTM API to the bridge's workspace
// transport interface.
package slackrtm

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/Mantene/slack-irc/pkg/bridge"
)

// Transport is the Slack-side transport for one bridge. It pumps RTM
// events into the bridge's event queue and exposes the directory and send
// operations the core consumes.
type Transport struct {
	log zerolog.Logger
	api *slack.Client
	rtm *slack.RTM

	stopOnce sync.Once
	stopChan chan struct{}

	mu       sync.RWMutex
	userName map[string]string // user ID -> display name cache
}

// New creates a transport for the given bot token.
func New(log zerolog.Logger, token string) *Transport {
	api := slack.New(token)
	return &Transport{
		log:      log.With().Str("component", "slack_transport").Logger(),
		api:      api,
		rtm:      api.NewRTM(),
		stopChan: make(chan struct{}),
		userName: make(map[string]string),
	}
}

// Start connects the RTM stream and pumps events into sink until Stop.
func (t *Transport) Start(sink bridge.EventSink) {
	go t.rtm.ManageConnection()
	go t.pump(sink)
}

// Stop closes the RTM connection.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	if err := t.rtm.Disconnect(); err != nil {
		t.log.Debug().Err(err).Msg("RTM disconnect")
	}
}

// pump translates RTM events into bridge event variants.
func (t *Transport) pump(sink bridge.EventSink) {
	for {
		select {
		case <-t.stopChan:
			return
		case msg, ok := <-t.rtm.IncomingEvents:
			if !ok {
				return
			}
			t.handleRTMEvent(sink, msg)
		}
	}
}

func (t *Transport) handleRTMEvent(sink bridge.EventSink, msg slack.RTMEvent) {
	switch ev := msg.Data.(type) {
	case *slack.ConnectedEvent:
		sink.Queue(bridge.SlackConnected{
			BotUserID: ev.Info.User.ID,
			BotName:   ev.Info.User.Name,
		})
	case *slack.MessageEvent:
		out := bridge.SlackMessage{
			UserID:    ev.User,
			ChannelID: ev.Channel,
			Text:      ev.Text,
			Subtype:   ev.SubType,
		}
		if len(ev.Files) > 0 {
			out.FileURL = ev.Files[0].URLPrivate
			out.FileName = ev.Files[0].Name
		}
		sink.Queue(out)
	case *slack.UserChangeEvent:
		t.cacheUserName(ev.User.ID, displayName(&ev.User))
		sink.Queue(bridge.SlackUserChange{
			UserID:      ev.User.ID,
			DisplayName: displayName(&ev.User),
			Presence:    ev.User.Presence,
		})
	case *slack.PresenceChangeEvent:
		name, err := t.userNameByID(ev.User)
		if err != nil {
			t.log.Debug().Err(err).Str("user_id", ev.User).Msg("Presence change for unknown user")
			return
		}
		sink.Queue(bridge.SlackUserChange{
			UserID:      ev.User,
			DisplayName: name,
			Presence:    ev.Presence,
		})
	case *slack.RTMError:
		sink.Queue(bridge.SlackError{Err: ev})
	case *slack.InvalidAuthEvent:
		sink.Queue(bridge.SlackError{Err: fmt.Errorf("invalid slack credentials")})
	default:
		t.log.Trace().Str("event_type", msg.Type).Msg("Unhandled RTM event")
	}
}

// SendMessage posts to a channel, optionally displaying under another
// identity's name and avatar instead of the bridge's own.
func (t *Transport) SendMessage(channelID, text string, override *bridge.DisplayOverride) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionAsUser(false),
	}
	if override != nil {
		opts = append(opts,
			slack.MsgOptionUsername(override.Username),
			slack.MsgOptionIconURL(override.IconURL),
		)
	}
	if _, _, err := t.api.PostMessage(channelID, opts...); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

// OpenDirectMessage opens (or resumes) a direct conversation with a user.
func (t *Transport) OpenDirectMessage(userID string) (string, error) {
	ch, _, _, err := t.api.OpenConversation(&slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to open conversation: %w", err)
	}
	return ch.ID, nil
}

// SetChannelTopic sets a Slack channel topic.
func (t *Transport) SetChannelTopic(channelID, text string) error {
	if _, err := t.api.SetTopicOfConversation(channelID, text); err != nil {
		return fmt.Errorf("failed to set topic: %w", err)
	}
	return nil
}

// UserByID resolves a user from the directory.
func (t *Transport) UserByID(id string) (*bridge.WorkspaceUser, error) {
	user, err := t.api.GetUserInfo(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	name := displayName(user)
	t.cacheUserName(id, name)
	return &bridge.WorkspaceUser{ID: user.ID, Name: name}, nil
}

// ChannelByID resolves a channel from the directory.
func (t *Transport) ChannelByID(id string) (*bridge.WorkspaceChannel, error) {
	ch, err := t.api.GetConversationInfo(&slack.GetConversationInfoInput{
		ChannelID: id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", id, err)
	}
	return t.toWorkspaceChannel(ch), nil
}

// ChannelByName resolves a channel by bare name (no "#").
func (t *Transport) ChannelByName(name string) (*bridge.WorkspaceChannel, error) {
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
	}
	for {
		channels, cursor, err := t.api.GetConversations(params)
		if err != nil {
			return nil, fmt.Errorf("failed to list channels: %w", err)
		}
		for i := range channels {
			if channels[i].Name == name {
				return t.toWorkspaceChannel(&channels[i]), nil
			}
		}
		if cursor == "" {
			return nil, fmt.Errorf("channel %q not found", name)
		}
		params.Cursor = cursor
	}
}

// ChannelMembers lists the user IDs present in a channel.
func (t *Transport) ChannelMembers(channelID string) ([]string, error) {
	var members []string
	params := &slack.GetUsersInConversationParameters{
		ChannelID: channelID,
		Limit:     200,
	}
	for {
		page, cursor, err := t.api.GetUsersInConversation(params)
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		members = append(members, page...)
		if cursor == "" {
			return members, nil
		}
		params.Cursor = cursor
	}
}

func (t *Transport) toWorkspaceChannel(ch *slack.Channel) *bridge.WorkspaceChannel {
	name := ch.Name
	if ch.IsIM {
		// Direct conversations display as the counterpart's name.
		if cached, err := t.userNameByID(ch.User); err == nil {
			name = cached
		}
	}
	return &bridge.WorkspaceChannel{
		ID:       ch.ID,
		Name:     name,
		IsDirect: ch.IsIM,
		IsMember: ch.IsMember || ch.IsIM,
	}
}

func (t *Transport) cacheUserName(id, name string) {
	t.mu.Lock()
	t.userName[id] = name
	t.mu.Unlock()
}

func (t *Transport) userNameByID(id string) (string, error) {
	t.mu.RLock()
	name, ok := t.userName[id]
	t.mu.RUnlock()
	if ok {
		return name, nil
	}
	user, err := t.api.GetUserInfo(id)
	if err != nil {
		return "", err
	}
	name = displayName(user)
	t.cacheUserName(id, name)
	return name, nil
}

// displayName picks the name the bridge shows for a Slack user.
func displayName(user *slack.User) string {
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.Name
}
