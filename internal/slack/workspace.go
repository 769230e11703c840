// Package slack connects the bridge to a Slack workspace over Socket
// Mode. Stage channels are plain public channels named after their
// stage; project threads are rooted in messages the bot posts there.
package slack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// BotAPI abstracts the Slack API client for testing.
type BotAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// Workspace resolves stage channels and posts into threads. It is the
// chat platform the workflow engine drives.
type Workspace struct {
	api    BotAPI
	logger zerolog.Logger
}

// NewWorkspace creates a workspace adapter.
func NewWorkspace(api BotAPI, logger zerolog.Logger) *Workspace {
	return &Workspace{
		api:    api,
		logger: logger.With().Str("component", "slack.workspace").Logger(),
	}
}

// FindStageChannel returns the ID of the public channel with the given
// name. The bot must be able to see the channel.
func (w *Workspace) FindStageChannel(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel"},
		ExcludeArchived: true,
		Limit:           200,
	}
	for {
		channels, cursor, err := w.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("channel %s not found", name)
		}
		params.Cursor = cursor
	}
}

// CreateThread posts a thread root message for a project and returns
// its timestamp, which identifies the thread from then on.
func (w *Workspace) CreateThread(ctx context.Context, channelID, title string) (string, error) {
	_, ts, err := w.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(title, false))
	if err != nil {
		return "", fmt.Errorf("failed to open thread in %s: %w", channelID, err)
	}
	return ts, nil
}

// Send posts text into a thread. An empty threadTS posts to the channel.
func (w *Workspace) Send(ctx context.Context, channelID, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := w.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("failed to post to %s: %w", channelID, err)
	}
	return nil
}
