package slack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// App is the Slack bot application using Socket Mode.
type App struct {
	api     *slack.Client
	socket  *socketmode.Client
	handler *Handler
	logger  zerolog.Logger
}

// NewApp creates a new Slack bot app.
func NewApp(botToken, appToken string, handler *Handler, logger zerolog.Logger) (*App, error) {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socket := socketmode.New(api)
	handler.socket = socket

	return &App{
		api:     api,
		socket:  socket,
		handler: handler,
		logger:  logger.With().Str("component", "slack").Logger(),
	}, nil
}

// API returns the underlying Slack client for posting.
func (a *App) API() *slack.Client {
	return a.api
}

// BotUserID resolves the bot's own user ID so its messages can be
// filtered out of the event stream.
func (a *App) BotUserID(ctx context.Context) (string, error) {
	resp, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("auth test failed: %w", err)
	}
	return resp.UserID, nil
}

// Run starts the Socket Mode event loop. Blocks until context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("starting Slack Socket Mode connection")

	go func() {
		for evt := range a.socket.Events {
			a.handler.HandleEvent(ctx, evt)
		}
	}()

	if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode error: %w", err)
	}
	return nil
}
