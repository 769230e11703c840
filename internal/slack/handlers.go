package slack

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// MessageRouter receives inbound workspace messages. threadTS is empty
// for messages outside a thread.
type MessageRouter interface {
	HandleMessage(ctx context.Context, channelID, userID, text, threadTS, messageTS string)
}

// Handler processes Socket Mode events and hands messages to the router.
type Handler struct {
	socket    *socketmode.Client
	router    MessageRouter
	botUserID string
	logger    zerolog.Logger
}

// NewHandler creates an event handler. The router is wired afterwards
// via SetRouter because it needs the workspace adapter built on top of
// this handler's app.
func NewHandler(logger zerolog.Logger) *Handler {
	return &Handler{
		logger: logger.With().Str("component", "slack.handler").Logger(),
	}
}

// SetRouter sets the message router.
func (h *Handler) SetRouter(r MessageRouter) {
	h.router = r
}

// SetBotUserID configures the bot's own user ID so its messages are
// dropped instead of routed back into sessions.
func (h *Handler) SetBotUserID(id string) {
	h.botUserID = id
}

// HandleEvent routes Socket Mode events.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		h.handleEventsAPI(ctx, evt)
	case socketmode.EventTypeConnected:
		h.logger.Info().Msg("socket mode connected")
	case socketmode.EventTypeConnectionError:
		h.logger.Warn().Msg("socket mode connection error")
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

func (h *Handler) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	// Slack requires the ack within 3 seconds
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}

	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast events_api data")
		return
	}
	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}

	if h.router == nil {
		return
	}

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// skip bot messages and message_changed/deleted subtypes
		if ev.User == "" || ev.SubType != "" || ev.User == h.botUserID {
			return
		}
		h.router.HandleMessage(ctx, ev.Channel, ev.User, ev.Text, ev.ThreadTimeStamp, ev.TimeStamp)
	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == h.botUserID {
			return
		}
		h.router.HandleMessage(ctx, ev.Channel, ev.User, ev.Text, ev.ThreadTimeStamp, ev.TimeStamp)
	}
}
