package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"alertbridge/internal/config"
)

const syncRetryDelay = 5 * time.Second

// ReactionEvent is one reaction observed in the bound room.
// Params: reacted-to message ID, reaction key, and sender user ID.
// Returns: event payload handed to the reaction handler.
type ReactionEvent struct {
	TargetMessageID string
	Key             string
	Sender          string
}

// MessageEvent is one user text message observed in the bound room.
// Params: plain text body and sender user ID.
// Returns: event payload handed to the message handler.
type MessageEvent struct {
	Body   string
	Sender string
}

// Transport is the Matrix room client used for all outbound notifications.
// Params: mautrix client bound to one room.
// Returns: narrow send/subscribe surface consumed by the app layer.
type Transport struct {
	client    *mautrix.Client
	roomID    id.RoomID
	userID    id.UserID
	logger    *slog.Logger
	startedAt time.Time

	onReaction func(context.Context, ReactionEvent)
	onMessage  func(context.Context, MessageEvent)
}

// New builds a Matrix transport from config.
// Params: matrix section settings and logger.
// Returns: transport with sync handlers registered, or client setup error.
func New(cfg config.MatrixConfig, logger *slog.Logger) (*Transport, error) {
	client, err := mautrix.NewClient(cfg.HomeserverURL, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix client: %w", err)
	}

	t := &Transport{
		client:    client,
		roomID:    id.RoomID(cfg.RoomID),
		userID:    id.UserID(cfg.UserID),
		logger:    logger,
		startedAt: time.Now(),
	}

	syncer := client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventReaction, t.handleReaction)
	syncer.OnEventType(event.EventMessage, t.handleMessage)
	return t, nil
}

// SendNotification renders Markdown and posts it to the bound room.
// Params: Markdown message body.
// Returns: sent event ID or transport error. No retry: the caller's state
// machine re-attempts naturally on the next tick or delivery.
func (t *Transport) SendNotification(ctx context.Context, text string) (string, error) {
	content := format.RenderMarkdown(text, true, false)
	resp, err := t.client.SendMessageEvent(ctx, t.roomID, event.EventMessage, &content)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.EventID.String(), nil
}

// SendReaction reacts to one message in the bound room.
// Params: target message ID and reaction key.
// Returns: transport error.
func (t *Transport) SendReaction(ctx context.Context, messageID, key string) error {
	if _, err := t.client.SendReaction(ctx, t.roomID, id.EventID(messageID), key); err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	return nil
}

// OnReaction registers the reaction handler.
// Params: handler invoked for every foreign reaction in the bound room.
// Returns: previous handler is replaced.
func (t *Transport) OnReaction(handler func(context.Context, ReactionEvent)) {
	t.onReaction = handler
}

// OnUserMessage registers the text message handler.
// Params: handler invoked for every foreign text message in the bound room.
// Returns: previous handler is replaced.
func (t *Transport) OnUserMessage(handler func(context.Context, MessageEvent)) {
	t.onMessage = handler
}

// RunSync runs the long-poll sync loop until the context is canceled.
// Params: lifecycle context.
// Returns: nil after cancellation; sync errors are logged and retried after a
// fixed backoff.
func (t *Transport) RunSync(ctx context.Context) error {
	for {
		if err := t.client.SyncWithContext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.logger.Error("matrix sync failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(syncRetryDelay):
		}
	}
}

// handleReaction filters and forwards one reaction event.
// Params: sync context and raw event.
// Returns: foreign in-room reactions newer than startup reach the handler.
func (t *Transport) handleReaction(ctx context.Context, evt *event.Event) {
	if t.onReaction == nil || !t.accept(evt) {
		return
	}
	reaction := evt.Content.AsReaction()
	if reaction == nil {
		return
	}
	t.onReaction(ctx, ReactionEvent{
		TargetMessageID: reaction.RelatesTo.EventID.String(),
		Key:             reaction.RelatesTo.Key,
		Sender:          evt.Sender.String(),
	})
}

// handleMessage filters and forwards one text message event.
// Params: sync context and raw event.
// Returns: foreign in-room messages newer than startup reach the handler.
func (t *Transport) handleMessage(ctx context.Context, evt *event.Event) {
	if t.onMessage == nil || !t.accept(evt) {
		return
	}
	message := evt.Content.AsMessage()
	if message == nil {
		return
	}
	t.onMessage(ctx, MessageEvent{
		Body:   message.Body,
		Sender: evt.Sender.String(),
	})
}

// accept applies the shared event filter.
// Params: raw sync event.
// Returns: false for other rooms, own events, and pre-startup backlog.
func (t *Transport) accept(evt *event.Event) bool {
	if evt.RoomID != t.roomID {
		return false
	}
	if evt.Sender == t.userID {
		return false
	}
	if time.UnixMilli(evt.Timestamp).Before(t.startedAt) {
		return false
	}
	return true
}
