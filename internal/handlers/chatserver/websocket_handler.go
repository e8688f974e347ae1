package chatserver

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/rishabh1721/WanderLust/internal/auth"
	"github.com/rishabh1721/WanderLust/internal/broadcast"
	"github.com/rishabh1721/WanderLust/internal/config"
	"github.com/rishabh1721/WanderLust/internal/redis"
	"github.com/rishabh1721/WanderLust/internal/services"
	"github.com/rishabh1721/WanderLust/internal/ws"
)

// WebSocketHandler upgrades realtime gateway connections and dispatches
// client commands.
type WebSocketHandler struct {
	hub         *ws.Hub
	messaging   services.MessagingService
	broadcaster broadcast.Broadcaster
	presence    redis.Presence
	blacklist   auth.TokenBlacklist
	cfg         config.Config
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub, messaging services.MessagingService, broadcaster broadcast.Broadcaster, presence redis.Presence, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		messaging:   messaging,
		broadcaster: broadcaster,
		presence:    presence,
		blacklist:   blacklist,
		cfg:         cfg,
	}
}

// ServeWS handles an incoming websocket request. Authentication comes from a
// token query parameter; a missing or invalid token still gets a connection,
// but one where every command is rejected, so clients can show a logged-out
// state instead of reconnect-looping.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID uint
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
		if err != nil {
			log.Printf("WebSocket connection with invalid token: %v", err)
		} else {
			userID = claims.UserID
		}
	}

	opts := ws.ConnectionOptions{
		UserID:        userID,
		HandleCommand: h.handleCommand,
	}
	if userID != 0 {
		opts.OnPong = func() {
			if err := h.presence.SetOnline(context.Background(), userID); err != nil {
				log.Printf("Failed to refresh presence for user %d: %v", userID, err)
			}
		}
		opts.OnClose = func() {
			if err := h.presence.SetOffline(context.Background(), userID); err != nil {
				log.Printf("Failed to clear presence for user %d: %v", userID, err)
			}
		}
	}

	client, err := ws.ServeConnection(h.hub, opts, w, r, h.cfg.WebSocket)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	if userID != 0 {
		if err := h.presence.SetOnline(r.Context(), userID); err != nil {
			log.Printf("Failed to set presence for user %d: %v", userID, err)
		}
	}
	client.SendEvent(ws.Event{
		Name: ws.EventConnected,
		Data: map[string]interface{}{
			"userId":        userID,
			"authenticated": userID != 0,
		},
	})
}

// handleCommand dispatches one client frame. The read pump only calls this
// for authenticated clients.
func (h *WebSocketHandler) handleCommand(ctx context.Context, client *ws.Client, cmd ws.ClientCommand) error {
	switch cmd.Action {
	case ws.CommandJoinConversation:
		if err := h.messaging.VerifyParticipant(ctx, client.UserID, cmd.ConversationID); err != nil {
			return err
		}
		h.hub.Subscribe(client, ws.ConversationChannel(cmd.ConversationID))
		// Opening a conversation reads it.
		if _, err := h.messaging.MarkConversationRead(ctx, client.UserID, cmd.ConversationID); err != nil {
			log.Printf("Failed to mark conversation %d read on join for user %d: %v", cmd.ConversationID, client.UserID, err)
		}
		return nil

	case ws.CommandLeaveConversation:
		h.hub.Unsubscribe(client, ws.ConversationChannel(cmd.ConversationID))
		return nil

	case ws.CommandTyping, ws.CommandStoppedTyping:
		return h.relayTyping(ctx, client, cmd)

	case ws.CommandMarkRead:
		_, err := h.messaging.MarkConversationRead(ctx, client.UserID, cmd.ConversationID)
		return err

	case ws.CommandDeleteMessageForUser:
		return h.messaging.DeleteMessageForUser(ctx, client.UserID, cmd.MessageID)

	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

// relayTyping forwards a typing indicator to the conversation room, skipping
// the sender's own connection.
func (h *WebSocketHandler) relayTyping(ctx context.Context, client *ws.Client, cmd ws.ClientCommand) error {
	channel := ws.ConversationChannel(cmd.ConversationID)
	if !h.hub.Subscribed(client, channel) {
		if err := h.messaging.VerifyParticipant(ctx, client.UserID, cmd.ConversationID); err != nil {
			return err
		}
	}

	name := ws.EventTyping
	if cmd.Action == ws.CommandStoppedTyping {
		name = ws.EventStoppedTyping
	}
	return h.broadcaster.PublishExcept(ctx, channel, client, ws.Event{
		Name: name,
		Data: map[string]interface{}{
			"conversationId": cmd.ConversationID,
			"userId":         client.UserID,
		},
	})
}
