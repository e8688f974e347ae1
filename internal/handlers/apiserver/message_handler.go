package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rishabh1721/WanderLust/internal/apperrors"
	"github.com/rishabh1721/WanderLust/internal/middleware"
	"github.com/rishabh1721/WanderLust/internal/services"
	"github.com/rishabh1721/WanderLust/internal/storage"
)

// maxMultipartMemory bounds how much of an upload is buffered in memory.
const maxMultipartMemory = 10 << 20 // 10 MB

// MessageHandler bundles the messaging HTTP handlers.
type MessageHandler struct {
	Messaging services.MessagingService
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(messaging services.MessagingService) *MessageHandler {
	return &MessageHandler{Messaging: messaging}
}

// sendRequest is the JSON body for sending a message.
type sendRequest struct {
	Content   string `json:"content"`
	ListingID *uint  `json:"listingId,omitempty"`
	BookingID *uint  `json:"bookingId,omitempty"`
}

// writeServiceError maps an application error onto an HTTP response.
func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, err.Error(), apperrors.HTTPStatus(err))
}

// requireUser pulls the authenticated user out of the context.
func requireUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

func pathID(r *http.Request, name string) (uint, error) {
	return storage.StrToUint(mux.Vars(r)[name])
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

// Inbox lists the user's conversations.
// GET /api/messages?tab=all&search=&page=1&pageSize=20
func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	query := services.InboxQuery{
		Tab:      r.URL.Query().Get("tab"),
		Search:   r.URL.Query().Get("search"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "pageSize", 20),
	}

	view, err := h.Messaging.Inbox(r.Context(), userID, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// UnreadCount returns the inbox badge count.
// GET /api/messages/unread-count
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	total, err := h.Messaging.UnreadTotal(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int64{"unreadCount": total})
}

// OpenConversation ensures the conversation with another user exists and
// returns its first page, so a client can open and subscribe to a thread
// before anything has been sent.
// GET /api/messages/user/{userId}?listing=&booking=
func (h *MessageHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	recipientID, err := pathID(r, "userId")
	if err != nil {
		writeJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var listingID, bookingID *uint
	if raw := r.URL.Query().Get("listing"); raw != "" {
		id, err := storage.StrToUint(raw)
		if err != nil {
			writeJSONError(w, "invalid listing id", http.StatusBadRequest)
			return
		}
		listingID = &id
	}
	if raw := r.URL.Query().Get("booking"); raw != "" {
		id, err := storage.StrToUint(raw)
		if err != nil {
			writeJSONError(w, "invalid booking id", http.StatusBadRequest)
			return
		}
		bookingID = &id
	}

	page, err := h.Messaging.OpenConversation(r.Context(), userID, recipientID, listingID, bookingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

// SendToUser starts or continues a conversation with another user.
// POST /api/messages/user/{userId}
func (h *MessageHandler) SendToUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	recipientID, err := pathID(r, "userId")
	if err != nil {
		writeJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	input, cleanup, err := h.parseStartInput(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	message, conv, err := h.Messaging.SendToUser(r.Context(), userID, recipientID, *input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"conversationId": conv.ID,
		"message":        message,
	})
}

// GetConversation returns one page of a conversation and marks it read.
// GET /api/messages/conversation/{id}?page=1&pageSize=30
func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	page, err := h.Messaging.GetConversationPage(r.Context(), userID, conversationID,
		queryInt(r, "page", 1), queryInt(r, "pageSize", 30))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

// SendToConversation posts a message into an existing conversation.
// POST /api/messages/conversation/{id}
func (h *MessageHandler) SendToConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	input, cleanup, err := h.parseStartInput(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	message, err := h.Messaging.SendToConversation(r.Context(), userID, conversationID, input.SendMessageInput)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, message)
}

// MarkRead clears the user's unread state for a conversation.
// PATCH /api/messages/conversation/{id}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	cleared, err := h.Messaging.MarkConversationRead(r.Context(), userID, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int64{"markedRead": cleared})
}

// Archive hides a conversation from the user's main inbox.
// PATCH /api/messages/conversation/{id}/archive
func (h *MessageHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive restores a conversation to the user's main inbox.
// PATCH /api/messages/conversation/{id}/unarchive
func (h *MessageHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *MessageHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	if err := h.Messaging.SetConversationArchived(r.Context(), userID, conversationID, archived); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"archived": archived})
}

// DeleteMessage removes a message from the requesting user's view.
// DELETE /api/messages/message/{id}
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	messageID, err := pathID(r, "id")
	if err != nil {
		writeJSONError(w, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.Messaging.DeleteMessageForUser(r.Context(), userID, messageID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"deleted": true})
}

// parseStartInput reads the message payload from either a JSON body or a
// multipart form carrying an "attachment" file. The returned cleanup closes
// the uploaded file, if any.
func (h *MessageHandler) parseStartInput(r *http.Request) (*services.StartMessageInput, func(), error) {
	noop := func() {}
	input := &services.StartMessageInput{}

	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, noop, err
		}
		input.Content = r.FormValue("content")
		if raw := r.FormValue("listingId"); raw != "" {
			id, err := storage.StrToUint(raw)
			if err == nil {
				input.ListingID = &id
			}
		}
		if raw := r.FormValue("bookingId"); raw != "" {
			id, err := storage.StrToUint(raw)
			if err == nil {
				input.BookingID = &id
			}
		}

		file, header, err := r.FormFile("attachment")
		if err == nil {
			input.Attachment = &services.AttachmentUpload{
				Reader:   file,
				FileName: header.Filename,
				MimeType: header.Header.Get("Content-Type"),
				Size:     header.Size,
			}
			return input, func() { file.Close() }, nil
		}
		return input, noop, nil
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, noop, err
	}
	defer r.Body.Close()

	input.Content = req.Content
	input.ListingID = req.ListingID
	input.BookingID = req.BookingID
	return input, noop, nil
}
