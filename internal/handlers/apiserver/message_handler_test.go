package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/rishabh1721/WanderLust/internal/apperrors"
	"github.com/rishabh1721/WanderLust/internal/middleware"
	"github.com/rishabh1721/WanderLust/internal/models"
	"github.com/rishabh1721/WanderLust/internal/services"
)

// stubMessaging records calls and returns canned results.
type stubMessaging struct {
	sendToUserErr  error
	lastStartInput services.StartMessageInput
	lastSendInput  services.SendMessageInput
	lastRecipient  uint
	lastListingID  *uint
	lastBookingID  *uint
	openErr        error
	lastConvID     uint
	lastMessageID  uint
	lastArchived   bool
	lastQuery      services.InboxQuery
	markReadResult int64
	unreadTotal    int64
	deleteErr      error
	markReadErr    error
	archiveErr     error
	pageErr        error
}

func (s *stubMessaging) OpenConversation(ctx context.Context, userID uint, recipientID uint, listingID *uint, bookingID *uint) (*services.ConversationPage, error) {
	s.lastRecipient = recipientID
	s.lastListingID = listingID
	s.lastBookingID = bookingID
	if s.openErr != nil {
		return nil, s.openErr
	}
	page := &services.ConversationPage{Page: 1, PageSize: 30}
	page.Conversation.ConversationID = 5
	return page, nil
}

func (s *stubMessaging) SendToUser(ctx context.Context, senderID uint, recipientID uint, input services.StartMessageInput) (*models.Message, *models.Conversation, error) {
	s.lastRecipient = recipientID
	s.lastStartInput = input
	if s.sendToUserErr != nil {
		return nil, nil, s.sendToUserErr
	}
	return &models.Message{BaseModel: models.BaseModel{ID: 10}, Content: input.Content},
		&models.Conversation{BaseModel: models.BaseModel{ID: 5}}, nil
}

func (s *stubMessaging) SendToConversation(ctx context.Context, senderID uint, conversationID uint, input services.SendMessageInput) (*models.Message, error) {
	s.lastConvID = conversationID
	s.lastSendInput = input
	return &models.Message{BaseModel: models.BaseModel{ID: 11}, Content: input.Content}, nil
}

func (s *stubMessaging) Inbox(ctx context.Context, userID uint, query services.InboxQuery) (*services.InboxView, error) {
	s.lastQuery = query
	return &services.InboxView{Items: []services.InboxItem{}, Page: query.Page, PageSize: query.PageSize}, nil
}

func (s *stubMessaging) GetConversationPage(ctx context.Context, userID uint, conversationID uint, page int, pageSize int) (*services.ConversationPage, error) {
	s.lastConvID = conversationID
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return &services.ConversationPage{Page: page, PageSize: pageSize}, nil
}

func (s *stubMessaging) MarkConversationRead(ctx context.Context, userID uint, conversationID uint) (int64, error) {
	s.lastConvID = conversationID
	return s.markReadResult, s.markReadErr
}

func (s *stubMessaging) SetConversationArchived(ctx context.Context, userID uint, conversationID uint, archived bool) error {
	s.lastConvID = conversationID
	s.lastArchived = archived
	return s.archiveErr
}

func (s *stubMessaging) DeleteMessageForUser(ctx context.Context, userID uint, messageID uint) error {
	s.lastMessageID = messageID
	return s.deleteErr
}

func (s *stubMessaging) UnreadTotal(ctx context.Context, userID uint) (int64, error) {
	return s.unreadTotal, nil
}

func (s *stubMessaging) VerifyParticipant(ctx context.Context, userID uint, conversationID uint) error {
	return nil
}

// newRouter mounts the handler the way the server does.
func newRouter(h *MessageHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/messages", h.Inbox).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/unread-count", h.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/user/{userId}", h.OpenConversation).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/user/{userId}", h.SendToUser).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/conversation/{id}", h.GetConversation).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/conversation/{id}", h.SendToConversation).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/conversation/{id}/read", h.MarkRead).Methods(http.MethodPatch)
	r.HandleFunc("/api/messages/conversation/{id}/archive", h.Archive).Methods(http.MethodPatch)
	r.HandleFunc("/api/messages/conversation/{id}/unarchive", h.Unarchive).Methods(http.MethodPatch)
	r.HandleFunc("/api/messages/message/{id}", h.DeleteMessage).Methods(http.MethodDelete)
	return r
}

func authedRequest(method, target string, body *bytes.Buffer) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, uint(1)))
}

func TestInboxHandler(t *testing.T) {
	stub := &stubMessaging{}
	router := newRouter(NewMessageHandler(stub))

	t.Run("requires authentication", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("passes query through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages?tab=archived&search=bob&page=3&pageSize=10", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
		}
		if stub.lastQuery.Tab != "archived" || stub.lastQuery.Search != "bob" ||
			stub.lastQuery.Page != 3 || stub.lastQuery.PageSize != 10 {
			t.Errorf("query: %+v", stub.lastQuery)
		}
	})

	t.Run("bad paging falls back to defaults", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages?page=zero&pageSize=-4", nil))
		if stub.lastQuery.Page != 1 || stub.lastQuery.PageSize != 20 {
			t.Errorf("query: %+v", stub.lastQuery)
		}
	})
}

func TestUnreadCountHandler(t *testing.T) {
	stub := &stubMessaging{unreadTotal: 7}
	router := newRouter(NewMessageHandler(stub))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages/unread-count", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["unreadCount"] != 7 {
		t.Errorf("unreadCount: got %d", body["unreadCount"])
	}
}

func TestOpenConversationHandler(t *testing.T) {
	t.Run("returns the canonical conversation", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages/user/2?listing=42", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
		}
		if stub.lastRecipient != 2 {
			t.Errorf("recipient: got %d", stub.lastRecipient)
		}
		if stub.lastListingID == nil || *stub.lastListingID != 42 {
			t.Errorf("listing id: got %v", stub.lastListingID)
		}
		if stub.lastBookingID != nil {
			t.Errorf("booking id: got %v", stub.lastBookingID)
		}

		var page services.ConversationPage
		if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
			t.Fatal(err)
		}
		if page.Conversation.ConversationID != 5 {
			t.Errorf("conversation id: got %d", page.Conversation.ConversationID)
		}
	})

	t.Run("rejects a bad listing id", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages/user/2?listing=abc", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("maps service errors", func(t *testing.T) {
		stub := &stubMessaging{openErr: apperrors.New(apperrors.KindForbidden, "you cannot message this user")}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages/user/2", nil))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status: got %d", rec.Code)
		}
	})
}

func TestSendToUserHandler(t *testing.T) {
	t.Run("JSON body", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		listingID := uint(42)
		payload, _ := json.Marshal(sendRequest{Content: "is it free?", ListingID: &listingID})
		req := authedRequest(http.MethodPost, "/api/messages/user/2", bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
		}
		if stub.lastRecipient != 2 {
			t.Errorf("recipient: got %d", stub.lastRecipient)
		}
		if stub.lastStartInput.Content != "is it free?" {
			t.Errorf("content: got %q", stub.lastStartInput.Content)
		}
		if stub.lastStartInput.ListingID == nil || *stub.lastStartInput.ListingID != 42 {
			t.Errorf("listing id: got %v", stub.lastStartInput.ListingID)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["conversationId"].(float64) != 5 {
			t.Errorf("conversationId: got %v", body["conversationId"])
		}
	})

	t.Run("multipart with attachment", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		form.WriteField("content", "see photo")
		part, err := form.CreateFormFile("attachment", "cabin.jpg")
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("jpegdata"))
		form.Close()

		req := authedRequest(http.MethodPost, "/api/messages/user/2", &buf)
		req.Header.Set("Content-Type", form.FormDataContentType())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
		}
		if stub.lastStartInput.Content != "see photo" {
			t.Errorf("content: got %q", stub.lastStartInput.Content)
		}
		if stub.lastStartInput.Attachment == nil {
			t.Fatal("attachment missing")
		}
		if stub.lastStartInput.Attachment.FileName != "cabin.jpg" {
			t.Errorf("file name: got %q", stub.lastStartInput.Attachment.FileName)
		}
	})

	t.Run("invalid user id", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		req := authedRequest(http.MethodPost, "/api/messages/user/abc", bytes.NewBufferString(`{"content":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("service errors map to status codes", func(t *testing.T) {
		stub := &stubMessaging{sendToUserErr: apperrors.New(apperrors.KindForbidden, "you cannot message this user")}
		router := newRouter(NewMessageHandler(stub))

		req := authedRequest(http.MethodPost, "/api/messages/user/2", bytes.NewBufferString(`{"content":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status: got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "cannot message") {
			t.Errorf("body: %s", rec.Body.String())
		}
	})
}

func TestSendToConversationHandler(t *testing.T) {
	stub := &stubMessaging{}
	router := newRouter(NewMessageHandler(stub))

	req := authedRequest(http.MethodPost, "/api/messages/conversation/9", bytes.NewBufferString(`{"content":"reply"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if stub.lastConvID != 9 {
		t.Errorf("conversation id: got %d", stub.lastConvID)
	}
	if stub.lastSendInput.Content != "reply" {
		t.Errorf("content: got %q", stub.lastSendInput.Content)
	}
}

func TestGetConversationHandler(t *testing.T) {
	t.Run("passes paging", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages/conversation/9?page=2&pageSize=15", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d", rec.Code)
		}
		var page services.ConversationPage
		if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
			t.Fatal(err)
		}
		if page.Page != 2 || page.PageSize != 15 {
			t.Errorf("paging: page=%d pageSize=%d", page.Page, page.PageSize)
		}
	})

	t.Run("not found", func(t *testing.T) {
		stub := &stubMessaging{pageErr: apperrors.New(apperrors.KindNotFound, "conversation not found")}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/messages/conversation/404", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status: got %d", rec.Code)
		}
	})
}

func TestMarkReadHandler(t *testing.T) {
	stub := &stubMessaging{markReadResult: 3}
	router := newRouter(NewMessageHandler(stub))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/messages/conversation/9/read", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["markedRead"] != 3 {
		t.Errorf("markedRead: got %d", body["markedRead"])
	}
}

func TestArchiveHandlers(t *testing.T) {
	stub := &stubMessaging{}
	router := newRouter(NewMessageHandler(stub))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/messages/conversation/9/archive", nil))
	if rec.Code != http.StatusOK || !stub.lastArchived {
		t.Fatalf("archive: status=%d archived=%v", rec.Code, stub.lastArchived)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/messages/conversation/9/unarchive", nil))
	if rec.Code != http.StatusOK || stub.lastArchived {
		t.Fatalf("unarchive: status=%d archived=%v", rec.Code, stub.lastArchived)
	}
}

func TestDeleteMessageHandler(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		stub := &stubMessaging{}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/messages/message/10", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d", rec.Code)
		}
		if stub.lastMessageID != 10 {
			t.Errorf("message id: got %d", stub.lastMessageID)
		}
	})

	t.Run("forbidden for outsiders", func(t *testing.T) {
		stub := &stubMessaging{deleteErr: apperrors.New(apperrors.KindForbidden, "not a participant")}
		router := newRouter(NewMessageHandler(stub))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/messages/message/10", nil))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status: got %d", rec.Code)
		}
	})
}
