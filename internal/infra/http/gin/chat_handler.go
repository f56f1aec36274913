package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/dto"
	chatsvc "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// ChatHTTP exposes the request/response chat endpoints. Live messaging
// goes through the websocket surface.
type ChatHTTP interface {
	Start(c *gin.Context)
	ListMyConversations(c *gin.Context)
	ListMessages(c *gin.Context)
}

type ChatHandler struct {
	Directory *chatsvc.Directory
	Store     *chatsvc.Store
	Gate      *chatsvc.LifecycleGate
	Users     domainuser.Repository
	Listings  domainlistings.Repository
	Logger    *slog.Logger
}

type startChatRequest struct {
	ListingID string `json:"listing_id"`
}

// Start resolves or creates the requester's conversation with the
// listing's seller. Safe to retry with identical arguments.
func (h ChatHandler) Start(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Directory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	listingID := strings.TrimSpace(req.ListingID)
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id is required"})
		return
	}
	conversation, err := h.Directory.ResolveOrCreate(
		c.Request.Context(),
		domainlistings.ListingID(listingID),
		domainuser.ID(principal.ID),
	)
	if err != nil {
		h.respondChatError(c, err, "start conversation", "listing_id", listingID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, h.conversationView(c, conversation, domainuser.ID(principal.ID), nil))
}

// ListMyConversations returns the principal's inbox, most recently active
// first.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	summaries, err := h.Store.ListForParticipant(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", principal.ID)
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(summaries))}
	for _, summary := range summaries {
		conversation := summary.Conversation
		collection.Items = append(collection.Items, h.conversationView(c, &conversation, domainuser.ID(principal.ID), summary.Latest))
	}
	c.JSON(http.StatusOK, collection)
}

// ListMessages returns the full ordered history plus the listing's current
// lifecycle state.
func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Store == nil || h.Gate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	messages, err := h.Store.History(c.Request.Context(), domainchat.ConversationID(conversationID), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err, "load history", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	status, err := h.Gate.CurrentListingState(c.Request.Context(), domainchat.ConversationID(conversationID))
	if err != nil {
		h.respondChatError(c, err, "load listing state", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	history := dto.ConversationHistory{
		Messages:      make([]dto.ChatMessage, 0, len(messages)),
		ListingStatus: string(status),
	}
	for i := range messages {
		history.Messages = append(history.Messages, dto.MapChatMessage(&messages[i]))
	}
	c.JSON(http.StatusOK, history)
}

func (h ChatHandler) conversationView(c *gin.Context, conversation *domainchat.Conversation, viewer domainuser.ID, latest *domainchat.Message) dto.Conversation {
	view := dto.Conversation{
		ID:            string(conversation.ID),
		ListingID:     string(conversation.ListingID),
		CounterpartID: string(conversation.Counterpart(viewer)),
		CreatedAt:     conversation.CreatedAt,
	}
	if latest != nil {
		mapped := dto.MapChatMessage(latest)
		view.LatestMessage = &mapped
	}
	// display name and title are decoration; a purged counterpart or
	// listing leaves them empty rather than failing the inbox
	if h.Users != nil {
		if counterpart, err := h.Users.ByID(c.Request.Context(), conversation.Counterpart(viewer)); err == nil {
			view.CounterpartDisplayName = counterpart.DisplayName
		}
	}
	if h.Listings != nil {
		if listing, err := h.Listings.ByID(c.Request.Context(), conversation.ListingID); err == nil {
			view.ListingTitle = listing.Title
		}
	}
	return view
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, domainlistings.ErrNotFound), errors.Is(err, domainchat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, domainchat.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a chat on your own listing"})
	case errors.Is(err, domainchat.ErrListingUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "listing no longer accepts new conversations"})
	case errors.Is(err, domainchat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is required"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat request failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat request failed"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
