package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/realtime"
)

// RealtimeHTTP upgrades authenticated requests onto the chat hub.
type RealtimeHTTP interface {
	Serve(c *gin.Context)
}

type RealtimeHandler struct {
	Hub    *realtime.Hub
	Logger *slog.Logger

	upgrader websocket.Upgrader
}

func NewRealtimeHandler(hub *realtime.Hub, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		Hub:    hub,
		Logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// cross-origin browser clients connect here; bearer auth is
			// the actual gate
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve authenticates, upgrades, and hands the connection to the hub. The
// principal resolved here is the only identity the hub will ever attribute
// frames to.
func (h *RealtimeHandler) Serve(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "error", err, "user_id", principal.ID)
		}
		return
	}
	h.Hub.ServeConn(c.Request.Context(), conn, domainuser.ID(principal.ID))
}

var _ RealtimeHTTP = (*RealtimeHandler)(nil)
