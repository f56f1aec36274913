package realtime

import (
	"encoding/json"

	"marketchat/internal/app/dto"
	domainchat "marketchat/internal/domain/chat"
)

// Frame types accepted from clients.
const (
	frameJoin = "join"
	frameSend = "send"
)

// Frame types emitted to clients.
const (
	frameJoined  = "joined"
	frameMessage = "message"
	frameError   = "error"
)

// Error codes carried on error frames. They surface only on the connection
// that caused them, never to the rest of the room.
const (
	CodeBadRequest         = "bad_request"
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeConversationClosed = "conversation_closed"
	CodeEmptyMessage       = "empty_message"
	CodeInternal           = "internal"
)

// inboundFrame is a client request. The sender identity is never read from
// the frame; it is bound from the authenticated connection.
type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body,omitempty"`
}

type outboundFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Code           string           `json:"code,omitempty"`
	Message        *dto.ChatMessage `json:"message,omitempty"`
}

func encodeJoined(id domainchat.ConversationID) []byte {
	return mustEncode(outboundFrame{Type: frameJoined, ConversationID: string(id)})
}

func encodeMessage(message *domainchat.Message) []byte {
	payload := dto.MapChatMessage(message)
	return mustEncode(outboundFrame{
		Type:           frameMessage,
		ConversationID: string(message.ConversationID),
		Message:        &payload,
	})
}

func encodeError(id domainchat.ConversationID, code string) []byte {
	return mustEncode(outboundFrame{Type: frameError, ConversationID: string(id), Code: code})
}

func mustEncode(frame outboundFrame) []byte {
	payload, err := json.Marshal(frame)
	if err != nil {
		// outboundFrame has no unmarshalable fields
		panic(err)
	}
	return payload
}
