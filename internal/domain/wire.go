package domain

import "encoding/json"

// Envelope types pushed by the fanout server.
const (
	MsgBookUpdate = "book_update"
	MsgStatus     = "status"
	MsgError      = "error"
)

// Envelope wraps every server-to-client frame on the subscription stream.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribeRequest is the single client-to-server frame: it opens the stream
// for one symbol. No further client flow control is defined.
type SubscribeRequest struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// StatusPayload is pushed once when a subscription is accepted.
type StatusPayload struct {
	Symbol        string `json:"symbol"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subscribers   int    `json:"subscribers"`
}

// ErrorPayload is pushed before the server closes a rejected stream.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
