// Package ipc frames and parses the NUL-delimited JSON protocol spoken with
// the transport child process. The codec is symmetric; direction is
// convention: events flow child to orchestrator, commands the other way.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventStarting            EventType = "starting"
	EventQRCode              EventType = "qr_code"
	EventConnected           EventType = "connected"
	EventDisconnected        EventType = "disconnected"
	EventLoggedOut           EventType = "logged_out"
	EventMessage             EventType = "message"
	EventPong                EventType = "pong"
	EventSendResult          EventType = "send_result"
	EventError               EventType = "error"
	EventMaxReconnectReached EventType = "max_reconnect_reached"
	EventShuttingDown        EventType = "shutting_down"
	EventStdinClosed         EventType = "stdin_closed"
)

type QuotedMessage struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text,omitempty"`
}

type MessagePayload struct {
	MessageID  string         `json:"messageId"`
	ChatID     string         `json:"chatId"`
	SenderID   string         `json:"senderId"`
	SenderName string         `json:"senderName,omitempty"`
	Text       string         `json:"text"`
	Timestamp  float64        `json:"timestamp"` // unix seconds
	IsGroup    bool           `json:"isGroup"`
	IsSelf     bool           `json:"isSelf"`
	Quoted     *QuotedMessage `json:"quotedMessage,omitempty"`
}

// Time converts the wire timestamp to a time.Time, falling back to now for
// a missing value.
func (p MessagePayload) Time() time.Time {
	if p.Timestamp <= 0 {
		return time.Now().UTC()
	}
	sec := int64(p.Timestamp)
	nsec := int64((p.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

type QRPayload struct {
	QR string `json:"qr"`
}

type ConnectedUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ConnectedPayload struct {
	User ConnectedUser `json:"user"`
}

type DisconnectedPayload struct {
	StatusCode      int  `json:"statusCode"`
	ShouldReconnect bool `json:"shouldReconnect"`
}

type SendResultPayload struct {
	Success   bool   `json:"success"`
	JID       string `json:"jid"`
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"` // original record text for malformed frames
}

// Event is the decoded form of one inbound frame. Exactly one payload
// pointer is set for types that carry one.
type Event struct {
	Type         EventType
	Message      *MessagePayload
	QR           *QRPayload
	Connected    *ConnectedPayload
	Disconnected *DisconnectedPayload
	SendResult   *SendResultPayload
	Err          *ErrorPayload
}

type rawEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeEvent(record []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(record, &raw); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}
	if raw.Type == "" {
		return Event{}, fmt.Errorf("frame has no type")
	}

	ev := Event{Type: EventType(raw.Type)}
	var err error
	switch ev.Type {
	case EventMessage:
		ev.Message = &MessagePayload{}
		err = unmarshalData(raw.Data, ev.Message)
	case EventQRCode:
		ev.QR = &QRPayload{}
		err = unmarshalData(raw.Data, ev.QR)
	case EventConnected:
		ev.Connected = &ConnectedPayload{}
		err = unmarshalData(raw.Data, ev.Connected)
	case EventDisconnected:
		ev.Disconnected = &DisconnectedPayload{}
		err = unmarshalData(raw.Data, ev.Disconnected)
	case EventSendResult:
		ev.SendResult = &SendResultPayload{}
		err = unmarshalData(raw.Data, ev.SendResult)
	case EventError:
		ev.Err = &ErrorPayload{}
		err = unmarshalData(raw.Data, ev.Err)
	case EventStarting, EventLoggedOut, EventPong, EventMaxReconnectReached, EventShuttingDown, EventStdinClosed:
		// No payload.
	default:
		// Unknown types pass through; the supervisor logs and drops them.
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", raw.Type, err)
	}
	return ev, nil
}

func unmarshalData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
