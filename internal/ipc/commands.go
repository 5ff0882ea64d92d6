package ipc

import (
	"encoding/json"
	"fmt"
)

type Action string

const (
	ActionSendMessage Action = "send_message"
	ActionPing        Action = "ping"
	ActionShutdown    Action = "shutdown"
)

type SendMessagePayload struct {
	JID       string `json:"jid"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"` // caller-assigned correlation identifier
}

// Command is one outbound frame to the transport child.
type Command struct {
	Action  Action
	Payload any
}

func SendMessage(jid, text, messageID string) Command {
	return Command{
		Action:  ActionSendMessage,
		Payload: SendMessagePayload{JID: jid, Text: text, MessageID: messageID},
	}
}

func Ping() Command { return Command{Action: ActionPing} }

func Shutdown() Command { return Command{Action: ActionShutdown} }

type rawCommand struct {
	Action  Action `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// EncodeCommand serializes a command as one frame, including the trailing
// NUL delimiter.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.Action {
	case ActionSendMessage, ActionPing, ActionShutdown:
	default:
		return nil, fmt.Errorf("unknown command action %q", cmd.Action)
	}
	data, err := json.Marshal(rawCommand{Action: cmd.Action, Payload: cmd.Payload})
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", cmd.Action, err)
	}
	return append(data, frameDelimiter), nil
}
