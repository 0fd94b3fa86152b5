package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adamavenir/aioffice/internal/types"
)

// Push event types.
const (
	EventMessageNew      = "message_new"
	EventTyping          = "typing"
	EventReactionUpdate  = "reaction_update"
	EventProjectSwitched = "project_switched"
)

// Event is one decoded push frame.
type Event struct {
	Type string

	// message_new
	Message *types.Message

	// typing
	AgentID string
	Typing  bool

	// reaction_update
	MessageID int64
	Summary   types.ReactionSummary

	// project_switched
	Active *types.ActiveProject
}

type rawEvent struct {
	Type      string                `json:"type"`
	Message   json.RawMessage       `json:"message"`
	AgentID   string                `json:"agent_id"`
	Sender    string                `json:"sender"`
	Typing    *bool                 `json:"typing"`
	MessageID int64                 `json:"message_id"`
	Summary   types.ReactionSummary `json:"summary"`
	Reactions types.ReactionSummary `json:"reactions"`
	Active    json.RawMessage       `json:"active"`
}

// DecodeEvent parses a push frame. Message events may carry the message
// under "message" or inline; project_switched may carry an object or a
// bare project name.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("decode push frame: %w", err)
	}
	ev := Event{Type: raw.Type}
	switch raw.Type {
	case EventMessageNew:
		var msg types.Message
		src := []byte(raw.Message)
		if len(src) == 0 || string(src) == "null" {
			src = data
		}
		if err := json.Unmarshal(src, &msg); err != nil {
			return Event{}, fmt.Errorf("decode message_new: %w", err)
		}
		if msg.ID <= 0 {
			return Event{}, fmt.Errorf("message_new without id")
		}
		ev.Message = &msg
	case EventTyping:
		ev.AgentID = raw.AgentID
		if ev.AgentID == "" {
			ev.AgentID = raw.Sender
		}
		if ev.AgentID == "" {
			return Event{}, fmt.Errorf("typing without agent")
		}
		ev.Typing = raw.Typing == nil || *raw.Typing
	case EventReactionUpdate:
		if raw.MessageID <= 0 {
			return Event{}, fmt.Errorf("reaction_update without message_id")
		}
		ev.MessageID = raw.MessageID
		ev.Summary = raw.Summary
		if ev.Summary == nil {
			ev.Summary = raw.Reactions
		}
		if ev.Summary == nil {
			ev.Summary = types.ReactionSummary{}
		}
	case EventProjectSwitched:
		active := &types.ActiveProject{}
		var name string
		switch {
		case len(raw.Active) == 0 || string(raw.Active) == "null":
		case json.Unmarshal(raw.Active, &name) == nil:
			active.Project = name
		default:
			if err := json.Unmarshal(raw.Active, active); err != nil {
				return Event{}, fmt.Errorf("decode project_switched: %w", err)
			}
		}
		ev.Active = active
	case "":
		return Event{}, fmt.Errorf("push frame without type")
	default:
		ev.Type = strings.TrimSpace(raw.Type)
	}
	return ev, nil
}
