package flowboard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type EventType string

const (
	EventChatMessage EventType = "chat:message"
	EventTaskCreated EventType = "kanban:taskCreated"
	EventTaskMoved   EventType = "kanban:taskMoved"
	EventFileEdited  EventType = "kai:fileEdited"
)

// AllEventTypes is the trigger-ingress allow-list. The set is closed:
// adding an event kind means adding a payload struct and a schema here.
var AllEventTypes = []EventType{
	EventChatMessage,
	EventTaskCreated,
	EventTaskMoved,
	EventFileEdited,
}

func KnownEventType(raw string) (EventType, bool) {
	for _, t := range AllEventTypes {
		if string(t) == raw {
			return t, true
		}
	}
	return "", false
}

type ChatMessageEvent struct {
	ID          string `json:"id,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelName string `json:"channelName,omitempty"`
	Sender      string `json:"sender,omitempty"`
	SenderType  string `json:"senderType,omitempty"`
	Text        string `json:"text"`
	Timestamp   string `json:"timestamp,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

type TaskCreatedEvent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Column  string `json:"column,omitempty"`
	Board   string `json:"board,omitempty"`
	Creator string `json:"creator,omitempty"`
}

type TaskMovedEvent struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	FromColumn string `json:"fromColumn,omitempty"`
	Column     string `json:"column"`
	Board      string `json:"board,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

type FileEditedEvent struct {
	File string `json:"file"`
}

const (
	chatMessageSchema = `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string"},
			"sender": {"type": "string"},
			"senderType": {"type": "string"},
			"channel": {"type": "string"},
			"channelName": {"type": "string"}
		}
	}`
	taskCreatedSchema = `{
		"type": "object",
		"required": ["id", "title"],
		"properties": {
			"id": {"type": "string"},
			"title": {"type": "string"},
			"column": {"type": "string"},
			"board": {"type": "string"},
			"creator": {"type": "string"}
		}
	}`
	taskMovedSchema = `{
		"type": "object",
		"required": ["id", "title", "column"],
		"properties": {
			"id": {"type": "string"},
			"title": {"type": "string"},
			"fromColumn": {"type": "string"},
			"column": {"type": "string"},
			"board": {"type": "string"},
			"actor": {"type": "string"}
		}
	}`
	fileEditedSchema = `{
		"type": "object",
		"required": ["file"],
		"properties": {
			"file": {"type": "string"}
		}
	}`
)

var triggerSchemas = map[EventType]*jsonschema.Schema{
	EventChatMessage: mustCompileSchema("chat_message.json", chatMessageSchema),
	EventTaskCreated: mustCompileSchema("task_created.json", taskCreatedSchema),
	EventTaskMoved:   mustCompileSchema("task_moved.json", taskMovedSchema),
	EventFileEdited:  mustCompileSchema("file_edited.json", fileEditedSchema),
}

func mustCompileSchema(name, text string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// DecodeTriggerPayload validates an externally supplied payload against
// the schema for its event type and converts it into the typed payload
// published on the bus. Unknown types and schema violations both answer
// ErrInvalidEvent.
func DecodeTriggerPayload(rawType string, payload map[string]any) (EventType, any, error) {
	eventType, ok := KnownEventType(rawType)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidEvent, rawType)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := triggerSchemas[eventType].Validate(any(payload)); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	var typed any
	switch eventType {
	case EventChatMessage:
		typed = new(ChatMessageEvent)
	case EventTaskCreated:
		typed = new(TaskCreatedEvent)
	case EventTaskMoved:
		typed = new(TaskMovedEvent)
	case EventFileEdited:
		typed = new(FileEditedEvent)
	}
	if err := json.Unmarshal(encoded, typed); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return eventType, deref(typed), nil
}

// Trigger validates and publishes an externally requested event.
func (s *Store) Trigger(rawType string, payload map[string]any) error {
	eventType, typed, err := DecodeTriggerPayload(rawType, payload)
	if err != nil {
		return err
	}
	s.bus.Publish(eventType, typed)
	return nil
}

func deref(v any) any {
	switch p := v.(type) {
	case *ChatMessageEvent:
		return *p
	case *TaskCreatedEvent:
		return *p
	case *TaskMovedEvent:
		return *p
	case *FileEditedEvent:
		return *p
	default:
		return v
	}
}
