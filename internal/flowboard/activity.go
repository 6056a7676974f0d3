package flowboard

import (
	"fmt"
	"log"
)

const maxStoredActivities = 50

// ActivityItem is the human-facing feed record derived from domain
// events. Newest items sit at index 0.
type ActivityItem struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Icon        string `json:"icon"`
	Actor       string `json:"actor"`
	ActorType   string `json:"actorType"`
	Description string `json:"description"`
	BoardName   string `json:"boardName"`
	Timestamp   string `json:"timestamp"`
}

type activityDoc struct {
	Activities  []ActivityItem `json:"activities"`
	LastUpdated string         `json:"lastUpdated"`
}

// registerActivityHandlers wires the cross-module triggers: every domain
// event becomes one activity item.
func (s *Store) registerActivityHandlers() {
	s.bus.Subscribe(EventChatMessage, func(payload any) {
		event, ok := payload.(ChatMessageEvent)
		if !ok {
			return
		}
		actorType := event.SenderType
		if actorType == "" {
			actorType = "human"
		}
		s.addActivity(ActivityItem{
			Type:        "chat",
			Icon:        "💬",
			Actor:       event.Sender,
			ActorType:   actorType,
			Description: truncate(event.Text, 200),
			BoardName:   event.Channel,
		})
	})

	s.bus.Subscribe(EventTaskCreated, func(payload any) {
		event, ok := payload.(TaskCreatedEvent)
		if !ok {
			return
		}
		actor := event.Creator
		if actor == "" {
			actor = "User"
		}
		s.addActivity(ActivityItem{
			Type:        "task",
			Icon:        "✅",
			Actor:       actor,
			ActorType:   "human",
			Description: fmt.Sprintf("Created task: \"%s\"", event.Title),
			BoardName:   event.Board,
		})
	})

	s.bus.Subscribe(EventTaskMoved, func(payload any) {
		event, ok := payload.(TaskMovedEvent)
		if !ok {
			return
		}
		actor := event.Actor
		if actor == "" {
			actor = "User"
		}
		s.addActivity(ActivityItem{
			Type:        "task",
			Icon:        "📋",
			Actor:       actor,
			ActorType:   "human",
			Description: fmt.Sprintf("Moved \"%s\" to %s", event.Title, event.Column),
			BoardName:   event.Board,
		})
	})

	s.bus.Subscribe(EventFileEdited, func(payload any) {
		event, ok := payload.(FileEditedEvent)
		if !ok {
			return
		}
		s.addActivity(ActivityItem{
			Type:        "system",
			Icon:        "🌊",
			Actor:       "Pete",
			ActorType:   "human",
			Description: "Edited Kai file: " + event.File,
			BoardName:   "Kai Profile",
		})
	})
}

func (s *Store) addActivity(item ActivityItem) {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()

	doc := activityDoc{Activities: []ActivityItem{}}
	s.loadDoc(DocActivity, &doc)

	item.ID = newID("act")
	item.Timestamp = timestamp(s.now)
	doc.Activities = append([]ActivityItem{item}, doc.Activities...)
	if len(doc.Activities) > maxStoredActivities {
		doc.Activities = doc.Activities[:maxStoredActivities]
	}
	doc.LastUpdated = timestamp(s.now)
	if err := s.saveDoc(DocActivity, &doc); err != nil {
		log.Printf("persist activity log: %v", err)
	}
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
