package flowboard

import (
	"encoding/json"
)

// Card carries id and title plus whatever extra fields the frontend
// stores on it; extras round-trip untouched through save and load.
type Card struct {
	ID    string
	Title string
	Extra map[string]json.RawMessage
}

func (c *Card) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["id"]; ok {
		_ = json.Unmarshal(raw, &c.ID)
		delete(fields, "id")
	}
	if raw, ok := fields["title"]; ok {
		_ = json.Unmarshal(raw, &c.Title)
		delete(fields, "title")
	}
	c.Extra = fields
	return nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(c.Extra)+2)
	for key, value := range c.Extra {
		fields[key] = value
	}
	id, err := json.Marshal(c.ID)
	if err != nil {
		return nil, err
	}
	title, err := json.Marshal(c.Title)
	if err != nil {
		return nil, err
	}
	fields["id"] = id
	fields["title"] = title
	return json.Marshal(fields)
}

type Column struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}

type Board struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Columns []Column `json:"columns"`
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type BoardSettings struct {
	CurrentBoard string `json:"currentBoard"`
}

// BoardSnapshot is the entire kanban state as one document, replaced
// wholesale on every save.
type BoardSnapshot struct {
	Boards        []Board       `json:"boards"`
	ArchivedCards []Card        `json:"archivedCards"`
	CustomLabels  []Label       `json:"customLabels"`
	Settings      BoardSettings `json:"settings"`
	LastModified  string        `json:"lastModified"`
	ModifiedBy    string        `json:"modifiedBy"`
}

func defaultColumns() []Column {
	return []Column{
		{ID: "backlog", Name: "Backlog", Cards: []Card{}},
		{ID: "todo", Name: "To Do", Cards: []Card{}},
		{ID: "inprogress", Name: "In Progress", Cards: []Card{}},
		{ID: "done", Name: "Done", Cards: []Card{}},
		{ID: "archive", Name: "Archive", Cards: []Card{}},
	}
}

func defaultSnapshot(now string) BoardSnapshot {
	return BoardSnapshot{
		Boards: []Board{
			{ID: "board_1", Name: "Flow Mind Website", Type: "kanban", Columns: defaultColumns()},
			{ID: "board_2", Name: "General", Type: "kanban", Columns: defaultColumns()},
			{ID: "board_3", Name: "House Keeping", Type: "kanban", Columns: defaultColumns()},
		},
		ArchivedCards: []Card{},
		CustomLabels: []Label{
			{ID: "l1", Name: "feature", Color: "#2eaadc"},
			{ID: "l2", Name: "bug", Color: "#dc4444"},
			{ID: "l3", Name: "done", Color: "#2ecc71"},
			{ID: "l4", Name: "high", Color: "#dc4444"},
			{ID: "l5", Name: "mind", Color: "#f5a623"},
			{ID: "l6", Name: "flow", Color: "#9b59b6"},
		},
		Settings:     BoardSettings{CurrentBoard: "board_1"},
		LastModified: now,
		ModifiedBy:   "system",
	}
}

// LoadBoard returns the stored snapshot, seeding and persisting the
// default three-board template when the document is absent or corrupt.
func (s *Store) LoadBoard() (BoardSnapshot, error) {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	return s.loadBoardLocked()
}

func (s *Store) loadBoardLocked() (BoardSnapshot, error) {
	var snapshot BoardSnapshot
	if s.loadDoc(DocBoard, &snapshot) {
		return snapshot, nil
	}
	snapshot = defaultSnapshot(timestamp(s.now))
	if err := s.saveDoc(DocBoard, &snapshot); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// SaveBoard replaces the snapshot wholesale, stamps it, and publishes the
// domain events implied by the difference against the prior snapshot.
func (s *Store) SaveBoard(snapshot BoardSnapshot) error {
	s.boardMu.Lock()
	previous, _ := s.loadBoardLocked()
	snapshot.LastModified = timestamp(s.now)
	snapshot.ModifiedBy = "user"
	err := s.saveDoc(DocBoard, &snapshot)
	s.boardMu.Unlock()
	if err != nil {
		return err
	}
	s.detectBoardChanges(previous, snapshot)
	return nil
}

type placedCard struct {
	card   Card
	column string
	board  string
}

func flattenCards(snapshot BoardSnapshot) map[string]placedCard {
	placed := map[string]placedCard{}
	for _, board := range snapshot.Boards {
		for _, column := range board.Columns {
			for _, card := range column.Cards {
				placed[card.ID] = placedCard{card: card, column: column.ID, board: board.Name}
			}
		}
	}
	return placed
}

// detectBoardChanges compares two snapshots and publishes taskCreated for
// cards present only in the new one and taskMoved for cards whose column
// changed. Removed cards and field-level edits are not reported.
func (s *Store) detectBoardChanges(oldSnapshot, newSnapshot BoardSnapshot) {
	oldCards := flattenCards(oldSnapshot)

	// Walk the new snapshot in board order so events fire in the order
	// the cards appear, not in map order.
	for _, board := range newSnapshot.Boards {
		for _, column := range board.Columns {
			for _, card := range column.Cards {
				old, existed := oldCards[card.ID]
				if !existed {
					s.bus.Publish(EventTaskCreated, TaskCreatedEvent{
						ID:      card.ID,
						Title:   card.Title,
						Column:  column.ID,
						Board:   board.Name,
						Creator: "User",
					})
					continue
				}
				if old.column != column.ID {
					s.bus.Publish(EventTaskMoved, TaskMovedEvent{
						ID:         card.ID,
						Title:      card.Title,
						FromColumn: old.column,
						Column:     column.ID,
						Board:      board.Name,
						Actor:      "User",
					})
				}
			}
		}
	}
}
