package flowboard

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	maxStoredMemories  = 50
	maxMemoryLength    = 200
	minMemoryItemChars = 10
	memoryDedupWindow  = time.Hour
)

// MemoryRecord is a distilled fact extracted from file edits or daily
// logs. Newest records sit at index 0.
type MemoryRecord struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	AddedBy   string `json:"addedBy"`
	ActorType string `json:"actorType"`
	Timestamp string `json:"timestamp"`
	Icon      string `json:"icon"`
	Source    string `json:"source"`
}

type memoryDoc struct {
	Memories    []MemoryRecord `json:"memories"`
	Categories  []string       `json:"categories"`
	LastUpdated string         `json:"lastUpdated"`
}

var dailyLogNameRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}\.md$`)

// memoryCategories maps filename substrings to category and icon, first
// match wins.
var memoryCategories = []struct {
	match    string
	category string
	icon     string
}{
	{"SOUL", "identity", "🌊"},
	{"IDENTITY", "identity", "🆔"},
	{"USER", "preference", "👤"},
	{"MEMORY", "milestone", "🧠"},
	{"trading", "trading", "📈"},
	{"STRATEGY", "business", "💼"},
	{"Business", "business", "💼"},
}

func classifyMemoryFile(fileName string) (category, icon string) {
	for _, entry := range memoryCategories {
		if strings.Contains(fileName, entry.match) {
			return entry.category, entry.icon
		}
	}
	return "system", "📝"
}

// ExtractMemoryFromFileEdit is the reactive path: one memory per
// workspace file edit, suppressed when the same edit was recorded within
// the trailing hour.
func (s *Store) ExtractMemoryFromFileEdit(fileName string) {
	s.memoryMu.Lock()
	defer s.memoryMu.Unlock()

	doc := memoryDoc{Memories: []MemoryRecord{}, Categories: []string{}}
	s.loadDoc(DocMemory, &doc)

	category, icon := classifyMemoryFile(fileName)
	record := MemoryRecord{
		ID:        newID("mem"),
		Type:      "edit",
		Content:   "Updated " + strings.TrimSuffix(fileName, ".md"),
		Category:  category,
		AddedBy:   "Pete",
		ActorType: "human",
		Timestamp: timestamp(s.now),
		Icon:      icon,
		Source:    "kai_profile",
	}

	cutoff := s.now().UTC().Add(-memoryDedupWindow)
	for _, existing := range doc.Memories {
		if existing.Source == record.Source &&
			existing.Content == record.Content &&
			parseTimestamp(existing.Timestamp).After(cutoff) {
			return
		}
	}

	doc.Memories = append([]MemoryRecord{record}, doc.Memories...)
	if len(doc.Memories) > maxStoredMemories {
		doc.Memories = doc.Memories[:maxStoredMemories]
	}
	doc.LastUpdated = timestamp(s.now)
	_ = s.saveDoc(DocMemory, &doc)
}

// ScanDailyLogs is the batch path: harvest accomplishments and decisions
// from every DD-MM-YYYY.md daily log in the memory workspace.
func (s *Store) ScanDailyLogs() error {
	s.memoryMu.Lock()
	defer s.memoryMu.Unlock()

	if s.memoryDir == "" {
		return nil
	}
	entries, err := os.ReadDir(s.memoryDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	doc := memoryDoc{Memories: []MemoryRecord{}, Categories: []string{}}
	s.loadDoc(DocMemory, &doc)

	existing := make(map[string]bool, len(doc.Memories))
	for _, record := range doc.Memories {
		existing[record.Content] = true
	}

	for _, entry := range entries {
		if entry.IsDir() || !dailyLogNameRe.MatchString(entry.Name()) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(s.memoryDir, entry.Name()))
		if err != nil {
			continue
		}
		date := strings.TrimSuffix(entry.Name(), ".md")
		source := "daily_log_" + date

		for _, item := range extractSectionItems(string(content), "## Key Accomplishments", true) {
			if !acceptMemoryItem(item, existing) {
				continue
			}
			doc.Memories = append(doc.Memories, MemoryRecord{
				ID:        newID("mem"),
				Type:      "accomplishment",
				Content:   truncate(item, maxMemoryLength),
				Category:  "milestone",
				AddedBy:   "Kai",
				ActorType: "ai",
				Timestamp: timestamp(s.now),
				Icon:      "✅",
				Source:    source,
			})
			existing[item] = true
		}

		for _, item := range extractSectionItems(string(content), "## Technical Decisions", false) {
			if strings.HasPrefix(item, "---") || !acceptMemoryItem(item, existing) {
				continue
			}
			doc.Memories = append(doc.Memories, MemoryRecord{
				ID:        newID("mem"),
				Type:      "decision",
				Content:   truncate(item, maxMemoryLength),
				Category:  "product",
				AddedBy:   "Kai",
				ActorType: "ai",
				Timestamp: timestamp(s.now),
				Icon:      "💡",
				Source:    source,
			})
			existing[item] = true
		}
	}

	sort.SliceStable(doc.Memories, func(i, j int) bool {
		return parseTimestamp(doc.Memories[i].Timestamp).After(parseTimestamp(doc.Memories[j].Timestamp))
	})
	if len(doc.Memories) > maxStoredMemories {
		doc.Memories = doc.Memories[:maxStoredMemories]
	}
	doc.LastUpdated = timestamp(s.now)
	return s.saveDoc(DocMemory, &doc)
}

func acceptMemoryItem(item string, existing map[string]bool) bool {
	if len(item) <= minMemoryItemChars {
		return false
	}
	if strings.Contains(item, "None yet") {
		return false
	}
	return !existing[item]
}

// extractSectionItems returns cleaned bullet items from the section that
// starts at the given heading and runs to the next heading or the end of
// the document. An item spans from its opening bullet to the next bullet
// of the same kind or a sub-heading, so wrapped bullet text folds into
// the item. With boldOnly set, only bullets that open with a bold span
// start an item, and the bold markup is stripped.
func extractSectionItems(content, heading string, boldOnly bool) []string {
	start := strings.Index(content, heading)
	if start < 0 {
		return nil
	}
	section := content[start+len(heading):]
	if end := strings.Index(section, "\n##"); end >= 0 {
		section = section[:end]
	}

	var items []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		if item := strings.TrimSpace(strings.Join(current, "\n")); item != "" {
			items = append(items, item)
		}
		current = nil
	}
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		opens := strings.HasPrefix(line, "- ")
		if boldOnly {
			opens = strings.HasPrefix(line, "- **")
		}
		switch {
		case opens:
			flush()
			if boldOnly {
				line = strings.TrimPrefix(line, "- **")
				line = strings.ReplaceAll(line, "**", "")
			} else {
				line = strings.TrimPrefix(line, "- ")
			}
			current = []string{strings.TrimSpace(line)}
		case strings.HasPrefix(line, "#"):
			flush()
		case line != "" && len(current) > 0:
			if boldOnly {
				line = strings.ReplaceAll(line, "**", "")
			}
			current = append(current, line)
		}
	}
	flush()
	return items
}
