package flowboard

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	maxStoredMessages = 500
	maxMessageLength  = 1000
	minMessageLength  = 3
)

// Message is one unified chat turn, regardless of origin channel.
type Message struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	ChannelName string `json:"channelName"`
	Sender      string `json:"sender"`
	SenderType  string `json:"senderType"`
	Text        string `json:"text"`
	Timestamp   string `json:"timestamp"`
	SessionID   string `json:"sessionId,omitempty"`
}

type messagesDoc struct {
	Messages    []Message `json:"messages"`
	Channels    []string  `json:"channels"`
	LastUpdated string    `json:"lastUpdated"`
}

// Transcript lines are parsed independently; a malformed line never
// aborts its file.
type transcriptLine struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Timestamp string             `json:"timestamp"`
	Message   *transcriptMessage `json:"message"`
}

type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	telegramMarkerRe = regexp.MustCompile(`\[Telegram[^\]]*\]\s*`)
	messageIDRe      = regexp.MustCompile(`\[message_id:\s*\d+\]\s*`)
	queuedMarkerRe   = regexp.MustCompile(`(?s)\[Queued messages[^\]]*\]\s*`)
	cronSuffixRe     = regexp.MustCompile(`System:\s*\[[^\]]*\]\s*Cron:[^\n]*`)
)

// SyncMessages rescans the external session transcripts and merges any
// unseen chat turns into the stored message log. Dedup is by message id,
// so repeated runs with no new transcript lines only refresh
// lastUpdated.
func (s *Store) SyncMessages() error {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	doc := messagesDoc{Messages: []Message{}, Channels: []string{}}
	s.loadDoc(DocMessages, &doc)

	seen := make(map[string]bool, len(doc.Messages))
	for _, message := range doc.Messages {
		seen[message.ID] = true
	}

	for _, file := range s.transcriptFiles() {
		sessionID := strings.TrimSuffix(filepath.Base(file), ".jsonl")
		s.ingestTranscript(file, sessionID, seen, &doc)
	}

	sort.SliceStable(doc.Messages, func(i, j int) bool {
		return parseTimestamp(doc.Messages[i].Timestamp).Before(parseTimestamp(doc.Messages[j].Timestamp))
	})
	if len(doc.Messages) > maxStoredMessages {
		doc.Messages = doc.Messages[len(doc.Messages)-maxStoredMessages:]
	}
	doc.LastUpdated = timestamp(s.now)
	return s.saveDoc(DocMessages, &doc)
}

func (s *Store) transcriptFiles() []string {
	if s.sessionsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		files = append(files, filepath.Join(s.sessionsDir, entry.Name()))
	}
	sort.Strings(files)
	return files
}

func (s *Store) ingestTranscript(path, sessionID string, seen map[string]bool, doc *messagesDoc) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry transcriptLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type != "message" || entry.Message == nil {
			continue
		}
		role := entry.Message.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messageID := entry.ID
		if messageID == "" {
			messageID = "msg_" + entry.Timestamp
		}
		if seen[messageID] {
			continue
		}
		text := extractText(entry.Message.Content)
		if strings.Contains(text, "HEARTBEAT_OK") || strings.Contains(text, "[cron:") {
			continue
		}

		channel, channelName := "flowchat", "FlowChat"
		if strings.Contains(text, "[Telegram") || strings.Contains(text, "telegram") {
			channel, channelName = "telegram", "Telegram"
		}

		text = cleanMessageText(text)
		if len(text) < minMessageLength {
			continue
		}

		sender, senderType := "Kai", "ai"
		if role == "user" {
			sender, senderType = "Pete", "human"
		}
		ts := entry.Timestamp
		if ts == "" {
			ts = timestamp(s.now)
		}
		doc.Messages = append(doc.Messages, Message{
			ID:          messageID,
			Channel:     channel,
			ChannelName: channelName,
			Sender:      sender,
			SenderType:  senderType,
			Text:        truncate(text, maxMessageLength),
			Timestamp:   ts,
			SessionID:   sessionID,
		})
		seen[messageID] = true
	}
}

// extractText handles both plain-string payloads and ordered fragment
// arrays; only text-typed fragments contribute.
func extractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(content, &plain); err == nil {
		return plain
	}
	var fragments []contentFragment
	if err := json.Unmarshal(content, &fragments); err != nil {
		return ""
	}
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		if fragment.Type == "text" {
			parts = append(parts, fragment.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanMessageText strips the bracketed provenance markers the gateway
// prepends to relayed messages.
func cleanMessageText(text string) string {
	text = telegramMarkerRe.ReplaceAllString(text, "")
	text = messageIDRe.ReplaceAllString(text, "")
	text = queuedMarkerRe.ReplaceAllString(text, "")
	text = cronSuffixRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// PostMessage appends one message to the log, assigning id and timestamp
// server-side, and publishes it as a chat event.
func (s *Store) PostMessage(message Message) (Message, error) {
	s.messagesMu.Lock()
	doc := messagesDoc{Messages: []Message{}, Channels: []string{}}
	s.loadDoc(DocMessages, &doc)

	message.ID = newID("msg")
	message.Timestamp = timestamp(s.now)
	doc.Messages = append(doc.Messages, message)
	doc.LastUpdated = timestamp(s.now)
	err := s.saveDoc(DocMessages, &doc)
	s.messagesMu.Unlock()
	if err != nil {
		return Message{}, err
	}

	s.bus.Publish(EventChatMessage, ChatMessageEvent{
		ID:          message.ID,
		Channel:     message.Channel,
		ChannelName: message.ChannelName,
		Sender:      message.Sender,
		SenderType:  message.SenderType,
		Text:        message.Text,
		Timestamp:   message.Timestamp,
		SessionID:   message.SessionID,
	})
	return message, nil
}
