// Package memory persists the per-chat conversation timeline and serves the
// bounded context window the reply pipeline feeds to the model.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metanoia-oss/wingman/internal/fsstore"
)

// Turn is one message in a chat timeline, ours or theirs.
type Turn struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsSelf     bool      `json:"is_self"`
}

const defaultTailCache = 200

// Store appends turns to one JSONL file per chat under dir and keeps a
// bounded in-memory tail per chat so context-window reads do not reread the
// file on every message.
type Store struct {
	dir string

	mu    sync.Mutex
	tails map[string][]Turn // most recent last
}

func NewStore(dir string) *Store {
	return &Store{
		dir:   strings.TrimSpace(dir),
		tails: map[string][]Turn{},
	}
}

// AppendTurn durably appends one turn to the chat's timeline.
func (s *Store) AppendTurn(chatID string, turn Turn) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}
	turn.ChatID = chatID
	if strings.TrimSpace(turn.ID) == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadTailLocked(chatID); err != nil {
		return err
	}
	if err := fsstore.AppendJSONL(s.chatPath(chatID), turn, fsstore.FileOptions{}); err != nil {
		return err
	}

	tail := append(s.tails[chatID], turn)
	if len(tail) > defaultTailCache {
		tail = tail[len(tail)-defaultTailCache:]
	}
	s.tails[chatID] = tail
	return nil
}

// ContextWindow returns up to maxTurns of the chat's most recent turns,
// oldest first, most recent last.
func (s *Store) ContextWindow(chatID string, maxTurns int) ([]Turn, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || maxTurns <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadTailLocked(chatID); err != nil {
		return nil, err
	}
	tail := s.tails[chatID]
	if len(tail) > maxTurns {
		tail = tail[len(tail)-maxTurns:]
	}
	out := make([]Turn, len(tail))
	copy(out, tail)
	return out, nil
}

// LastTurnIsSelf reports whether the most recent stored turn in the chat was
// authored by the bot.
func (s *Store) LastTurnIsSelf(chatID string) (bool, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadTailLocked(chatID); err != nil {
		return false, err
	}
	tail := s.tails[chatID]
	if len(tail) == 0 {
		return false, nil
	}
	return tail[len(tail)-1].IsSelf, nil
}

func (s *Store) loadTailLocked(chatID string) error {
	if _, ok := s.tails[chatID]; ok {
		return nil
	}
	var tail []Turn
	_, err := fsstore.ReadJSONL(s.chatPath(chatID), func(line []byte) error {
		var turn Turn
		if err := json.Unmarshal(line, &turn); err != nil {
			// A corrupt line loses one turn, not the timeline.
			return nil
		}
		tail = append(tail, turn)
		if len(tail) > defaultTailCache {
			tail = tail[len(tail)-defaultTailCache:]
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.tails[chatID] = tail
	return nil
}

func (s *Store) chatPath(chatID string) string {
	return fmt.Sprintf("%s/%s.jsonl", s.dir, sanitizeChatID(chatID))
}

func sanitizeChatID(chatID string) string {
	var b strings.Builder
	for _, r := range chatID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "chat"
	}
	return out
}
