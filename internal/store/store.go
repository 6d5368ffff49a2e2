// Package store holds the per-conversation ordered message sequences. It is
// the single source of truth consumed by presentation; the transport and
// session layers only mutate it through the operations below.
package store

import (
	"errors"
	"log"
	"sync"

	"chat-client/internal/models"
)

// ErrHistoryLoaded is returned when LoadHistory would clobber messages that
// arrived while the fetch was in flight.
var ErrHistoryLoaded = errors.New("conversation already has messages")

// AppendResult reports how an inbound message was reconciled.
type AppendResult int

const (
	// Appended means the message claimed a new slot at the tail.
	Appended AppendResult = iota
	// AdoptedEcho means the message replaced the optimistic local copy
	// matched by correlation id.
	AdoptedEcho
	// Duplicate means the server id was already present; content and
	// edited flag were reconciled in place.
	Duplicate
)

// Store keeps arrival-ordered conversations. Sequences are never re-sorted:
// concurrent senders whose frames arrive reordered stay in arrival order,
// trading strict chronology for O(1) append.
type Store struct {
	localUserID int64

	mu            sync.Mutex
	conversations map[models.ConversationKey][]models.Message
	keyByID       map[int64]models.ConversationKey
	pendingEchoes map[string]models.ConversationKey
}

// New builds an empty Store for the given local user.
func New(localUserID int64) *Store {
	return &Store{
		localUserID:   localUserID,
		conversations: make(map[models.ConversationKey][]models.Message),
		keyByID:       make(map[int64]models.ConversationKey),
		pendingEchoes: make(map[string]models.ConversationKey),
	}
}

// Append routes msg into its conversation and inserts at the tail. Outbound
// optimistic copies (no server id yet) register their correlation id so the
// server echo replaces them instead of duplicating; redelivered server ids
// are reconciled in place rather than re-appended.
func (s *Store) Append(msg models.Message) (models.ConversationKey, AppendResult, error) {
	key, err := msg.ConversationKey(s.localUserID)
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID != 0 && msg.CorrelationID != "" {
		if echoKey, ok := s.pendingEchoes[msg.CorrelationID]; ok && echoKey == key {
			if s.adoptEchoLocked(key, msg) {
				delete(s.pendingEchoes, msg.CorrelationID)
				s.keyByID[msg.ID] = key
				return key, AdoptedEcho, nil
			}
			delete(s.pendingEchoes, msg.CorrelationID)
		}
	}

	if msg.ID != 0 {
		if _, ok := s.keyByID[msg.ID]; ok {
			s.reconcileLocked(msg)
			return key, Duplicate, nil
		}
		s.keyByID[msg.ID] = key
	} else if msg.CorrelationID != "" {
		s.pendingEchoes[msg.CorrelationID] = key
	}

	s.conversations[key] = append(s.conversations[key], msg)
	return key, Appended, nil
}

// adoptEchoLocked swaps the optimistic entry carrying msg's correlation id
// for the acknowledged server copy, in place.
func (s *Store) adoptEchoLocked(key models.ConversationKey, msg models.Message) bool {
	seq := s.conversations[key]
	for i := range seq {
		if seq[i].ID == 0 && seq[i].CorrelationID == msg.CorrelationID {
			seq[i] = msg
			return true
		}
	}
	return false
}

// reconcileLocked folds a redelivered copy of a known id into the stored
// entry; a redelivery carrying edited content doubles as an edit event.
func (s *Store) reconcileLocked(msg models.Message) {
	key := s.keyByID[msg.ID]
	seq := s.conversations[key]
	for i := range seq {
		if seq[i].ID == msg.ID {
			if msg.Edited || seq[i].Content != msg.Content {
				seq[i].Content = msg.Content
				seq[i].Edited = seq[i].Edited || msg.Edited
			}
			return
		}
	}
}

// ApplyEdit replaces the content of the message with the given id, wherever
// it is stored, and marks it edited. A miss is a logged no-op: the message
// may have been edited before its history was ever loaded.
func (s *Store) ApplyEdit(messageID int64, newContent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keyByID[messageID]
	if !ok {
		log.Printf("edit for unknown message id=%d ignored", messageID)
		return false
	}
	seq := s.conversations[key]
	for i := range seq {
		if seq[i].ID == messageID {
			seq[i].Content = newContent
			seq[i].Edited = true
			return true
		}
	}
	return false
}

// ApplyDelete removes the message with the given id from whichever
// conversation holds it. A miss is a no-op.
func (s *Store) ApplyDelete(messageID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keyByID[messageID]
	if !ok {
		return false
	}
	seq := s.conversations[key]
	for i := range seq {
		if seq[i].ID == messageID {
			s.conversations[key] = append(seq[:i], seq[i+1:]...)
			delete(s.keyByID, messageID)
			return true
		}
	}
	return false
}

// LoadHistory seeds a conversation from the backend fetch, exactly once.
// The emptiness re-check guards against a stale fetch resolving after live
// messages have already been appended.
func (s *Store) LoadHistory(key models.ConversationKey, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.conversations[key]) > 0 {
		return ErrHistoryLoaded
	}
	seq := make([]models.Message, len(msgs))
	copy(seq, msgs)
	s.conversations[key] = seq
	for _, m := range seq {
		if m.ID != 0 {
			s.keyByID[m.ID] = key
		}
	}
	return nil
}

// HasMessages reports whether the conversation holds anything yet.
func (s *Store) HasMessages(key models.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations[key]) > 0
}

// Messages returns a snapshot of the conversation in arrival order.
func (s *Store) Messages(key models.ConversationKey) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.conversations[key]
	out := make([]models.Message, len(seq))
	copy(out, seq)
	return out
}

// Sizes returns per-conversation message counts, for the debug surface.
func (s *Store) Sizes() map[models.ConversationKey]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.ConversationKey]int, len(s.conversations))
	for k, seq := range s.conversations {
		out[k] = len(seq)
	}
	return out
}
