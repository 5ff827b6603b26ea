package store

import (
	"fmt"

	"github.com/wonop-io/wonopcore/internal/model"
)

// SessionStore layers the canonical session/message/part key layout of
// SPEC_FULL.md §4.6 on top of a generic Store.
type SessionStore struct {
	kv Store
}

// NewSessionStore wraps kv with the canonical session-domain layout.
func NewSessionStore(kv Store) *SessionStore {
	return &SessionStore{kv: kv}
}

func sessionKey(projectID, sessionID string) Key {
	return Key{"session", projectID, sessionID}
}

func messageKey(sessionID, messageID string) Key {
	return Key{"message", sessionID, messageID}
}

func partKey(messageID, partID string) Key {
	return Key{"part", messageID, partID}
}

// PutSession writes (or overwrites) a session record.
func (s *SessionStore) PutSession(sess *model.Session) error {
	return s.kv.Write(sessionKey(sess.ProjectID, sess.ID), sess)
}

// GetSession reads a session record.
func (s *SessionStore) GetSession(projectID, sessionID string) (*model.Session, error) {
	var sess model.Session
	if err := s.kv.Read(sessionKey(projectID, sessionID), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session record (but not its messages/parts — see
// Cleanup for the revert-driven cascade).
func (s *SessionStore) DeleteSession(projectID, sessionID string) error {
	return s.kv.Remove(sessionKey(projectID, sessionID))
}

// ListSessions returns every session id under a project, ascending.
func (s *SessionStore) ListSessions(projectID string) ([]string, error) {
	keys, err := s.kv.List(Key{"session", projectID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(k)-1])
	}
	return ids, nil
}

// AllSessions loads every session record across every project, for
// process-wide maintenance (cmd/wonopcore's periodic sweep has no single
// project to scope to).
func (s *SessionStore) AllSessions() ([]*model.Session, error) {
	keys, err := s.kv.List(Key{"session"})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Session, 0, len(keys))
	for _, k := range keys {
		var sess model.Session
		if err := s.kv.Read(k, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

// PutMessage writes a message record (without its parts).
func (s *SessionStore) PutMessage(msg *model.Message) error {
	return s.kv.Write(messageKey(msg.SessionID, msg.ID), msg)
}

// GetMessage reads a message record.
func (s *SessionStore) GetMessage(sessionID, messageID string) (*model.Message, error) {
	var msg model.Message
	if err := s.kv.Read(messageKey(sessionID, messageID), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message record and publishes nothing itself —
// callers (the revert/cleanup path) are responsible for emitting
// MessageRemoved on the bus.
func (s *SessionStore) DeleteMessage(sessionID, messageID string) error {
	return s.kv.Remove(messageKey(sessionID, messageID))
}

// ListMessages returns every message id for a session, ascending by id
// (ids are ascending by creation time per §4.6).
func (s *SessionStore) ListMessages(sessionID string) ([]string, error) {
	keys, err := s.kv.List(Key{"message", sessionID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(k)-1])
	}
	return ids, nil
}

// PutPart writes a part record.
func (s *SessionStore) PutPart(part *model.MessagePart) error {
	return s.kv.Write(partKey(part.MessageID, part.ID), part)
}

// GetPart reads a part record.
func (s *SessionStore) GetPart(messageID, partID string) (*model.MessagePart, error) {
	var part model.MessagePart
	if err := s.kv.Read(partKey(messageID, partID), &part); err != nil {
		return nil, err
	}
	return &part, nil
}

// DeletePart removes a part record.
func (s *SessionStore) DeletePart(messageID, partID string) error {
	return s.kv.Remove(partKey(messageID, partID))
}

// ListParts returns every part id for a message, ascending by id.
func (s *SessionStore) ListParts(messageID string) ([]string, error) {
	keys, err := s.kv.List(Key{"part", messageID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(k)-1])
	}
	return ids, nil
}

// LoadMessages reconstructs every message in a session, in id order,
// without their parts populated.
func (s *SessionStore) LoadMessages(sessionID string) ([]*model.Message, error) {
	ids, err := s.ListMessages(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.GetMessage(sessionID, id)
		if err != nil {
			return nil, fmt.Errorf("loading message %s: %w", id, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// LoadParts reconstructs every part of a message, in id order.
func (s *SessionStore) LoadParts(messageID string) ([]*model.MessagePart, error) {
	ids, err := s.ListParts(messageID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.MessagePart, 0, len(ids))
	for _, id := range ids {
		part, err := s.GetPart(messageID, id)
		if err != nil {
			return nil, fmt.Errorf("loading part %s: %w", id, err)
		}
		out = append(out, part)
	}
	return out, nil
}
