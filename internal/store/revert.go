package store

import (
	"fmt"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/model"
)

// Revert marks sess for a future Cleanup, targeting messageID (and
// optionally a partID within it). Per §4.6: reverting to an assistant
// message actually reverts to the session's preceding user message,
// decided in SPEC_FULL.md §9's Open Question 1 — ported here as a
// resolution against the message list rather than left to the caller.
func (s *SessionStore) Revert(sess *model.Session, messageID string, partID *string) error {
	target, err := s.resolveRevertTarget(sess, messageID)
	if err != nil {
		return err
	}
	sess.Revert = &model.RevertInfo{MessageID: target, PartID: partID}
	return s.PutSession(sess)
}

// resolveRevertTarget walks the session's messages to find the closest
// user message at or before messageID, per the empirically-derived rule
// that reverting to an assistant message is rarely useful.
func (s *SessionStore) resolveRevertTarget(sess *model.Session, messageID string) (string, error) {
	ids, err := s.ListMessages(sess.ID)
	if err != nil {
		return "", err
	}

	targetIdx := -1
	for i, id := range ids {
		if id == messageID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return "", fmt.Errorf("store: revert target %s not found in session %s", messageID, sess.ID)
	}

	for i := targetIdx; i >= 0; i-- {
		msg, err := s.GetMessage(sess.ID, ids[i])
		if err != nil {
			return "", err
		}
		if msg.Role == model.RoleUser {
			return msg.ID, nil
		}
	}
	// No preceding user message: revert to the session's first message.
	if len(ids) > 0 {
		return ids[0], nil
	}
	return messageID, nil
}

// Cleanup performs the deletion described by sess.Revert, if any, and
// clears the marker. Messages after the revert marker are deleted
// entirely; if PartID is set, only parts after it within that message are
// deleted, leaving the message itself and its earlier parts intact.
// Every deletion is published on b.
func (s *SessionStore) Cleanup(b *bus.Bus, sess *model.Session) error {
	if sess.Revert == nil {
		return nil
	}
	marker := sess.Revert

	ids, err := s.ListMessages(sess.ID)
	if err != nil {
		return err
	}

	markerIdx := -1
	for i, id := range ids {
		if id == marker.MessageID {
			markerIdx = i
			break
		}
	}
	if markerIdx == -1 {
		sess.Revert = nil
		return s.PutSession(sess)
	}

	if marker.PartID != nil {
		if err := s.cleanupPartsAfter(b, sess.ID, marker.MessageID, *marker.PartID); err != nil {
			return err
		}
	}

	for i := markerIdx + 1; i < len(ids); i++ {
		if err := s.deleteMessageCascade(b, sess.ID, ids[i]); err != nil {
			return err
		}
	}

	sess.Revert = nil
	return s.PutSession(sess)
}

func (s *SessionStore) cleanupPartsAfter(b *bus.Bus, sessionID, messageID, afterPartID string) error {
	partIDs, err := s.ListParts(messageID)
	if err != nil {
		return err
	}
	markerIdx := -1
	for i, id := range partIDs {
		if id == afterPartID {
			markerIdx = i
			break
		}
	}
	if markerIdx == -1 {
		return nil
	}
	for i := markerIdx + 1; i < len(partIDs); i++ {
		if err := s.DeletePart(messageID, partIDs[i]); err != nil {
			return err
		}
		if b != nil {
			b.Publish(bus.PartRemoved{MessageID: messageID, PartID: partIDs[i]})
		}
	}
	return nil
}

func (s *SessionStore) deleteMessageCascade(b *bus.Bus, sessionID, messageID string) error {
	partIDs, err := s.ListParts(messageID)
	if err != nil {
		return err
	}
	for _, partID := range partIDs {
		if err := s.DeletePart(messageID, partID); err != nil {
			return err
		}
		if b != nil {
			b.Publish(bus.PartRemoved{MessageID: messageID, PartID: partID})
		}
	}
	if err := s.DeleteMessage(sessionID, messageID); err != nil {
		return err
	}
	if b != nil {
		b.Publish(bus.MessageRemoved{SessionID: sessionID, MessageID: messageID})
	}
	return nil
}
