package store

import (
	"testing"
	"time"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/model"
)

func seedConversation(t *testing.T, ss *SessionStore, sess *model.Session, roles ...model.Role) []string {
	t.Helper()
	ids := make([]string, 0, len(roles))
	for i, role := range roles {
		id := model.NewMessageID()
		ids = append(ids, id)
		msg := &model.Message{ID: id, SessionID: sess.ID, Role: role, Time: model.MessageTime{Created: time.Now().Add(time.Duration(i) * time.Second)}}
		if err := ss.PutMessage(msg); err != nil {
			t.Fatalf("PutMessage: %v", err)
		}
	}
	return ids
}

func TestRevertToAssistantMessageResolvesToPrecedingUser(t *testing.T) {
	ss := newTestSessionStore(t)
	sess := model.NewSession("prj_1", "/work", time.Now())
	if err := ss.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	ids := seedConversation(t, ss, sess, model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant)

	if err := ss.Revert(sess, ids[3], nil); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if sess.Revert.MessageID != ids[2] {
		t.Fatalf("revert target = %s, want %s (preceding user message)", sess.Revert.MessageID, ids[2])
	}
}

func TestRevertToUserMessageStaysOnIt(t *testing.T) {
	ss := newTestSessionStore(t)
	sess := model.NewSession("prj_1", "/work", time.Now())
	if err := ss.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	ids := seedConversation(t, ss, sess, model.RoleUser, model.RoleAssistant, model.RoleUser)

	if err := ss.Revert(sess, ids[2], nil); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if sess.Revert.MessageID != ids[2] {
		t.Fatalf("revert target = %s, want %s (itself, already a user message)", sess.Revert.MessageID, ids[2])
	}
}

func TestRevertWithNoPrecedingUserMessageGoesToFirst(t *testing.T) {
	ss := newTestSessionStore(t)
	sess := model.NewSession("prj_1", "/work", time.Now())
	if err := ss.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	// Pathological: an assistant-only session (e.g. a subagent transcript).
	ids := seedConversation(t, ss, sess, model.RoleAssistant, model.RoleAssistant)

	if err := ss.Revert(sess, ids[1], nil); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if sess.Revert.MessageID != ids[0] {
		t.Fatalf("revert target = %s, want %s (session's first message)", sess.Revert.MessageID, ids[0])
	}
}

func TestCleanupDeletesMessagesAfterMarkerAndPublishes(t *testing.T) {
	ss := newTestSessionStore(t)
	b := bus.New()
	removed, unsub := bus.Subscribe[bus.MessageRemoved](b, 8)
	defer unsub()

	sess := model.NewSession("prj_1", "/work", time.Now())
	if err := ss.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	ids := seedConversation(t, ss, sess, model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant)

	sess.Revert = &model.RevertInfo{MessageID: ids[1]}
	if err := ss.Cleanup(b, sess); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	remaining, err := ss.ListMessages(sess.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d remaining messages, want 2", len(remaining))
	}
	if sess.Revert != nil {
		t.Fatal("revert marker should be cleared after cleanup")
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-removed:
			seen[e.MessageID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for MessageRemoved")
		}
	}
	if !seen[ids[2]] || !seen[ids[3]] {
		t.Fatalf("expected MessageRemoved for %s and %s, got %v", ids[2], ids[3], seen)
	}
}

func TestCleanupWithPartMarkerOnlyDeletesLaterParts(t *testing.T) {
	ss := newTestSessionStore(t)
	b := bus.New()

	sess := model.NewSession("prj_1", "/work", time.Now())
	if err := ss.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	ids := seedConversation(t, ss, sess, model.RoleUser, model.RoleAssistant)
	messageID := ids[1]

	p1 := model.NewTextPart(messageID, "first")
	p2 := model.NewTextPart(messageID, "second")
	p1.ID, p2.ID = "prt_1", "prt_2"
	if err := ss.PutPart(&p1); err != nil {
		t.Fatalf("PutPart: %v", err)
	}
	if err := ss.PutPart(&p2); err != nil {
		t.Fatalf("PutPart: %v", err)
	}

	partID := "prt_1"
	sess.Revert = &model.RevertInfo{MessageID: messageID, PartID: &partID}
	if err := ss.Cleanup(b, sess); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	parts, err := ss.ListParts(messageID)
	if err != nil {
		t.Fatalf("ListParts: %v", err)
	}
	if len(parts) != 1 || parts[0] != "prt_1" {
		t.Fatalf("got %v, want only prt_1 to remain", parts)
	}

	msgs, err := ss.ListMessages(sess.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message itself should survive a part-scoped revert, got %v", msgs)
	}
}
