package client

import (
	"testing"
	"time"

	"threads/internal/models"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 1, 1, hour, minute, 0, 0, time.UTC)
}

func conv(id string, latest time.Time) *models.Conversation {
	return &models.Conversation{
		ID:            id,
		CreatedAt:     at(8, 0),
		LatestMessage: &models.Message{ID: "msg_" + id, ConversationID: id, CreatedAt: latest},
	}
}

func order(l *ConversationList) []string {
	var ids []string
	for _, c := range l.Snapshot() {
		ids = append(ids, c.ID)
	}
	return ids
}

func assertOrder(t *testing.T, l *ConversationList, want ...string) {
	t.Helper()

	got := order(l)
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestConversationListOrdering(t *testing.T) {
	l := NewConversationList()
	l.Replace([]*models.Conversation{
		conv("a", at(10, 0)),
		conv("b", at(10, 5)),
		conv("c", at(9, 0)),
	})
	assertOrder(t, l, "b", "a", "c")

	if !l.ApplyMessage(&models.Message{ID: "m2", ConversationID: "c", CreatedAt: at(10, 10)}) {
		t.Fatal("ApplyMessage() = false, want true")
	}
	assertOrder(t, l, "c", "b", "a")

	// An older message never moves the pointer backwards.
	l.ApplyMessage(&models.Message{ID: "m0", ConversationID: "c", CreatedAt: at(9, 30)})
	assertOrder(t, l, "c", "b", "a")
	if got := l.Snapshot()[0].LatestMessage.ID; got != "m2" {
		t.Fatalf("latest message = %q, want m2", got)
	}

	l.Upsert(conv("d", at(11, 0)))
	assertOrder(t, l, "d", "c", "b", "a")

	if l.ApplyMessage(&models.Message{ID: "mx", ConversationID: "zzz", CreatedAt: at(12, 0)}) {
		t.Fatal("ApplyMessage() for unknown conversation = true, want false")
	}
}

func TestUpsertKeepsNewerLocalMessage(t *testing.T) {
	l := NewConversationList()
	l.Replace([]*models.Conversation{conv("a", at(10, 0))})
	l.ApplyMessage(&models.Message{ID: "new", ConversationID: "a", CreatedAt: at(10, 30)})

	l.Upsert(conv("a", at(10, 0)))

	if got := l.Snapshot()[0].LatestMessage.ID; got != "new" {
		t.Fatalf("latest message = %q, want new", got)
	}
}
