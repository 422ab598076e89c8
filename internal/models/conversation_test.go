package models

import (
	"testing"
	"time"
)

func TestSortConversations(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	convs := []*Conversation{
		{ID: "ten", LatestMessage: &Message{CreatedAt: at(10, 0)}},
		{ID: "ten_five", LatestMessage: &Message{CreatedAt: at(10, 5)}},
		{ID: "nine", LatestMessage: &Message{CreatedAt: at(9, 0)}},
		{ID: "empty", CreatedAt: at(9, 30)},
	}

	SortConversations(convs)

	want := []string{"ten_five", "ten", "empty", "nine"}
	for i, id := range want {
		if convs[i].ID != id {
			t.Fatalf("convs[%d].ID = %q, want %q", i, convs[i].ID, id)
		}
	}
}

func TestHasParticipant(t *testing.T) {
	c := &Conversation{Participants: []UserSummary{{ID: "usr_a"}, {ID: "usr_b"}}}

	if !c.HasParticipant("usr_a") {
		t.Fatal("expected usr_a to be a participant")
	}
	if c.HasParticipant("usr_c") {
		t.Fatal("expected usr_c not to be a participant")
	}
}
