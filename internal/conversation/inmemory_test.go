package conversation

import (
	"context"
	"fmt"
	"testing"
)

func TestInMemoryStoreAppendOrderAndWindow(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for i := 0; i < 5; i++ {
		if err := s.AppendTurn(ctx, TurnRecord{SessionKey: "s1", Role: RoleUser, Content: fmt.Sprintf("q%d", i)}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
		if err := s.AppendTurn(ctx, TurnRecord{SessionKey: "s1", Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	count, err := s.TurnCount(ctx, "s1")
	if err != nil {
		t.Fatalf("TurnCount() error = %v", err)
	}
	if count != 10 {
		t.Fatalf("TurnCount() = %d, want 10", count)
	}

	window, err := s.RecentWindow(ctx, "s1", 4)
	if err != nil {
		t.Fatalf("RecentWindow() error = %v", err)
	}
	if len(window) != 4 {
		t.Fatalf("window length = %d, want 4", len(window))
	}
	want := []string{"q3", "a3", "q4", "a4"}
	for i, rec := range window {
		if rec.Content != want[i] {
			t.Fatalf("window[%d].Content = %q, want %q", i, rec.Content, want[i])
		}
	}
}

func TestInMemoryStoreWindowLargerThanLog(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if err := s.AppendTurn(ctx, TurnRecord{SessionKey: "s1", Role: RoleUser, Content: "only"}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	window, err := s.RecentWindow(ctx, "s1", 6)
	if err != nil {
		t.Fatalf("RecentWindow() error = %v", err)
	}
	if len(window) != 1 || window[0].Content != "only" {
		t.Fatalf("unexpected window: %+v", window)
	}
}

func TestInMemoryStoreSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.AppendTurn(ctx, TurnRecord{SessionKey: "s1", Role: RoleUser, Content: "one"})

	window, err := s.RecentWindow(ctx, "s2", 6)
	if err != nil {
		t.Fatalf("RecentWindow() error = %v", err)
	}
	if window != nil {
		t.Fatalf("window for unseen session = %+v, want nil", window)
	}
}

func TestInMemoryStoreFillsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.AppendTurn(ctx, TurnRecord{SessionKey: "s1", Role: RoleUser, Content: "x"})

	window, _ := s.RecentWindow(ctx, "s1", 1)
	if len(window) != 1 {
		t.Fatalf("window length = %d, want 1", len(window))
	}
	if window[0].ID == "" || window[0].CreatedAt.IsZero() {
		t.Fatalf("record missing generated fields: %+v", window[0])
	}
}
