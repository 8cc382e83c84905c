package conversation

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRecord stores a single user or assistant conversational turn.
type TurnRecord struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is an append-only ordered log of conversation turns. Turns are
// appended in causal order; only a bounded trailing window resurfaces
// for prompt construction.
type Store interface {
	AppendTurn(ctx context.Context, record TurnRecord) error
	RecentWindow(ctx context.Context, sessionKey string, limit int) ([]TurnRecord, error)
	TurnCount(ctx context.Context, sessionKey string) (int, error)
	Close() error
}
