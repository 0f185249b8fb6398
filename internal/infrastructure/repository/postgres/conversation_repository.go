package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

// ConversationRepository reads stored chat sessions for the history endpoint.
type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// ListSessions returns the user's most recently updated sessions, newest first, each with
// its messages in chronological order.
func (r *ConversationRepository) ListSessions(ctx context.Context, userID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT c.conversation_id, c.updated_at, m.role, m.content, m.created_at
FROM (
	SELECT conversation_id, updated_at
	FROM conversations
	WHERE user_id = $1
	ORDER BY updated_at DESC
	LIMIT $2
) c
LEFT JOIN conversation_messages m
	ON m.user_id = $1 AND m.conversation_id = c.conversation_id
ORDER BY c.updated_at DESC, c.conversation_id, m.created_at ASC
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatSession, 0, limit)
	for rows.Next() {
		var (
			session   domain.ChatSession
			role      sql.NullString
			content   sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(&session.SessionID, &session.UpdatedAt, &role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].SessionID != session.SessionID {
			session.UserID = userID
			out = append(out, session)
		}
		if !role.Valid {
			continue
		}
		last := &out[len(out)-1]
		last.Messages = append(last.Messages, domain.ChatMessage{
			Role:      role.String,
			Content:   content.String,
			CreatedAt: createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
