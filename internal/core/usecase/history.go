package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
	"github.com/kirillkom/career-case-rag/internal/core/retrieval"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type HistoryUseCase struct {
	sessions ports.SessionReader
}

func NewHistoryUseCase(sessions ports.SessionReader) *HistoryUseCase {
	return &HistoryUseCase{sessions: sessions}
}

// MeaningfulHistory lists a user's stored sessions and drops the ones with nothing in them.
func (uc *HistoryUseCase) MeaningfulHistory(ctx context.Context, userID string, limit int) ([]domain.ChatSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list history", fmt.Errorf("user_id is required"))
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	sessions, err := uc.sessions.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return retrieval.FilterMeaningfulHistory(sessions), nil
}
