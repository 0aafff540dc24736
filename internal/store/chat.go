package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
)

func (s *Store) CreateSession(ctx context.Context, repoID string) (string, error) {
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, `INSERT INTO chat_sessions (id, repo_id) VALUES ($1, $2)`, id, repoID); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// SessionRepo returns the repository a chat session is bound to.
func (s *Store) SessionRepo(ctx context.Context, sessionID string) (string, error) {
	var repoID string
	err := s.pool.QueryRow(ctx, `SELECT repo_id FROM chat_sessions WHERE id = $1`, sessionID).Scan(&repoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return repoID, err
}

func (s *Store) AddMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3)`, sessionID, role, content)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// RecentMessages returns the last turns user/assistant pairs of a session in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, turns int) ([]models.ChatMessage, error) {
	if turns <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`, sessionID, 2*turns)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
