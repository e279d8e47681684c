// Package store persists chat message history in Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"async-chat-broker/internal/chatlog"
	"async-chat-broker/internal/models"
)

var _ chatlog.Log = (*Store)(nil)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts a message into the chat's history.
func (s *Store) Append(ctx context.Context, chatID string, msg models.ChatMessage) (models.ChatMessage, error) {
	msg, err := chatlog.Prepare(chatID, msg, s.now())
	if err != nil {
		return models.ChatMessage{}, err
	}
	id, err := uuid.Parse(msg.ID)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("message id %q: %w", msg.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, chat_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), chatID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

// List returns the chat's messages in insertion order.
func (s *Store) List(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, created_at
		FROM chat_messages WHERE chat_id = $1
		ORDER BY seq
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("scan chat messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}

func scanMessage(row pgx.CollectableRow) (models.ChatMessage, error) {
	var (
		msg  models.ChatMessage
		role string
	)
	if err := row.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp); err != nil {
		return models.ChatMessage{}, err
	}
	msg.Role = models.Role(role)
	msg.Timestamp = msg.Timestamp.UTC()
	return msg, nil
}
