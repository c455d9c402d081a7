package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wombatinua/meshcore-ai/pkg/models"
)

// MessageStore is the append-only log of inbound mesh messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, rec *models.MessageRecord) error
	GetMessages(ctx context.Context, limit int) ([]*models.MessageRecord, error)
}

type messageStore struct {
	db *sqlx.DB
}

const saveMessageSQL = `
INSERT INTO messages (pub_key, name, channel_idx, channel_name, text, sender_time, created_at)
VALUES (:pub_key, :name, :channel_idx, :channel_name, :text, :sender_time, NOW())`

func (s *messageStore) SaveMessage(ctx context.Context, rec *models.MessageRecord) error {
	if _, err := s.db.NamedExecContext(ctx, saveMessageSQL, rec); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

const getMessagesSQL = `
SELECT id, pub_key, name, channel_idx, channel_name, text, sender_time, created_at
FROM messages
ORDER BY id DESC
LIMIT $1`

func (s *messageStore) GetMessages(ctx context.Context, limit int) ([]*models.MessageRecord, error) {
	var recs []*models.MessageRecord
	if err := s.db.SelectContext(ctx, &recs, getMessagesSQL, limit); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return recs, nil
}
