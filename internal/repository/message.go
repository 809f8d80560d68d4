package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/storage"
)

const messageCols = `id, sender_id, receiver_id, group_id, content, created_at, read, message_type, file_url, file_type, file_name`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.Content, &m.CreatedAt, &m.Read, &m.MessageType, &m.FileURL, &m.FileType, &m.FileName)
}

func (r *MessageRepository) list(ctx context.Context, op, where string, args ...any) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg."+op, time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.%s query: %w", op, err)
	}
	defer rows.Close()
	messages := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.%s rows: %w", op, err)
	}
	return messages, nil
}

func (r *MessageRepository) CreateMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, receiver_id, group_id, content, created_at, read, message_type, file_url, file_type, file_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		m.SenderID, m.ReceiverID, m.GroupID, m.Content, m.CreatedAt.UTC(), m.Read, m.MessageType, m.FileURL, m.FileType, m.FileName,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) ListMessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, "ListByIDs", `id = ANY($1)`, ids)
}

func (r *MessageRepository) ListDirectMessages(ctx context.Context, userID, contactID int64) ([]model.Message, error) {
	return r.list(ctx, "ListDirect",
		`(sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`, userID, contactID)
}

func (r *MessageRepository) ListGroupMessages(ctx context.Context, groupID int64) ([]model.Message, error) {
	return r.list(ctx, "ListGroup", `group_id = $1`, groupID)
}

// MarkMessagesRead помечает прочитанными непрочитанные сообщения sender → receiver. Повторный вызов ничего не меняет.
func (r *MessageRepository) MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = true
		 WHERE receiver_id = $1 AND sender_id = $2 AND read = false`,
		receiverID, senderID,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, receiverID, senderID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND sender_id = $2 AND read = false`,
		receiverID, senderID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.CountUnread: %w", err)
	}
	return n, nil
}
