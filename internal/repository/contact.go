package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// ListContacts возвращает пользователей-контактов в порядке добавления.
func (r *ContactRepository) ListContacts(ctx context.Context, userID int64) ([]model.User, error) {
	defer logger.DeferLogDuration("contact.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.username, u.display_name, u.avatar, u.about, u.email, u.phone, u.password_hash, u.is_online, u.last_seen, u.created_at
		 FROM contacts c
		 JOIN users u ON u.id = c.contact_id
		 WHERE c.user_id = $1
		 ORDER BY c.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("contactRepo.List: %w", err)
	}
	return collectUsers(rows, "contactRepo.List")
}

func (r *ContactRepository) IsContact(ctx context.Context, userID, contactID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM contacts WHERE user_id = $1 AND contact_id = $2)`,
		userID, contactID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("contactRepo.IsContact: %w", err)
	}
	return ok, nil
}

func (r *ContactRepository) AddContactPair(ctx context.Context, a, b int64, at time.Time) error {
	defer logger.DeferLogDuration("contact.AddPair", time.Now())()
	if err := insertContactPair(ctx, r.pool, a, b, at); err != nil {
		return fmt.Errorf("contactRepo.AddPair: %w", err)
	}
	return nil
}

func insertContactPair(ctx context.Context, db execer, a, b int64, at time.Time) error {
	_, err := db.Exec(ctx,
		`INSERT INTO contacts (user_id, contact_id, created_at)
		 VALUES ($1, $2, $3), ($2, $1, $3)
		 ON CONFLICT (user_id, contact_id) DO NOTHING`,
		a, b, at.UTC(),
	)
	return err
}
