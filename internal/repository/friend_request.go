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

const friendRequestCols = `id, sender_id, receiver_id, status, created_at, updated_at`

type FriendRequestRepository struct {
	pool *pgxpool.Pool
}

func NewFriendRequestRepository(pool *pgxpool.Pool) *FriendRequestRepository {
	return &FriendRequestRepository{pool: pool}
}

func scanFriendRequest(s interface{ Scan(dest ...any) error }, fr *model.FriendRequest) error {
	return s.Scan(&fr.ID, &fr.SenderID, &fr.ReceiverID, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt)
}

func (r *FriendRequestRepository) list(ctx context.Context, op, where string, args ...any) ([]model.FriendRequest, error) {
	defer logger.DeferLogDuration("friendRequest."+op, time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+friendRequestCols+` FROM friend_requests WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("friendRequestRepo.%s query: %w", op, err)
	}
	defer rows.Close()
	out := make([]model.FriendRequest, 0, 4)
	for rows.Next() {
		var fr model.FriendRequest
		if err := scanFriendRequest(rows, &fr); err != nil {
			return nil, fmt.Errorf("friendRequestRepo.%s scan: %w", op, err)
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("friendRequestRepo.%s rows: %w", op, err)
	}
	return out, nil
}

// CreateFriendRequest вставляет заявку без проверки дубликатов: уникальность pending-пары
// проверяет вызывающий код (check-then-insert), ограничения в схеме нет.
func (r *FriendRequestRepository) CreateFriendRequest(ctx context.Context, fr *model.FriendRequest) error {
	defer logger.DeferLogDuration("friendRequest.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		fr.SenderID, fr.ReceiverID, fr.Status, fr.CreatedAt.UTC(), fr.UpdatedAt.UTC(),
	).Scan(&fr.ID)
	if err != nil {
		return fmt.Errorf("friendRequestRepo.Create: %w", err)
	}
	return nil
}

func (r *FriendRequestRepository) GetFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	defer logger.DeferLogDuration("friendRequest.GetByID", time.Now())()
	fr := &model.FriendRequest{}
	row := r.pool.QueryRow(ctx, `SELECT `+friendRequestCols+` FROM friend_requests WHERE id = $1`, id)
	if err := scanFriendRequest(row, fr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("friendRequestRepo.GetByID: %w", err)
	}
	return fr, nil
}

func (r *FriendRequestRepository) ListFriendRequestsBetween(ctx context.Context, a, b int64) ([]model.FriendRequest, error) {
	return r.list(ctx, "ListBetween",
		`(sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`, a, b)
}

func (r *FriendRequestRepository) ListPendingFriendRequests(ctx context.Context, receiverID int64) ([]model.FriendRequest, error) {
	return r.list(ctx, "ListPending", `receiver_id = $1 AND status = 'pending'`, receiverID)
}

func (r *FriendRequestRepository) ListFriendRequestsForUser(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	return r.list(ctx, "ListForUser", `sender_id = $1 OR receiver_id = $1`, userID)
}

// ResolveFriendRequest: условный UPDATE по status='pending'. Для accepted в той же транзакции
// закрываются остальные pending-заявки пары и пишется пара контактов.
func (r *FriendRequestRepository) ResolveFriendRequest(ctx context.Context, id int64, status model.FriendRequestStatus, at time.Time) error {
	defer logger.DeferLogDuration("friendRequest.Resolve", time.Now())()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var senderID, receiverID int64
		err := tx.QueryRow(ctx,
			`UPDATE friend_requests SET status = $1, updated_at = $2
			 WHERE id = $3 AND status = 'pending'
			 RETURNING sender_id, receiver_id`,
			status, at.UTC(), id,
		).Scan(&senderID, &receiverID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM friend_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return storage.ErrNotFound
			}
			return storage.ErrConflict
		}
		if err != nil {
			return err
		}
		if status != model.FriendRequestAccepted {
			return nil
		}
		// Дубли от гонки create закрываются вместе с принятой заявкой.
		if _, err := tx.Exec(ctx,
			`UPDATE friend_requests SET status = 'accepted', updated_at = $1
			 WHERE status = 'pending'
			   AND ((sender_id = $2 AND receiver_id = $3) OR (sender_id = $3 AND receiver_id = $2))`,
			at.UTC(), senderID, receiverID,
		); err != nil {
			return err
		}
		return insertContactPair(ctx, tx, senderID, receiverID, at)
	})
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("friendRequestRepo.Resolve: %w", err)
	}
	return nil
}
