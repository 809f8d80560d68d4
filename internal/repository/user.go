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

// userCols: список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, username, display_name, avatar, about, email, phone, password_hash, is_online, last_seen, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser сканирует строку в model.User (порядок соответствует userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Avatar, &u.About, &u.Email, &u.Phone, &u.PasswordHash, &u.IsOnline, &u.LastSeen, &u.CreatedAt)
}

func collectUsers(rows pgx.Rows, op string) ([]model.User, error) {
	defer rows.Close()
	users := make([]model.User, 0, 16)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return users, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, display_name, avatar, about, email, phone, password_hash, is_online, last_seen, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		u.Username, u.DisplayName, u.Avatar, u.About, u.Email, u.Phone, u.PasswordHash, u.IsOnline, u.LastSeen, u.CreatedAt,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByUsername: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListAll", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListAll: %w", err)
	}
	return collectUsers(rows, "userRepo.ListAll")
}

func (r *UserRepository) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.Search", time.Now())()
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users
		 WHERE username ILIKE $1 OR display_name ILIKE $1
		 ORDER BY id LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.Search query: %w", err)
	}
	return collectUsers(rows, "userRepo.Search")
}

// SetOnline выставляет флаг онлайн; при уходе в офлайн фиксирует last_seen.
func (r *UserRepository) SetOnline(ctx context.Context, userID int64, online bool, at time.Time) error {
	defer logger.DeferLogDuration("user.SetOnline", time.Now())()
	var err error
	if online {
		_, err = r.pool.Exec(ctx, `UPDATE users SET is_online = true WHERE id = $1`, userID)
	} else {
		_, err = r.pool.Exec(ctx, `UPDATE users SET is_online = false, last_seen = $1 WHERE id = $2`, at.UTC(), userID)
	}
	if err != nil {
		return fmt.Errorf("userRepo.SetOnline: %w", err)
	}
	return nil
}

// ResetOnline сбрасывает is_online у всех: после рестарта живых соединений нет.
func (r *UserRepository) ResetOnline(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `UPDATE users SET is_online = false WHERE is_online`); err != nil {
		return fmt.Errorf("userRepo.ResetOnline: %w", err)
	}
	return nil
}
