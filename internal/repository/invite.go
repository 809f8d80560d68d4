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

const inviteCols = `id, group_id, inviter_id, invitee_id, status, created_at, updated_at`

type InviteRepository struct {
	pool *pgxpool.Pool
}

func NewInviteRepository(pool *pgxpool.Pool) *InviteRepository {
	return &InviteRepository{pool: pool}
}

func scanInvite(s interface{ Scan(dest ...any) error }, inv *model.GroupInvite) error {
	return s.Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
}

// CreateGroupInvite: уникальный частичный индекс по pending-приглашениям даёт storage.ErrDuplicate.
func (r *InviteRepository) CreateGroupInvite(ctx context.Context, inv *model.GroupInvite) error {
	defer logger.DeferLogDuration("invite.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO group_invites (group_id, inviter_id, invitee_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		inv.GroupID, inv.InviterID, inv.InviteeID, inv.Status, inv.CreatedAt.UTC(), inv.UpdatedAt.UTC(),
	).Scan(&inv.ID)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inviteRepo.Create: %w", err)
	}
	return nil
}

func (r *InviteRepository) GetGroupInvite(ctx context.Context, id int64) (*model.GroupInvite, error) {
	inv := &model.GroupInvite{}
	row := r.pool.QueryRow(ctx, `SELECT `+inviteCols+` FROM group_invites WHERE id = $1`, id)
	if err := scanInvite(row, inv); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("inviteRepo.GetByID: %w", err)
	}
	return inv, nil
}

func (r *InviteRepository) FindPendingGroupInvite(ctx context.Context, groupID, inviteeID int64) (*model.GroupInvite, error) {
	inv := &model.GroupInvite{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+inviteCols+` FROM group_invites WHERE group_id = $1 AND invitee_id = $2 AND status = 'pending'`,
		groupID, inviteeID)
	if err := scanInvite(row, inv); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("inviteRepo.FindPending: %w", err)
	}
	return inv, nil
}

// ListPendingGroupInvites возвращает приглашения пользователя вместе с группой и пригласившим.
func (r *InviteRepository) ListPendingGroupInvites(ctx context.Context, inviteeID int64) ([]model.GroupInvite, error) {
	defer logger.DeferLogDuration("invite.ListPending", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.group_id, i.inviter_id, i.invitee_id, i.status, i.created_at, i.updated_at,
		        g.id, g.name, g.description, g.avatar, g.creator_id, g.created_at,
		        u.id, u.username, u.display_name, u.avatar, u.about, u.is_online, u.last_seen
		 FROM group_invites i
		 JOIN groups g ON g.id = i.group_id
		 JOIN users u ON u.id = i.inviter_id
		 WHERE i.invitee_id = $1 AND i.status = 'pending'
		 ORDER BY i.id`, inviteeID,
	)
	if err != nil {
		return nil, fmt.Errorf("inviteRepo.ListPending query: %w", err)
	}
	defer rows.Close()
	out := make([]model.GroupInvite, 0, 4)
	for rows.Next() {
		var inv model.GroupInvite
		g := &model.Group{}
		u := &model.UserPublic{}
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
			&g.ID, &g.Name, &g.Description, &g.Avatar, &g.CreatorID, &g.CreatedAt,
			&u.ID, &u.Username, &u.DisplayName, &u.Avatar, &u.About, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("inviteRepo.ListPending scan: %w", err)
		}
		inv.Group, inv.Inviter = g, u
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inviteRepo.ListPending rows: %w", err)
	}
	return out, nil
}

func (r *InviteRepository) ResolveGroupInvite(ctx context.Context, id int64, status model.InviteStatus, at time.Time) error {
	defer logger.DeferLogDuration("invite.Resolve", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_invites SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'pending'`,
		status, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("inviteRepo.Resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetGroupInvite(ctx, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}
