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

const groupCols = `id, name, description, avatar, creator_id, created_at`

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func scanGroup(s interface{ Scan(dest ...any) error }, g *model.Group) error {
	return s.Scan(&g.ID, &g.Name, &g.Description, &g.Avatar, &g.CreatorID, &g.CreatedAt)
}

// CreateGroup создаёт группу и членство владельца в одной транзакции.
func (r *GroupRepository) CreateGroup(ctx context.Context, g *model.Group, owner *model.GroupMember) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO groups (name, description, avatar, creator_id, created_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			g.Name, g.Description, g.Avatar, g.CreatorID, g.CreatedAt.UTC(),
		).Scan(&g.ID); err != nil {
			return err
		}
		if owner == nil {
			return nil
		}
		owner.GroupID = g.ID
		return tx.QueryRow(ctx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			owner.GroupID, owner.UserID, owner.Role, owner.JoinedAt.UTC(),
		).Scan(&owner.ID)
	})
	if err != nil {
		return fmt.Errorf("groupRepo.Create: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	row := r.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM groups WHERE id = $1`, id)
	if err := scanGroup(row, g); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}
	return g, nil
}

func (r *GroupRepository) ListUserGroups(ctx context.Context, userID int64) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListUserGroups", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, g.description, g.avatar, g.creator_id, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListUserGroups query: %w", err)
	}
	defer rows.Close()
	groups := make([]model.Group, 0, 8)
	for rows.Next() {
		var g model.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("groupRepo.ListUserGroups scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListUserGroups rows: %w", err)
	}
	return groups, nil
}

func (r *GroupRepository) UpdateGroup(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups SET name = $1, description = $2, avatar = $3 WHERE id = $4`,
		g.Name, g.Description, g.Avatar, g.ID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteGroup каскадно удаляет приглашения, сообщения и участников, затем саму группу.
func (r *GroupRepository) DeleteGroup(ctx context.Context, id int64) error {
	defer logger.DeferLogDuration("group.Delete", time.Now())()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM group_invites WHERE group_id = $1`,
			`DELETE FROM messages WHERE group_id = $1`,
			`DELETE FROM group_members WHERE group_id = $1`,
		} {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("groupRepo.Delete: %w", err)
	}
	return nil
}

// AddGroupMember: ON CONFLICT DO NOTHING, повтор даёт storage.ErrDuplicate.
func (r *GroupRepository) AddGroupMember(ctx context.Context, m *model.GroupMember) error {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id, user_id) DO NOTHING
		 RETURNING id`,
		m.GroupID, m.UserID, m.Role, m.JoinedAt.UTC(),
	).Scan(&m.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("groupRepo.AddMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.RemoveMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *GroupRepository) GetGroupMember(ctx context.Context, groupID, userID int64) (*model.GroupMember, error) {
	m := &model.GroupMember{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, group_id, user_id, role, joined_at FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetMember: %w", err)
	}
	return m, nil
}

// ListGroupMembers возвращает участников вместе с публичным профилем.
func (r *GroupRepository) ListGroupMembers(ctx context.Context, groupID int64) ([]model.GroupMember, error) {
	defer logger.DeferLogDuration("group.ListMembers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT gm.id, gm.group_id, gm.user_id, gm.role, gm.joined_at,
		        u.id, u.username, u.display_name, u.avatar, u.about, u.is_online, u.last_seen
		 FROM group_members gm
		 JOIN users u ON u.id = gm.user_id
		 WHERE gm.group_id = $1
		 ORDER BY gm.id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListMembers query: %w", err)
	}
	defer rows.Close()
	members := make([]model.GroupMember, 0, 8)
	for rows.Next() {
		var m model.GroupMember
		u := &model.UserPublic{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinedAt,
			&u.ID, &u.Username, &u.DisplayName, &u.Avatar, &u.About, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("groupRepo.ListMembers scan: %w", err)
		}
		m.User = u
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListMembers rows: %w", err)
	}
	return members, nil
}

func (r *GroupRepository) ListGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	defer logger.DeferLogDuration("group.ListMemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListMemberIDs query: %w", err)
	}
	defer rows.Close()
	ids := make([]int64, 0, 16)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("groupRepo.ListMemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListMemberIDs rows: %w", err)
	}
	return ids, nil
}

func (r *GroupRepository) UpdateGroupMemberRole(ctx context.Context, groupID, userID int64, role model.GroupRole) error {
	defer logger.DeferLogDuration("group.UpdateMemberRole", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_members SET role = $1 WHERE group_id = $2 AND user_id = $3`,
		role, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.UpdateMemberRole: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
