package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
)

type MemberRepository struct {
	db *sqlx.DB
}

func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Get(ctx context.Context, crateID int64, userID string) (*domain.CrateMember, error) {
	var member domain.CrateMember
	err := r.db.GetContext(ctx, &member,
		`SELECT * FROM crate_members WHERE crate_id = $1 AND user_id = $2`,
		crateID, userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user %s is not a member of crate %d", userID, crateID)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return &member, nil
}

func (r *MemberRepository) Add(ctx context.Context, m *domain.CrateMember) error {
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO crate_members (crate_id, user_id, role)
        VALUES ($1, $2, $3)
        RETURNING joined_at`,
		m.CrateID, m.UserID, m.Role,
	).Scan(&m.JoinedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperr.Conflict("user %s is already a member of crate %d", m.UserID, m.CrateID)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

func (r *MemberRepository) UpdateRole(ctx context.Context, crateID int64, userID string, role domain.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE crate_members SET role = $1 WHERE crate_id = $2 AND user_id = $3`,
		role, crateID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("user %s is not a member of crate %d", userID, crateID)
	}

	return nil
}

func (r *MemberRepository) Remove(ctx context.Context, crateID int64, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM crate_members WHERE crate_id = $1 AND user_id = $2`,
		crateID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("user %s is not a member of crate %d", userID, crateID)
	}

	return nil
}

func (r *MemberRepository) ListByCrate(ctx context.Context, crateID int64) ([]domain.CrateMember, error) {
	var members []domain.CrateMember
	err := r.db.SelectContext(ctx, &members,
		`SELECT * FROM crate_members WHERE crate_id = $1 ORDER BY joined_at`,
		crateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}
